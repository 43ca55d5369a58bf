package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/gorilla/websocket"

	"github.com/harun/companion/pkg/relay"
)

// wsFrameSource adapts a client websocket to relay.FrameSource
type wsFrameSource struct {
	conn *websocket.Conn
}

func newFrameSource(conn *websocket.Conn, maxFrameBytes int64) *wsFrameSource {
	if maxFrameBytes > 0 {
		conn.SetReadLimit(maxFrameBytes)
	}
	return &wsFrameSource{conn: conn}
}

// ReadFrame returns the next audio message. A client close is io.EOF.
// Cancelling ctx forces the read to return by expiring its deadline.
func (s *wsFrameSource) ReadFrame(ctx context.Context) (relay.Frame, error) {
	if err := ctx.Err(); err != nil {
		return relay.Frame{}, err
	}

	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return relay.Frame{}, ctx.Err()
			}
			return relay.Frame{}, classifyClientError(err)
		}
		switch msgType {
		case websocket.BinaryMessage:
			return relay.Frame{Data: data}, nil
		case websocket.TextMessage:
			return relay.Frame{Data: data, Text: true}, nil
		}
	}
}

func classifyClientError(err error) error {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		return io.EOF
	}
	if errors.Is(err, net.ErrClosed) {
		return io.EOF
	}
	return fmt.Errorf("client read: %w", err)
}
