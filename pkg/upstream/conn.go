package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/harun/companion/pkg/relay"
)

const (
	writeWait      = 10 * time.Second
	closeGrace     = time.Second
	maxMessageSize = 1 << 20
)

// Conn is a realtime transcription connection over a gorilla websocket.
// gorilla allows one concurrent reader and one concurrent writer, so Send and
// Recv each take their own lock.
type Conn struct {
	ws *websocket.Conn

	writeMu sync.Mutex
	readMu  sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

func newConn(ws *websocket.Conn) *Conn {
	ws.SetReadLimit(maxMessageSize)
	return &Conn{ws: ws}
}

// Send forwards one client frame, preserving its message type
func (c *Conn) Send(ctx context.Context, frame relay.Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return err
	}

	stop := context.AfterFunc(ctx, func() {
		_ = c.ws.SetWriteDeadline(time.Now())
	})
	defer stop()

	msgType := websocket.BinaryMessage
	if frame.Text {
		msgType = websocket.TextMessage
	}
	if err := c.ws.WriteMessage(msgType, frame.Data); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("upstream write: %w", err)
	}
	return nil
}

// Recv blocks for the next upstream event. A normal close from the service is
// reported as io.EOF. Cancelling ctx unblocks the read and returns ctx.Err().
func (c *Conn) Recv(ctx context.Context) (relay.Event, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	if err := ctx.Err(); err != nil {
		return relay.Event{}, err
	}

	_ = c.ws.SetReadDeadline(time.Time{})
	stop := context.AfterFunc(ctx, func() {
		_ = c.ws.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return relay.Event{}, ctx.Err()
			}
			return relay.Event{}, classifyReadError(err)
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		return DecodeEvent(data), nil
	}
}

func classifyReadError(err error) error {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return io.EOF
	}
	if errors.Is(err, net.ErrClosed) {
		return io.EOF
	}
	return fmt.Errorf("upstream read: %w", err)
}

// Close sends a close frame and tears down the connection. Safe to call more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
		c.writeMu.Unlock()
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}

var _ relay.UpstreamConn = (*Conn)(nil)
