package gateway

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnRegistry(t *testing.T) {
	upgrader := websocket.Upgrader{}
	serverConns := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		serverConns <- ws
	}))
	defer srv.Close()

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer client.Close()

	ws := <-serverConns
	reg := NewConnRegistry()
	reg.Add(&streamConn{ID: "c1", SessionID: "s1", Conn: ws, RemoteAddr: "127.0.0.1:1", ConnectedAt: time.Now()})

	assert.Equal(t, 1, reg.Count())
	infos := reg.List()
	require.Len(t, infos, 1)
	assert.Equal(t, "c1", infos[0].ID)
	assert.Equal(t, "s1", infos[0].SessionID)

	reg.CloseAll("bye")
	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = client.ReadMessage()
	var ce *websocket.CloseError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, websocket.CloseGoingAway, ce.Code)
	assert.Equal(t, "bye", ce.Text)

	reg.Remove("c1")
	assert.Zero(t, reg.Count())
}
