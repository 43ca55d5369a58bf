package gateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// streamConn is one client websocket bridged into a session
type streamConn struct {
	ID          string
	SessionID   string
	Conn        *websocket.Conn
	RemoteAddr  string
	ConnectedAt time.Time
}

// StreamInfo is the public view of a connected stream
type StreamInfo struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	RemoteAddr  string    `json:"remote_addr"`
	ConnectedAt time.Time `json:"connected_at"`
}

// ConnRegistry tracks open stream connections so shutdown can close them
type ConnRegistry struct {
	mu    sync.RWMutex
	conns map[string]*streamConn
}

// NewConnRegistry creates an empty registry
func NewConnRegistry() *ConnRegistry {
	return &ConnRegistry{
		conns: make(map[string]*streamConn),
	}
}

// Add adds a connection to the registry
func (r *ConnRegistry) Add(c *streamConn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.conns[c.ID] = c
}

// Remove removes a connection from the registry
func (r *ConnRegistry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.conns, id)
}

// Count returns the number of open connections
func (r *ConnRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.conns)
}

// List returns info for every open connection
func (r *ConnRegistry) List() []StreamInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]StreamInfo, 0, len(r.conns))
	for _, c := range r.conns {
		infos = append(infos, StreamInfo{
			ID:          c.ID,
			SessionID:   c.SessionID,
			RemoteAddr:  c.RemoteAddr,
			ConnectedAt: c.ConnectedAt,
		})
	}
	return infos
}

// CloseAll sends a going-away close to every connection and closes it
func (r *ConnRegistry) CloseAll(reason string) {
	r.mu.RLock()
	conns := make([]*streamConn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, reason)
	for _, c := range conns {
		_ = c.Conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = c.Conn.Close()
	}
}
