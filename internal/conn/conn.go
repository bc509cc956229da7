// Package conn wraps a single WebSocket connection as the opaque
// "Connection Handle" the registry and router operate on.
package conn

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is the Connection Handle interface the registry and router
// depend on. It is deliberately opaque to them (spec §1, §3): neither
// package knows or cares that the production implementation is a
// *websocket.Conn, which is exactly what lets tests substitute a
// fake that records sent frames instead of dialing a real socket.
type Conn interface {
	SendText(s string) error
	SendBinary(b []byte) error
	Close() error
}

// Handle is the production Conn: one live WebSocket connection. It is
// safe for concurrent use — the router's read loop and concurrent
// fan-out from other connections' broadcasts may call
// SendText/SendBinary at the same time.
type Handle struct {
	ws *websocket.Conn

	mu     sync.Mutex
	closed bool
}

// New wraps ws. The caller retains ownership of ws; Handle never
// closes it except via Close.
func New(ws *websocket.Conn) *Handle {
	return &Handle{ws: ws}
}

// SendText writes a single text frame. Errors are the caller's to
// handle (typically: log and let the read loop's next error trigger
// disconnect reconciliation).
func (h *Handle) SendText(s string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return websocket.ErrCloseSent
	}
	return h.ws.WriteMessage(websocket.TextMessage, []byte(s))
}

// SendBinary writes a single binary frame.
func (h *Handle) SendBinary(b []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return websocket.ErrCloseSent
	}
	return h.ws.WriteMessage(websocket.BinaryMessage, b)
}

// Close closes the underlying socket. Idempotent.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	return h.ws.Close()
}

// WriteControl forwards a control frame (ping/close) with a deadline.
func (h *Handle) WriteControl(messageType int, data []byte, deadline time.Time) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return websocket.ErrCloseSent
	}
	return h.ws.WriteControl(messageType, data, deadline)
}

// Underlying exposes the raw connection for the read loop, which is
// the only caller allowed to read frames (reads are not mutex-guarded
// here: gorilla/websocket permits one concurrent reader with any
// number of concurrent writers).
func (h *Handle) Underlying() *websocket.Conn {
	return h.ws
}
