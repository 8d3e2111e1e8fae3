package sse

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const defaultWriteTimeout = 10 * time.Second

// wsEnvelope is the JSON frame carrying one event over a WebSocket.
type wsEnvelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// WSHandle pushes events as JSON text frames on a WebSocket.
type WSHandle struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	mu        sync.Mutex
	closed    bool
	done      chan struct{}
	closeOnce sync.Once
}

// NewWSHandle wraps an accepted connection.
func NewWSHandle(conn *websocket.Conn) *WSHandle {
	return &WSHandle{
		conn:         conn,
		writeTimeout: defaultWriteTimeout,
		done:         make(chan struct{}),
	}
}

// Send writes {"event": ..., "data": ...}.
func (h *WSHandle) Send(event string, data any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	ctx, cancel := context.WithTimeout(context.Background(), h.writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, h.conn, wsEnvelope{Event: event, Data: data})
}

// Ping checks liveness.
func (h *WSHandle) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, h.writeTimeout)
	defer cancel()
	return h.conn.Ping(ctx)
}

// Close performs the close handshake once.
func (h *WSHandle) Close() error {
	var err error
	h.closeOnce.Do(func() {
		h.mu.Lock()
		h.closed = true
		h.mu.Unlock()
		close(h.done)
		err = h.conn.Close(websocket.StatusNormalClosure, "channel closed")
	})
	return err
}

// Done is closed after Close.
func (h *WSHandle) Done() <-chan struct{} {
	return h.done
}
