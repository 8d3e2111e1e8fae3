package sse

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/together-plan/chatplan/internal/domain"
)

const pingPayload = `{"status":"alive"}`

// ServeOptions controls a channel's lifetime loop.
type ServeOptions struct {
	KeepaliveInterval time.Duration
	RetryDelay        time.Duration
	// OnOpen runs after the channel is bound and before the loop starts.
	OnOpen func(ctx context.Context)
	Logger *slog.Logger
}

func (o *ServeOptions) defaults() {
	if o.KeepaliveInterval <= 0 {
		o.KeepaliveInterval = 10 * time.Second
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 5 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// ServeSSE streams clientID's channel over the response until the client
// disconnects or the registry closes the binding.
func ServeSSE(w http.ResponseWriter, r *http.Request, reg *Registry, clientID string, opts ServeOptions) {
	opts.defaults()

	h, err := NewHTTPHandle(w)
	if err != nil {
		http.Error(w, `{"error": "streaming not supported"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	if err := h.writeRetry(opts.RetryDelay.Milliseconds()); err != nil {
		opts.Logger.Warn("failed to write SSE retry header", "error", err, "client_id", clientID)
		return
	}

	bound := reg.Open(clientID, h)
	defer reg.CloseHandle(clientID, h)
	if opts.OnOpen != nil {
		opts.OnOpen(bound)
	}

	keepalive := time.NewTicker(opts.KeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			opts.Logger.Info("SSE client disconnected", "client_id", clientID)
			return
		case <-h.Done():
			return
		case <-keepalive.C:
			if err := h.Send(domain.EventPing, pingPayload); err != nil {
				opts.Logger.Warn("failed to write SSE keepalive ping", "error", err, "client_id", clientID)
				return
			}
		}
	}
}

// ServeWS upgrades the request and serves clientID's channel over a WebSocket.
// Inbound frames are ignored; utterances still arrive over HTTP.
func ServeWS(w http.ResponseWriter, r *http.Request, reg *Registry, clientID string, opts ServeOptions) {
	opts.defaults()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		opts.Logger.Error("Failed to accept WebSocket", "error", err, "client_id", clientID)
		return
	}

	h := NewWSHandle(conn)
	readCtx := conn.CloseRead(r.Context())

	bound := reg.Open(clientID, h)
	defer func() {
		reg.CloseHandle(clientID, h)
		if closeErr := h.Close(); closeErr != nil {
			opts.Logger.Debug("Failed to close websocket", "error", closeErr, "client_id", clientID)
		}
	}()
	if opts.OnOpen != nil {
		opts.OnOpen(bound)
	}

	keepalive := time.NewTicker(opts.KeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-readCtx.Done():
			opts.Logger.Info("WebSocket client disconnected", "client_id", clientID)
			return
		case <-h.Done():
			return
		case <-keepalive.C:
			if err := h.Ping(readCtx); err != nil {
				opts.Logger.Warn("WebSocket ping failed", "error", err, "client_id", clientID)
				return
			}
		}
	}
}
