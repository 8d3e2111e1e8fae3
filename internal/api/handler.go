// Package api provides the HTTP handlers of the chat server.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/together-plan/chatplan/internal/chat"
	"github.com/together-plan/chatplan/internal/domain"
	"github.com/together-plan/chatplan/internal/identity"
	"github.com/together-plan/chatplan/internal/middleware"
	"github.com/together-plan/chatplan/internal/session"
	"github.com/together-plan/chatplan/internal/sse"
)

const (
	defaultMaxRequestBodySize = 1 << 20
	defaultTemplateLimit      = 20
	maxTemplateLimit          = 100
)

// Dialogue is the plan-recommendation conversation.
type Dialogue interface {
	HandleUtterance(ctx context.Context, userID, text string) error
	RequestSummary(ctx context.Context, userID string) error
}

// Analyzer is the smishing conversation.
type Analyzer interface {
	HandleMessage(ctx context.Context, userID, text string) error
}

// TemplateLister reads saved summaries.
type TemplateLister interface {
	ListTemplates(ctx context.Context, userID string, limit int) ([]domain.Template, error)
}

// Channel is one push-channel namespace with the sessions it serves.
type Channel struct {
	Registry *sse.Registry
	Sessions *session.Store
}

// Deps are the collaborators of a Handler. Limiter may be nil.
type Deps struct {
	Dialogue    Dialogue
	Analyzer    Analyzer
	Templates   TemplateLister
	Chat        Channel
	Smishing    Channel
	Serve       sse.ServeOptions
	MaxBodySize int64
	Limiter     *middleware.RateLimiter
	Logger      *slog.Logger
}

// Handler serves the chat and smishing endpoints.
type Handler struct {
	deps   Deps
	logger *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(deps Deps) *Handler {
	if deps.MaxBodySize <= 0 {
		deps.MaxBodySize = defaultMaxRequestBodySize
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	deps.Serve.Logger = deps.Logger
	return &Handler{deps: deps, logger: deps.Logger}
}

// MessageRequest is the body of the message endpoints.
type MessageRequest struct {
	Content string `json:"content"`
}

// RegisterRoutes registers chat routes (requires identity middleware).
func (h *Handler) RegisterRoutes(r chi.Router) {
	limited := func(r chi.Router) chi.Router { return r }
	if h.deps.Limiter != nil {
		limit := h.deps.Limiter.Limit(func(req *http.Request) string {
			return identity.UserIDFromContext(req.Context())
		})
		limited = func(r chi.Router) chi.Router { return r.With(limit) }
	}

	r.Route("/api/chat", func(r chi.Router) {
		r.Get("/connect", h.HandleChatConnect)
		r.Get("/ws", h.HandleChatWS)
		limited(r).Post("/message", h.HandleChatMessage)
		limited(r).Post("/summary", h.HandleSummary)
		r.Get("/templates", h.HandleListTemplates)
	})
	r.Route("/api/smishing", func(r chi.Router) {
		r.Get("/connect", h.HandleSmishingConnect)
		limited(r).Post("/message", h.HandleSmishingMessage)
	})
}

// HandleChatConnect handles GET /api/chat/connect.
func (h *Handler) HandleChatConnect(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	sse.ServeSSE(w, r, h.deps.Chat.Registry, userID, h.serveOptions(h.deps.Chat, userID))
}

// HandleChatWS handles GET /api/chat/ws.
func (h *Handler) HandleChatWS(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	sse.ServeWS(w, r, h.deps.Chat.Registry, userID, h.serveOptions(h.deps.Chat, userID))
}

// HandleSmishingConnect handles GET /api/smishing/connect.
func (h *Handler) HandleSmishingConnect(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	sse.ServeSSE(w, r, h.deps.Smishing.Registry, userID, h.serveOptions(h.deps.Smishing, userID))
}

func (h *Handler) serveOptions(ch Channel, userID string) sse.ServeOptions {
	opts := h.deps.Serve
	opts.OnOpen = func(context.Context) {
		ch.Sessions.GetOrCreate(userID)
	}
	return opts
}

// HandleChatMessage handles POST /api/chat/message.
func (h *Handler) HandleChatMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	req, ok := h.decodeMessage(w, r)
	if !ok {
		return
	}
	h.logger.Info("Chat message received",
		"user_id", userID,
		"request_id", chiMiddleware.GetReqID(r.Context()),
		"message_length", len(req.Content),
	)
	h.accepted(w, h.deps.Dialogue.HandleUtterance(r.Context(), userID, req.Content))
}

// HandleSummary handles POST /api/chat/summary.
func (h *Handler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	h.logger.Info("Summary request received",
		"user_id", userID,
		"request_id", chiMiddleware.GetReqID(r.Context()),
	)
	h.accepted(w, h.deps.Dialogue.RequestSummary(r.Context(), userID))
}

// HandleSmishingMessage handles POST /api/smishing/message.
func (h *Handler) HandleSmishingMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	req, ok := h.decodeMessage(w, r)
	if !ok {
		return
	}
	h.logger.Info("Smishing message received",
		"user_id", userID,
		"request_id", chiMiddleware.GetReqID(r.Context()),
		"message_length", len(req.Content),
	)
	h.accepted(w, h.deps.Analyzer.HandleMessage(r.Context(), userID, req.Content))
}

// HandleListTemplates handles GET /api/chat/templates.
func (h *Handler) HandleListTemplates(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	limit := defaultTemplateLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, maxTemplateLimit)
	}

	templates, err := h.deps.Templates.ListTemplates(r.Context(), userID, limit)
	if err != nil {
		h.logger.Error("Failed to list templates", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to list templates")
		return
	}
	JSON(w, http.StatusOK, map[string]any{"templates": templates})
}

func (h *Handler) requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return "", false
	}
	return userID, true
}

func (h *Handler) decodeMessage(w http.ResponseWriter, r *http.Request) (MessageRequest, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.deps.MaxBodySize)

	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return req, false
		}
		Error(w, http.StatusBadRequest, "invalid request body")
		return req, false
	}
	return req, true
}

// accepted maps a scheduling result to the response.
func (h *Handler) accepted(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		JSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	case errors.Is(err, chat.ErrEmptyMessage):
		Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, chat.ErrNoChannel):
		Error(w, http.StatusConflict, "connect to the event stream first")
	default:
		h.logger.Error("Failed to schedule cycle", "error", err)
		Error(w, http.StatusInternalServerError, "internal error")
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
