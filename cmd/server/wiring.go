package main

import (
	"log/slog"
	"strings"

	"github.com/together-plan/chatplan/internal/broker"
	"github.com/together-plan/chatplan/internal/config"
	"github.com/together-plan/chatplan/internal/metrics"
	"github.com/together-plan/chatplan/internal/session"
	"github.com/together-plan/chatplan/internal/slots"
	"github.com/together-plan/chatplan/internal/sse"
)

// newChannelRegistry creates a registry whose teardown drops the client's
// session unless a replacement channel is already bound.
func newChannelRegistry(name string, sessions *session.Store, m *metrics.Metrics, logger *slog.Logger) *sse.Registry {
	if logger == nil {
		logger = slog.Default()
	}
	var reg *sse.Registry
	reg = sse.NewRegistry(name,
		sse.WithMetrics(m),
		sse.WithLogger(logger),
		sse.WithCloseCallback(func(clientID string) {
			if reg.Has(clientID) {
				return
			}
			sessions.Remove(clientID)
			logger.Debug("Session removed", "channel", name, "user_id", clientID)
		}),
	)
	return reg
}

func newExtractor(kind string, c slots.Completer, logger *slog.Logger) slots.Extractor {
	switch kind {
	case "llm":
		return slots.NewLLMExtractor(c, logger)
	case "chain":
		return slots.Chain{slots.NewRegexExtractor(logger), slots.NewLLMExtractor(c, logger)}
	default:
		return slots.NewRegexExtractor(logger)
	}
}

func newPublisher(cfg config.NATSConfig, logger *slog.Logger) (publisher, error) {
	if cfg.URL == "" {
		slog.Info("NATS_URL not set, outcome publishing disabled")
		return broker.Noop{}, nil
	}
	p, err := broker.Connect(cfg.URL, cfg.SubjectPrefix, logger)
	if err != nil {
		return nil, err
	}
	slog.Info("Publishing outcomes to NATS", "url", cfg.URL, "prefix", cfg.SubjectPrefix)
	return p, nil
}

func allowedOrigins(cfg *config.Config) []string {
	if cfg.IsDevelopment() {
		return []string{"*"}
	}
	var origins []string
	for _, o := range strings.Split(cfg.FrontendURL, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
