package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/together-plan/chatplan/internal/api"
	"github.com/together-plan/chatplan/internal/chat"
	"github.com/together-plan/chatplan/internal/config"
	"github.com/together-plan/chatplan/internal/health"
	"github.com/together-plan/chatplan/internal/identity"
	"github.com/together-plan/chatplan/internal/llm"
	"github.com/together-plan/chatplan/internal/metrics"
	"github.com/together-plan/chatplan/internal/middleware"
	"github.com/together-plan/chatplan/internal/session"
	"github.com/together-plan/chatplan/internal/smartchoice"
	"github.com/together-plan/chatplan/internal/sse"
	"github.com/together-plan/chatplan/internal/store"
)

const shutdownTimeout = 10 * time.Second

// publisher is what cycle outcomes are sent through.
type publisher interface {
	chat.Publisher
	io.Closer
}

func run(parent context.Context, logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	slog.Info("Starting server", "port", cfg.Port, "grpc_port", cfg.GRPCPort, "dev", cfg.IsDevelopment())

	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()
	if err := repo.Ping(parent); err != nil {
		return fmt.Errorf("database health check: %w", err)
	}
	slog.Info("Database connected")

	m := metrics.New()

	pub, err := newPublisher(cfg.NATS, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := pub.Close(); closeErr != nil {
			slog.Warn("Failed to close publisher", "error", closeErr)
		}
	}()

	// Sessions live as long as their channel.
	chatSessions := session.NewStore()
	smishingSessions := session.NewStore()
	chatChannels := newChannelRegistry("chat", chatSessions, m, logger)
	smishingChannels := newChannelRegistry("smishing", smishingSessions, m, logger)

	llmClient := llm.NewClient(llm.Config{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
		Timeout: cfg.LLM.Timeout,
		Retry:   llm.DefaultRetryConfig(),
	}, llm.WithMetrics(m), llm.WithLogger(logger))

	lookup := smartchoice.NewClient(cfg.SmartChoice.BaseURL, cfg.SmartChoice.APIKey, cfg.SmartChoice.Timeout,
		smartchoice.WithMetrics(m), smartchoice.WithLogger(logger))

	orchestrator := chat.NewOrchestrator(chat.Deps{
		Sessions:             chatSessions,
		Channels:             chatChannels,
		Extractor:            newExtractor(cfg.Chat.Extractor, llmClient, logger),
		Generator:            llmClient,
		Resolver:             smartchoice.NewResolver(lookup, cfg.Chat.Provider),
		Summarizer:           chat.NewSummarizer(llmClient),
		Templates:            repo,
		Publisher:            pub,
		Metrics:              m,
		Logger:               logger,
		RequireNonEmptySlots: cfg.Chat.RequireNonEmptySlots,
	})
	analyzer := chat.NewSmishingAnalyzer(chat.SmishingDeps{
		Sessions:  smishingSessions,
		Channels:  smishingChannels,
		Generator: llmClient,
		Metrics:   m,
		Logger:    logger,
	})

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.WindowDuration)
	defer limiter.Close()

	handler := api.NewHandler(api.Deps{
		Dialogue:  orchestrator,
		Analyzer:  analyzer,
		Templates: repo,
		Chat:      api.Channel{Registry: chatChannels, Sessions: chatSessions},
		Smishing:  api.Channel{Registry: smishingChannels, Sessions: smishingSessions},
		Serve: sse.ServeOptions{
			KeepaliveInterval: cfg.SSE.KeepaliveInterval,
			RetryDelay:        cfg.SSE.RetryDelay,
		},
		MaxBodySize: cfg.SSE.MaxRequestBodySize,
		Limiter:     limiter,
		Logger:      logger,
	})

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(allowedOrigins(cfg)))
	r.Handle("/metrics", m.Handler())
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(repo, identity.Options{
			Dev:             cfg.IsDevelopment(),
			TrustUserHeader: cfg.TrustUserHeader,
		}))
		handler.RegisterRoutes(r)
	})

	// SSE connections require long timeouts (no WriteTimeout).
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	// Bind the health port before anything starts serving so a failure here
	// leaves nothing running.
	var grpcLis net.Listener
	if cfg.GRPCPort != "" {
		grpcLis, err = net.Listen("tcp", ":"+cfg.GRPCPort)
		if err != nil {
			return fmt.Errorf("listen grpc: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	chatSweeper := sse.StartSweeper(ctx, chatChannels, cfg.SSE.SweepInterval, cfg.SSE.ChannelTimeout)
	smishingSweeper := sse.StartSweeper(ctx, smishingChannels, cfg.SSE.SweepInterval, cfg.SSE.ChannelTimeout)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if grpcLis != nil {
		hs := health.NewServer(repo, 15*time.Second, logger)
		g.Go(func() error { return hs.Serve(gctx, grpcLis) })
	}
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		// Channels first: SSE handlers return once their binding is released.
		closed := chatChannels.CloseAll() + smishingChannels.CloseAll()
		slog.Info("Closed push channels", "count", closed)

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	err = g.Wait()
	<-chatSweeper
	<-smishingSweeper
	orchestrator.Wait()
	analyzer.Wait()
	if err != nil {
		return err
	}
	slog.Info("Server stopped successfully")
	return nil
}
