package chat

import (
	"context"
	"log/slog"
	"strings"

	"github.com/together-plan/chatplan/internal/domain"
	"github.com/together-plan/chatplan/internal/metrics"
	"github.com/together-plan/chatplan/internal/session"
)

// SmishingDeps are the collaborators of a SmishingAnalyzer. Sessions and
// Channels must not be shared with the plan dialogue.
type SmishingDeps struct {
	Sessions  *session.Store
	Channels  Channels
	Generator Streamer
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// SmishingAnalyzer streams an assessment of a pasted text message.
type SmishingAnalyzer struct {
	deps   SmishingDeps
	run    *runner
	logger *slog.Logger
}

// NewSmishingAnalyzer wires an analyzer.
func NewSmishingAnalyzer(deps SmishingDeps) *SmishingAnalyzer {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	logger := deps.Logger.With("component", "smishing")
	return &SmishingAnalyzer{
		deps: deps,
		run: &runner{
			channels: deps.Channels,
			metrics:  deps.Metrics,
			logger:   logger,
		},
		logger: logger,
	}
}

// HandleMessage queues an analysis of text.
func (a *SmishingAnalyzer) HandleMessage(ctx context.Context, userID, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	bound, ok := a.deps.Channels.Context(userID)
	if !ok {
		return ErrNoChannel
	}
	sess := a.deps.Sessions.GetOrCreate(userID)
	a.logger.InfoContext(ctx, "Smishing message accepted", "user_id", userID, "length", len(text))
	a.run.start(bound, userID, sess, func(c *cycle) { a.analyze(c, text) })
	return nil
}

// Wait blocks until all queued analyses have finished.
func (a *SmishingAnalyzer) Wait() {
	a.run.wait()
}

func (a *SmishingAnalyzer) analyze(c *cycle, text string) {
	c.sess.AppendMessage(domain.SenderUser, text)
	c.push(domain.EventQuestion, text)
	c.enter(StateAnalyzing)

	reply, err := relayStream(a.deps.Generator.Stream(c.ctx, smishingMessages(text)), func(chunk string) {
		c.push(domain.EventStreamChat, chunk)
	})
	if err != nil {
		c.logger.Error("Smishing analysis failed", "error", err)
		c.fail(msgAnalysisFailure)
		return
	}
	if reply != "" {
		c.sess.AppendMessage(domain.SenderAssistant, reply)
	}
	c.outcome = metrics.OutcomeAnalyzed
}
