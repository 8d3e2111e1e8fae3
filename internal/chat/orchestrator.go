package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/together-plan/chatplan/internal/domain"
	"github.com/together-plan/chatplan/internal/metrics"
	"github.com/together-plan/chatplan/internal/session"
	"github.com/together-plan/chatplan/internal/slots"
)

const sideEffectTimeout = 10 * time.Second

// Deps are the collaborators of an Orchestrator. Templates and Publisher
// may be nil.
type Deps struct {
	Sessions   *session.Store
	Channels   Channels
	Extractor  slots.Extractor
	Generator  Streamer
	Resolver   PlanResolver
	Summarizer *Summarizer
	Templates  TemplateSaver
	Publisher  Publisher
	Metrics    *metrics.Metrics
	Logger     *slog.Logger

	// RequireNonEmptySlots treats a slot holding "" as still missing.
	RequireNonEmptySlots bool
}

// RecommendationEvent is published after a plan is resolved.
type RecommendationEvent struct {
	UserID         string                `json:"userId"`
	Slots          domain.SlotMap        `json:"slots"`
	Recommendation domain.Recommendation `json:"recommendation"`
	At             time.Time             `json:"at"`
}

// SummaryEvent is published after a summary is delivered.
type SummaryEvent struct {
	UserID   string         `json:"userId"`
	PlanName string         `json:"planName"`
	Summary  domain.Summary `json:"summary"`
	At       time.Time      `json:"at"`
}

// Orchestrator drives the plan-recommendation dialogue. Each utterance or
// summary request becomes one cycle that runs asynchronously and ends with
// exactly one done event on the caller's channel.
type Orchestrator struct {
	deps   Deps
	run    *runner
	logger *slog.Logger
}

// NewOrchestrator wires an orchestrator.
func NewOrchestrator(deps Deps) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	logger := deps.Logger.With("component", "orchestrator")
	return &Orchestrator{
		deps: deps,
		run: &runner{
			channels: deps.Channels,
			metrics:  deps.Metrics,
			logger:   logger,
		},
		logger: logger,
	}
}

// HandleUtterance queues a cycle for text. It returns once the cycle is
// scheduled; all results arrive on the user's channel.
func (o *Orchestrator) HandleUtterance(ctx context.Context, userID, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	bound, ok := o.deps.Channels.Context(userID)
	if !ok {
		return ErrNoChannel
	}
	sess := o.deps.Sessions.GetOrCreate(userID)
	o.logger.InfoContext(ctx, "Utterance accepted", "user_id", userID, "length", len(text))
	o.run.start(bound, userID, sess, func(c *cycle) { o.converse(c, text) })
	return nil
}

// RequestSummary queues a summary cycle for the user's cached recommendation.
func (o *Orchestrator) RequestSummary(ctx context.Context, userID string) error {
	bound, ok := o.deps.Channels.Context(userID)
	if !ok {
		return ErrNoChannel
	}
	sess := o.deps.Sessions.GetOrCreate(userID)
	o.logger.InfoContext(ctx, "Summary requested", "user_id", userID)
	o.run.start(bound, userID, sess, o.summarize)
	return nil
}

// Wait blocks until all queued cycles have finished.
func (o *Orchestrator) Wait() {
	o.run.wait()
}

func (o *Orchestrator) converse(c *cycle, text string) {
	c.sess.AppendMessage(domain.SenderUser, text)
	c.push(domain.EventQuestion, text)

	update := o.deps.Extractor.Extract(c.ctx, text)
	merged := c.sess.MergeSlots(update)
	missing := merged.Missing(o.deps.RequireNonEmptySlots)
	c.logger.Debug("Slots merged", "extracted", len(update), "missing", len(missing))

	if len(missing) > 0 {
		o.askForSlots(c, merged, missing)
		return
	}
	o.resolve(c, merged)
}

func (o *Orchestrator) askForSlots(c *cycle, known domain.SlotMap, missing []domain.Slot) {
	c.enter(StateAwaitingSlots)

	msgs := slotPrompt(known, missing, c.sess.Messages())
	reply, err := relayStream(o.deps.Generator.Stream(c.ctx, msgs), func(chunk string) {
		c.push(domain.EventStreamChat, chunk)
	})
	if err != nil {
		c.logger.Error("Clarifying question failed", "error", err)
		c.fail(msgAIFailure)
		return
	}
	if reply != "" {
		c.sess.AppendMessage(domain.SenderAssistant, reply)
	}
	c.outcome = metrics.OutcomePrompted
}

func (o *Orchestrator) resolve(c *cycle, slotMap domain.SlotMap) {
	c.push(domain.EventStreamChat, msgTransition)
	c.enter(StateResolving)

	rec, err := o.deps.Resolver.Resolve(c.ctx, slotMap)
	switch {
	case errors.Is(err, domain.ErrPlanNotFound):
		c.logger.Info("No plan found", "provider", o.deps.Resolver.Provider())
		c.push(domain.EventStreamChat, fmt.Sprintf(msgNotFoundFormat, o.deps.Resolver.Provider()))
		c.outcome = metrics.OutcomeNotFound
		return
	case err != nil:
		c.logger.Error("Plan resolution failed", "error", err)
		c.fail(msgResolveFailure)
		return
	}

	c.sess.SetRecommendation(rec)
	c.push(domain.EventRecommendResult, []domain.Recommendation{rec})
	c.outcome = metrics.OutcomeRecommended
	c.logger.Info("Plan recommended", "plan_name", rec.PlanName, "price", rec.Price)

	o.publish(c, SubjectRecommendation, RecommendationEvent{
		UserID:         c.userID,
		Slots:          slotMap,
		Recommendation: rec,
		At:             time.Now(),
	})
}

func (o *Orchestrator) summarize(c *cycle) {
	rec, ok := c.sess.Recommendation()
	if !ok {
		c.push(domain.EventStreamChat, msgNoRecommendation)
		c.outcome = metrics.OutcomeNoSummary
		return
	}

	c.enter(StateSummarizing)
	summary, err := o.deps.Summarizer.Summarize(c.ctx, rec)
	if err != nil {
		c.logger.Error("Summary generation failed", "error", err)
		c.fail(msgSummaryFailure)
		return
	}
	c.push(domain.EventSummary, summary)
	c.outcome = metrics.OutcomeSummarized

	o.saveTemplate(c, rec, summary)
	o.publish(c, SubjectSummary, SummaryEvent{
		UserID:   c.userID,
		PlanName: rec.PlanName,
		Summary:  summary,
		At:       time.Now(),
	})
}

// saveTemplate persists a delivered summary. It outlives the channel.
func (o *Orchestrator) saveTemplate(c *cycle, rec domain.Recommendation, summary domain.Summary) {
	if o.deps.Templates == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.ctx), sideEffectTimeout)
	defer cancel()

	t := &domain.Template{
		UserID:   c.userID,
		Title:    summary.Title,
		Content:  summary.Content,
		PlanName: rec.PlanName,
	}
	if err := o.deps.Templates.SaveTemplate(ctx, t); err != nil {
		c.logger.Error("Failed to save summary template", "error", err)
		return
	}
	c.logger.Info("Summary template saved", "template_id", t.ID)
}

func (o *Orchestrator) publish(c *cycle, subject string, payload any) {
	if o.deps.Publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.ctx), sideEffectTimeout)
	defer cancel()
	if err := o.deps.Publisher.Publish(ctx, subject, payload); err != nil {
		c.logger.Warn("Failed to publish cycle outcome", "subject", subject, "error", err)
	}
}
