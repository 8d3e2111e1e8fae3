package chat

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/together-plan/chatplan/internal/domain"
	"github.com/together-plan/chatplan/internal/metrics"
	"github.com/together-plan/chatplan/internal/session"
)

// runner executes cycles off the request goroutine, one at a time per session.
type runner struct {
	channels Channels
	metrics  *metrics.Metrics
	logger   *slog.Logger
	wg       sync.WaitGroup
}

// start reserves the session's next turn and runs body once it is ready.
// Every cycle that starts ends with exactly one done event.
func (r *runner) start(bound context.Context, userID string, sess *session.Session, body func(*cycle)) {
	turn := sess.NextTurn()
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer turn.Done()

		select {
		case <-turn.Ready():
		case <-bound.Done():
			return
		}
		if bound.Err() != nil {
			return
		}

		c := &cycle{
			ctx:      bound,
			userID:   userID,
			sess:     sess,
			state:    StateConnected,
			channels: r.channels,
			logger:   r.logger.With("user_id", userID, "cycle_id", uuid.NewString()),
		}
		defer func() {
			if p := recover(); p != nil {
				c.logger.Error("Cycle panicked", "panic", p)
				c.fail(msgAIFailure)
			}
			c.finish()
			r.metrics.CycleFinished(c.outcome)
		}()
		body(c)
	}()
}

// wait blocks until every started cycle has finished.
func (r *runner) wait() {
	r.wg.Wait()
}

// cycle is the processing of one request from receipt to its done event.
type cycle struct {
	ctx      context.Context
	userID   string
	sess     *session.Session
	state    State
	outcome  string
	channels Channels
	logger   *slog.Logger
}

func (c *cycle) push(event string, data any) {
	c.channels.PushBound(c.ctx, c.userID, event, data)
}

func (c *cycle) enter(next State) {
	if !c.state.CanTransition(next) {
		c.logger.Error("Illegal dialogue transition", "from", c.state.String(), "to", next.String())
		return
	}
	c.logger.Debug("Dialogue transition", "from", c.state.String(), "to", next.String())
	c.state = next
}

// fail reports a user-visible error. The channel stays open.
func (c *cycle) fail(message string) {
	c.push(domain.EventError, message)
	c.outcome = metrics.OutcomeFailed
}

// finish is the single exit of a cycle.
func (c *cycle) finish() {
	if c.state != StateConnected {
		c.enter(StateConnected)
	}
	if c.outcome == "" {
		c.outcome = metrics.OutcomeFailed
	}
	c.push(domain.EventDone, donePayload)
}
