// Package sse owns the outbound push channels, one per client identifier.
package sse

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/together-plan/chatplan/internal/domain"
	"github.com/together-plan/chatplan/internal/metrics"
	"github.com/together-plan/chatplan/internal/shared"
)

const shardCount = 32

// ErrClosed is returned by a Handle after it has been closed.
var ErrClosed = errors.New("channel closed")

// Handle is one outbound push transport.
type Handle interface {
	// Send delivers a single named event. Implementations serialize writes.
	Send(event string, data any) error
	// Close releases the transport. Safe to call more than once.
	Close() error
	// Done is closed once the handle has been closed.
	Done() <-chan struct{}
}

// CloseCallback runs once per removed binding, after its handle is released.
type CloseCallback func(clientID string)

type binding struct {
	handle       Handle
	createdAt    time.Time
	lastActivity atomic.Int64
	ctx          context.Context
	cancel       context.CancelFunc
}

type shard struct {
	mu       sync.RWMutex
	bindings map[string]*binding
}

// Registry maps client identifiers to their single live push channel.
// Entries are sharded so independent clients do not contend on one lock.
type Registry struct {
	name    string
	shards  [shardCount]*shard
	onClose CloseCallback
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithCloseCallback sets the callback run after a binding is torn down.
func WithCloseCallback(fn CloseCallback) Option {
	return func(r *Registry) { r.onClose = fn }
}

// WithMetrics attaches collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRegistry creates an empty registry. name labels logs and metrics.
func NewRegistry(name string, opts ...Option) *Registry {
	r := &Registry{
		name:   name,
		logger: slog.Default(),
	}
	for i := range r.shards {
		r.shards[i] = &shard{bindings: make(map[string]*binding)}
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("channel", name)
	return r
}

func (r *Registry) shardFor(clientID string) *shard {
	return r.shards[shared.ShardIndex(clientID, shardCount)]
}

// Open binds h to clientID. Any existing binding is swapped out and torn down
// before h receives its first event.
// The returned context is cancelled when the new binding is closed.
// A "connected" event is sent best-effort.
func (r *Registry) Open(clientID string, h Handle) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now()
	b := &binding{
		handle:    h,
		createdAt: now,
		ctx:       ctx,
		cancel:    cancel,
	}
	b.lastActivity.Store(now.UnixNano())

	s := r.shardFor(clientID)
	s.mu.Lock()
	old := s.bindings[clientID]
	s.bindings[clientID] = b
	s.mu.Unlock()

	if old != nil {
		r.logger.Info("Replacing existing channel", "client_id", clientID)
		r.release(clientID, old)
	}
	r.metrics.ChannelOpened(r.name)

	if err := h.Send(domain.EventConnected, domain.EventConnected); err != nil {
		r.logger.Warn("Failed to send connected event", "client_id", clientID, "error", err)
	} else {
		r.metrics.EventPushed(r.name, domain.EventConnected)
	}

	r.logger.Info("Channel opened", "client_id", clientID)
	return ctx
}

// Push delivers one event to clientID's channel. It never fails: an absent
// binding drops the event, and a transport failure tears the binding down.
func (r *Registry) Push(clientID, event string, data any) {
	r.push(nil, clientID, event, data)
}

// PushBound is Push restricted to the binding whose context is ctx. Events
// produced for a channel that has since been closed or replaced are dropped.
func (r *Registry) PushBound(ctx context.Context, clientID, event string, data any) {
	r.push(ctx, clientID, event, data)
}

func (r *Registry) push(bound context.Context, clientID, event string, data any) {
	s := r.shardFor(clientID)
	s.mu.RLock()
	b := s.bindings[clientID]
	s.mu.RUnlock()

	if b == nil || (bound != nil && b.ctx != bound) {
		r.metrics.EventDropped(r.name, "unbound")
		r.logger.Debug("Dropping event for unbound client", "client_id", clientID, "event", event)
		return
	}

	if err := b.handle.Send(event, data); err != nil {
		r.metrics.EventDropped(r.name, "transport")
		r.logger.Warn("Failed to push event, closing channel", "client_id", clientID, "event", event, "error", err)
		r.closeBinding(clientID, b)
		return
	}
	b.lastActivity.Store(time.Now().UnixNano())
	r.metrics.EventPushed(r.name, event)
}

// Close tears down clientID's binding if present.
func (r *Registry) Close(clientID string) {
	s := r.shardFor(clientID)
	s.mu.Lock()
	b, exists := s.bindings[clientID]
	if exists {
		delete(s.bindings, clientID)
	}
	s.mu.Unlock()

	if exists {
		r.release(clientID, b)
	}
}

// CloseHandle tears down clientID's binding only if it still wraps h.
// Transports call this when they finish, so a stale handle never removes its
// replacement.
func (r *Registry) CloseHandle(clientID string, h Handle) {
	s := r.shardFor(clientID)
	s.mu.Lock()
	b, exists := s.bindings[clientID]
	if !exists || b.handle != h {
		s.mu.Unlock()
		return
	}
	delete(s.bindings, clientID)
	s.mu.Unlock()

	r.release(clientID, b)
}

func (r *Registry) closeBinding(clientID string, b *binding) {
	s := r.shardFor(clientID)
	s.mu.Lock()
	if s.bindings[clientID] != b {
		s.mu.Unlock()
		return
	}
	delete(s.bindings, clientID)
	s.mu.Unlock()

	r.release(clientID, b)
}

// release runs exactly once per binding: only the caller that removed it from
// the map gets here.
func (r *Registry) release(clientID string, b *binding) {
	b.cancel()
	if err := b.handle.Close(); err != nil {
		r.logger.Debug("Suppressed error closing channel", "client_id", clientID, "error", err)
	}
	r.metrics.ChannelClosed(r.name)
	r.logger.Info("Channel closed", "client_id", clientID)
	if r.onClose != nil {
		r.onClose(clientID)
	}
}

// Context returns the cancellation context of clientID's binding.
// ok is false when no channel is bound.
func (r *Registry) Context(clientID string) (ctx context.Context, ok bool) {
	s := r.shardFor(clientID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, exists := s.bindings[clientID]
	if !exists {
		return nil, false
	}
	return b.ctx, true
}

// Has reports whether clientID has a live binding.
func (r *Registry) Has(clientID string) bool {
	_, ok := r.Context(clientID)
	return ok
}

// BindingInfo is the bookkeeping kept per binding.
type BindingInfo struct {
	CreatedAt    time.Time
	LastActivity time.Time
}

// Info returns clientID's binding timestamps.
func (r *Registry) Info(clientID string) (BindingInfo, bool) {
	s := r.shardFor(clientID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, exists := s.bindings[clientID]
	if !exists {
		return BindingInfo{}, false
	}
	return BindingInfo{
		CreatedAt:    b.createdAt,
		LastActivity: time.Unix(0, b.lastActivity.Load()),
	}, true
}

// Len returns the number of live bindings.
func (r *Registry) Len() int {
	n := 0
	for _, s := range r.shards {
		s.mu.RLock()
		n += len(s.bindings)
		s.mu.RUnlock()
	}
	return n
}

// CloseOlderThan closes every binding created before cutoff and returns how
// many were closed.
func (r *Registry) CloseOlderThan(cutoff time.Time) int {
	closed := 0
	for _, s := range r.shards {
		s.mu.RLock()
		var expired []string
		for id, b := range s.bindings {
			if b.createdAt.Before(cutoff) {
				expired = append(expired, id)
			}
		}
		s.mu.RUnlock()

		for _, id := range expired {
			s.mu.Lock()
			b, exists := s.bindings[id]
			if !exists || !b.createdAt.Before(cutoff) {
				s.mu.Unlock()
				continue
			}
			delete(s.bindings, id)
			s.mu.Unlock()
			r.release(id, b)
			closed++
		}
	}
	return closed
}

// CloseAll tears down every binding. Used on shutdown.
func (r *Registry) CloseAll() int {
	return r.CloseOlderThan(time.Now().Add(time.Minute))
}
