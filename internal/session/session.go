// Package session keeps the per-client conversation state in memory.
package session

import (
	"sync"
	"time"

	"github.com/together-plan/chatplan/internal/domain"
)

// Session is one client's dialogue state. All methods are safe for
// concurrent use; readers receive copies.
type Session struct {
	UserID    string
	CreatedAt time.Time

	mu             sync.Mutex
	slots          domain.SlotMap
	messages       []domain.Message
	recommendation *domain.Recommendation

	// tail is closed when the most recently reserved turn finishes.
	tail <-chan struct{}
}

func newSession(userID string) *Session {
	return &Session{
		UserID:    userID,
		CreatedAt: time.Now(),
		slots:     make(domain.SlotMap),
		tail:      closedChan,
	}
}

var closedChan = func() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}()

// AppendMessage records one conversation entry.
func (s *Session) AppendMessage(sender, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, domain.Message{
		Sender:    sender,
		Content:   content,
		CreatedAt: time.Now(),
	})
}

// Messages returns a copy of the conversation log in insertion order.
func (s *Session) Messages() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// MergeSlots overwrites the given keys and returns the merged snapshot.
func (s *Session) MergeSlots(update domain.SlotMap) domain.SlotMap {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range update {
		s.slots[k] = v
	}
	return s.slots.Clone()
}

// Slots returns a snapshot of the collected slots.
func (s *Session) Slots() domain.SlotMap {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slots.Clone()
}

// SetRecommendation caches the most recent recommendation.
func (s *Session) SetRecommendation(r domain.Recommendation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recommendation = &r
}

// Recommendation returns the cached recommendation, if any.
func (s *Session) Recommendation() (domain.Recommendation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recommendation == nil {
		return domain.Recommendation{}, false
	}
	return *s.recommendation, true
}

// Turn is one reserved slot in a session's cycle queue.
type Turn struct {
	ready <-chan struct{}
	done  chan struct{}
	once  sync.Once
}

// Ready is closed once every earlier turn has finished.
func (t *Turn) Ready() <-chan struct{} { return t.ready }

// Done releases the turn. Safe to call more than once, and before Ready
// fires: the next turn still waits for this one's predecessors.
func (t *Turn) Done() {
	t.once.Do(func() {
		select {
		case <-t.ready:
			close(t.done)
		default:
			go func() {
				<-t.ready
				close(t.done)
			}()
		}
	})
}

// NextTurn reserves the next cycle. Turns become ready in reservation order,
// so cycles for one session never overlap.
func (s *Session) NextTurn() *Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &Turn{ready: s.tail, done: make(chan struct{})}
	s.tail = t.done
	return t
}
