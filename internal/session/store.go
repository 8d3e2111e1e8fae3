package session

import (
	"sync"

	"github.com/together-plan/chatplan/internal/shared"
)

const shardCount = 32

type shard struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// Store maps client identifiers to sessions.
type Store struct {
	shards [shardCount]*shard
}

// NewStore creates an empty store.
func NewStore() *Store {
	s := &Store{}
	for i := range s.shards {
		s.shards[i] = &shard{sessions: make(map[string]*Session)}
	}
	return s
}

func (s *Store) shardFor(userID string) *shard {
	return s.shards[shared.ShardIndex(userID, shardCount)]
}

// GetOrCreate returns userID's session, creating an empty one if needed.
func (s *Store) GetOrCreate(userID string) *Session {
	sh := s.shardFor(userID)
	sh.mu.RLock()
	sess, ok := sh.sessions[userID]
	sh.mu.RUnlock()
	if ok {
		return sess
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()
	if sess, ok := sh.sessions[userID]; ok {
		return sess
	}
	sess = newSession(userID)
	sh.sessions[userID] = sess
	return sess
}

// Get returns userID's session without creating one.
func (s *Store) Get(userID string) (*Session, bool) {
	sh := s.shardFor(userID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	sess, ok := sh.sessions[userID]
	return sess, ok
}

// Remove discards userID's session. Absent ids are a no-op.
func (s *Store) Remove(userID string) {
	sh := s.shardFor(userID)
	sh.mu.Lock()
	delete(sh.sessions, userID)
	sh.mu.Unlock()
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.sessions)
		sh.mu.RUnlock()
	}
	return n
}
