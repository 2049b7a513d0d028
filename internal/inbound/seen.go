package inbound

import (
	"sync"
	"time"
)

// Seen is a bounded set of reply IDs already stored on a conversation.
// Entries expire after ttl and the oldest entry is evicted once max is
// reached. It is safe for concurrent use.
type Seen struct {
	mu  sync.Mutex
	ttl time.Duration
	max int
	now func() time.Time
	at  map[string]time.Time
}

// NewSeen creates a set. now defaults to time.Now.
func NewSeen(ttl time.Duration, max int, now func() time.Time) *Seen {
	if now == nil {
		now = time.Now
	}
	return &Seen{ttl: ttl, max: max, now: now, at: make(map[string]time.Time)}
}

// Add records id and reports whether it was absent or expired.
func (s *Seen) Add(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if at, ok := s.at[id]; ok && now.Sub(at) <= s.ttl {
		return false
	}
	for k, at := range s.at {
		if now.Sub(at) > s.ttl {
			delete(s.at, k)
		}
	}
	for s.max > 0 && len(s.at) >= s.max {
		oldest, oldestAt := "", now
		for k, at := range s.at {
			if !at.After(oldestAt) {
				oldest, oldestAt = k, at
			}
		}
		delete(s.at, oldest)
	}
	s.at[id] = now
	return true
}

// Has reports whether id is present and unexpired.
func (s *Seen) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.at[id]
	return ok && s.now().Sub(at) <= s.ttl
}

// Forget removes id.
func (s *Seen) Forget(id string) {
	s.mu.Lock()
	delete(s.at, id)
	s.mu.Unlock()
}

// Len returns the number of entries, expired ones included.
func (s *Seen) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.at)
}
