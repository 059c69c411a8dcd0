package admin

import (
	"sync"
	"time"

	"github.com/JakeFAU/wii-build-monitor/internal/clock"
)

// DefaultSessionTTL bounds how long a pending edit waits for its value.
const DefaultSessionTTL = 10 * time.Minute

type pendingEdit struct {
	key     string
	expires time.Time
}

// Sessions remembers which setting each admin is editing.
type Sessions struct {
	mu    sync.Mutex
	ttl   time.Duration
	clock clock.Clock
	items map[int64]pendingEdit
}

// NewSessions creates an empty session table.
func NewSessions(ttl time.Duration, clk clock.Clock) *Sessions {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Sessions{ttl: ttl, clock: clk, items: make(map[int64]pendingEdit)}
}

// Start records that userID is about to send a value for key, replacing any
// previous edit.
func (s *Sessions) Start(userID int64, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[userID] = pendingEdit{key: key, expires: s.clock.Now().Add(s.ttl)}
}

// Pending returns the key userID is editing. Expired entries are dropped.
func (s *Sessions) Pending(userID int64) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	edit, ok := s.items[userID]
	if !ok {
		return "", false
	}
	if !s.clock.Now().Before(edit.expires) {
		delete(s.items, userID)
		return "", false
	}
	return edit.key, true
}

// Clear forgets the pending edit of userID.
func (s *Sessions) Clear(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, userID)
}

// Sweep drops every expired entry and returns how many were removed.
func (s *Sessions) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	removed := 0
	for id, edit := range s.items {
		if !now.Before(edit.expires) {
			delete(s.items, id)
			removed++
		}
	}
	return removed
}
