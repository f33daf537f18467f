// Package session holds the mutable state scoped to one orchestration run.
package session

import (
	"regexp"
	"sync"

	"github.com/google/uuid"
)

// State is the high-priority budget for one session. A State is normally
// owned by a single run; the mutex only matters when a caller deliberately
// shares one across runs.
type State struct {
	id string

	mu                sync.Mutex
	highPriorityCount int
}

// Option configures a State.
type Option func(*State)

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,128}$`)

// ValidID reports whether id can be used as a session ID: 1 to 128
// characters of letters, digits, hyphen or underscore.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// WithID sets the session ID instead of generating one. Invalid IDs are
// ignored and a random one is kept.
func WithID(id string) Option {
	return func(s *State) {
		if ValidID(id) {
			s.id = id
		}
	}
}

// WithHighPriorityCount presets the counter. Negative values are clamped to 0.
func WithHighPriorityCount(n int) Option {
	return func(s *State) {
		if n < 0 {
			n = 0
		}
		s.highPriorityCount = n
	}
}

// New creates a fresh session with a random ID.
func New(opts ...Option) *State {
	s := &State{id: uuid.NewString()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID returns the session identifier.
func (s *State) ID() string {
	return s.id
}

// HighPriorityCount returns the number of tasks finalized as high.
func (s *State) HighPriorityCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.highPriorityCount
}

// ReserveHighPriority consumes one unit of the budget if fewer than limit
// have been used and reports whether it did.
func (s *State) ReserveHighPriority(limit int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.highPriorityCount >= limit {
		return false
	}
	s.highPriorityCount++
	return true
}

// Snapshot is a point-in-time copy of a State.
type Snapshot struct {
	ID                string `json:"id"`
	HighPriorityCount int    `json:"highPriorityCount"`
}

// Snapshot returns a copy of the current state.
func (s *State) Snapshot() Snapshot {
	return Snapshot{ID: s.id, HighPriorityCount: s.HighPriorityCount()}
}
