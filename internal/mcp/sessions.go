package mcp

import (
	"fmt"
	"sync"

	"github.com/fyrsmithlabs/inboxd/internal/session"
)

// maxSessions bounds the registry; the oldest session is evicted first.
const maxSessions = 1024

// sessionRegistry maps caller supplied IDs to session state.
type sessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*session.State
	order    []string
	fallback *session.State
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{
		sessions: make(map[string]*session.State),
		fallback: session.New(),
	}
}

// get returns the session for id, creating it on first use. An empty id
// yields the default session.
func (r *sessionRegistry) get(id string) (*session.State, error) {
	if id == "" {
		return r.fallback, nil
	}
	if !session.ValidID(id) {
		return nil, fmt.Errorf("invalid session_id %q: must match [a-zA-Z0-9_-]{1,128}", id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[id]; ok {
		return s, nil
	}
	if len(r.order) >= maxSessions {
		oldest := r.order[0]
		r.order = r.order[1:]
		delete(r.sessions, oldest)
	}
	s := session.New(session.WithID(id))
	r.sessions[id] = s
	r.order = append(r.order, id)
	return s, nil
}

// lookup returns an existing session without creating one.
func (r *sessionRegistry) lookup(id string) (*session.State, bool) {
	if id == "" {
		return r.fallback, true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}
