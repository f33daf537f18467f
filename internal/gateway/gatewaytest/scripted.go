// Package gatewaytest provides gateway doubles for tests.
package gatewaytest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fyrsmithlabs/inboxd/internal/gateway"
)

// Scripted replays outcomes in order and records every request it receives.
type Scripted struct {
	mu       sync.Mutex
	index    int
	outcomes []gateway.Outcome
	requests []gateway.Request

	// Delay, when set, blocks each call until it elapses or ctx is done.
	Delay time.Duration
}

var _ gateway.Gateway = (*Scripted)(nil)

// NewScripted creates a double that returns outcomes one per call.
func NewScripted(outcomes ...gateway.Outcome) *Scripted {
	cloned := make([]gateway.Outcome, len(outcomes))
	copy(cloned, outcomes)
	return &Scripted{outcomes: cloned}
}

// Extract returns the next scripted outcome. An exhausted script yields a
// transport failure.
func (s *Scripted) Extract(ctx context.Context, req gateway.Request) gateway.Outcome {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	delay := s.Delay
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return gateway.Failed(gateway.ReasonTimeout, ctx.Err())
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index >= len(s.outcomes) {
		return gateway.Failed(gateway.ReasonTransport, fmt.Errorf("script exhausted at step %d", s.index+1))
	}
	out := s.outcomes[s.index]
	s.index++
	return out
}

// Requests returns a copy of the requests received so far.
func (s *Scripted) Requests() []gateway.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]gateway.Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// Calls returns the number of Extract calls.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// Func adapts a function to gateway.Gateway.
type Func func(ctx context.Context, req gateway.Request) gateway.Outcome

// Extract calls f.
func (f Func) Extract(ctx context.Context, req gateway.Request) gateway.Outcome {
	return f(ctx, req)
}
