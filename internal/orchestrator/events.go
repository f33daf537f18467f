package orchestrator

import (
	"context"
	"time"

	"github.com/fyrsmithlabs/inboxd/internal/schema"
)

// EventType names a run lifecycle event.
type EventType string

const (
	EventStarted    EventType = "started"
	EventTransition EventType = "transition"
	EventEntry      EventType = "entry"
	EventError      EventType = "error"
	EventCompleted  EventType = "completed"
)

// Event is published for each step of a run.
type Event struct {
	Type      EventType `json:"type"`
	RunID     string    `json:"runId"`
	SessionID string    `json:"sessionId"`
	At        time.Time `json:"at"`

	From  State `json:"from,omitempty"`
	To    State `json:"to,omitempty"`
	Stage Stage `json:"stage,omitempty"`

	Entry  *schema.Entry `json:"entry,omitempty"`
	Error  *StepError    `json:"error,omitempty"`
	Result *Result       `json:"result,omitempty"`
}

// EventPublisher delivers run events. Publish errors are logged and never
// affect the run.
type EventPublisher interface {
	Publish(ctx context.Context, ev Event) error
}
