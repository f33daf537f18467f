package orchestrator

import (
	"errors"
	"time"

	"github.com/fyrsmithlabs/inboxd/internal/rules"
	"github.com/fyrsmithlabs/inboxd/internal/schema"
)

// State is a step in the run lifecycle.
type State string

const (
	StateIdle                      State = "idle"
	StateAwaitingPrimaryExtraction State = "awaiting_primary_extraction"
	StatePrimaryResolved           State = "primary_resolved"
	StateAwaitingHandoffExtraction State = "awaiting_handoff_extraction"
	StateHandoffResolved           State = "handoff_resolved"
	StateDone                      State = "done"
)

// Stage identifies which gateway call a result or error belongs to.
type Stage string

const (
	StagePrimary Stage = "primary"
	StageHandoff Stage = "handoff"
)

// ErrorKind classifies a StepError.
type ErrorKind string

const (
	// ErrorValidation means the rule engine rejected the candidate record.
	ErrorValidation ErrorKind = "validation"

	// ErrorGateway means the gateway call failed.
	ErrorGateway ErrorKind = "gateway_failure"

	// ErrorNoStructuredOutput means the engine answered without a tool call.
	ErrorNoStructuredOutput ErrorKind = "no_structured_output"

	// ErrorUnexpectedSchema means the engine chose a schema the step did
	// not allow.
	ErrorUnexpectedSchema ErrorKind = "unexpected_schema"
)

// StepError is a recoverable failure recorded on the result.
type StepError struct {
	Stage   Stage       `json:"stage"`
	Kind    ErrorKind   `json:"kind"`
	Schema  schema.Kind `json:"schema,omitempty"`
	Field   string      `json:"field,omitempty"`
	Reason  string      `json:"reason,omitempty"`
	Message string      `json:"message"`
}

// StepAdjustment is a silent normalization applied during a stage.
type StepAdjustment struct {
	Stage Stage `json:"stage"`
	rules.Adjustment
}

// Result is the outcome of one run.
type Result struct {
	RunID     string `json:"runId"`
	SessionID string `json:"sessionId"`
	State     State  `json:"state"`

	// Entries are in invocation order.
	Entries     []schema.Entry   `json:"entries"`
	Errors      []StepError      `json:"errors"`
	Adjustments []StepAdjustment `json:"adjustments,omitempty"`

	HighPriorityCount int `json:"highPriorityCount"`
	// Redactions counts secrets removed from the input before extraction.
	Redactions int `json:"redactions,omitempty"`
}

// HasErrors reports whether any step failed.
func (r *Result) HasErrors() bool {
	return len(r.Errors) > 0
}

// Transition is a state change within a run.
type Transition struct {
	RunID string    `json:"runId"`
	From  State     `json:"from"`
	To    State     `json:"to"`
	At    time.Time `json:"at"`
}

// TransitionCallback receives every state change of a run.
type TransitionCallback func(Transition)

var (
	// ErrEmptyInput is returned for blank input.
	ErrEmptyInput = errors.New("input is empty")

	// ErrNilSession is returned when Run is called without a session.
	ErrNilSession = errors.New("session is required")
)
