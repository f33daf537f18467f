// Package gateway is the boundary between inboxd and the text-generation
// engine.
//
// A Gateway receives a prompt, the schemas the engine may choose from, and
// prior conversation turns, and reports exactly one Outcome: a schema
// selection with raw field values, free text, or a failure. Field values at
// this boundary are untyped; the rules package turns them into records.
//
// Backends:
//   - LLMGateway calls a langchaingo model with the schemas as function tools.
//   - HeuristicGateway classifies input offline with keyword rules.
//   - gatewaytest.Scripted replays canned outcomes in tests.
//
// No backend retries. WithTimeout bounds each call.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/inboxd/internal/rules"
	"github.com/fyrsmithlabs/inboxd/internal/schema"
)

// Gateway extracts a structured selection from a prompt.
type Gateway interface {
	Extract(ctx context.Context, req Request) Outcome
}

// Role is the speaker of a conversation turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Turn is one prior conversation message.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Request is a single extraction call.
type Request struct {
	Prompt         string
	AllowedSchemas []schema.Descriptor
	PriorTurns     []Turn
}

// Allows reports whether kind is among the allowed schemas.
func (r Request) Allows(kind schema.Kind) bool {
	for _, d := range r.AllowedSchemas {
		if d.Kind == kind {
			return true
		}
	}
	return false
}

// Preamble returns the fixed instruction and acknowledgment turn pair that
// makes every call rule-aware.
func Preamble(rs rules.RuleSet) []Turn {
	return []Turn{
		{Role: RoleUser, Text: rs.Instructions()},
		{Role: RoleModel, Text: rules.Acknowledgment},
	}
}

// NewRequest builds a request carrying the rule preamble.
func NewRequest(rs rules.RuleSet, prompt string, kinds ...schema.Kind) Request {
	return Request{
		Prompt:         prompt,
		AllowedSchemas: schema.Descriptors(kinds...),
		PriorTurns:     Preamble(rs),
	}
}

// OutcomeKind discriminates Outcome.
type OutcomeKind string

const (
	OutcomeSchemaSelected     OutcomeKind = "schema_selected"
	OutcomeNoStructuredOutput OutcomeKind = "no_structured_output"
	OutcomeFailure            OutcomeKind = "failure"
)

// Outcome is the result of one Extract call. Exactly one of the groups of
// fields is meaningful, selected by Kind.
type Outcome struct {
	Kind OutcomeKind

	// Set for OutcomeSchemaSelected.
	Schema   schema.Kind
	ToolName string
	Fields   map[string]any

	// Set for OutcomeNoStructuredOutput.
	Text string

	// Set for OutcomeFailure.
	Failure *Failure
}

// SchemaSelected reports the engine choosing kind with raw fields.
func SchemaSelected(kind schema.Kind, toolName string, fields map[string]any) Outcome {
	if toolName == "" {
		toolName = string(kind.Tool())
	}
	return Outcome{Kind: OutcomeSchemaSelected, Schema: kind, ToolName: toolName, Fields: fields}
}

// NoStructuredOutput reports free text without a tool call.
func NoStructuredOutput(text string) Outcome {
	return Outcome{Kind: OutcomeNoStructuredOutput, Text: text}
}

// Failed reports a failed call.
func Failed(reason FailureReason, err error) Outcome {
	return Outcome{Kind: OutcomeFailure, Failure: &Failure{Reason: reason, Err: err}}
}

// FailureReason classifies a gateway failure.
type FailureReason string

const (
	ReasonTimeout           FailureReason = "timeout"
	ReasonTransport         FailureReason = "transport"
	ReasonMalformedResponse FailureReason = "malformed_response"
	ReasonUnknownTool       FailureReason = "unknown_tool"
)

// Failure is a failed gateway call.
type Failure struct {
	Reason FailureReason
	Err    error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("gateway %s", f.Reason)
	}
	return fmt.Sprintf("gateway %s: %v", f.Reason, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// ErrUnknownTool is wrapped by failures where the engine named a tool that
// maps to no known schema.
var ErrUnknownTool = errors.New("unknown tool selected")

// classifyError maps a backend error onto a failure reason.
func classifyError(ctx context.Context, err error) FailureReason {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ReasonTimeout
	}
	return ReasonTransport
}
