package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/inboxd/internal/orchestrator"
)

const (
	toolProcessInput  = "process_input"
	toolSessionStatus = "session_status"
	toolGetRules      = "get_rules"
)

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: toolProcessInput,
		Description: "Turn one unstructured input (a quick thought, an email, meeting notes) into structured " +
			"tasks and notes under the Minimalist Rules. Notes with a follow-up produce a second task entry.",
	}, s.processInput)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        toolSessionStatus,
		Description: "Report how much of a session's high-priority budget has been used",
	}, s.sessionStatus)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        toolGetRules,
		Description: "Return the Minimalist Rules that govern processing",
	}, s.getRules)
}

// instrument wraps a tool body with the active gauge and invocation metrics.
func (s *Server) instrument(ctx context.Context, tool string) func(error) {
	start := time.Now()
	s.metrics.IncrementActive(ctx, tool)
	return func(err error) {
		s.metrics.DecrementActive(ctx, tool)
		s.metrics.RecordInvocation(ctx, tool, time.Since(start), err)
	}
}

// ===== PROCESS INPUT =====

type processInputArgs struct {
	Input     string `json:"input" jsonschema:"Unstructured text to process"`
	SessionID string `json:"session_id,omitempty" jsonschema:"Session whose high-priority budget applies; omitted uses the server default session"`
}

type entryOutput struct {
	ToolUsed string         `json:"tool_used" jsonschema:"TaskCategorizer or NoteSynthesizer"`
	Payload  map[string]any `json:"payload" jsonschema:"Task or note fields"`
}

type stepErrorOutput struct {
	Stage   string `json:"stage" jsonschema:"primary or handoff"`
	Kind    string `json:"kind" jsonschema:"validation, gateway_failure, no_structured_output or unexpected_schema"`
	Field   string `json:"field,omitempty" jsonschema:"Offending field for validation errors"`
	Message string `json:"message" jsonschema:"Human readable description"`
}

type processInputOutput struct {
	RunID             string            `json:"run_id" jsonschema:"Run identifier"`
	SessionID         string            `json:"session_id" jsonschema:"Session the run was charged to"`
	Entries           []entryOutput     `json:"entries" jsonschema:"Validated entries in invocation order"`
	Errors            []stepErrorOutput `json:"errors" jsonschema:"Steps that failed"`
	HighPriorityCount int               `json:"high_priority_count" jsonschema:"High-priority tasks in the session after this run"`
}

func (s *Server) processInput(ctx context.Context, _ *mcp.CallToolRequest, args processInputArgs) (*mcp.CallToolResult, processInputOutput, error) {
	var toolErr error
	done := s.instrument(ctx, toolProcessInput)
	defer func() { done(toolErr) }()

	sess, err := s.sessions.get(args.SessionID)
	if err != nil {
		toolErr = err
		return nil, processInputOutput{}, err
	}

	res, err := s.orch.Run(ctx, args.Input, sess)
	if err != nil {
		if errors.Is(err, orchestrator.ErrEmptyInput) {
			toolErr = fmt.Errorf("invalid input: %w", err)
		} else {
			toolErr = fmt.Errorf("process failed: %w", err)
		}
		return nil, processInputOutput{}, toolErr
	}

	out, err := toProcessOutput(res)
	if err != nil {
		toolErr = err
		return nil, processInputOutput{}, err
	}

	s.logger.Debug(ctx, "processed input",
		zap.String("run_id", res.RunID),
		zap.Int("entries", len(out.Entries)),
		zap.Int("errors", len(out.Errors)))

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: summarize(out)},
		},
	}, out, nil
}

func toProcessOutput(res *orchestrator.Result) (processInputOutput, error) {
	out := processInputOutput{
		RunID:             res.RunID,
		SessionID:         res.SessionID,
		Entries:           make([]entryOutput, 0, len(res.Entries)),
		Errors:            make([]stepErrorOutput, 0, len(res.Errors)),
		HighPriorityCount: res.HighPriorityCount,
	}
	for _, e := range res.Entries {
		data, err := json.Marshal(e.Payload)
		if err != nil {
			return out, fmt.Errorf("encode entry: %w", err)
		}
		var payload map[string]any
		if err := json.Unmarshal(data, &payload); err != nil {
			return out, fmt.Errorf("decode entry: %w", err)
		}
		out.Entries = append(out.Entries, entryOutput{ToolUsed: string(e.ToolUsed), Payload: payload})
	}
	for _, se := range res.Errors {
		out.Errors = append(out.Errors, stepErrorOutput{
			Stage:   string(se.Stage),
			Kind:    string(se.Kind),
			Field:   se.Field,
			Message: se.Message,
		})
	}
	return out, nil
}

func summarize(out processInputOutput) string {
	text := fmt.Sprintf("%d entries, %d errors, %d high-priority in session %s",
		len(out.Entries), len(out.Errors), out.HighPriorityCount, out.SessionID)
	for _, e := range out.Entries {
		text += "\n- " + e.ToolUsed
		if label, ok := e.Payload["sourceLabel"].(string); ok {
			text += ": " + label
		} else if raw, ok := e.Payload["rawText"].(string); ok {
			text += ": " + raw
		}
	}
	return text
}

// ===== SESSION STATUS =====

type sessionStatusArgs struct {
	SessionID string `json:"session_id,omitempty" jsonschema:"Session to inspect; omitted means the default session"`
}

type sessionStatusOutput struct {
	SessionID         string `json:"session_id" jsonschema:"Session identifier"`
	HighPriorityCount int    `json:"high_priority_count" jsonschema:"High-priority tasks finalized so far"`
	Remaining         int    `json:"remaining" jsonschema:"High-priority slots left"`
}

func (s *Server) sessionStatus(ctx context.Context, _ *mcp.CallToolRequest, args sessionStatusArgs) (*mcp.CallToolResult, sessionStatusOutput, error) {
	var toolErr error
	done := s.instrument(ctx, toolSessionStatus)
	defer func() { done(toolErr) }()

	sess, ok := s.sessions.lookup(args.SessionID)
	if !ok {
		toolErr = fmt.Errorf("session %q not found", args.SessionID)
		return nil, sessionStatusOutput{}, toolErr
	}

	snap := sess.Snapshot()
	remaining := s.orch.Rules().MaxHighPriority - snap.HighPriorityCount
	if remaining < 0 {
		remaining = 0
	}
	return nil, sessionStatusOutput{
		SessionID:         snap.ID,
		HighPriorityCount: snap.HighPriorityCount,
		Remaining:         remaining,
	}, nil
}

// ===== RULES =====

type getRulesArgs struct{}

type getRulesOutput struct {
	MaxHighPriority   int      `json:"max_high_priority" jsonschema:"High-priority tasks allowed per session"`
	MaxSummaryBullets int      `json:"max_summary_bullets" jsonschema:"Summary bullets kept per note"`
	MaxConceptualTags int      `json:"max_conceptual_tags" jsonschema:"Conceptual tags kept per note"`
	ContextTags       []string `json:"context_tags" jsonschema:"Allowed task context tags"`
}

func (s *Server) getRules(ctx context.Context, _ *mcp.CallToolRequest, _ getRulesArgs) (*mcp.CallToolResult, getRulesOutput, error) {
	done := s.instrument(ctx, toolGetRules)
	defer done(nil)

	rs := s.orch.Rules()
	tags := make([]string, len(rs.ContextTags))
	for i, t := range rs.ContextTags {
		tags[i] = string(t)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: rs.Instructions()}},
	}, getRulesOutput{
		MaxHighPriority:   rs.MaxHighPriority,
		MaxSummaryBullets: rs.MaxSummaryBullets,
		MaxConceptualTags: rs.MaxConceptualTags,
		ContextTags:       tags,
	}, nil
}
