package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/inboxd/internal/rules"
	"github.com/fyrsmithlabs/inboxd/internal/schema"
	"github.com/fyrsmithlabs/inboxd/internal/session"
)

// Wednesday.
var fixedNow = time.Date(2024, time.May, 15, 9, 0, 0, 0, time.UTC)

func newTestHeuristic() *HeuristicGateway {
	return NewHeuristicGateway(WithClock(func() time.Time { return fixedNow }))
}

func TestHeuristic_SimpleTask(t *testing.T) {
	g := newTestHeuristic()
	req := NewRequest(rules.Minimalist(),
		"I need to finish the Q3 report for the client by Friday. It's a high priority for work.",
		schema.KindTask, schema.KindNote)

	out := g.Extract(context.Background(), req)

	require.Equal(t, OutcomeSchemaSelected, out.Kind)
	assert.Equal(t, schema.KindTask, out.Schema)
	assert.Equal(t, "TaskCategorizer", out.ToolName)
	assert.Equal(t, "high", out.Fields[schema.FieldPriority])
	assert.Equal(t, "#Work", out.Fields[schema.FieldContextTag])
	assert.Equal(t, "do", out.Fields[schema.FieldAction])
	assert.Equal(t, "2024-05-17", out.Fields[schema.FieldDueDate])
}

func TestHeuristic_NoteWithEmbeddedTask(t *testing.T) {
	g := newTestHeuristic()
	input := "Meeting summary from yesterday: We discussed the new marketing campaign. " +
		"The budget is tight this quarter. Scaling the team is on hold. " +
		"Follow up with Jane on the final budget, which is a high priority task for finance."

	out := g.Extract(context.Background(), NewRequest(rules.Minimalist(), input, schema.KindTask, schema.KindNote))

	require.Equal(t, OutcomeSchemaSelected, out.Kind)
	require.Equal(t, schema.KindNote, out.Schema)
	assert.Equal(t, "Meeting summary from yesterday", out.Fields[schema.FieldOriginalSource])
	assert.Equal(t,
		"Follow up with Jane on the final budget, which is a high priority task for finance",
		out.Fields[schema.FieldEmbeddedTask])

	bullets, ok := out.Fields[schema.FieldSummaryBullets].([]any)
	require.True(t, ok)
	assert.Equal(t, "We discussed the new marketing campaign", bullets[0])

	assert.Contains(t, out.Fields[schema.FieldConceptualTags], "Marketing")
	assert.Contains(t, out.Fields[schema.FieldConceptualTags], "Budgeting")
}

func TestHeuristic_HandoffPrompt(t *testing.T) {
	g := newTestHeuristic()
	prompt := rules.Minimalist().HandoffPrompt("Follow up with Jane on the final budget, which is a high priority task for finance")

	out := g.Extract(context.Background(), NewRequest(rules.Minimalist(), prompt, schema.KindTask))

	require.Equal(t, OutcomeSchemaSelected, out.Kind)
	require.Equal(t, schema.KindTask, out.Schema)
	assert.Equal(t, "Follow up with Jane on the final budget, which is a high priority task for finance",
		out.Fields[schema.FieldRawTaskText])
	assert.Equal(t, "high", out.Fields[schema.FieldPriority])
	assert.Equal(t, "#Finance", out.Fields[schema.FieldContextTag])
}

func TestHeuristic_OnlyNoteAllowed(t *testing.T) {
	out := newTestHeuristic().Extract(context.Background(),
		NewRequest(rules.Minimalist(), "Read a paper on RAG retrieval", schema.KindNote))

	require.Equal(t, OutcomeSchemaSelected, out.Kind)
	assert.Equal(t, schema.KindNote, out.Schema)
	assert.Equal(t, []any{"RAG Systems"}, out.Fields[schema.FieldConceptualTags])
	assert.NotContains(t, out.Fields, schema.FieldEmbeddedTask)
}

func TestHeuristic_EmptyAndNoSchemas(t *testing.T) {
	g := newTestHeuristic()

	out := g.Extract(context.Background(), NewRequest(rules.Minimalist(), "   "))
	assert.Equal(t, OutcomeNoStructuredOutput, out.Kind)

	out = g.Extract(context.Background(), NewRequest(rules.Minimalist(), "pay rent"))
	assert.Equal(t, OutcomeNoStructuredOutput, out.Kind)
}

func TestHeuristic_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := newTestHeuristic().Extract(ctx, NewRequest(rules.Minimalist(), "pay rent", schema.KindTask))
	require.Equal(t, OutcomeFailure, out.Kind)
	assert.Equal(t, ReasonTransport, out.Failure.Reason)
}

func TestHeuristic_TaskClassification(t *testing.T) {
	tests := []struct {
		input    string
		action   string
		priority string
		tag      string
		due      any
	}{
		{"Pay the electricity bill tomorrow", "do", "medium", "#Finance", "2024-05-16"},
		{"Ask Tom to book the dentist for mom", "delegate", "medium", "#Personal", nil},
		{"Read that tutorial on Go generics someday", "defer", "low", "#Learning", nil},
		{"Cancel the gym membership asap", "delete", "high", "#Personal", nil},
		{"Submit taxes by 2024-06-01", "do", "medium", "#Finance", "2024-06-01"},
		{"Call the plumber on Wednesday", "do", "medium", "#Work", "2024-05-22"},
	}

	g := newTestHeuristic()
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			out := g.Extract(context.Background(), NewRequest(rules.Minimalist(), tt.input, schema.KindTask, schema.KindNote))
			require.Equal(t, schema.KindTask, out.Schema)
			assert.Equal(t, tt.action, out.Fields[schema.FieldAction])
			assert.Equal(t, tt.priority, out.Fields[schema.FieldPriority])
			assert.Equal(t, tt.tag, out.Fields[schema.FieldContextTag])
			assert.Equal(t, tt.due, out.Fields[schema.FieldDueDate])
		})
	}
}

func TestHeuristic_OutputPassesRuleEngine(t *testing.T) {
	engine := rules.NewEngine(rules.Minimalist())
	g := newTestHeuristic()

	inputs := []string{
		"Email the client about the presentation",
		"Budget review: Costs rose this quarter. We need to cut spend. The team agreed on a freeze. Marketing will pause the campaign. Hiring is slowed.",
	}
	for _, in := range inputs {
		out := g.Extract(context.Background(), NewRequest(rules.Minimalist(), in, schema.KindTask, schema.KindNote))
		require.Equal(t, OutcomeSchemaSelected, out.Kind, in)

		norm, err := engine.Apply(out.Schema, out.Fields, session.New())
		require.NoError(t, err, in)
		assert.Equal(t, out.Schema, norm.Record.Kind())
	}
}
