package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/inboxd/internal/gateway"
	"github.com/fyrsmithlabs/inboxd/internal/gateway/gatewaytest"
	"github.com/fyrsmithlabs/inboxd/internal/logging"
	"github.com/fyrsmithlabs/inboxd/internal/rules"
	"github.com/fyrsmithlabs/inboxd/internal/schema"
	"github.com/fyrsmithlabs/inboxd/internal/secrets"
	"github.com/fyrsmithlabs/inboxd/internal/session"
	"github.com/fyrsmithlabs/inboxd/internal/telemetry"
)

// MockPublisher is a mock implementation of EventPublisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, ev Event) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

// recordingPublisher keeps every event in order.
type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) types() []EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]EventType, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

const (
	scenarioATask = "I need to finish the Q3 report for the client by Friday. It's a high priority for work."
	scenarioBNote = "Meeting summary from yesterday: We discussed the new marketing campaign. " +
		"The budget is tight this quarter. Scaling the team is on hold. " +
		"Follow up with Jane on the final budget, which is a high priority task for finance."
	embeddedText = "Follow up with Jane on the final budget, which is a high priority task for finance"
)

func taskFields(priority, tag string) map[string]any {
	return map[string]any{
		schema.FieldRawTaskText: "Finish the Q3 report",
		schema.FieldAction:      "do",
		schema.FieldPriority:    priority,
		schema.FieldContextTag:  tag,
		schema.FieldDueDate:     "2024-05-17",
	}
}

func noteFields(embedded any) map[string]any {
	f := map[string]any{
		schema.FieldOriginalSource: "Meeting summary from yesterday",
		schema.FieldSummaryBullets: []any{"Discussed the campaign", "Budget is tight"},
		schema.FieldConceptualTags: []any{"Marketing", "Budgeting"},
	}
	if embedded != nil {
		f[schema.FieldEmbeddedTask] = embedded
	}
	return f
}

func selected(kind schema.Kind, fields map[string]any) gateway.Outcome {
	return gateway.SchemaSelected(kind, "", fields)
}

func fixedClock() func() time.Time {
	at := time.Date(2024, time.May, 15, 9, 0, 0, 0, time.UTC)
	return func() time.Time { return at }
}

func TestRun_ScenarioA_SimpleTask(t *testing.T) {
	gw := gatewaytest.NewScripted(selected(schema.KindTask, taskFields("high", "#Work")))
	o := New(gw)
	sess := session.New()

	res, err := o.Run(context.Background(), scenarioATask, sess)
	require.NoError(t, err)

	require.Len(t, res.Entries, 1)
	assert.Empty(t, res.Errors)
	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, schema.ToolTaskCategorizer, res.Entries[0].ToolUsed)

	task := res.Entries[0].Payload.(*schema.TaskRecord)
	assert.Equal(t, schema.PriorityHigh, task.Priority)
	assert.Equal(t, schema.TagWork, task.ContextTag)
	assert.Equal(t, schema.ActionDo, task.Action)
	require.NotNil(t, task.DueDate)
	assert.Equal(t, "2024-05-17", *task.DueDate)

	assert.Equal(t, 1, res.HighPriorityCount)
	assert.Equal(t, sess.ID(), res.SessionID)
	assert.NotEmpty(t, res.RunID)

	reqs := gw.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, scenarioATask, reqs[0].Prompt)
	assert.True(t, reqs[0].Allows(schema.KindTask))
	assert.True(t, reqs[0].Allows(schema.KindNote))
	assert.Equal(t, gateway.Preamble(rules.Minimalist()), reqs[0].PriorTurns)
}

func TestRun_NoteWithHandoff(t *testing.T) {
	gw := gatewaytest.NewScripted(
		selected(schema.KindNote, noteFields(embeddedText)),
		selected(schema.KindTask, taskFields("high", "#Finance")),
	)
	res, err := New(gw).Run(context.Background(), scenarioBNote, session.New())
	require.NoError(t, err)

	require.Len(t, res.Entries, 2)
	assert.Equal(t, schema.ToolNoteSynthesizer, res.Entries[0].ToolUsed)
	assert.Equal(t, schema.ToolTaskCategorizer, res.Entries[1].ToolUsed)
	assert.Equal(t, schema.PriorityHigh, res.Entries[1].Payload.(*schema.TaskRecord).Priority)
	assert.Equal(t, 1, res.HighPriorityCount)

	reqs := gw.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, rules.Minimalist().HandoffPrompt(embeddedText), reqs[1].Prompt)
	assert.True(t, reqs[1].Allows(schema.KindTask))
	assert.False(t, reqs[1].Allows(schema.KindNote))
	assert.Equal(t, gateway.Preamble(rules.Minimalist()), reqs[1].PriorTurns)
}

func TestRun_ScenarioB_HandoffRespectsExhaustedBudget(t *testing.T) {
	gw := gatewaytest.NewScripted(
		selected(schema.KindNote, noteFields(embeddedText)),
		selected(schema.KindTask, taskFields("high", "#Finance")),
	)
	sess := session.New(session.WithHighPriorityCount(3))

	res, err := New(gw).Run(context.Background(), scenarioBNote, sess)
	require.NoError(t, err)

	require.Len(t, res.Entries, 2)
	task := res.Entries[1].Payload.(*schema.TaskRecord)
	assert.NotEqual(t, schema.PriorityHigh, task.Priority)
	assert.Equal(t, schema.PriorityMedium, task.Priority)
	assert.Equal(t, 3, res.HighPriorityCount)

	require.Len(t, res.Adjustments, 1)
	assert.Equal(t, StageHandoff, res.Adjustments[0].Stage)
	assert.Equal(t, rules.AdjustDowngraded, res.Adjustments[0].Kind)
}

func TestRun_ScenarioC_PrimaryFailure(t *testing.T) {
	gw := gatewaytest.NewScripted(gateway.Failed(gateway.ReasonTimeout, context.DeadlineExceeded))

	res, err := New(gw).Run(context.Background(), scenarioBNote, session.New())
	require.NoError(t, err)

	assert.Empty(t, res.Entries)
	assert.NotNil(t, res.Entries)
	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, 1, gw.Calls(), "no hand-off after a failed primary call")

	require.Len(t, res.Errors, 1)
	assert.Equal(t, StagePrimary, res.Errors[0].Stage)
	assert.Equal(t, ErrorGateway, res.Errors[0].Kind)
	assert.Equal(t, "timeout", res.Errors[0].Reason)
}

func TestRun_PrimaryTimeoutThroughDecorator(t *testing.T) {
	slow := gatewaytest.NewScripted(selected(schema.KindTask, taskFields("low", "#Work")))
	slow.Delay = time.Second

	res, err := New(gateway.WithTimeout(slow, 20*time.Millisecond)).Run(context.Background(), "anything", session.New())
	require.NoError(t, err)
	assert.Empty(t, res.Entries)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, string(gateway.ReasonTimeout), res.Errors[0].Reason)
}

func TestRun_PrimaryNoStructuredOutput(t *testing.T) {
	gw := gatewaytest.NewScripted(gateway.NoStructuredOutput("I am not sure what you mean."))

	res, err := New(gw).Run(context.Background(), "hello", session.New())
	require.NoError(t, err)

	assert.Empty(t, res.Entries)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, ErrorNoStructuredOutput, res.Errors[0].Kind)
	assert.Contains(t, res.Errors[0].Message, "I am not sure")
	assert.Equal(t, 1, gw.Calls())
}

func TestRun_PrimaryValidationError(t *testing.T) {
	fields := taskFields("high", "#Work")
	delete(fields, schema.FieldContextTag)
	gw := gatewaytest.NewScripted(selected(schema.KindTask, fields))
	sess := session.New()

	res, err := New(gw).Run(context.Background(), "report", sess)
	require.NoError(t, err)

	assert.Empty(t, res.Entries)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, ErrorValidation, res.Errors[0].Kind)
	assert.Equal(t, rules.FieldContextTag, res.Errors[0].Field)
	assert.Equal(t, string(rules.ReasonRequired), res.Errors[0].Reason)
	assert.Equal(t, 0, sess.HighPriorityCount(), "rejected task must not consume budget")
	assert.Equal(t, 1, gw.Calls(), "validation errors are not re-prompted")
}

func TestRun_TwoTagsRejected(t *testing.T) {
	gw := gatewaytest.NewScripted(selected(schema.KindTask, taskFields("low", "#Work #Finance")))

	res, err := New(gw).Run(context.Background(), "report", session.New())
	require.NoError(t, err)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, string(rules.ReasonMustBeSingle), res.Errors[0].Reason)
}

func TestRun_HandoffFailureKeepsPrimaryEntry(t *testing.T) {
	tests := []struct {
		name    string
		handoff gateway.Outcome
		kind    ErrorKind
	}{
		{"gateway failure", gateway.Failed(gateway.ReasonTransport, errors.New("connection reset")), ErrorGateway},
		{"no tool call", gateway.NoStructuredOutput("ok"), ErrorNoStructuredOutput},
		{"wrong schema", selected(schema.KindNote, noteFields(nil)), ErrorUnexpectedSchema},
		{"validation", selected(schema.KindTask, taskFields("urgent", "#Work")), ErrorValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := gatewaytest.NewScripted(selected(schema.KindNote, noteFields(embeddedText)), tt.handoff)

			res, err := New(gw).Run(context.Background(), scenarioBNote, session.New())
			require.NoError(t, err)

			require.Len(t, res.Entries, 1)
			assert.Equal(t, schema.ToolNoteSynthesizer, res.Entries[0].ToolUsed)
			require.Len(t, res.Errors, 1)
			assert.Equal(t, StageHandoff, res.Errors[0].Stage)
			assert.Equal(t, tt.kind, res.Errors[0].Kind)
			assert.Equal(t, StateDone, res.State)
			assert.Equal(t, 2, gw.Calls())
		})
	}
}

func TestRun_NoteWithoutEmbeddedTask(t *testing.T) {
	for _, embedded := range []any{nil, "", "null"} {
		gw := gatewaytest.NewScripted(selected(schema.KindNote, noteFields(embedded)))

		res, err := New(gw).Run(context.Background(), scenarioBNote, session.New())
		require.NoError(t, err)
		require.Len(t, res.Entries, 1)
		assert.Empty(t, res.Errors)
		assert.Equal(t, 1, gw.Calls(), "embedded=%v", embedded)
	}
}

func TestRun_NoteListsTruncated(t *testing.T) {
	fields := noteFields(nil)
	fields[schema.FieldSummaryBullets] = []any{"1", "2", "3", "4", "5", "6", "7", "8"}
	fields[schema.FieldConceptualTags] = []any{"a", "b", "c", "d", "e"}
	gw := gatewaytest.NewScripted(selected(schema.KindNote, fields))

	res, err := New(gw).Run(context.Background(), scenarioBNote, session.New())
	require.NoError(t, err)

	note := res.Entries[0].Payload.(*schema.NoteRecord)
	assert.Equal(t, []string{"1", "2", "3", "4", "5"}, note.SummaryBullets)
	assert.Equal(t, []string{"a", "b", "c"}, note.ConceptualTags)
	assert.Len(t, res.Adjustments, 2)
}

func TestRun_HandoffIsDepthLimited(t *testing.T) {
	// A hand-off that somehow yields a note must not trigger another hand-off.
	rs := rules.Minimalist()
	_, ok := nextHandoff(rs, &schema.NoteRecord{SourceLabel: "x", EmbeddedTask: strPtr("do it")}, maxHandoffDepth)
	assert.False(t, ok)

	_, ok = nextHandoff(rs, &schema.TaskRecord{}, 0)
	assert.False(t, ok)

	h, ok := nextHandoff(rs, &schema.NoteRecord{SourceLabel: "x", EmbeddedTask: strPtr("do it")}, 0)
	require.True(t, ok)
	assert.Equal(t, []schema.Kind{schema.KindTask}, h.allowed)
}

func TestRun_InvalidArguments(t *testing.T) {
	o := New(gatewaytest.NewScripted())

	_, err := o.Run(context.Background(), "   ", session.New())
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = o.Run(context.Background(), "text", nil)
	assert.ErrorIs(t, err, ErrNilSession)
}

func TestRun_Transitions(t *testing.T) {
	var got []Transition
	gw := gatewaytest.NewScripted(
		selected(schema.KindNote, noteFields(embeddedText)),
		selected(schema.KindTask, taskFields("low", "#Finance")),
	)
	o := New(gw, WithTransitionCallback(func(tr Transition) { got = append(got, tr) }), WithClock(fixedClock()))

	res, err := o.Run(context.Background(), scenarioBNote, session.New())
	require.NoError(t, err)

	want := []State{
		StateAwaitingPrimaryExtraction,
		StatePrimaryResolved,
		StateAwaitingHandoffExtraction,
		StateHandoffResolved,
		StateDone,
	}
	require.Len(t, got, len(want))
	from := StateIdle
	for i, tr := range got {
		assert.Equal(t, from, tr.From)
		assert.Equal(t, want[i], tr.To)
		assert.Equal(t, res.RunID, tr.RunID)
		assert.Equal(t, fixedClock()(), tr.At)
		from = tr.To
	}
}

func TestRun_TransitionsWithoutHandoff(t *testing.T) {
	var got []State
	o := New(gatewaytest.NewScripted(selected(schema.KindTask, taskFields("low", "#Work"))))
	o.OnTransition(func(tr Transition) { got = append(got, tr.To) })

	_, err := o.Run(context.Background(), "report", session.New())
	require.NoError(t, err)
	assert.Equal(t, []State{StateAwaitingPrimaryExtraction, StatePrimaryResolved, StateDone}, got)
}

func TestRun_PublishesEvents(t *testing.T) {
	pub := &recordingPublisher{}
	gw := gatewaytest.NewScripted(
		selected(schema.KindNote, noteFields(embeddedText)),
		gateway.Failed(gateway.ReasonTransport, errors.New("boom")),
	)

	res, err := New(gw, WithEventPublisher(pub)).Run(context.Background(), scenarioBNote, session.New())
	require.NoError(t, err)

	assert.Equal(t, []EventType{
		EventStarted,
		EventTransition, EventTransition, EventEntry,
		EventTransition, EventTransition, EventError,
		EventTransition,
		EventCompleted,
	}, pub.types())

	for _, ev := range pub.events {
		assert.Equal(t, res.RunID, ev.RunID)
		assert.Equal(t, res.SessionID, ev.SessionID)
	}
	last := pub.events[len(pub.events)-1]
	require.NotNil(t, last.Result)
	assert.Len(t, last.Result.Entries, 1)
}

func TestRun_PublisherErrorDoesNotFailRun(t *testing.T) {
	pub := new(MockPublisher)
	pub.On("Publish", mock.Anything, mock.Anything).Return(errors.New("nats down"))

	tl := logging.NewTestLogger()
	gw := gatewaytest.NewScripted(selected(schema.KindTask, taskFields("low", "#Work")))

	res, err := New(gw, WithEventPublisher(pub), WithLogger(tl.Logger)).Run(context.Background(), "report", session.New())
	require.NoError(t, err)
	assert.Len(t, res.Entries, 1)

	pub.AssertNumberOfCalls(t, "Publish", 6)
	tl.AssertLogged(t, zapcore.WarnLevel, "failed to publish run event")
}

func TestRun_ScrubsSecretsBeforeGateway(t *testing.T) {
	scrubber, err := secrets.New(secrets.DefaultConfig())
	require.NoError(t, err)

	const key = "sk-proj-abc123def456ghi789jkl012mno345pqr678stu901xyz"
	gw := gatewaytest.NewScripted(selected(schema.KindTask, taskFields("low", "#Work")))

	res, err := New(gw, WithScrubber(scrubber)).Run(context.Background(),
		`Rotate const apiKey = "`+key+`" tomorrow`, session.New())
	require.NoError(t, err)

	reqs := gw.Requests()
	require.Len(t, reqs, 1)
	assert.NotContains(t, reqs[0].Prompt, key)
	assert.Contains(t, reqs[0].Prompt, "[REDACTED:")
	assert.Positive(t, res.Redactions)
}

func TestRun_Telemetry(t *testing.T) {
	tel := telemetry.NewTestTelemetry()
	gw := gatewaytest.NewScripted(
		selected(schema.KindNote, noteFields(embeddedText)),
		selected(schema.KindTask, taskFields("high", "#Finance")),
	)

	res, err := New(gw, WithTelemetry(tel.Telemetry)).Run(context.Background(), scenarioBNote, session.New(session.WithHighPriorityCount(3)))
	require.NoError(t, err)

	tel.AssertSpanExists(t, "orchestrator.run")
	tel.AssertSpanAttribute(t, "orchestrator.run", "run.id", res.RunID)
	tel.AssertSpanAttribute(t, "orchestrator.run", "entries", int64(2))
	assert.Len(t, tel.SpansByName("gateway.extract"), 2)

	runSpan := tel.SpanByName("orchestrator.run")
	for _, s := range tel.SpansByName("gateway.extract") {
		assert.Equal(t, runSpan.SpanContext().SpanID(), s.Parent().SpanID())
	}

	assert.Equal(t, int64(1), tel.CounterValue(t, "inboxd.runs"))
	assert.Equal(t, int64(2), tel.CounterValue(t, "inboxd.entries"))
	assert.Equal(t, int64(1), tel.CounterValue(t, "inboxd.handoffs"))
	assert.Equal(t, int64(1), tel.CounterValue(t, "inboxd.priority.downgrades"))
}

func TestRun_LogsCarryRunAndSession(t *testing.T) {
	tl := logging.NewTestLogger()
	sess := session.New(session.WithID("sess-1"))
	gw := gatewaytest.NewScripted(gateway.Failed(gateway.ReasonTransport, errors.New("boom")))

	res, err := New(gw, WithLogger(tl.Logger)).Run(context.Background(), "report", sess)
	require.NoError(t, err)

	tl.AssertLogged(t, zapcore.WarnLevel, "step failed")
	tl.AssertField(t, "run completed", "run.id", res.RunID)
	tl.AssertField(t, "run completed", "session.id", "sess-1")
}

func TestResult_JSON(t *testing.T) {
	gw := gatewaytest.NewScripted(
		selected(schema.KindNote, noteFields(embeddedText)),
		selected(schema.KindTask, taskFields("high", "#Finance")),
	)
	res, err := New(gw).Run(context.Background(), scenarioBNote, session.New())
	require.NoError(t, err)

	data, err := json.Marshal(res)
	require.NoError(t, err)
	out := string(data)

	assert.Contains(t, out, `"toolUsed":"NoteSynthesizer"`)
	assert.Contains(t, out, `"toolUsed":"TaskCategorizer"`)
	assert.Contains(t, out, `"contextTag":"#Finance"`)
	assert.Contains(t, out, `"errors":[]`)
	assert.True(t, strings.Index(out, "NoteSynthesizer") < strings.Index(out, "TaskCategorizer"))

	var back struct {
		Entries []schema.Entry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(data, &back))
	require.Len(t, back.Entries, 2)
	assert.Equal(t, res.Entries[1].Payload, back.Entries[1].Payload)
}

func TestRun_HeuristicEndToEnd(t *testing.T) {
	gw := gateway.NewHeuristicGateway(gateway.WithClock(fixedClock()))
	o := New(gw)

	res, err := o.Run(context.Background(), scenarioATask, session.New())
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)
	task := res.Entries[0].Payload.(*schema.TaskRecord)
	assert.Equal(t, schema.PriorityHigh, task.Priority)
	assert.Equal(t, schema.TagWork, task.ContextTag)
	assert.Equal(t, schema.ActionDo, task.Action)

	res, err = o.Run(context.Background(), scenarioBNote, session.New())
	require.NoError(t, err)
	require.Len(t, res.Entries, 2)
	assert.Empty(t, res.Errors)
	assert.Equal(t, schema.ToolNoteSynthesizer, res.Entries[0].ToolUsed)
	handoff := res.Entries[1].Payload.(*schema.TaskRecord)
	assert.Equal(t, schema.TagFinance, handoff.ContextTag)
	assert.Equal(t, schema.PriorityHigh, handoff.Priority)
	assert.Equal(t, embeddedText, handoff.RawText)
}

func TestRun_ConcurrentRunsSharingSession(t *testing.T) {
	const runs = 8
	outcomes := make([]gateway.Outcome, runs)
	for i := range outcomes {
		outcomes[i] = selected(schema.KindTask, taskFields("high", "#Work"))
	}
	gw := gatewaytest.NewScripted(outcomes...)
	o := New(gw)
	sess := session.New()

	var wg sync.WaitGroup
	var mu sync.Mutex
	high := 0
	for i := 0; i < runs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := o.Run(context.Background(), "report", sess)
			if err != nil || len(res.Entries) != 1 {
				return
			}
			if res.Entries[0].Payload.(*schema.TaskRecord).Priority == schema.PriorityHigh {
				mu.Lock()
				high++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, high)
	assert.Equal(t, 3, sess.HighPriorityCount())
}

func strPtr(s string) *string { return &s }
