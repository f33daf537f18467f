package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/inboxd/internal/gateway"
	"github.com/fyrsmithlabs/inboxd/internal/logging"
	"github.com/fyrsmithlabs/inboxd/internal/rules"
	"github.com/fyrsmithlabs/inboxd/internal/schema"
	"github.com/fyrsmithlabs/inboxd/internal/secrets"
	"github.com/fyrsmithlabs/inboxd/internal/session"
	"github.com/fyrsmithlabs/inboxd/internal/telemetry"
)

const instrumentationName = "github.com/fyrsmithlabs/inboxd/internal/orchestrator"

// Orchestrator runs inputs through the gateway and the rule engine. It holds
// no per-run state and is safe for concurrent use; concurrent runs must use
// distinct sessions unless they intend to share a budget.
type Orchestrator struct {
	gateway  gateway.Gateway
	engine   *rules.Engine
	scrubber *secrets.Scrubber

	logger       *logging.Logger
	tracer       trace.Tracer
	meter        metric.Meter
	metrics      *instruments
	publisher    EventPublisher
	onTransition TransitionCallback
	now          func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRuleSet replaces the Minimalist rules.
func WithRuleSet(rs rules.RuleSet) Option {
	return func(o *Orchestrator) { o.engine = rules.NewEngine(rs) }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithTelemetry takes the tracer and meter from t.
func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(o *Orchestrator) {
		o.tracer = t.Tracer(instrumentationName)
		o.meter = t.Meter(instrumentationName)
	}
}

// WithScrubber redacts secrets from input before the primary call.
func WithScrubber(s *secrets.Scrubber) Option {
	return func(o *Orchestrator) { o.scrubber = s }
}

// WithEventPublisher publishes run events.
func WithEventPublisher(p EventPublisher) Option {
	return func(o *Orchestrator) { o.publisher = p }
}

// WithTransitionCallback reports every state change.
func WithTransitionCallback(cb TransitionCallback) Option {
	return func(o *Orchestrator) { o.onTransition = cb }
}

// WithClock sets the clock used for transition and event timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an orchestrator over gw.
func New(gw gateway.Gateway, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		gateway: gw,
		engine:  rules.NewEngine(rules.Minimalist()),
		logger:  logging.NewNop(),
		tracer:  noop.NewTracerProvider().Tracer(instrumentationName),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.metrics = newInstruments(o.meter)
	o.logger = o.logger.Named("orchestrator")
	return o
}

// OnTransition sets the transition callback.
func (o *Orchestrator) OnTransition(cb TransitionCallback) {
	o.onTransition = cb
}

// Rules returns the rule set in force.
func (o *Orchestrator) Rules() rules.RuleSet {
	return o.engine.Rules()
}

// Run processes one input within sess. The returned error is non-nil only
// for ErrEmptyInput and ErrNilSession; everything else is reported on the
// Result.
func (o *Orchestrator) Run(ctx context.Context, input string, sess *session.State) (*Result, error) {
	if strings.TrimSpace(input) == "" {
		return nil, ErrEmptyInput
	}
	if sess == nil {
		return nil, ErrNilSession
	}

	runID := uuid.NewString()
	ctx = logging.WithRunID(ctx, runID)
	ctx = logging.WithSessionID(ctx, sess.ID())

	ctx, span := o.tracer.Start(ctx, "orchestrator.run", trace.WithAttributes(
		attribute.String("run.id", runID),
		attribute.String("session.id", sess.ID()),
		attribute.Int("input.length", len(input)),
	))
	defer span.End()

	r := &run{
		o:       o,
		session: sess,
		state:   StateIdle,
		result: &Result{
			RunID:     runID,
			SessionID: sess.ID(),
			State:     StateIdle,
			Entries:   []schema.Entry{},
			Errors:    []StepError{},
		},
	}

	o.logger.Debug(ctx, "run started", zap.Int("input_length", len(input)))
	r.publish(ctx, Event{Type: EventStarted})

	prompt := r.scrub(ctx, input)

	r.transition(ctx, StateAwaitingPrimaryExtraction)
	req := gateway.NewRequest(o.engine.Rules(), prompt, schema.KindTask, schema.KindNote)
	out := r.extract(ctx, StagePrimary, req)
	r.transition(ctx, StatePrimaryResolved)
	rec := r.resolve(ctx, StagePrimary, req, out)

	for depth := 0; ; depth++ {
		h, ok := nextHandoff(o.engine.Rules(), rec, depth)
		if !ok {
			break
		}
		o.metrics.handoffs.Add(ctx, 1)
		o.logger.Debug(ctx, "dispatching hand-off", zap.Int("depth", depth+1))

		r.transition(ctx, StateAwaitingHandoffExtraction)
		req = gateway.NewRequest(o.engine.Rules(), h.prompt, h.allowed...)
		out = r.extract(ctx, StageHandoff, req)
		r.transition(ctx, StateHandoffResolved)
		rec = r.resolve(ctx, StageHandoff, req, out)
	}

	r.transition(ctx, StateDone)
	res := r.result
	res.HighPriorityCount = sess.HighPriorityCount()

	o.metrics.recordRun(ctx, res)
	span.SetAttributes(
		attribute.Int("entries", len(res.Entries)),
		attribute.Int("errors", len(res.Errors)),
		attribute.Int("high_priority_count", res.HighPriorityCount),
	)
	if res.HasErrors() {
		span.SetStatus(codes.Error, res.Errors[len(res.Errors)-1].Message)
	}

	o.logger.Info(ctx, "run completed",
		zap.Int("entries", len(res.Entries)),
		zap.Int("errors", len(res.Errors)),
		zap.Int("high_priority_count", res.HighPriorityCount))
	r.publish(ctx, Event{Type: EventCompleted, Result: res})

	return res, nil
}

// run carries the mutable state of one Run call.
type run struct {
	o       *Orchestrator
	session *session.State
	state   State
	result  *Result
}

func (r *run) transition(ctx context.Context, to State) {
	from := r.state
	r.state = to
	r.result.State = to

	t := Transition{RunID: r.result.RunID, From: from, To: to, At: r.o.now()}
	r.o.logger.Trace(ctx, "state transition", zap.String("from", string(from)), zap.String("to", string(to)))
	trace.SpanFromContext(ctx).AddEvent("transition", trace.WithAttributes(
		attribute.String("from", string(from)),
		attribute.String("to", string(to)),
	))
	if r.o.onTransition != nil {
		r.o.onTransition(t)
	}
	r.publish(ctx, Event{Type: EventTransition, From: from, To: to})
}

// scrub returns the input with secrets redacted. When detection fails the
// input is used as is.
func (r *run) scrub(ctx context.Context, input string) string {
	if !r.o.scrubber.Enabled() {
		return input
	}
	res, err := r.o.scrubber.Scrub(input)
	if err != nil {
		r.o.logger.Warn(ctx, "secret scrubbing failed, using raw input", zap.Error(err))
		return input
	}
	if res.HasFindings() {
		r.result.Redactions = res.TotalFindings
		r.o.logger.Info(ctx, "redacted secrets from input",
			zap.Int("count", res.TotalFindings),
			zap.Strings("rules", res.RuleIDs()))
	}
	return res.Scrubbed
}

// extract performs one gateway call inside its own span.
func (r *run) extract(ctx context.Context, stage Stage, req gateway.Request) gateway.Outcome {
	allowed := make([]string, 0, len(req.AllowedSchemas))
	for _, d := range req.AllowedSchemas {
		allowed = append(allowed, string(d.Kind))
	}

	ctx, span := r.o.tracer.Start(ctx, "gateway.extract", trace.WithAttributes(
		attribute.String("stage", string(stage)),
		attribute.StringSlice("allowed_schemas", allowed),
	))
	defer span.End()

	start := time.Now()
	out := r.o.gateway.Extract(ctx, req)
	r.o.metrics.gatewayDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("stage", string(stage))))

	span.SetAttributes(attribute.String("outcome", string(out.Kind)))
	switch out.Kind {
	case gateway.OutcomeSchemaSelected:
		span.SetAttributes(attribute.String("schema", string(out.Schema)), attribute.String("tool", out.ToolName))
	case gateway.OutcomeFailure:
		reason := "unknown"
		if out.Failure != nil {
			reason = string(out.Failure.Reason)
			span.RecordError(out.Failure)
		}
		span.SetAttributes(attribute.String("failure.reason", reason))
		span.SetStatus(codes.Error, reason)
	}
	return out
}

// resolve turns a gateway outcome into a finalized record, or records why it
// could not. It returns nil when the step produced no record.
func (r *run) resolve(ctx context.Context, stage Stage, req gateway.Request, out gateway.Outcome) schema.Record {
	switch out.Kind {
	case gateway.OutcomeSchemaSelected:
		return r.finalize(ctx, stage, req, out)

	case gateway.OutcomeNoStructuredOutput:
		r.o.metrics.gatewayFailures.Add(ctx, 1, metric.WithAttributes(
			attribute.String("stage", string(stage)),
			attribute.String("reason", string(ErrorNoStructuredOutput))))
		r.fail(ctx, StepError{
			Stage:   stage,
			Kind:    ErrorNoStructuredOutput,
			Message: fmt.Sprintf("no tool call in response: %q", truncate(out.Text, 200)),
		})
		return nil
	}

	se := StepError{Stage: stage, Kind: ErrorGateway, Message: "gateway failure"}
	if out.Failure != nil {
		se.Reason = string(out.Failure.Reason)
		se.Message = out.Failure.Error()
	}
	r.o.metrics.gatewayFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("stage", string(stage)),
		attribute.String("reason", se.Reason)))
	r.fail(ctx, se)
	return nil
}

func (r *run) finalize(ctx context.Context, stage Stage, req gateway.Request, out gateway.Outcome) schema.Record {
	if !req.Allows(out.Schema) {
		r.o.metrics.gatewayFailures.Add(ctx, 1, metric.WithAttributes(
			attribute.String("stage", string(stage)),
			attribute.String("reason", string(ErrorUnexpectedSchema))))
		r.fail(ctx, StepError{
			Stage:   stage,
			Kind:    ErrorUnexpectedSchema,
			Schema:  out.Schema,
			Message: fmt.Sprintf("%s step selected schema %q, which was not offered", stage, out.Schema),
		})
		return nil
	}

	norm, err := r.o.engine.Apply(out.Schema, out.Fields, r.session)
	if err != nil {
		se := StepError{Stage: stage, Kind: ErrorValidation, Schema: out.Schema, Message: err.Error()}
		if ve, ok := rules.AsValidationError(err); ok {
			se.Field = ve.Field
			se.Reason = string(ve.Reason)
		} else if errors.Is(err, rules.ErrUnknownKind) {
			se.Kind = ErrorUnexpectedSchema
		}
		r.o.metrics.validationErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("schema", string(out.Schema)),
			attribute.String("reason", se.Reason)))
		r.fail(ctx, se)
		return nil
	}

	for _, adj := range norm.Adjustments {
		r.result.Adjustments = append(r.result.Adjustments, StepAdjustment{Stage: stage, Adjustment: adj})
		if adj.Kind == rules.AdjustDowngraded {
			r.o.metrics.downgrades.Add(ctx, 1)
			r.o.logger.Info(ctx, "high priority budget exhausted, task downgraded",
				zap.String("stage", string(stage)),
				zap.String("to", adj.To))
		}
	}

	entry := schema.NewEntry(norm.Record)
	r.result.Entries = append(r.result.Entries, entry)
	r.o.metrics.entries.Add(ctx, 1, metric.WithAttributes(attribute.String("schema", string(out.Schema))))
	r.o.logger.Debug(ctx, "entry finalized",
		zap.String("stage", string(stage)),
		zap.String("tool", string(entry.ToolUsed)))
	r.publish(ctx, Event{Type: EventEntry, Stage: stage, Entry: &entry})

	return norm.Record
}

func (r *run) fail(ctx context.Context, se StepError) {
	r.result.Errors = append(r.result.Errors, se)
	r.o.logger.Warn(ctx, "step failed",
		zap.String("stage", string(se.Stage)),
		zap.String("kind", string(se.Kind)),
		zap.String("reason", se.Reason),
		zap.String("error", se.Message))
	r.publish(ctx, Event{Type: EventError, Stage: se.Stage, Error: &se})
}

func (r *run) publish(ctx context.Context, ev Event) {
	if r.o.publisher == nil {
		return
	}
	ev.RunID = r.result.RunID
	ev.SessionID = r.result.SessionID
	ev.At = r.o.now()
	if err := r.o.publisher.Publish(ctx, ev); err != nil {
		r.o.logger.Warn(ctx, "failed to publish run event",
			zap.String("event", string(ev.Type)),
			zap.Error(err))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
