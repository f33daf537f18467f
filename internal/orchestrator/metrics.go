package orchestrator

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

type instruments struct {
	runs             metric.Int64Counter
	entries          metric.Int64Counter
	handoffs         metric.Int64Counter
	downgrades       metric.Int64Counter
	validationErrors metric.Int64Counter
	gatewayFailures  metric.Int64Counter
	gatewayDuration  metric.Float64Histogram
}

func newInstruments(m metric.Meter) *instruments {
	if m == nil {
		m = noop.NewMeterProvider().Meter(instrumentationName)
	}
	// Instrument creation only fails on invalid names; fall back to no-ops.
	fallback := noop.Meter{}

	runs, err := m.Int64Counter("inboxd.runs", metric.WithDescription("Orchestration runs completed"))
	if err != nil {
		runs, _ = fallback.Int64Counter("inboxd.runs")
	}
	entries, err := m.Int64Counter("inboxd.entries", metric.WithDescription("Records finalized"))
	if err != nil {
		entries, _ = fallback.Int64Counter("inboxd.entries")
	}
	handoffs, err := m.Int64Counter("inboxd.handoffs", metric.WithDescription("Hand-offs dispatched"))
	if err != nil {
		handoffs, _ = fallback.Int64Counter("inboxd.handoffs")
	}
	downgrades, err := m.Int64Counter("inboxd.priority.downgrades", metric.WithDescription("High priority tasks downgraded by the budget"))
	if err != nil {
		downgrades, _ = fallback.Int64Counter("inboxd.priority.downgrades")
	}
	validationErrors, err := m.Int64Counter("inboxd.validation.errors", metric.WithDescription("Candidate records rejected by the rule engine"))
	if err != nil {
		validationErrors, _ = fallback.Int64Counter("inboxd.validation.errors")
	}
	gatewayFailures, err := m.Int64Counter("inboxd.gateway.failures", metric.WithDescription("Gateway calls without a usable tool call"))
	if err != nil {
		gatewayFailures, _ = fallback.Int64Counter("inboxd.gateway.failures")
	}
	gatewayDuration, err := m.Float64Histogram("inboxd.gateway.duration",
		metric.WithDescription("Gateway call latency"),
		metric.WithUnit("s"))
	if err != nil {
		gatewayDuration, _ = fallback.Float64Histogram("inboxd.gateway.duration")
	}

	return &instruments{
		runs:             runs,
		entries:          entries,
		handoffs:         handoffs,
		downgrades:       downgrades,
		validationErrors: validationErrors,
		gatewayFailures:  gatewayFailures,
		gatewayDuration:  gatewayDuration,
	}
}

func (i *instruments) recordRun(ctx context.Context, res *Result) {
	outcome := "ok"
	if res.HasErrors() {
		outcome = "partial"
		if len(res.Entries) == 0 {
			outcome = "failed"
		}
	}
	i.runs.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
