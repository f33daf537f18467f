// Package orchestrator runs one raw input through extraction, rule
// enforcement and an optional hand-off.
//
// # Lifecycle
//
// Every run walks a fixed state machine:
//
//	Idle → AwaitingPrimaryExtraction → PrimaryResolved
//	     → (AwaitingHandoffExtraction → HandoffResolved)? → Done
//
// The primary call offers both schemas to the gateway. A Note whose
// embeddedTask is set is handed off to the task extractor, at most once.
// Hand-off routing is a dispatch table keyed by record kind, so the rule
// "notes spawn tasks" lives in one place.
//
// # Errors
//
// Run returns a Go error only for misuse: empty input or a nil session.
// Validation errors, gateway failures and missing tool calls are recorded in
// Result.Errors and end the current step; entries produced before the
// failure are kept.
//
// # Observability
//
// Each run gets a UUID run ID carried on the context for log correlation, an
// "orchestrator.run" span with one "gateway.extract" child per gateway call,
// and counters for runs, hand-offs, downgrades and failures. Transitions are
// reported to an optional TransitionCallback and, when configured, to an
// EventPublisher.
//
// # Usage
//
//	o := orchestrator.New(gw,
//	    orchestrator.WithLogger(logger),
//	    orchestrator.WithTelemetry(tel),
//	)
//	res, err := o.Run(ctx, "Finish the Q3 report by Friday", session.New())
package orchestrator
