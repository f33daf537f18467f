// Package telemetry provides OpenTelemetry tracing and metrics for inboxd.
//
// Traces and metrics are exported over OTLP (gRPC by default, or
// http/protobuf) to a collector. Telemetry is disabled by default.
//
//	tel, err := telemetry.New(ctx, telemetry.NewDefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(ctx)
//
//	tracer := tel.Tracer("inboxd.orchestrator")
//	ctx, span := tracer.Start(ctx, "orchestrator.run")
//	defer span.End()
//
// Exporter failures degrade the instance instead of failing startup; Health
// reports the reason.
//
// Tests use TestTelemetry, which records spans with tracetest.SpanRecorder and
// metrics with a manual reader:
//
//	tt := telemetry.NewTestTelemetry()
//	_, span := tt.Tracer("test").Start(ctx, "op")
//	span.End()
//	tt.AssertSpanExists(t, "op")
package telemetry
