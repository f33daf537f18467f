// Package logging provides structured logging for inboxd.
//
// The package wraps Zap with:
//   - a Trace level (-2, below Debug)
//   - console output (stderr by default, so command output on stdout stays clean)
//     and optional OpenTelemetry output through the otelzap bridge
//   - automatic context fields (trace_id, span_id, session.id, run.id)
//   - redaction of sensitive field names and value patterns
//   - level-aware sampling (errors are never sampled)
//
// Usage:
//
//	logger, err := logging.NewLogger(logging.NewDefaultConfig(), nil)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithRunID(ctx, runID)
//	logger.Info(ctx, "run completed", zap.Int("entries", n))
//
// Tests use TestLogger, which records entries through zaptest/observer:
//
//	tl := logging.NewTestLogger()
//	tl.AssertLogged(t, zapcore.WarnLevel, "hand-off failed")
package logging
