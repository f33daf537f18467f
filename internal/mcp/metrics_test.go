package mcp

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func sumInt64(rm metricdata.ResourceMetrics, name string) (int64, bool) {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				return 0, false
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total, true
		}
	}
	return 0, false
}

func TestMetrics_RecordInvocation(t *testing.T) {
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))
	m := NewMetrics(mp.Meter(instrumentationName), nil)

	ctx := context.Background()
	m.RecordInvocation(ctx, "process_input", 100*time.Millisecond, nil)
	m.RecordInvocation(ctx, "process_input", 50*time.Millisecond, errors.New("invalid input"))

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}

	if total, ok := sumInt64(rm, "inboxd.mcp.tool.invocations_total"); !ok || total != 2 {
		t.Errorf("expected 2 invocations, got %d (found=%v)", total, ok)
	}
	if total, ok := sumInt64(rm, "inboxd.mcp.tool.errors_total"); !ok || total != 1 {
		t.Errorf("expected 1 error, got %d (found=%v)", total, ok)
	}

	foundDuration := false
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == "inboxd.mcp.tool.duration_seconds" {
				foundDuration = true
			}
		}
	}
	if !foundDuration {
		t.Error("duration histogram not found")
	}
}

func TestMetrics_ActiveRequests(t *testing.T) {
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))
	m := NewMetrics(mp.Meter(instrumentationName), nil)

	ctx := context.Background()
	m.IncrementActive(ctx, "process_input")
	m.IncrementActive(ctx, "process_input")
	m.DecrementActive(ctx, "process_input")

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}

	total, ok := sumInt64(rm, "inboxd.mcp.tool.active_requests")
	if !ok {
		t.Fatal("active_requests metric not found")
	}
	if total != 1 {
		t.Errorf("expected 1 active request, got %d", total)
	}
}

func TestMetrics_NilMeter(t *testing.T) {
	m := NewMetrics(nil, nil)
	m.IncrementActive(context.Background(), "get_rules")
	m.RecordInvocation(context.Background(), "get_rules", time.Millisecond, nil)
}

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"nil error", nil, ""},
		{"session error", errors.New(`session "abc" not found`), "session_error"},
		{"validation error", errors.New("validation failed"), "validation_error"},
		{"invalid input", errors.New("invalid input: empty input"), "validation_error"},
		{"not found", errors.New("tool not found"), "not_found"},
		{"timeout", errors.New("gateway timeout"), "timeout"},
		{"deadline", errors.New("context deadline exceeded"), "timeout"},
		{"generic error", errors.New("something went wrong"), "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := categorizeError(tt.err)
			if result != tt.expected {
				t.Errorf("categorizeError(%v) = %q, want %q", tt.err, result, tt.expected)
			}
		})
	}
}
