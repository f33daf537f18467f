package http

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fyrsmithlabs/inboxd/internal/orchestrator"
	"github.com/fyrsmithlabs/inboxd/internal/schema"
)

// scrapeMetrics backs the /metrics endpoint. It uses a private registry so
// several servers can coexist in one process.
type scrapeMetrics struct {
	registry  *prometheus.Registry
	runs      *prometheus.CounterVec
	entries   *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	batchSize prometheus.Histogram
}

func newScrapeMetrics() *scrapeMetrics {
	m := &scrapeMetrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inboxd_http_runs_total",
				Help: "Processing runs served over HTTP",
			},
			[]string{"endpoint", "outcome"},
		),
		entries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inboxd_http_entries_total",
				Help: "Entries produced by HTTP runs",
			},
			[]string{"kind", "priority"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "inboxd_process_duration_seconds",
				Help:    "Wall time of processing requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		batchSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "inboxd_batch_inputs",
				Help:    "Inputs per batch request",
				Buckets: prometheus.ExponentialBuckets(1, 2, 8),
			},
		),
	}

	m.registry.MustRegister(
		m.runs,
		m.entries,
		m.duration,
		m.batchSize,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *scrapeMetrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *scrapeMetrics) observeDuration(endpoint string, elapsed time.Duration) {
	m.duration.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

func (m *scrapeMetrics) observeRun(endpoint string, res *orchestrator.Result) {
	m.runs.WithLabelValues(endpoint, runOutcome(res)).Inc()
	if res == nil {
		return
	}
	for _, e := range res.Entries {
		priority := ""
		if task, ok := e.Payload.(*schema.TaskRecord); ok {
			priority = string(task.Priority)
		}
		m.entries.WithLabelValues(string(e.Payload.Kind()), priority).Inc()
	}
}

func runOutcome(res *orchestrator.Result) string {
	switch {
	case res == nil:
		return "failed"
	case !res.HasErrors():
		return "ok"
	case len(res.Entries) > 0:
		return "partial"
	default:
		return "failed"
	}
}
