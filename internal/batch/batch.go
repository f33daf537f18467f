// Package batch runs many inputs through the orchestrator with bounded
// parallelism.
//
// By default every input gets its own session, so each run has the full
// high-priority budget. With a shared session the whole batch is one session
// and runs execute one at a time in input order, which keeps the budget's
// arrival-order semantics.
package batch

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/inboxd/internal/logging"
	"github.com/fyrsmithlabs/inboxd/internal/orchestrator"
	"github.com/fyrsmithlabs/inboxd/internal/session"
	"github.com/fyrsmithlabs/inboxd/internal/telemetry"
)

// DefaultParallelism is used when none is configured.
const DefaultParallelism = 4

// Item is the outcome for one input.
type Item struct {
	Index  int                  `json:"index"`
	Input  string               `json:"input"`
	Result *orchestrator.Result `json:"result,omitempty"`
	Error  string               `json:"error,omitempty"`
}

// Report is the outcome of a batch. Items are in input order.
type Report struct {
	Items []Item `json:"items"`
	// SessionID is set when the batch shared one session.
	SessionID string        `json:"sessionId,omitempty"`
	Entries   int           `json:"entries"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
}

// Runner processes batches.
type Runner struct {
	orch          *orchestrator.Orchestrator
	parallelism   int
	sharedSession bool
	logger        *logging.Logger
	tracer        trace.Tracer
}

// Option configures a Runner.
type Option func(*Runner)

// WithParallelism bounds concurrent runs. Values below 1 use the default.
func WithParallelism(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.parallelism = n
		}
	}
}

// WithSharedSession makes the whole batch one session.
func WithSharedSession(shared bool) Option {
	return func(r *Runner) { r.sharedSession = shared }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithTelemetry takes the tracer from t.
func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(r *Runner) { r.tracer = t.Tracer("github.com/fyrsmithlabs/inboxd/internal/batch") }
}

// NewRunner creates a batch runner over orch.
func NewRunner(orch *orchestrator.Orchestrator, opts ...Option) *Runner {
	r := &Runner{
		orch:        orch,
		parallelism: DefaultParallelism,
		logger:      logging.NewNop(),
		tracer:      noop.NewTracerProvider().Tracer("batch"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run processes inputs and returns a report in input order. Per-input
// problems are recorded on the item; the error is non-nil only when ctx ends
// before every input was processed.
func (r *Runner) Run(ctx context.Context, inputs []string) (*Report, error) {
	start := time.Now()
	ctx, span := r.tracer.Start(ctx, "batch.run", trace.WithAttributes(
		attribute.Int("batch.size", len(inputs)),
		attribute.Bool("batch.shared_session", r.sharedSession),
	))
	defer span.End()

	report := &Report{Items: make([]Item, len(inputs))}

	var shared *session.State
	limit := r.parallelism
	if r.sharedSession {
		shared = session.New()
		report.SessionID = shared.ID()
		limit = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, input := range inputs {
		report.Items[i] = Item{Index: i, Input: input}
		if err := gctx.Err(); err != nil {
			report.Items[i].Error = err.Error()
			continue
		}

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				report.Items[i].Error = err.Error()
				return nil
			}
			sess := shared
			if sess == nil {
				sess = session.New()
			}
			res, err := r.orch.Run(gctx, input, sess)
			if err != nil {
				report.Items[i].Error = err.Error()
				return nil
			}
			report.Items[i].Result = res
			return nil
		})
	}
	_ = g.Wait()

	for _, item := range report.Items {
		if item.Result != nil {
			report.Entries += len(item.Result.Entries)
		}
		if item.Error != "" || (item.Result != nil && len(item.Result.Entries) == 0) {
			report.Failed++
		}
	}
	report.Duration = time.Since(start)

	span.SetAttributes(attribute.Int("batch.entries", report.Entries), attribute.Int("batch.failed", report.Failed))
	r.logger.Info(ctx, "batch completed",
		zap.Int("inputs", len(inputs)),
		zap.Int("entries", report.Entries),
		zap.Int("failed", report.Failed),
		zap.Duration("duration", report.Duration))

	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("batch interrupted: %w", err)
	}
	return report, nil
}

// ParseInputs splits r into inputs separated by one or more blank lines.
// Lines within a block are joined with a newline.
func ParseInputs(rd io.Reader) ([]string, error) {
	var (
		inputs []string
		block  []string
	)
	flush := func() {
		if len(block) > 0 {
			inputs = append(inputs, strings.Join(block, "\n"))
			block = block[:0]
		}
	}

	sc := bufio.NewScanner(rd)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), " \t\r")
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		block = append(block, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read inputs: %w", err)
	}
	flush()
	return inputs, nil
}
