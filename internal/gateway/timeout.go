package gateway

import (
	"context"
	"fmt"
	"time"
)

// DefaultTimeout bounds one Extract call when none is configured.
const DefaultTimeout = 30 * time.Second

type timeoutGateway struct {
	next    Gateway
	timeout time.Duration
}

// WithTimeout bounds each call to next. A call still running when the
// deadline passes is abandoned and reported as a timeout failure, even if the
// backend ignores its context.
func WithTimeout(next Gateway, d time.Duration) Gateway {
	if d <= 0 {
		d = DefaultTimeout
	}
	return &timeoutGateway{next: next, timeout: d}
}

func (g *timeoutGateway) Extract(ctx context.Context, req Request) Outcome {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	done := make(chan Outcome, 1)
	go func() {
		done <- g.next.Extract(ctx, req)
	}()

	select {
	case out := <-done:
		return out
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return Failed(ReasonTimeout, fmt.Errorf("no response within %s: %w", g.timeout, ctx.Err()))
		}
		return Failed(ReasonTransport, ctx.Err())
	}
}
