// Package events publishes orchestration run events to NATS.
//
// Events are JSON-encoded orchestrator.Event values on subjects
//
//	<prefix>.runs.<run_id>.started
//	<prefix>.runs.<run_id>.transition
//	<prefix>.runs.<run_id>.entry
//	<prefix>.runs.<run_id>.error
//	<prefix>.runs.<run_id>.completed
//
// Trace context travels in the message headers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/inboxd/internal/config"
	"github.com/fyrsmithlabs/inboxd/internal/logging"
	"github.com/fyrsmithlabs/inboxd/internal/orchestrator"
)

// DefaultPrefix is the subject prefix when none is configured.
const DefaultPrefix = "inboxd"

// NATSPublisher implements orchestrator.EventPublisher.
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
	owned  bool
}

var _ orchestrator.EventPublisher = (*NATSPublisher)(nil)

// NewNATSPublisher publishes on an existing connection. The caller keeps
// ownership of nc.
func NewNATSPublisher(nc *nats.Conn, prefix string) *NATSPublisher {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &NATSPublisher{nc: nc, prefix: prefix}
}

// Connect dials cfg.URL and returns a publisher that owns the connection.
func Connect(cfg config.NATSConfig, logger *logging.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	nc, err := nats.Connect(cfg.URL,
		nats.Name("inboxd"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(1*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn(context.Background(), "nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info(context.Background(), "nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.URL, err)
	}

	p := NewNATSPublisher(nc, cfg.SubjectPrefix)
	p.owned = true
	return p, nil
}

// Subject returns the subject for an event of type t in run runID.
func (p *NATSPublisher) Subject(runID string, t orchestrator.EventType) string {
	return fmt.Sprintf("%s.runs.%s.%s", p.prefix, runID, t)
}

// Publish implements orchestrator.EventPublisher.
func (p *NATSPublisher) Publish(ctx context.Context, ev orchestrator.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", ev.Type, err)
	}

	msg := nats.NewMsg(p.Subject(ev.RunID, ev.Type))
	msg.Data = data
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(http.Header(msg.Header)))

	if err := p.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s event: %w", ev.Type, err)
	}
	return nil
}

// Flush waits until the server has processed everything published so far.
func (p *NATSPublisher) Flush(ctx context.Context) error {
	return p.nc.FlushWithContext(ctx)
}

// Conn returns the underlying connection.
func (p *NATSPublisher) Conn() *nats.Conn {
	return p.nc
}

// Prefix returns the subject prefix.
func (p *NATSPublisher) Prefix() string {
	return p.prefix
}

// Close drains the connection if the publisher owns it.
func (p *NATSPublisher) Close() error {
	if !p.owned {
		return nil
	}
	return p.nc.Drain()
}
