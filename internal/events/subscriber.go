package events

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/fyrsmithlabs/inboxd/internal/orchestrator"
)

// Handler receives decoded events.
type Handler func(subject string, ev orchestrator.Event)

// Subscribe delivers events for runID, or for every run when runID is empty.
// Messages that do not decode are skipped.
func Subscribe(nc *nats.Conn, prefix, runID string, h Handler) (*nats.Subscription, error) {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if runID == "" {
		runID = "*"
	}
	subject := fmt.Sprintf("%s.runs.%s.>", prefix, runID)

	sub, err := nc.Subscribe(subject, func(msg *nats.Msg) {
		var ev orchestrator.Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return
		}
		h(msg.Subject, ev)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	return sub, nil
}
