package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/inboxd/internal/events"
	"github.com/fyrsmithlabs/inboxd/internal/orchestrator"
)

func newWatchCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [run-id]",
		Short: "Stream run events from NATS",
		Long: `Print run lifecycle events published by other inboxd processes, one JSON
object per line. Without a run ID every run is shown. Requires nats.enabled.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := ""
			if len(args) == 1 {
				runID = args[0]
			}

			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				if a.publisher == nil {
					return fmt.Errorf("nats is disabled; set nats.enabled or INBOXD_NATS_ENABLED=true")
				}

				var mu sync.Mutex
				out := cmd.OutOrStdout()
				sub, err := events.Subscribe(a.publisher.Conn(), a.publisher.Prefix(), runID,
					func(_ string, ev orchestrator.Event) {
						mu.Lock()
						defer mu.Unlock()
						_ = writeEventLine(out, ev)
					})
				if err != nil {
					return err
				}
				defer sub.Unsubscribe()

				<-ctx.Done()
				return nil
			})
		},
	}
	return cmd
}

type eventLine struct {
	At      time.Time              `json:"at"`
	RunID   string                 `json:"runId"`
	Type    orchestrator.EventType `json:"type"`
	Summary string                 `json:"summary,omitempty"`
}

func writeEventLine(w io.Writer, ev orchestrator.Event) error {
	line := eventLine{At: ev.At, RunID: ev.RunID, Type: ev.Type}
	switch {
	case ev.Type == orchestrator.EventTransition:
		line.Summary = fmt.Sprintf("%s -> %s", ev.From, ev.To)
	case ev.Error != nil:
		line.Summary = fmt.Sprintf("%s %s: %s", ev.Error.Stage, ev.Error.Kind, ev.Error.Message)
	case ev.Entry != nil:
		line.Summary = string(ev.Entry.ToolUsed)
	case ev.Result != nil:
		line.Summary = fmt.Sprintf("%d entries, %d errors", len(ev.Result.Entries), len(ev.Result.Errors))
	}
	data, err := json.Marshal(line)
	if err != nil {
		return err
	}
	_, err = w.Write(append(data, '\n'))
	return err
}
