package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/inboxd/internal/session"
)

const closeTimeout = 5 * time.Second

// withApp builds the app, runs fn and closes the app on a fresh context so
// shutdown still flushes after an interrupt.
func withApp(cmd *cobra.Command, flags *globalFlags, fn func(context.Context, *app) error) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, flags)
	if err != nil {
		return err
	}
	runErr := fn(ctx, a)

	closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := a.Close(closeCtx); err != nil && runErr == nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
	}
	return runErr
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readInput joins args, or reads stdin when there are none or the only
// argument is "-".
func readInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 0 || (len(args) == 1 && args[0] == "-") {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("failed to read from stdin: %w", err)
		}
		return string(data), nil
	}
	return strings.Join(args, " "), nil
}

func newProcessCmd(flags *globalFlags) *cobra.Command {
	var (
		format    string
		inputFile string
		preset    int
	)

	cmd := &cobra.Command{
		Use:   "process [text|-]",
		Short: "Process one input and print the entries as JSON",
		Long: `Process one input through the orchestrator and print the result.

Examples:
  # Inline text
  inboxd process "Review the Q3 report by Friday, high priority for work"

  # From stdin or a file
  pbpaste | inboxd process -
  inboxd process --file notes.txt

  # Start with part of the high-priority budget already used
  inboxd process --high-priority-count 3 "Call the bank today, urgent"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "entries" && format != "result" {
				return fmt.Errorf("unknown format %q (want entries or result)", format)
			}

			var input string
			if inputFile != "" {
				data, err := os.ReadFile(inputFile)
				if err != nil {
					return fmt.Errorf("failed to read file %s: %w", inputFile, err)
				}
				input = string(data)
			} else {
				var err error
				if input, err = readInput(cmd, args); err != nil {
					return err
				}
			}

			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				res, err := a.orch.Run(ctx, input, session.New(session.WithHighPriorityCount(preset)))
				if err != nil {
					return err
				}

				var out any = res
				if format == "entries" {
					out = res.Entries
				}
				if err := writeJSON(cmd.OutOrStdout(), out); err != nil {
					return err
				}
				if res.HasErrors() {
					return fmt.Errorf("%d step(s) failed: %s", len(res.Errors), res.Errors[0].Message)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&format, "format", "entries", "output format: entries or result")
	cmd.Flags().StringVarP(&inputFile, "file", "f", "", "read input from file")
	cmd.Flags().IntVar(&preset, "high-priority-count", 0, "high-priority tasks already used in this session")
	return cmd
}
