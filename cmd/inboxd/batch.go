package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/inboxd/internal/batch"
)

func newBatchCmd(flags *globalFlags) *cobra.Command {
	var (
		parallel int
		shared   bool
	)

	cmd := &cobra.Command{
		Use:   "batch [file|-]",
		Short: "Process many inputs separated by blank lines",
		Long: `Process a file of inputs. Inputs are separated by one or more blank lines.

By default each input gets its own session and runs concurrently. With
--shared-session the whole file is one session: inputs run in order and
share the high-priority budget.

Examples:
  inboxd batch inbox.txt
  inboxd batch --shared-session --parallel 1 inbox.txt
  cat inbox.txt | inboxd batch -`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("failed to open %s: %w", args[0], err)
				}
				defer f.Close()
				r = f
			}

			inputs, err := batch.ParseInputs(r)
			if err != nil {
				return err
			}
			if len(inputs) == 0 {
				return fmt.Errorf("no inputs to process")
			}

			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				p := a.cfg.Batch.Parallelism
				if cmd.Flags().Changed("parallel") {
					p = parallel
				}
				sharedSession := a.cfg.Batch.SharedSession || shared

				runner := batch.NewRunner(a.orch,
					batch.WithParallelism(p),
					batch.WithSharedSession(sharedSession),
					batch.WithLogger(a.logger),
					batch.WithTelemetry(a.telemetry),
				)
				report, err := runner.Run(ctx, inputs)
				if err != nil {
					return err
				}
				if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
					return err
				}
				if report.Failed > 0 {
					return fmt.Errorf("%d of %d inputs had failures", report.Failed, len(report.Items))
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&parallel, "parallel", batch.DefaultParallelism, "maximum concurrent runs")
	cmd.Flags().BoolVar(&shared, "shared-session", false, "process all inputs in one session")
	return cmd
}
