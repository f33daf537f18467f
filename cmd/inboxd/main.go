// Command inboxd turns unstructured input into structured tasks and notes
// under the Minimalist Rules.
//
// Usage:
//
//	# Process one input (offline heuristic gateway by default)
//	inboxd process "Review the Q3 report by Friday, high priority for work"
//
//	# Use a remote model
//	GOOGLE_API_KEY=... inboxd --provider googleai process -
//
//	# Serve the HTTP API or MCP over stdio
//	inboxd serve
//	inboxd mcp
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configFile string
	envFile    string
	provider   string
	logLevel   string
	logFormat  string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "inboxd",
		Short: "Zero-based inbox processor",
		Long: `inboxd classifies unstructured input as a task or a note, extracts its
fields through a model gateway and enforces the Minimalist Rules:
at most 3 high-priority tasks per session, exactly one context tag per
task, at most 5 summary bullets and 3 conceptual tags per note.`,
		Version:       version + " (" + gitCommit + ")",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configFile, "config", "", "config file (default ~/.config/inboxd/config.yaml)")
	pf.StringVar(&flags.envFile, "env-file", ".env", "dotenv file loaded before configuration")
	pf.StringVar(&flags.provider, "provider", "", "gateway provider: heuristic, googleai, openai or anthropic")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level: trace, debug, info, warn or error")
	pf.StringVar(&flags.logFormat, "log-format", "", "log format: console or json")

	root.AddCommand(
		newProcessCmd(flags),
		newBatchCmd(flags),
		newDemoCmd(flags),
		newServeCmd(flags),
		newMCPCmd(flags),
		newWatchCmd(flags),
	)
	return root
}
