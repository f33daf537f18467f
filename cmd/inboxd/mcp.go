package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/inboxd/internal/mcp"
)

func newMCPCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve MCP tools over stdio",
		Long: `Serve the process_input, session_status and get_rules tools over the MCP
stdio transport. Logs go to stderr; stdout carries the protocol.

Example client configuration:
  {"command": "inboxd", "args": ["mcp"]}`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				srv, err := mcp.NewServer(&mcp.Config{
					Name:      "inboxd",
					Version:   version,
					Logger:    a.logger,
					Telemetry: a.telemetry,
				}, a.orch)
				if err != nil {
					return err
				}
				return srv.Run(ctx)
			})
		},
	}
}
