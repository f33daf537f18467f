package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httpserver "github.com/fyrsmithlabs/inboxd/internal/http"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	var (
		host string
		port int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serve the JSON API until interrupted.

Endpoints:
  GET  /health
  GET  /metrics
  GET  /api/v1/rules
  POST /api/v1/process   {"input": "...", "highPriorityCount": 0}
  POST /api/v1/batch     {"inputs": ["..."], "sharedSession": false}
  POST /api/v1/scrub     {"content": "..."} (when secrets scrubbing is enabled)`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				cfg := &httpserver.Config{
					Host:             a.cfg.Server.Host,
					Port:             a.cfg.Server.Port,
					BatchParallelism: a.cfg.Batch.Parallelism,
					Version:          version,
				}
				if cmd.Flags().Changed("host") {
					cfg.Host = host
				}
				if cmd.Flags().Changed("port") {
					cfg.Port = port
				}

				opts := []httpserver.Option{httpserver.WithTelemetry(a.telemetry)}
				if a.scrubber.Enabled() {
					opts = append(opts, httpserver.WithScrubber(a.scrubber))
				}

				srv, err := httpserver.NewServer(a.orch, a.logger, cfg, opts...)
				if err != nil {
					return err
				}
				return serveUntilDone(ctx, a, srv)
			})
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "listen host (overrides server.host)")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides server.port)")
	return cmd
}

func serveUntilDone(ctx context.Context, a *app, srv *httpserver.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error(shutdownCtx, "http shutdown failed", zap.Error(err))
		return err
	}
	return nil
}
