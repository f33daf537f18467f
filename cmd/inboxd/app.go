package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/inboxd/internal/config"
	"github.com/fyrsmithlabs/inboxd/internal/events"
	"github.com/fyrsmithlabs/inboxd/internal/gateway"
	"github.com/fyrsmithlabs/inboxd/internal/logging"
	"github.com/fyrsmithlabs/inboxd/internal/orchestrator"
	"github.com/fyrsmithlabs/inboxd/internal/secrets"
	"github.com/fyrsmithlabs/inboxd/internal/telemetry"
)

// app holds the wired dependencies shared by the subcommands.
type app struct {
	cfg       *config.Config
	logger    *logging.Logger
	telemetry *telemetry.Telemetry
	scrubber  *secrets.Scrubber
	publisher *events.NATSPublisher
	orch      *orchestrator.Orchestrator
}

// loadConfig reads .env, the config file and the environment, then applies
// command line overrides.
func loadConfig(flags *globalFlags) (*config.Config, error) {
	if err := config.LoadDotEnv(flags.envFile); err != nil {
		return nil, err
	}

	cfg, err := config.LoadWithFile(flags.configFile)
	if err != nil {
		return nil, err
	}

	if flags.provider != "" && flags.provider != cfg.Gateway.Provider {
		cfg.Gateway.Provider = flags.provider
		cfg.Gateway.APIKey = ""
		cfg.ResolveAPIKey(os.Getenv)
	}
	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
	}
	if flags.logFormat != "" {
		cfg.Logging.Format = flags.logFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newApp initializes every dependency in order:
//  1. configuration
//  2. telemetry, then the logger on top of it
//  3. gateway, scrubber and optional NATS publisher
//  4. the orchestrator
func newApp(ctx context.Context, flags *globalFlags) (*app, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}

	tel, err := telemetry.New(ctx, telemetry.FromSettings(cfg.Telemetry, version))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	logCfg, err := logging.FromSettings(cfg.Logging)
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewLogger(logCfg, tel.LoggerProvider())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, telemetry: tel}

	gw, err := gateway.New(ctx, cfg.Gateway, logger)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("failed to initialize gateway: %w", err)
	}

	a.scrubber, err = secrets.New(secrets.FromSettings(cfg.Secrets))
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("failed to initialize secret scrubber: %w", err)
	}

	opts := []orchestrator.Option{
		orchestrator.WithLogger(logger),
		orchestrator.WithTelemetry(tel),
		orchestrator.WithScrubber(a.scrubber),
	}

	if cfg.NATS.Enabled {
		a.publisher, err = events.Connect(cfg.NATS, logger)
		if err != nil {
			a.Close(ctx)
			return nil, err
		}
		opts = append(opts, orchestrator.WithEventPublisher(a.publisher))
		logger.Info(ctx, "publishing run events", zap.String("url", cfg.NATS.URL))
	}

	a.orch = orchestrator.New(gw, opts...)

	if status := tel.Health(); status.Degraded {
		logger.Warn(ctx, "telemetry degraded", zap.String("reason", status.Reason))
	}
	logger.Debug(ctx, "inboxd initialized",
		zap.String("provider", cfg.Gateway.Provider),
		zap.Bool("scrubbing", a.scrubber.Enabled()),
		zap.Bool("nats", a.publisher != nil))

	return a, nil
}

// Close flushes events, telemetry and logs.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.publisher != nil {
		if err := a.publisher.Flush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flush events: %w", err))
		}
		if err := a.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close nats: %w", err))
		}
	}
	if a.telemetry != nil {
		if err := a.telemetry.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown telemetry: %w", err))
		}
	}
	if a.logger != nil {
		if err := a.logger.Sync(); err != nil {
			errs = append(errs, fmt.Errorf("sync logger: %w", err))
		}
	}
	return errors.Join(errs...)
}
