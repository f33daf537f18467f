// Package http serves the inbox processor over a JSON API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/inboxd/internal/batch"
	"github.com/fyrsmithlabs/inboxd/internal/logging"
	"github.com/fyrsmithlabs/inboxd/internal/orchestrator"
	"github.com/fyrsmithlabs/inboxd/internal/secrets"
	"github.com/fyrsmithlabs/inboxd/internal/session"
	"github.com/fyrsmithlabs/inboxd/internal/telemetry"
)

const (
	defaultBodyLimit      = "1M"
	defaultMaxBatchInputs = 100
)

// Server provides HTTP endpoints for inboxd.
type Server struct {
	echo      *echo.Echo
	orch      *orchestrator.Orchestrator
	scrubber  *secrets.Scrubber
	telemetry *telemetry.Telemetry
	logger    *logging.Logger
	config    *Config
	scrape    *scrapeMetrics
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
	// BatchParallelism bounds concurrent runs inside one batch request.
	BatchParallelism int
	// MaxBatchInputs caps the inputs accepted by one batch request.
	MaxBatchInputs int
	Version        string
}

// Option configures a Server.
type Option func(*Server)

// WithScrubber exposes POST /api/v1/scrub backed by s.
func WithScrubber(s *secrets.Scrubber) Option {
	return func(srv *Server) { srv.scrubber = s }
}

// WithTelemetry enables OTEL request metrics and reports telemetry health.
func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(srv *Server) { srv.telemetry = t }
}

// NewServer creates a new HTTP server.
func NewServer(orch *orchestrator.Orchestrator, logger *logging.Logger, cfg *Config, opts ...Option) (*Server, error) {
	if orch == nil {
		return nil, fmt.Errorf("orchestrator cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Host: "localhost", Port: 9191}
	}
	if cfg.MaxBatchInputs <= 0 {
		cfg.MaxBatchInputs = defaultMaxBatchInputs
	}
	if cfg.BatchParallelism <= 0 {
		cfg.BatchParallelism = batch.DefaultParallelism
	}

	s := &Server{
		orch:   orch,
		logger: logger.Named("http"),
		config: cfg,
		scrape: newScrapeMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(defaultBodyLimit))
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		RequestIDHandler: func(c echo.Context, id string) {
			// Client supplied IDs that would be unsafe in logs are not propagated.
			if !session.ValidID(id) {
				return
			}
			req := c.Request()
			c.SetRequest(req.WithContext(logging.WithRequestID(req.Context(), id)))
		},
	}))
	e.Use(NewHTTPMetrics(s.telemetry.Meter(httpInstrumentationName), s.logger).MetricsMiddleware())
	e.Use(s.logRequests)

	s.echo = e
	s.registerRoutes()

	return s, nil
}

func (s *Server) logRequests(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)

		s.logger.Info(c.Request().Context(), "http request",
			zap.String("method", c.Request().Method),
			zap.String("uri", c.Request().RequestURI),
			zap.Int("status", c.Response().Status),
			zap.Duration("duration", time.Since(start)),
		)
		return err
	}
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(s.scrape.handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/process", s.handleProcess)
	v1.POST("/batch", s.handleBatch)
	v1.GET("/rules", s.handleRules)
	if s.scrubber != nil {
		v1.POST("/scrub", s.handleScrub)
	}
}

func (s *Server) handleHealth(c echo.Context) error {
	resp := HealthResponse{Status: "ok", Version: s.config.Version, Telemetry: "disabled"}
	if s.telemetry != nil && s.telemetry.IsEnabled() {
		resp.Telemetry = "healthy"
		if s.telemetry.Health().Degraded {
			resp.Telemetry = "degraded"
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// handleProcess runs one input in a fresh session. With ?format=entries only
// the entry list is returned.
func (s *Server) handleProcess(c echo.Context) error {
	ctx := c.Request().Context()

	var req ProcessRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn(ctx, "invalid process request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	limit := s.orch.Rules().MaxHighPriority
	if req.HighPriorityCount < 0 || req.HighPriorityCount > limit {
		return echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("highPriorityCount must be between 0 and %d", limit))
	}

	start := time.Now()
	res, err := s.orch.Run(ctx, req.Input, session.New(session.WithHighPriorityCount(req.HighPriorityCount)))
	s.scrape.observeDuration("process", time.Since(start))
	s.scrape.observeRun("process", res)
	if err != nil {
		return s.runError(ctx, err)
	}

	if c.QueryParam("format") == "entries" {
		return c.JSON(http.StatusOK, EntriesResponse(res.Entries))
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleBatch(c echo.Context) error {
	ctx := c.Request().Context()

	var req BatchRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn(ctx, "invalid batch request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Inputs) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "inputs field is required")
	}
	if len(req.Inputs) > s.config.MaxBatchInputs {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge,
			fmt.Sprintf("at most %d inputs per batch", s.config.MaxBatchInputs))
	}
	s.scrape.batchSize.Observe(float64(len(req.Inputs)))

	runner := batch.NewRunner(s.orch,
		batch.WithParallelism(s.config.BatchParallelism),
		batch.WithSharedSession(req.SharedSession),
		batch.WithLogger(s.logger),
		batch.WithTelemetry(s.telemetry),
	)

	start := time.Now()
	report, err := runner.Run(ctx, req.Inputs)
	if err != nil {
		s.logger.Error(ctx, "batch failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusServiceUnavailable, "batch interrupted")
	}
	s.scrape.observeDuration("batch", time.Since(start))
	for _, item := range report.Items {
		s.scrape.observeRun("batch", item.Result)
	}

	return c.JSON(http.StatusOK, report)
}

func (s *Server) handleRules(c echo.Context) error {
	rs := s.orch.Rules()
	tags := make([]string, len(rs.ContextTags))
	for i, t := range rs.ContextTags {
		tags[i] = string(t)
	}
	return c.JSON(http.StatusOK, RulesResponse{
		MaxHighPriority:   rs.MaxHighPriority,
		MaxSummaryBullets: rs.MaxSummaryBullets,
		MaxConceptualTags: rs.MaxConceptualTags,
		ContextTags:       tags,
		Instructions:      rs.Instructions(),
	})
}

func (s *Server) handleScrub(c echo.Context) error {
	ctx := c.Request().Context()

	var req ScrubRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn(ctx, "invalid scrub request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Content == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "content field is required")
	}

	result, err := s.scrubber.Scrub(req.Content)
	if err != nil {
		s.logger.Error(ctx, "scrub failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "secret detection unavailable")
	}

	s.logger.Debug(ctx, "scrubbed content", zap.Int("findings", result.TotalFindings))

	return c.JSON(http.StatusOK, ScrubResponse{
		Content:       result.Scrubbed,
		FindingsCount: result.TotalFindings,
		Rules:         result.RuleIDs(),
	})
}

func (s *Server) runError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, orchestrator.ErrEmptyInput):
		return echo.NewHTTPError(http.StatusBadRequest, "input field is required")
	default:
		s.logger.Error(ctx, "run failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "run failed")
	}
}

// Start starts the HTTP server. It returns http.ErrServerClosed after
// Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}

// Handler exposes the router for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
