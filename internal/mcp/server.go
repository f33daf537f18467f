package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/fyrsmithlabs/inboxd/internal/logging"
	"github.com/fyrsmithlabs/inboxd/internal/orchestrator"
	"github.com/fyrsmithlabs/inboxd/internal/telemetry"
)

// Server is an MCP server backed by one orchestrator.
type Server struct {
	mcp      *mcp.Server
	orch     *orchestrator.Orchestrator
	sessions *sessionRegistry
	metrics  *Metrics
	logger   *logging.Logger
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "inboxd")
	Name string

	// Version is the server version (default: "dev")
	Version string

	Logger    *logging.Logger
	Telemetry *telemetry.Telemetry
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "inboxd",
		Version: "dev",
		Logger:  logging.NewNop(),
	}
}

// NewServer creates an MCP server and registers its tools.
func NewServer(cfg *Config, orch *orchestrator.Orchestrator) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if orch == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	name, version := cfg.Name, cfg.Version
	if name == "" {
		name = "inboxd"
	}
	if version == "" {
		version = "dev"
	}

	s := &Server{
		mcp:      mcp.NewServer(&mcp.Implementation{Name: name, Version: version}, nil),
		orch:     orch,
		sessions: newSessionRegistry(),
		metrics:  NewMetrics(cfg.Telemetry.Meter(instrumentationName), logger),
		logger:   logger.Named("mcp"),
	}
	s.registerTools()

	return s, nil
}

// Run serves MCP on stdio until ctx is done or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info(ctx, "starting MCP server on stdio transport")
	return s.RunTransport(ctx, &mcp.StdioTransport{})
}

// RunTransport serves MCP on t.
func (s *Server) RunTransport(ctx context.Context, t mcp.Transport) error {
	if err := s.mcp.Run(ctx, t); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}
