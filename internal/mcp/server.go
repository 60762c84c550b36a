package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/helpdesk/internal/agent"
	"github.com/fyrsmithlabs/helpdesk/internal/secrets"
	"github.com/fyrsmithlabs/helpdesk/internal/tools"
)

// Asker answers a question with a full agent run.
type Asker interface {
	Run(ctx context.Context, question string) (*agent.AgentRunResult, error)
}

// Server is an MCP server backed by the agent and its retrieval tools.
type Server struct {
	mcp      *mcp.Server
	asker    Asker
	registry *tools.Registry
	scrubber *secrets.Scrubber
	metrics  *Metrics
	logger   *zap.Logger
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "helpdesk")
	Name string

	// Version is the server version (default: "1.0.0")
	Version string

	// Logger for structured logging
	Logger *zap.Logger

	// Metrics records tool invocations. Defaults to the global meter.
	Metrics *Metrics
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "helpdesk",
		Version: "1.0.0",
		Logger:  zap.NewNop(),
	}
}

// NewServer creates a new MCP server. The registry is optional; without it
// only helpdesk_ask is registered.
func NewServer(cfg *Config, asker Asker, registry *tools.Registry, scrubber *secrets.Scrubber) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics(nil, cfg.Logger)
	}
	if asker == nil {
		return nil, errors.New("asker is required")
	}
	if scrubber == nil {
		return nil, errors.New("scrubber is required")
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		},
		nil,
	)

	s := &Server{
		mcp:      mcpServer,
		asker:    asker,
		registry: registry,
		scrubber: scrubber,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
	}

	s.registerTools()

	return s, nil
}

// Run starts the MCP server on the stdio transport.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport")
	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}

// Connect serves one session on t. Run is the stdio shortcut.
func (s *Server) Connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	return s.mcp.Connect(ctx, t, nil)
}
