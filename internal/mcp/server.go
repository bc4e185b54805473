// Package mcp provides an MCP (Model Context Protocol) server that lets an
// external agent drive a roadrunner simulation over stdio.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/nvandessel/roadrunner/internal/constants"
	"github.com/nvandessel/roadrunner/internal/engine"
	"github.com/nvandessel/roadrunner/internal/logging"
	"github.com/nvandessel/roadrunner/internal/metrics"
	"github.com/nvandessel/roadrunner/internal/ratelimit"
	"github.com/nvandessel/roadrunner/internal/store"
)

// PolicyName is the policy recorded for episodes driven over MCP.
const PolicyName = "mcp"

// Server wraps the MCP SDK server and owns one simulation session.
type Server struct {
	server *sdk.Server

	mu      sync.Mutex
	envCfg  engine.Config
	env     *engine.Engine
	episode session

	toolLimiters ratelimit.ToolLimiters
	auditLogger  *AuditLogger
	logger       *slog.Logger
	store        store.EpisodeStore
	tracer       *logging.TraceLogger
	metrics      *metrics.Collector
}

// session tracks the episode currently being played.
type session struct {
	id       string
	seed     uint64
	steps    int
	ret      float64
	finished bool
}

// Config holds server configuration.
type Config struct {
	Name    string // Server name (e.g., "roadrunner")
	Version string // Server version

	Engine engine.Config // Simulation parameters
	Seed   uint64        // Seed for the first episode; zero picks one

	// AuditDir receives audit.jsonl. Empty disables auditing.
	AuditDir string

	Logger  *slog.Logger
	Store   store.EpisodeStore   // Optional; finished episodes are recorded here
	Tracer  *logging.TraceLogger // Optional per-tick trace
	Metrics *metrics.Collector   // Optional
}

// NewServer creates a new MCP server with roadrunner tools.
func NewServer(cfg *Config) (*Server, error) {
	if err := cfg.Engine.Validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, &sdk.ServerOptions{
		InitializedHandler: func(ctx context.Context, req *sdk.InitializedRequest) {
			logger.Debug("mcp client initialized")
		},
	})

	s := &Server{
		server:       mcpServer,
		envCfg:       cfg.Engine,
		toolLimiters: ratelimit.NewToolLimiters(),
		logger:       logger,
		store:        cfg.Store,
		tracer:       cfg.Tracer,
		metrics:      cfg.Metrics,
	}

	if err := s.newEpisode(cfg.Seed); err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	if cfg.AuditDir != "" {
		s.auditLogger = NewAuditLogger(cfg.AuditDir)
	}

	if err := s.registerTools(); err != nil {
		s.auditLogger.Close()
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	if err := s.registerResources(); err != nil {
		s.auditLogger.Close()
		return nil, fmt.Errorf("failed to register resources: %w", err)
	}

	return s, nil
}

// Run starts the MCP server over stdio transport.
// This blocks until the client disconnects or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	notifySignals(sigChan)

	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	err := s.server.Run(ctx, &sdk.StdioTransport{})

	s.Close()

	return err
}

// Close records an unfinished episode as aborted and releases the audit log.
// The episode store belongs to the caller and is left open.
func (s *Server) Close() error {
	s.mu.Lock()
	s.finishEpisode(context.Background(), constants.OutcomeAborted)
	s.mu.Unlock()

	return s.auditLogger.Close()
}
