package mcp

import (
	"context"
	"fmt"
	"log/slog"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/guardloop/guardloop/internal/alert"
	"github.com/guardloop/guardloop/internal/audit"
	"github.com/guardloop/guardloop/internal/hooks"
	"github.com/guardloop/guardloop/internal/policy"
	"github.com/guardloop/guardloop/internal/profile"
	"github.com/guardloop/guardloop/internal/telemetry"
)

// Config holds MCP server configuration.
type Config struct {
	ConfigPath  string
	ProfileName string
	AuditPath   string
	EventsPath  string
}

// Server exposes the hook pipeline as MCP tools over stdio, so an
// agent framework speaking MCP can consult the escalation engine
// without an HTTP sidecar.
type Server struct {
	mcpServer *mcpsdk.Server
	pipeline  *hooks.Pipeline
	auditLog  *audit.Log
	emitter   *telemetry.Emitter
}

// New creates an MCP server with the pipeline wired to the configured
// sinks.
func New(cfg Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	polCfg, hash, err := policy.LoadConfigWithHash(cfg.ConfigPath)
	if err != nil {
		return nil, err
	}

	profName := cfg.ProfileName
	if profName == "" {
		profName = profile.DefaultName
	}
	prof, err := profile.Load(profName)
	if err != nil {
		return nil, err
	}

	var auditLog *audit.Log
	if cfg.AuditPath != "" {
		auditLog, err = audit.Open(cfg.AuditPath)
		if err != nil {
			return nil, fmt.Errorf("open audit log: %w", err)
		}
	}

	var emitter *telemetry.Emitter
	if cfg.EventsPath != "" {
		emitter, err = telemetry.OpenEmitter(cfg.EventsPath, logger)
		if err != nil {
			return nil, err
		}
	}

	var alerts *alert.Dispatcher
	if len(polCfg.Alerts) > 0 {
		alerts = alert.NewDispatcher(polCfg.Alerts)
	}

	pl, err := hooks.New(hooks.Options{
		Config:     polCfg,
		ConfigHash: hash,
		Profile:    prof,
		Audit:      auditLog,
		Emitter:    emitter,
		Alerts:     alerts,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	s := &Server{
		pipeline: pl,
		auditLog: auditLog,
		emitter:  emitter,
	}

	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "guardloop",
			Version: "0.1.0",
		},
		nil,
	)

	s.registerTools()
	return s, nil
}

// Pipeline exposes the hook pipeline for tests.
func (s *Server) Pipeline() *hooks.Pipeline { return s.pipeline }

// Run starts the MCP server on stdio transport. Blocks until ctx is
// cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// Close flushes and closes the sinks.
func (s *Server) Close() error {
	if s.emitter != nil {
		if err := s.emitter.Close(); err != nil {
			return err
		}
	}
	if s.auditLog != nil {
		return s.auditLog.Close()
	}
	return nil
}

// registerTools adds the guardloop tools to the MCP server.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "guardloop_pre_action",
		Description: "Evaluate a user request before the agent acts on it. Returns the escalation decision; hard_stop means the request must not be executed.",
	}, s.handlePreAction)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "guardloop_mid_trajectory",
		Description: "Evaluate the newest transcript slice (planner output, tool call, tool result) against the session baseline while the agent works.",
	}, s.handleMidTrajectory)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "guardloop_post_action",
		Description: "Verify a completed tool execution: outcome status and anomaly indicators in its output.",
	}, s.handlePostAction)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "guardloop_release",
		Description: "Apply a human reviewer's override to a paused decision (soft_stop, clarify, or human_review). The release is audited.",
	}, s.handleRelease)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "guardloop_summary",
		Description: "Return the per-session run summary: decision counts per level, peak drift, and the final capability tier.",
	}, s.handleSummary)
}
