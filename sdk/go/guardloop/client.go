package guardloop

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/guardloop/guardloop/internal/audit"
	"github.com/guardloop/guardloop/internal/hooks"
	"github.com/guardloop/guardloop/internal/policy"
	"github.com/guardloop/guardloop/internal/profile"
	"github.com/guardloop/guardloop/internal/telemetry"
)

// Client holds the hook pipeline for in-process evaluation.
// Thread-safe for concurrent sessions; turns within one session are
// serialized by the pipeline.
type Client struct {
	pipeline *hooks.Pipeline
	auditLog *audit.Log
	emitter  *telemetry.Emitter
}

// New creates a Client with the given options.
func New(opts ...Option) (*Client, error) {
	cfg := clientConfig{sensitivity: -1}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	polCfg, hash, err := policy.LoadConfigWithHash(cfg.configPath)
	if err != nil {
		return nil, fmt.Errorf("guardloop: load sensitivity config: %w", err)
	}
	if cfg.sensitivity >= 0 {
		polCfg.BaseSensitivity = cfg.sensitivity
	}

	profName := cfg.profileName
	if profName == "" {
		profName = profile.DefaultName
	}
	prof, err := profile.Load(profName)
	if err != nil {
		return nil, fmt.Errorf("guardloop: load profile %q: %w", profName, err)
	}

	var auditLog *audit.Log
	if cfg.auditPath != "" {
		auditLog, err = audit.Open(cfg.auditPath)
		if err != nil {
			return nil, fmt.Errorf("guardloop: %w", err)
		}
	}
	var emitter *telemetry.Emitter
	if cfg.eventsPath != "" {
		emitter, err = telemetry.OpenEmitter(cfg.eventsPath, cfg.logger)
		if err != nil {
			return nil, fmt.Errorf("guardloop: %w", err)
		}
	}

	pl, err := hooks.New(hooks.Options{
		Config:     polCfg,
		ConfigHash: hash,
		Profile:    prof,
		Audit:      auditLog,
		Emitter:    emitter,
		Logger:     cfg.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("guardloop: %w", err)
	}

	return &Client{pipeline: pl, auditLog: auditLog, emitter: emitter}, nil
}

// PreAction gates a user request before the agent acts on it.
func (c *Client) PreAction(ctx context.Context, sessionID, requestText string, candidateTools []string) (Verdict, error) {
	res, err := c.pipeline.EvaluatePreAction(ctx, sessionID, requestText, candidateTools)
	if err != nil {
		return Verdict{}, err
	}
	return toVerdict(res), nil
}

// MidTrajectory scores the newest transcript slice against the session
// baseline.
func (c *Client) MidTrajectory(ctx context.Context, sessionID string, delta *Delta) (Verdict, error) {
	res, err := c.pipeline.EvaluateMidTrajectory(ctx, sessionID, delta)
	if err != nil {
		return Verdict{}, err
	}
	return toVerdict(res), nil
}

// PostAction verifies a completed tool execution.
func (c *Client) PostAction(ctx context.Context, sessionID string, result *ToolResult) (Verdict, error) {
	res, err := c.pipeline.EvaluatePostAction(ctx, sessionID, result)
	if err != nil {
		return Verdict{}, err
	}
	return toVerdict(res), nil
}

// Release applies a human reviewer's override to a queued pause.
func (c *Client) Release(sessionID, decisionID, reviewerID string) (Verdict, error) {
	res, err := c.pipeline.Release(sessionID, decisionID, reviewerID)
	if err != nil {
		return Verdict{}, err
	}
	return toVerdict(res), nil
}

// Terminate force-terminates a session by operator action.
func (c *Client) Terminate(sessionID, reason string) error {
	_, err := c.pipeline.Terminate(sessionID, reason)
	return err
}

// Summary returns the per-run decision summary for a session.
func (c *Client) Summary(sessionID string) (telemetry.RunSummary, error) {
	return c.pipeline.Summary(sessionID)
}

// Close flushes and closes the audit and telemetry sinks.
func (c *Client) Close() error {
	var firstErr error
	if c.emitter != nil {
		if err := c.emitter.Close(); err != nil {
			firstErr = err
		}
	}
	if c.auditLog != nil {
		if err := c.auditLog.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
