package hooks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/guardloop/guardloop/internal/alert"
	"github.com/guardloop/guardloop/internal/audit"
	"github.com/guardloop/guardloop/internal/model"
	"github.com/guardloop/guardloop/internal/policy"
	"github.com/guardloop/guardloop/internal/profile"
	"github.com/guardloop/guardloop/internal/session"
	"github.com/guardloop/guardloop/internal/signal"
	"github.com/guardloop/guardloop/internal/telemetry"
)

// Options configures a Pipeline. Config and Profile are required in
// spirit but default sensibly; sinks (Audit, Emitter, Metrics, Alerts)
// are optional and skipped when nil.
type Options struct {
	Config     *policy.Config
	ConfigHash string
	Profile    *profile.Profile
	Registry   *session.Registry
	Audit      *audit.Log
	Emitter    *telemetry.Emitter
	Metrics    *telemetry.Metrics
	Alerts     *alert.Dispatcher
	Logger     *slog.Logger
}

// configState is the unit of atomic config replacement. Hot reload
// swaps the whole pair so a decision never mixes thresholds from one
// config generation with the hash of another.
type configState struct {
	cfg  *policy.Config
	hash string
}

// intentSafeguard extends the scoring primitive with the tool risk
// metadata lookup the pre-action stage needs.
type intentSafeguard interface {
	signal.Safeguard
	ToolRiskFor(tool string) float64
}

// Pipeline wires the scoring primitives, session registry, escalation
// policy, and sinks into the three hook stages. One Pipeline serves
// all sessions; per-session ordering comes from the session lock.
type Pipeline struct {
	cfg atomic.Pointer[configState]

	profile  *profile.Profile
	registry *session.Registry

	intent    intentSafeguard
	injection signal.Safeguard
	drift     signal.Safeguard
	violation signal.Safeguard
	outcome   signal.Safeguard
	anomaly   signal.Safeguard

	auditLog *audit.Log
	emitter  *telemetry.Emitter
	metrics  *telemetry.Metrics
	alerts   *alert.Dispatcher
	logger   *slog.Logger
}

// New builds a pipeline. Profile patterns are compiled once here so a
// bad pattern is a startup error, not a per-request one.
func New(opts Options) (*Pipeline, error) {
	prof := opts.Profile
	if prof == nil {
		var err error
		prof, err = profile.Load(profile.DefaultName)
		if err != nil {
			return nil, fmt.Errorf("load default profile: %w", err)
		}
	}

	cfg := opts.Config
	if cfg == nil {
		cfg = policy.DefaultConfig()
	}
	cfg = prof.ApplyToConfig(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	intent, err := signal.NewIntentScorer(prof.Patterns.Malicious, nil)
	if err != nil {
		return nil, fmt.Errorf("profile %q: %w", prof.Name, err)
	}
	injection, err := signal.NewInjectionScanner(prof.Patterns.Injection)
	if err != nil {
		return nil, fmt.Errorf("profile %q: %w", prof.Name, err)
	}
	violation, err := signal.NewViolationScanner(prof.Patterns.Violation)
	if err != nil {
		return nil, fmt.Errorf("profile %q: %w", prof.Name, err)
	}

	reg := opts.Registry
	if reg == nil {
		reg = session.NewRegistry()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pipeline{
		profile:   prof,
		registry:  reg,
		intent:    intent,
		injection: injection,
		drift:     signal.NewDriftScorer(),
		violation: violation,
		outcome:   signal.NewOutcomeVerifier(),
		anomaly:   signal.NewAnomalyScanner(prof.Patterns.Anomaly),
		auditLog:  opts.Audit,
		emitter:   opts.Emitter,
		metrics:   opts.Metrics,
		alerts:    opts.Alerts,
		logger:    logger,
	}
	p.cfg.Store(&configState{cfg: cfg, hash: opts.ConfigHash})
	return p, nil
}

// SetConfig atomically replaces the sensitivity configuration.
// Evaluations already holding the old config finish under it.
func (p *Pipeline) SetConfig(cfg *policy.Config, hash string) error {
	cfg = p.profile.ApplyToConfig(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	p.cfg.Store(&configState{cfg: cfg, hash: hash})
	return nil
}

// Config returns the configuration currently in effect.
func (p *Pipeline) Config() *policy.Config { return p.cfg.Load().cfg }

// ConfigHash returns the hash of the configuration currently in effect.
func (p *Pipeline) ConfigHash() string { return p.cfg.Load().hash }

// Profile returns the active safeguard profile.
func (p *Pipeline) Profile() *profile.Profile { return p.profile }

// Registry exposes the session registry for transports and tests.
func (p *Pipeline) Registry() *session.Registry { return p.registry }

// ToolRisk returns the inherent risk metadata for a tool name.
func (p *Pipeline) ToolRisk(tool string) float64 { return p.intent.ToolRiskFor(tool) }

func (p *Pipeline) current() *configState { return p.cfg.Load() }

// Result is what a hook stage hands back to the agent loop: the
// committed decision, the signal vector it was decided on, and a
// snapshot of the trajectory state after the stage's updates.
type Result struct {
	Decision model.EscalationDecision `json:"decision"`
	Vector   model.SignalVector       `json:"vector"`
	State    model.TrajectoryState    `json:"state"`
	Tier     model.Tier               `json:"tier"`
}

// stageEval tracks degraded outcomes across the primitives of one
// stage evaluation.
type stageEval struct {
	timeout  bool
	canceled bool
	failed   bool
}

// score runs one safeguard, folding its error into the stage outcome.
// A failed primitive contributes a zero score; the stage compensates
// by maximizing uncertainty so the failure escalates through the
// normal policy path instead of silently passing.
func (p *Pipeline) score(ctx context.Context, sg signal.Safeguard, in signal.Input, ev *stageEval) signal.Contribution {
	if ev.timeout || ev.canceled {
		return signal.Contribution{}
	}
	c, err := runSafeguard(ctx, sg, in)
	switch {
	case err == nil:
		return c
	case errors.Is(err, context.DeadlineExceeded):
		ev.timeout = true
	case errors.Is(err, context.Canceled):
		ev.canceled = true
	default:
		p.logger.Warn("safeguard failed", "safeguard", sg.Name(), "error", err)
		ev.failed = true
	}
	return signal.Contribution{}
}

// runSafeguard bounds a safeguard call by ctx. Safeguards are expected
// to be fast and in-process, but the interface admits slow pluggable
// ones, so the stage budget is enforced here rather than trusted.
func runSafeguard(ctx context.Context, sg signal.Safeguard, in signal.Input) (signal.Contribution, error) {
	if err := ctx.Err(); err != nil {
		return signal.Contribution{}, err
	}
	type scored struct {
		c   signal.Contribution
		err error
	}
	ch := make(chan scored, 1)
	go func() {
		c, err := sg.Score(ctx, in)
		ch <- scored{c: c, err: err}
	}()
	select {
	case s := <-ch:
		return s.c, s.err
	case <-ctx.Done():
		return signal.Contribution{}, ctx.Err()
	}
}

// timeoutOutcome is the fail-safe verdict for a stage that exceeded
// its evaluation budget. Never a pass.
func timeoutOutcome(cs *configState) policy.Outcome {
	return policy.Outcome{
		Level:  model.LevelSoftStop,
		Signal: model.SignalTimeout,
		Reason: fmt.Sprintf("stage evaluation exceeded %s budget", cs.cfg.StageTimeout()),
	}
}

// commit appends the decision to the session log and fans it out to
// the audit chain, telemetry, metrics, and alerts. Caller holds the
// session lock.
func (p *Pipeline) commit(sess *session.Session, cs *configState, d model.EscalationDecision, vec model.SignalVector, typ string, start time.Time) {
	wasTerminal := sess.Terminal()
	sess.Append(d)
	elapsed := time.Since(start)

	p.record(sess, cs, d, vec, typ, elapsed)

	if !wasTerminal && sess.Terminal() {
		p.metrics.ObserveTermination()
		term := sess.NewDecision(d.Stage, model.LevelHardStop, d.Signal,
			fmt.Sprintf("session terminated: %s", d.Reason))
		sess.AppendFinal(term)
		p.record(sess, cs, term, vec, telemetry.TypeTerminated, 0)
	}
}

// record writes one decision to the sinks without touching the session
// log. Sink failures are logged, never propagated: the decision stands
// whether or not telemetry lands.
func (p *Pipeline) record(sess *session.Session, cs *configState, d model.EscalationDecision, vec model.SignalVector, typ string, elapsed time.Duration) {
	if p.auditLog != nil {
		if err := p.auditLog.Record(auditEntry(d, cs.hash)); err != nil {
			p.logger.Error("audit write failed", "session", d.SessionID, "error", err)
		}
	}
	if p.emitter != nil {
		p.emitter.Emit(telemetry.FromDecision(typ, d, vec, elapsed))
	}
	switch typ {
	case telemetry.TypeTimeout:
		p.metrics.ObserveTimeout(d.Stage)
	case telemetry.TypePrimitiveFailure:
		p.metrics.ObserveFailure()
	}
	p.metrics.ObserveDecision(d.Stage, d.Level, elapsed)

	if p.alerts != nil {
		p.alerts.Dispatch(alert.Event{
			Timestamp:  d.Timestamp.Format(time.RFC3339),
			SessionID:  d.SessionID,
			Turn:       d.Turn,
			Stage:      string(d.Stage),
			Level:      string(d.Level),
			Signal:     string(d.Signal),
			Reason:     d.Reason,
			Tier:       sess.Tier().String(),
			ConfigHash: cs.hash,
			Type:       alertType(typ),
		})
	}
}

// alertType maps telemetry event types onto the alert payload's type
// field. Plain decisions alert on level alone.
func alertType(typ string) string {
	if typ == telemetry.TypeDecision {
		return ""
	}
	return typ
}

func auditEntry(d model.EscalationDecision, configHash string) audit.Entry {
	return audit.Entry{
		Timestamp:  d.Timestamp.Format(time.RFC3339Nano),
		SessionID:  d.SessionID,
		Turn:       d.Turn,
		Stage:      string(d.Stage),
		Level:      string(d.Level),
		Signal:     string(d.Signal),
		Reason:     d.Reason,
		ReleasedBy: d.ReleasedBy,
		ConfigHash: configHash,
	}
}

// disabledResult is returned when the active profile does not run a
// stage. Nothing is scored, committed, or emitted; the agent proceeds.
func disabledResult(sess *session.Session, stage model.Stage) *Result {
	return &Result{
		Decision: model.EscalationDecision{
			SessionID: sess.ID,
			Turn:      sess.Turn(),
			Stage:     stage,
			Level:     model.LevelNone,
			Signal:    model.SignalNone,
			Reason:    fmt.Sprintf("%s stage disabled by profile", stage),
			Timestamp: time.Now().UTC(),
		},
		State: sess.State().Snapshot(),
		Tier:  sess.Tier(),
	}
}

// Release applies a human reviewer's override to a queued soft_stop,
// clarify, or human_review decision. The release is itself an audited
// decision; it never rewinds the trajectory accumulators.
func (p *Pipeline) Release(sessionID, decisionID, reviewerID string) (*Result, error) {
	if reviewerID == "" {
		return nil, badInput("reviewer_id", "must not be empty")
	}
	sess, ok := p.registry.Get(sessionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	sess.Lock()
	defer sess.Unlock()

	d, err := sess.Release(decisionID, reviewerID)
	if err != nil {
		return nil, err
	}

	cs := p.current()
	p.record(sess, cs, d, model.SignalVector{}, telemetry.TypeRelease, 0)
	return &Result{Decision: d, State: sess.State().Snapshot(), Tier: sess.Tier()}, nil
}

// Terminate force-terminates a session by operator action. The kill
// flag is set before taking the lock so an in-flight evaluation
// observes it and discards its verdict.
func (p *Pipeline) Terminate(sessionID, reason string) (*Result, error) {
	sess, ok := p.registry.Get(sessionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	sess.Kill()

	sess.Lock()
	defer sess.Unlock()

	if sess.Terminal() {
		return nil, fmt.Errorf("%w: %s", session.ErrTerminal, sessionID)
	}
	if reason == "" {
		reason = "terminated by operator"
	}
	d := sess.Terminate(model.SignalOperator, reason)

	cs := p.current()
	p.metrics.ObserveTermination()
	p.record(sess, cs, d, model.SignalVector{}, telemetry.TypeTerminated, 0)
	return &Result{Decision: d, State: sess.State().Snapshot(), Tier: sess.Tier()}, nil
}

// Summary returns the per-run telemetry summary for a session.
func (p *Pipeline) Summary(sessionID string) (telemetry.RunSummary, error) {
	sess, ok := p.registry.Get(sessionID)
	if !ok {
		return telemetry.RunSummary{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	sess.Lock()
	defer sess.Unlock()
	return telemetry.Summarize(sess.Decisions(), sess.State().Snapshot(), sess.Tier()), nil
}
