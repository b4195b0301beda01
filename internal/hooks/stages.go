package hooks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/guardloop/guardloop/internal/model"
	"github.com/guardloop/guardloop/internal/policy"
	"github.com/guardloop/guardloop/internal/session"
	"github.com/guardloop/guardloop/internal/signal"
	"github.com/guardloop/guardloop/internal/telemetry"
)

// EvaluatePreAction gates a user request before the agent acts on it.
// It begins a new turn, pins the session baseline on the first turn,
// and runs the intent scorer and injection scanner.
//
// Injection is an unconditional veto: a flagged request is a hard stop
// before the escalation policy is consulted, regardless of how benign
// the rest of the signals look.
func (p *Pipeline) EvaluatePreAction(ctx context.Context, sessionID, requestText string, candidateTools []string) (*Result, error) {
	if sessionID == "" {
		return nil, badInput("session_id", "must not be empty")
	}
	if strings.TrimSpace(requestText) == "" {
		return nil, badInput("request_text", "must not be empty")
	}

	sess, _ := p.registry.GetOrCreate(sessionID)
	sess.Lock()
	defer sess.Unlock()

	if sess.Terminal() {
		return nil, fmt.Errorf("%w: %s", session.ErrTerminal, sessionID)
	}

	sess.BeginTurn()
	st := sess.State()
	st.SetBaseline(requestText)

	if !p.profile.StageEnabled(model.StagePreAction) {
		return disabledResult(sess, model.StagePreAction), nil
	}

	cs := p.current()
	start := time.Now()
	evalCtx, cancel := context.WithTimeout(ctx, cs.cfg.StageTimeout())
	defer cancel()

	in := signal.Input{
		RequestText:    requestText,
		CandidateTools: candidateTools,
		BaselineTopic:  st.BaselineTopic,
	}

	var ev stageEval
	intentC := p.score(evalCtx, p.intent, in, &ev)
	injC := p.score(evalCtx, p.injection, in, &ev)
	if ev.canceled {
		return nil, ctx.Err()
	}

	// New turn: no planner uncertainty yet, prospective risk is the
	// riskiest candidate tool.
	actionRisk := 0.0
	for _, tool := range candidateTools {
		if r := p.intent.ToolRiskFor(tool); r > actionRisk {
			actionRisk = r
		}
	}
	st.SetTurnLocal(0, actionRisk)

	vec := model.SignalVector{
		MaliciousScore:    intentC.Score,
		InjectionDetected: injC.Flag,
		DriftScore:        st.CumulativeDrift,
		ViolationCount:    st.ViolationCount,
		ToolRisk:          max(actionRisk, intentC.Score),
	}

	var out policy.Outcome
	typ := telemetry.TypeDecision
	switch {
	case ev.timeout:
		out = timeoutOutcome(cs)
		typ = telemetry.TypeTimeout
	case injC.Flag:
		// The veto holds even when another scorer failed this turn.
		out = policy.Outcome{
			Level:  model.LevelHardStop,
			Signal: model.SignalInjection,
			Reason: fmt.Sprintf("prompt injection pattern detected: %s", strings.Join(injC.Matched, ", ")),
		}
	case ev.failed:
		vec.Uncertainty = 1
		sess.RecordFailure()
		typ = telemetry.TypePrimitiveFailure
		out = policy.Decide(vec, cs.cfg.ThresholdsFor(sessionID))
	default:
		out = policy.Decide(vec, cs.cfg.ThresholdsFor(sessionID))
	}

	return p.finish(sess, cs, model.StagePreAction, out, vec, typ, start)
}

// EvaluateMidTrajectory scores the newest transcript slice while the
// agent works: drift of the planner output against the session
// baseline, and constraint-violation markers in planning text or tool
// output. The drift delta folds into the cumulative score, so
// sustained mild drift crosses thresholds over several turns even
// though no single turn looks alarming.
func (p *Pipeline) EvaluateMidTrajectory(ctx context.Context, sessionID string, delta *model.TranscriptDelta) (*Result, error) {
	if sessionID == "" {
		return nil, badInput("session_id", "must not be empty")
	}
	if delta == nil {
		return nil, badInput("transcript_delta", "must not be nil")
	}
	if delta.PlannerOutput == "" && delta.ToolCall == "" && delta.ToolResult == nil {
		return nil, badInput("transcript_delta", "must carry planner output, a tool call, or a tool result")
	}
	if delta.Uncertainty < 0 || delta.Uncertainty > 1 {
		return nil, badInput("uncertainty", fmt.Sprintf("%v out of [0,1]", delta.Uncertainty))
	}

	sess, ok := p.registry.Get(sessionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	sess.Lock()
	defer sess.Unlock()

	if sess.Terminal() {
		return nil, fmt.Errorf("%w: %s", session.ErrTerminal, sessionID)
	}
	if sess.Turn() == 0 {
		// Pre-action was skipped (profile ablation); the transcript
		// slice still belongs to a turn.
		sess.BeginTurn()
	}

	st := sess.State()
	if !p.profile.StageEnabled(model.StageMidTrajectory) {
		return disabledResult(sess, model.StageMidTrajectory), nil
	}

	cs := p.current()
	start := time.Now()
	evalCtx, cancel := context.WithTimeout(ctx, cs.cfg.StageTimeout())
	defer cancel()

	in := signal.Input{
		BaselineTopic: st.BaselineTopic,
		Delta:         delta,
	}

	var ev stageEval
	driftC := p.score(evalCtx, p.drift, in, &ev)
	violC := p.score(evalCtx, p.violation, in, &ev)
	if ev.canceled {
		return nil, ctx.Err()
	}

	if ev.timeout {
		// Accumulators untouched: a timed-out scan contributes no
		// drift, the fail-safe verdict carries the escalation.
		return p.finish(sess, cs, model.StageMidTrajectory, timeoutOutcome(cs), snapshotVector(st), telemetry.TypeTimeout, start)
	}

	st.AccumulateDrift(driftC.Score, cs.cfg.DecayFactor)
	if violC.Flag {
		st.RecordViolation()
	}
	toolRisk := 0.0
	if delta.ToolResult != nil {
		toolRisk = delta.ToolResult.RiskScore
	}
	st.SetTurnLocal(delta.Uncertainty, toolRisk)

	if err := st.CheckInvariants(); err != nil {
		return p.corrupt(sess, cs, err)
	}

	vec := snapshotVector(st)
	typ := telemetry.TypeDecision
	if ev.failed {
		vec.Uncertainty = 1
		sess.RecordFailure()
		typ = telemetry.TypePrimitiveFailure
	}
	out := policy.Decide(vec, cs.cfg.ThresholdsFor(sessionID))
	return p.finish(sess, cs, model.StageMidTrajectory, out, vec, typ, start)
}

// EvaluatePostAction verifies a completed tool execution: the outcome
// verifier floors risk for blocked or errored executions and the
// anomaly scanner greps the output for indicators of unexpected
// behavior. An anomaly flag acts as a turn-local violation unless the
// config promotes it into the persistent count.
func (p *Pipeline) EvaluatePostAction(ctx context.Context, sessionID string, result *model.ToolResult) (*Result, error) {
	if sessionID == "" {
		return nil, badInput("session_id", "must not be empty")
	}
	if result == nil {
		return nil, badInput("tool_result", "must not be nil")
	}
	if result.Tool == "" {
		return nil, badInput("tool_result", "tool name must not be empty")
	}
	if result.RiskScore < 0 || result.RiskScore > 1 {
		return nil, badInput("risk_score", fmt.Sprintf("%v out of [0,1]", result.RiskScore))
	}
	// Normalize into a copy; the caller keeps ownership of result.
	tr := *result
	tr.Status = model.ParseToolStatus(string(tr.Status))

	sess, ok := p.registry.Get(sessionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	sess.Lock()
	defer sess.Unlock()

	if sess.Terminal() {
		return nil, fmt.Errorf("%w: %s", session.ErrTerminal, sessionID)
	}

	st := sess.State()
	if !p.profile.StageEnabled(model.StagePostAction) {
		return disabledResult(sess, model.StagePostAction), nil
	}

	cs := p.current()
	start := time.Now()
	evalCtx, cancel := context.WithTimeout(ctx, cs.cfg.StageTimeout())
	defer cancel()

	in := signal.Input{ToolResult: &tr}

	var ev stageEval
	outcomeC := p.score(evalCtx, p.outcome, in, &ev)
	anomalyC := p.score(evalCtx, p.anomaly, in, &ev)
	if ev.canceled {
		return nil, ctx.Err()
	}

	if ev.timeout {
		return p.finish(sess, cs, model.StagePostAction, timeoutOutcome(cs), snapshotVector(st), telemetry.TypeTimeout, start)
	}

	st.SetTurnLocal(st.Uncertainty, outcomeC.Score)

	anomalyFlag := anomalyC.Flag
	if anomalyFlag && cs.cfg.PromoteAnomaly {
		// Promoted into the persistent count; do not double-count it
		// as a turn-local violation equivalent below.
		st.RecordViolation()
		anomalyFlag = false
	}

	if err := st.CheckInvariants(); err != nil {
		return p.corrupt(sess, cs, err)
	}

	vec := snapshotVector(st)
	vec.AnomalyFlag = anomalyFlag
	typ := telemetry.TypeDecision
	if ev.failed {
		vec.Uncertainty = 1
		sess.RecordFailure()
		typ = telemetry.TypePrimitiveFailure
	}
	out := policy.Decide(vec, cs.cfg.ThresholdsFor(sessionID))
	return p.finish(sess, cs, model.StagePostAction, out, vec, typ, start)
}

// finish commits the stage verdict unless the session was killed while
// the evaluation ran, in which case the verdict is discarded and the
// terminal state reported instead.
func (p *Pipeline) finish(sess *session.Session, cs *configState, stage model.Stage, out policy.Outcome, vec model.SignalVector, typ string, start time.Time) (*Result, error) {
	if sess.Killed() {
		return nil, fmt.Errorf("%w: %s terminated during evaluation", session.ErrTerminal, sess.ID)
	}

	d := sess.NewDecision(stage, out.Level, out.Signal, out.Reason)
	p.commit(sess, cs, d, vec, typ, start)

	return &Result{
		Decision: d,
		Vector:   vec,
		State:    sess.State().Snapshot(),
		Tier:     sess.Tier(),
	}, nil
}

// corrupt handles a failed trajectory invariant check: the session is
// force-terminated and the caller receives ErrStateCorrupt. Other
// sessions are untouched.
func (p *Pipeline) corrupt(sess *session.Session, cs *configState, err error) (*Result, error) {
	p.logger.Error("trajectory state corrupt, terminating session", "session", sess.ID, "error", err)
	d := sess.Terminate(model.SignalCorruption, err.Error())
	p.metrics.ObserveTermination()
	p.record(sess, cs, d, model.SignalVector{}, telemetry.TypeTerminated, 0)
	return nil, fmt.Errorf("%w: %v", ErrStateCorrupt, err)
}

// snapshotVector builds the policy input from the current trajectory
// state.
func snapshotVector(st *model.TrajectoryState) model.SignalVector {
	return model.SignalVector{
		DriftScore:     st.CumulativeDrift,
		ViolationCount: st.ViolationCount,
		Uncertainty:    st.Uncertainty,
		ToolRisk:       st.LastToolRisk,
	}
}
