package model

import "fmt"

// TrajectoryState is the evolving per-session accumulator that the
// escalation policy reasons about. It is owned exclusively by its
// session; all mutation happens under the session's lock.
//
// CumulativeDrift and ViolationCount are monotonically non-decreasing.
// There is deliberately no decrement path: a human override release
// appends a decision but leaves the accumulators untouched.
type TrajectoryState struct {
	SessionID       string  `json:"session_id"`
	BaselineTopic   string  `json:"baseline_topic"`
	CumulativeDrift float64 `json:"cumulative_drift"`
	ViolationCount  int     `json:"violation_count"`
	Uncertainty     float64 `json:"uncertainty"`
	LastToolRisk    float64 `json:"last_tool_risk"`
}

// NewTrajectoryState creates a TrajectoryState with zeroed accumulators.
func NewTrajectoryState(sessionID string) *TrajectoryState {
	return &TrajectoryState{SessionID: sessionID}
}

// SetBaseline records the session's baseline topic. Only the first call
// takes effect; the baseline is immutable after turn 1.
func (ts *TrajectoryState) SetBaseline(topic string) bool {
	if ts.BaselineTopic != "" {
		return false
	}
	ts.BaselineTopic = topic
	return true
}

// AccumulateDrift folds a per-turn drift delta into the cumulative
// score using a saturating update:
//
//	cum = min(1, cum + decay·(1−cum)·delta)
//
// The (1−cum) term down-weights deltas once drift is already high, so a
// single turn cannot saturate the score while sustained mild drift
// still crosses thresholds over several turns. Returns the new total.
func (ts *TrajectoryState) AccumulateDrift(delta, decay float64) float64 {
	delta = clamp01(delta)
	if decay <= 0 {
		decay = 1
	}
	ts.CumulativeDrift = clamp01(ts.CumulativeDrift + decay*(1-ts.CumulativeDrift)*delta)
	return ts.CumulativeDrift
}

// RecordViolation increments the violation count. There is no
// corresponding decrement.
func (ts *TrajectoryState) RecordViolation() int {
	ts.ViolationCount++
	return ts.ViolationCount
}

// SetTurnLocal overwrites the turn-local fields for the current turn.
func (ts *TrajectoryState) SetTurnLocal(uncertainty, toolRisk float64) {
	ts.Uncertainty = clamp01(uncertainty)
	ts.LastToolRisk = clamp01(toolRisk)
}

// Snapshot returns a copy safe to hand to callers after the session
// lock is released.
func (ts *TrajectoryState) Snapshot() TrajectoryState {
	return *ts
}

// CheckInvariants validates the accumulator bounds. A failure here is
// state corruption: the owning session must be force-terminated, other
// sessions are unaffected.
func (ts *TrajectoryState) CheckInvariants() error {
	if ts.CumulativeDrift < 0 || ts.CumulativeDrift > 1 {
		return fmt.Errorf("trajectory state corrupt: cumulative_drift %v out of [0,1]", ts.CumulativeDrift)
	}
	if ts.ViolationCount < 0 {
		return fmt.Errorf("trajectory state corrupt: negative violation_count %d", ts.ViolationCount)
	}
	if ts.Uncertainty < 0 || ts.Uncertainty > 1 {
		return fmt.Errorf("trajectory state corrupt: uncertainty %v out of [0,1]", ts.Uncertainty)
	}
	if ts.LastToolRisk < 0 || ts.LastToolRisk > 1 {
		return fmt.Errorf("trajectory state corrupt: last_tool_risk %v out of [0,1]", ts.LastToolRisk)
	}
	return nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
