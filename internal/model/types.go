package model

import "time"

// EscalationLevel is the graduated response category produced by the
// escalation policy.
type EscalationLevel string

const (
	LevelNone        EscalationLevel = "none"
	LevelWarn        EscalationLevel = "warn"
	LevelClarify     EscalationLevel = "clarify"
	LevelSoftStop    EscalationLevel = "soft_stop"
	LevelHumanReview EscalationLevel = "human_review"
	LevelHardStop    EscalationLevel = "hard_stop"
)

// LevelRank maps escalation levels to comparable integers for severity
// ordering. Higher rank = more restrictive.
var LevelRank = map[EscalationLevel]int{
	LevelNone:        0,
	LevelWarn:        1,
	LevelClarify:     2,
	LevelSoftStop:    3,
	LevelHumanReview: 4,
	LevelHardStop:    5,
}

// MoreSevere returns the more restrictive of two levels.
func MoreSevere(a, b EscalationLevel) EscalationLevel {
	if LevelRank[b] > LevelRank[a] {
		return b
	}
	return a
}

// Proceeds reports whether the agent may continue with the current
// action. WARN logs and continues; everything above pauses or blocks.
func (l EscalationLevel) Proceeds() bool {
	return l == LevelNone || l == LevelWarn
}

// Releasable reports whether a decision at this level can be released
// by a human override. Only reversible pauses qualify.
func (l EscalationLevel) Releasable() bool {
	return l == LevelSoftStop || l == LevelClarify || l == LevelHumanReview
}

// Stage identifies one of the three hook points in the agent loop.
type Stage string

const (
	StagePreAction     Stage = "pre_action"
	StageMidTrajectory Stage = "mid_trajectory"
	StagePostAction    Stage = "post_action"
)

// Signal names the condition that triggered a decision. Recorded in the
// decision log so escalations are attributable to one rule.
type Signal string

const (
	SignalNone        Signal = "none"
	SignalInjection   Signal = "injection"
	SignalViolation   Signal = "violation"
	SignalDriftHard   Signal = "drift_hard"
	SignalDriftReview Signal = "drift_review"
	SignalDriftSoft   Signal = "drift_soft"
	SignalDriftWarn   Signal = "drift_warn"
	SignalToolRisk    Signal = "tool_risk"
	SignalUncertainty Signal = "uncertainty"
	SignalTimeout     Signal = "timeout"
	SignalRelease     Signal = "release"
	SignalCorruption  Signal = "state_corruption"
	SignalOperator    Signal = "operator"
)

// SignalVector is the immutable per-stage snapshot consumed by the
// escalation policy. Constructed fresh on every hook invocation and
// never mutated afterwards.
type SignalVector struct {
	MaliciousScore    float64 `json:"malicious_score"`
	InjectionDetected bool    `json:"injection_detected"`
	DriftScore        float64 `json:"drift_score"`
	ViolationCount    int     `json:"violation_count"`
	Uncertainty       float64 `json:"uncertainty"`
	ToolRisk          float64 `json:"tool_risk"`

	// AnomalyFlag is a turn-local violation equivalent raised by the
	// post-action anomaly scan. It does not persist into the trajectory
	// violation count unless promotion is enabled in config.
	AnomalyFlag bool `json:"anomaly_flag,omitempty"`
}

// EscalationDecision is one immutable entry in a session's append-only
// decision log.
type EscalationDecision struct {
	ID         string          `json:"id"`
	SessionID  string          `json:"session_id"`
	Turn       int             `json:"turn"`
	Stage      Stage           `json:"stage"`
	Level      EscalationLevel `json:"level"`
	Signal     Signal          `json:"signal"`
	Reason     string          `json:"reason"`
	ReleasedBy string          `json:"released_by,omitempty"`
	Timestamp  time.Time       `json:"ts"`
}

// ToolStatus is the execution status reported by the external tool
// collaborator.
type ToolStatus string

const (
	StatusOK      ToolStatus = "ok"
	StatusErrored ToolStatus = "errored"
	StatusBlocked ToolStatus = "blocked"
)

// ParseToolStatus coerces a raw status string. Fail-closed: unknown
// statuses are treated as errored, never as ok.
func ParseToolStatus(s string) ToolStatus {
	switch ToolStatus(s) {
	case StatusOK, StatusErrored, StatusBlocked:
		return ToolStatus(s)
	default:
		return StatusErrored
	}
}

// ToolResult is what a tool execution returned, as reported by the
// external tool collaborator.
type ToolResult struct {
	Tool      string     `json:"tool"`
	Status    ToolStatus `json:"status"`
	Output    string     `json:"output"`
	RiskScore float64    `json:"risk_score"`
}

// TranscriptDelta is the slice of transcript evaluated by one
// mid-trajectory hook invocation: planner output, the tool call it
// chose, and the result if already available.
type TranscriptDelta struct {
	PlannerOutput string      `json:"planner_output"`
	ToolCall      string      `json:"tool_call"`
	ToolResult    *ToolResult `json:"tool_result,omitempty"`

	// Uncertainty is planner-reported (1 - confidence), turn-local.
	Uncertainty float64 `json:"uncertainty"`
}

// Tier is the session capability tier on the degradation ladder.
// Sessions only move down the ladder; recovery requires an explicit
// operator override.
type Tier int

const (
	TierFull          Tier = 0 // full capability
	TierSensitiveOff  Tier = 1 // sensitive tools disabled
	TierOutputOnly    Tier = 2 // no tool execution, output only
	TierHumanHandoff  Tier = 3 // mandatory human handoff
	TierTerminated    Tier = 4 // session terminated with audit entry
)

// String returns a human-readable label for the tier.
func (t Tier) String() string {
	switch t {
	case TierFull:
		return "full"
	case TierSensitiveOff:
		return "sensitive_tools_disabled"
	case TierOutputOnly:
		return "output_only"
	case TierHumanHandoff:
		return "human_handoff"
	case TierTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Degrade returns the next tier down the ladder.
func (t Tier) Degrade() Tier {
	if t >= TierTerminated {
		return TierTerminated
	}
	return t + 1
}
