package policy

import (
	"fmt"

	"github.com/guardloop/guardloop/internal/model"
)

// Outcome is the result of one policy evaluation: the escalation level,
// the rule that produced it, and a human-readable reason.
type Outcome struct {
	Level  model.EscalationLevel
	Signal model.Signal
	Reason string
}

// Decide maps a signal vector to an escalation level by ordered
// precedence. The rule order is a safety invariant, not an
// implementation detail: a vector matching rule 1 must never yield a
// lower level even if it also matches a later rule.
//
//  1. violation count at limit            -> hard_stop
//  2. drift >= drift_hard                 -> hard_stop
//  3. drift >= drift_review and
//     uncertainty >= uncertainty_review   -> human_review
//  4. drift >= drift_soft or
//     tool_risk >= tool_risk_soft         -> soft_stop
//  5. uncertainty >= uncertainty_clarify  -> clarify
//  6. drift >= drift_warn                 -> warn
//  7. otherwise                           -> none
//
// Decide is pure: same vector and thresholds always yield the same
// outcome. Injection is not handled here: it is an unconditional veto
// applied by the pre-action stage before the policy is consulted.
func Decide(vec model.SignalVector, th Thresholds) Outcome {
	violations := vec.ViolationCount
	if vec.AnomalyFlag {
		// Turn-local violation equivalent from the anomaly scan.
		violations++
	}

	if violations >= th.ViolationLimit {
		return Outcome{
			Level:  model.LevelHardStop,
			Signal: model.SignalViolation,
			Reason: fmt.Sprintf("policy violation detected (%d violations)", violations),
		}
	}

	if vec.DriftScore >= th.DriftHard {
		return Outcome{
			Level:  model.LevelHardStop,
			Signal: model.SignalDriftHard,
			Reason: fmt.Sprintf("severe drift from stated goal (%.2f >= %.2f)", vec.DriftScore, th.DriftHard),
		}
	}

	if vec.DriftScore >= th.DriftReview && vec.Uncertainty >= th.UncertaintyReview {
		return Outcome{
			Level:  model.LevelHumanReview,
			Signal: model.SignalDriftReview,
			Reason: fmt.Sprintf("high drift (%.2f) combined with uncertainty (%.2f)", vec.DriftScore, vec.Uncertainty),
		}
	}

	if vec.DriftScore >= th.DriftSoft {
		return Outcome{
			Level:  model.LevelSoftStop,
			Signal: model.SignalDriftSoft,
			Reason: fmt.Sprintf("drift threshold exceeded (%.2f >= %.2f)", vec.DriftScore, th.DriftSoft),
		}
	}

	if vec.ToolRisk >= th.ToolRiskSoft {
		return Outcome{
			Level:  model.LevelSoftStop,
			Signal: model.SignalToolRisk,
			Reason: fmt.Sprintf("high-risk tool (%.2f >= %.2f)", vec.ToolRisk, th.ToolRiskSoft),
		}
	}

	if vec.Uncertainty >= th.UncertaintyClarify {
		return Outcome{
			Level:  model.LevelClarify,
			Signal: model.SignalUncertainty,
			Reason: fmt.Sprintf("high uncertainty (%.2f)", vec.Uncertainty),
		}
	}

	if vec.DriftScore >= th.DriftWarn {
		return Outcome{
			Level:  model.LevelWarn,
			Signal: model.SignalDriftWarn,
			Reason: fmt.Sprintf("minor drift detected (%.2f)", vec.DriftScore),
		}
	}

	return Outcome{
		Level:  model.LevelNone,
		Signal: model.SignalNone,
		Reason: "all signals within normal range",
	}
}
