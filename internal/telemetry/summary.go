package telemetry

import "github.com/guardloop/guardloop/internal/model"

// RunSummary condenses one session's decision history for quick
// filtering before full incident analysis.
type RunSummary struct {
	SessionID string `json:"session_id"`
	Turns     int    `json:"turns"`

	NoneCount        int `json:"none_count"`
	WarnCount        int `json:"warn_count"`
	ClarifyCount     int `json:"clarify_count"`
	SoftStopCount    int `json:"soft_stop_count"`
	HumanReviewCount int `json:"human_review_count"`
	HardStopCount    int `json:"hard_stop_count"`

	MaxDrift            float64               `json:"max_drift"`
	TotalViolations     int                   `json:"total_violations"`
	FinalLevel          model.EscalationLevel `json:"final_level"`
	FinalTier           string                `json:"final_tier"`
	EscalationTriggered bool                  `json:"escalation_triggered"`
}

// Summarize builds a RunSummary from a session's decision log and
// final trajectory state.
func Summarize(decisions []model.EscalationDecision, state model.TrajectoryState, tier model.Tier) RunSummary {
	s := RunSummary{
		SessionID:       state.SessionID,
		MaxDrift:        state.CumulativeDrift,
		TotalViolations: state.ViolationCount,
		FinalTier:       tier.String(),
		FinalLevel:      model.LevelNone,
	}

	maxTurn := 0
	for _, d := range decisions {
		if d.Turn > maxTurn {
			maxTurn = d.Turn
		}
		switch d.Level {
		case model.LevelNone:
			s.NoneCount++
		case model.LevelWarn:
			s.WarnCount++
		case model.LevelClarify:
			s.ClarifyCount++
		case model.LevelSoftStop:
			s.SoftStopCount++
		case model.LevelHumanReview:
			s.HumanReviewCount++
		case model.LevelHardStop:
			s.HardStopCount++
		}
		if d.Level == model.LevelHardStop || d.Level == model.LevelHumanReview {
			s.EscalationTriggered = true
		}
		s.FinalLevel = d.Level
	}
	s.Turns = maxTurn

	return s
}
