package guardloop

import (
	"fmt"

	"github.com/guardloop/guardloop/internal/hooks"
	"github.com/guardloop/guardloop/internal/model"
)

// Level is the graduated escalation response.
type Level = model.EscalationLevel

// Escalation levels, least to most restrictive.
const (
	LevelNone        = model.LevelNone
	LevelWarn        = model.LevelWarn
	LevelClarify     = model.LevelClarify
	LevelSoftStop    = model.LevelSoftStop
	LevelHumanReview = model.LevelHumanReview
	LevelHardStop    = model.LevelHardStop
)

// Delta is the transcript slice evaluated by the mid-trajectory hook.
type Delta = model.TranscriptDelta

// ToolResult is a completed tool execution report.
type ToolResult = model.ToolResult

// Verdict is what an evaluation hands back to the agent loop.
type Verdict struct {
	DecisionID string
	Level      Level
	Signal     string
	Reason     string
	Proceed    bool
	Turn       int
	Drift      float64
	Violations int
	Tier       string
}

// EscalationError is returned by Guard-wrapped tools when an
// evaluation blocks the call or discards its result.
type EscalationError struct {
	SessionID string
	Verdict   Verdict
}

func (e *EscalationError) Error() string {
	return fmt.Sprintf("guardloop %s (%s): %s", e.Verdict.Level, e.Verdict.Signal, e.Verdict.Reason)
}

func toVerdict(res *hooks.Result) Verdict {
	return Verdict{
		DecisionID: res.Decision.ID,
		Level:      res.Decision.Level,
		Signal:     string(res.Decision.Signal),
		Reason:     res.Decision.Reason,
		Proceed:    res.Decision.Level.Proceeds(),
		Turn:       res.Decision.Turn,
		Drift:      res.State.CumulativeDrift,
		Violations: res.State.ViolationCount,
		Tier:       res.Tier.String(),
	}
}
