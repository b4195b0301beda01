package signal

import (
	"context"

	"github.com/guardloop/guardloop/internal/model"
)

// Input carries everything a safeguard may inspect for one hook
// invocation. Stages populate only the fields they have; safeguards
// ignore fields irrelevant to them.
type Input struct {
	RequestText    string
	CandidateTools []string
	BaselineTopic  string
	Delta          *model.TranscriptDelta
	ToolResult     *model.ToolResult
}

// Contribution is one safeguard's output: a bounded risk score and an
// optional binary flag for detectors whose verdict is not graduated.
type Contribution struct {
	Score   float64  // risk in [0,1]
	Flag    bool     // set by binary detectors (injection, violation, anomaly)
	Matched []string // patterns or indicators that fired, for audit
}

// Safeguard is the pluggable scoring primitive. New safeguards are
// added by implementing this interface, not by extending a shared
// base. Implementations must be safe for concurrent use across
// sessions and must respect ctx cancellation if they block.
type Safeguard interface {
	Name() string
	Score(ctx context.Context, in Input) (Contribution, error)
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
