package signal

import (
	"context"

	"github.com/guardloop/guardloop/internal/model"
)

// blockedOutcomeRisk is the floor applied to tool risk when a tool
// reports a blocked or errored status.
const blockedOutcomeRisk = 0.7

// OutcomeVerifier validates a tool execution result against its status
// contract. It produces the turn's tool_risk signal.
type OutcomeVerifier struct{}

// NewOutcomeVerifier returns an outcome verifier.
func NewOutcomeVerifier() *OutcomeVerifier { return &OutcomeVerifier{} }

// Name implements Safeguard.
func (v *OutcomeVerifier) Name() string { return "outcome_verifier" }

// Score implements Safeguard. Blocked and errored statuses raise
// tool_risk to at least 0.7 for this turn; an ok status passes the
// tool's own risk metadata through.
func (v *OutcomeVerifier) Score(_ context.Context, in Input) (Contribution, error) {
	if in.ToolResult == nil {
		return Contribution{}, nil
	}

	risk := clamp01(in.ToolResult.RiskScore)
	var matched []string

	switch in.ToolResult.Status {
	case model.StatusBlocked:
		if risk < blockedOutcomeRisk {
			risk = blockedOutcomeRisk
		}
		matched = append(matched, "status:blocked")
	case model.StatusErrored:
		if risk < blockedOutcomeRisk {
			risk = blockedOutcomeRisk
		}
		matched = append(matched, "status:errored")
	}

	return Contribution{
		Score:   risk,
		Flag:    len(matched) > 0,
		Matched: matched,
	}, nil
}
