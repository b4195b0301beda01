package guardloop

import (
	"context"
	"fmt"

	"github.com/guardloop/guardloop/internal/model"
)

// ToolFunc is the function signature that Guard wraps. Input is the
// tool's argument text; output is what the tool returned.
type ToolFunc func(ctx context.Context, input string) (string, error)

// Guard returns a ToolFunc that runs the mid-trajectory check on the
// intended call before executing fn and the post-action check on its
// result afterwards. A blocking verdict at either point surfaces as an
// *EscalationError; on a blocked result the output is withheld.
//
// The session must already have an open turn (a PreAction call for the
// current user request).
func (c *Client) Guard(sessionID, tool string, fn ToolFunc) ToolFunc {
	risk := c.pipeline.ToolRisk(tool)

	return func(ctx context.Context, input string) (string, error) {
		v, err := c.MidTrajectory(ctx, sessionID, &Delta{
			ToolCall: fmt.Sprintf("%s(%s)", tool, input),
		})
		if err != nil {
			return "", err
		}
		if !v.Proceed {
			return "", &EscalationError{SessionID: sessionID, Verdict: v}
		}

		output, toolErr := fn(ctx, input)
		status := model.StatusOK
		if toolErr != nil {
			status = model.StatusErrored
		}

		v, err = c.PostAction(ctx, sessionID, &ToolResult{
			Tool:      tool,
			Status:    status,
			Output:    output,
			RiskScore: risk,
		})
		if err != nil {
			return "", err
		}
		if !v.Proceed {
			return "", &EscalationError{SessionID: sessionID, Verdict: v}
		}
		return output, toolErr
	}
}
