package mcp

import (
	"context"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/guardloop/guardloop/internal/hooks"
	"github.com/guardloop/guardloop/internal/model"
	"github.com/guardloop/guardloop/internal/telemetry"
)

// --- Input/Output types ---

// PreActionInput defines parameters for the guardloop_pre_action tool.
type PreActionInput struct {
	SessionID      string   `json:"session_id" jsonschema:"session the turn belongs to"`
	RequestText    string   `json:"request_text" jsonschema:"raw user request text"`
	CandidateTools []string `json:"candidate_tools,omitempty" jsonschema:"tools the agent may invoke for this request"`
}

// MidTrajectoryInput defines parameters for the guardloop_mid_trajectory tool.
type MidTrajectoryInput struct {
	SessionID     string  `json:"session_id" jsonschema:"session the turn belongs to"`
	PlannerOutput string  `json:"planner_output,omitempty" jsonschema:"latest planner reasoning text"`
	ToolCall      string  `json:"tool_call,omitempty" jsonschema:"tool call the planner chose"`
	Uncertainty   float64 `json:"uncertainty,omitempty" jsonschema:"planner-reported uncertainty in [0,1]"`
}

// PostActionInput defines parameters for the guardloop_post_action tool.
type PostActionInput struct {
	SessionID string  `json:"session_id" jsonschema:"session the turn belongs to"`
	Tool      string  `json:"tool" jsonschema:"tool that executed"`
	Status    string  `json:"status" jsonschema:"execution status (ok/errored/blocked)"`
	Output    string  `json:"output,omitempty" jsonschema:"tool output text"`
	RiskScore float64 `json:"risk_score,omitempty" jsonschema:"tool-reported risk in [0,1]"`
}

// ReleaseInput defines parameters for the guardloop_release tool.
type ReleaseInput struct {
	SessionID  string `json:"session_id" jsonschema:"session holding the paused decision"`
	DecisionID string `json:"decision_id" jsonschema:"ID of the paused decision"`
	ReviewerID string `json:"reviewer_id" jsonschema:"identity of the human reviewer"`
}

// SummaryInput defines parameters for the guardloop_summary tool.
type SummaryInput struct {
	SessionID string `json:"session_id" jsonschema:"session to summarize"`
}

// DecisionOutput is the common result shape for evaluation tools.
type DecisionOutput struct {
	DecisionID     string  `json:"decision_id,omitempty"`
	Level          string  `json:"level"`
	Signal         string  `json:"signal"`
	Reason         string  `json:"reason"`
	Proceed        bool    `json:"proceed"`
	Turn           int     `json:"turn"`
	Drift          float64 `json:"drift"`
	ViolationCount int     `json:"violation_count"`
	Tier           string  `json:"tier"`
	Error          string  `json:"error,omitempty"`
}

// SummaryOutput wraps the run summary.
type SummaryOutput struct {
	Summary telemetry.RunSummary `json:"summary"`
	Error   string               `json:"error,omitempty"`
}

// --- Handlers ---

func (s *Server) handlePreAction(ctx context.Context, _ *mcpsdk.CallToolRequest, input PreActionInput) (*mcpsdk.CallToolResult, DecisionOutput, error) {
	res, err := s.pipeline.EvaluatePreAction(ctx, input.SessionID, input.RequestText, input.CandidateTools)
	return decisionResult(res, err)
}

func (s *Server) handleMidTrajectory(ctx context.Context, _ *mcpsdk.CallToolRequest, input MidTrajectoryInput) (*mcpsdk.CallToolResult, DecisionOutput, error) {
	delta := &model.TranscriptDelta{
		PlannerOutput: input.PlannerOutput,
		ToolCall:      input.ToolCall,
		Uncertainty:   input.Uncertainty,
	}
	res, err := s.pipeline.EvaluateMidTrajectory(ctx, input.SessionID, delta)
	return decisionResult(res, err)
}

func (s *Server) handlePostAction(ctx context.Context, _ *mcpsdk.CallToolRequest, input PostActionInput) (*mcpsdk.CallToolResult, DecisionOutput, error) {
	tr := &model.ToolResult{
		Tool:      input.Tool,
		Status:    model.ParseToolStatus(input.Status),
		Output:    input.Output,
		RiskScore: input.RiskScore,
	}
	res, err := s.pipeline.EvaluatePostAction(ctx, input.SessionID, tr)
	return decisionResult(res, err)
}

func (s *Server) handleRelease(_ context.Context, _ *mcpsdk.CallToolRequest, input ReleaseInput) (*mcpsdk.CallToolResult, DecisionOutput, error) {
	res, err := s.pipeline.Release(input.SessionID, input.DecisionID, input.ReviewerID)
	return decisionResult(res, err)
}

func (s *Server) handleSummary(_ context.Context, _ *mcpsdk.CallToolRequest, input SummaryInput) (*mcpsdk.CallToolResult, SummaryOutput, error) {
	summary, err := s.pipeline.Summary(input.SessionID)
	if err != nil {
		return &mcpsdk.CallToolResult{IsError: true}, SummaryOutput{Error: err.Error()}, nil
	}
	return nil, SummaryOutput{Summary: summary}, nil
}

// decisionResult maps a pipeline result or error onto the MCP tool
// result shape. Pipeline errors are reported in-band so the calling
// agent sees the reason instead of a bare protocol failure.
func decisionResult(res *hooks.Result, err error) (*mcpsdk.CallToolResult, DecisionOutput, error) {
	if err != nil {
		return &mcpsdk.CallToolResult{IsError: true}, DecisionOutput{Error: err.Error()}, nil
	}
	d := res.Decision
	return nil, DecisionOutput{
		DecisionID:     d.ID,
		Level:          string(d.Level),
		Signal:         string(d.Signal),
		Reason:         d.Reason,
		Proceed:        d.Level.Proceeds(),
		Turn:           d.Turn,
		Drift:          res.State.CumulativeDrift,
		ViolationCount: res.State.ViolationCount,
		Tier:           res.Tier.String(),
	}, nil
}
