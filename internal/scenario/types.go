package scenario

import "github.com/guardloop/guardloop/internal/model"

// ToolResult mirrors the tool execution report for YAML authoring.
type ToolResult struct {
	Tool      string  `yaml:"tool"`
	Status    string  `yaml:"status"`
	Output    string  `yaml:"output,omitempty"`
	RiskScore float64 `yaml:"risk_score"`
}

// Turn is one agent turn under test: the user request, what the
// planner did with it, and what the tool returned. Fields left empty
// skip the corresponding hook stage.
type Turn struct {
	Request        string      `yaml:"request,omitempty"`
	CandidateTools []string    `yaml:"candidate_tools,omitempty"`
	PlannerOutput  string      `yaml:"planner_output,omitempty"`
	ToolCall       string      `yaml:"tool_call,omitempty"`
	ToolResult     *ToolResult `yaml:"tool_result,omitempty"`
	Uncertainty    float64     `yaml:"uncertainty,omitempty"`

	// Expect is the most severe escalation level the turn should
	// produce across its stages, or "terminated" once the session is
	// expected to be dead.
	Expect string `yaml:"expect"`
}

// Scenario is a named multi-turn trajectory. All turns run in one
// session so cumulative drift and the degradation ladder carry across
// them; that continuity is what these fixtures exercise.
type Scenario struct {
	Name    string `yaml:"name"`
	Profile string `yaml:"profile,omitempty"`
	Turns   []Turn `yaml:"turns"`
}

// TurnResult is the outcome of evaluating one turn.
type TurnResult struct {
	Index    int     `json:"index"`
	Passed   bool    `json:"passed"`
	Expected string  `json:"expected"`
	Actual   string  `json:"actual"`
	Signal   string  `json:"signal"`
	Reason   string  `json:"reason"`
	Drift    float64 `json:"drift"`
}

// RunResult is the outcome of running all turns in one scenario file.
type RunResult struct {
	File   string       `json:"file"`
	Name   string       `json:"name"`
	Total  int          `json:"total"`
	Passed int          `json:"passed"`
	Failed int          `json:"failed"`
	Turns  []TurnResult `json:"turns"`
}

func (t *Turn) delta() *model.TranscriptDelta {
	if t.PlannerOutput == "" && t.ToolCall == "" && t.Uncertainty == 0 {
		return nil
	}
	return &model.TranscriptDelta{
		PlannerOutput: t.PlannerOutput,
		ToolCall:      t.ToolCall,
		Uncertainty:   t.Uncertainty,
	}
}

func (t *Turn) toolResult() *model.ToolResult {
	if t.ToolResult == nil {
		return nil
	}
	return &model.ToolResult{
		Tool:      t.ToolResult.Tool,
		Status:    model.ParseToolStatus(t.ToolResult.Status),
		Output:    t.ToolResult.Output,
		RiskScore: t.ToolResult.RiskScore,
	}
}
