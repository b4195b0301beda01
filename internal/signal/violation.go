package signal

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// DefaultViolationPatterns mark unauthorized access and explicit
// policy erosion in tool calls and results.
var DefaultViolationPatterns = []string{
	"unauthorized", "illegal", "prohibited", "restricted",
	"confidential", "classified", "harmful", "dangerous",
}

// DefaultErosionPatterns match attempts to talk the agent out of its
// constraints mid-trajectory.
var DefaultErosionPatterns = []string{
	`just\s+this\s+once`,
	`no\s+one\s+will\s+know`,
	`the\s+rules\s+don'?t\s+apply`,
	`you\s+already\s+agreed`,
}

// violationToolRiskFloor: a tool call whose inherent risk reaches this
// value is itself a violation, independent of pattern matches.
const violationToolRiskFloor = 0.8

// ViolationScanner checks the current tool call and result against the
// policy-violation pattern set and tool-risk metadata.
type ViolationScanner struct {
	markers []string
	erosion []*regexp.Regexp
}

// NewViolationScanner builds a scanner from default plus
// profile-supplied markers.
func NewViolationScanner(extraMarkers []string) (*ViolationScanner, error) {
	s := &ViolationScanner{
		markers: append(append([]string{}, DefaultViolationPatterns...), extraMarkers...),
	}
	for _, p := range DefaultErosionPatterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("violation scanner: invalid pattern %q: %w", p, err)
		}
		s.erosion = append(s.erosion, re)
	}
	return s, nil
}

// Name implements Safeguard.
func (s *ViolationScanner) Name() string { return "violation_scanner" }

// Score implements Safeguard. Flag is set on any match; the trajectory
// state increments its violation count exactly once per flagged turn.
func (s *ViolationScanner) Score(_ context.Context, in Input) (Contribution, error) {
	if in.Delta == nil {
		return Contribution{}, nil
	}

	text := in.Delta.PlannerOutput + " " + in.Delta.ToolCall
	if in.Delta.ToolResult != nil {
		text += " " + in.Delta.ToolResult.Output
	}
	lower := strings.ToLower(text)

	var matched []string
	for _, m := range s.markers {
		if strings.Contains(lower, m) {
			matched = append(matched, m)
		}
	}
	for _, re := range s.erosion {
		if re.MatchString(text) {
			matched = append(matched, re.String())
		}
	}

	score := clamp01(float64(len(matched)) / 2)
	if in.Delta.ToolResult != nil && in.Delta.ToolResult.RiskScore >= violationToolRiskFloor {
		matched = append(matched, fmt.Sprintf("tool_risk>=%.2f", violationToolRiskFloor))
		if in.Delta.ToolResult.RiskScore > score {
			score = in.Delta.ToolResult.RiskScore
		}
	}

	return Contribution{
		Score:   score,
		Flag:    len(matched) > 0,
		Matched: matched,
	}, nil
}
