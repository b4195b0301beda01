package signal

import (
	"context"
	"strings"
)

// DefaultAnomalyIndicators mark malformed output and unexpected
// privilege markers in tool results.
var DefaultAnomalyIndicators = []string{
	"denied", "unauthorized", "unexpected",
	"malformed", "invalid", "root:", "uid=0",
}

// AnomalyScanner scans tool output text for anomaly indicators. Its
// flag is treated by the policy as a one-shot violation equivalent for
// the current turn only; promotion into the persistent violation count
// is a configuration decision, not the scanner's.
type AnomalyScanner struct {
	indicators []string
}

// NewAnomalyScanner builds a scanner from default plus profile-supplied
// indicators.
func NewAnomalyScanner(extra []string) *AnomalyScanner {
	return &AnomalyScanner{
		indicators: append(append([]string{}, DefaultAnomalyIndicators...), extra...),
	}
}

// Name implements Safeguard.
func (s *AnomalyScanner) Name() string { return "anomaly_scanner" }

// Score implements Safeguard.
func (s *AnomalyScanner) Score(_ context.Context, in Input) (Contribution, error) {
	if in.ToolResult == nil || in.ToolResult.Output == "" {
		return Contribution{}, nil
	}

	lower := strings.ToLower(in.ToolResult.Output)
	var matched []string
	for _, ind := range s.indicators {
		if strings.Contains(lower, ind) {
			matched = append(matched, ind)
		}
	}

	return Contribution{
		Score:   clamp01(float64(len(matched)) / 3),
		Flag:    len(matched) > 0,
		Matched: matched,
	}, nil
}
