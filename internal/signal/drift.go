package signal

import (
	"context"
	"strings"
)

// Topic lexicons for drift detection. Drift is measured as movement
// from the baseline topic mix toward risky/sensitive categories using
// cheap lexical classification, deliberately not an embedding
// similarity (the scoring primitive is pluggable for deployments that
// have one).
var topicLexicon = map[string][]string{
	"benign":    {"help", "learn", "understand", "plan", "create", "write"},
	"risky":     {"hack", "bypass", "exploit", "attack", "steal", "trick"},
	"sensitive": {"password", "credential", "private", "secret", "personal"},
}

// DriftScorer measures how far the current turn's topic has moved from
// the session baseline, returning a per-turn delta in [0,1]. The
// scorer is stateless: accumulation into cumulative drift is the
// trajectory state's job.
type DriftScorer struct{}

// NewDriftScorer returns a lexical drift scorer.
func NewDriftScorer() *DriftScorer { return &DriftScorer{} }

// Name implements Safeguard.
func (s *DriftScorer) Name() string { return "drift_scorer" }

// Score implements Safeguard. The delta combines movement away from
// the baseline topic mix (0.6) with escalation into risky or sensitive
// vocabulary regardless of baseline (0.4).
func (s *DriftScorer) Score(_ context.Context, in Input) (Contribution, error) {
	current := in.RequestText
	if in.Delta != nil {
		current = in.Delta.PlannerOutput + " " + in.Delta.ToolCall
		if in.Delta.ToolResult != nil {
			current += " " + in.Delta.ToolResult.Output
		}
	}

	baseTopics := extractTopics(in.BaselineTopic)
	curTopics := extractTopics(current)

	drift := topicShift(baseTopics, curTopics)
	escalation := clamp01(float64(curTopics["risky"]+curTopics["sensitive"]) / 4)

	return Contribution{Score: clamp01(0.6*drift + 0.4*escalation)}, nil
}

// extractTopics counts lexicon hits per category.
func extractTopics(text string) map[string]int {
	lower := strings.ToLower(text)
	topics := make(map[string]int, len(topicLexicon))
	for category, words := range topicLexicon {
		n := 0
		for _, w := range words {
			if strings.Contains(lower, w) {
				n++
			}
		}
		topics[category] = n
	}
	return topics
}

// topicShift scores the increase in risky vocabulary relative to the
// baseline. A trajectory that started risky and stays risky is not
// drifting; one that pivots from benign to risky is.
func topicShift(baseline, current map[string]int) float64 {
	inc := current["risky"] - baseline["risky"]
	if inc <= 0 {
		return 0
	}
	return clamp01(float64(inc) / 3)
}
