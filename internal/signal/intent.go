package signal

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// DefaultMaliciousPatterns match explicit requests to defeat or evade
// safety controls. Matching is lexical and case-insensitive: a
// tripwire, not a claim of semantic understanding.
var DefaultMaliciousPatterns = []string{
	`bypass\s+(safety|security|filter|moderation)`,
	`ignore\s+(previous|prior|safety|guidelines)`,
	`(hack|exploit|attack|breach)\s+`,
	`(disable|remove)\s+(safety|filter|restriction)`,
	`pretend\s+(you\s+are|to\s+be)`,
}

// DefaultRiskKeywords are substrings whose presence raises the keyword
// sub-score. Individually weak signals; the scorer needs several to
// saturate.
var DefaultRiskKeywords = []string{
	"password", "credential", "secret", "private",
	"hack", "exploit", "vulnerability", "bypass",
	"injection", "malware", "virus", "attack",
}

// DefaultToolRisk maps candidate tool names to inherent risk metadata.
// Unknown tools default to 0.5: unknown is not safe.
var DefaultToolRisk = map[string]float64{
	"calculator": 0.05,
	"search":     0.1,
	"file_read":  0.2,
	"http":       0.6,
	"file_write": 0.7,
	"email":      0.8,
	"shell":      0.9,
}

const unknownToolRisk = 0.5

// IntentScorer reduces the raw request text and candidate tool set to
// a single pre-action risk score:
//
//	risk = 0.4*malicious_pattern + 0.3*risk_keyword + 0.3*action_risk
type IntentScorer struct {
	patterns []*regexp.Regexp
	keywords []string
	toolRisk map[string]float64
}

// NewIntentScorer compiles the pattern lists. Extra patterns and
// keywords (from a profile) are appended to the defaults. A pattern
// that does not compile is a configuration error, surfaced here rather
// than silently skipped at evaluation time.
func NewIntentScorer(extraPatterns, extraKeywords []string) (*IntentScorer, error) {
	s := &IntentScorer{
		keywords: append(append([]string{}, DefaultRiskKeywords...), extraKeywords...),
		toolRisk: DefaultToolRisk,
	}
	for _, p := range append(append([]string{}, DefaultMaliciousPatterns...), extraPatterns...) {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("intent scorer: invalid pattern %q: %w", p, err)
		}
		s.patterns = append(s.patterns, re)
	}
	return s, nil
}

// Name implements Safeguard.
func (s *IntentScorer) Name() string { return "intent_scorer" }

// Score implements Safeguard.
func (s *IntentScorer) Score(_ context.Context, in Input) (Contribution, error) {
	text := in.RequestText

	var matched []string
	patternHits := 0
	for _, re := range s.patterns {
		if re.MatchString(text) {
			patternHits++
			matched = append(matched, re.String())
		}
	}
	maliciousScore := clamp01(float64(patternHits) / 3)

	lower := strings.ToLower(text)
	keywordHits := 0
	for _, kw := range s.keywords {
		if strings.Contains(lower, kw) {
			keywordHits++
		}
	}
	keywordScore := clamp01(float64(keywordHits) / 5)

	actionRisk := 0.0
	for _, tool := range in.CandidateTools {
		r, ok := s.toolRisk[strings.ToLower(tool)]
		if !ok {
			r = unknownToolRisk
		}
		if r > actionRisk {
			actionRisk = r
		}
	}

	return Contribution{
		Score:   clamp01(0.4*maliciousScore + 0.3*keywordScore + 0.3*actionRisk),
		Matched: matched,
	}, nil
}

// ToolRiskFor returns the configured inherent risk for a tool name.
func (s *IntentScorer) ToolRiskFor(tool string) float64 {
	if r, ok := s.toolRisk[strings.ToLower(tool)]; ok {
		return r
	}
	return unknownToolRisk
}
