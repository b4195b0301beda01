package signal

import (
	"context"
	"fmt"
	"regexp"
)

// DefaultInjectionPatterns match instruction-override phrasing. Any
// single match is treated as an unconditional veto upstream; there is
// no graduated score for injection.
var DefaultInjectionPatterns = []string{
	`ignore\s+(all\s+)?(previous|prior)\s+instructions`,
	`disregard\s+(all\s+)?(previous\s+|prior\s+)?(your\s+)?(instructions|rules)`,
	`new\s+instructions?\s*:`,
	`system\s*prompt\s*:`,
	`---\s*end\s*(of)?\s*(text|input)`,
	`admin(istrator)?\s+override`,
}

// InjectionScanner performs binary pattern matching for prompt
// injection attempts in the raw request text.
type InjectionScanner struct {
	patterns []*regexp.Regexp
}

// NewInjectionScanner compiles default plus profile-supplied patterns.
func NewInjectionScanner(extra []string) (*InjectionScanner, error) {
	s := &InjectionScanner{}
	for _, p := range append(append([]string{}, DefaultInjectionPatterns...), extra...) {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("injection scanner: invalid pattern %q: %w", p, err)
		}
		s.patterns = append(s.patterns, re)
	}
	return s, nil
}

// Name implements Safeguard.
func (s *InjectionScanner) Name() string { return "injection_scanner" }

// Score implements Safeguard. Flag is set if any pattern matches,
// independent of every other signal.
func (s *InjectionScanner) Score(_ context.Context, in Input) (Contribution, error) {
	var matched []string
	for _, re := range s.patterns {
		if re.MatchString(in.RequestText) {
			matched = append(matched, re.String())
		}
	}
	if len(matched) == 0 {
		return Contribution{}, nil
	}
	return Contribution{
		Score:   clamp01(float64(len(matched)) / 2),
		Flag:    true,
		Matched: matched,
	}, nil
}
