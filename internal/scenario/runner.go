package scenario

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/guardloop/guardloop/internal/hooks"
	"github.com/guardloop/guardloop/internal/model"
	"github.com/guardloop/guardloop/internal/policy"
	"github.com/guardloop/guardloop/internal/profile"
	"github.com/guardloop/guardloop/internal/session"
)

// actualTerminated is the expect value for turns that should find the
// session already dead.
const actualTerminated = "terminated"

// Run drives all turns of a scenario through a fresh pipeline and a
// single session. Each turn runs pre-action, then mid-trajectory and
// post-action while the verdict still allows the agent to proceed;
// the turn's actual outcome is its most severe level.
func Run(s *Scenario, cfg *policy.Config) (*RunResult, error) {
	prof, err := loadProfile(s.Profile)
	if err != nil {
		return nil, err
	}

	pl, err := hooks.New(hooks.Options{Config: cfg, Profile: prof})
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}

	sessionID := "scenario-" + sanitize(s.Name)
	ctx := context.Background()

	result := &RunResult{
		Name:  s.Name,
		Total: len(s.Turns),
	}

	for i, t := range s.Turns {
		tr := runTurn(ctx, pl, sessionID, &t)
		tr.Index = i + 1
		tr.Expected = strings.ToLower(strings.TrimSpace(t.Expect))
		tr.Passed = tr.Actual == tr.Expected
		if tr.Passed {
			result.Passed++
		} else {
			result.Failed++
		}
		result.Turns = append(result.Turns, tr)
	}

	return result, nil
}

func runTurn(ctx context.Context, pl *hooks.Pipeline, sessionID string, t *Turn) TurnResult {
	worst := model.EscalationDecision{Level: model.LevelNone, Signal: model.SignalNone}
	drift := 0.0

	apply := func(res *hooks.Result) {
		if model.LevelRank[res.Decision.Level] >= model.LevelRank[worst.Level] {
			worst = res.Decision
		}
		drift = res.State.CumulativeDrift
	}

	if t.Request != "" {
		res, err := pl.EvaluatePreAction(ctx, sessionID, t.Request, t.CandidateTools)
		if err != nil {
			return errorResult(err, drift)
		}
		apply(res)
	}

	if delta := t.delta(); delta != nil && worst.Level.Proceeds() {
		res, err := pl.EvaluateMidTrajectory(ctx, sessionID, delta)
		if err != nil {
			return errorResult(err, drift)
		}
		apply(res)
	}

	if tr := t.toolResult(); tr != nil && worst.Level.Proceeds() {
		res, err := pl.EvaluatePostAction(ctx, sessionID, tr)
		if err != nil {
			return errorResult(err, drift)
		}
		apply(res)
	}

	return TurnResult{
		Actual: string(worst.Level),
		Signal: string(worst.Signal),
		Reason: worst.Reason,
		Drift:  drift,
	}
}

func errorResult(err error, drift float64) TurnResult {
	if errors.Is(err, session.ErrTerminal) {
		return TurnResult{Actual: actualTerminated, Reason: err.Error(), Drift: drift}
	}
	return TurnResult{Actual: "error", Reason: err.Error(), Drift: drift}
}

func loadProfile(name string) (*profile.Profile, error) {
	if name == "" {
		name = profile.DefaultName
	}
	return profile.Load(name)
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '-'
		}
	}, name)
}

// LoadAndRun loads a scenario YAML file and runs it under the given
// sensitivity configuration.
func LoadAndRun(path string, cfg *policy.Config) (*RunResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}

	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if s.Name == "" || len(s.Turns) == 0 {
		return nil, fmt.Errorf("scenario %s: name and turns are required", path)
	}

	result, err := Run(&s, cfg)
	if err != nil {
		return nil, err
	}
	result.File = path

	return result, nil
}
