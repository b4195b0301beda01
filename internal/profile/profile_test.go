package profile

import (
	"testing"

	"github.com/guardloop/guardloop/internal/model"
	"github.com/guardloop/guardloop/internal/policy"
)

func TestBuiltinProfilesLoad(t *testing.T) {
	for _, name := range []string{"none", "pre_only", "pre_mid", "pre_mid_post"} {
		p, err := Load(name)
		if err != nil {
			t.Fatalf("Load(%s): %v", name, err)
		}
		if p.Name != name {
			t.Errorf("profile %s: name field is %q", name, p.Name)
		}
		if err := Validate(p); err != nil {
			t.Errorf("built-in profile %s fails validation: %v", name, err)
		}
	}
}

func TestLoadUnknownProfile(t *testing.T) {
	if _, err := Load("no-such-profile"); err == nil {
		t.Error("unknown profile should fail to load")
	}
}

func TestStageEnabled(t *testing.T) {
	cases := []struct {
		profile string
		pre     bool
		mid     bool
		post    bool
	}{
		{"none", false, false, false},
		{"pre_only", true, false, false},
		{"pre_mid", true, true, false},
		{"pre_mid_post", true, true, true},
	}
	for _, tc := range cases {
		p, err := Load(tc.profile)
		if err != nil {
			t.Fatalf("Load(%s): %v", tc.profile, err)
		}
		got := [3]bool{
			p.StageEnabled(model.StagePreAction),
			p.StageEnabled(model.StageMidTrajectory),
			p.StageEnabled(model.StagePostAction),
		}
		want := [3]bool{tc.pre, tc.mid, tc.post}
		if got != want {
			t.Errorf("%s stages = %v, want %v", tc.profile, got, want)
		}
	}
}

func TestDefaultNameIsFullDefense(t *testing.T) {
	p, err := Load(DefaultName)
	if err != nil {
		t.Fatalf("Load(%s): %v", DefaultName, err)
	}
	for _, stage := range []model.Stage{model.StagePreAction, model.StageMidTrajectory, model.StagePostAction} {
		if !p.StageEnabled(stage) {
			t.Errorf("default profile should enable %s", stage)
		}
	}
}

func TestApplyToConfigCopies(t *testing.T) {
	cfg := policy.DefaultConfig()
	orig := cfg.BaseSensitivity

	sens := 0.9
	p := &Profile{Name: "custom", Sensitivity: &sens}
	out := p.ApplyToConfig(cfg)
	if out.BaseSensitivity != 0.9 {
		t.Errorf("override not applied: %v", out.BaseSensitivity)
	}
	if cfg.BaseSensitivity != orig {
		t.Error("ApplyToConfig mutated the input config")
	}

	noOverride := &Profile{Name: "plain"}
	if got := noOverride.ApplyToConfig(cfg); got != cfg {
		t.Error("profile without override should return the config unchanged")
	}
}

func TestValidate(t *testing.T) {
	sensOK := 0.5
	sensBad := 1.5
	cases := []struct {
		name    string
		profile Profile
		wantErr bool
	}{
		{"valid", Profile{Name: "p", Stages: []string{"pre_action"}, Sensitivity: &sensOK}, false},
		{"missing name", Profile{}, true},
		{"unknown stage", Profile{Name: "p", Stages: []string{"post_mortem"}}, true},
		{"bad malicious pattern", Profile{Name: "p", Patterns: Patterns{Malicious: []string{"("}}}, true},
		{"bad injection pattern", Profile{Name: "p", Patterns: Patterns{Injection: []string{"[z"}}}, true},
		{"sensitivity out of range", Profile{Name: "p", Sensitivity: &sensBad}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(&tc.profile)
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestListIncludesBuiltins(t *testing.T) {
	names := List()
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		seen[n] = true
	}
	for _, want := range []string{"none", "pre_only", "pre_mid", "pre_mid_post"} {
		if !seen[want] {
			t.Errorf("List() missing built-in %s", want)
		}
	}
}
