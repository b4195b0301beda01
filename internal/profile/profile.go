package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/guardloop/guardloop/internal/model"
	"github.com/guardloop/guardloop/internal/policy"
)

// Patterns holds extra detection patterns a profile contributes on top
// of the built-in lists.
type Patterns struct {
	Malicious []string `yaml:"malicious"`
	Injection []string `yaml:"injection"`
	Violation []string `yaml:"violation"`
	Anomaly   []string `yaml:"anomaly"`
}

// Profile is a named safeguard configuration: which hook stages run,
// extra pattern lists, and an optional sensitivity override.
type Profile struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Stages      []string `yaml:"stages"`
	Patterns    Patterns `yaml:"patterns"`
	Sensitivity *float64 `yaml:"sensitivity,omitempty"`
}

// StageEnabled reports whether the profile runs the given hook stage.
func (p *Profile) StageEnabled(stage model.Stage) bool {
	for _, s := range p.Stages {
		if model.Stage(s) == stage {
			return true
		}
	}
	return false
}

// ApplyToConfig returns a copy of cfg with the profile's sensitivity
// override applied. The input config is never mutated.
func (p *Profile) ApplyToConfig(cfg *policy.Config) *policy.Config {
	if p.Sensitivity == nil {
		return cfg
	}
	out := *cfg
	out.BaseSensitivity = *p.Sensitivity
	return &out
}

// Load loads a profile by name. Checks built-in profiles first, then
// falls back to ~/.guardloop/profiles/<name>.yaml.
func Load(name string) (*Profile, error) {
	if data, ok := builtinProfiles[name]; ok {
		var p Profile
		if err := yaml.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("parse built-in profile %q: %w", name, err)
		}
		return &p, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("profile %q not found (no built-in, cannot determine home dir)", name)
	}

	path := filepath.Join(home, ".guardloop", "profiles", name+".yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("profile %q not found", name)
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse profile %q: %w", name, err)
	}

	return &p, nil
}

// List returns sorted names of all available profiles (built-in + user).
func List() []string {
	seen := make(map[string]bool)
	for name := range builtinProfiles {
		seen[name] = true
	}

	home, err := os.UserHomeDir()
	if err == nil {
		dir := filepath.Join(home, ".guardloop", "profiles")
		entries, err := os.ReadDir(dir)
		if err == nil {
			for _, e := range entries {
				if e.IsDir() {
					continue
				}
				name := e.Name()
				if ext := filepath.Ext(name); ext == ".yaml" || ext == ".yml" {
					seen[name[:len(name)-len(ext)]] = true
				}
			}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks that a profile is well-formed: known stages, valid
// regex patterns, sensitivity in range.
func Validate(p *Profile) error {
	if p.Name == "" {
		return fmt.Errorf("profile name is required")
	}

	for _, s := range p.Stages {
		switch model.Stage(s) {
		case model.StagePreAction, model.StageMidTrajectory, model.StagePostAction:
		default:
			return fmt.Errorf("unknown stage %q", s)
		}
	}

	for i, pat := range append(append([]string{}, p.Patterns.Malicious...), p.Patterns.Injection...) {
		if _, err := regexp.Compile("(?i)" + pat); err != nil {
			return fmt.Errorf("patterns[%d]: invalid regex %q: %w", i, pat, err)
		}
	}

	if p.Sensitivity != nil && (*p.Sensitivity < 0 || *p.Sensitivity > 1) {
		return fmt.Errorf("sensitivity %v out of [0,1]", *p.Sensitivity)
	}

	return nil
}
