package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/guardloop/guardloop/internal/alert"
)

// Thresholds defines the escalation boundaries consumed by Decide.
// All values are scores in [0,1]; ViolationLimit is a count.
type Thresholds struct {
	DriftWarn          float64 `yaml:"drift_warn"`
	DriftSoft          float64 `yaml:"drift_soft"`
	DriftReview        float64 `yaml:"drift_review"`
	DriftHard          float64 `yaml:"drift_hard"`
	UncertaintyClarify float64 `yaml:"uncertainty_clarify"`
	UncertaintyReview  float64 `yaml:"uncertainty_review"`
	ToolRiskSoft       float64 `yaml:"tool_risk_soft"`
	ViolationLimit     int     `yaml:"violation_limit"`
}

// JitterBounds constrain the per-session random offset applied to
// effective thresholds. Both bounds are absolute score offsets.
type JitterBounds struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// Config holds all sensitivity configuration. Immutable after load;
// hot reload replaces the whole object atomically, never mutates
// fields in place.
type Config struct {
	Thresholds      Thresholds   `yaml:"thresholds"`
	BaseSensitivity float64      `yaml:"base_sensitivity"`
	DecayFactor     float64      `yaml:"decay_factor"`
	Jitter          JitterBounds `yaml:"jitter"`

	// ContextMultiplier enables the adaptive variant: every threshold
	// is scaled by (1 - base_sensitivity * context_multiplier). Zero
	// leaves the configured thresholds in effect unchanged.
	ContextMultiplier float64 `yaml:"context_multiplier"`

	// PromoteAnomaly controls whether a post-action anomaly flag is
	// promoted from turn-local to the persistent violation count.
	PromoteAnomaly bool `yaml:"promote_anomaly"`

	// StageTimeoutMS bounds one hook stage evaluation. A timed-out
	// stage resolves to soft_stop, never to pass.
	StageTimeoutMS int `yaml:"stage_timeout_ms"`

	// Alerts lists webhook destinations notified on matching decisions.
	Alerts []alert.Config `yaml:"alerts"`
}

// DefaultConfig returns the built-in sensitivity configuration.
func DefaultConfig() *Config {
	return &Config{
		Thresholds: Thresholds{
			DriftWarn:          0.3,
			DriftSoft:          0.5,
			DriftReview:        0.6,
			DriftHard:          0.8,
			UncertaintyClarify: 0.4,
			UncertaintyReview:  0.4,
			ToolRiskSoft:       0.7,
			ViolationLimit:     1,
		},
		BaseSensitivity: 0.5,
		DecayFactor:     0.4,
		Jitter:          JitterBounds{Min: -0.02, Max: 0.02},
		PromoteAnomaly:  false,
		StageTimeoutMS:  100,
	}
}

// StageTimeout returns the per-stage evaluation budget.
func (c *Config) StageTimeout() time.Duration {
	if c.StageTimeoutMS <= 0 {
		return 100 * time.Millisecond
	}
	return time.Duration(c.StageTimeoutMS) * time.Millisecond
}

// Validate checks bounds and threshold ordering. Decide assumes
// drift_warn <= drift_soft <= drift_review <= drift_hard.
func (c *Config) Validate() error {
	t := c.Thresholds
	for name, v := range map[string]float64{
		"drift_warn":          t.DriftWarn,
		"drift_soft":          t.DriftSoft,
		"drift_review":        t.DriftReview,
		"drift_hard":          t.DriftHard,
		"uncertainty_clarify": t.UncertaintyClarify,
		"uncertainty_review":  t.UncertaintyReview,
		"tool_risk_soft":      t.ToolRiskSoft,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("threshold %s=%v out of [0,1]", name, v)
		}
	}
	if t.DriftWarn > t.DriftSoft || t.DriftSoft > t.DriftReview || t.DriftReview > t.DriftHard {
		return fmt.Errorf("drift thresholds must be ordered: warn(%v) <= soft(%v) <= review(%v) <= hard(%v)",
			t.DriftWarn, t.DriftSoft, t.DriftReview, t.DriftHard)
	}
	if t.ViolationLimit < 1 {
		return fmt.Errorf("violation_limit must be >= 1, got %d", t.ViolationLimit)
	}
	if c.BaseSensitivity < 0 || c.BaseSensitivity > 1 {
		return fmt.Errorf("base_sensitivity %v out of [0,1]", c.BaseSensitivity)
	}
	if c.ContextMultiplier < 0 || c.ContextMultiplier > 1 {
		return fmt.Errorf("context_multiplier %v out of [0,1]", c.ContextMultiplier)
	}
	if c.DecayFactor <= 0 || c.DecayFactor > 1 {
		return fmt.Errorf("decay_factor %v out of (0,1]", c.DecayFactor)
	}
	if c.Jitter.Min > c.Jitter.Max {
		return fmt.Errorf("jitter min %v exceeds max %v", c.Jitter.Min, c.Jitter.Max)
	}
	return nil
}

// LoadConfig loads sensitivity configuration from a YAML file.
// Empty path falls back to ~/.guardloop/config.yaml.
// Missing file returns defaults. Invalid YAML or bounds return an error.
func LoadConfig(path string) (*Config, error) {
	cfg, _, err := LoadConfigWithHash(path)
	return cfg, err
}

// LoadConfigWithHash loads sensitivity configuration and returns the
// SHA-256 hash of the raw YAML bytes, recorded in audit entries so
// every decision is attributable to one exact configuration.
func LoadConfigWithHash(path string) (*Config, string, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return DefaultConfig(), emptyHash(), nil
		}
		path = filepath.Join(home, ".guardloop", "config.yaml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), emptyHash(), nil
		}
		return nil, "", fmt.Errorf("read sensitivity config: %w", err)
	}

	h := sha256.Sum256(data)
	hash := "sha256:" + hex.EncodeToString(h[:])

	// Start with defaults, YAML overwrites only specified fields.
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, "", fmt.Errorf("parse sensitivity config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid sensitivity config: %w", err)
	}

	return cfg, hash, nil
}

func emptyHash() string {
	h := sha256.Sum256(nil)
	return "sha256:" + hex.EncodeToString(h[:])
}

// DefaultConfigYAML returns the commented YAML written by guardloop init.
func DefaultConfigYAML() string {
	return `# guardloop sensitivity configuration
# Generated by: guardloop init
#
# Escalation rules are evaluated in fixed order (first match wins):
#   1. violation_count >= violation_limit        -> hard_stop
#   2. drift >= drift_hard                       -> hard_stop
#   3. drift >= drift_review and
#      uncertainty >= uncertainty_review         -> human_review
#   4. drift >= drift_soft or
#      tool_risk >= tool_risk_soft               -> soft_stop
#   5. uncertainty >= uncertainty_clarify        -> clarify
#   6. drift >= drift_warn                       -> warn
#   7. otherwise                                 -> none

thresholds:
  drift_warn: 0.3
  drift_soft: 0.5
  drift_review: 0.6
  drift_hard: 0.8
  uncertainty_clarify: 0.4
  uncertainty_review: 0.4
  tool_risk_soft: 0.7
  violation_limit: 1

# Scales every threshold by (1 - base_sensitivity * context_multiplier),
# clamped so none and hard_stop always stay reachable. A context
# multiplier of 0 disables adaptive scaling.
base_sensitivity: 0.5
context_multiplier: 0.0

# Down-weights per-turn drift deltas as cumulative drift grows:
#   cum = min(1, cum + decay_factor * (1 - cum) * delta)
decay_factor: 0.4

# Per-session random offset added to effective thresholds so an
# attacker probing for exact boundaries sees a moving target. Drawn
# once per session, stable within it.
jitter:
  min: -0.02
  max: 0.02

# Whether a post-action anomaly flag is promoted into the persistent
# violation count (false = turn-local only).
promote_anomaly: false

# Budget for one hook stage evaluation. Timeout resolves to soft_stop.
stage_timeout_ms: 100
`
}
