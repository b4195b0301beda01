package policy

import (
	"hash/fnv"
	"math/rand"
)

// Clamp band for effective thresholds. The floor keeps drift_warn above
// zero so a level of none stays reachable; the ceiling keeps drift_hard
// below one so hard_stop stays reachable even at maximum sensitivity.
const (
	thresholdFloor   = 0.05
	thresholdCeiling = 0.95
)

// SessionJitter draws the per-session threshold offset from a PRNG
// seeded by the session ID. The draw is deterministic within a session
// (an attacker probing the same conversation sees consistent
// boundaries) but unpredictable across sessions, since session IDs are
// generated from crypto/rand.
func SessionJitter(sessionID string, b JitterBounds) float64 {
	if b.Max <= b.Min {
		return b.Min
	}
	h := fnv.New64a()
	h.Write([]byte(sessionID))
	r := rand.New(rand.NewSource(int64(h.Sum64())))
	return b.Min + r.Float64()*(b.Max-b.Min)
}

// ThresholdsFor returns the thresholds in effect for one session:
// configured values under adaptive scaling plus the session's jitter.
func (c *Config) ThresholdsFor(sessionID string) Thresholds {
	return EffectiveThresholds(c, c.ContextMultiplier, SessionJitter(sessionID, c.Jitter))
}

// EffectiveThresholds scales the configured thresholds by
// (1 - base_sensitivity * contextMultiplier), applies the session
// jitter, and clamps every score threshold into the safe band.
//
// The scale and jitter are the same affine transform for every
// threshold, so the ordering drift_warn <= drift_soft <= drift_review
// <= drift_hard is preserved. ViolationLimit is never scaled: one
// confirmed violation is always a hard stop.
func EffectiveThresholds(cfg *Config, contextMultiplier, jitter float64) Thresholds {
	scale := 1 - cfg.BaseSensitivity*contextMultiplier
	if scale < 0 {
		scale = 0
	}

	adjust := func(t float64) float64 {
		v := t*scale + jitter
		if v < thresholdFloor {
			return thresholdFloor
		}
		if v > thresholdCeiling {
			return thresholdCeiling
		}
		return v
	}

	th := cfg.Thresholds
	return Thresholds{
		DriftWarn:          adjust(th.DriftWarn),
		DriftSoft:          adjust(th.DriftSoft),
		DriftReview:        adjust(th.DriftReview),
		DriftHard:          adjust(th.DriftHard),
		UncertaintyClarify: adjust(th.UncertaintyClarify),
		UncertaintyReview:  adjust(th.UncertaintyReview),
		ToolRiskSoft:       adjust(th.ToolRiskSoft),
		ViolationLimit:     th.ViolationLimit,
	}
}
