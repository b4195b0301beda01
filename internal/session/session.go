package session

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/guardloop/guardloop/internal/model"
)

var (
	// ErrTerminal is returned when an evaluation or release targets a
	// session that has already been terminated.
	ErrTerminal = errors.New("session is terminal")

	// ErrDecisionNotFound is returned by Release for an unknown
	// decision ID.
	ErrDecisionNotFound = errors.New("decision not found")

	// ErrNotReleasable is returned by Release when the decision is not
	// a reversible pause.
	ErrNotReleasable = errors.New("decision is not releasable")
)

// Session is one user-agent interaction spanning N turns. It owns
// exactly one TrajectoryState and an append-only decision log.
//
// A session is single-writer: exactly one hook evaluation may be in
// flight at a time, because drift accumulation and violation
// increments are not commutative under out-of-order application.
// Callers serialize through Lock/Unlock.
type Session struct {
	ID        string
	CreatedAt time.Time

	// killed is set without the lock so an operator can flag a
	// session for termination while an evaluation is in flight. The
	// in-flight stage observes it before committing and discards its
	// verdict instead of racing the terminal decision.
	killed atomic.Bool

	mu        sync.Mutex
	turn      int
	terminal  bool
	tier      model.Tier
	hardStops int
	failures  int
	state     *model.TrajectoryState
	decisions []model.EscalationDecision
}

// New creates a session with a generated ID.
func New() *Session {
	return NewWithID(newSessionID())
}

// NewWithID creates a session with a caller-supplied ID.
func NewWithID(id string) *Session {
	return &Session{
		ID:        id,
		CreatedAt: time.Now().UTC(),
		state:     model.NewTrajectoryState(id),
	}
}

func newSessionID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("sess-%x", time.Now().UnixNano())
	}
	return "sess-" + hex.EncodeToString(b)
}

// Lock serializes hook evaluations for this session.
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases the evaluation lock.
func (s *Session) Unlock() { s.mu.Unlock() }

// Kill flags the session for termination without taking the lock.
func (s *Session) Kill() { s.killed.Store(true) }

// Killed reports whether an operator has flagged the session for
// termination.
func (s *Session) Killed() bool { return s.killed.Load() }

// The methods below assume the caller holds the session lock.

// Terminal reports whether the session has been terminated.
func (s *Session) Terminal() bool { return s.terminal }

// Tier returns the current capability tier.
func (s *Session) Tier() model.Tier { return s.tier }

// Turn returns the current turn index (1-based after the first
// pre-action evaluation).
func (s *Session) Turn() int { return s.turn }

// State returns the session's trajectory state for mutation under the
// session lock.
func (s *Session) State() *model.TrajectoryState { return s.state }

// BeginTurn advances the turn counter at the start of a pre-action
// evaluation and returns the new turn index.
func (s *Session) BeginTurn() int {
	s.turn++
	return s.turn
}

// NewDecision constructs a decision record for the current turn with a
// fresh ID and timestamp. The record is not yet appended; callers
// commit it with Append after the stage completes.
func (s *Session) NewDecision(stage model.Stage, level model.EscalationLevel, sig model.Signal, reason string) model.EscalationDecision {
	return model.EscalationDecision{
		ID:        uuid.NewString(),
		SessionID: s.ID,
		Turn:      s.turn,
		Stage:     stage,
		Level:     level,
		Signal:    sig,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	}
}

// Append commits a decision to the append-only log and applies its
// side effects on the capability tier. Entries are never edited or
// removed. A second independent hard stop terminates the session.
func (s *Session) Append(d model.EscalationDecision) {
	s.decisions = append(s.decisions, d)

	if d.Level == model.LevelHardStop && d.ReleasedBy == "" {
		s.hardStops++
		s.tier = s.tier.Degrade()
		if s.hardStops >= 2 {
			s.terminate()
		}
	}
}

// AppendFinal records a synthesized terminal decision in the log
// without re-applying hard-stop side effects. Used for the
// session-terminated record that follows the hard stop which tripped
// termination.
func (s *Session) AppendFinal(d model.EscalationDecision) {
	s.decisions = append(s.decisions, d)
}

// RecordFailure counts a primitive failure. Repeated failures within a
// session walk it down the degradation ladder.
func (s *Session) RecordFailure() {
	s.failures++
	if s.failures >= 3 {
		s.failures = 0
		s.tier = s.tier.Degrade()
		if s.tier == model.TierTerminated {
			s.terminate()
		}
	}
}

// Terminate marks the session terminal and records the terminating
// decision. Safe to call more than once.
func (s *Session) Terminate(sig model.Signal, reason string) model.EscalationDecision {
	d := s.NewDecision(model.StagePostAction, model.LevelHardStop, sig, reason)
	if !s.terminal {
		s.decisions = append(s.decisions, d)
		s.terminate()
	}
	return d
}

func (s *Session) terminate() {
	s.terminal = true
	s.tier = model.TierTerminated
}

// Decisions returns a copy of the decision log in append order.
func (s *Session) Decisions() []model.EscalationDecision {
	out := make([]model.EscalationDecision, len(s.decisions))
	copy(out, s.decisions)
	return out
}

// LastDecision returns the most recent decision, or false if the log
// is empty.
func (s *Session) LastDecision() (model.EscalationDecision, bool) {
	if len(s.decisions) == 0 {
		return model.EscalationDecision{}, false
	}
	return s.decisions[len(s.decisions)-1], true
}

// Release applies a human override to a queued soft_stop, clarify, or
// human_review decision. It appends an audited decision with level
// none and the reviewer's identity. It must not, and does not, touch
// the trajectory accumulators: subsequent evaluations continue from
// the pre-release cumulative drift and violation count.
func (s *Session) Release(decisionID, reviewerID string) (model.EscalationDecision, error) {
	if s.terminal {
		return model.EscalationDecision{}, ErrTerminal
	}

	var target *model.EscalationDecision
	for i := range s.decisions {
		if s.decisions[i].ID == decisionID {
			target = &s.decisions[i]
			break
		}
	}
	if target == nil {
		return model.EscalationDecision{}, ErrDecisionNotFound
	}
	if !target.Level.Releasable() {
		return model.EscalationDecision{}, fmt.Errorf("%w: level %s", ErrNotReleasable, target.Level)
	}

	release := s.NewDecision(target.Stage, model.LevelNone, model.SignalRelease,
		fmt.Sprintf("released %s decision %s", target.Level, target.ID))
	release.ReleasedBy = reviewerID
	s.decisions = append(s.decisions, release)
	return release, nil
}
