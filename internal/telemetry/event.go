package telemetry

import (
	"time"

	"github.com/guardloop/guardloop/internal/model"
)

// Event is the structured record emitted after every escalation
// decision. It is the producer side of the contract with the external
// metrics and incident-analysis collaborators: this process records
// events, analysis happens elsewhere.
type Event struct {
	Timestamp string `json:"ts"`
	SessionID string `json:"session_id"`
	Turn      int    `json:"turn"`

	// Type distinguishes signal-driven decisions from operational
	// events: "decision", "timeout_escalation", "primitive_failure",
	// "session_terminated", "release".
	Type string `json:"type"`

	Stage  model.Stage           `json:"stage"`
	Level  model.EscalationLevel `json:"level"`
	Signal model.Signal          `json:"signal"`
	Reason string                `json:"reason"`

	// Contributing signal values at decision time.
	Vector model.SignalVector `json:"vector"`

	LatencyMS  float64 `json:"latency_ms"`
	ReleasedBy string  `json:"released_by,omitempty"`
}

// Event types.
const (
	TypeDecision         = "decision"
	TypeTimeout          = "timeout_escalation"
	TypePrimitiveFailure = "primitive_failure"
	TypeTerminated       = "session_terminated"
	TypeRelease          = "release"
)

// FromDecision builds an event of the given type from a committed
// decision and its signal vector.
func FromDecision(typ string, d model.EscalationDecision, vec model.SignalVector, latency time.Duration) Event {
	return Event{
		Timestamp:  d.Timestamp.Format("2006-01-02T15:04:05.000Z"),
		SessionID:  d.SessionID,
		Turn:       d.Turn,
		Type:       typ,
		Stage:      d.Stage,
		Level:      d.Level,
		Signal:     d.Signal,
		Reason:     d.Reason,
		Vector:     vec,
		LatencyMS:  float64(latency.Microseconds()) / 1000,
		ReleasedBy: d.ReleasedBy,
	}
}
