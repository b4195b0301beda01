package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/guardloop/guardloop/internal/model"
)

// Metrics exposes decision counters and stage latencies to the
// external metrics collaborator via Prometheus. Not part of the
// decision path.
type Metrics struct {
	decisions    *prometheus.CounterVec
	timeouts     *prometheus.CounterVec
	failures     prometheus.Counter
	terminations prometheus.Counter
	latency      *prometheus.HistogramVec
}

// NewMetrics registers the metric set on reg. Pass
// prometheus.DefaultRegisterer in production; tests use a fresh
// registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "guardloop",
			Name:      "decisions_total",
			Help:      "Escalation decisions by stage and level.",
		}, []string{"stage", "level"}),
		timeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "guardloop",
			Name:      "timeout_escalations_total",
			Help:      "Stage evaluations that timed out and resolved to soft_stop.",
		}, []string{"stage"}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "guardloop",
			Name:      "primitive_failures_total",
			Help:      "Safeguard primitives that failed and fell back to maximal uncertainty.",
		}),
		terminations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "guardloop",
			Name:      "sessions_terminated_total",
			Help:      "Sessions force-terminated by hard stops or state corruption.",
		}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "guardloop",
			Name:      "stage_latency_seconds",
			Help:      "Hook stage evaluation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12),
		}, []string{"stage"}),
	}

	reg.MustRegister(m.decisions, m.timeouts, m.failures, m.terminations, m.latency)
	return m
}

// ObserveDecision records one committed decision.
func (m *Metrics) ObserveDecision(stage model.Stage, level model.EscalationLevel, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(string(stage), string(level)).Inc()
	m.latency.WithLabelValues(string(stage)).Observe(elapsed.Seconds())
}

// ObserveTimeout records a timed-out stage evaluation.
func (m *Metrics) ObserveTimeout(stage model.Stage) {
	if m == nil {
		return
	}
	m.timeouts.WithLabelValues(string(stage)).Inc()
}

// ObserveFailure records a safeguard primitive failure.
func (m *Metrics) ObserveFailure() {
	if m == nil {
		return
	}
	m.failures.Inc()
}

// ObserveTermination records a force-terminated session.
func (m *Metrics) ObserveTermination() {
	if m == nil {
		return
	}
	m.terminations.Inc()
}
