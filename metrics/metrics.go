// Package metrics exposes Prometheus collectors for the coordination
// pipeline. Collectors register on the default registry at init; serve them
// with promhttp alongside the application.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hupe1980/conclave/parse"
)

var (
	// Session metrics
	SessionsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "conclave_sessions_started_total",
			Help: "Total number of coordination sessions started",
		},
	)

	SessionsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conclave_sessions_completed_total",
			Help: "Total number of coordination sessions completed",
		},
		[]string{"mode"},
	)

	SessionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "conclave_session_duration_seconds",
			Help:    "Coordination session duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"mode"},
	)

	PhasesEntered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conclave_phases_entered_total",
			Help: "Total number of pipeline phase entries",
		},
		[]string{"phase"},
	)

	EmergencyFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "conclave_emergency_fallbacks_total",
			Help: "Total number of sessions ended on the emergency path",
		},
	)

	// Oracle metrics
	OracleCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conclave_oracle_calls_total",
			Help: "Total number of oracle calls",
		},
		[]string{"status"},
	)

	OracleCallDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "conclave_oracle_call_duration_seconds",
			Help:    "Oracle call duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	// Negotiation metrics
	ConsensusDecisions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "conclave_consensus_decisions_total",
			Help: "Total number of finalized consensus decisions",
		},
	)

	ConflictsDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conclave_conflicts_detected_total",
			Help: "Total number of pairwise conflicts detected",
		},
		[]string{"severity"},
	)

	TasksAllocated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conclave_tasks_allocated_total",
			Help: "Total number of bidding round outcomes",
		},
		[]string{"outcome"},
	)

	ParseFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conclave_parse_fallbacks_total",
			Help: "Total number of oracle response fields that resolved to their default",
		},
		[]string{"field"},
	)
)

// Task allocation outcomes.
const (
	OutcomeAssigned = "assigned"
	OutcomeWithheld = "withheld"
)

// Importing this package taps the response parser: every field that falls
// back to its default is counted per field key.
func init() {
	parse.FallbackHook = func(key string) {
		ParseFallbacks.WithLabelValues(key).Inc()
	}
}
