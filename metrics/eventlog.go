package metrics

import (
	"context"

	"github.com/hupe1980/conclave/core"
)

// ObservedLog decorates an EventLog and feeds the session, consensus,
// conflict and allocation collectors from the engine's audit events before
// forwarding them. Wrap whatever log the host uses:
//
//	o.EventLog = metrics.NewObservedLog(eventlog.NewInMemoryLog())
//
// A nil next log is valid; the observer then acts as a metrics-only sink.
type ObservedLog struct {
	next core.EventLog
}

// NewObservedLog wraps the given event log.
func NewObservedLog(next core.EventLog) *ObservedLog {
	return &ObservedLog{next: next}
}

// Publish implements core.EventLog.
func (l *ObservedLog) Publish(ctx context.Context, ev core.Event) error {
	l.observe(ev)
	if l.next == nil {
		return nil
	}
	return l.next.Publish(ctx, ev)
}

func (l *ObservedLog) observe(ev core.Event) {
	switch ev.Type {
	case "session_started":
		SessionsStarted.Inc()
	case "session_completed":
		mode := payloadString(ev.Payload, "mode")
		SessionsCompleted.WithLabelValues(mode).Inc()
		SessionDuration.WithLabelValues(mode).Observe(payloadFloat(ev.Payload, "duration_seconds"))
	case "session_emergency":
		SessionsCompleted.WithLabelValues(string(core.ModeEmergency)).Inc()
		SessionDuration.WithLabelValues(string(core.ModeEmergency)).Observe(payloadFloat(ev.Payload, "duration_seconds"))
	case "consensus_finished":
		ConsensusDecisions.Add(float64(payloadInt(ev.Payload, "decisions")))
	case "conflicts_resolved":
		if counts, ok := ev.Payload["by_severity"].(map[string]int); ok {
			for severity, n := range counts {
				ConflictsDetected.WithLabelValues(severity).Add(float64(n))
			}
		}
	case "tasks_allocated":
		TasksAllocated.WithLabelValues(OutcomeAssigned).Add(float64(payloadInt(ev.Payload, "assigned")))
		TasksAllocated.WithLabelValues(OutcomeWithheld).Add(float64(payloadInt(ev.Payload, "withheld")))
	}
}

func payloadString(p map[string]any, key string) string {
	s, _ := p[key].(string)
	return s
}

func payloadInt(p map[string]any, key string) int {
	switch v := p[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

func payloadFloat(p map[string]any, key string) float64 {
	switch v := p[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}
