// Package eventlog provides core.EventLog implementations: a process-local
// in-memory log for tests and development, and a Redis Streams publisher in
// the redis subpackage for deployments with a shared blackboard.
//
// Publishing is best-effort by contract; the engine logs and drops failed
// publishes without affecting the pipeline.
package eventlog

import (
	"context"
	"sync"

	"github.com/hupe1980/conclave/core"
)

// InMemoryLog is a volatile EventLog implementation appending events to a
// process local slice. It is safe for concurrent access and best suited for
// tests or ephemeral demo setups.
type InMemoryLog struct {
	mu     sync.RWMutex
	events []core.Event
}

// NewInMemoryLog constructs an empty in-memory event log.
func NewInMemoryLog() *InMemoryLog {
	return &InMemoryLog{}
}

// Publish implements core.EventLog.
func (l *InMemoryLog) Publish(ctx context.Context, ev core.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
	return nil
}

// Events returns a defensive copy of all published events in append order.
func (l *InMemoryLog) Events() []core.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]core.Event, len(l.events))
	copy(out, l.events)
	return out
}

// EventsOfType filters published events by type, preserving append order.
func (l *InMemoryLog) EventsOfType(eventType string) []core.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []core.Event
	for _, ev := range l.events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}
