// Package redis provides a core.EventLog implementation publishing
// coordination events to a Redis Stream. One stream per session keeps replay
// and audit simple; streams are capped approximately so an abandoned session
// cannot grow without bound.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hupe1980/conclave/core"
)

// Options configure the Redis event log.
type Options struct {
	// StreamPrefix is prepended to the session id to form the stream key.
	StreamPrefix string
	// MaxLen caps each stream approximately (XADD MAXLEN ~).
	MaxLen int64
	// PublishTimeout bounds a single XADD round-trip.
	PublishTimeout time.Duration
}

// EventLog publishes events to Redis Streams, one stream per session.
type EventLog struct {
	client *redis.Client
	opts   Options
}

// New creates a Redis-backed event log from an existing client.
func New(client *redis.Client, optFns ...func(o *Options)) *EventLog {
	opts := Options{
		StreamPrefix:   "conclave:events:",
		MaxLen:         1024,
		PublishTimeout: 2 * time.Second,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &EventLog{client: client, opts: opts}
}

// Publish implements core.EventLog. Delivery is best-effort: the caller is
// expected to log and drop the returned error.
func (l *EventLog) Publish(ctx context.Context, ev core.Event) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, l.opts.PublishTimeout)
	defer cancel()

	args := &redis.XAddArgs{
		Stream: l.opts.StreamPrefix + ev.SessionID,
		MaxLen: l.opts.MaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"type":         ev.Type,
			"source_agent": ev.SourceAgentID,
			"payload":      string(payload),
			"timestamp":    ev.Timestamp.UTC().Format(time.RFC3339Nano),
		},
	}
	if err := l.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", args.Stream, err)
	}
	return nil
}
