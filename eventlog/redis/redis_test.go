package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/conclave/core"
)

func newTestLog(t *testing.T) (*EventLog, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client), mr
}

func TestPublishAppendsToSessionStream(t *testing.T) {
	log, mr := newTestLog(t)

	ev := core.Event{
		SessionID:     "sess-1",
		SourceAgentID: "analyst",
		Type:          "contribution_recorded",
		Payload:       map[string]any{"confidence": 0.8},
		Timestamp:     time.Now(),
	}
	require.NoError(t, log.Publish(context.Background(), ev))

	entries, err := mr.Stream("conclave:events:sess-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)

	values := map[string]string{}
	for i := 0; i+1 < len(entries[0].Values); i += 2 {
		values[entries[0].Values[i]] = entries[0].Values[i+1]
	}
	assert.Equal(t, "contribution_recorded", values["type"])
	assert.Equal(t, "analyst", values["source_agent"])
	assert.Contains(t, values["payload"], "confidence")
}

func TestPublishSeparatesSessions(t *testing.T) {
	log, mr := newTestLog(t)
	ctx := context.Background()

	require.NoError(t, log.Publish(ctx, core.Event{SessionID: "a", Type: "x", Timestamp: time.Now()}))
	require.NoError(t, log.Publish(ctx, core.Event{SessionID: "b", Type: "y", Timestamp: time.Now()}))
	require.NoError(t, log.Publish(ctx, core.Event{SessionID: "b", Type: "z", Timestamp: time.Now()}))

	a, err := mr.Stream("conclave:events:a")
	require.NoError(t, err)
	b, err := mr.Stream("conclave:events:b")
	require.NoError(t, err)
	assert.Len(t, a, 1)
	assert.Len(t, b, 2)
}

func TestPublishErrorIsReturnedNotFatal(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	log := New(client)
	mr.Close()

	err := log.Publish(context.Background(), core.Event{SessionID: "s", Type: "x", Timestamp: time.Now()})
	assert.Error(t, err)
}
