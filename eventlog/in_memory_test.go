package eventlog

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/conclave/core"
)

func TestInMemoryLogAppendsInOrder(t *testing.T) {
	log := NewInMemoryLog()
	ctx := context.Background()

	require.NoError(t, log.Publish(ctx, core.Event{SessionID: "s", Type: "leadership_elected", Timestamp: time.Now()}))
	require.NoError(t, log.Publish(ctx, core.Event{SessionID: "s", Type: "contribution_recorded", Timestamp: time.Now()}))

	events := log.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "leadership_elected", events[0].Type)
	assert.Equal(t, "contribution_recorded", events[1].Type)
}

func TestInMemoryLogEventsOfType(t *testing.T) {
	log := NewInMemoryLog()
	ctx := context.Background()

	_ = log.Publish(ctx, core.Event{SessionID: "s", Type: "bid_submitted"})
	_ = log.Publish(ctx, core.Event{SessionID: "s", Type: "task_allocated"})
	_ = log.Publish(ctx, core.Event{SessionID: "s", Type: "bid_submitted"})

	assert.Len(t, log.EventsOfType("bid_submitted"), 2)
	assert.Len(t, log.EventsOfType("task_allocated"), 1)
	assert.Empty(t, log.EventsOfType("unknown"))
}

func TestInMemoryLogHonorsContext(t *testing.T) {
	log := NewInMemoryLog()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := log.Publish(ctx, core.Event{SessionID: "s", Type: "x"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, log.Events())
}

func TestInMemoryLogConcurrentPublish(t *testing.T) {
	log := NewInMemoryLog()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_ = log.Publish(ctx, core.Event{SessionID: "s", Type: "tick"})
			}
		}()
	}
	wg.Wait()

	assert.Len(t, log.Events(), 200)
}
