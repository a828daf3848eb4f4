package market

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/conclave/core"
	"github.com/hupe1980/conclave/internal/testutil"
	"github.com/hupe1980/conclave/oracle"
)

func biddingSession() *core.Session {
	return testutil.NewSessionBuilder("sess-1").
		Request("migrate the billing system").
		Agent("architect", "System Architect", "design").
		Agent("analyst", "Data Analyst", "data").
		Build()
}

func TestCompositeScore(t *testing.T) {
	assert.InDelta(t, 4.3, CompositeScore(4, 5, 3), 1e-9)
	assert.InDelta(t, 0.0, CompositeScore(0, 0, 0), 1e-9)
	assert.InDelta(t, 5.0, CompositeScore(5, 5, 5), 1e-9)
}

func TestTasksFromDecisions(t *testing.T) {
	decisions := []core.Decision{
		{Topic: "platform", Payload: "adopt the managed platform\n- migrate service A\n- migrate service B"},
		{Topic: "budget", Payload: "cap spend at current level"},
	}

	tasks := TasksFromDecisions(decisions)

	require.Len(t, tasks, 3)
	assert.Equal(t, "migrate service A", tasks[0].Description)
	assert.Equal(t, "platform", tasks[0].SourceTopic)
	assert.Equal(t, "migrate service B", tasks[1].Description)
	assert.Equal(t, "cap spend at current level", tasks[2].Description)
	assert.Equal(t, "budget", tasks[2].SourceTopic)
	assert.NotEqual(t, tasks[0].ID, tasks[1].ID)
}

func TestAllocateAwardsHighestBid(t *testing.T) {
	o := oracle.NewScriptedOracle()
	o.Script("You are System Architect", "INTEREST_LEVEL: 4\nCAPABILITY_MATCH: 5\nAVAILABILITY: 3\nAPPROACH: incremental migration")
	o.Script("You are Data Analyst", "INTEREST_LEVEL: 3\nCAPABILITY_MATCH: 2\nAVAILABILITY: 5\nAPPROACH: measure first")
	a := NewAllocator(o)
	sess := biddingSession()

	out := a.Allocate(context.Background(), sess, []Task{{ID: "t1", Description: "migrate service A", SourceTopic: "platform"}})

	require.Len(t, out, 1)
	assert.Equal(t, "architect", out[0].AgentID)
	assert.InDelta(t, 4.3, out[0].WinningScore, 1e-9)
	assert.True(t, out[0].Assigned())
	assert.Len(t, sess.Bids()["t1"], 2)
	assert.Len(t, sess.AllocatedTasks(), 1)
}

func TestAllocateWithholdsBelowFloor(t *testing.T) {
	o := oracle.NewScriptedOracle()
	// Composite scores 1.5 and 1.8, both under the 2.0 floor.
	o.Script("You are System Architect", "INTEREST_LEVEL: 1\nCAPABILITY_MATCH: 2\nAVAILABILITY: 1")
	o.Script("You are Data Analyst", "INTEREST_LEVEL: 2\nCAPABILITY_MATCH: 2\nAVAILABILITY: 1\nAPPROACH: reluctantly")
	a := NewAllocator(o)
	sess := biddingSession()

	out := a.Allocate(context.Background(), sess, []Task{{ID: "t1", Description: "clean up legacy exports"}})

	require.Len(t, out, 1)
	assert.False(t, out[0].Assigned())
	assert.Empty(t, out[0].AgentID)
	assert.InDelta(t, 1.8, out[0].WinningScore, 1e-9)
}

func TestAllocateZeroInterestAbstains(t *testing.T) {
	o := oracle.NewScriptedOracle()
	o.Script("You are System Architect", "INTEREST_LEVEL: 0\nCAPABILITY_MATCH: 5\nAVAILABILITY: 5")
	o.Script("You are Data Analyst", "INTEREST_LEVEL: 5\nCAPABILITY_MATCH: 4\nAVAILABILITY: 4")
	a := NewAllocator(o)
	sess := biddingSession()

	out := a.Allocate(context.Background(), sess, []Task{{ID: "t1", Description: "document the API"}})

	require.Len(t, sess.Bids(), 1)
	assert.Equal(t, "analyst", sess.Bids()["t1"][0].AgentID)
	assert.Equal(t, "analyst", out[0].AgentID)
}

func TestAllocateBidFailureIsolated(t *testing.T) {
	o := oracle.NewScriptedOracle()
	o.Fail("You are System Architect", errors.New("rate limited"))
	o.Script("You are Data Analyst", "INTEREST_LEVEL: 4\nCAPABILITY_MATCH: 4\nAVAILABILITY: 4")
	a := NewAllocator(o)
	sess := biddingSession()

	out := a.Allocate(context.Background(), sess, []Task{{ID: "t1", Description: "load test"}})

	require.Len(t, sess.Bids(), 1)
	assert.Equal(t, "analyst", out[0].AgentID)
}

func TestAllocateNoBidsLeavesTaskUnassigned(t *testing.T) {
	o := oracle.NewScriptedOracle()
	o.SetFallback("no structured bid at all")
	a := NewAllocator(o)
	sess := biddingSession()

	out := a.Allocate(context.Background(), sess, []Task{{ID: "t1", Description: "untouched task"}})

	require.Len(t, out, 1)
	assert.False(t, out[0].Assigned())
	assert.Zero(t, out[0].WinningScore)
	assert.Empty(t, sess.Bids())
}

func TestAllocateTieGoesToFirstAgentID(t *testing.T) {
	o := oracle.NewScriptedOracle()
	o.SetFallback("INTEREST_LEVEL: 4\nCAPABILITY_MATCH: 4\nAVAILABILITY: 4")
	a := NewAllocator(o)
	sess := biddingSession()

	out := a.Allocate(context.Background(), sess, []Task{{ID: "t1", Description: "shared chore"}})

	// "analyst" sorts before "architect".
	assert.Equal(t, "analyst", out[0].AgentID)
}

func TestAllocateClampsOutOfRangeRatings(t *testing.T) {
	o := oracle.NewScriptedOracle()
	o.Script("You are System Architect", "INTEREST_LEVEL: 9\nCAPABILITY_MATCH: 7\nAVAILABILITY: -2")
	o.Script("You are Data Analyst", "INTEREST_LEVEL: 0")
	a := NewAllocator(o)
	sess := biddingSession()

	a.Allocate(context.Background(), sess, []Task{{ID: "t1", Description: "stress test"}})

	require.Len(t, sess.Bids(), 1)
	b := sess.Bids()["t1"][0]
	assert.Equal(t, 5, b.Interest)
	assert.Equal(t, 5, b.Capability)
	assert.Equal(t, 0, b.Availability)
}
