package contribution

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/conclave/core"
	"github.com/hupe1980/conclave/internal/testutil"
	"github.com/hupe1980/conclave/oracle"
)

func contributionSession() *core.Session {
	return testutil.NewSessionBuilder("sess-1").
		Request("plan the data migration").
		Agent("architect", "System Architect", "design").
		Agent("analyst", "Data Analyst", "data").
		Agent("planner", "Project Planner", "scheduling").
		Build()
}

func allOpportunities(sess *core.Session) map[string][]core.Opportunity {
	out := make(map[string][]core.Opportunity)
	for _, a := range sess.Roster {
		out[a.ID] = []core.Opportunity{{AgentID: a.ID, Kind: "expertise_match", Priority: 2}}
	}
	return out
}

func TestForStyleSelection(t *testing.T) {
	o := oracle.NewScriptedOracle()

	assert.IsType(t, &Orchestration{}, ForStyle(core.ModeOrchestration, o))
	assert.IsType(t, &Choreography{}, ForStyle(core.ModeChoreography, o))
	assert.IsType(t, &Hybrid{}, ForStyle(core.ModeHybrid, o))
	assert.IsType(t, &Hybrid{}, ForStyle(core.ModeConsensus, o))
}

func TestChoreographySkipsAgentsWithoutOpportunities(t *testing.T) {
	o := oracle.NewScriptedOracle()
	o.SetFallback("CONTRIBUTION: my input\nCONFIDENCE: 0.9")
	sess := contributionSession()

	opps := map[string][]core.Opportunity{
		"analyst": {{AgentID: "analyst", Kind: "expertise_match", Priority: 3}},
	}

	collected := NewChoreography(o).Collect(context.Background(), sess, opps)

	require.Len(t, collected, 1)
	require.Len(t, collected["analyst"], 1)
	got := collected["analyst"][0]
	assert.Equal(t, core.ModeChoreography, got.Mode)
	assert.Equal(t, "my input", got.Content)
	assert.Equal(t, 0.9, got.Confidence)
}

func TestChoreographyPicksHighestPriorityOpportunity(t *testing.T) {
	o := oracle.NewScriptedOracle()
	o.SetFallback("CONTRIBUTION: ok")
	sess := contributionSession()

	opps := map[string][]core.Opportunity{
		"analyst": {
			{AgentID: "analyst", Kind: "general_support", Priority: 1},
			{AgentID: "analyst", Kind: "expertise_match", Priority: 4},
		},
	}
	NewChoreography(o).Collect(context.Background(), sess, opps)

	calls := o.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Prompt, `"expertise_match"`)
}

func TestChoreographyIsolatesPerAgentFailures(t *testing.T) {
	o := oracle.NewScriptedOracle()
	o.Fail("You are Data Analyst", errors.New("agent oracle down"))
	o.SetFallback("CONTRIBUTION: fine\nCONFIDENCE: 0.8")
	sess := contributionSession()

	collected := NewChoreography(o).Collect(context.Background(), sess, allOpportunities(sess))

	assert.NotContains(t, collected, "analyst")
	assert.Len(t, collected["architect"], 1)
	assert.Len(t, collected["planner"], 1)
}

func TestContributionFallsBackToRawText(t *testing.T) {
	o := oracle.NewScriptedOracle()
	o.SetFallback("I think we should stage the migration in two waves.")
	sess := contributionSession()

	collected := NewChoreography(o).Collect(context.Background(), sess, allOpportunities(sess))

	got := collected["planner"][0]
	assert.Equal(t, "I think we should stage the migration in two waves.", got.Content)
	assert.Equal(t, 0.7, got.Confidence)
}

func TestOrchestrationAssignsParsedTasks(t *testing.T) {
	o := oracle.NewScriptedOracle()
	o.Script("Decompose", `TASK_ASSIGNMENTS:
architect: design the target schema
analyst: profile the legacy data`)
	o.SetFallback("CONTRIBUTION: done\nCONFIDENCE: 0.85")
	sess := contributionSession()
	sess.AppendLeadership(core.LeadershipRecord{LeaderID: "architect", Style: core.ModeOrchestration})

	collected := NewOrchestration(o).Collect(context.Background(), sess, nil)

	require.Len(t, collected, 2)
	assert.Contains(t, collected, "architect")
	assert.Contains(t, collected, "analyst")
	assert.NotContains(t, collected, "planner")
	assert.Equal(t, core.ModeOrchestration, collected["analyst"][0].Mode)

	// The execution prompt carries the assigned task, not the whole request.
	found := false
	for _, c := range o.Calls() {
		if c.Role == "Data Analyst" && strings.Contains(c.Prompt, "profile the legacy data") {
			found = true
		}
	}
	assert.True(t, found)
}

func TestOrchestrationResolvesAssignmentsByRole(t *testing.T) {
	o := oracle.NewScriptedOracle()
	o.Script("Decompose", "TASK_ASSIGNMENTS:\nProject Planner: draft the timeline")
	o.SetFallback("CONTRIBUTION: timeline drafted")
	sess := contributionSession()

	collected := NewOrchestration(o).Collect(context.Background(), sess, nil)

	require.Len(t, collected, 1)
	assert.Contains(t, collected, "planner")
}

func TestOrchestrationBroadcastsOnUnusablePlan(t *testing.T) {
	o := oracle.NewScriptedOracle()
	o.Script("Decompose", "the leader rambled with no plan markers")
	o.SetFallback("CONTRIBUTION: best effort")
	sess := contributionSession()

	collected := NewOrchestration(o).Collect(context.Background(), sess, nil)

	assert.Len(t, collected, 3)
}

func TestOrchestrationBroadcastsOnLeaderFailure(t *testing.T) {
	o := oracle.NewScriptedOracle()
	o.Fail("Decompose", errors.New("leader oracle down"))
	o.SetFallback("CONTRIBUTION: best effort")
	sess := contributionSession()

	collected := NewOrchestration(o).Collect(context.Background(), sess, nil)

	assert.Len(t, collected, 3)
}

func TestHybridMergesAndTagsBothModes(t *testing.T) {
	o := oracle.NewScriptedOracle()
	o.Script("Decompose", "TASK_ASSIGNMENTS:\nanalyst: verify the row counts")
	o.SetFallback("CONTRIBUTION: input\nCONFIDENCE: 0.75")
	sess := contributionSession()

	opps := map[string][]core.Opportunity{
		"analyst": {{AgentID: "analyst", Kind: "expertise_match", Priority: 3}},
	}
	collected := NewHybrid(o).Collect(context.Background(), sess, opps)

	require.Len(t, collected["analyst"], 2)
	modes := map[core.CoordinationMode]bool{}
	for _, c := range collected["analyst"] {
		modes[c.Mode] = true
	}
	assert.True(t, modes[core.ModeChoreography])
	assert.True(t, modes[core.ModeOrchestration])
}
