package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/conclave/consensus"
	"github.com/hupe1980/conclave/core"
	"github.com/hupe1980/conclave/eventlog"
	"github.com/hupe1980/conclave/logging"
	"github.com/hupe1980/conclave/opportunity"
	"github.com/hupe1980/conclave/oracle"
)

var roster = []core.Agent{
	{ID: "leaderCandidate", Role: "Coordinator", ExpertiseAreas: []string{"planning"}},
	{ID: "specialistA", Role: "System Architect", ExpertiseAreas: []string{"design"}},
	{ID: "specialistB", Role: "Data Analyst", ExpertiseAreas: []string{"data"}},
}

// scriptedPipeline scripts a complete happy-path session driven by
// orchestration.
func scriptedPipeline() *oracle.ScriptedOracle {
	o := oracle.NewScriptedOracle()
	o.Script("Nominate the agent", "PRIMARY_LEADER: leaderCandidate\nLEADERSHIP_STYLE: orchestration\nREASONING: planning expertise")
	o.Script("Decompose the request", "TASK_ASSIGNMENTS:\nspecialistA: design the system\nspecialistB: analyze the data")
	o.Script("Your leader assigned you this task", "CONTRIBUTION: done as assigned\nCONFIDENCE: 0.9")
	o.Script("positions contradict", "CONFLICT: No")
	o.Script("Synthesize one coherent final answer", "Here is the coordinated plan.")
	return o
}

func TestCoordinateOrchestrationSession(t *testing.T) {
	o := scriptedPipeline()
	log := eventlog.NewInMemoryLog()
	e := New(o, func(opts *Options) {
		opts.EventLog = log
		opts.Detector = opportunity.NewStaticDetector()
	})

	out, err := e.Coordinate(context.Background(), "build the reporting stack", roster)
	require.NoError(t, err)

	assert.Equal(t, core.ModeOrchestration, out.CoordinationModeUsed)
	require.Len(t, out.LeadershipHistory, 1)
	assert.Equal(t, "leaderCandidate", out.LeadershipHistory[0].LeaderID)
	assert.Equal(t, core.ModeOrchestration, out.LeadershipHistory[0].Style)
	assert.Equal(t, "Here is the coordinated plan.", out.FinalAnswer)

	// The orchestration strategy produced the contributions.
	require.NotEmpty(t, out.Contributions)
	for _, list := range out.Contributions {
		for _, c := range list {
			assert.Equal(t, core.ModeOrchestration, c.Mode)
		}
	}

	assert.Len(t, log.EventsOfType("session_started"), 1)
	assert.Len(t, log.EventsOfType("leader_elected"), 1)
	assert.Len(t, log.EventsOfType("session_completed"), 1)
}

func TestCoordinateTimeoutReturnsEmergency(t *testing.T) {
	e := New(scriptedPipeline(), func(opts *Options) {
		cfg := DefaultConfig
		cfg.SessionTimeout = -time.Second
		opts.Config = cfg
	})

	out, err := e.Coordinate(context.Background(), "anything", roster)
	require.NoError(t, err)

	assert.Equal(t, core.ModeEmergency, out.CoordinationModeUsed)
	assert.Equal(t, EmergencyAnswer, out.FinalAnswer)
	assert.NotNil(t, out.AllocatedTasks)
	assert.Empty(t, out.AllocatedTasks)
	assert.NotNil(t, out.Contributions)
	assert.Empty(t, out.Decisions)
	assert.Zero(t, out.Validation)
}

func TestCoordinateSynthesisFailureReturnsEmergency(t *testing.T) {
	o := scriptedPipeline()
	o.Fail("Synthesize one coherent final answer", errors.New("oracle down"))
	e := New(o)

	out, err := e.Coordinate(context.Background(), "anything", roster)
	require.NoError(t, err)

	assert.Equal(t, core.ModeEmergency, out.CoordinationModeUsed)
	assert.Equal(t, EmergencyAnswer, out.FinalAnswer)
}

func TestCoordinateRejectsInvalidRoster(t *testing.T) {
	e := New(scriptedPipeline())

	_, err := e.Coordinate(context.Background(), "anything", nil)
	assert.Error(t, err)

	big := make([]core.Agent, DefaultConfig.MaxRosterSize+1)
	for i := range big {
		big[i] = core.Agent{ID: string(rune('a' + i)), Role: "Agent"}
	}
	_, err = e.Coordinate(context.Background(), "anything", big)
	assert.Error(t, err)
}

func TestCoordinateConflictDetectionAndDebate(t *testing.T) {
	o := oracle.NewScriptedOracle()
	o.Script("Nominate the agent", "PRIMARY_LEADER: specialistA\nLEADERSHIP_STYLE: choreography\nREASONING: decentralized fits")
	o.Script("contribute your expertise", "CONTRIBUTION: my recommendation\nCONFIDENCE: 0.8")
	o.Script("positions contradict", "CONFLICT: Yes\nTYPE: approach_disagreement\nDESCRIPTION: d\nSEVERITY: high")
	o.Script("mediating a structured debate", "RESOLUTION: merge both approaches")
	o.Script("Synthesize one coherent final answer", "resolved answer")
	e := New(o, func(opts *Options) {
		opts.Detector = opportunity.NewStaticDetector()
	})

	out, err := e.Coordinate(context.Background(), "design the data layer", roster[1:])
	require.NoError(t, err)

	assert.Equal(t, core.ModeChoreography, out.CoordinationModeUsed)
	// Two contributing agents, one pair, one conflict, one debate.
	assert.Equal(t, 1, o.CallsMatching("positions contradict"))
	assert.Equal(t, 1, o.CallsMatching("mediating a structured debate"))
}

func TestCoordinateWithConsensusService(t *testing.T) {
	o := oracle.NewScriptedOracle()
	o.Script("Nominate the agent", "PRIMARY_LEADER: specialistA\nLEADERSHIP_STYLE: choreography\nREASONING: r")
	o.Script("contribute your expertise", "CONTRIBUTION: use the managed platform\nCONFIDENCE: 0.8")
	o.Script("topics requiring consensus", "TOPIC 1: deployment platform")
	o.Script("neutral facilitator", "DECISION: adopt the managed platform\nIMPLEMENTATION_STEPS:\n- migrate billing")
	o.Script("consensus round", "PROPOSAL: adopt the managed platform")
	o.Script("positions contradict", "CONFLICT: No")
	o.Script("up for bidding", "INTEREST_LEVEL: 4\nCAPABILITY_MATCH: 5\nAVAILABILITY: 4\nAPPROACH: incremental")
	o.Script("Synthesize one coherent final answer", "final")
	e := New(o, func(opts *Options) {
		opts.Detector = opportunity.NewStaticDetector()
		opts.Consensus = consensus.NewInMemoryService(o)
	})

	out, err := e.Coordinate(context.Background(), "migrate the billing system", roster[1:])
	require.NoError(t, err)

	require.Len(t, out.Decisions, 1)
	assert.Equal(t, "deployment platform", out.Decisions[0].Topic)
	require.Len(t, out.AllocatedTasks, 1)
	assert.Equal(t, "migrate billing", out.AllocatedTasks[0].Description)
	assert.True(t, out.AllocatedTasks[0].Assigned())
	assert.Greater(t, out.Validation.Coherence, 0.0)
}

func TestCallbacksFireOnPhaseAndEmergency(t *testing.T) {
	var phases []core.Phase
	var emergencies int
	cm := NewCallbackManager()
	cm.Register(NewFunctionCallback(CallbackPhaseEntered, func(_ context.Context, c *CallbackContext) {
		phases = append(phases, c.Phase)
	}))
	cm.Register(NewFunctionCallback(CallbackEmergency, func(_ context.Context, c *CallbackContext) {
		emergencies++
	}))

	e := New(scriptedPipeline(), func(opts *Options) { opts.Callbacks = cm })
	_, err := e.Coordinate(context.Background(), "anything", roster)
	require.NoError(t, err)

	assert.Equal(t, []core.Phase{
		core.PhaseInit, core.PhaseElection, core.PhaseContribution,
		core.PhaseConsensus, core.PhaseArgumentation, core.PhaseAllocation,
		core.PhaseValidation,
	}, phases)
	assert.Zero(t, emergencies)

	timeoutCfg := DefaultConfig
	timeoutCfg.SessionTimeout = -time.Second
	e2 := New(scriptedPipeline(), func(opts *Options) {
		opts.Callbacks = cm
		opts.Config = timeoutCfg
	})
	_, err = e2.Coordinate(context.Background(), "anything", roster)
	require.NoError(t, err)
	assert.Equal(t, 1, emergencies)
}

func TestCoordinateEventPayloadsCarryOutcomeCounts(t *testing.T) {
	log := eventlog.NewInMemoryLog()
	e := New(scriptedPipeline(), func(opts *Options) {
		opts.EventLog = log
		opts.Detector = opportunity.NewStaticDetector()
	})

	_, err := e.Coordinate(context.Background(), "build the reporting stack", roster)
	require.NoError(t, err)

	completed := log.EventsOfType("session_completed")
	require.Len(t, completed, 1)
	assert.Equal(t, "orchestration", completed[0].Payload["mode"])
	assert.GreaterOrEqual(t, completed[0].Payload["duration_seconds"], 0.0)

	allocated := log.EventsOfType("tasks_allocated")
	require.Len(t, allocated, 1)
	tasks := allocated[0].Payload["tasks"].(int)
	assert.Equal(t, tasks, allocated[0].Payload["assigned"].(int)+allocated[0].Payload["withheld"].(int))

	resolved := log.EventsOfType("conflicts_resolved")
	require.Len(t, resolved, 1)
	_, hasSeverity := resolved[0].Payload["by_severity"].(map[string]int)
	assert.True(t, hasSeverity)
}

func TestCoordinateLogsPhaseAggregates(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewLogger(&logging.LoggerConfig{Level: logging.LogLevelInfo, Format: "json", Output: &buf})
	e := New(scriptedPipeline(), func(opts *Options) {
		opts.Logger = logger
	})

	_, err := e.Coordinate(context.Background(), "anything", roster)
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "Phase completed")
	assert.Contains(t, buf.String(), "unit_count")
	assert.Contains(t, buf.String(), `"phase":"contribution"`)
}

func TestCoordinateStructuredLogAttrsSurvive(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewLogger(&logging.LoggerConfig{Level: logging.LogLevelInfo, Format: "json", Output: &buf})
	e := New(scriptedPipeline(), func(opts *Options) {
		opts.Logger = logger
	})

	_, err := e.Coordinate(context.Background(), "anything", roster)
	require.NoError(t, err)

	first, _, _ := strings.Cut(buf.String(), "\n")
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(first), &entry))
	assert.Equal(t, "coordination session started", entry["msg"])
	assert.NotEmpty(t, entry["session_id"])
	assert.Equal(t, float64(len(roster)), entry["agents"])
}
