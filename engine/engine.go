package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/conclave/argumentation"
	"github.com/hupe1980/conclave/consensus"
	"github.com/hupe1980/conclave/contribution"
	"github.com/hupe1980/conclave/core"
	"github.com/hupe1980/conclave/election"
	"github.com/hupe1980/conclave/internal/util"
	"github.com/hupe1980/conclave/logging"
	"github.com/hupe1980/conclave/market"
	"github.com/hupe1980/conclave/oracle"
	"github.com/hupe1980/conclave/validation"
)

// EmergencyAnswer is the fixed fallback returned when the session deadline
// elapses or the final synthesis call fails. Partial results are not trusted
// without passing validation, so nothing session-specific leaks into it.
const EmergencyAnswer = "The coordination session could not be completed in time. " +
	"This is a degraded emergency response; no validated answer is available. " +
	"Please retry the request."

// Config defines tuning parameters for a coordination session.
//
// These cover the timing and negotiation thresholds of the pipeline.
// Collaborator wiring (event log, consensus service, detector) is configured
// via Options rather than this struct.
type Config struct {
	// SessionTimeout is the global deadline for one Coordinate call.
	// Exceeding it at any phase boundary aborts forward progress and
	// returns the emergency fallback.
	SessionTimeout time.Duration

	// OracleCallTimeout bounds every individual oracle call so one
	// unresponsive agent cannot exhaust the session budget. A timed-out
	// call is treated like a failed call.
	OracleCallTimeout time.Duration

	// AllocationFloor is the composite bid score a winning bid must exceed
	// for a task to be assigned.
	AllocationFloor float64

	// ConvergenceThreshold is the minimum consensus convergence for a
	// topic to finalize into a Decision.
	ConvergenceThreshold float64

	// MaxConsensusRounds caps the rounds the consensus service may run per
	// topic.
	MaxConsensusRounds int

	// MaxConsensusTopics caps how many contested topics one session
	// pursues.
	MaxConsensusTopics int

	// MaxRosterSize rejects oversized rosters up front; the pairwise
	// conflict check is quadratic in contributing agents.
	MaxRosterSize int

	// DefaultLeaderID is elected when the oracle nominates nobody usable.
	// Empty means the first roster agent.
	DefaultLeaderID string
}

// DefaultConfig provides production defaults: a five minute session budget,
// 30s per oracle call, the 2.0/5.0 allocation floor and 0.75 convergence
// threshold.
var DefaultConfig = Config{
	SessionTimeout:       5 * time.Minute,
	OracleCallTimeout:    30 * time.Second,
	AllocationFloor:      2.0,
	ConvergenceThreshold: 0.75,
	MaxConsensusRounds:   3,
	MaxConsensusTopics:   3,
	MaxRosterSize:        12,
}

// Options configures an Engine using the functional options pattern. All
// collaborators have working defaults so an Engine built from just an oracle
// is immediately usable.
type Options struct {
	// Config contains the session tuning parameters. Defaults to
	// DefaultConfig.
	Config Config

	// Detector supplies contribution opportunities per agent. Nil disables
	// opportunity detection; choreography then sees no openings.
	Detector core.OpportunityDetector

	// EventLog receives best-effort coordination events. Nil disables
	// publishing.
	EventLog core.EventLog

	// Consensus drives the per-topic consensus rounds. Nil skips the
	// consensus phase entirely.
	Consensus core.ConsensusService

	// Logger provides structured logging. Defaults to NoOpLogger.
	Logger logging.Logger

	// Callbacks hook into phase boundaries for instrumentation. Optional.
	Callbacks *CallbackManager
}

// Engine sequences the coordination phases for one request. It is safe for
// concurrent use; every Coordinate call builds its own session.
type Engine struct {
	oracle    oracle.Oracle
	config    Config
	eventLog  core.EventLog
	logger    logging.Logger
	callbacks *CallbackManager

	elector     *election.Elector
	coordinator *contribution.Coordinator
	facilitator *consensus.Facilitator
	resolver    *argumentation.Resolver
	allocator   *market.Allocator
	validator   *validation.Validator
}

// New creates an Engine around the given oracle. Collaborators default to
// disabled (nil detector, nil event log, nil consensus service); use the
// functional options to wire real ones.
func New(o oracle.Oracle, optFns ...func(o *Options)) *Engine {
	opts := Options{
		Config: DefaultConfig,
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	cfg := opts.Config
	logger := opts.Logger
	callTimeout := cfg.OracleCallTimeout

	return &Engine{
		oracle:    o,
		config:    cfg,
		eventLog:  opts.EventLog,
		logger:    logger,
		callbacks: opts.Callbacks,

		elector: election.New(o, func(eo *election.Options) {
			eo.DefaultLeaderID = cfg.DefaultLeaderID
			eo.CallTimeout = callTimeout
			eo.Logger = logger
		}),
		coordinator: contribution.NewCoordinator(o, opts.Detector, func(co *contribution.CoordinatorOptions) {
			co.CallTimeout = callTimeout
			co.Logger = logger
		}),
		facilitator: consensus.NewFacilitator(o, opts.Consensus, func(fo *consensus.Options) {
			fo.MaxTopics = cfg.MaxConsensusTopics
			fo.Criteria = core.ConsensusCriteria{
				ConvergenceThreshold: cfg.ConvergenceThreshold,
				MaxRounds:            cfg.MaxConsensusRounds,
			}
			fo.CallTimeout = callTimeout
			fo.Logger = logger
		}),
		resolver: argumentation.NewResolver(o, func(ro *argumentation.Options) {
			ro.CallTimeout = callTimeout
			ro.Logger = logger
		}),
		allocator: market.NewAllocator(o, func(mo *market.Options) {
			mo.Floor = cfg.AllocationFloor
			mo.CallTimeout = callTimeout
			mo.Logger = logger
		}),
		validator: validation.NewValidator(o, func(vo *validation.Options) {
			vo.CallTimeout = callTimeout
			vo.Logger = logger
		}),
	}
}

// Coordinate runs the full pipeline for one request and roster and returns
// the structurally complete output. The only error cases are an invalid
// roster; everything else degrades: per-call failures shrink phase results,
// and a deadline overrun or failed synthesis yields the emergency fallback
// output instead of an error.
func (e *Engine) Coordinate(ctx context.Context, request string, roster []core.Agent) (*core.Output, error) {
	if len(roster) == 0 {
		return nil, fmt.Errorf("coordination requires at least one agent")
	}
	if e.config.MaxRosterSize > 0 && len(roster) > e.config.MaxRosterSize {
		return nil, fmt.Errorf("roster size %d exceeds maximum %d", len(roster), e.config.MaxRosterSize)
	}

	sess := core.NewSession(util.NewID(), request, roster, e.config.SessionTimeout)
	ctx, cancel := context.WithDeadline(ctx, sess.Deadline)
	defer cancel()

	e.logger.Info("coordination session started", "session_id", sess.ID, "agents", len(roster))
	e.publish(ctx, sess, "", "session_started", map[string]any{"agents": len(roster)})

	// Phase 1: opportunity detection feeds both election and choreography.
	if !e.enterPhase(ctx, sess, core.PhaseInit) {
		return e.emergency(ctx, sess, "deadline before opportunity detection"), nil
	}
	opportunities := e.coordinator.DetectOpportunities(ctx, sess)

	// Phase 2: leadership election fixes the coordination style.
	if !e.enterPhase(ctx, sess, core.PhaseElection) {
		return e.emergency(ctx, sess, "deadline before election"), nil
	}
	leadership := e.elector.Elect(ctx, sess, opportunities)
	e.publish(ctx, sess, leadership.LeaderID, "leader_elected", map[string]any{"style": string(leadership.Style)})

	// Phase 3: contribution gathering under the elected style.
	if !e.enterPhase(ctx, sess, core.PhaseContribution) {
		return e.emergency(ctx, sess, "deadline before contribution"), nil
	}
	phaseStart := time.Now()
	contributions := e.coordinator.Collect(ctx, sess, leadership.Style, opportunities)
	e.publish(ctx, sess, "", "contributions_collected", map[string]any{"agents": len(contributions)})
	e.logPhase(core.PhaseContribution, len(contributions), phaseStart)

	// Phase 4: consensus on contested topics.
	if !e.enterPhase(ctx, sess, core.PhaseConsensus) {
		return e.emergency(ctx, sess, "deadline before consensus"), nil
	}
	phaseStart = time.Now()
	decisions := e.facilitator.Facilitate(ctx, sess)
	e.publish(ctx, sess, "", "consensus_finished", map[string]any{"decisions": len(decisions)})
	e.logPhase(core.PhaseConsensus, len(decisions), phaseStart)

	// Phase 5: pairwise conflict detection and structured debate.
	if !e.enterPhase(ctx, sess, core.PhaseArgumentation) {
		return e.emergency(ctx, sess, "deadline before argumentation"), nil
	}
	phaseStart = time.Now()
	conflicts := e.resolver.Resolve(ctx, sess)
	e.publish(ctx, sess, "", "conflicts_resolved", map[string]any{
		"conflicts":   len(conflicts),
		"by_severity": severityCounts(conflicts),
	})
	e.logPhase(core.PhaseArgumentation, len(conflicts), phaseStart)

	// Phase 6: contract-net allocation of the decisions' implementation
	// steps.
	if !e.enterPhase(ctx, sess, core.PhaseAllocation) {
		return e.emergency(ctx, sess, "deadline before allocation"), nil
	}
	phaseStart = time.Now()
	tasks := e.allocator.Allocate(ctx, sess, market.TasksFromDecisions(decisions))
	assigned := 0
	for _, task := range tasks {
		if task.Assigned() {
			assigned++
		}
	}
	e.publish(ctx, sess, "", "tasks_allocated", map[string]any{
		"tasks":    len(tasks),
		"assigned": assigned,
		"withheld": len(tasks) - assigned,
	})
	e.logPhase(core.PhaseAllocation, len(tasks), phaseStart)

	// Phase 7: validation scoring and final synthesis.
	if !e.enterPhase(ctx, sess, core.PhaseValidation) {
		return e.emergency(ctx, sess, "deadline before validation"), nil
	}
	result := e.validator.Score(sess)
	answer, err := e.validator.Synthesize(ctx, sess)
	if err != nil {
		return e.emergency(ctx, sess, fmt.Sprintf("synthesis failed: %v", err)), nil
	}

	sess.SetPhase(core.PhaseDone)
	e.publish(ctx, sess, "", "session_completed", map[string]any{
		"coherence":        result.Coherence,
		"mode":             string(leadership.Style),
		"duration_seconds": time.Since(sess.Created).Seconds(),
	})
	e.logger.Info("coordination session completed",
		"session_id", sess.ID,
		"mode", string(leadership.Style),
		"decisions", len(decisions),
		"conflicts", len(conflicts),
		"tasks", len(tasks),
		"coherence", result.Coherence,
	)

	return &core.Output{
		FinalAnswer:          answer,
		Contributions:        sess.Contributions(),
		LeadershipHistory:    sess.LeadershipHistory(),
		Decisions:            sess.Decisions(),
		AllocatedTasks:       sess.AllocatedTasks(),
		Validation:           result,
		CoordinationModeUsed: leadership.Style,
	}, nil
}

// phaseLogger is the optional per-phase aggregate extension of
// logging.Logger. logging.ConclaveLogger implements it; plain adapters get
// the regular Info/Warn records only.
type phaseLogger interface {
	LogPhase(phase string, units int, dur time.Duration, success bool, err error)
}

// logPhase records one completed result-producing phase with its unit count
// (contributions, decisions, conflicts or tasks) when the configured logger
// supports it.
func (e *Engine) logPhase(phase core.Phase, units int, start time.Time) {
	if pl, ok := e.logger.(phaseLogger); ok {
		pl.LogPhase(string(phase), units, time.Since(start), true, nil)
	}
}

func severityCounts(conflicts []core.Conflict) map[string]int {
	counts := make(map[string]int, 3)
	for _, c := range conflicts {
		counts[string(c.Severity)]++
	}
	return counts
}

// enterPhase advances the session cursor and checks the global deadline.
// Returning false means the emergency path must be taken.
func (e *Engine) enterPhase(ctx context.Context, sess *core.Session, phase core.Phase) bool {
	if sess.Expired() || ctx.Err() != nil {
		e.logger.Warn("session deadline exceeded", "session_id", sess.ID, "phase", string(phase))
		return false
	}
	sess.SetPhase(phase)
	if e.callbacks != nil {
		e.callbacks.Execute(ctx, CallbackPhaseEntered, &CallbackContext{SessionID: sess.ID, Phase: phase})
	}
	return true
}

// emergency builds the fixed fallback output: empty decision, allocation and
// validation fields and the emergency coordination mode. It is the caller's
// contract that only a timeout or an escaped synthesis failure lands here.
func (e *Engine) emergency(ctx context.Context, sess *core.Session, reason string) *core.Output {
	e.logger.Error("returning emergency fallback", "session_id", sess.ID, "reason", reason)
	if e.callbacks != nil {
		e.callbacks.Execute(ctx, CallbackEmergency, &CallbackContext{SessionID: sess.ID, Phase: sess.Phase(), Reason: reason})
	}
	e.publish(ctx, sess, "", "session_emergency", map[string]any{
		"reason":           reason,
		"duration_seconds": time.Since(sess.Created).Seconds(),
	})

	return &core.Output{
		FinalAnswer:          EmergencyAnswer,
		Contributions:        map[string][]core.Contribution{},
		LeadershipHistory:    []core.LeadershipRecord{},
		Decisions:            []core.Decision{},
		AllocatedTasks:       []core.AllocatedTask{},
		Validation:           core.ValidationResult{},
		CoordinationModeUsed: core.ModeEmergency,
	}
}

// publish sends one event best-effort. Failures are logged and dropped; the
// event log is audit material, never control flow.
func (e *Engine) publish(ctx context.Context, sess *core.Session, sourceAgentID, eventType string, payload map[string]any) {
	if e.eventLog == nil {
		return
	}
	ev := core.Event{
		SessionID:     sess.ID,
		SourceAgentID: sourceAgentID,
		Type:          eventType,
		Payload:       payload,
		Timestamp:     time.Now(),
	}
	if err := e.eventLog.Publish(ctx, ev); err != nil {
		e.logger.Warn("event publish dropped", "session_id", sess.ID, "type", eventType, "error", err)
	}
}
