package core

import "time"

// CoordinationMode identifies which coordination strategy produced an
// artifact or drove a session.
type CoordinationMode string

const (
	// ModeChoreography marks decentralized, opportunity-driven coordination.
	ModeChoreography CoordinationMode = "choreography"
	// ModeOrchestration marks leader-directed coordination.
	ModeOrchestration CoordinationMode = "orchestration"
	// ModeConsensus marks consensus-first coordination.
	ModeConsensus CoordinationMode = "consensus"
	// ModeHybrid marks combined choreography + orchestration coordination.
	ModeHybrid CoordinationMode = "hybrid"
	// ModeEmergency marks a session that ended on the fallback path.
	ModeEmergency CoordinationMode = "emergency"
)

// LeadershipStyles enumerates the styles an elector may nominate. Anything
// outside this set is treated as unparseable and replaced by a default.
var LeadershipStyles = []CoordinationMode{ModeOrchestration, ModeChoreography, ModeConsensus, ModeHybrid}

// Phase is the session's pipeline position. Phases advance strictly in
// order; only the coordinating goroutine mutates the cursor.
type Phase string

const (
	PhaseInit          Phase = "init"
	PhaseElection      Phase = "election"
	PhaseContribution  Phase = "contribution"
	PhaseConsensus     Phase = "consensus"
	PhaseArgumentation Phase = "argumentation"
	PhaseAllocation    Phase = "allocation"
	PhaseValidation    Phase = "validation"
	PhaseDone          Phase = "done"
)

// Agent describes one specialist participant in a coordination session.
// Agents are immutable once the session roster is fixed.
type Agent struct {
	ID             string   `json:"id"`
	Role           string   `json:"role"`
	ExpertiseAreas []string `json:"expertise_areas,omitempty"`
}

// Opportunity is a contribution opening detected for an agent by the
// external opportunity detector. Consumed once per coordination round.
type Opportunity struct {
	AgentID  string `json:"agent_id"`
	Kind     string `json:"kind"`
	Priority int    `json:"priority"`
}

// Contribution is one agent's expertise input, tagged with the coordination
// mode that produced it. Contributions are append-only per agent; later
// phases read snapshots and never mutate recorded entries.
type Contribution struct {
	AgentID    string           `json:"agent_id"`
	Role       string           `json:"role"`
	Mode       CoordinationMode `json:"mode"`
	Content    string           `json:"content"`
	Confidence float64          `json:"confidence"`
	Created    time.Time        `json:"created"`
}

// LeadershipRecord captures one leadership election outcome. A session keeps
// the full record history; the most recently appended record is active.
type LeadershipRecord struct {
	LeaderID  string           `json:"leader_id"`
	Style     CoordinationMode `json:"style"`
	BackupID  string           `json:"backup_id,omitempty"`
	Reasoning string           `json:"reasoning,omitempty"`
	Elected   time.Time        `json:"elected"`
}

// Decision is the finalized outcome of one consensus topic. At most one
// Decision exists per topic; topics whose convergence criteria were not met
// produce no Decision at all.
type Decision struct {
	ConsensusID  string    `json:"consensus_id"`
	Topic        string    `json:"topic"`
	Participants []string  `json:"participants"`
	Convergence  float64   `json:"convergence"`
	Payload      string    `json:"payload"`
	Decided      time.Time `json:"decided"`
}

// ConflictSeverity grades a detected inter-agent conflict.
type ConflictSeverity string

const (
	SeverityLow    ConflictSeverity = "low"
	SeverityMedium ConflictSeverity = "medium"
	SeverityHigh   ConflictSeverity = "high"
)

// Conflict records a contradiction between the contributions of an unordered
// agent pair, plus the mediation outcome once structured debate has run.
// A session holds at most one open Conflict per pair; re-detection updates
// the existing record.
type Conflict struct {
	AgentA      string           `json:"agent_a"`
	AgentB      string           `json:"agent_b"`
	Type        string           `json:"type"`
	Description string           `json:"description"`
	Severity    ConflictSeverity `json:"severity"`
	Resolution  string           `json:"resolution,omitempty"`
	Reasoning   string           `json:"reasoning,omitempty"`
	Compromises []string         `json:"compromises,omitempty"`
	Detected    time.Time        `json:"detected"`
}

// Bid is one agent's offer for one task in the contract-net round. Submitted
// bids are immutable. Score is the derived composite (see market package);
// agents signalling zero interest submit no Bid at all.
type Bid struct {
	AgentID      string  `json:"agent_id"`
	TaskID       string  `json:"task_id"`
	Interest     int     `json:"interest"`
	Capability   int     `json:"capability"`
	Availability int     `json:"availability"`
	Approach     string  `json:"approach,omitempty"`
	Score        float64 `json:"score"`
}

// AllocatedTask is one actionable task after the bidding round. AgentID is
// empty when allocation was withheld because no bid cleared the floor; the
// task then surfaces visibly unassigned rather than being forced onto an
// unwilling agent.
type AllocatedTask struct {
	ID           string    `json:"id"`
	Description  string    `json:"description"`
	SourceTopic  string    `json:"source_topic"`
	AgentID      string    `json:"agent_id,omitempty"`
	WinningScore float64   `json:"winning_score"`
	Allocated    time.Time `json:"allocated"`
}

// Assigned reports whether the task ended the bidding round with an owner.
func (t AllocatedTask) Assigned() bool { return t.AgentID != "" }

// ValidationResult holds the per-dimension quality scores computed at the
// end of a session, each in [0,1], plus their aggregate.
type ValidationResult struct {
	Functional            float64 `json:"functional"`
	CoordinationIntegrity float64 `json:"coordination_integrity"`
	AllocationFairness    float64 `json:"allocation_fairness"`
	Coherence             float64 `json:"coherence"`
}

// Output is the structurally complete result returned to the caller. In every
// non-timeout case all collections are present (possibly empty), never nil.
type Output struct {
	FinalAnswer          string                    `json:"final_answer"`
	Contributions        map[string][]Contribution `json:"contributions_by_agent"`
	LeadershipHistory    []LeadershipRecord        `json:"leadership_history"`
	Decisions            []Decision                `json:"consensus_decisions"`
	AllocatedTasks       []AllocatedTask           `json:"allocated_tasks"`
	Validation           ValidationResult          `json:"validation_result"`
	CoordinationModeUsed CoordinationMode          `json:"coordination_mode_used"`
}
