package core

import (
	"context"
	"time"
)

// Event is one append-only blackboard record describing a coordination
// happening (election, contribution, conflict, allocation, ...). Events are
// audit material, never control flow.
type Event struct {
	SessionID     string         `json:"session_id"`
	SourceAgentID string         `json:"source_agent_id,omitempty"`
	Type          string         `json:"type"`
	Payload       map[string]any `json:"payload,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
}

// EventLog publishes coordination events best-effort. Implementations must
// never block the pipeline on delivery; a failed publish is dropped by the
// caller after logging.
type EventLog interface {
	Publish(ctx context.Context, ev Event) error
}

// OpportunityDetector surfaces contribution openings for one agent given the
// session request. External collaborator; a detection failure for one agent
// yields no opportunities for that agent only.
type OpportunityDetector interface {
	Detect(ctx context.Context, agent Agent, sessionID, request string) ([]Opportunity, error)
}

// Participant identifies one agent taking part in a consensus round.
type Participant struct {
	AgentID string `json:"agent_id"`
	Role    string `json:"role"`
}

// ConsensusCriteria parameterizes one consensus round.
type ConsensusCriteria struct {
	ConvergenceThreshold float64 `json:"convergence_threshold"`
	MaxRounds            int     `json:"max_rounds"`
	RequireUnanimous     bool    `json:"require_unanimous"`
}

// ConsensusService drives a Delphi-style consensus process on one topic.
// The engine delegates to it per topic: Initiate, CollectProposals,
// CollectFeedback, AnalyzeConvergence, Finalize. Finalize returning ok=false
// means the criteria were not met; this is an expected outcome, not a fault.
type ConsensusService interface {
	Initiate(ctx context.Context, topic string, participants []Participant, criteria ConsensusCriteria) (consensusID string, err error)
	CollectProposals(ctx context.Context, consensusID string) error
	CollectFeedback(ctx context.Context, consensusID string) error
	AnalyzeConvergence(ctx context.Context, consensusID string) (float64, error)
	Finalize(ctx context.Context, consensusID string) (payload string, ok bool, err error)
}
