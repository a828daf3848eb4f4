package testutil

import (
	"time"

	"github.com/hupe1980/conclave/core"
)

// SessionBuilder helps construct coordination sessions with fluent chaining
// for tests.
// Example:
//
//	sess := NewSessionBuilder("sess-1").
//		Agent("analyst", "Data Analyst", "data").
//		Contribution("analyst", "use the survey data", 0.8).
//		Build()
type SessionBuilder struct {
	id            string
	request       string
	timeout       time.Duration
	roster        []core.Agent
	contributions []core.Contribution
	leadership    []core.LeadershipRecord
	decisions     []core.Decision
	tasks         []core.AllocatedTask
}

// NewSessionBuilder creates a new builder for a session with the given id.
func NewSessionBuilder(id string) *SessionBuilder {
	return &SessionBuilder{id: id, request: "coordinate the request", timeout: time.Minute}
}

// Request sets the original request text (chainable).
func (b *SessionBuilder) Request(req string) *SessionBuilder {
	b.request = req
	return b
}

// Timeout sets the session deadline offset (chainable).
func (b *SessionBuilder) Timeout(d time.Duration) *SessionBuilder {
	b.timeout = d
	return b
}

// Agent appends one roster entry (chainable).
func (b *SessionBuilder) Agent(id, role string, expertise ...string) *SessionBuilder {
	b.roster = append(b.roster, core.Agent{ID: id, Role: role, ExpertiseAreas: expertise})
	return b
}

// Contribution records a choreography-mode contribution for an agent (chainable).
func (b *SessionBuilder) Contribution(agentID, content string, confidence float64) *SessionBuilder {
	b.contributions = append(b.contributions, core.Contribution{
		AgentID:    agentID,
		Mode:       core.ModeChoreography,
		Content:    content,
		Confidence: confidence,
		Created:    time.Now(),
	})
	return b
}

// Leader appends a leadership record (chainable).
func (b *SessionBuilder) Leader(agentID string, style core.CoordinationMode) *SessionBuilder {
	b.leadership = append(b.leadership, core.LeadershipRecord{LeaderID: agentID, Style: style, Elected: time.Now()})
	return b
}

// Decision appends a finalized consensus decision (chainable).
func (b *SessionBuilder) Decision(topic, payload string, convergence float64, participants ...string) *SessionBuilder {
	b.decisions = append(b.decisions, core.Decision{
		ConsensusID:  "consensus-" + topic,
		Topic:        topic,
		Payload:      payload,
		Convergence:  convergence,
		Participants: participants,
		Decided:      time.Now(),
	})
	return b
}

// Task appends an allocation outcome (chainable).
func (b *SessionBuilder) Task(id, agentID string, winningScore float64) *SessionBuilder {
	b.tasks = append(b.tasks, core.AllocatedTask{ID: id, Description: "task " + id, AgentID: agentID, WinningScore: winningScore, Allocated: time.Now()})
	return b
}

// Build returns a *core.Session with all recorded artifacts applied.
func (b *SessionBuilder) Build() *core.Session {
	sess := core.NewSession(b.id, b.request, b.roster, b.timeout)
	for _, c := range b.contributions {
		sess.AddContribution(c)
	}
	for _, l := range b.leadership {
		sess.AppendLeadership(l)
	}
	for _, d := range b.decisions {
		sess.AddDecision(d)
	}
	for _, t := range b.tasks {
		sess.AddAllocatedTask(t)
	}
	return sess
}
