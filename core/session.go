package core

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Session is the single mutable container for one coordination run. It holds
// the immutable request + roster and the accumulating result collections the
// phases write into. It is safe for concurrent access.
//
// Contract:
//   - The phase cursor is mutated only by the coordinating goroutine between
//     phases; fan-out workers never touch it.
//   - Fan-out workers write to disjoint keys (agent id, pair key, task id);
//     a single coarse guard around each append is therefore sufficient.
//   - Snapshot accessors return defensive copies so later phases can read
//     prior-phase results without locking.
//   - Contributions are append-only: once recorded they are never mutated
//     or removed.
type Session struct {
	ID       string
	Request  string
	Roster   []Agent
	Created  time.Time
	Deadline time.Time

	mu            sync.RWMutex
	phase         Phase
	contributions map[string][]Contribution
	leadership    []LeadershipRecord
	decisions     []Decision
	conflicts     map[string]Conflict
	consensusIDs  []string
	bids          map[string][]Bid
	tasks         []AllocatedTask
}

// NewSession creates a session for one request with a fixed roster and a
// global deadline. The roster slice is copied; callers may reuse theirs.
func NewSession(id, request string, roster []Agent, timeout time.Duration) *Session {
	now := time.Now()
	r := make([]Agent, len(roster))
	copy(r, roster)
	return &Session{
		ID:            id,
		Request:       request,
		Roster:        r,
		Created:       now,
		Deadline:      now.Add(timeout),
		phase:         PhaseInit,
		contributions: make(map[string][]Contribution),
		conflicts:     make(map[string]Conflict),
		bids:          make(map[string][]Bid),
	}
}

// Phase returns the current pipeline position.
func (s *Session) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// SetPhase advances the pipeline cursor. Only the coordinating goroutine may
// call this.
func (s *Session) SetPhase(p Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = p
}

// Expired reports whether the global session deadline has passed.
func (s *Session) Expired() bool { return time.Now().After(s.Deadline) }

// AgentByID returns the roster entry for id and whether it exists.
func (s *Session) AgentByID(id string) (Agent, bool) {
	for _, a := range s.Roster {
		if a.ID == id {
			return a, true
		}
	}
	return Agent{}, false
}

// HasAgent reports roster membership for the given agent id.
func (s *Session) HasAgent(id string) bool {
	_, ok := s.AgentByID(id)
	return ok
}

// AddContribution appends one contribution to the producing agent's list.
func (s *Session) AddContribution(c Contribution) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contributions[c.AgentID] = append(s.contributions[c.AgentID], c)
}

// Contributions returns a defensive copy of the per-agent contribution map.
func (s *Session) Contributions() map[string][]Contribution {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]Contribution, len(s.contributions))
	for id, list := range s.contributions {
		cp := make([]Contribution, len(list))
		copy(cp, list)
		out[id] = cp
	}
	return out
}

// ContributingAgents returns the ids of agents with at least one non-empty
// contribution, sorted for deterministic iteration.
func (s *Session) ContributingAgents() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id, list := range s.contributions {
		for _, c := range list {
			if strings.TrimSpace(c.Content) != "" {
				ids = append(ids, id)
				break
			}
		}
	}
	sort.Strings(ids)
	return ids
}

// AppendLeadership records an election outcome. History is append-only;
// re-election appends, never overwrites.
func (s *Session) AppendLeadership(r LeadershipRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leadership = append(s.leadership, r)
}

// ActiveLeadership returns the most recent leadership record and whether an
// election has happened at all.
func (s *Session) ActiveLeadership() (LeadershipRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.leadership) == 0 {
		return LeadershipRecord{}, false
	}
	return s.leadership[len(s.leadership)-1], true
}

// LeadershipHistory returns a copy of all leadership records in append order.
func (s *Session) LeadershipHistory() []LeadershipRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]LeadershipRecord, len(s.leadership))
	copy(out, s.leadership)
	return out
}

// AddDecision records one finalized consensus decision.
func (s *Session) AddDecision(d Decision) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decisions = append(s.decisions, d)
}

// Decisions returns a copy of all finalized consensus decisions.
func (s *Session) Decisions() []Decision {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Decision, len(s.decisions))
	copy(out, s.decisions)
	return out
}

// RecordConsensusID retains an initiated consensus session id for audit.
func (s *Session) RecordConsensusID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consensusIDs = append(s.consensusIDs, id)
}

// ConsensusIDs returns all initiated consensus ids, finalized or not.
func (s *Session) ConsensusIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.consensusIDs))
	copy(out, s.consensusIDs)
	return out
}

// PairKey builds the canonical unordered-pair key for two agent ids.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}

// UpsertConflict records a conflict for an unordered agent pair. Subsequent
// detections for the same pair update the open record instead of duplicating
// it; an existing resolution is preserved unless the update carries one.
func (s *Session) UpsertConflict(c Conflict) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := PairKey(c.AgentA, c.AgentB)
	if prev, ok := s.conflicts[key]; ok && c.Resolution == "" {
		c.Resolution = prev.Resolution
		c.Reasoning = prev.Reasoning
		c.Compromises = prev.Compromises
	}
	s.conflicts[key] = c
}

// Conflicts returns a copy of all open conflicts keyed by unordered pair.
func (s *Session) Conflicts() map[string]Conflict {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Conflict, len(s.conflicts))
	for k, v := range s.conflicts {
		out[k] = v
	}
	return out
}

// AddBid appends one immutable bid to the task's bid list.
func (s *Session) AddBid(b Bid) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bids[b.TaskID] = append(s.bids[b.TaskID], b)
}

// Bids returns a defensive copy of all bids keyed by task id.
func (s *Session) Bids() map[string][]Bid {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]Bid, len(s.bids))
	for id, list := range s.bids {
		cp := make([]Bid, len(list))
		copy(cp, list)
		out[id] = cp
	}
	return out
}

// AddAllocatedTask records the outcome of one bidding round. A task id is
// recorded at most once; repeated ids are ignored to keep the single
// allocation invariant.
func (s *Session) AddAllocatedTask(t AllocatedTask) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.tasks {
		if existing.ID == t.ID {
			return
		}
	}
	s.tasks = append(s.tasks, t)
}

// AllocatedTasks returns a copy of all bidding round outcomes.
func (s *Session) AllocatedTasks() []AllocatedTask {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]AllocatedTask, len(s.tasks))
	copy(out, s.tasks)
	return out
}
