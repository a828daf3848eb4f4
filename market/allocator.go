// Package market assigns actionable tasks through a contract-net bidding
// round. Every roster agent is invited to bid on every task; allocation is
// withheld when no bid clears the floor, so unwanted tasks surface
// unassigned instead of being forced onto an unwilling agent.
package market

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/conclave/core"
	"github.com/hupe1980/conclave/internal/util"
	"github.com/hupe1980/conclave/logging"
	"github.com/hupe1980/conclave/oracle"
	"github.com/hupe1980/conclave/parse"
)

const bidPrompt = `A task is up for bidding in a coordination session working on:

%s

Task: %s

You are %s with expertise in: %s. Bid on this task. INTEREST_LEVEL 0 means
you abstain. Respond with:

INTEREST_LEVEL: <0-5>
CAPABILITY_MATCH: <0-5>
AVAILABILITY: <0-5>
APPROACH: <one sentence on how you would do it>`

// Score weights. Capability dominates: a capable but lukewarm agent beats an
// eager incapable one.
const (
	interestWeight     = 0.3
	capabilityWeight   = 0.5
	availabilityWeight = 0.2
)

// CompositeScore combines a bid's three self-assessments into one score in
// [0,5].
func CompositeScore(interest, capability, availability int) float64 {
	return interestWeight*float64(interest) +
		capabilityWeight*float64(capability) +
		availabilityWeight*float64(availability)
}

// Options configure the Allocator.
type Options struct {
	// Floor is the composite score a winning bid must exceed for the task
	// to be assigned at all.
	Floor float64
	// CallTimeout bounds each per-agent bid solicitation.
	CallTimeout time.Duration
	// Logger receives per-bid failure diagnostics.
	Logger logging.Logger
}

// Allocator runs the contract-net round: it extracts tasks from finalized
// decisions, solicits one bid per roster agent per task, and assigns each
// task to the best bid above the floor.
type Allocator struct {
	oracle oracle.Oracle
	opts   Options
}

// NewAllocator creates an Allocator with a 2.0 floor and a 30s per-call
// timeout.
func NewAllocator(o oracle.Oracle, optFns ...func(o *Options)) *Allocator {
	opts := Options{
		Floor:       2.0,
		CallTimeout: 30 * time.Second,
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Allocator{oracle: o, opts: opts}
}

// Task is one actionable unit extracted from a finalized decision, before
// bidding.
type Task struct {
	ID          string
	Description string
	SourceTopic string
}

// TasksFromDecisions extracts one task per implementation step of each
// decision payload. Step lines are the "- " bullets below the decision text;
// a payload without steps becomes a single task.
func TasksFromDecisions(decisions []core.Decision) []Task {
	var tasks []Task
	for _, d := range decisions {
		steps := implementationSteps(d.Payload)
		if len(steps) == 0 {
			if desc := strings.TrimSpace(d.Payload); desc != "" {
				tasks = append(tasks, Task{ID: util.NewID(), Description: desc, SourceTopic: d.Topic})
			}
			continue
		}
		for _, step := range steps {
			tasks = append(tasks, Task{ID: util.NewID(), Description: step, SourceTopic: d.Topic})
		}
	}
	return tasks
}

func implementationSteps(payload string) []string {
	var steps []string
	for _, line := range strings.Split(payload, "\n") {
		line = strings.TrimSpace(line)
		if step, ok := strings.CutPrefix(line, "- "); ok {
			if step = strings.TrimSpace(step); step != "" {
				steps = append(steps, step)
			}
		}
	}
	return steps
}

// Allocate runs one bidding round per task and records bids and outcomes on
// the session. Tasks are processed in order; bids within a task are
// solicited concurrently.
func (a *Allocator) Allocate(ctx context.Context, sess *core.Session, tasks []Task) []core.AllocatedTask {
	out := make([]core.AllocatedTask, 0, len(tasks))
	for _, task := range tasks {
		bids := a.solicitBids(ctx, sess, task)
		for _, b := range bids {
			sess.AddBid(b)
		}
		allocated := a.award(task, bids)
		sess.AddAllocatedTask(allocated)
		out = append(out, allocated)
	}
	a.opts.Logger.Info("bidding round finished", "session_id", sess.ID, "tasks", len(tasks))
	return out
}

// solicitBids asks every roster agent concurrently. Failed calls and
// zero-interest responses yield no bid.
func (a *Allocator) solicitBids(ctx context.Context, sess *core.Session, task Task) []core.Bid {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		bids []core.Bid
	)
	for _, agent := range sess.Roster {
		wg.Add(1)
		go func(agent core.Agent) {
			defer wg.Done()
			bid, ok := a.solicitBid(ctx, sess, agent, task)
			if !ok {
				return
			}
			mu.Lock()
			bids = append(bids, bid)
			mu.Unlock()
		}(agent)
	}
	wg.Wait()
	// Stable order so award ties break the same way every round.
	sort.Slice(bids, func(i, j int) bool { return bids[i].AgentID < bids[j].AgentID })
	return bids
}

func (a *Allocator) solicitBid(ctx context.Context, sess *core.Session, agent core.Agent, task Task) (core.Bid, bool) {
	callCtx, cancel := context.WithTimeout(ctx, a.opts.CallTimeout)
	defer cancel()

	prompt := fmt.Sprintf(bidPrompt, sess.Request, task.Description, agent.Role, strings.Join(agent.ExpertiseAreas, ", "))
	text, err := a.oracle.Generate(callCtx, agent.Role, prompt)
	if err != nil {
		a.opts.Logger.Warn("bid solicitation failed", "session_id", sess.ID, "agent_id", agent.ID, "task_id", task.ID, "error", err)
		return core.Bid{}, false
	}

	parsed := parse.Fields(text,
		parse.Int("INTEREST_LEVEL", 0, 0, 5),
		parse.Int("CAPABILITY_MATCH", 0, 0, 5),
		parse.Int("AVAILABILITY", 0, 0, 5),
		parse.String("APPROACH", ""),
	)
	interest := parsed.Int("INTEREST_LEVEL")
	if interest == 0 {
		return core.Bid{}, false
	}
	capability := parsed.Int("CAPABILITY_MATCH")
	availability := parsed.Int("AVAILABILITY")
	return core.Bid{
		AgentID:      agent.ID,
		TaskID:       task.ID,
		Interest:     interest,
		Capability:   capability,
		Availability: availability,
		Approach:     parsed.String("APPROACH"),
		Score:        CompositeScore(interest, capability, availability),
	}, true
}

// award picks the best bid. Allocation is withheld when no bid exceeds the
// floor; ties go to the lexicographically first agent id.
func (a *Allocator) award(task Task, bids []core.Bid) core.AllocatedTask {
	out := core.AllocatedTask{
		ID:          task.ID,
		Description: task.Description,
		SourceTopic: task.SourceTopic,
		Allocated:   time.Now(),
	}
	var best *core.Bid
	for i := range bids {
		if best == nil || bids[i].Score > best.Score {
			best = &bids[i]
		}
	}
	if best == nil {
		return out
	}
	out.WinningScore = best.Score
	if best.Score > a.opts.Floor {
		out.AgentID = best.AgentID
	}
	return out
}
