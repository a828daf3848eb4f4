// Package argumentation detects contradictions between the contributions of
// agent pairs and mediates them through structured debate. Conflict checks
// are deliberately quadratic in the number of contributing agents; rosters
// are small, and pairwise checks catch contradictions a single aggregate
// pass would miss.
package argumentation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/conclave/core"
	"github.com/hupe1980/conclave/internal/util"
	"github.com/hupe1980/conclave/logging"
	"github.com/hupe1980/conclave/oracle"
	"github.com/hupe1980/conclave/parse"
)

const conflictPrompt = `Two agents contributed to the same request. Decide whether their
positions contradict each other.

Agent %s (%s) contributed:
%s

Agent %s (%s) contributed:
%s

Respond with:

CONFLICT: <Yes or No>
TYPE: <short label, e.g. approach_disagreement, factual_contradiction>
DESCRIPTION: <one sentence describing the contradiction>
SEVERITY: <low, medium or high>`

const debatePrompt = `You are mediating a structured debate between two agents whose
contributions conflict.

Conflict type: %s
Conflict description: %s

Agent %s argued:
%s

Agent %s argued:
%s

Weigh both arguments and produce a resolution. Respond with:

RESOLUTION: <the position the session should adopt>
REASONING: <why this resolution is justified>
COMPROMISE_ELEMENTS:
- <element taken from each side, one per line>`

// Options configure the Resolver.
type Options struct {
	// CallTimeout bounds each oracle call.
	CallTimeout time.Duration
	// ExcerptLimit caps how much of each agent's content is quoted in
	// prompts.
	ExcerptLimit int
	// Logger receives per-pair failure diagnostics.
	Logger logging.Logger
}

// Resolver runs pairwise conflict detection over a session's contributions
// and mediates every detected conflict with one debate call. Analysis
// failures for a pair omit that pair's record and never abort the phase.
type Resolver struct {
	oracle oracle.Oracle
	opts   Options
}

// NewResolver creates a Resolver with a 30s per-call timeout and a 500 rune
// excerpt limit.
func NewResolver(o oracle.Oracle, optFns ...func(o *Options)) *Resolver {
	opts := Options{
		CallTimeout:  30 * time.Second,
		ExcerptLimit: 500,
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Resolver{oracle: o, opts: opts}
}

// Resolve checks every unordered pair of contributing agents for conflicts,
// mediates the detected ones, and records the outcomes on the session. It
// returns the conflicts recorded during this pass.
func (r *Resolver) Resolve(ctx context.Context, sess *core.Session) []core.Conflict {
	agents := sess.ContributingAgents()
	if len(agents) < 2 {
		return nil
	}
	excerpts := r.excerpts(sess, agents)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		conflicts []core.Conflict
	)
	for i := 0; i < len(agents); i++ {
		for j := i + 1; j < len(agents); j++ {
			wg.Add(1)
			go func(a, b string) {
				defer wg.Done()
				c, ok := r.checkPair(ctx, sess, a, b, excerpts)
				if !ok {
					return
				}
				mu.Lock()
				conflicts = append(conflicts, c)
				mu.Unlock()
			}(agents[i], agents[j])
		}
	}
	wg.Wait()

	for _, c := range conflicts {
		sess.UpsertConflict(c)
	}
	r.opts.Logger.Info("conflict resolution finished",
		"session_id", sess.ID, "pairs", len(agents)*(len(agents)-1)/2, "conflicts", len(conflicts))
	return conflicts
}

// checkPair runs detection and, if a conflict is found, one debate call. A
// failure in either call drops the pair.
func (r *Resolver) checkPair(ctx context.Context, sess *core.Session, a, b string, excerpts map[string]string) (core.Conflict, bool) {
	roleA, roleB := r.roleOf(sess, a), r.roleOf(sess, b)

	text, err := r.ask(ctx, fmt.Sprintf(conflictPrompt, a, roleA, excerpts[a], b, roleB, excerpts[b]))
	if err != nil {
		r.opts.Logger.Warn("conflict check failed", "session_id", sess.ID, "pair", core.PairKey(a, b), "error", err)
		return core.Conflict{}, false
	}

	parsed := parse.Fields(text,
		parse.Enum("CONFLICT", "No", "Yes", "No"),
		parse.String("TYPE", "approach_disagreement"),
		parse.String("DESCRIPTION", ""),
		parse.Enum("SEVERITY", string(core.SeverityMedium),
			string(core.SeverityLow), string(core.SeverityMedium), string(core.SeverityHigh)),
	)
	if !strings.EqualFold(parsed.String("CONFLICT"), "Yes") {
		return core.Conflict{}, false
	}

	c := core.Conflict{
		AgentA:      a,
		AgentB:      b,
		Type:        parsed.String("TYPE"),
		Description: parsed.String("DESCRIPTION"),
		Severity:    core.ConflictSeverity(strings.ToLower(parsed.String("SEVERITY"))),
		Detected:    time.Now(),
	}
	r.debate(ctx, sess, &c, excerpts)
	return c, true
}

// debate mediates one detected conflict. A failed debate call leaves the
// conflict recorded without a resolution.
func (r *Resolver) debate(ctx context.Context, sess *core.Session, c *core.Conflict, excerpts map[string]string) {
	text, err := r.ask(ctx, fmt.Sprintf(debatePrompt,
		c.Type, c.Description, c.AgentA, excerpts[c.AgentA], c.AgentB, excerpts[c.AgentB]))
	if err != nil {
		r.opts.Logger.Warn("debate call failed", "session_id", sess.ID, "pair", core.PairKey(c.AgentA, c.AgentB), "error", err)
		return
	}

	parsed := parse.Fields(text,
		parse.String("RESOLUTION", text),
		parse.String("REASONING", ""),
		parse.Block("COMPROMISE_ELEMENTS"),
	)
	c.Resolution = parsed.String("RESOLUTION")
	c.Reasoning = parsed.String("REASONING")
	c.Compromises = parsed.Block("COMPROMISE_ELEMENTS")
}

func (r *Resolver) ask(ctx context.Context, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.opts.CallTimeout)
	defer cancel()
	return r.oracle.Generate(callCtx, "Conflict Mediator", prompt)
}

// excerpts joins each agent's contribution content, truncated to the
// configured limit.
func (r *Resolver) excerpts(sess *core.Session, agents []string) map[string]string {
	contributions := sess.Contributions()
	out := make(map[string]string, len(agents))
	for _, id := range agents {
		var parts []string
		for _, c := range contributions[id] {
			if strings.TrimSpace(c.Content) == "" {
				continue
			}
			parts = append(parts, c.Content)
		}
		out[id] = util.Truncate(strings.Join(parts, "\n"), r.opts.ExcerptLimit)
	}
	return out
}

func (r *Resolver) roleOf(sess *core.Session, agentID string) string {
	if a, ok := sess.AgentByID(agentID); ok {
		return a.Role
	}
	return "unknown"
}
