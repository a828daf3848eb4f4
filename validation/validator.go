// Package validation scores a finished session across independent quality
// dimensions and synthesizes the final answer. Dimensions with no evidence
// score a neutral default so an absent phase neither fails nor passes
// validation on its own.
package validation

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hupe1980/conclave/core"
	"github.com/hupe1980/conclave/internal/util"
	"github.com/hupe1980/conclave/logging"
	"github.com/hupe1980/conclave/oracle"
)

const synthesisPrompt = `A multi-agent coordination session has finished working on:

%s

Agent contributions:
%s

Consensus decisions:
%s

Task allocations:
%s

Synthesize one coherent final answer to the original request. Write it as a
direct response to the requester, not a report about the session.`

// Options configure the Validator.
type Options struct {
	// CallTimeout bounds the synthesis oracle call.
	CallTimeout time.Duration
	// Logger receives validation diagnostics.
	Logger logging.Logger
}

// Validator computes the session's quality scores and produces the final
// answer.
type Validator struct {
	oracle oracle.Oracle
	opts   Options
}

// NewValidator creates a Validator with a 60s synthesis timeout.
func NewValidator(o oracle.Oracle, optFns ...func(o *Options)) *Validator {
	opts := Options{
		CallTimeout: 60 * time.Second,
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Validator{oracle: o, opts: opts}
}

// Score computes the three dimension scores and their aggregate. It is pure:
// no oracle calls, no session mutation.
func (v *Validator) Score(sess *core.Session) core.ValidationResult {
	r := core.ValidationResult{
		Functional:            functionalScore(sess.Contributions()),
		CoordinationIntegrity: coordinationScore(sess.Decisions()),
		AllocationFairness:    fairnessScore(sess.AllocatedTasks()),
	}
	r.Coherence = (r.Functional + r.CoordinationIntegrity + r.AllocationFairness) / 3
	return r
}

// functionalScore is the mean contribution confidence. Functional claims
// require evidence, so no contributions scores 0.0 rather than neutral.
func functionalScore(contributions map[string][]core.Contribution) float64 {
	var sum float64
	var n int
	for _, list := range contributions {
		for _, c := range list {
			sum += c.Confidence
			n++
		}
	}
	if n == 0 {
		return 0.0
	}
	return clamp01(sum / float64(n))
}

// coordinationScore is the mean convergence across finalized decisions, 0.5
// when consensus was never attempted.
func coordinationScore(decisions []core.Decision) float64 {
	if len(decisions) == 0 {
		return 0.5
	}
	var sum float64
	for _, d := range decisions {
		sum += d.Convergence
	}
	return clamp01(sum / float64(len(decisions)))
}

// fairnessScore is the mean normalized winning-bid score over assigned
// tasks, penalized by the variance of per-agent task counts. 0.5 when
// nothing was assigned.
func fairnessScore(tasks []core.AllocatedTask) float64 {
	var assigned []core.AllocatedTask
	for _, t := range tasks {
		if t.Assigned() {
			assigned = append(assigned, t)
		}
	}
	if len(assigned) == 0 {
		return 0.5
	}

	var sum float64
	counts := make(map[string]int)
	for _, t := range assigned {
		sum += t.WinningScore / 5.0
		counts[t.AgentID]++
	}
	quality := sum / float64(len(assigned))

	mean := float64(len(assigned)) / float64(len(counts))
	var variance float64
	for _, n := range counts {
		d := float64(n) - mean
		variance += d * d
	}
	variance /= float64(len(counts))

	return clamp01(quality - 0.1*variance)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Synthesize produces the final natural-language answer from the session's
// accumulated artifacts. The oracle's output is the literal answer; it is
// not parsed. An error propagates so the caller can substitute its fallback.
func (v *Validator) Synthesize(ctx context.Context, sess *core.Session) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, v.opts.CallTimeout)
	defer cancel()

	answer, err := v.oracle.Generate(callCtx, "Synthesizer", fmt.Sprintf(synthesisPrompt,
		sess.Request,
		contributionDigest(sess.Contributions()),
		decisionDigest(sess.Decisions()),
		taskDigest(sess.AllocatedTasks()),
	))
	if err != nil {
		return "", fmt.Errorf("final synthesis: %w", err)
	}
	return strings.TrimSpace(answer), nil
}

func contributionDigest(contributions map[string][]core.Contribution) string {
	if len(contributions) == 0 {
		return "(none)"
	}
	agents := make([]string, 0, len(contributions))
	for id := range contributions {
		agents = append(agents, id)
	}
	sort.Strings(agents)

	var sb strings.Builder
	for _, id := range agents {
		for _, c := range contributions[id] {
			fmt.Fprintf(&sb, "- %s (%s): %s\n", c.AgentID, c.Role, util.Truncate(c.Content, 400))
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func decisionDigest(decisions []core.Decision) string {
	if len(decisions) == 0 {
		return "(none)"
	}
	var sb strings.Builder
	for _, d := range decisions {
		fmt.Fprintf(&sb, "- %s (convergence %.2f): %s\n", d.Topic, d.Convergence, util.Truncate(d.Payload, 400))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func taskDigest(tasks []core.AllocatedTask) string {
	if len(tasks) == 0 {
		return "(none)"
	}
	var sb strings.Builder
	for _, t := range tasks {
		owner := t.AgentID
		if !t.Assigned() {
			owner = "unassigned"
		}
		fmt.Fprintf(&sb, "- %s -> %s\n", util.Truncate(t.Description, 200), owner)
	}
	return strings.TrimRight(sb.String(), "\n")
}
