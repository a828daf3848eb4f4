// Package opportunity provides core.OpportunityDetector implementations.
// The production detector is an external collaborator; StaticDetector is a
// local, deterministic stand-in matching agent expertise tags against the
// request text, suitable for development, tests and degraded operation.
package opportunity

import (
	"context"
	"strings"

	"github.com/hupe1980/conclave/core"
)

// Options configure the StaticDetector.
type Options struct {
	// MatchPriority is assigned to opportunities from expertise tag matches.
	MatchPriority int
	// BaselineOffer, when true, yields one low-priority general opportunity
	// for agents with no expertise match so decentralized coordination still
	// hears from every roster member.
	BaselineOffer bool
	// BaselinePriority is assigned to baseline opportunities.
	BaselinePriority int
}

// StaticDetector derives opportunities from expertise tag occurrences in the
// request text. It holds no state and is safe for concurrent use.
type StaticDetector struct {
	opts Options
}

// NewStaticDetector constructs a detector with match priority 3 and baseline
// offers enabled.
func NewStaticDetector(optFns ...func(o *Options)) *StaticDetector {
	opts := Options{
		MatchPriority:    3,
		BaselineOffer:    true,
		BaselinePriority: 1,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &StaticDetector{opts: opts}
}

// Detect implements core.OpportunityDetector. One opportunity is produced per
// expertise tag found in the request (case-insensitive substring match).
func (d *StaticDetector) Detect(ctx context.Context, agent core.Agent, sessionID, request string) ([]core.Opportunity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lowered := strings.ToLower(request)
	var out []core.Opportunity
	for _, tag := range agent.ExpertiseAreas {
		tag = strings.TrimSpace(strings.ToLower(tag))
		if tag == "" {
			continue
		}
		if strings.Contains(lowered, tag) {
			out = append(out, core.Opportunity{
				AgentID:  agent.ID,
				Kind:     "expertise_match",
				Priority: d.opts.MatchPriority,
			})
		}
	}
	if len(out) == 0 && d.opts.BaselineOffer {
		out = append(out, core.Opportunity{
			AgentID:  agent.ID,
			Kind:     "general_support",
			Priority: d.opts.BaselinePriority,
		})
	}
	return out, nil
}
