package contribution

import (
	"context"
	"fmt"

	"github.com/hupe1980/conclave/core"
	"github.com/hupe1980/conclave/oracle"
)

const choreographyPrompt = `You are %s on a multi-agent team handling this request:

%s

A contribution opportunity of kind %q was detected for you. Acting on your
own initiative, contribute your expertise to the request. Respond with:

CONTRIBUTION: <your input>
CONFIDENCE: <0.0-1.0>`

// Choreography is the decentralized strategy: every agent with at least one
// detected opportunity contributes independently, acting on its own
// highest-priority opportunity with no central direction.
type Choreography struct {
	oracle oracle.Oracle
	opts   Options
}

// NewChoreography creates the decentralized contribution strategy.
func NewChoreography(o oracle.Oracle, optFns ...func(o *Options)) *Choreography {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Choreography{oracle: o, opts: opts}
}

// Name implements Strategy.
func (s *Choreography) Name() string { return string(core.ModeChoreography) }

// Collect implements Strategy. Agents without opportunities are skipped
// entirely; each participating agent produces at most one contribution.
func (s *Choreography) Collect(ctx context.Context, sess *core.Session, opportunities map[string][]core.Opportunity) map[string][]core.Contribution {
	var eligible []core.Agent
	for _, a := range sess.Roster {
		if len(opportunities[a.ID]) > 0 {
			eligible = append(eligible, a)
		}
	}

	return fanOut(eligible, func(a core.Agent) ([]core.Contribution, error) {
		opp := bestOpportunity(opportunities[a.ID])
		prompt := fmt.Sprintf(choreographyPrompt, a.Role, sess.Request, opp.Kind)
		c, err := askContribution(ctx, s.oracle, a, prompt, core.ModeChoreography, 0.7, s.opts.CallTimeout)
		if err != nil {
			return nil, err
		}
		return []core.Contribution{c}, nil
	}, s.opts.Logger, s.Name())
}

// bestOpportunity picks the highest-priority opportunity; earlier entries
// win ties so the choice is deterministic.
func bestOpportunity(opps []core.Opportunity) core.Opportunity {
	best := opps[0]
	for _, o := range opps[1:] {
		if o.Priority > best.Priority {
			best = o
		}
	}
	return best
}
