// Package contribution collects per-agent expertise contributions under a
// runtime-chosen coordination topology. Three interchangeable strategies
// exist: Choreography (decentralized, opportunity-driven), Orchestration
// (leader decomposes and assigns work) and Hybrid (both, merged per agent).
//
// Failure isolation is the package's core contract: every per-agent oracle
// call is wrapped independently, so one failing or unresponsive agent yields
// an empty contribution list for that agent only and never aborts the phase
// for the others.
package contribution

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/conclave/core"
	"github.com/hupe1980/conclave/logging"
	"github.com/hupe1980/conclave/oracle"
	"github.com/hupe1980/conclave/parse"
)

// Strategy collects contributions for all eligible agents. Implementations
// return an id-keyed map; completion order within the fan-out is unspecified
// and must not affect the result.
type Strategy interface {
	Name() string
	Collect(ctx context.Context, sess *core.Session, opportunities map[string][]core.Opportunity) map[string][]core.Contribution
}

// Options configure a contribution strategy.
type Options struct {
	// CallTimeout bounds each per-agent oracle call. A timed-out call is
	// treated identically to a failed one.
	CallTimeout time.Duration
	// Logger receives per-agent failure diagnostics.
	Logger logging.Logger
}

func defaultOptions() Options {
	return Options{
		CallTimeout: 45 * time.Second,
		Logger:      logging.NoOpLogger{},
	}
}

// ForStyle selects the strategy matching an elected leadership style. The
// consensus style maps to Hybrid: consensus building downstream works best
// when fed contributions gathered under both topologies.
func ForStyle(style core.CoordinationMode, o oracle.Oracle, optFns ...func(o *Options)) Strategy {
	switch style {
	case core.ModeOrchestration:
		return NewOrchestration(o, optFns...)
	case core.ModeChoreography:
		return NewChoreography(o, optFns...)
	default:
		return NewHybrid(o, optFns...)
	}
}

// askContribution issues one bounded oracle call on behalf of an agent and
// parses the response into a contribution. The tolerant fallback keeps the
// whole response as content when the CONTRIBUTION marker is missing.
func askContribution(ctx context.Context, o oracle.Oracle, agent core.Agent, prompt string, mode core.CoordinationMode, defaultConfidence float64, timeout time.Duration) (core.Contribution, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	text, err := o.Generate(callCtx, agent.Role, prompt)
	if err != nil {
		return core.Contribution{}, err
	}

	r := parse.Fields(text,
		parse.String("CONTRIBUTION", text),
		parse.Float("CONFIDENCE", defaultConfidence, 0, 1),
	)
	return core.Contribution{
		AgentID:    agent.ID,
		Role:       agent.Role,
		Mode:       mode,
		Content:    r.String("CONTRIBUTION"),
		Confidence: r.Float("CONFIDENCE"),
		Created:    time.Now(),
	}, nil
}

// fanOut runs one unit of work per agent concurrently, collecting results
// into an id-keyed map behind a single append guard.
func fanOut(agents []core.Agent, work func(core.Agent) ([]core.Contribution, error), logger logging.Logger, strategy string) map[string][]core.Contribution {
	out := make(map[string][]core.Contribution, len(agents))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, agent := range agents {
		wg.Add(1)
		go func(a core.Agent) {
			defer wg.Done()
			contribs, err := work(a)
			if err != nil {
				logger.Warn("agent contribution failed, continuing without it", "strategy", strategy, "agent_id", a.ID, "error", err)
				return
			}
			mu.Lock()
			out[a.ID] = append(out[a.ID], contribs...)
			mu.Unlock()
		}(agent)
	}
	wg.Wait()
	return out
}
