package contribution

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/conclave/core"
	"github.com/hupe1980/conclave/logging"
	"github.com/hupe1980/conclave/oracle"
)

// CoordinatorOptions configure the Coordinator.
type CoordinatorOptions struct {
	// CallTimeout bounds each per-agent oracle and detector call.
	CallTimeout time.Duration
	// Logger receives per-agent failure diagnostics.
	Logger logging.Logger
}

// Coordinator drives the contribution phase: it gathers opportunities from
// the external detector, selects the strategy matching the elected
// leadership style and records the collected contributions on the session.
type Coordinator struct {
	oracle   oracle.Oracle
	detector core.OpportunityDetector
	opts     CoordinatorOptions
}

// NewCoordinator creates a contribution coordinator. The detector may be nil
// when running pure orchestration; choreography then sees no opportunities.
func NewCoordinator(o oracle.Oracle, detector core.OpportunityDetector, optFns ...func(o *CoordinatorOptions)) *Coordinator {
	opts := CoordinatorOptions{
		CallTimeout: 45 * time.Second,
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Coordinator{oracle: o, detector: detector, opts: opts}
}

// DetectOpportunities queries the detector once per roster agent,
// concurrently. A detection failure yields no opportunities for that agent
// only.
func (c *Coordinator) DetectOpportunities(ctx context.Context, sess *core.Session) map[string][]core.Opportunity {
	out := make(map[string][]core.Opportunity, len(sess.Roster))
	if c.detector == nil {
		return out
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, agent := range sess.Roster {
		wg.Add(1)
		go func(a core.Agent) {
			defer wg.Done()
			callCtx, cancel := context.WithTimeout(ctx, c.opts.CallTimeout)
			defer cancel()
			opps, err := c.detector.Detect(callCtx, a, sess.ID, sess.Request)
			if err != nil {
				c.opts.Logger.Warn("opportunity detection failed for agent", "agent_id", a.ID, "error", err)
				return
			}
			if len(opps) == 0 {
				return
			}
			mu.Lock()
			out[a.ID] = opps
			mu.Unlock()
		}(agent)
	}
	wg.Wait()
	return out
}

// Collect runs the strategy for the given leadership style and appends every
// collected contribution to the session. The returned map is the phase's
// id-keyed result snapshot.
func (c *Coordinator) Collect(ctx context.Context, sess *core.Session, style core.CoordinationMode, opportunities map[string][]core.Opportunity) map[string][]core.Contribution {
	strategy := ForStyle(style, c.oracle, func(o *Options) {
		o.CallTimeout = c.opts.CallTimeout
		o.Logger = c.opts.Logger
	})

	start := time.Now()
	collected := strategy.Collect(ctx, sess, opportunities)
	for _, list := range collected {
		for _, contrib := range list {
			sess.AddContribution(contrib)
		}
	}
	c.opts.Logger.Info("contribution phase collected",
		"session_id", sess.ID,
		"strategy", strategy.Name(),
		"agents", len(collected),
		"duration", time.Since(start),
	)
	return collected
}
