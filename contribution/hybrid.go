package contribution

import (
	"context"
	"sync"

	"github.com/hupe1980/conclave/core"
	"github.com/hupe1980/conclave/oracle"
)

// Hybrid runs the choreography and orchestration strategies concurrently and
// merges their outputs per agent. An agent may end up with contributions
// from both; each carries the mode tag of the strategy that produced it.
type Hybrid struct {
	choreography  Strategy
	orchestration Strategy
}

// NewHybrid creates the combined strategy from fresh choreography and
// orchestration instances sharing the same options.
func NewHybrid(o oracle.Oracle, optFns ...func(o *Options)) *Hybrid {
	return &Hybrid{
		choreography:  NewChoreography(o, optFns...),
		orchestration: NewOrchestration(o, optFns...),
	}
}

// Name implements Strategy.
func (s *Hybrid) Name() string { return string(core.ModeHybrid) }

// Collect implements Strategy.
func (s *Hybrid) Collect(ctx context.Context, sess *core.Session, opportunities map[string][]core.Opportunity) map[string][]core.Contribution {
	var wg sync.WaitGroup
	var fromChoreography, fromOrchestration map[string][]core.Contribution

	wg.Add(2)
	go func() {
		defer wg.Done()
		fromChoreography = s.choreography.Collect(ctx, sess, opportunities)
	}()
	go func() {
		defer wg.Done()
		fromOrchestration = s.orchestration.Collect(ctx, sess, opportunities)
	}()
	wg.Wait()

	merged := make(map[string][]core.Contribution)
	for id, list := range fromChoreography {
		merged[id] = append(merged[id], list...)
	}
	for id, list := range fromOrchestration {
		merged[id] = append(merged[id], list...)
	}
	return merged
}
