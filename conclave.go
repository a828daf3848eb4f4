// Package conclave provides a high-level façade over the coordination
// engine and its collaborators (oracle, event log, opportunity detector &
// consensus service) enabling rapid construction of multi-agent negotiation
// systems. Most applications interact with this package by:
//  1. Creating a Conclave via New() around an oracle (optionally overriding
//     default in-memory collaborators)
//  2. Calling Coordinate with a request and a roster of specialist agents
//
// The façade delegates the pipeline to engine.Engine while keeping setup
// ergonomics concise. All defaults are safe for local development and
// testing; production deployments typically supply a real event log,
// consensus service and a structured logger.
package conclave

import (
	"context"

	"github.com/hupe1980/conclave/consensus"
	"github.com/hupe1980/conclave/core"
	"github.com/hupe1980/conclave/engine"
	"github.com/hupe1980/conclave/eventlog"
	"github.com/hupe1980/conclave/logging"
	"github.com/hupe1980/conclave/opportunity"
	"github.com/hupe1980/conclave/oracle"
)

// Options configures the Conclave instance.
type Options struct {
	// EngineConfig holds the session tuning parameters (timeouts,
	// allocation floor, consensus thresholds).
	EngineConfig engine.Config

	// Detector supplies contribution opportunities per agent. Defaults to
	// the static expertise-tag detector.
	Detector core.OpportunityDetector

	// EventLog receives best-effort coordination events. Defaults to an
	// in-memory log.
	EventLog core.EventLog

	// Consensus drives the per-topic consensus rounds. Defaults to the
	// local oracle-driven implementation.
	Consensus core.ConsensusService

	// Logger (defaults to NoOp logger if nil).
	Logger logging.Logger

	// Callbacks hook into phase boundaries for instrumentation. Optional.
	Callbacks *engine.CallbackManager
}

// Conclave is the high-level façade aggregating the engine and its
// collaborators.
type Conclave struct {
	opts   Options
	engine *engine.Engine
}

// New creates a Conclave around the given oracle with optional overrides.
// Any unset collaborator is initialized with a local in-memory
// implementation, so a plain New(oracle) is immediately usable.
func New(o oracle.Oracle, optFns ...func(o *Options)) *Conclave {
	opts := Options{
		EngineConfig: engine.DefaultConfig,
		Detector:     opportunity.NewStaticDetector(),
		EventLog:     eventlog.NewInMemoryLog(),
		Logger:       logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Consensus == nil {
		opts.Consensus = consensus.NewInMemoryService(o, func(so *consensus.ServiceOptions) {
			so.CallTimeout = opts.EngineConfig.OracleCallTimeout
			so.Logger = opts.Logger
		})
	}

	e := engine.New(o, func(eo *engine.Options) {
		eo.Config = opts.EngineConfig
		eo.Detector = opts.Detector
		eo.EventLog = opts.EventLog
		eo.Consensus = opts.Consensus
		eo.Logger = opts.Logger
		eo.Callbacks = opts.Callbacks
	})

	return &Conclave{opts: opts, engine: e}
}

// Coordinate runs one full coordination session for the request and roster
// and returns the validated output.
func (c *Conclave) Coordinate(ctx context.Context, request string, roster []core.Agent) (*core.Output, error) {
	return c.engine.Coordinate(ctx, request, roster)
}
