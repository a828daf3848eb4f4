package metrics

import (
	"context"
	"time"

	"github.com/hupe1980/conclave/engine"
	"github.com/hupe1980/conclave/logging"
	"github.com/hupe1980/conclave/oracle"
)

// oracleCallLogger is the optional per-call extension of logging.Logger,
// implemented by logging.ConclaveLogger.
type oracleCallLogger interface {
	LogOracleCall(role string, dur time.Duration, success bool, err error)
}

// InstrumentedOracleOptions configures an InstrumentedOracle.
type InstrumentedOracleOptions struct {
	// Logger receives a latency/outcome record per call when it implements
	// LogOracleCall. Optional.
	Logger logging.Logger
}

// InstrumentedOracle wraps an Oracle and records call counts and latency,
// optionally mirroring each call into the logger.
type InstrumentedOracle struct {
	next    oracle.Oracle
	callLog oracleCallLogger
}

// NewInstrumentedOracle wraps the given oracle.
func NewInstrumentedOracle(next oracle.Oracle, optFns ...func(o *InstrumentedOracleOptions)) *InstrumentedOracle {
	opts := InstrumentedOracleOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	io := &InstrumentedOracle{next: next}
	if cl, ok := opts.Logger.(oracleCallLogger); ok {
		io.callLog = cl
	}
	return io
}

// Generate implements oracle.Oracle.
func (o *InstrumentedOracle) Generate(ctx context.Context, role, prompt string) (string, error) {
	start := time.Now()
	text, err := o.next.Generate(ctx, role, prompt)
	dur := time.Since(start)
	OracleCallDuration.Observe(dur.Seconds())
	if o.callLog != nil {
		o.callLog.LogOracleCall(role, dur, err == nil, err)
	}
	if err != nil {
		OracleCalls.WithLabelValues("error").Inc()
		return "", err
	}
	OracleCalls.WithLabelValues("success").Inc()
	return text, nil
}

// Callbacks returns a CallbackManager wired to the phase and emergency
// counters. Pass it to the engine's Options to instrument the pipeline.
func Callbacks() *engine.CallbackManager {
	cm := engine.NewCallbackManager()
	cm.Register(engine.NewFunctionCallback(engine.CallbackPhaseEntered, func(_ context.Context, c *engine.CallbackContext) {
		PhasesEntered.WithLabelValues(string(c.Phase)).Inc()
	}))
	cm.Register(engine.NewFunctionCallback(engine.CallbackEmergency, func(context.Context, *engine.CallbackContext) {
		EmergencyFallbacks.Inc()
	}))
	return cm
}
