package engine

import (
	"context"

	"github.com/hupe1980/conclave/core"
)

// CallbackType identifies the pipeline lifecycle points where callbacks run.
// Callbacks are observers for instrumentation (metrics, tracing, audit);
// they cannot influence the pipeline's control flow.
type CallbackType string

const (
	// CallbackPhaseEntered fires when the session cursor advances to a new
	// phase, before any of the phase's oracle calls go out.
	CallbackPhaseEntered CallbackType = "phase_entered"

	// CallbackEmergency fires when the engine abandons the pipeline and
	// substitutes the emergency fallback output.
	CallbackEmergency CallbackType = "emergency"
)

// CallbackContext carries the session position at the moment a callback
// fires.
type CallbackContext struct {
	// SessionID identifies the coordination session.
	SessionID string

	// Phase is the session's pipeline position.
	Phase core.Phase

	// Reason is set for CallbackEmergency and describes why the fallback
	// path was taken.
	Reason string

	// Metadata provides extensible storage for custom callback data.
	Metadata map[string]any
}

// Callback is one lifecycle hook. Implementations should be fast; callbacks
// run synchronously between phases.
type Callback interface {
	// Type returns the lifecycle point this callback handles.
	Type() CallbackType

	// Execute performs the callback logic.
	Execute(ctx context.Context, callbackCtx *CallbackContext)
}

// FunctionCallback wraps a plain function as a Callback.
type FunctionCallback struct {
	callbackType CallbackType
	fn           func(ctx context.Context, callbackCtx *CallbackContext)
}

// NewFunctionCallback creates a function-based callback for the given
// lifecycle point.
func NewFunctionCallback(callbackType CallbackType, fn func(ctx context.Context, callbackCtx *CallbackContext)) *FunctionCallback {
	return &FunctionCallback{callbackType: callbackType, fn: fn}
}

// Type implements Callback.
func (c *FunctionCallback) Type() CallbackType { return c.callbackType }

// Execute implements Callback.
func (c *FunctionCallback) Execute(ctx context.Context, callbackCtx *CallbackContext) {
	c.fn(ctx, callbackCtx)
}

// CallbackManager routes lifecycle events to the registered callbacks.
// Registration is not thread-safe; register everything before the first
// Coordinate call. Execution is safe for concurrent use afterwards.
type CallbackManager struct {
	callbacks map[CallbackType][]Callback
}

// NewCallbackManager creates an empty manager.
func NewCallbackManager() *CallbackManager {
	return &CallbackManager{callbacks: make(map[CallbackType][]Callback)}
}

// Register adds a callback. Multiple callbacks per type run in registration
// order.
func (cm *CallbackManager) Register(callback Callback) {
	t := callback.Type()
	cm.callbacks[t] = append(cm.callbacks[t], callback)
}

// Execute runs all callbacks registered for the given type.
func (cm *CallbackManager) Execute(ctx context.Context, callbackType CallbackType, callbackCtx *CallbackContext) {
	for _, cb := range cm.callbacks[callbackType] {
		cb.Execute(ctx, callbackCtx)
	}
}
