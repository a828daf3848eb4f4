// Package oracle abstracts the non-deterministic reasoning oracle every
// coordination phase consults. The engine treats it as a one-shot text
// generator: it may be slow, fail, or return output that does not match the
// requested format, so tolerant parsing and per-call timeouts around it are
// the callers' responsibility.
package oracle

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Oracle generates a free-text response for a prompt issued on behalf of a
// role (the persona the call is attributed to, e.g. an agent's display
// role). Implementations must honor ctx cancellation.
type Oracle interface {
	Generate(ctx context.Context, role, prompt string) (string, error)
}

// Call records one Generate invocation observed by the ScriptedOracle.
type Call struct {
	Role   string
	Prompt string
}

type rule struct {
	contains string
	response string
	err      error
}

// ScriptedOracle is an in-memory Oracle for tests and examples. Responses
// are selected by substring match against the prompt, first scripted rule
// wins; unmatched prompts return the fallback response. All calls are
// recorded for later inspection.
type ScriptedOracle struct {
	mu       sync.Mutex
	rules    []rule
	fallback string
	calls    []Call
}

// NewScriptedOracle constructs an empty scripted oracle whose fallback
// response is a generic acknowledgement.
func NewScriptedOracle() *ScriptedOracle {
	return &ScriptedOracle{fallback: "ACKNOWLEDGED: no scripted response"}
}

// Script registers a canned response for prompts containing the substring.
func (o *ScriptedOracle) Script(contains, response string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rules = append(o.rules, rule{contains: contains, response: response})
}

// Fail registers an error for prompts containing the substring, simulating
// an oracle call failure.
func (o *ScriptedOracle) Fail(contains string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rules = append(o.rules, rule{contains: contains, err: err})
}

// SetFallback overrides the response returned for unmatched prompts.
func (o *ScriptedOracle) SetFallback(response string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fallback = response
}

// Generate implements Oracle.
func (o *ScriptedOracle) Generate(ctx context.Context, role, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, Call{Role: role, Prompt: prompt})
	for _, r := range o.rules {
		if strings.Contains(prompt, r.contains) {
			if r.err != nil {
				return "", fmt.Errorf("scripted oracle failure: %w", r.err)
			}
			return r.response, nil
		}
	}
	return o.fallback, nil
}

// Calls returns a copy of all recorded invocations in arrival order.
func (o *ScriptedOracle) Calls() []Call {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Call, len(o.calls))
	copy(out, o.calls)
	return out
}

// CallsMatching counts recorded invocations whose prompt contains substr.
func (o *ScriptedOracle) CallsMatching(substr string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, c := range o.calls {
		if strings.Contains(c.Prompt, substr) {
			n++
		}
	}
	return n
}
