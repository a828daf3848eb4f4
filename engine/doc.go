// Package engine is the root of the coordination pipeline. One Engine
// instance drives one session at a time through election, contribution
// gathering, consensus, conflict resolution, market allocation and
// validation, under a single global deadline.
//
// The engine is deliberately forgiving inside phases (per-call failures
// degrade to partial results) and strict at phase boundaries: once the
// session deadline has passed, forward progress stops and the caller
// receives the emergency fallback instead of partially-synthesized output.
package engine
