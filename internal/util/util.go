// Package util holds small internal helpers shared across packages. It lives
// in internal to avoid committing to public API stability prematurely.
package util

import (
	"strings"

	"github.com/google/uuid"
)

// NewID generates a new unique identifier for sessions, consensus rounds and
// tasks.
func NewID() string { return uuid.NewString() }

// Truncate shortens s to at most max runes, appending an ellipsis when text
// was cut. Used to bound prompt excerpts fed back into the oracle.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(strings.TrimSpace(s))
	if len(runes) <= max {
		return string(runes)
	}
	return string(runes[:max]) + "…"
}
