// Package parse extracts typed fields from free-text oracle responses.
//
// Every structured decision in the engine is obtained by prompting the
// oracle for line-oriented "KEY: value" markers and running the response
// through Fields. Parsing is tolerant by contract: a missing or malformed
// field never produces an error, it falls back to the caller-supplied
// default. This single package isolates the rest of the engine from oracle
// non-determinism and prompt-format drift.
//
// Matching is forgiving about real model output: keys are case-insensitive,
// leading list bullets and markdown emphasis around markers are stripped,
// and numeric extractors accept values like "4/5" or "4 out of 5".
package parse

import (
	"regexp"
	"strconv"
	"strings"
)

type kind int

const (
	kindString kind = iota
	kindInt
	kindFloat
	kindEnum
	kindBlock
)

// Spec declares one expected field: its marker key, its type and the default
// used when the field is absent or malformed. Build specs with the String,
// Int, Float, Enum and Block constructors.
type Spec struct {
	key      string
	kind     kind
	defStr   string
	defInt   int
	defFloat float64
	defList  []string
	allowed  []string
	minF     float64
	maxF     float64
}

// String declares a free-text field with a default.
func String(key, def string) Spec {
	return Spec{key: normalizeKey(key), kind: kindString, defStr: def}
}

// Int declares an integer field clamped into [min, max], with a default used
// when no number can be extracted.
func Int(key string, def, min, max int) Spec {
	return Spec{key: normalizeKey(key), kind: kindInt, defInt: def, minF: float64(min), maxF: float64(max)}
}

// Float declares a float field clamped into [min, max], with a default used
// when no number can be extracted.
func Float(key string, def, min, max float64) Spec {
	return Spec{key: normalizeKey(key), kind: kindFloat, defFloat: def, minF: min, maxF: max}
}

// Enum declares a closed-choice field. The value's first word is matched
// case-insensitively against the allowed set; anything else yields def.
func Enum(key, def string, allowed ...string) Spec {
	return Spec{key: normalizeKey(key), kind: kindEnum, defStr: def, allowed: allowed}
}

// Block declares a multi-line field: the lines following the marker, up to
// the next field marker, become the value. Bullets and numbering prefixes
// are stripped; blank lines are skipped.
func Block(key string, def ...string) Spec {
	return Spec{key: normalizeKey(key), kind: kindBlock, defList: def}
}

// Result holds the extracted field values. Getters never fail; unknown keys
// return zero values, declared-but-absent keys return their defaults.
type Result struct {
	strings map[string]string
	ints    map[string]int
	floats  map[string]float64
	blocks  map[string][]string
	found   map[string]bool
}

// String returns the value extracted for a String or Enum spec.
func (r Result) String(key string) string { return r.strings[normalizeKey(key)] }

// Int returns the value extracted for an Int spec.
func (r Result) Int(key string) int { return r.ints[normalizeKey(key)] }

// Float returns the value extracted for a Float spec.
func (r Result) Float(key string) float64 { return r.floats[normalizeKey(key)] }

// Block returns the lines extracted for a Block spec.
func (r Result) Block(key string) []string { return r.blocks[normalizeKey(key)] }

// Found reports whether the field marker was present and usable, i.e. the
// returned value did not come from the default.
func (r Result) Found(key string) bool { return r.found[normalizeKey(key)] }

var (
	bulletPrefix = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s*`)
	numberExpr   = regexp.MustCompile(`-?\d+(?:\.\d+)?`)
	markerExpr   = regexp.MustCompile(`^[A-Z][A-Z0-9 _]*:`)
)

// FallbackHook, when non-nil, is invoked with the normalized field key each
// time a declared field resolves to its default. It exists for observability
// taps (the metrics package installs a counter here); set it once at startup,
// the hook must be safe for concurrent use.
var FallbackHook func(key string)

// Fields parses the oracle response against the declared specs. It never
// returns an error: every spec resolves to either an extracted value or its
// default.
func Fields(text string, specs ...Spec) Result {
	r := Result{
		strings: make(map[string]string),
		ints:    make(map[string]int),
		floats:  make(map[string]float64),
		blocks:  make(map[string][]string),
		found:   make(map[string]bool),
	}

	byKey := make(map[string]Spec, len(specs))
	for _, sp := range specs {
		byKey[sp.key] = sp
		applyDefault(&r, sp)
	}

	lines := strings.Split(text, "\n")
	for i := 0; i < len(lines); i++ {
		key, value, ok := splitMarker(lines[i])
		if !ok {
			continue
		}
		sp, declared := byKey[key]
		if !declared || r.found[key] {
			continue
		}
		if sp.kind == kindBlock {
			block := collectBlock(value, lines[i+1:], byKey)
			if len(block) > 0 {
				r.blocks[key] = block
				r.found[key] = true
			}
			continue
		}
		applyValue(&r, sp, value)
	}

	if FallbackHook != nil {
		for _, sp := range specs {
			if !r.found[sp.key] {
				FallbackHook(sp.key)
			}
		}
	}
	return r
}

func applyDefault(r *Result, sp Spec) {
	switch sp.kind {
	case kindString, kindEnum:
		r.strings[sp.key] = sp.defStr
	case kindInt:
		r.ints[sp.key] = sp.defInt
	case kindFloat:
		r.floats[sp.key] = sp.defFloat
	case kindBlock:
		r.blocks[sp.key] = sp.defList
	}
}

func applyValue(r *Result, sp Spec, value string) {
	switch sp.kind {
	case kindString:
		if value != "" {
			r.strings[sp.key] = value
			r.found[sp.key] = true
		}
	case kindEnum:
		first := strings.ToLower(firstWord(value))
		for _, a := range sp.allowed {
			if first == strings.ToLower(a) {
				r.strings[sp.key] = a
				r.found[sp.key] = true
				return
			}
		}
	case kindInt:
		if m := numberExpr.FindString(value); m != "" {
			if f, err := strconv.ParseFloat(m, 64); err == nil {
				r.ints[sp.key] = int(clamp(f, sp.minF, sp.maxF))
				r.found[sp.key] = true
			}
		}
	case kindFloat:
		if m := numberExpr.FindString(value); m != "" {
			if f, err := strconv.ParseFloat(m, 64); err == nil {
				r.floats[sp.key] = clamp(f, sp.minF, sp.maxF)
				r.found[sp.key] = true
			}
		}
	}
}

// collectBlock gathers the inline remainder plus subsequent lines until the
// next recognizable field marker.
func collectBlock(inline string, rest []string, byKey map[string]Spec) []string {
	var out []string
	if inline != "" {
		out = append(out, inline)
	}
	for _, raw := range rest {
		if key, _, ok := splitMarker(raw); ok {
			if _, declared := byKey[key]; declared || markerExpr.MatchString(strings.TrimSpace(raw)) {
				break
			}
		}
		line := strings.TrimSpace(bulletPrefix.ReplaceAllString(raw, ""))
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	return out
}

// splitMarker extracts a normalized "KEY" and trimmed value from one line,
// tolerating bullets and markdown emphasis around the marker.
func splitMarker(raw string) (key, value string, ok bool) {
	line := bulletPrefix.ReplaceAllString(raw, "")
	line = strings.TrimSpace(line)
	idx := strings.Index(line, ":")
	if idx <= 0 {
		return "", "", false
	}
	key = normalizeKey(strings.Trim(line[:idx], "*_ \t"))
	if key == "" {
		return "", "", false
	}
	value = strings.TrimSpace(strings.Trim(strings.TrimSpace(line[idx+1:]), "*_"))
	return key, value, true
}

func normalizeKey(key string) string {
	key = strings.ToUpper(strings.TrimSpace(key))
	return strings.Join(strings.Fields(key), " ")
}

func firstWord(s string) string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == ',' || r == '.' || r == ';' || r == '-' || r == '/'
	})
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
