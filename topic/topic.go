// Package topic implements the pikav topic grammar: validated topic names
// and filters, and MQTT-style wildcard matching between them.
package topic

import (
	"errors"
	"strings"
)

// ErrInvalidName is returned by NewName when the input violates the topic
// name grammar.
var ErrInvalidName = errors.New("pikav/topic: invalid topic name")

// ErrInvalidFilter is returned by NewFilter when the input violates the
// topic filter grammar.
var ErrInvalidFilter = errors.New("pikav/topic: invalid topic filter")

// maxBytes is the maximum byte length of a topic name or filter.
const maxBytes = 65535

// Name is a validated, wildcard-free topic name.
type Name struct {
	s string
}

// NewName validates s and returns a Name. It fails when s is empty, exceeds
// 65,535 bytes, or contains '+' or '#'.
func NewName(s string) (Name, error) {
	if len(s) == 0 || len(s) > maxBytes {
		return Name{}, ErrInvalidName
	}
	if strings.ContainsAny(s, "+#") {
		return Name{}, ErrInvalidName
	}
	return Name{s: s}, nil
}

// String returns the raw topic name.
func (n Name) String() string { return n.s }

// IsServerInternal reports whether the name is '$'-prefixed, e.g. "$SYS/session".
func (n Name) IsServerInternal() bool { return strings.HasPrefix(n.s, "$") }

func (n Name) levels() []string { return strings.Split(n.s, "/") }

type levelKind int

const (
	levelLiteral levelKind = iota
	levelSingle            // '+'
	levelMulti             // '#' or '*'
)

type level struct {
	kind  levelKind
	value string // only meaningful for levelLiteral
}

// Filter is a validated topic filter, compiled once for allocation-free
// repeated matching.
type Filter struct {
	s      string
	levels []level
}

// NewFilter validates s and returns a compiled Filter. It fails when s is
// empty, exceeds 65,535 bytes, any non-final level is a multi-level
// wildcard, or any level mixes a wildcard character with literal
// characters (e.g. "foo+" is invalid; "+" and "foo" are valid).
func NewFilter(s string) (Filter, error) {
	if len(s) == 0 || len(s) > maxBytes {
		return Filter{}, ErrInvalidFilter
	}

	parts := strings.Split(s, "/")
	levels := make([]level, 0, len(parts))
	for i, p := range parts {
		switch {
		case p == "+":
			levels = append(levels, level{kind: levelSingle})
		case p == "#" || p == "*":
			if i != len(parts)-1 {
				return Filter{}, ErrInvalidFilter
			}
			levels = append(levels, level{kind: levelMulti})
		default:
			if strings.ContainsAny(p, "+#*") {
				return Filter{}, ErrInvalidFilter
			}
			levels = append(levels, level{kind: levelLiteral, value: p})
		}
	}

	return Filter{s: s, levels: levels}, nil
}

// String returns the raw filter string.
func (f Filter) String() string { return f.s }

// Equal reports whether two filters were constructed from the same string.
func (f Filter) Equal(other Filter) bool { return f.s == other.s }

// Matches implements the match relation described in spec §4.1, using the
// one-or-more interpretation of trailing multi-level wildcards (see
// DESIGN.md for why this was chosen over the zero-or-more alternative).
func (f Filter) Matches(name Name) bool {
	if name.IsServerInternal() {
		if len(f.levels) == 0 {
			return false
		}
		first := f.levels[0]
		if first.kind != levelLiteral || !strings.HasPrefix(first.value, "$") {
			return false
		}
	}

	// The name is walked level by level with strings.Cut instead of being
	// split, so matching does not allocate.
	rest, more := name.s, true
	for i := 0; i < len(f.levels); i++ {
		lvl := f.levels[i]

		if lvl.kind == levelMulti {
			// One-or-more: at least one level must remain.
			return more
		}

		if !more {
			return false
		}

		var seg string
		seg, rest, more = strings.Cut(rest, "/")

		switch lvl.kind {
		case levelSingle:
			if seg == "" {
				return false
			}
		case levelLiteral:
			if seg != lvl.value {
				return false
			}
		}
	}

	return !more
}
