// Package rules compiles configured triggers into matcher trees and
// evaluates them against events, the way thane-ai-agent's scheduler
// compiled cron expressions into runnable schedules ahead of time
// rather than re-parsing on every tick.
package rules

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/nugget/tripwire/internal/eventbus"
)

// Matcher is a compiled predicate over an event. Matchers are pure and
// safe for concurrent use — the same compiled tree is shared across
// every dispatcher evaluation until a config reload swaps it out.
type Matcher interface {
	Match(e eventbus.Event) bool
}

// KindEquals matches events of an exact kind.
type KindEquals eventbus.Kind

func (m KindEquals) Match(e eventbus.Event) bool {
	return e.Kind == eventbus.Kind(m)
}

// GlobOn matches a glob pattern against a named field. It uses
// doublestar rather than filepath.Match or path.Match because the
// normative semantics require "**" to cross path separators while a
// lone "*" does not — doublestar is the one pattern library in the
// dependency graph that draws that distinction natively instead of
// requiring the caller to special-case "**" segments by hand.
type GlobOn struct {
	Field   string
	Pattern string
}

func (m GlobOn) Match(e eventbus.Event) bool {
	v, ok := e.Field(m.Field)
	if !ok {
		return false
	}
	matched, err := doublestar.Match(m.Pattern, v)
	if err != nil {
		return false
	}
	return matched
}

// SubstringOn matches a case-insensitive substring against a named
// field.
type SubstringOn struct {
	Field  string
	Needle string
}

func (m SubstringOn) Match(e eventbus.Event) bool {
	v, ok := e.Field(m.Field)
	if !ok {
		return false
	}
	return strings.Contains(strings.ToLower(v), strings.ToLower(m.Needle))
}

// FieldEquals matches exact string equality against a named field.
type FieldEquals struct {
	Field string
	Value string
}

func (m FieldEquals) Match(e eventbus.Event) bool {
	v, ok := e.Field(m.Field)
	if !ok {
		return false
	}
	return v == m.Value
}

// And matches when every child matches. An empty And matches
// unconditionally (the identity for conjunction). A bare "{type=...}"
// trigger with no further field matchers lowers to the one-child
// And(KindEquals).
type And []Matcher

func (m And) Match(e eventbus.Event) bool {
	for _, child := range m {
		if !child.Match(e) {
			return false
		}
	}
	return true
}

// Or matches when any child matches. An empty Or matches nothing.
type Or []Matcher

func (m Or) Match(e eventbus.Event) bool {
	for _, child := range m {
		if child.Match(e) {
			return true
		}
	}
	return false
}

// Not inverts a single child matcher.
type Not struct{ Child Matcher }

func (m Not) Match(e eventbus.Event) bool {
	return !m.Child.Match(e)
}
