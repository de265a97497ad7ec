package rules

import (
	"sync/atomic"

	"github.com/nugget/tripwire/internal/eventbus"
)

// Invocation pairs a matched rule with one of its declared actions, in
// the order the executor must schedule it.
type Invocation struct {
	Rule    string
	Action  ActionSpec
	OnError string
}

// Engine holds the live compiled rule table behind an atomic pointer
// so that a config reload can swap the whole table in one step without
// the dispatcher ever observing a partially-updated set of rules. This
// follows thane-ai-agent's preference for lock-free reads on a hot
// path guarded by a single swap point, rather than a mutex the
// dispatcher would contend on for every event.
type Engine struct {
	table atomic.Pointer[[]CompiledRule]
}

// NewEngine constructs an engine with an initial (possibly empty) rule
// table.
func NewEngine(rules []CompiledRule) *Engine {
	e := &Engine{}
	e.Swap(rules)
	return e
}

// Swap atomically replaces the live rule table. In-flight Evaluate
// calls complete against whichever table they already loaded; only
// events evaluated after the swap observe the new table.
func (e *Engine) Swap(rules []CompiledRule) {
	cp := make([]CompiledRule, len(rules))
	copy(cp, rules)
	e.table.Store(&cp)
}

// Evaluate matches an event against every enabled rule, in
// configuration order, and returns the ordered list of invocations for
// every rule that matched. Evaluation is a pure function of the event
// and the currently-loaded table: repeated evaluation of the same
// event against an unchanged table always yields the same result.
func (e *Engine) Evaluate(ev eventbus.Event) []Invocation {
	table := e.table.Load()
	if table == nil {
		return nil
	}
	var out []Invocation
	for _, rule := range *table {
		if !rule.Matcher.Match(ev) {
			continue
		}
		for _, action := range rule.Actions {
			out = append(out, Invocation{Rule: rule.Name, Action: action, OnError: rule.OnError})
		}
	}
	return out
}

// Len reports the number of compiled rules currently live, mainly for
// tests and the status/snapshot endpoints.
func (e *Engine) Len() int {
	table := e.table.Load()
	if table == nil {
		return 0
	}
	return len(*table)
}

// RuleNames returns the names of every rule currently live, in
// configuration order, so a caller can record a per-rule telemetry
// sample for every rule considered by an evaluation, not only the
// ones that matched.
func (e *Engine) RuleNames() []string {
	table := e.table.Load()
	if table == nil {
		return nil
	}
	out := make([]string, len(*table))
	for i, rule := range *table {
		out[i] = rule.Name
	}
	return out
}
