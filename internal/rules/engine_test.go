package rules

import (
	"testing"

	"github.com/nugget/tripwire/internal/eventbus"
)

func TestEngine_EvaluateOrdersByRuleThenActionDeclaration(t *testing.T) {
	specs := []RuleSpec{
		{
			Name:    "first",
			Enabled: true,
			Trigger: map[string]any{"type": "file_created"},
			Actions: []ActionSpec{{Kind: "log"}, {Kind: "execute"}},
		},
		{
			Name:    "second",
			Enabled: true,
			Trigger: map[string]any{"type": "file_created"},
			Actions: []ActionSpec{{Kind: "notify"}},
		},
	}
	compiled, errs := Compile(specs)
	if len(errs) != 0 {
		t.Fatal(errs)
	}
	eng := NewEngine(compiled)

	invocations := eng.Evaluate(evt(eventbus.KindFileCreated, map[string]string{"path": "a.txt"}))
	if len(invocations) != 3 {
		t.Fatalf("expected 3 invocations, got %d", len(invocations))
	}
	want := []string{"first:log", "first:execute", "second:notify"}
	for i, inv := range invocations {
		got := inv.Rule + ":" + inv.Action.Kind
		if got != want[i] {
			t.Fatalf("invocation %d = %q, want %q", i, got, want[i])
		}
	}
}

func TestEngine_EvaluateIsDeterministicAcrossRepeatedCalls(t *testing.T) {
	compiled, _ := Compile([]RuleSpec{
		{Name: "r", Enabled: true, Trigger: map[string]any{"type": "timer_tick"}, Actions: []ActionSpec{{Kind: "log"}}},
	})
	eng := NewEngine(compiled)
	ev := evt(eventbus.KindTimerTick, nil)

	first := eng.Evaluate(ev)
	second := eng.Evaluate(ev)
	if len(first) != len(second) || len(first) != 1 {
		t.Fatalf("expected identical results across repeated evaluation, got %v and %v", first, second)
	}
}

func TestEngine_SwapReplacesTableAtomically(t *testing.T) {
	compiledA, _ := Compile([]RuleSpec{
		{Name: "a", Enabled: true, Trigger: map[string]any{"type": "timer_tick"}, Actions: []ActionSpec{{Kind: "log"}}},
	})
	eng := NewEngine(compiledA)
	if eng.Len() != 1 {
		t.Fatalf("expected 1 rule, got %d", eng.Len())
	}

	compiledB, _ := Compile([]RuleSpec{
		{Name: "b1", Enabled: true, Trigger: map[string]any{"type": "timer_tick"}, Actions: []ActionSpec{{Kind: "log"}}},
		{Name: "b2", Enabled: true, Trigger: map[string]any{"type": "timer_tick"}, Actions: []ActionSpec{{Kind: "log"}}},
	})
	eng.Swap(compiledB)
	if eng.Len() != 2 {
		t.Fatalf("expected swapped table to report 2 rules, got %d", eng.Len())
	}

	invocations := eng.Evaluate(evt(eventbus.KindTimerTick, nil))
	if len(invocations) != 2 || invocations[0].Rule != "b1" || invocations[1].Rule != "b2" {
		t.Fatalf("expected post-swap evaluation against the new table, got %+v", invocations)
	}
}

func TestEngine_RuleNamesReflectsLiveTable(t *testing.T) {
	compiled, _ := Compile([]RuleSpec{
		{Name: "a", Enabled: true, Trigger: map[string]any{"type": "timer_tick"}, Actions: []ActionSpec{{Kind: "log"}}},
		{Name: "b", Enabled: true, Trigger: map[string]any{"type": "timer_tick"}, Actions: []ActionSpec{{Kind: "log"}}},
	})
	eng := NewEngine(compiled)
	names := eng.RuleNames()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Fatalf("RuleNames() = %v, want [a b]", names)
	}
}

func TestEngine_NoMatchProducesNoInvocations(t *testing.T) {
	compiled, _ := Compile([]RuleSpec{
		{Name: "r", Enabled: true, Trigger: map[string]any{"type": "file_created"}, Actions: []ActionSpec{{Kind: "log"}}},
	})
	eng := NewEngine(compiled)
	invocations := eng.Evaluate(evt(eventbus.KindTimerTick, nil))
	if len(invocations) != 0 {
		t.Fatalf("expected no invocations for a non-matching kind, got %v", invocations)
	}
}
