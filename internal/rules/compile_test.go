package rules

import (
	"testing"

	"github.com/nugget/tripwire/internal/eventbus"
)

func TestCompileTrigger_LowersPatternToPathGlob(t *testing.T) {
	m, err := CompileTrigger(map[string]any{
		"type":    "file_created",
		"pattern": "*.exe",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !m.Match(evt(eventbus.KindFileCreated, map[string]string{"path": "setup.exe"})) {
		t.Fatal("expected compiled trigger to match")
	}
	if m.Match(evt(eventbus.KindFileDeleted, map[string]string{"path": "setup.exe"})) {
		t.Fatal("kind must still gate the match")
	}
}

func TestCompileTrigger_TitleContainsLowersToSubstringOnTitle(t *testing.T) {
	m, err := CompileTrigger(map[string]any{
		"type":           "window_focused",
		"title_contains": "Notepad",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !m.Match(evt(eventbus.KindWindowFocused, map[string]string{"title": "Untitled - Notepad"})) {
		t.Fatal("expected title_contains to lower to a SubstringOn(title) match")
	}
}

func TestCompileTrigger_ProcessNameLowersToFieldEquals(t *testing.T) {
	m, err := CompileTrigger(map[string]any{
		"type":         "process_started",
		"process_name": "explorer.exe",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !m.Match(evt(eventbus.KindProcessStarted, map[string]string{"process_name": "explorer.exe"})) {
		t.Fatal("expected process_name to lower to an exact FieldEquals match")
	}
}

func TestCompileTrigger_MissingTypeIsRejected(t *testing.T) {
	if _, err := CompileTrigger(map[string]any{"pattern": "*.exe"}); err == nil {
		t.Fatal("expected an error for a trigger missing type")
	}
}

func TestCompileTrigger_UnknownTypeIsRejected(t *testing.T) {
	if _, err := CompileTrigger(map[string]any{"type": "not_a_real_kind"}); err == nil {
		t.Fatal("expected an error for an unrecognised trigger type")
	}
}

func TestCompile_RejectsOnlyTheBadRule(t *testing.T) {
	specs := []RuleSpec{
		{Name: "good", Enabled: true, Trigger: map[string]any{"type": "timer_tick"}},
		{Name: "bad", Enabled: true, Trigger: map[string]any{"type": "nonsense"}},
	}
	compiled, errs := Compile(specs)
	if len(compiled) != 1 || compiled[0].Name != "good" {
		t.Fatalf("expected only the good rule to compile, got %+v", compiled)
	}
	if len(errs) != 1 {
		t.Fatalf("expected exactly one error, got %v", errs)
	}
}

func TestCompile_SkipsDisabledRules(t *testing.T) {
	specs := []RuleSpec{
		{Name: "off", Enabled: false, Trigger: map[string]any{"type": "timer_tick"}},
	}
	compiled, errs := Compile(specs)
	if len(compiled) != 0 || len(errs) != 0 {
		t.Fatalf("disabled rules must be silently skipped, got compiled=%v errs=%v", compiled, errs)
	}
}

func TestCompile_DefaultsOnErrorToFail(t *testing.T) {
	specs := []RuleSpec{
		{Name: "r", Enabled: true, Trigger: map[string]any{"type": "timer_tick"}},
	}
	compiled, errs := Compile(specs)
	if len(errs) != 0 {
		t.Fatal(errs)
	}
	if compiled[0].OnError != "fail" {
		t.Fatalf("expected default on_error = fail, got %q", compiled[0].OnError)
	}
}
