package supervisor

import (
	"context"
	"testing"

	"github.com/nugget/tripwire/internal/config"
	"github.com/nugget/tripwire/internal/eventbus"
	"github.com/nugget/tripwire/internal/executor"
	"github.com/nugget/tripwire/internal/plugin"
	"github.com/nugget/tripwire/internal/rules"
)

func newFakeFactory(sources map[string]*fakeSource) plugin.Factory {
	return func(name string, params map[string]any) (plugin.Source, error) {
		src := &fakeSource{name: name}
		sources[name] = src
		return src, nil
	}
}

func newReconcileTestSupervisor(t *testing.T, sources map[string]*fakeSource) *Supervisor {
	t.Helper()
	bus := eventbus.New(16, eventbus.DropNew, nil)
	engine := rules.NewEngine(nil)
	exec := executor.New(executor.Options{Workers: 1})
	rec := &fakeRecorder{}
	return New(bus, engine, exec, Options{
		Recorder:  rec,
		Factories: map[string]plugin.Factory{"fake": newFakeFactory(sources)},
	})
}

func TestReconcile_StartsEnabledSources(t *testing.T) {
	sources := map[string]*fakeSource{}
	sup := newReconcileTestSupervisor(t, sources)

	cfg := &config.Config{
		Sources: []config.SourceConfig{
			{Name: "a", Type: "fake", Enabled: true, Params: map[string]any{}},
		},
	}

	result, err := sup.Reconcile(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(result.SourcesStarted) != 1 || result.SourcesStarted[0] != "a" {
		t.Fatalf("SourcesStarted = %v", result.SourcesStarted)
	}
	if !sources["a"].IsRunning() {
		t.Fatal("expected source \"a\" to be running after reconcile")
	}
}

func TestReconcile_StopsRemovedSources(t *testing.T) {
	sources := map[string]*fakeSource{}
	sup := newReconcileTestSupervisor(t, sources)

	withSource := &config.Config{
		Sources: []config.SourceConfig{{Name: "a", Type: "fake", Enabled: true, Params: map[string]any{}}},
	}
	if _, err := sup.Reconcile(context.Background(), withSource); err != nil {
		t.Fatalf("first reconcile: %v", err)
	}

	withoutSource := &config.Config{}
	result, err := sup.Reconcile(context.Background(), withoutSource)
	if err != nil {
		t.Fatalf("second reconcile: %v", err)
	}
	if len(result.SourcesStopped) != 1 || result.SourcesStopped[0] != "a" {
		t.Fatalf("SourcesStopped = %v", result.SourcesStopped)
	}
	if sources["a"].IsRunning() {
		t.Fatal("expected source \"a\" to be stopped")
	}
}

func TestReconcile_RestartsSourceWhenParamsChange(t *testing.T) {
	sources := map[string]*fakeSource{}
	sup := newReconcileTestSupervisor(t, sources)

	first := &config.Config{
		Sources: []config.SourceConfig{{Name: "a", Type: "fake", Enabled: true, Params: map[string]any{"x": 1}}},
	}
	if _, err := sup.Reconcile(context.Background(), first); err != nil {
		t.Fatalf("first reconcile: %v", err)
	}
	original := sources["a"]

	second := &config.Config{
		Sources: []config.SourceConfig{{Name: "a", Type: "fake", Enabled: true, Params: map[string]any{"x": 2}}},
	}
	result, err := sup.Reconcile(context.Background(), second)
	if err != nil {
		t.Fatalf("second reconcile: %v", err)
	}
	if len(result.SourcesStopped) != 1 || len(result.SourcesStarted) != 1 {
		t.Fatalf("expected a stop+start pair for the changed source, got stopped=%v started=%v",
			result.SourcesStopped, result.SourcesStarted)
	}
	if original.IsRunning() {
		t.Fatal("expected the original instance to be stopped")
	}
	if !sources["a"].IsRunning() {
		t.Fatal("expected a fresh instance to be running")
	}
}

func TestReconcile_UnchangedSourceIsLeftRunning(t *testing.T) {
	sources := map[string]*fakeSource{}
	sup := newReconcileTestSupervisor(t, sources)

	cfg := &config.Config{
		Sources: []config.SourceConfig{{Name: "a", Type: "fake", Enabled: true, Params: map[string]any{"x": 1}}},
	}
	if _, err := sup.Reconcile(context.Background(), cfg); err != nil {
		t.Fatalf("first reconcile: %v", err)
	}
	original := sources["a"]

	result, err := sup.Reconcile(context.Background(), cfg)
	if err != nil {
		t.Fatalf("second reconcile: %v", err)
	}
	if len(result.SourcesStopped) != 0 || len(result.SourcesStarted) != 0 {
		t.Fatalf("expected no churn for an unchanged source, got stopped=%v started=%v",
			result.SourcesStopped, result.SourcesStarted)
	}
	if sources["a"] != original {
		t.Fatal("expected the same source instance to remain in the registry")
	}
}

func TestReconcile_SwapsRuleTable(t *testing.T) {
	sources := map[string]*fakeSource{}
	sup := newReconcileTestSupervisor(t, sources)

	cfg := &config.Config{
		Rules: []config.RuleConfig{
			{Name: "r1", Enabled: true, Trigger: map[string]any{"type": "timer_tick"}, Action: map[string]any{"type": "log"}, OnError: "fail"},
			{Name: "r2", Enabled: true, Trigger: map[string]any{"type": "timer_tick"}, Action: map[string]any{"type": "log"}, OnError: "fail"},
		},
	}
	result, err := sup.Reconcile(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if result.RuleCount != 2 {
		t.Fatalf("RuleCount = %d, want 2", result.RuleCount)
	}
	if sup.engine.Len() != 2 {
		t.Fatalf("engine.Len() = %d, want 2", sup.engine.Len())
	}
}

func TestReconcile_AppliesDryRunLive(t *testing.T) {
	sources := map[string]*fakeSource{}
	sup := newReconcileTestSupervisor(t, sources)

	cfg := &config.Config{Engine: config.EngineConfig{DryRun: true}}
	if _, err := sup.Reconcile(context.Background(), cfg); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if !sup.exec.DryRun() {
		t.Fatal("expected dry-run to be enabled live by Reconcile")
	}
}

func TestReconcile_ReportsFailedSourceStartsWithoutAbortingTheRest(t *testing.T) {
	sources := map[string]*fakeSource{}
	sup := newReconcileTestSupervisor(t, sources)

	cfg := &config.Config{
		Sources: []config.SourceConfig{
			{Name: "good", Type: "fake", Enabled: true, Params: map[string]any{}},
			{Name: "bad", Type: "missing", Enabled: true, Params: map[string]any{}},
		},
	}
	result, err := sup.Reconcile(context.Background(), cfg)
	if err == nil {
		t.Fatal("expected an error reporting the failed source")
	}
	if _, ok := result.SourcesFailed["bad"]; !ok {
		t.Fatalf("SourcesFailed = %v, want an entry for \"bad\"", result.SourcesFailed)
	}
	if !sources["good"].IsRunning() {
		t.Fatal("expected the source with a valid factory to still start")
	}
}
