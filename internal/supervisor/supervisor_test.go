package supervisor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nugget/tripwire/internal/eventbus"
	"github.com/nugget/tripwire/internal/executor"
	"github.com/nugget/tripwire/internal/plugin"
	"github.com/nugget/tripwire/internal/rules"
)

// fakeRecorder satisfies supervisor.Recorder without needing a real
// telemetry.Collector in every test.
type fakeRecorder struct {
	mu              sync.Mutex
	observed        []string
	ruleEvaluated   []string
	ruleMatched     []string
	configReloads   []string
	actionsExecuted int
}

func (f *fakeRecorder) IncDropped(string) {}
func (f *fakeRecorder) ActionExecuted(kind, status string) {
	f.mu.Lock()
	f.actionsExecuted++
	f.mu.Unlock()
}
func (f *fakeRecorder) ActionDuration(string, float64) {}
func (f *fakeRecorder) ActionsDropped()                {}
func (f *fakeRecorder) EventObserved(source, kind string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.observed = append(f.observed, source+":"+kind)
}
func (f *fakeRecorder) EventProcessingDuration(float64) {}
func (f *fakeRecorder) RuleEvaluated(rule string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ruleEvaluated = append(f.ruleEvaluated, rule)
}
func (f *fakeRecorder) RuleMatched(rule string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ruleMatched = append(f.ruleMatched, rule)
}
func (f *fakeRecorder) PluginEventsGenerated(string) {}
func (f *fakeRecorder) PluginErrors(string)          {}
func (f *fakeRecorder) ConfigReload(result string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configReloads = append(f.configReloads, result)
}
func (f *fakeRecorder) SetUptime(float64) {}

func (f *fakeRecorder) snapshot() (observed, evaluated, matched []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.observed...), append([]string(nil), f.ruleEvaluated...), append([]string(nil), f.ruleMatched...)
}

// fakeSource is a plugin.Source a test can start, stop, and trigger
// emissions through directly, standing in for a real OS-backed source.
type fakeSource struct {
	name     string
	mu       sync.Mutex
	running  bool
	emitter  plugin.Emitter
	stopErr  error
	startErr error
}

func (s *fakeSource) Name() string { return s.name }
func (s *fakeSource) Start(ctx context.Context, e plugin.Emitter) error {
	if s.startErr != nil {
		return s.startErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emitter = e
	s.running = true
	return nil
}
func (s *fakeSource) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	return s.stopErr
}
func (s *fakeSource) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func newTestSupervisor(t *testing.T) (*Supervisor, *fakeRecorder) {
	t.Helper()
	bus := eventbus.New(16, eventbus.DropNew, nil)
	compiled, errs := rules.Compile([]rules.RuleSpec{
		{Name: "r", Enabled: true, Trigger: map[string]any{"type": "timer_tick"}, Actions: []rules.ActionSpec{{Kind: "log"}}},
	})
	if len(errs) != 0 {
		t.Fatalf("compile: %v", errs)
	}
	engine := rules.NewEngine(compiled)
	exec := executor.New(executor.Options{Workers: 2})
	rec := &fakeRecorder{}
	sup := New(bus, engine, exec, Options{Recorder: rec, Factories: map[string]plugin.Factory{}})
	return sup, rec
}

func TestSupervisor_RunDispatchesMatchingEventsAndRecordsTelemetry(t *testing.T) {
	sup, rec := newTestSupervisor(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(done)
	}()

	sup.bus.Emit(eventbus.New(eventbus.KindTimerTick, "timer", nil))

	deadline := time.After(2 * time.Second)
	for {
		_, evaluated, matched := rec.snapshot()
		if len(evaluated) > 0 && len(matched) > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for dispatch loop to process the event")
		case <-time.After(10 * time.Millisecond):
		}
	}

	observed, evaluated, matched := rec.snapshot()
	if len(observed) != 1 || observed[0] != "timer:TimerTick" {
		t.Fatalf("EventObserved = %v", observed)
	}
	if len(evaluated) != 1 || evaluated[0] != "r" {
		t.Fatalf("RuleEvaluated = %v", evaluated)
	}
	if len(matched) != 1 || matched[0] != "r" {
		t.Fatalf("RuleMatched = %v", matched)
	}

	cancel()
	sup.bus.Close()
	<-done
}

func TestSupervisor_ShutdownStopsSourcesWithinGrace(t *testing.T) {
	sup, _ := newTestSupervisor(t)

	src := &fakeSource{name: "s1"}
	if err := sup.startSource(context.Background(), "s1", "fake", nil); err == nil {
		t.Fatal("expected error: no factory registered for type \"fake\"")
	}

	sup.genMu.Lock()
	sup.sources["s1"] = &sourceHandle{source: src, typ: "fake", params: nil}
	sup.genMu.Unlock()
	src.running = true

	sup.Shutdown(time.Second)

	if src.IsRunning() {
		t.Fatal("expected source to be stopped by Shutdown")
	}
}

func TestSupervisor_ShutdownIsBoundedWhenSourceStopHangs(t *testing.T) {
	sup, _ := newTestSupervisor(t)

	blocking := &blockingSource{name: "slow", unblock: make(chan struct{})}
	sup.genMu.Lock()
	sup.sources["slow"] = &sourceHandle{source: blocking, typ: "fake", params: nil}
	sup.genMu.Unlock()

	start := time.Now()
	sup.Shutdown(100 * time.Millisecond)
	elapsed := time.Since(start)

	close(blocking.unblock)

	if elapsed > time.Second {
		t.Fatalf("Shutdown took %s, expected to return near the grace bound", elapsed)
	}
}

type blockingSource struct {
	name    string
	unblock chan struct{}
}

func (s *blockingSource) Name() string                                { return s.name }
func (s *blockingSource) Start(context.Context, plugin.Emitter) error { return nil }
func (s *blockingSource) Stop(ctx context.Context) error {
	select {
	case <-s.unblock:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
func (s *blockingSource) IsRunning() bool { return true }
