// Package supervisor owns source plugin lifecycle and configuration
// reconciliation: it is the one component that may start or stop a
// Source, and the only writer of the rule engine's live table.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nugget/tripwire/internal/audit"
	"github.com/nugget/tripwire/internal/config"
	"github.com/nugget/tripwire/internal/eventbus"
	"github.com/nugget/tripwire/internal/executor"
	"github.com/nugget/tripwire/internal/plugin"
	"github.com/nugget/tripwire/internal/rules"
	"github.com/nugget/tripwire/internal/sandbox"
	"github.com/nugget/tripwire/internal/telemetry"
)

// ShutdownGrace is the default bound spec.md §5 places on waiting for
// in-flight actions during shutdown.
const ShutdownGrace = 10 * time.Second

// Recorder is the telemetry surface the supervisor itself writes to,
// a subset of telemetry.Recorder plus the bits only the supervisor
// produces (plugin lifecycle, config reload outcome, uptime).
type Recorder interface {
	eventbus.DropCounter
	executor.Recorder
	EventObserved(source, kind string)
	EventProcessingDuration(seconds float64)
	RuleEvaluated(rule string)
	RuleMatched(rule string)
	PluginEventsGenerated(plugin string)
	PluginErrors(plugin string)
	ConfigReload(result string)
	SetUptime(seconds float64)
}

// Options configures a Supervisor.
type Options struct {
	Logger    *slog.Logger
	Recorder  Recorder                  // may be nil; defaults to telemetry.New()
	Ledger    *audit.Ledger             // may be nil; audit recording becomes a no-op
	Sandbox   *sandbox.Sandbox          // may be nil; Script actions then fail closed
	Factories map[string]plugin.Factory // defaults to defaultFactories()
}

// sourceHandle pairs a running plugin.Source with the raw params it
// was most recently constructed from, so Reconcile can detect a
// changed-in-place source (same name and type, different params).
type sourceHandle struct {
	source plugin.Source
	typ    string
	params map[string]any
}

// Supervisor wires the bus, rule engine, and executor together,
// drives the dispatch loop, and is the sole owner of source and rule
// table lifecycle.
type Supervisor struct {
	logger    *slog.Logger
	recorder  Recorder
	ledger    *audit.Ledger
	factories map[string]plugin.Factory

	bus        *eventbus.Bus
	engine     *rules.Engine
	exec       *executor.Executor
	started    time.Time
	genMu      sync.Mutex
	sources    map[string]*sourceHandle
	generation int
}

// New constructs a Supervisor around the given bus, engine, and
// executor. Start has not yet been called on anything; call Reconcile
// with the initial configuration to bring sources and rules up.
func New(bus *eventbus.Bus, engine *rules.Engine, exec *executor.Executor, opts Options) *Supervisor {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var rec Recorder
	if opts.Recorder != nil {
		rec = opts.Recorder
	} else {
		rec = telemetry.New()
	}
	factories := opts.Factories
	if factories == nil {
		factories = defaultFactories()
	}
	if opts.Sandbox != nil {
		exec.SetScriptRunner(opts.Sandbox)
	}
	return &Supervisor{
		logger:    logger,
		recorder:  rec,
		ledger:    opts.Ledger,
		factories: factories,
		bus:       bus,
		engine:    engine,
		exec:      exec,
		started:   time.Now(),
		sources:   map[string]*sourceHandle{},
	}
}

// Recorder exposes the telemetry recorder the supervisor was
// constructed with, so callers (e.g. the telemetry HTTP server, the
// MQTT bridge) can share the same collector.
func (s *Supervisor) Recorder() Recorder { return s.recorder }

// Run drives the dispatch loop: it receives events from the bus,
// evaluates them against the live rule table, and hands any resulting
// invocations to the executor. It blocks until the bus is closed or
// ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		ev, ok := s.bus.Recv()
		if !ok {
			return
		}

		start := time.Now()
		s.recorder.EventObserved(ev.Source, string(ev.Kind))

		for _, name := range s.engine.RuleNames() {
			s.recorder.RuleEvaluated(name)
		}

		invocations := s.engine.Evaluate(ev)
		matchedRules := map[string]bool{}
		for _, inv := range invocations {
			if !matchedRules[inv.Rule] {
				matchedRules[inv.Rule] = true
				s.recorder.RuleMatched(inv.Rule)
			}
		}

		if len(invocations) > 0 {
			s.exec.Dispatch(ctx, ev, invocations)
		}

		s.recorder.EventProcessingDuration(time.Since(start).Seconds())
	}
}

// RunUptimeGauge updates the engine_uptime_seconds gauge once a
// second until stop closes. Cheap enough to not warrant a configurable
// interval.
func (s *Supervisor) RunUptimeGauge(stop <-chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.recorder.SetUptime(time.Since(s.started).Seconds())
		case <-stop:
			return
		}
	}
}

// Shutdown stops the bus, signals every running source to stop, waits
// up to grace for them and any in-flight actions to finish, then
// returns. Sources that do not honour Stop within grace are abandoned
// (their Stop call is not cancelled further; this mirrors the
// executor's own bounded-but-abrupt Close).
func (s *Supervisor) Shutdown(grace time.Duration) {
	if grace <= 0 {
		grace = ShutdownGrace
	}
	s.bus.Close()

	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	s.genMu.Lock()
	handles := make([]*sourceHandle, 0, len(s.sources))
	for _, h := range s.sources {
		handles = append(handles, h)
	}
	s.genMu.Unlock()

	var wg sync.WaitGroup
	for _, h := range handles {
		wg.Add(1)
		go func(h *sourceHandle) {
			defer wg.Done()
			if err := h.source.Stop(ctx); err != nil {
				s.logger.Warn("source stop failed during shutdown", "source", h.source.Name(), "error", err)
			}
		}(h)
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("shutdown grace period elapsed with sources still stopping")
	}

	s.exec.Close()
}

// emitter adapts the bus so sources never see more than Emit.
type emitter struct{ bus *eventbus.Bus }

func (e emitter) Emit(ev eventbus.Event) eventbus.SendOutcome { return e.bus.Emit(ev) }

func (s *Supervisor) startSource(ctx context.Context, name, typ string, params map[string]any) error {
	factory, ok := s.factories[typ]
	if !ok {
		return fmt.Errorf("supervisor: no factory registered for source type %q", typ)
	}
	src, err := factory(name, params)
	if err != nil {
		return fmt.Errorf("supervisor: construct source %q: %w", name, err)
	}
	if err := src.Start(ctx, emitter{bus: s.bus}); err != nil {
		s.recorder.PluginErrors(name)
		return fmt.Errorf("supervisor: start source %q: %w", name, err)
	}

	s.genMu.Lock()
	s.sources[name] = &sourceHandle{source: src, typ: typ, params: params}
	s.genMu.Unlock()
	return nil
}

func (s *Supervisor) stopSource(ctx context.Context, name string) error {
	s.genMu.Lock()
	h, ok := s.sources[name]
	if ok {
		delete(s.sources, name)
	}
	s.genMu.Unlock()
	if !ok {
		return nil
	}
	return h.source.Stop(ctx)
}
