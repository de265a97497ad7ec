package supervisor

import (
	"context"
	"fmt"
	"reflect"

	"github.com/nugget/tripwire/internal/config"
	"github.com/nugget/tripwire/internal/rules"
)

// ReconcileResult summarizes one reconciliation pass, for logging and
// the audit ledger's config_reloads table.
type ReconcileResult struct {
	Generation     int
	SourcesStarted []string
	SourcesStopped []string
	SourcesFailed  map[string]error
	RuleCount      int
}

// Reconcile applies cfg exactly per spec.md §4.6's six-step sequence:
// validate (the caller's config.Load already did this), diff against
// the currently running sources, stop every removed or changed
// source, atomically swap the rule table, start every added or
// changed source, then apply live-updatable engine settings.
//
// A source is "changed" when its type or its decoded parameters
// differ from what it was last (re)started with; an unchanged source
// is left running untouched, so a config edit that only touches
// unrelated rules never bounces a healthy source.
func (s *Supervisor) Reconcile(ctx context.Context, cfg *config.Config) (ReconcileResult, error) {
	s.genMu.Lock()
	s.generation++
	generation := s.generation
	s.genMu.Unlock()

	result := ReconcileResult{Generation: generation, SourcesFailed: map[string]error{}}

	desired := map[string]config.SourceConfig{}
	for _, sc := range cfg.Sources {
		if sc.Enabled {
			desired[sc.Name] = sc
		}
	}

	s.genMu.Lock()
	toStop := []string{}
	for name, h := range s.sources {
		sc, want := desired[name]
		if !want || sc.Type != h.typ || !reflect.DeepEqual(sc.Params, h.params) {
			toStop = append(toStop, name)
		}
	}
	s.genMu.Unlock()

	for _, name := range toStop {
		if err := s.stopSource(ctx, name); err != nil {
			s.logger.Warn("reconcile: stop source failed", "source", name, "error", err)
		}
		result.SourcesStopped = append(result.SourcesStopped, name)
	}

	compiled, compileErrs := rules.Compile(cfg.CompiledRuleSpecs())
	for _, err := range compileErrs {
		s.logger.Warn("reconcile: rejecting malformed rule", "error", err)
	}
	s.engine.Swap(compiled)
	result.RuleCount = len(compiled)

	s.genMu.Lock()
	running := map[string]bool{}
	for name := range s.sources {
		running[name] = true
	}
	s.genMu.Unlock()

	for name, sc := range desired {
		if running[name] {
			continue
		}
		if err := s.startSource(ctx, name, sc.Type, sc.Params); err != nil {
			result.SourcesFailed[name] = err
			s.logger.Error("reconcile: start source failed", "source", name, "error", err)
			continue
		}
		result.SourcesStarted = append(result.SourcesStarted, name)
	}

	s.exec.SetDryRun(cfg.Engine.DryRun)

	if s.ledger != nil {
		status := "applied"
		if len(result.SourcesFailed) > 0 {
			status = "partial"
		}
		if err := s.ledger.RecordConfigReload(ctx, generation, len(toStop)+len(result.SourcesStarted), result.RuleCount, status); err != nil {
			s.logger.Warn("reconcile: audit record failed", "error", err)
		}
	}

	reloadResult := "applied"
	if len(result.SourcesFailed) > 0 {
		reloadResult = "partial"
	}
	s.recorder.ConfigReload(reloadResult)

	if len(result.SourcesFailed) > 0 {
		return result, fmt.Errorf("reconcile: %d source(s) failed to start", len(result.SourcesFailed))
	}
	return result, nil
}
