package executor

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/nugget/tripwire/internal/eventbus"
	"github.com/nugget/tripwire/internal/rules"
)

// Recorder is the telemetry-facing subset the executor reports into.
// A nil Recorder (the zero value behavior of each method) is always
// valid, mirroring the eventbus package's nil-safe DropCounter.
type Recorder interface {
	ActionExecuted(kind, status string)
	ActionDuration(kind string, seconds float64)
	ActionsDropped()
}

// noopRecorder is used when Executor is built without a Recorder.
type noopRecorder struct{}

func (noopRecorder) ActionExecuted(string, string)  {}
func (noopRecorder) ActionDuration(string, float64) {}
func (noopRecorder) ActionsDropped()                {}

// AuditRecorder persists one executed action for later review. A nil
// AuditRecorder (the zero value of Options.Audit) disables it; this
// mirrors Recorder's nil-safety rather than requiring every caller to
// build one.
type AuditRecorder interface {
	RecordAction(ctx context.Context, rule, action, status, detail string) error
}

// Options configures an Executor.
type Options struct {
	// Workers bounds the number of concurrently in-flight action
	// chains. Zero selects runtime.NumCPU() * 4, the normative default.
	Workers int
	// QueueSize bounds the back-pressure queue; invocations submitted
	// when the pool is saturated and the queue is full are rejected.
	QueueSize int
	DryRun    bool
	Logger    *slog.Logger
	Recorder  Recorder
	Audit     AuditRecorder
}

// Executor dispatches the ordered invocations the rule engine produces
// for one event to action-kind handlers, honoring each rule's on_error
// policy and a bounded worker pool exactly as spec.md §4.4 describes:
// a chain of actions belonging to one rule runs sequentially on a
// single worker so that "fail" can abort the remainder of that rule's
// actions, while different rules (and different events) run
// concurrently across the pool.
type Executor struct {
	handlers map[string]Handler
	dryRun   atomic.Bool
	logger   *slog.Logger
	recorder Recorder
	audit    AuditRecorder

	queue chan func()
	wg    sync.WaitGroup

	mu     sync.Mutex
	closed bool
	stopCh chan struct{}
}

// New constructs an Executor with the standard handler registry.
func New(opts Options) *Executor {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU() * 4
	}
	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = workers * 4
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rec := opts.Recorder
	if rec == nil {
		rec = noopRecorder{}
	}

	e := &Executor{
		handlers: defaultHandlers(logger),
		logger:   logger,
		recorder: rec,
		audit:    opts.Audit,
		queue:    make(chan func(), queueSize),
		stopCh:   make(chan struct{}),
	}
	e.dryRun.Store(opts.DryRun)

	for i := 0; i < workers; i++ {
		e.wg.Add(1)
		go e.worker()
	}
	return e
}

func (e *Executor) worker() {
	defer e.wg.Done()
	for {
		select {
		case <-e.stopCh:
			return
		case task, ok := <-e.queue:
			if !ok {
				return
			}
			task()
		}
	}
}

// RegisterHandler overrides or extends the handler registry; mainly
// used to wire in the script sandbox, which internal/executor cannot
// import directly without creating an import cycle with
// internal/sandbox (the sandbox's exec/http capability tables reuse
// these same handlers).
func (e *Executor) RegisterHandler(kind string, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[kind] = h
}

// SetDryRun updates the dry-run flag live, so a config reload can turn
// it on or off without restarting the executor.
func (e *Executor) SetDryRun(dryRun bool) { e.dryRun.Store(dryRun) }

// DryRun reports the current dry-run flag.
func (e *Executor) DryRun() bool { return e.dryRun.Load() }

// Dispatch submits one event's ordered invocations for execution.
// Invocations are grouped by rule (the engine already emits them in
// rule-then-action order) so that each rule's action chain runs on a
// single worker slot and its on_error policy can abort the remainder.
// Dispatch does not block on completion; it returns once every chain
// has been accepted onto the queue or rejected as dropped.
func (e *Executor) Dispatch(ctx context.Context, ev eventbus.Event, invocations []rules.Invocation) {
	for _, chain := range groupByRule(invocations) {
		chain := chain
		task := func() { e.runChain(ctx, ev, chain) }
		select {
		case e.queue <- task:
		default:
			e.recorder.ActionsDropped()
			e.logger.Warn("action chain dropped: executor saturated",
				"rule", chain[0].Rule, "event_kind", ev.Kind)
		}
	}
}

// groupByRule splits an ordered invocation list into consecutive
// per-rule runs, preserving the engine's declaration order both across
// and within groups.
func groupByRule(invocations []rules.Invocation) [][]rules.Invocation {
	var groups [][]rules.Invocation
	for _, inv := range invocations {
		if len(groups) > 0 && groups[len(groups)-1][0].Rule == inv.Rule {
			last := len(groups) - 1
			groups[last] = append(groups[last], inv)
			continue
		}
		groups = append(groups, []rules.Invocation{inv})
	}
	return groups
}

func (e *Executor) runChain(ctx context.Context, ev eventbus.Event, chain []rules.Invocation) {
	for _, inv := range chain {
		result := e.runOne(ctx, ev, inv)
		if result.Success {
			continue
		}
		switch strings.ToLower(inv.OnError) {
		case "continue":
			continue
		case "log":
			e.logger.Warn("action failed, continuing per on_error=log policy",
				"rule", inv.Rule, "action", inv.Action.Kind, "message", result.Message)
			continue
		default: // "fail"
			e.logger.Error("action failed, aborting remaining actions of rule",
				"rule", inv.Rule, "action", inv.Action.Kind, "message", result.Message)
			return
		}
	}
}

func (e *Executor) runOne(ctx context.Context, ev eventbus.Event, inv rules.Invocation) Result {
	kind := inv.Action.Kind

	e.mu.Lock()
	handler, ok := e.handlers[kind]
	e.mu.Unlock()

	if !ok {
		msg := unknownKindError(kind).Error()
		e.recorder.ActionExecuted(kind, "error")
		e.recordAudit(ctx, inv.Rule, kind, "error", msg)
		return Result{Success: false, Message: msg}
	}

	// Dry-run skips everything except Log and Script, both of which
	// remain observable/sandboxed per spec.md §4.4.
	if e.dryRun.Load() && kind != "log" && kind != "script" {
		e.recorder.ActionExecuted(kind, "dry_run")
		e.recordAudit(ctx, inv.Rule, kind, "dry_run", "action skipped")
		return Result{Success: true, Message: "dry-run: action skipped"}
	}

	timeout := timeoutFor(kind, inv.Action.Params)
	runCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result, err := handler.Handle(runCtx, ev, inv.Action.Params)
	if err != nil {
		result.Success = false
		if result.Message == "" {
			result.Message = err.Error()
		}
	}
	if runCtx.Err() == context.DeadlineExceeded {
		result.Success = false
		result.TimedOut = true
		result.Message = fmt.Sprintf("action %q timed out after %s", kind, timeout)
	}

	status := "success"
	if !result.Success {
		status = "failure"
	}
	e.recorder.ActionExecuted(kind, status)
	e.recordAudit(ctx, inv.Rule, kind, status, result.Message)
	return result
}

// recordAudit fans one executed action into the audit ledger, if
// configured. Failures are logged but never affect the action result.
func (e *Executor) recordAudit(ctx context.Context, rule, kind, status, detail string) {
	if e.audit == nil {
		return
	}
	if err := e.audit.RecordAction(context.WithoutCancel(ctx), rule, kind, status, detail); err != nil {
		e.logger.Warn("audit record failed", "rule", rule, "action", kind, "error", err)
	}
}

// Close stops every worker once its current chain (if any) finishes;
// chains still waiting in the queue are abandoned. The supervisor's
// shutdown grace period is expected to call Close only after the bus
// has stopped producing new dispatches.
func (e *Executor) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()

	close(e.stopCh)
	e.wg.Wait()
}
