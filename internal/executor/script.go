package executor

import (
	"context"
	"fmt"

	"github.com/nugget/tripwire/internal/eventbus"
)

// ScriptRunner is the narrow capability internal/sandbox provides.
// Defining it here (rather than importing internal/sandbox directly)
// avoids a cycle: the sandbox's exec/http capability tables reuse this
// package's execHandler/httpHandler, so sandbox already depends on
// executor.
type ScriptRunner interface {
	Run(ctx context.Context, ev eventbus.Event, path, function string) (success bool, message string, err error)
}

// scriptHandler delegates to the registered sandbox. Until one is
// registered via SetScriptRunner, script actions fail closed rather
// than silently succeeding.
type scriptHandler struct {
	runner ScriptRunner
}

func (h *scriptHandler) Handle(ctx context.Context, ev eventbus.Event, params map[string]any) (Result, error) {
	if h.runner == nil {
		return Result{}, fmt.Errorf("script action: no sandbox registered")
	}
	path, _ := params["path"].(string)
	if path == "" {
		return Result{}, fmt.Errorf("script action: missing required %q field", "path")
	}
	function, _ := params["function"].(string)
	if function == "" {
		function = "on_event"
	}

	success, message, err := h.runner.Run(ctx, ev, path, function)
	if err != nil {
		return Result{Success: false, Message: err.Error()}, nil
	}
	return Result{Success: success, Message: message}, nil
}

// SetScriptRunner wires the script sandbox into the executor. Called
// once during supervisor startup.
func (e *Executor) SetScriptRunner(runner ScriptRunner) {
	e.RegisterHandler("script", &scriptHandler{runner: runner})
}
