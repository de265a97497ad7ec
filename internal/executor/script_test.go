package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/nugget/tripwire/internal/eventbus"
)

type fakeRunner struct {
	success bool
	message string
	err     error
}

func (f fakeRunner) Run(ctx context.Context, ev eventbus.Event, path, function string) (bool, string, error) {
	return f.success, f.message, f.err
}

func TestScriptHandler_NoRunnerRegisteredFailsClosed(t *testing.T) {
	h := &scriptHandler{}
	ev := eventbus.New(eventbus.KindTimerTick, "t", nil)
	if _, err := h.Handle(context.Background(), ev, map[string]any{"path": "x.lua"}); err == nil {
		t.Fatal("expected error when no sandbox is registered")
	}
}

func TestScriptHandler_MissingPathErrors(t *testing.T) {
	h := &scriptHandler{runner: fakeRunner{success: true}}
	ev := eventbus.New(eventbus.KindTimerTick, "t", nil)
	if _, err := h.Handle(context.Background(), ev, map[string]any{}); err == nil {
		t.Fatal("expected error for missing path")
	}
}

func TestScriptHandler_DefaultsFunctionToOnEvent(t *testing.T) {
	var gotFunction string
	h := &scriptHandler{runner: fakeRunnerFunc(func(ctx context.Context, ev eventbus.Event, path, function string) (bool, string, error) {
		gotFunction = function
		return true, "", nil
	})}
	ev := eventbus.New(eventbus.KindTimerTick, "t", nil)
	if _, err := h.Handle(context.Background(), ev, map[string]any{"path": "x.lua"}); err != nil {
		t.Fatal(err)
	}
	if gotFunction != "on_event" {
		t.Fatalf("expected default function on_event, got %q", gotFunction)
	}
}

func TestScriptHandler_RunnerErrorBecomesFailureResult(t *testing.T) {
	h := &scriptHandler{runner: fakeRunner{err: errors.New("boom")}}
	ev := eventbus.New(eventbus.KindTimerTick, "t", nil)
	result, err := h.Handle(context.Background(), ev, map[string]any{"path": "x.lua"})
	if err != nil {
		t.Fatal("runner errors should surface as a failed Result, not a Go error")
	}
	if result.Success {
		t.Fatal("expected failure result")
	}
}

type fakeRunnerFunc func(ctx context.Context, ev eventbus.Event, path, function string) (bool, string, error)

func (f fakeRunnerFunc) Run(ctx context.Context, ev eventbus.Event, path, function string) (bool, string, error) {
	return f(ctx, ev, path, function)
}
