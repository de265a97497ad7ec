// Package windowwatcher implements the "window_watcher" source family
// contract. The concrete backend — a Win32 SetWinEventHook session
// translating WinEvent callbacks into WindowCreated/WindowDestroyed/
// WindowFocused/WindowUnfocused/WindowTitleChanged events carrying
// title/class/exe/pid metadata — is a deliberately out-of-scope
// external collaborator per SPEC_FULL.md §1: only the plugin contract
// it must honour is specified here. Start performs the already-running
// check a real backend would, then always fails with
// ErrUnsupportedPlatform instead of registering a real hook; the
// source never reaches the running state. The contract — not a
// fabricated WinAPI integration — is what this package exercises and
// what its tests verify.
package windowwatcher

import (
	"context"
	"sync"

	"github.com/nugget/tripwire/internal/plugin"
)

// Params are the window_watcher source's (currently empty)
// type-specific configuration fields. The family takes no filtering
// parameters in the normative schema; window events are always
// pre-filtered downstream by the rule engine instead.
type Params struct{}

// Source is a contract stub for the window lifecycle source family.
type Source struct {
	name string

	mu      sync.Mutex
	running bool
}

// New constructs a window_watcher contract stub.
func New(name string, _ Params) (*Source, error) {
	return &Source{name: name}, nil
}

// Factory adapts New to plugin.Factory.
func Factory(name string, _ map[string]any) (plugin.Source, error) {
	return New(name, Params{})
}

func (s *Source) Name() string { return s.name }

func (s *Source) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Start checks that the source is not already running, then reports
// that the concrete WinEventHook backend is not available in this
// build.
func (s *Source) Start(ctx context.Context, emitter plugin.Emitter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return plugin.ErrAlreadyRunning
	}
	// A real backend would call SetWinEventHook here and mark running
	// only once the hook registration succeeds. The stub never reaches
	// "running" because it has nothing to report events from.
	return plugin.ErrUnsupportedPlatform
}

// Stop is idempotent; the stub never transitions to running, so Stop
// always succeeds trivially.
func (s *Source) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	return nil
}
