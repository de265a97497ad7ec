// Package processmonitor implements the "process_monitor" source
// family contract. The concrete backend — an ETW kernel trace session
// (Process, Thread, FileIo, and TCP/UDP providers) translating kernel
// events into ProcessStarted/ProcessStopped/ThreadCreated/
// ThreadDestroyed/FileIo*/NetworkConnection* events — is a deliberately
// out-of-scope external collaborator per SPEC_FULL.md §1. Per spec.md
// §9's Open Questions, an implementation that chooses poll-mode instead
// of a kernel trace session must document which kinds it omits; this
// stub documents that it omits all of them, since it never reaches a
// running state at all — it only exercises the plugin contract.
package processmonitor

import (
	"context"
	"sync"

	"github.com/nugget/tripwire/internal/plugin"
)

// Params are the process_monitor source's type-specific configuration
// fields from the normative schema.
type Params struct {
	ProcessName    string // optional filter; empty means all processes
	MonitorThreads bool
	MonitorFiles   bool
	MonitorNetwork bool
}

// Source is a contract stub for the kernel-trace process/thread/file-io/
// network source family.
type Source struct {
	name   string
	params Params

	mu      sync.Mutex
	running bool
}

// New constructs a process_monitor contract stub.
func New(name string, params Params) (*Source, error) {
	return &Source{name: name, params: params}, nil
}

// Factory adapts New to plugin.Factory.
func Factory(name string, raw map[string]any) (plugin.Source, error) {
	p := Params{}
	if v, ok := raw["process_name"].(string); ok {
		p.ProcessName = v
	}
	if v, ok := raw["monitor_threads"].(bool); ok {
		p.MonitorThreads = v
	}
	if v, ok := raw["monitor_files"].(bool); ok {
		p.MonitorFiles = v
	}
	if v, ok := raw["monitor_network"].(bool); ok {
		p.MonitorNetwork = v
	}
	return New(name, p)
}

func (s *Source) Name() string { return s.name }

func (s *Source) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Start reports that the concrete ETW kernel trace backend is not
// available in this build; the stub never transitions to running.
func (s *Source) Start(ctx context.Context, emitter plugin.Emitter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return plugin.ErrAlreadyRunning
	}
	return plugin.ErrUnsupportedPlatform
}

// Stop is idempotent.
func (s *Source) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	return nil
}
