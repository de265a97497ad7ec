// Package registrymonitor implements the "registry_monitor" source
// family contract. The concrete backend — a RegNotifyChangeKeyValue
// watch loop translating registry notifications into
// RegistryKeyCreated/RegistryKeyDeleted/RegistryValueSet/
// RegistryValueDeleted events — is a deliberately out-of-scope external
// collaborator per SPEC_FULL.md §1: only the plugin contract it must
// honour is specified here.
package registrymonitor

import (
	"context"
	"fmt"
	"sync"

	"github.com/nugget/tripwire/internal/plugin"
)

// Params are the registry_monitor source's type-specific configuration
// fields from the normative schema.
type Params struct {
	Root      string // e.g. "HKEY_CURRENT_USER"
	Key       string // subkey path below Root
	Recursive bool
}

// Source is a contract stub for the registry-notification source
// family.
type Source struct {
	name   string
	params Params

	mu      sync.Mutex
	running bool
}

// New constructs a registry_monitor contract stub. Root and Key are
// required so that configuration validation behaves the same as it
// would against a real backend, even though Start can never act on
// them.
func New(name string, params Params) (*Source, error) {
	if params.Root == "" || params.Key == "" {
		return nil, fmt.Errorf("registry_monitor %q: root and key are required", name)
	}
	return &Source{name: name, params: params}, nil
}

// Factory adapts New to plugin.Factory.
func Factory(name string, raw map[string]any) (plugin.Source, error) {
	p := Params{}
	if v, ok := raw["root"].(string); ok {
		p.Root = v
	}
	if v, ok := raw["key"].(string); ok {
		p.Key = v
	}
	if v, ok := raw["recursive"].(bool); ok {
		p.Recursive = v
	}
	return New(name, p)
}

func (s *Source) Name() string { return s.name }

func (s *Source) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Start reports that the concrete RegNotifyChangeKeyValue backend is
// not available in this build; the stub never transitions to running.
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
