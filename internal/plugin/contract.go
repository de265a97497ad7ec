// Package plugin defines the abstract contract every event source
// honours: name, start, stop, is_running. Concrete families
// (filesystem, window, process, registry, timer) live under
// internal/sources and each satisfy Source; the supervisor in
// internal/supervisor owns their lifecycle exclusively.
package plugin

import (
	"context"
	"errors"

	"github.com/nugget/tripwire/internal/eventbus"
)

// Emitter is the narrow send-capability a running source holds on the
// event bus. *eventbus.Bus satisfies this directly — Emit never
// blocks and is safe to call from any goroutine, including one driven
// by an OS callback on a thread the runtime did not spawn.
type Emitter interface {
	Emit(eventbus.Event) eventbus.SendOutcome
}

// ErrUnsupportedPlatform is returned by Start on source families whose
// concrete OS integration is out of scope for this repository (the
// Windows hook/ETW/registry-notify backends) when running on a
// platform, or in a build, that does not provide it. It is a normal,
// non-fatal Source error: the supervisor records it and leaves the
// instance stopped, exactly as any other Start failure.
var ErrUnsupportedPlatform = errors.New("plugin: concrete OS integration not available on this platform")

// ErrAlreadyRunning is returned by Start when called on a source that
// is already running. Sources should treat this as a programmer error
// in the caller (the supervisor never calls Start twice without an
// intervening Stop) rather than something worth retrying.
var ErrAlreadyRunning = errors.New("plugin: source is already running")

// Source is the capability set every event producer implements.
// Lifecycle: stopped -> starting -> running (on successful Start),
// back to stopped (on Stop or a fatal runtime error). Start errors are
// fatal to the instance but never to the engine.
type Source interface {
	// Name returns the source's configured name (unique per
	// configuration), used as Event.Source on everything it emits.
	Name() string

	// Start transitions a stopped source to running: it acquires OS
	// resources and spawns whatever background goroutines the source
	// needs, and returns only after the source is prepared to emit.
	// It must be safe to call again after a prior Start failed.
	Start(ctx context.Context, emitter Emitter) error

	// Stop is idempotent and releases all OS handles acquired by
	// Start, joining any background goroutines before returning. It
	// must succeed even if Start failed partway or was never called.
	Stop(ctx context.Context) error

	// IsRunning reports whether the source is currently running.
	IsRunning() bool
}

// Factory constructs a Source from a family-specific parameter record
// already decoded by internal/config. Concrete families register a
// Factory under their type name; internal/supervisor looks factories
// up by the source's configured Type.
type Factory func(name string, params map[string]any) (Source, error)
