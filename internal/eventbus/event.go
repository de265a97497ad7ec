// Package eventbus provides the core Event value and the bounded
// multi-producer, single-consumer bus that carries events from source
// plugins to the dispatcher. The bus is the one synchronization point
// between OS-callback-driven producers and the cooperative pipeline
// that evaluates rules against the events they emit.
package eventbus

import (
	"time"

	"github.com/google/uuid"
)

// Kind identifies the type of event within the closed discriminated
// set a source may emit.
type Kind string

// The closed set of event kinds. Every source plugin family emits a
// subset of these; internal/rules.KindEquals matches against this type.
const (
	KindFileCreated  Kind = "FileCreated"
	KindFileModified Kind = "FileModified"
	KindFileDeleted  Kind = "FileDeleted"
	KindFileRenamed  Kind = "FileRenamed"

	KindWindowCreated      Kind = "WindowCreated"
	KindWindowDestroyed    Kind = "WindowDestroyed"
	KindWindowFocused      Kind = "WindowFocused"
	KindWindowUnfocused    Kind = "WindowUnfocused"
	KindWindowTitleChanged Kind = "WindowTitleChanged"

	KindProcessStarted         Kind = "ProcessStarted"
	KindProcessStopped         Kind = "ProcessStopped"
	KindThreadCreated          Kind = "ThreadCreated"
	KindThreadDestroyed        Kind = "ThreadDestroyed"
	KindFileAccessed           Kind = "FileAccessed"
	KindFileIoRead             Kind = "FileIoRead"
	KindFileIoWrite            Kind = "FileIoWrite"
	KindFileIoDelete           Kind = "FileIoDelete"
	KindNetworkConnectionOpen  Kind = "NetworkConnectionCreated"
	KindNetworkConnectionClose Kind = "NetworkConnectionClosed"

	KindRegistryKeyCreated   Kind = "RegistryKeyCreated"
	KindRegistryKeyDeleted   Kind = "RegistryKeyDeleted"
	KindRegistryValueSet     Kind = "RegistryValueSet"
	KindRegistryValueDeleted Kind = "RegistryValueDeleted"

	KindTimerTick Kind = "TimerTick"
)

// Event is an immutable value produced exactly once by a source and
// consumed at most once by the dispatcher. It is cloned (via Clone)
// for each matching rule so that no two rule evaluations can observe
// shared mutable state.
type Event struct {
	// ID is a random 128-bit identifier, unique within a process run.
	ID uuid.UUID
	// Timestamp is the UTC wall-clock time the event was observed,
	// millisecond resolution.
	Timestamp time.Time
	// Kind is the event's type, drawn from the closed set above.
	Kind Kind
	// Source names the producing plugin instance (its configured name,
	// not its family/type).
	Source string
	// Metadata holds kind-specific string key/value pairs (for example
	// "path" on file events); absent keys are treated as non-match by
	// field-level rule matchers, never as an error.
	Metadata map[string]string
}

// New constructs an Event with a fresh ID and the current UTC
// timestamp truncated to millisecond resolution.
func New(kind Kind, source string, metadata map[string]string) Event {
	if metadata == nil {
		metadata = map[string]string{}
	}
	return Event{
		ID:        uuid.New(),
		Timestamp: time.Now().UTC().Truncate(time.Millisecond),
		Kind:      kind,
		Source:    source,
		Metadata:  metadata,
	}
}

// Clone returns a deep copy of the event so that concurrent rule
// evaluations and action invocations cannot observe mutations made by
// another goroutine to the same logical event.
func (e Event) Clone() Event {
	md := make(map[string]string, len(e.Metadata))
	for k, v := range e.Metadata {
		md[k] = v
	}
	e.Metadata = md
	return e
}

// Field looks up a field by name. The reserved pseudo-fields "kind",
// "source" and "id" resolve to the event's own Kind, Source and ID;
// any other name is looked up in Metadata, returning ("", false) when
// it is not present.
func (e Event) Field(name string) (string, bool) {
	switch name {
	case "kind":
		return string(e.Kind), true
	case "source":
		return e.Source, true
	case "id":
		return e.ID.String(), true
	}
	v, ok := e.Metadata[name]
	return v, ok
}
