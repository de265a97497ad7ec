package rules

import (
	"fmt"

	"github.com/nugget/tripwire/internal/eventbus"
)

// RuleSpec is the decoded-but-uncompiled form of a single rule, as
// read out of configuration. It intentionally holds raw trigger
// fields (map[string]any, mirroring how TOML decodes an inline table)
// rather than a typed trigger struct, so that internal/config stays a
// thin TOML-to-map layer and all trigger-shape knowledge lives here,
// next to the matchers it produces.
type RuleSpec struct {
	Name    string
	Enabled bool
	Trigger map[string]any
	Actions []ActionSpec
	OnError string // "fail" (default), "continue", "log"
}

// ActionSpec is an opaque-to-the-engine action declaration; the engine
// only needs to preserve and hand it to the executor in order, never
// to interpret it.
type ActionSpec struct {
	Kind   string
	Params map[string]any
}

// CompiledRule pairs a rule's matcher tree with the actions to invoke
// on a match, preserving the declared name and on_error policy.
type CompiledRule struct {
	Name    string
	Matcher Matcher
	Actions []ActionSpec
	OnError string
}

// substringFields and globFields map a trigger's non-type keys to the
// metadata field a SubstringOn or GlobOn matcher tests. Keys listed in
// neither are taken as FieldEquals against a metadata field of the
// same name, which covers forward-compatible trigger fields without a
// config change.
var substringFields = map[string]string{
	"title_contains": "title",
}

var globFields = map[string]string{
	"pattern":      "path",
	"path_pattern": "path",
}

// kindByTriggerType lowers the normative `type` values from the
// trigger schema to the event kind they gate on.
var kindByTriggerType = map[string]eventbus.Kind{
	"file_created":               eventbus.KindFileCreated,
	"file_modified":              eventbus.KindFileModified,
	"file_deleted":               eventbus.KindFileDeleted,
	"file_renamed":               eventbus.KindFileRenamed,
	"window_created":             eventbus.KindWindowCreated,
	"window_destroyed":           eventbus.KindWindowDestroyed,
	"window_focused":             eventbus.KindWindowFocused,
	"window_unfocused":           eventbus.KindWindowUnfocused,
	"window_title_changed":       eventbus.KindWindowTitleChanged,
	"process_started":            eventbus.KindProcessStarted,
	"process_stopped":            eventbus.KindProcessStopped,
	"thread_created":             eventbus.KindThreadCreated,
	"thread_destroyed":           eventbus.KindThreadDestroyed,
	"file_accessed":              eventbus.KindFileAccessed,
	"file_io_read":               eventbus.KindFileIoRead,
	"file_io_write":              eventbus.KindFileIoWrite,
	"file_io_delete":             eventbus.KindFileIoDelete,
	"network_connection_created": eventbus.KindNetworkConnectionOpen,
	"network_connection_closed":  eventbus.KindNetworkConnectionClose,
	"registry_key_created":       eventbus.KindRegistryKeyCreated,
	"registry_key_deleted":       eventbus.KindRegistryKeyDeleted,
	"registry_value_set":         eventbus.KindRegistryValueSet,
	"registry_value_deleted":     eventbus.KindRegistryValueDeleted,
	"timer_tick":                 eventbus.KindTimerTick,
}

// reservedTriggerKeys are trigger fields consumed by the lowering
// itself, never turned into a FieldEquals matcher.
var reservedTriggerKeys = map[string]bool{
	"type": true,
}

// CompileTrigger lowers one trigger's raw fields into the canonical
// And(KindEquals, field-matchers...) form.
func CompileTrigger(trigger map[string]any) (Matcher, error) {
	typeVal, ok := trigger["type"].(string)
	if !ok || typeVal == "" {
		return nil, fmt.Errorf("trigger missing required string field %q", "type")
	}
	kind, ok := kindByTriggerType[typeVal]
	if !ok {
		return nil, fmt.Errorf("trigger type %q is not a recognised event kind", typeVal)
	}

	and := And{KindEquals(kind)}
	for key, raw := range trigger {
		if reservedTriggerKeys[key] {
			continue
		}
		str, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("trigger field %q must be a string, got %T", key, raw)
		}
		switch {
		case substringFields[key] != "":
			and = append(and, SubstringOn{Field: substringFields[key], Needle: str})
		case globFields[key] != "":
			and = append(and, GlobOn{Field: globFields[key], Pattern: str})
		case key == "process_name":
			and = append(and, FieldEquals{Field: "process_name", Value: str})
		default:
			and = append(and, FieldEquals{Field: key, Value: str})
		}
	}
	return and, nil
}

// Compile lowers a full set of rule specs into compiled rules,
// preserving declaration order. A rule whose trigger fails to compile
// is rejected individually and reported; it never aborts the rest of
// the configuration, per the load-time error contract.
func Compile(specs []RuleSpec) ([]CompiledRule, []error) {
	var compiled []CompiledRule
	var errs []error
	for _, spec := range specs {
		if !spec.Enabled {
			continue
		}
		m, err := CompileTrigger(spec.Trigger)
		if err != nil {
			errs = append(errs, fmt.Errorf("rule %q: %w", spec.Name, err))
			continue
		}
		onError := spec.OnError
		if onError == "" {
			onError = "fail"
		}
		compiled = append(compiled, CompiledRule{
			Name:    spec.Name,
			Matcher: m,
			Actions: spec.Actions,
			OnError: onError,
		})
	}
	return compiled, errs
}
