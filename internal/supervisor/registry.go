package supervisor

import (
	"github.com/nugget/tripwire/internal/plugin"
	"github.com/nugget/tripwire/internal/sources/filewatcher"
	"github.com/nugget/tripwire/internal/sources/processmonitor"
	"github.com/nugget/tripwire/internal/sources/registrymonitor"
	"github.com/nugget/tripwire/internal/sources/timer"
	"github.com/nugget/tripwire/internal/sources/windowwatcher"
)

// defaultFactories maps a [[sources]] type string to the plugin.Factory
// that constructs it, per spec.md §6.1's closed set of five families.
func defaultFactories() map[string]plugin.Factory {
	return map[string]plugin.Factory{
		"file_watcher":     filewatcher.Factory,
		"window_watcher":   windowwatcher.Factory,
		"process_monitor":  processmonitor.Factory,
		"registry_monitor": registrymonitor.Factory,
		"timer":            timer.Factory,
	}
}
