// Package telemetry is the process-wide metrics collector: counters,
// a histogram pair, and an engine-uptime gauge, all backed by a
// private prometheus.Registry exactly the way 99souls-ariadne's
// engine/telemetry/metrics package wraps client_golang — a small
// Recorder surface the rest of the engine depends on by interface, so
// every caller (bus, executor, supervisor, plugin manager) stays
// nil-safe and free of a direct prometheus import.
package telemetry

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// Recorder is the full metrics surface spec.md §4.7 names. It embeds
// eventbus.DropCounter's and executor.Recorder's methods structurally
// (Go's satisfies-by-shape typing) so a *Collector can be handed to
// either package's constructor without an adapter.
type Recorder interface {
	// IncDropped satisfies eventbus.DropCounter.
	IncDropped(source string)

	EventObserved(source, kind string)
	EventProcessingDuration(seconds float64)

	RuleEvaluated(rule string)
	RuleMatched(rule string)

	// ActionExecuted, ActionDuration, and ActionsDropped satisfy
	// executor.Recorder.
	ActionExecuted(kind, status string)
	ActionDuration(kind string, seconds float64)
	ActionsDropped()

	PluginEventsGenerated(plugin string)
	PluginErrors(plugin string)

	ConfigReload(result string)
	SetUptime(seconds float64)
}

// Collector is the Prometheus-backed Recorder. All fields are
// initialised once at construction; every Inc/Observe call afterwards
// only touches already-registered vectors, so there is no lock beyond
// what the prometheus client itself takes internally.
type Collector struct {
	registry *prom.Registry
	samples  *SampleLog

	eventsTotal          *prom.CounterVec
	eventsDropped        *prom.CounterVec
	eventsProcessingTime prom.Histogram
	rulesEvaluated       *prom.CounterVec
	rulesMatched         *prom.CounterVec
	actionsExecuted      *prom.CounterVec
	actionsExecutionTime *prom.HistogramVec
	actionsDropped       prom.Counter
	pluginsEventsGen     *prom.CounterVec
	pluginsErrors        *prom.CounterVec
	configReload         *prom.CounterVec
	engineUptime         prom.Gauge
}

// New constructs a Collector and registers every metric named in
// spec.md §4.7 against a fresh private registry.
func New() *Collector {
	reg := prom.NewRegistry()
	c := &Collector{
		registry: reg,
		samples:  NewSampleLog(),
		eventsTotal: prom.NewCounterVec(prom.CounterOpts{
			Name: "events_total", Help: "Events observed by the dispatcher.",
		}, []string{"source", "kind"}),
		eventsDropped: prom.NewCounterVec(prom.CounterOpts{
			Name: "events_dropped_total", Help: "Events dropped by a saturated bus.",
		}, []string{"source"}),
		eventsProcessingTime: prom.NewHistogram(prom.HistogramOpts{
			Name: "events_processing_duration_seconds", Help: "Time from event receipt to dispatch completion.",
		}),
		rulesEvaluated: prom.NewCounterVec(prom.CounterOpts{
			Name: "rules_evaluated_total", Help: "Rule evaluations performed.",
		}, []string{"rule"}),
		rulesMatched: prom.NewCounterVec(prom.CounterOpts{
			Name: "rules_matched_total", Help: "Rule evaluations that matched.",
		}, []string{"rule"}),
		actionsExecuted: prom.NewCounterVec(prom.CounterOpts{
			Name: "actions_executed_total", Help: "Actions executed, by outcome.",
		}, []string{"action", "status"}),
		actionsExecutionTime: prom.NewHistogramVec(prom.HistogramOpts{
			Name: "actions_execution_duration_seconds", Help: "Action execution time.",
		}, []string{"action"}),
		actionsDropped: prom.NewCounter(prom.CounterOpts{
			Name: "actions_dropped_total", Help: "Action chains dropped because the executor queue was full.",
		}),
		pluginsEventsGen: prom.NewCounterVec(prom.CounterOpts{
			Name: "plugins_events_generated_total", Help: "Events generated per plugin instance.",
		}, []string{"plugin"}),
		pluginsErrors: prom.NewCounterVec(prom.CounterOpts{
			Name: "plugins_errors_total", Help: "Errors encountered per plugin instance.",
		}, []string{"plugin"}),
		configReload: prom.NewCounterVec(prom.CounterOpts{
			Name: "config_reload_total", Help: "Configuration reload attempts, by result.",
		}, []string{"result"}),
		engineUptime: prom.NewGauge(prom.GaugeOpts{
			Name: "engine_uptime_seconds", Help: "Seconds since the engine started.",
		}),
	}

	for _, collector := range []prom.Collector{
		c.eventsTotal, c.eventsDropped, c.eventsProcessingTime,
		c.rulesEvaluated, c.rulesMatched,
		c.actionsExecuted, c.actionsExecutionTime, c.actionsDropped,
		c.pluginsEventsGen, c.pluginsErrors,
		c.configReload, c.engineUptime,
	} {
		reg.MustRegister(collector)
	}

	return c
}

// Registry exposes the underlying registry so the HTTP server can
// build a promhttp handler for it.
func (c *Collector) Registry() *prom.Registry { return c.registry }

// Snapshot returns the samples currently retained in the sliding
// window, satisfying spec.md §4.7's snapshot() operation.
func (c *Collector) Snapshot() Snapshot { return c.samples.Snapshot() }

// Subscribe and Unsubscribe expose the push channel spec.md §4.7
// describes: incremental updates fanned out to subscribers such as
// the /ws dashboard route.
func (c *Collector) Subscribe(ch chan Sample)   { c.samples.Subscribe(ch) }
func (c *Collector) Unsubscribe(ch chan Sample) { c.samples.Unsubscribe(ch) }

// RunSweeper evicts expired samples every five minutes until stop
// closes; call it in its own goroutine for the engine's lifetime.
func (c *Collector) RunSweeper(stop <-chan struct{}) { c.samples.RunSweeper(stop) }

func (c *Collector) record(metric string, value float64, labels map[string]string) {
	c.samples.Record(Sample{Timestamp: time.Now().UTC(), Metric: metric, Labels: labels, Value: value})
}

func (c *Collector) IncDropped(source string) {
	c.eventsDropped.WithLabelValues(source).Inc()
	c.record("events_dropped_total", 1, map[string]string{"source": source})
}

func (c *Collector) EventObserved(source, kind string) {
	c.eventsTotal.WithLabelValues(source, kind).Inc()
	c.record("events_total", 1, map[string]string{"source": source, "kind": kind})
}

func (c *Collector) EventProcessingDuration(seconds float64) {
	c.eventsProcessingTime.Observe(seconds)
	c.record("events_processing_duration_seconds", seconds, nil)
}

func (c *Collector) RuleEvaluated(rule string) {
	c.rulesEvaluated.WithLabelValues(rule).Inc()
	c.record("rules_evaluated_total", 1, map[string]string{"rule": rule})
}

func (c *Collector) RuleMatched(rule string) {
	c.rulesMatched.WithLabelValues(rule).Inc()
	c.record("rules_matched_total", 1, map[string]string{"rule": rule})
}

func (c *Collector) ActionExecuted(kind, status string) {
	c.actionsExecuted.WithLabelValues(kind, status).Inc()
	c.record("actions_executed_total", 1, map[string]string{"action": kind, "status": status})
}

func (c *Collector) ActionDuration(kind string, seconds float64) {
	c.actionsExecutionTime.WithLabelValues(kind).Observe(seconds)
	c.record("actions_execution_duration_seconds", seconds, map[string]string{"action": kind})
}

func (c *Collector) ActionsDropped() {
	c.actionsDropped.Inc()
	c.record("actions_dropped_total", 1, nil)
}

func (c *Collector) PluginEventsGenerated(plugin string) {
	c.pluginsEventsGen.WithLabelValues(plugin).Inc()
	c.record("plugins_events_generated_total", 1, map[string]string{"plugin": plugin})
}

func (c *Collector) PluginErrors(plugin string) {
	c.pluginsErrors.WithLabelValues(plugin).Inc()
	c.record("plugins_errors_total", 1, map[string]string{"plugin": plugin, "status": "error"})
}

func (c *Collector) ConfigReload(result string) {
	c.configReload.WithLabelValues(result).Inc()
	c.record("config_reload_total", 1, map[string]string{"result": result})
}

func (c *Collector) SetUptime(seconds float64) {
	c.engineUptime.Set(seconds)
	c.record("engine_uptime_seconds", seconds, nil)
}
