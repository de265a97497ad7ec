// Package config handles tripwire configuration loading: parsing the
// TOML configuration file, applying defaults, validating the result,
// and lowering trigger/action tables into the typed values the rule
// engine and action executor consume.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/nugget/tripwire/internal/rules"
)

// DefaultSearchPaths returns the config file search order. An explicit
// path (from -c/--config) is checked first by FindConfig; these are
// the fallbacks when none is given.
func DefaultSearchPaths() []string {
	paths := []string{"tripwire.toml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "tripwire", "tripwire.toml"))
	}

	paths = append(paths, filepath.Join("C:\\", "ProgramData", "tripwire", "tripwire.toml"))
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must
// exist and is used as-is — this is -c/--config. Otherwise, if
// configDir is non-empty, tripwire.toml must exist inside it — this is
// -d/--config-dir. Otherwise DefaultSearchPaths is searched in order
// and the first existing path wins.
func FindConfig(explicit, configDir string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	if configDir != "" {
		p := filepath.Join(configDir, "tripwire.toml")
		if _, err := os.Stat(p); err != nil {
			return "", fmt.Errorf("config file not found: %s", p)
		}
		return p, nil
	}

	for _, p := range searchPathsFunc() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", searchPathsFunc())
}

// searchPathsFunc is overridden in tests to avoid matching real config
// files on the developer's machine.
var searchPathsFunc = DefaultSearchPaths

// Config holds the engine's full parsed configuration.
type Config struct {
	Engine    EngineConfig    `toml:"engine"`
	Sources   []SourceConfig  `toml:"sources"`
	Rules     []RuleConfig    `toml:"rules"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

// EngineConfig holds the [engine] table.
type EngineConfig struct {
	EventBufferSize int    `toml:"event_buffer_size"`
	LogLevel        string `toml:"log_level"`
	DryRun          bool   `toml:"dry_run"`
}

// SourceConfig holds one [[sources]] entry. Type-specific fields decode
// through Params (a raw map, since the concrete shape depends on
// Type); each source package's Factory is responsible for picking the
// fields it needs out of Params.
type SourceConfig struct {
	Name    string         `toml:"name"`
	Type    string         `toml:"type"`
	Enabled bool           `toml:"enabled"`
	Params  map[string]any `toml:"-"`
}

// RuleConfig holds one [[rules]] entry, decoded into the raw trigger
// and action forms internal/rules.Compile expects. Action holds
// whatever go-toml decoded the "action" key into: a map for the
// singular `action = {...}` inline-table form, or a slice of maps for
// the `[[rules.action]]` array-of-tables form. Both forms share the
// same key, exactly as spec.md §6.1 documents.
type RuleConfig struct {
	Name        string         `toml:"name"`
	Description string         `toml:"description"`
	Enabled     bool           `toml:"enabled"`
	Trigger     map[string]any `toml:"trigger"`
	Action      any            `toml:"action"`
	OnError     string         `toml:"on_error"`
}

// TelemetryConfig holds the ambient [telemetry] table.
type TelemetryConfig struct {
	Listen string     `toml:"listen"`
	MQTT   MQTTConfig `toml:"mqtt"`
}

// MQTTConfig holds the optional [telemetry.mqtt] table.
type MQTTConfig struct {
	Enabled     bool   `toml:"enabled"`
	Broker      string `toml:"broker"`
	TopicPrefix string `toml:"topic_prefix"`
}

// knownSourceFields lists the [[sources]] keys that are not
// type-specific parameters; everything else in the decoded table goes
// into SourceConfig.Params.
var knownSourceFields = map[string]bool{
	"name": true, "type": true, "enabled": true,
}

// rawDoc is the shape config.Load decodes into before lowering
// [[sources]] parameters into SourceConfig.Params, since go-toml
// doesn't give us an "everything else" capture on a typed struct
// field the way a map does.
type rawDoc struct {
	Engine    EngineConfig     `toml:"engine"`
	Sources   []map[string]any `toml:"sources"`
	Rules     []RuleConfig     `toml:"rules"`
	Telemetry TelemetryConfig  `toml:"telemetry"`
}

// Load reads configuration from a TOML file, applies defaults, and
// validates the result. After Load returns successfully every field is
// usable without additional nil/empty checks.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw rawDoc
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg := &Config{
		Engine:    raw.Engine,
		Rules:     raw.Rules,
		Telemetry: raw.Telemetry,
	}
	for _, s := range raw.Sources {
		sc := SourceConfig{Enabled: true, Params: map[string]any{}}
		if v, ok := s["name"].(string); ok {
			sc.Name = v
		}
		if v, ok := s["type"].(string); ok {
			sc.Type = v
		}
		if v, ok := s["enabled"].(bool); ok {
			sc.Enabled = v
		}
		for k, v := range s {
			if !knownSourceFields[k] {
				sc.Params[k] = v
			}
		}
		cfg.Sources = append(cfg.Sources, sc)
	}

	// A rule with no "enabled" key is enabled, the same default the
	// sources loop above applies.
	var ruleKeys struct {
		Rules []map[string]any `toml:"rules"`
	}
	if err := toml.Unmarshal(data, &ruleKeys); err == nil {
		for i, r := range ruleKeys.Rules {
			if _, set := r["enabled"]; !set && i < len(cfg.Rules) {
				cfg.Rules[i].Enabled = true
			}
		}
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// applyDefaults fills in zero-value fields with the defaults the
// normative schema documents.
func (c *Config) applyDefaults() {
	if c.Engine.EventBufferSize == 0 {
		c.Engine.EventBufferSize = 1000
	}
	if c.Engine.LogLevel == "" {
		c.Engine.LogLevel = "info"
	}
	if c.Telemetry.Listen == "" {
		c.Telemetry.Listen = "127.0.0.1:9090"
	}
	if c.Telemetry.MQTT.TopicPrefix == "" {
		c.Telemetry.MQTT.TopicPrefix = "tripwire"
	}
	for i := range c.Rules {
		if c.Rules[i].OnError == "" {
			c.Rules[i].OnError = "fail"
		}
	}
}

// Validate checks that the configuration is internally consistent. It
// runs after applyDefaults, so it can assume defaults are populated.
func (c *Config) Validate() error {
	if c.Engine.EventBufferSize < 1 {
		return fmt.Errorf("engine.event_buffer_size must be >= 1, got %d", c.Engine.EventBufferSize)
	}
	if _, err := ParseLogLevel(c.Engine.LogLevel); err != nil {
		return err
	}

	seenSource := map[string]bool{}
	for _, s := range c.Sources {
		if s.Name == "" {
			return fmt.Errorf("a source is missing a required name")
		}
		if seenSource[s.Name] {
			return fmt.Errorf("duplicate source name %q", s.Name)
		}
		seenSource[s.Name] = true
		switch s.Type {
		case "file_watcher", "window_watcher", "process_monitor", "registry_monitor", "timer":
		default:
			return fmt.Errorf("source %q: unknown type %q", s.Name, s.Type)
		}
	}

	seenRule := map[string]bool{}
	for _, r := range c.Rules {
		if r.Name == "" {
			return fmt.Errorf("a rule is missing a required name")
		}
		if seenRule[r.Name] {
			return fmt.Errorf("duplicate rule name %q", r.Name)
		}
		seenRule[r.Name] = true
		switch r.OnError {
		case "fail", "continue", "log":
		default:
			return fmt.Errorf("rule %q: invalid on_error %q", r.Name, r.OnError)
		}
	}

	return nil
}

// CompiledRuleSpecs lowers every RuleConfig into the rules.RuleSpec
// shape internal/rules.Compile consumes, lowering whichever form the
// "action" key decoded into (singular inline table or
// `[[rules.action]]` array of tables, per spec.md §6.1) into a single
// ordered []rules.ActionSpec.
func (c *Config) CompiledRuleSpecs() []rules.RuleSpec {
	out := make([]rules.RuleSpec, 0, len(c.Rules))
	for _, r := range c.Rules {
		spec := rules.RuleSpec{
			Name:    r.Name,
			Enabled: r.Enabled,
			Trigger: r.Trigger,
			OnError: r.OnError,
		}
		for _, a := range normalizeActions(r.Action) {
			spec.Actions = append(spec.Actions, decodeAction(a))
		}
		out = append(out, spec)
	}
	return out
}

// normalizeActions accepts whatever go-toml decoded the "action" key
// into - a map[string]any for the singular form, a []any of
// map[string]any for the array-of-tables form (or a pre-built
// []map[string]any, for callers that construct a RuleConfig directly
// rather than through toml.Unmarshal) - and returns an ordered list of
// raw action tables.
func normalizeActions(raw any) []map[string]any {
	switch v := raw.(type) {
	case nil:
		return nil
	case map[string]any:
		return []map[string]any{v}
	case []map[string]any:
		return v
	case []any:
		out := make([]map[string]any, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	default:
		return nil
	}
}

func decodeAction(raw map[string]any) rules.ActionSpec {
	kind, _ := raw["type"].(string)
	params := make(map[string]any, len(raw))
	for k, v := range raw {
		if k == "type" {
			continue
		}
		params[k] = v
	}
	return rules.ActionSpec{Kind: kind, Params: params}
}
