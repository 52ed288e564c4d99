// Package config holds compiler-wide options that are not derivable
// from source: currently just the HIR→MIR tracing configuration
// (spec.md §6).
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TraceMode controls how much a TracingConfig field instruments.
type TraceMode int

const (
	Off TraceMode = iota
	OnlyCurrent
	All
)

func (m TraceMode) String() string {
	switch m {
	case OnlyCurrent:
		return "OnlyCurrent"
	case All:
		return "All"
	default:
		return "Off"
	}
}

// MarshalYAML renders a TraceMode as its string form.
func (m TraceMode) MarshalYAML() (any, error) {
	return m.String(), nil
}

// UnmarshalYAML parses a TraceMode from its string form.
func (m *TraceMode) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := parseTraceMode(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

func parseTraceMode(s string) (TraceMode, error) {
	switch s {
	case "Off", "off", "":
		return Off, nil
	case "OnlyCurrent", "only_current", "onlyCurrent":
		return OnlyCurrent, nil
	case "All", "all":
		return All, nil
	default:
		return Off, fmt.Errorf("unknown trace mode %q", s)
	}
}

// TracingConfig selects which MIR trace expressions HIR→MIR emits
// (spec.md §4.4, §6). It is content-addressed by the Query Layer
// alongside the module being compiled (two TracingConfig values with
// equal fields are treated as the same cache key).
type TracingConfig struct {
	RegisterFuzzables    TraceMode `yaml:"register_fuzzables"`
	Calls                TraceMode `yaml:"calls"`
	EvaluatedExpressions TraceMode `yaml:"evaluated_expressions"`
}

// NoTracing is the all-tracing-disabled configuration; most compilation
// jobs use this.
var NoTracing = TracingConfig{}

// Key returns a stable string for use as a cache-key component.
func (t TracingConfig) Key() string {
	return fmt.Sprintf("%d|%d|%d", t.RegisterFuzzables, t.Calls, t.EvaluatedExpressions)
}

// LoadTracingConfigFile reads a TracingConfig from a YAML file, the
// format an embedder checks into its own repo alongside its build
// config (mirrors eval_harness.LoadSpec's read-then-unmarshal shape).
func LoadTracingConfigFile(path string) (TracingConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return TracingConfig{}, fmt.Errorf("failed to read tracing config: %w", err)
	}
	var cfg TracingConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return TracingConfig{}, fmt.Errorf("failed to parse tracing config YAML: %w", err)
	}
	return cfg, nil
}

// ToYAML renders a TracingConfig back to YAML, for an embedder that
// wants to persist a config it built programmatically.
func (t TracingConfig) ToYAML() ([]byte, error) {
	return yaml.Marshal(t)
}

// ParseTracingConfig builds a TracingConfig from a flat string map, the
// shape a CLI flag set hands us — this function never reads files
// itself (see LoadTracingConfigFile for the YAML-file path).
func ParseTracingConfig(values map[string]string) (TracingConfig, error) {
	var cfg TracingConfig
	var err error
	if v, ok := values["register_fuzzables"]; ok {
		if cfg.RegisterFuzzables, err = parseTraceMode(v); err != nil {
			return cfg, err
		}
	}
	if v, ok := values["calls"]; ok {
		if cfg.Calls, err = parseTraceMode(v); err != nil {
			return cfg, err
		}
	}
	if v, ok := values["evaluated_expressions"]; ok {
		if cfg.EvaluatedExpressions, err = parseTraceMode(v); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}
