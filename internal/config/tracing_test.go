package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLoadTracingConfigFileParsesAllModes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tracing.yaml")
	yamlSrc := "register_fuzzables: all\ncalls: only_current\nevaluated_expressions: off\n"
	if err := os.WriteFile(path, []byte(yamlSrc), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := LoadTracingConfigFile(path)
	if err != nil {
		t.Fatalf("LoadTracingConfigFile: %v", err)
	}

	want := TracingConfig{
		RegisterFuzzables:    All,
		Calls:                OnlyCurrent,
		EvaluatedExpressions: Off,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("TracingConfig mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadTracingConfigFileRejectsUnknownMode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tracing.yaml")
	if err := os.WriteFile(path, []byte("calls: sometimes\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadTracingConfigFile(path); err == nil {
		t.Fatal("expected an error for an unknown trace mode")
	}
}

func TestToYAMLRoundTripsThroughLoadTracingConfigFile(t *testing.T) {
	want := TracingConfig{
		RegisterFuzzables: All,
		Calls:             All,
	}

	data, err := want.ToYAML()
	if err != nil {
		t.Fatalf("ToYAML: %v", err)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "tracing.yaml")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	got, err := LoadTracingConfigFile(path)
	if err != nil {
		t.Fatalf("LoadTracingConfigFile: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}
