package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault_IsSane(t *testing.T) {
	cfg := Default()
	if cfg.FailOn != "HIGH" {
		t.Errorf("FailOn = %q, want HIGH", cfg.FailOn)
	}
	if !cfg.Threads.Auto {
		t.Error("default Threads should be auto")
	}
	if len(cfg.Profiles) != 3 {
		t.Errorf("expected 3 built-in profiles, got %d", len(cfg.Profiles))
	}
}

func TestLoad_MissingFileFallsBackToDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.FailOn != "HIGH" {
		t.Errorf("expected default FailOn, got %q", cfg.FailOn)
	}
}

func TestLoad_OverlayMergesAndSanitizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jmo.config.yaml")
	yamlBody := `
tools: [semgrep, trivy]
fail_on: not-a-real-severity
timeout: -5
threads: auto
`
	if err := os.WriteFile(path, []byte(yamlBody), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Tools) != 2 || cfg.Tools[0] != "semgrep" {
		t.Errorf("expected overlay tools, got %v", cfg.Tools)
	}
	if cfg.FailOn != "HIGH" {
		t.Errorf("invalid fail_on should sanitize to HIGH, got %q", cfg.FailOn)
	}
	if cfg.Timeout != 300 {
		t.Errorf("invalid timeout should sanitize to default 300, got %d", cfg.Timeout)
	}
}

func TestThreadSetting_UnmarshalYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jmo.config.yaml")
	if err := os.WriteFile(path, []byte("threads: 7\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Threads.Auto || cfg.Threads.Value != 7 {
		t.Errorf("expected fixed threads=7, got %+v", cfg.Threads)
	}
}

func TestResolveProfile(t *testing.T) {
	cfg := Default()
	cfg.Tools = []string{"semgrep"}
	resolved := cfg.ResolveProfile("deep")
	if resolved.Timeout != 900 {
		t.Errorf("deep profile should set Timeout=900, got %d", resolved.Timeout)
	}
	// unaffected fields are carried over from the base config
	if len(resolved.Tools) != 1 || resolved.Tools[0] != "semgrep" {
		t.Errorf("expected base Tools to carry through, got %v", resolved.Tools)
	}
}

func TestResolveProfile_UnknownNameReturnsBase(t *testing.T) {
	cfg := Default()
	resolved := cfg.ResolveProfile("no-such-profile")
	if resolved != cfg {
		t.Error("unknown profile name should return the base config unchanged")
	}
}

func TestResolvedThreads(t *testing.T) {
	cfg := Default()
	cfg.Profiling = ProfilingConfig{MinThreads: 2, MaxThreads: 8}

	if n := cfg.ResolvedThreads(16); n != 8 {
		t.Errorf("auto threads should cap at MaxThreads=8, got %d", n)
	}
	if n := cfg.ResolvedThreads(1); n != 2 {
		t.Errorf("auto threads should floor at MinThreads=2, got %d", n)
	}

	cfg.Threads = ThreadSetting{Value: 3}
	if n := cfg.ResolvedThreads(16); n != 3 {
		t.Errorf("explicit thread count should win over auto bounds, got %d", n)
	}
}
