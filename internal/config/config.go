// Package config handles jmo configuration loading and management.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config represents the merged jmo configuration.
type Config struct {
	Tools          []string                  `yaml:"tools,omitempty"`
	Outputs        []string                  `yaml:"outputs,omitempty"`
	FailOn         string                    `yaml:"fail_on,omitempty"`
	Threads        ThreadSetting             `yaml:"threads,omitempty"`
	Include        []string                  `yaml:"include,omitempty"`
	Exclude        []string                  `yaml:"exclude,omitempty"`
	Timeout        int                       `yaml:"timeout,omitempty"`
	LogLevel       string                    `yaml:"log_level,omitempty"`
	DefaultProfile string                    `yaml:"default_profile,omitempty"`
	Profiles       map[string]Profile        `yaml:"profiles,omitempty"`
	PerTool        map[string]ToolOverride   `yaml:"per_tool,omitempty"`
	Retries        int                       `yaml:"retries,omitempty"`
	Profiling      ProfilingConfig           `yaml:"profiling,omitempty"`
	Policy         map[string]interface{}    `yaml:"policy,omitempty"`
}

// ThreadSetting accepts either an integer or the literal "auto" in YAML.
type ThreadSetting struct {
	Auto  bool
	Value int
}

// UnmarshalYAML implements custom decoding for the int|"auto" union.
func (t *ThreadSetting) UnmarshalYAML(value *yaml.Node) error {
	var asString string
	if err := value.Decode(&asString); err == nil {
		if asString == "auto" {
			t.Auto = true
			return nil
		}
		if n, err := strconv.Atoi(asString); err == nil && n > 0 {
			t.Value = n
			return nil
		}
		// invalid string value: silently fall back to auto per spec's
		// "invalid values coerce to default" rule.
		t.Auto = true
		return nil
	}

	var asInt int
	if err := value.Decode(&asInt); err == nil {
		if asInt <= 0 {
			t.Auto = true
			return nil
		}
		t.Value = asInt
		return nil
	}

	t.Auto = true
	return nil
}

// Profile is a named override bundle.
type Profile struct {
	Tools   []string               `yaml:"tools,omitempty"`
	Threads ThreadSetting          `yaml:"threads,omitempty"`
	Timeout int                    `yaml:"timeout,omitempty"`
	Include []string               `yaml:"include,omitempty"`
	Exclude []string               `yaml:"exclude,omitempty"`
	Retries int                    `yaml:"retries,omitempty"`
	PerTool map[string]ToolOverride `yaml:"per_tool,omitempty"`
	Policy  map[string]interface{} `yaml:"policy,omitempty"`
}

// ToolOverride holds per-tool flag and timeout overrides.
type ToolOverride struct {
	Flags   []string `yaml:"flags,omitempty"`
	Timeout int      `yaml:"timeout,omitempty"`
}

// ProfilingConfig gives thread-count recommendations for --profile runs.
type ProfilingConfig struct {
	MinThreads     int `yaml:"min_threads,omitempty"`
	MaxThreads     int `yaml:"max_threads,omitempty"`
	DefaultThreads int `yaml:"default_threads,omitempty"`
}

// validSeverities mirrors the closed severity lattice for fail_on validation.
var validSeverities = map[string]bool{
	"CRITICAL": true, "HIGH": true, "MEDIUM": true, "LOW": true, "INFO": true,
}

var validLogLevels = map[string]bool{
	"DEBUG": true, "INFO": true, "WARN": true, "ERROR": true,
}

// Default returns the built-in configuration used when no file is found.
func Default() *Config {
	return &Config{
		Outputs:        []string{"json"},
		FailOn:         "HIGH",
		Threads:        ThreadSetting{Auto: true},
		Timeout:        300,
		LogLevel:       "INFO",
		DefaultProfile: "balanced",
		Retries:        1,
		Profiles: map[string]Profile{
			"fast":     {Timeout: 60, Retries: 0},
			"balanced": {Timeout: 300, Retries: 1},
			"deep":     {Timeout: 900, Retries: 2},
		},
		Profiling: ProfilingConfig{MinThreads: 1, MaxThreads: 16, DefaultThreads: 4},
	}
}

// Load reads configuration from the given path (if non-empty) over the
// built-in defaults, then merges recognized JMO_* environment overrides.
// Invalid values are silently coerced rather than rejected, per the
// configuration contract.
func Load(path string) (*Config, error) {
	cfg := Default()

	candidates := []string{path}
	if path == "" {
		candidates = []string{"jmo.config.yaml", ".jmo/config.yaml", findHomeConfig()}
	}

	for _, p := range candidates {
		if p == "" {
			continue
		}
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		var overlay Config
		if err := yaml.Unmarshal(data, &overlay); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", p, err)
		}
		merge(cfg, &overlay)
		break
	}

	applyEnvOverrides(cfg)
	sanitize(cfg)
	return cfg, nil
}

func findHomeConfig() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".jmo", "config.yaml")
}

// merge overlays non-zero overlay fields onto cfg (overlay wins).
func merge(cfg, overlay *Config) {
	if len(overlay.Tools) > 0 {
		cfg.Tools = overlay.Tools
	}
	if len(overlay.Outputs) > 0 {
		cfg.Outputs = overlay.Outputs
	}
	if overlay.FailOn != "" {
		cfg.FailOn = overlay.FailOn
	}
	if overlay.Threads.Auto || overlay.Threads.Value > 0 {
		cfg.Threads = overlay.Threads
	}
	if len(overlay.Include) > 0 {
		cfg.Include = overlay.Include
	}
	if len(overlay.Exclude) > 0 {
		cfg.Exclude = overlay.Exclude
	}
	if overlay.Timeout > 0 {
		cfg.Timeout = overlay.Timeout
	}
	if overlay.LogLevel != "" {
		cfg.LogLevel = overlay.LogLevel
	}
	if overlay.DefaultProfile != "" {
		cfg.DefaultProfile = overlay.DefaultProfile
	}
	if overlay.Retries > 0 {
		cfg.Retries = overlay.Retries
	}
	if overlay.Profiling.DefaultThreads > 0 {
		cfg.Profiling = overlay.Profiling
	}
	if overlay.Policy != nil {
		cfg.Policy = overlay.Policy
	}

	if cfg.Profiles == nil {
		cfg.Profiles = make(map[string]Profile)
	}
	for name, p := range overlay.Profiles {
		cfg.Profiles[name] = p
	}

	if cfg.PerTool == nil {
		cfg.PerTool = make(map[string]ToolOverride)
	}
	for name, o := range overlay.PerTool {
		cfg.PerTool[name] = o
	}
}

// applyEnvOverrides reads JMO_THREADS, leaving the rest of the environment
// surface (JMO_PROFILE, JMO_ENCRYPTION_KEY, JMO_POLICY_*) to the callers
// that need them directly (profiling hook, store encryption, policy layer).
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("JMO_THREADS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Threads = ThreadSetting{Value: n}
		}
	}
}

// sanitize coerces invalid enum-like values to their defaults rather than
// failing configuration load.
func sanitize(cfg *Config) {
	if !validSeverities[cfg.FailOn] {
		cfg.FailOn = "HIGH"
	}
	if !validLogLevels[cfg.LogLevel] {
		cfg.LogLevel = "INFO"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 300
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
}

// ResolveProfile applies a named profile's overrides onto a copy of cfg.
func (c *Config) ResolveProfile(name string) *Config {
	if name == "" {
		name = c.DefaultProfile
	}
	p, ok := c.Profiles[name]
	if !ok {
		return c
	}

	resolved := *c
	if len(p.Tools) > 0 {
		resolved.Tools = p.Tools
	}
	if p.Threads.Auto || p.Threads.Value > 0 {
		resolved.Threads = p.Threads
	}
	if p.Timeout > 0 {
		resolved.Timeout = p.Timeout
	}
	if len(p.Include) > 0 {
		resolved.Include = p.Include
	}
	if len(p.Exclude) > 0 {
		resolved.Exclude = p.Exclude
	}
	if p.Retries > 0 {
		resolved.Retries = p.Retries
	}
	if p.PerTool != nil {
		merged := make(map[string]ToolOverride, len(c.PerTool)+len(p.PerTool))
		for k, v := range c.PerTool {
			merged[k] = v
		}
		for k, v := range p.PerTool {
			merged[k] = v
		}
		resolved.PerTool = merged
	}
	return &resolved
}

// ResolvedThreads returns the effective worker count, resolving "auto" to
// the number of available CPUs via the profiling hint bounds.
func (c *Config) ResolvedThreads(numCPU int) int {
	if !c.Threads.Auto && c.Threads.Value > 0 {
		return c.Threads.Value
	}
	n := numCPU
	if c.Profiling.MaxThreads > 0 && n > c.Profiling.MaxThreads {
		n = c.Profiling.MaxThreads
	}
	if c.Profiling.MinThreads > 0 && n < c.Profiling.MinThreads {
		n = c.Profiling.MinThreads
	}
	if n <= 0 {
		n = 1
	}
	return n
}
