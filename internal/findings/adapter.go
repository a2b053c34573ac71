package findings

import (
	"encoding/json"

	"github.com/jmo-security/jmo/internal/logging"
)

// Adapter translates one tool's raw output bytes into CommonFinding records.
// Adapters are pure: (toolName, targetName, output) -> findings. They MUST
// fail soft (spec §4.2): malformed or partial input yields zero findings and
// a logged warning, never an error that halts aggregation.
type Adapter func(toolName, targetName string, output []byte) []CommonFinding

// registry is the process-wide adapter catalog, populated by init()
// functions in this package (the plugin-catalog idiom of spec §9).
var registry = map[string]Adapter{}

// RegisterAdapter adds an adapter to the process-wide catalog. Intended to
// be called from package-level init() functions.
func RegisterAdapter(toolName string, a Adapter) {
	registry[toolName] = a
}

// AdapterFor returns the registered adapter for a tool, or the generic
// fallback adapter if none is registered.
func AdapterFor(toolName string) Adapter {
	if a, ok := registry[toolName]; ok {
		return a
	}
	return genericAdapter
}

// Parse routes tool output through the registered (or generic) adapter,
// catching panics so a malformed adapter can never halt aggregation.
func Parse(toolName, targetName string, output []byte) (result []CommonFinding) {
	defer func() {
		if r := recover(); r != nil {
			logging.WithTool(toolName).Warn("adapter panicked, skipping", "target", targetName, "panic", r)
			result = nil
		}
	}()
	return AdapterFor(toolName)(toolName, targetName, output)
}

// rawFindingMap is the loosely-typed shape most scanner JSON outputs share
// closely enough to parse generically: a flat map of common field name
// variants. Unrecognized or missing fields are simply absent, never
// defaulted to sentinel values (spec §4.2 adapter contract).
type rawFindingMap map[string]interface{}

func getString(m rawFindingMap, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func getInt(m rawFindingMap, keys ...string) int {
	for _, k := range keys {
		switch v := m[k].(type) {
		case float64:
			return int(v)
		case int:
			return v
		}
	}
	return 0
}

func getStringSlice(m rawFindingMap, keys ...string) []string {
	for _, k := range keys {
		if arr, ok := m[k].([]interface{}); ok {
			out := make([]string, 0, len(arr))
			for _, v := range arr {
				if s, ok := v.(string); ok {
					out = append(out, s)
				}
			}
			if len(out) > 0 {
				return out
			}
		}
	}
	return nil
}

// logWarn centralizes the "fail soft" logging adapters perform on malformed
// input (spec §4.2): a logged warning, never an error that halts aggregation.
func logWarn(toolName, targetName, msg string, err error) {
	logging.WithTool(toolName).Warn(msg, "target", targetName, "error", err)
}

// decodeArtifact accepts either a bare JSON array of finding maps, or the
// {"findings": [...]} envelope (spec §6 "Tool artifact formats").
func decodeArtifact(output []byte) []rawFindingMap {
	var asArray []rawFindingMap
	if err := json.Unmarshal(output, &asArray); err == nil {
		return asArray
	}

	var envelope struct {
		Findings []rawFindingMap `json:"findings"`
	}
	if err := json.Unmarshal(output, &envelope); err == nil {
		return envelope.Findings
	}

	return nil
}

// normalizeSeverity maps a tool-native severity string to the closed
// lattice, falling back to INFO for unrecognized values. Mapping is
// adapter-local but stable across runs (spec §4.2).
func normalizeSeverity(s string) Severity {
	switch upper(s) {
	case "CRITICAL", "CRIT":
		return SeverityCritical
	case "HIGH", "ERROR":
		return SeverityHigh
	case "MEDIUM", "MED", "MODERATE", "WARNING", "WARN":
		return SeverityMedium
	case "LOW":
		return SeverityLow
	case "INFO", "INFORMATIONAL", "NOTE", "UNKNOWN", "":
		return SeverityInfo
	default:
		return SeverityInfo
	}
}

func upper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - ('a' - 'A')
		}
	}
	return string(b)
}
