package findings

import (
	"encoding/json"
	"strings"
)

// semgrepResult mirrors the shape of semgrep's `--json` output (the field
// names and nesting match semgrep's own `results[].extra` envelope, the same
// shape the catalog's semgrep runner already parses textually elsewhere in
// this codebase's ancestry).
type semgrepOutput struct {
	Results []struct {
		CheckID string `json:"check_id"`
		Path    string `json:"path"`
		Start   struct {
			Line int `json:"line"`
			Col  int `json:"col"`
		} `json:"start"`
		End struct {
			Line int `json:"line"`
		} `json:"end"`
		Extra struct {
			Lines    string                 `json:"lines"`
			Message  string                 `json:"message"`
			Severity string                 `json:"severity"`
			Metadata map[string]interface{} `json:"metadata"`
		} `json:"extra"`
	} `json:"results"`
	Errors []struct {
		Level   string `json:"level"`
		Message string `json:"message"`
	} `json:"errors"`
}

// semgrepAdapter maps semgrep's ERROR/WARNING/INFO severities onto the
// closed lattice (spec §4.2): ERROR is a confirmed code-pattern match and
// maps to HIGH, WARNING to MEDIUM, INFO to LOW, anything else falls to INFO.
func semgrepAdapter(toolName, targetName string, output []byte) []CommonFinding {
	var parsed semgrepOutput
	if err := json.Unmarshal(output, &parsed); err != nil {
		logWarn(toolName, targetName, "malformed semgrep output", err)
		return nil
	}

	out := make([]CommonFinding, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		if r.Extra.Message == "" {
			continue
		}

		path := normalizePath(r.Path)
		severity := semgrepSeverity(r.Extra.Severity)
		category, _ := r.Extra.Metadata["category"].(string)
		remediation, _ := r.Extra.Metadata["fix"].(string)
		cwe := metadataStringSlice(r.Extra.Metadata, "cwe")
		owasp := metadataStringSlice(r.Extra.Metadata, "owasp")
		references := metadataStringSlice(r.Extra.Metadata, "references")

		raw, _ := json.Marshal(r)

		cf := CommonFinding{
			SchemaVersion: SchemaVersion,
			Severity:      severity,
			RuleID:        r.CheckID,
			Tool:          Tool{Name: toolName},
			Path:          path,
			StartLine:     r.Start.Line,
			EndLine:       r.End.Line,
			Message:       r.Extra.Message,
			Title:         category,
			Remediation:   remediation,
			References:    references,
			Tags:          []string{"sast"},
			Raw:           raw,
		}
		if len(cwe) > 0 || len(owasp) > 0 {
			cf.Compliance = &Compliance{}
			if len(cwe) > 0 {
				cf.Compliance.CweTop25_2024, _ = json.Marshal(cwe)
			}
			if len(owasp) > 0 {
				cf.Compliance.OwaspTop10_2021, _ = json.Marshal(owasp)
			}
		}
		cf.Fingerprint = Fingerprint(toolName, r.CheckID, path, r.Start.Line, r.Extra.Message)
		out = append(out, cf)
	}
	return out
}

// semgrepSeverity maps semgrep's own three-level severity to the five-level
// lattice. This mapping is adapter-local policy (spec §4.2): stable across
// runs, but not shared with any other adapter.
func semgrepSeverity(s string) Severity {
	switch strings.ToUpper(s) {
	case "ERROR":
		return SeverityHigh
	case "WARNING":
		return SeverityMedium
	case "INFO":
		return SeverityLow
	default:
		return SeverityInfo
	}
}

func metadataStringSlice(m map[string]interface{}, key string) []string {
	switch v := m[key].(type) {
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return []string{v}
	default:
		return nil
	}
}

func init() {
	RegisterAdapter("semgrep", semgrepAdapter)
}
