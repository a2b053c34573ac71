package findings

import (
	"encoding/json"
	"strings"
)

// hadolintFinding mirrors one entry of hadolint's `--format json` output: a
// bare JSON array, each element a single Dockerfile lint violation.
type hadolintFinding struct {
	Code    string `json:"code"`
	File    string `json:"file"`
	Line    int    `json:"line"`
	Column  int    `json:"column"`
	Level   string `json:"level"`
	Message string `json:"message"`
}

// hadolintAdapter maps hadolint's error/warning/info/style levels onto the
// closed lattice; "style" findings are cosmetic and map to INFO.
func hadolintAdapter(toolName, targetName string, output []byte) []CommonFinding {
	var findings []hadolintFinding
	if err := json.Unmarshal(output, &findings); err != nil {
		logWarn(toolName, targetName, "malformed hadolint output", err)
		return nil
	}

	out := make([]CommonFinding, 0, len(findings))
	for _, h := range findings {
		if h.Message == "" {
			continue
		}
		path := normalizePath(h.File)
		raw, _ := json.Marshal(h)

		cf := CommonFinding{
			SchemaVersion: SchemaVersion,
			Severity:      hadolintSeverity(h.Level),
			RuleID:        h.Code,
			Tool:          Tool{Name: toolName},
			Path:          path,
			StartLine:     h.Line,
			Message:       h.Message,
			Tags:          []string{"dockerfile"},
			Raw:           raw,
		}
		cf.Fingerprint = Fingerprint(toolName, h.Code, path, h.Line, h.Message)
		out = append(out, cf)
	}
	return out
}

func hadolintSeverity(level string) Severity {
	switch strings.ToLower(level) {
	case "error":
		return SeverityHigh
	case "warning":
		return SeverityMedium
	case "info":
		return SeverityLow
	case "style":
		return SeverityInfo
	default:
		return SeverityInfo
	}
}

func init() {
	RegisterAdapter("hadolint", hadolintAdapter)
}
