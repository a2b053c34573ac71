package findings

import "encoding/json"

// trufflehogAdapter parses trufflehog's secret-scanner output. Each record
// is a detected secret; trufflehog does not emit a severity field natively,
// so every finding starts at INFO and is coerced to LOW when the secret was
// verified live (spec §9 open question: severity coercion is adapter-local
// policy, not a core invariant; this is the one adapter in this catalog that
// performs it, matching the reference implementation's documented example).
func trufflehogAdapter(toolName, targetName string, output []byte) []CommonFinding {
	raws := decodeArtifact(output)
	if raws == nil {
		return nil
	}

	out := make([]CommonFinding, 0, len(raws))
	for _, m := range raws {
		path := normalizePath(getString(m, "path", "file", "SourceMetadata_file"))
		ruleID := getString(m, "DetectorName", "rule_id", "detector")
		if ruleID == "" {
			ruleID = "secret"
		}

		message := getString(m, "message")
		if message == "" {
			message = "Potential secret detected by " + ruleID
		}

		startLine := getInt(m, "line", "start_line")

		severity := SeverityInfo
		if verified, ok := m["Verified"].(bool); ok && verified {
			severity = SeverityLow
		}

		raw, _ := json.Marshal(m)

		cf := CommonFinding{
			SchemaVersion: SchemaVersion,
			Severity:      severity,
			RuleID:        ruleID,
			Tool:          Tool{Name: toolName},
			Path:          path,
			StartLine:     startLine,
			Message:       message,
			Raw:           raw,
		}
		cf.Fingerprint = Fingerprint(toolName, ruleID, path, startLine, message)
		out = append(out, cf)
	}
	return out
}

func init() {
	RegisterAdapter("trufflehog", trufflehogAdapter)
}
