package findings

import "encoding/json"

// genericAdapter is the fallback adapter used for any tool without a
// dedicated registration. It tolerates the common field-name variants
// ("rule_id"/"ruleId"/"check_id", "path"/"file"/"filename", "line"/"start_line",
// "message"/"description"/"title") seen across the scanner ecosystem.
func genericAdapter(toolName, targetName string, output []byte) []CommonFinding {
	raws := decodeArtifact(output)
	if raws == nil {
		return nil
	}

	out := make([]CommonFinding, 0, len(raws))
	for _, m := range raws {
		message := getString(m, "message", "description", "title")
		if message == "" {
			// adapter contract: message is required; skip records that can't
			// satisfy it rather than filling a sentinel.
			continue
		}

		path := normalizePath(getString(m, "path", "file", "filename", "location"))
		ruleID := getString(m, "rule_id", "ruleId", "check_id", "id")
		startLine := getInt(m, "start_line", "startLine", "line")
		severity := normalizeSeverity(getString(m, "severity", "level", "risk"))

		raw, _ := json.Marshal(m)

		cf := CommonFinding{
			SchemaVersion: SchemaVersion,
			Severity:      severity,
			RuleID:        ruleID,
			Tool:          Tool{Name: toolName},
			Path:          path,
			StartLine:     startLine,
			EndLine:       getInt(m, "end_line", "endLine"),
			Message:       message,
			Title:         getString(m, "title"),
			Remediation:   getString(m, "remediation", "fix"),
			References:    getStringSlice(m, "references"),
			Tags:          getStringSlice(m, "tags"),
			Raw:           raw,
		}
		cf.Fingerprint = Fingerprint(toolName, ruleID, path, startLine, message)
		out = append(out, cf)
	}
	return out
}

func init() {
	// The generic adapter is the implicit default (see AdapterFor); no
	// explicit registration needed, but tools with no special handling can
	// be registered to it directly for discoverability in the catalog.
}
