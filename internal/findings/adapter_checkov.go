package findings

import "encoding/json"

// checkovOutput mirrors checkov's `-o json --compact` shape: a single
// report object (not an array) with `results.failed_checks` carrying the
// only entries this adapter cares about (passed checks are not findings).
type checkovOutput struct {
	CheckType string `json:"check_type"`
	Results   struct {
		FailedChecks []checkovCheck `json:"failed_checks"`
	} `json:"results"`
}

// checkovMultiOutput is the `--compact` multi-framework shape: an array of
// per-framework reports when more than one check type runs in one pass.
type checkovMultiOutput []checkovOutput

type checkovCheck struct {
	CheckID       string `json:"check_id"`
	CheckName     string `json:"check_name"`
	FilePath      string `json:"file_path"`
	FileLineRange []int  `json:"file_line_range"`
	Guideline     string `json:"guideline"`
	Severity      string `json:"severity"`
}

// checkovAdapter accepts either the single-report object or the
// multi-framework array checkov emits depending on how many `--framework`
// flags were passed (spec §4.2 adapter contract: tolerate the shapes a
// real invocation can actually produce).
func checkovAdapter(toolName, targetName string, output []byte) []CommonFinding {
	var reports []checkovOutput

	var multi checkovMultiOutput
	if err := json.Unmarshal(output, &multi); err == nil && len(multi) > 0 {
		reports = multi
	} else {
		var single checkovOutput
		if err := json.Unmarshal(output, &single); err != nil {
			logWarn(toolName, targetName, "malformed checkov output", err)
			return nil
		}
		reports = []checkovOutput{single}
	}

	var out []CommonFinding
	for _, report := range reports {
		for _, c := range report.Results.FailedChecks {
			if c.CheckName == "" {
				continue
			}
			path := normalizePath(c.FilePath)
			startLine := 0
			endLine := 0
			if len(c.FileLineRange) > 0 {
				startLine = c.FileLineRange[0]
			}
			if len(c.FileLineRange) > 1 {
				endLine = c.FileLineRange[1]
			}

			severity := normalizeSeverity(c.Severity)
			if severity == SeverityInfo && c.Severity == "" {
				// checkov's free tier omits severity entirely; a failed
				// IaC policy check still warrants attention by default.
				severity = SeverityMedium
			}

			raw, _ := json.Marshal(c)
			cf := CommonFinding{
				SchemaVersion: SchemaVersion,
				Severity:      severity,
				RuleID:        c.CheckID,
				Tool:          Tool{Name: toolName},
				Path:          path,
				StartLine:     startLine,
				EndLine:       endLine,
				Message:       c.CheckName,
				Remediation:   c.Guideline,
				Tags:          []string{"iac", report.CheckType},
				Raw:           raw,
			}
			cf.Fingerprint = Fingerprint(toolName, c.CheckID, path, startLine, c.CheckName)
			out = append(out, cf)
		}
	}
	return out
}

func init() {
	RegisterAdapter("checkov", checkovAdapter)
}
