package findings

import (
	"encoding/json"
	"fmt"
	"strings"
)

// trivyOutput mirrors trivy's `--format json` report shape: a top-level
// Results array, one entry per scanned artifact (package lockfile, OS
// package DB, IaC file, ...), each optionally carrying Vulnerabilities
// and/or Misconfigurations and/or Secrets depending on which trivy
// scanner produced it.
type trivyOutput struct {
	Results []struct {
		Target            string               `json:"Target"`
		Vulnerabilities   []trivyVulnerability `json:"Vulnerabilities"`
		Misconfigurations []trivyMisconfig     `json:"Misconfigurations"`
		Secrets           []trivySecret        `json:"Secrets"`
	} `json:"Results"`
}

type trivyVulnerability struct {
	VulnerabilityID  string   `json:"VulnerabilityID"`
	PkgName          string   `json:"PkgName"`
	InstalledVersion string   `json:"InstalledVersion"`
	FixedVersion     string   `json:"FixedVersion"`
	Title            string   `json:"Title"`
	Description      string   `json:"Description"`
	Severity         string   `json:"Severity"`
	References       []string `json:"References"`
	CVSS             map[string]struct {
		V3Score float64 `json:"V3Score"`
	} `json:"CVSS"`
}

type trivyMisconfig struct {
	ID          string `json:"ID"`
	Title       string `json:"Title"`
	Description string `json:"Description"`
	Message     string `json:"Message"`
	Severity    string `json:"Severity"`
	Resolution  string `json:"Resolution"`
	CauseMetadata struct {
		StartLine int `json:"StartLine"`
		EndLine   int `json:"EndLine"`
	} `json:"CauseMetadata"`
}

type trivySecret struct {
	RuleID    string `json:"RuleID"`
	Category  string `json:"Category"`
	Severity  string `json:"Severity"`
	Title     string `json:"Title"`
	StartLine int    `json:"StartLine"`
	EndLine   int    `json:"EndLine"`
}

// trivyAdapter fans a single trivy report into one CommonFinding per
// vulnerability, misconfiguration, and secret finding, each grounded on
// trivy's own already-closed severity enum (UNKNOWN/LOW/MEDIUM/HIGH/CRITICAL
// maps directly onto this system's lattice with no adapter-local guessing).
func trivyAdapter(toolName, targetName string, output []byte) []CommonFinding {
	var parsed trivyOutput
	if err := json.Unmarshal(output, &parsed); err != nil {
		logWarn(toolName, targetName, "malformed trivy output", err)
		return nil
	}

	var out []CommonFinding
	for _, res := range parsed.Results {
		path := normalizePath(res.Target)

		for _, v := range res.Vulnerabilities {
			message := v.Title
			if message == "" {
				message = v.Description
			}
			if message == "" {
				continue
			}
			severity := trivySeverity(v.Severity)

			var cvss *float64
			for _, score := range v.CVSS {
				if score.V3Score > 0 {
					s := score.V3Score
					cvss = &s
					break
				}
			}

			raw, _ := json.Marshal(v)
			cf := CommonFinding{
				SchemaVersion: SchemaVersion,
				Severity:      severity,
				RuleID:        v.VulnerabilityID,
				Tool:          Tool{Name: toolName},
				Path:          path,
				Message:       fmt.Sprintf("%s (%s %s)", message, v.PkgName, v.InstalledVersion),
				Remediation:   fixRemediation(v.FixedVersion),
				References:    v.References,
				Tags:          []string{"vulnerability", v.PkgName},
				CVSSScore:     cvss,
				Raw:           raw,
			}
			cf.Fingerprint = Fingerprint(toolName, v.VulnerabilityID, path, 0, cf.Message)
			out = append(out, cf)
		}

		for _, m := range res.Misconfigurations {
			message := m.Message
			if message == "" {
				message = m.Title
			}
			if message == "" {
				continue
			}
			raw, _ := json.Marshal(m)
			cf := CommonFinding{
				SchemaVersion: SchemaVersion,
				Severity:      trivySeverity(m.Severity),
				RuleID:        m.ID,
				Tool:          Tool{Name: toolName},
				Path:          path,
				StartLine:     m.CauseMetadata.StartLine,
				EndLine:       m.CauseMetadata.EndLine,
				Message:       message,
				Title:         m.Title,
				Remediation:   m.Resolution,
				Tags:          []string{"misconfiguration"},
				Raw:           raw,
			}
			cf.Fingerprint = Fingerprint(toolName, m.ID, path, m.CauseMetadata.StartLine, message)
			out = append(out, cf)
		}

		for _, s := range res.Secrets {
			if s.Title == "" {
				continue
			}
			raw, _ := json.Marshal(s)
			cf := CommonFinding{
				SchemaVersion: SchemaVersion,
				Severity:      trivySeverity(s.Severity),
				RuleID:        s.RuleID,
				Tool:          Tool{Name: toolName},
				Path:          path,
				StartLine:     s.StartLine,
				EndLine:       s.EndLine,
				Message:       s.Title,
				Tags:          []string{"secret", s.Category},
				Raw:           raw,
			}
			cf.Fingerprint = Fingerprint(toolName, s.RuleID, path, s.StartLine, s.Title)
			out = append(out, cf)
		}
	}
	return out
}

func fixRemediation(fixedVersion string) string {
	if fixedVersion == "" {
		return ""
	}
	return "upgrade to " + fixedVersion
}

// trivySeverity maps trivy's own closed severity enum directly onto the
// lattice; trivy's UNKNOWN has no sensible CRITICAL..LOW mapping so it
// falls to INFO rather than being guessed.
func trivySeverity(s string) Severity {
	switch strings.ToUpper(s) {
	case "CRITICAL":
		return SeverityCritical
	case "HIGH":
		return SeverityHigh
	case "MEDIUM":
		return SeverityMedium
	case "LOW":
		return SeverityLow
	default:
		return SeverityInfo
	}
}

func init() {
	RegisterAdapter("trivy", trivyAdapter)
}
