package findings

import "testing"

func TestCluster_GroupsByRulePathLine(t *testing.T) {
	findingsList := []CommonFinding{
		{Fingerprint: "fp-semgrep", Tool: Tool{Name: "semgrep"}, RuleID: "SQLI", Path: "a.go", StartLine: 5, Severity: SeverityHigh},
		{Fingerprint: "fp-trivy", Tool: Tool{Name: "trivy"}, RuleID: "sqli", Path: "a.go", StartLine: 5, Severity: SeverityCritical},
		{Fingerprint: "fp-other", Tool: Tool{Name: "checkov"}, RuleID: "XSS", Path: "b.go", StartLine: 1, Severity: SeverityLow},
	}

	out := Cluster(findingsList)
	if len(out) != 2 {
		t.Fatalf("expected 2 clusters, got %d", len(out))
	}

	rep := out[0]
	if rep.Fingerprint != "fp-trivy" {
		t.Errorf("expected higher-severity member (trivy, CRITICAL) as representative, got %q", rep.Fingerprint)
	}
	if len(rep.RelatedFindings) != 1 || rep.RelatedFindings[0] != "fp-semgrep" {
		t.Errorf("expected related findings [fp-semgrep], got %v", rep.RelatedFindings)
	}

	solo := out[1]
	if solo.Fingerprint != "fp-other" || len(solo.RelatedFindings) != 0 {
		t.Errorf("unclustered finding should pass through unchanged, got %+v", solo)
	}
}

func TestCluster_TieBreaksByFingerprint(t *testing.T) {
	findingsList := []CommonFinding{
		{Fingerprint: "bbb", RuleID: "R", Path: "x.go", StartLine: 1, Severity: SeverityHigh},
		{Fingerprint: "aaa", RuleID: "R", Path: "x.go", StartLine: 1, Severity: SeverityHigh},
	}
	out := Cluster(findingsList)
	if len(out) != 1 {
		t.Fatalf("expected 1 cluster, got %d", len(out))
	}
	if out[0].Fingerprint != "aaa" {
		t.Errorf("expected lexicographically smaller fingerprint to win the tie, got %q", out[0].Fingerprint)
	}
}
