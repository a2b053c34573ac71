package trend

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jmo-security/jmo/internal/findings"
	"github.com/jmo-security/jmo/internal/gitctx"
	"github.com/jmo-security/jmo/internal/history"
)

func findingWithSeverity(fp string, sev findings.Severity) findings.CommonFinding {
	return findings.CommonFinding{
		Fingerprint: fp,
		Severity:    sev,
		RuleID:      "R",
		Tool:        findings.Tool{Name: "semgrep"},
		Path:        "a.go",
		Message:     "m",
	}
}

func TestAnalyze_ImprovingTrend(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")
	store, err := history.Open(dbPath)
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	firstDoc := &findings.Document{Findings: []findings.CommonFinding{
		findingWithSeverity("fp1", findings.SeverityCritical),
		findingWithSeverity("fp2", findings.SeverityHigh),
		findingWithSeverity("fp3", findings.SeverityHigh),
		findingWithSeverity("fp4", findings.SeverityMedium),
		findingWithSeverity("fp6", findings.SeverityMedium),
		findingWithSeverity("fp7", findings.SeverityMedium),
		findingWithSeverity("fp8", findings.SeverityMedium),
	}}
	secondDoc := &findings.Document{Findings: []findings.CommonFinding{
		findingWithSeverity("fp5", findings.SeverityLow),
	}}

	if _, err := store.StoreScan(ctx, history.StoreScanInput{
		ResultsDir: t.TempDir(), Profile: "balanced", Document: firstDoc,
		GitContext: gitctx.Context{Branch: "main"},
	}); err != nil {
		t.Fatalf("StoreScan (first) failed: %v", err)
	}
	if _, err := store.StoreScan(ctx, history.StoreScanInput{
		ResultsDir: t.TempDir(), Profile: "balanced", Document: secondDoc,
		GitContext: gitctx.Context{Branch: "main"},
	}); err != nil {
		t.Fatalf("StoreScan (second) failed: %v", err)
	}

	summary, err := Analyze(ctx, store, "main", 90)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if summary.ScanCount != 2 {
		t.Fatalf("ScanCount = %d, want 2", summary.ScanCount)
	}
	if summary.ImprovementMetrics.Trend != TrendImproving {
		t.Errorf("expected improving trend (7 findings -> 1), got %q (totalChange=%d)",
			summary.ImprovementMetrics.Trend, summary.ImprovementMetrics.TotalChange)
	}
	if summary.ResolvedCount != 7 || summary.IntroducedCount != 1 {
		t.Errorf("ResolvedCount/IntroducedCount = %d/%d, want 7/1", summary.ResolvedCount, summary.IntroducedCount)
	}
	if summary.Score <= Score(SeverityCounts{Critical: 1, High: 2, Medium: 4}) {
		t.Errorf("second scan's score should exceed the first's, got %v", summary.Score)
	}
}

func TestAnalyze_EmptyBranchReturnsZeroScans(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")
	store, err := history.Open(dbPath)
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	defer store.Close()

	summary, err := Analyze(context.Background(), store, "nonexistent", 90)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if summary.ScanCount != 0 {
		t.Errorf("ScanCount = %d, want 0", summary.ScanCount)
	}
	if summary.ImprovementMetrics.Trend != TrendInsufficientData {
		t.Errorf("expected insufficient_data trend, got %q", summary.ImprovementMetrics.Trend)
	}
}
