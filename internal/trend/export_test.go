package trend

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"testing"
	"time"
)

func sampleSummary() Summary {
	return Summary{
		Branch:    "main",
		ScanCount: 2,
		Score:     7.5,
		SeverityTrends: SeverityTrends{
			Critical:   []int{2, 0},
			High:       []int{3, 1},
			Medium:     []int{1, 1},
			Low:        []int{0, 0},
			Info:       []int{0, 0},
			Total:      []int{6, 2},
			Timestamps: []int64{1000, 2000},
			ScanIDs:    []string{"scan-a", "scan-b"},
		},
		ScoreSeries:        []float64{4.0, 7.5},
		ImprovementMetrics: ImprovementMetrics{TotalChange: -4, CriticalChange: -2, HighChange: -2},
		ResolvedCount:      5,
		IntroducedCount:    1,
	}
}

func TestExportCSV_HeaderAndRows(t *testing.T) {
	summary := sampleSummary()
	out, err := ExportCSV(summary)
	if err != nil {
		t.Fatalf("ExportCSV failed: %v", err)
	}

	r := csv.NewReader(bytes.NewReader(out))
	rows, err := r.ReadAll()
	if err != nil {
		t.Fatalf("parsing csv: %v", err)
	}

	wantHeader := []string{"timestamp", "scan_id", "critical", "high", "medium", "low", "info", "total", "score", "remediation_rate"}
	if len(rows) == 0 {
		t.Fatal("expected at least a header row")
	}
	for i, col := range wantHeader {
		if rows[0][i] != col {
			t.Errorf("header[%d] = %q, want %q", i, rows[0][i], col)
		}
	}

	if len(rows)-1 != len(summary.SeverityTrends.Timestamps) {
		t.Fatalf("row count = %d, want %d", len(rows)-1, len(summary.SeverityTrends.Timestamps))
	}

	// first data row: i=0 has no predecessor, remediation_rate must be 0.0000
	if rows[1][9] != "0.0000" {
		t.Errorf("first row remediation_rate = %q, want 0.0000", rows[1][9])
	}
	// second row: |2-6| / max(1, scanCount-1=1) = 4
	if rows[2][9] != "4.0000" {
		t.Errorf("second row remediation_rate = %q, want 4.0000", rows[2][9])
	}
	if rows[2][7] != "2" {
		t.Errorf("second row total = %q, want 2", rows[2][7])
	}
}

func TestExportPrometheus_ContainsBranchLabeledGauges(t *testing.T) {
	summary := sampleSummary()
	out := ExportPrometheus(summary)
	body := string(out)

	wantSubstrings := []string{
		`jmo_findings_critical{branch="main"} 0`,
		`jmo_findings_high{branch="main"} 1`,
		`jmo_security_score{branch="main"} 7.5`,
		`jmo_scan_count{branch="main"} 2`,
	}
	for _, s := range wantSubstrings {
		if !bytes.Contains([]byte(body), []byte(s)) {
			t.Errorf("expected prometheus output to contain %q, got:\n%s", s, body)
		}
	}
}

func TestExportGrafana_FixedPanelLayout(t *testing.T) {
	summary := sampleSummary()
	out, err := ExportGrafana(summary)
	if err != nil {
		t.Fatalf("ExportGrafana failed: %v", err)
	}

	var dashboard GrafanaDashboard
	if err := json.Unmarshal(out, &dashboard); err != nil {
		t.Fatalf("unmarshaling dashboard: %v", err)
	}

	if len(dashboard.Panels) != 5 {
		t.Fatalf("panel count = %d, want 5", len(dashboard.Panels))
	}

	wantTitles := []string{"Critical findings", "High findings", "Security posture score", "Scan count", "Remediation rate"}
	for i, title := range wantTitles {
		if dashboard.Panels[i].Title != title {
			t.Errorf("panel[%d].Title = %q, want %q", i, dashboard.Panels[i].Title, title)
		}
	}
	if dashboard.Panels[2].Type != "gauge" {
		t.Errorf("score panel type = %q, want gauge", dashboard.Panels[2].Type)
	}
}

func TestExportDashboard_PercentChangeGuardsDivisionByZero(t *testing.T) {
	summary := sampleSummary()
	summary.SeverityTrends.Total = []int{0, 2}

	out, err := ExportDashboard(summary, time.Unix(1000, 0))
	if err != nil {
		t.Fatalf("ExportDashboard failed: %v", err)
	}

	var doc DashboardDocument
	if err := json.Unmarshal(out, &doc); err != nil {
		t.Fatalf("unmarshaling dashboard document: %v", err)
	}

	if doc.ImprovementMetrics.PercentChange != 0 {
		t.Errorf("PercentChange = %v, want 0 when the first scan has zero findings", doc.ImprovementMetrics.PercentChange)
	}
}

func TestExportDashboard_PercentChangeComputedWhenBaselineNonzero(t *testing.T) {
	summary := sampleSummary() // Total[0] = 6, TotalChange = -4
	out, err := ExportDashboard(summary, time.Unix(1000, 0))
	if err != nil {
		t.Fatalf("ExportDashboard failed: %v", err)
	}

	var doc DashboardDocument
	if err := json.Unmarshal(out, &doc); err != nil {
		t.Fatalf("unmarshaling dashboard document: %v", err)
	}

	want := -4.0 / 6.0 * 100
	if doc.ImprovementMetrics.PercentChange != want {
		t.Errorf("PercentChange = %v, want %v", doc.ImprovementMetrics.PercentChange, want)
	}
	if doc.Metadata.ScanCount != 2 {
		t.Errorf("ScanCount = %d, want 2", doc.Metadata.ScanCount)
	}
}
