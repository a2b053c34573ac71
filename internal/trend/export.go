package trend

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// ExportCSV writes one row per scan: timestamp, severity columns, score, and
// remediation rate (spec §4.4 "Exports").
func ExportCSV(summary Summary) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"timestamp", "scan_id", "critical", "high", "medium", "low", "info", "total", "score", "remediation_rate"}); err != nil {
		return nil, err
	}

	n := len(summary.SeverityTrends.Timestamps)
	for i := 0; i < n; i++ {
		var score float64
		if i < len(summary.ScoreSeries) {
			score = summary.ScoreSeries[i]
		}
		rate := remediationRate(summary, i)
		row := []string{
			strconv.FormatInt(summary.SeverityTrends.Timestamps[i], 10),
			summary.SeverityTrends.ScanIDs[i],
			strconv.Itoa(summary.SeverityTrends.Critical[i]),
			strconv.Itoa(summary.SeverityTrends.High[i]),
			strconv.Itoa(summary.SeverityTrends.Medium[i]),
			strconv.Itoa(summary.SeverityTrends.Low[i]),
			strconv.Itoa(summary.SeverityTrends.Info[i]),
			strconv.Itoa(summary.SeverityTrends.Total[i]),
			strconv.FormatFloat(score, 'f', 1, 64),
			strconv.FormatFloat(rate, 'f', 4, 64),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// remediationRate is |net_change| / max(1, scan_count - 1), where net_change
// is the change in total findings from the first scan to scan index i and
// scan_count is the window's ScanCount; it is 0 for i == 0.
func remediationRate(summary Summary, i int) float64 {
	if i == 0 {
		return 0
	}
	netChange := summary.SeverityTrends.Total[i] - summary.SeverityTrends.Total[0]
	denom := math.Max(1, float64(summary.ScanCount-1))
	return math.Abs(float64(netChange)) / denom
}

// ExportPrometheus renders gauges for latest severity counts, score,
// remediation/introduction rates, and scan count in Prometheus text
// exposition format.
func ExportPrometheus(summary Summary) []byte {
	var buf bytes.Buffer

	writeGauge := func(name, help string, value float64, labels string) {
		fmt.Fprintf(&buf, "# HELP %s %s\n", name, help)
		fmt.Fprintf(&buf, "# TYPE %s gauge\n", name)
		if labels != "" {
			fmt.Fprintf(&buf, "%s{%s} %v\n", name, labels, value)
		} else {
			fmt.Fprintf(&buf, "%s %v\n", name, value)
		}
	}

	branchLabel := fmt.Sprintf(`branch="%s"`, summary.Branch)

	var latest SeverityCounts
	n := len(summary.SeverityTrends.Total)
	if n > 0 {
		latest = SeverityCounts{
			Critical: summary.SeverityTrends.Critical[n-1],
			High:     summary.SeverityTrends.High[n-1],
			Medium:   summary.SeverityTrends.Medium[n-1],
			Low:      summary.SeverityTrends.Low[n-1],
			Info:     summary.SeverityTrends.Info[n-1],
		}
	}

	writeGauge("jmo_findings_critical", "latest critical finding count", float64(latest.Critical), branchLabel)
	writeGauge("jmo_findings_high", "latest high finding count", float64(latest.High), branchLabel)
	writeGauge("jmo_findings_medium", "latest medium finding count", float64(latest.Medium), branchLabel)
	writeGauge("jmo_findings_low", "latest low finding count", float64(latest.Low), branchLabel)
	writeGauge("jmo_findings_info", "latest info finding count", float64(latest.Info), branchLabel)
	writeGauge("jmo_security_score", "security posture score (0-10)", summary.Score, branchLabel)
	writeGauge("jmo_scan_count", "number of scans in the analysis window", float64(summary.ScanCount), branchLabel)

	var rate float64
	if n > 0 {
		rate = remediationRate(summary, n-1)
	}
	writeGauge("jmo_remediation_rate", "net-change remediation rate over the window", rate, branchLabel)
	writeGauge("jmo_introduction_rate", "findings introduced in the window", float64(summary.IntroducedCount), branchLabel)
	writeGauge("jmo_resolution_rate", "findings resolved in the window", float64(summary.ResolvedCount), branchLabel)

	return buf.Bytes()
}

// GrafanaDashboard is a minimal fixed-layout Grafana dashboard model
// matching the reference exporter's panel set.
type GrafanaDashboard struct {
	Title  string         `json:"title"`
	Panels []GrafanaPanel `json:"panels"`
}

// GrafanaPanel is one panel in the fixed dashboard layout.
type GrafanaPanel struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
	Type  string `json:"type"`
	GridPos struct {
		H int `json:"h"`
		W int `json:"w"`
		X int `json:"x"`
		Y int `json:"y"`
	} `json:"gridPos"`
	Targets []map[string]string `json:"targets"`
}

// ExportGrafana builds a fixed-panel-layout Grafana dashboard JSON document
// for summary: time-series panels for the critical and high counts, a score
// gauge, and stat panels for the scan count and the remediation rate.
func ExportGrafana(summary Summary) ([]byte, error) {
	dashboard := GrafanaDashboard{Title: fmt.Sprintf("jmo security trends: %s", summary.Branch)}

	panel := func(id int, title, panelType, metric string, x, y, w, h int) GrafanaPanel {
		p := GrafanaPanel{ID: id, Title: title, Type: panelType}
		p.GridPos.X, p.GridPos.Y, p.GridPos.W, p.GridPos.H = x, y, w, h
		p.Targets = []map[string]string{{"expr": metric}}
		return p
	}

	dashboard.Panels = []GrafanaPanel{
		panel(1, "Critical findings", "timeseries", `jmo_findings_critical{branch="`+summary.Branch+`"}`, 0, 0, 12, 8),
		panel(2, "High findings", "timeseries", `jmo_findings_high{branch="`+summary.Branch+`"}`, 12, 0, 12, 8),
		panel(3, "Security posture score", "gauge", `jmo_security_score{branch="`+summary.Branch+`"}`, 0, 8, 8, 8),
		panel(4, "Scan count", "stat", `jmo_scan_count{branch="`+summary.Branch+`"}`, 8, 8, 8, 8),
		panel(5, "Remediation rate", "stat", `jmo_remediation_rate{branch="`+summary.Branch+`"}`, 16, 8, 8, 8),
	}

	return json.MarshalIndent(dashboard, "", "  ")
}

// DashboardDocument is the compact dashboard JSON shape described in spec §6.
type DashboardDocument struct {
	Version      string   `json:"version"`
	GeneratedAt  string   `json:"generated_at"`
	SecurityScore float64 `json:"security_score"`
	ScoreTrend   string   `json:"score_trend"`
	ScoreGrade   string   `json:"score_grade"`

	Metadata struct {
		Branch    string `json:"branch"`
		ScanCount int    `json:"scan_count"`
		DateRange struct {
			From string `json:"from"`
			To   string `json:"to"`
		} `json:"date_range"`
	} `json:"metadata"`

	SeverityTrends struct {
		BySeverity map[string][]int `json:"by_severity"`
		Total      []int            `json:"total"`
		Timestamps []int64          `json:"timestamps"`
	} `json:"severity_trends"`

	Insights    []Insight    `json:"insights"`
	Regressions []Regression `json:"regressions"`

	ImprovementMetrics struct {
		NetChange     int            `json:"net_change"`
		Resolved      int            `json:"resolved"`
		Introduced    int            `json:"introduced"`
		PercentChange float64        `json:"percent_change"`
		BySeverity    map[string]int `json:"by_severity"`
	} `json:"improvement_metrics"`

	TopRules []RuleCount `json:"top_rules"`
}

// ExportDashboard builds the compact dashboard JSON document for summary,
// stamped with generatedAt (callers supply the timestamp; this package
// performs no wall-clock reads of its own).
func ExportDashboard(summary Summary, generatedAt time.Time) ([]byte, error) {
	doc := DashboardDocument{
		Version:       "1.0.0",
		GeneratedAt:   generatedAt.UTC().Format(time.RFC3339),
		SecurityScore: summary.Score,
		ScoreTrend:    string(summary.ScoreTrend.Trend),
		ScoreGrade:    summary.ScoreGrade,
	}

	doc.Metadata.Branch = summary.Branch
	doc.Metadata.ScanCount = summary.ScanCount
	if n := len(summary.SeverityTrends.Timestamps); n > 0 {
		doc.Metadata.DateRange.From = time.Unix(summary.SeverityTrends.Timestamps[0], 0).UTC().Format(time.RFC3339)
		doc.Metadata.DateRange.To = time.Unix(summary.SeverityTrends.Timestamps[n-1], 0).UTC().Format(time.RFC3339)
	}

	doc.SeverityTrends.BySeverity = map[string][]int{
		"critical": summary.SeverityTrends.Critical,
		"high":     summary.SeverityTrends.High,
		"medium":   summary.SeverityTrends.Medium,
		"low":      summary.SeverityTrends.Low,
		"info":     summary.SeverityTrends.Info,
	}
	doc.SeverityTrends.Total = summary.SeverityTrends.Total
	doc.SeverityTrends.Timestamps = summary.SeverityTrends.Timestamps

	doc.Insights = summary.Insights
	doc.Regressions = summary.Regressions

	doc.ImprovementMetrics.NetChange = summary.ImprovementMetrics.TotalChange
	doc.ImprovementMetrics.Resolved = summary.ResolvedCount
	doc.ImprovementMetrics.Introduced = summary.IntroducedCount
	doc.ImprovementMetrics.BySeverity = map[string]int{
		"critical": summary.ImprovementMetrics.CriticalChange,
		"high":     summary.ImprovementMetrics.HighChange,
	}
	if n := len(summary.SeverityTrends.Total); n > 0 && summary.SeverityTrends.Total[0] != 0 {
		doc.ImprovementMetrics.PercentChange = float64(summary.ImprovementMetrics.TotalChange) / float64(summary.SeverityTrends.Total[0]) * 100
	}

	doc.TopRules = summary.TopRules

	return json.MarshalIndent(doc, "", "  ")
}
