package trend

import (
	"context"
	"fmt"

	"github.com/jmo-security/jmo/internal/history"
)

// ScanPoint is one scan's trend-relevant projection: identity, timestamp,
// and severity counts.
type ScanPoint struct {
	ID        string
	Timestamp int64
	Counts    SeverityCounts
}

// RuleCount is one (rule_id, severity) aggregate across a window of scans.
type RuleCount struct {
	RuleID   string
	Severity string
	Count    int
}

// ImprovementTrend classifies the net change in total findings across a
// window (spec §4.4 "improvement metrics").
type ImprovementTrend string

const (
	TrendImproving        ImprovementTrend = "improving"
	TrendDegrading        ImprovementTrend = "degrading"
	TrendStable           ImprovementTrend = "stable"
	TrendInsufficientData ImprovementTrend = "insufficient_data"
)

// ImprovementMetrics is the derived first-vs-last-scan comparison.
type ImprovementMetrics struct {
	Trend          ImprovementTrend `json:"trend"`
	TotalChange    int              `json:"totalChange"`
	CriticalChange int              `json:"criticalChange"`
	HighChange     int              `json:"highChange"`
}

// SeverityTrends bundles the per-severity integer vectors aligned with a
// window's scan order, plus the parallel timestamp and scan-id vectors.
type SeverityTrends struct {
	Critical   []int   `json:"critical"`
	High       []int   `json:"high"`
	Medium     []int   `json:"medium"`
	Low        []int   `json:"low"`
	Info       []int   `json:"info"`
	Total      []int   `json:"total"`
	Timestamps []int64 `json:"timestamps"`
	ScanIDs    []string `json:"scanIds"`
}

// Summary is the full result of a trend analysis over a branch/window.
type Summary struct {
	Branch             string                        `json:"branch"`
	Days               int                            `json:"days"`
	ScanCount          int                            `json:"scanCount"`
	SeverityTrends     SeverityTrends                 `json:"severityTrends"`
	TopRules           []RuleCount                     `json:"topRules"`
	ImprovementMetrics ImprovementMetrics              `json:"improvementMetrics"`
	MannKendall        map[string]MannKendallResult    `json:"mannKendall"`
	Score              float64                         `json:"score"`
	ScoreGrade         string                          `json:"scoreGrade"`
	ScoreTrend         MannKendallResult                `json:"scoreTrend"`
	ScoreSeries        []float64                        `json:"scoreSeries"`
	Regressions        []Regression                     `json:"regressions"`
	Insights           []Insight                        `json:"insights"`
	ResolvedCount      int                               `json:"resolvedCount"`
	IntroducedCount    int                               `json:"introducedCount"`
}

const topRuleCount = 10

// Analyze builds the full trend Summary for branch over the trailing days
// window (spec §4.4 "Trend time series"), reading only from the historical
// store.
func Analyze(ctx context.Context, store *history.Store, branch string, days int) (Summary, error) {
	rows, err := store.ScansForBranch(ctx, branch, days)
	if err != nil {
		return Summary{}, fmt.Errorf("loading scans for branch %s: %w", branch, err)
	}
	points := toScanPoints(rows)

	summary := Summary{Branch: branch, Days: days, ScanCount: len(points)}
	summary.SeverityTrends = buildSeverityTrends(points)
	summary.ScoreSeries = buildScoreSeries(points)

	if len(points) > 0 {
		scanIDs := make([]string, len(points))
		for i, p := range points {
			scanIDs[i] = p.ID
		}
		topRules, err := store.TopRules(ctx, scanIDs, topRuleCount)
		if err != nil {
			return Summary{}, fmt.Errorf("loading top rules: %w", err)
		}
		summary.TopRules = toRuleCounts(topRules)
	}

	summary.ImprovementMetrics = computeImprovementMetrics(points)
	summary.MannKendall = map[string]MannKendallResult{
		"critical": MannKendall(toFloat64(summary.SeverityTrends.Critical)),
		"high":     MannKendall(toFloat64(summary.SeverityTrends.High)),
		"medium":   MannKendall(toFloat64(summary.SeverityTrends.Medium)),
		"low":      MannKendall(toFloat64(summary.SeverityTrends.Low)),
		"total":    MannKendall(toFloat64(summary.SeverityTrends.Total)),
	}
	summary.ScoreTrend = MannKendall(summary.ScoreSeries)

	if len(points) > 0 {
		last := points[len(points)-1].Counts
		summary.Score = Score(last)
		summary.ScoreGrade = Grade(summary.Score)
	}

	if len(points) >= 2 {
		first, err := store.FingerprintSet(ctx, points[0].ID)
		if err != nil {
			return Summary{}, fmt.Errorf("loading first scan fingerprints: %w", err)
		}
		last, err := store.FingerprintSet(ctx, points[len(points)-1].ID)
		if err != nil {
			return Summary{}, fmt.Errorf("loading last scan fingerprints: %w", err)
		}
		for fp := range first {
			if !last[fp] {
				summary.ResolvedCount++
			}
		}
		for fp := range last {
			if !first[fp] {
				summary.IntroducedCount++
			}
		}
	}

	summary.Regressions = DetectRegressions(points, summary.ScoreSeries)
	summary.Insights = GenerateInsights(summary)

	return summary, nil
}

func buildSeverityTrends(points []ScanPoint) SeverityTrends {
	st := SeverityTrends{}
	for _, p := range points {
		st.Critical = append(st.Critical, p.Counts.Critical)
		st.High = append(st.High, p.Counts.High)
		st.Medium = append(st.Medium, p.Counts.Medium)
		st.Low = append(st.Low, p.Counts.Low)
		st.Info = append(st.Info, p.Counts.Info)
		st.Total = append(st.Total, p.Counts.Total())
		st.Timestamps = append(st.Timestamps, p.Timestamp)
		st.ScanIDs = append(st.ScanIDs, p.ID)
	}
	return st
}

func buildScoreSeries(points []ScanPoint) []float64 {
	series := make([]float64, len(points))
	for i, p := range points {
		series[i] = Score(p.Counts)
	}
	return series
}

func computeImprovementMetrics(points []ScanPoint) ImprovementMetrics {
	if len(points) < 2 {
		return ImprovementMetrics{Trend: TrendInsufficientData}
	}
	first := points[0].Counts
	last := points[len(points)-1].Counts

	totalChange := last.Total() - first.Total()
	criticalChange := last.Critical - first.Critical
	highChange := last.High - first.High

	var t ImprovementTrend
	switch {
	case totalChange < -5:
		t = TrendImproving
	case totalChange > 5:
		t = TrendDegrading
	default:
		t = TrendStable
	}

	return ImprovementMetrics{
		Trend:          t,
		TotalChange:    totalChange,
		CriticalChange: criticalChange,
		HighChange:     highChange,
	}
}

func toScanPoints(rows []history.ScanRow) []ScanPoint {
	points := make([]ScanPoint, len(rows))
	for i, r := range rows {
		points[i] = ScanPoint{
			ID:        r.ID,
			Timestamp: r.Timestamp,
			Counts: SeverityCounts{
				Critical: r.CriticalCount,
				High:     r.HighCount,
				Medium:   r.MediumCount,
				Low:      r.LowCount,
				Info:     r.InfoCount,
			},
		}
	}
	return points
}

func toRuleCounts(rows []history.RuleCount) []RuleCount {
	out := make([]RuleCount, len(rows))
	for i, r := range rows {
		out[i] = RuleCount{RuleID: r.RuleID, Severity: r.Severity, Count: r.Count}
	}
	return out
}

func toFloat64(ints []int) []float64 {
	out := make([]float64, len(ints))
	for i, v := range ints {
		out[i] = float64(v)
	}
	return out
}
