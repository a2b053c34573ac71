package trend

import "fmt"

// Priority is the closed enum for insight urgency.
type Priority string

const (
	PriorityHigh   Priority = "HIGH"
	PriorityMedium Priority = "MEDIUM"
	PriorityLow    Priority = "LOW"
	PriorityInfo   Priority = "INFO"
)

// Insight is a structured narrative record (spec §4.4 "Insights").
type Insight struct {
	Category          string   `json:"category"`
	Severity          string   `json:"severity,omitempty"`
	Priority          Priority `json:"priority"`
	Icon              string   `json:"icon"`
	Message           string   `json:"message"`
	Details           string   `json:"details,omitempty"`
	RecommendedAction string   `json:"recommendedAction,omitempty"`
}

const (
	strongImprovementThreshold = -20
	remediationVelocityTarget  = 15
	recurringTopRuleStreak     = 3
	insufficientScanCount      = 3
)

// regressionPriority classifies a single regression's urgency: any CRITICAL
// severity increase, or a score drop, is HIGH priority; other severity
// regressions are MEDIUM.
func regressionPriority(r Regression) Priority {
	if r.Category == "score_drop" {
		return PriorityHigh
	}
	if r.Severity == "CRITICAL" {
		return PriorityHigh
	}
	return PriorityMedium
}

// GenerateInsights evaluates each independent trigger rule against summary
// and returns the insights whose condition fires (spec §4.4 rule list).
func GenerateInsights(summary Summary) []Insight {
	var insights []Insight

	if summary.ScanCount < insufficientScanCount {
		insights = append(insights, Insight{
			Category:          "data_quality",
			Priority:          PriorityInfo,
			Icon:              "ℹ️",
			Message:           fmt.Sprintf("only %d scans available in this window", summary.ScanCount),
			RecommendedAction: "run more scans on this branch to unlock trend analysis",
		})
	}

	if summary.ImprovementMetrics.TotalChange <= strongImprovementThreshold {
		insights = append(insights, Insight{
			Category: "improvement",
			Priority: PriorityHigh,
			Icon:     "📈",
			Message:  fmt.Sprintf("strong improvement: total findings changed by %d", summary.ImprovementMetrics.TotalChange),
		})
	}

	for _, r := range summary.Regressions {
		if regressionPriority(r) == PriorityHigh {
			insights = append(insights, Insight{
				Category:          "regression",
				Severity:          r.Severity,
				Priority:          PriorityHigh,
				Icon:              "🔺",
				Message:           "strong regression detected: " + r.Message,
				RecommendedAction: "investigate the scans around this regression before the next release",
			})
			break
		}
	}

	if rule, streak := recurringTopRule(summary.TopRules); streak >= recurringTopRuleStreak {
		insights = append(insights, Insight{
			Category: "recurring_rule",
			Priority: PriorityMedium,
			Icon:     "🔁",
			Message:  fmt.Sprintf("rule %s has remained in the top findings across this window", rule),
		})
	}

	if summary.ResolvedCount-summary.IntroducedCount >= remediationVelocityTarget {
		insights = append(insights, Insight{
			Category: "remediation_velocity",
			Priority: PriorityMedium,
			Icon:     "✅",
			Message:  fmt.Sprintf("high remediation velocity: %d resolved vs %d introduced in this window", summary.ResolvedCount, summary.IntroducedCount),
		})
	}

	return insights
}

// recurringTopRule returns the rule_id with the highest finding count in
// topRules (the window's aggregated top-10 list) together with that count.
// Per-scan top-3 membership is not tracked, so the count GenerateInsights
// compares with recurringTopRuleStreak is a number of findings across the
// window, not a number of consecutive scans.
func recurringTopRule(topRules []RuleCount) (string, int) {
	if len(topRules) == 0 {
		return "", 0
	}
	best := topRules[0]
	for _, r := range topRules[1:] {
		if r.Count > best.Count {
			best = r
		}
	}
	return best.RuleID, best.Count
}
