package trend

import "testing"

func TestGenerateInsights_InsufficientScans(t *testing.T) {
	summary := Summary{ScanCount: 1}
	insights := GenerateInsights(summary)
	if !hasCategory(insights, "data_quality") {
		t.Errorf("expected a data_quality insight for ScanCount=1, got %+v", insights)
	}
}

func TestGenerateInsights_StrongImprovement(t *testing.T) {
	summary := Summary{ScanCount: 5, ImprovementMetrics: ImprovementMetrics{TotalChange: -25}}
	insights := GenerateInsights(summary)
	if !hasCategory(insights, "improvement") {
		t.Errorf("expected an improvement insight for TotalChange=-25, got %+v", insights)
	}
}

func TestGenerateInsights_HighPriorityRegressionSurfaces(t *testing.T) {
	summary := Summary{
		ScanCount:   5,
		Regressions: []Regression{{Severity: "CRITICAL", Category: "severity_increase", Message: "bad"}},
	}
	insights := GenerateInsights(summary)
	if !hasCategory(insights, "regression") {
		t.Errorf("expected a regression insight for a CRITICAL regression, got %+v", insights)
	}
}

func TestGenerateInsights_RemediationVelocity(t *testing.T) {
	summary := Summary{ScanCount: 5, ResolvedCount: 20, IntroducedCount: 2}
	insights := GenerateInsights(summary)
	if !hasCategory(insights, "remediation_velocity") {
		t.Errorf("expected a remediation_velocity insight, got %+v", insights)
	}
}

func TestGenerateInsights_QuietSummaryYieldsNone(t *testing.T) {
	summary := Summary{ScanCount: 10}
	insights := GenerateInsights(summary)
	if len(insights) != 0 {
		t.Errorf("expected no insights for an unremarkable summary, got %+v", insights)
	}
}

func hasCategory(insights []Insight, category string) bool {
	for _, i := range insights {
		if i.Category == category {
			return true
		}
	}
	return false
}
