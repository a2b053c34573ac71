package trend

import "fmt"

// Regression is an adverse change between consecutive scans (spec §4.4
// "Regressions").
type Regression struct {
	Severity      string  `json:"severity"`
	Category      string  `json:"category"`
	Message       string  `json:"message"`
	PreviousValue float64 `json:"previousValue"`
	CurrentValue  float64 `json:"currentValue"`
}

// severityThreshold is the absolute increase, per severity, that counts as
// a regression. INFO is never reported.
var severityThreshold = map[string]int{
	"CRITICAL": 0, // any increase
	"HIGH":     3,
	"MEDIUM":   10,
	"LOW":      25,
}

const scoreDropThreshold = 0.5

// DetectRegressions walks consecutive scan pairs and emits one Regression
// record per severity level whose count increased beyond its threshold, or
// whose posture score dropped by more than scoreDropThreshold.
func DetectRegressions(points []ScanPoint, scoreSeries []float64) []Regression {
	var regressions []Regression

	for i := 1; i < len(points); i++ {
		prev, cur := points[i-1].Counts, points[i].Counts

		for _, sev := range []struct {
			name string
			prev int
			cur  int
		}{
			{"CRITICAL", prev.Critical, cur.Critical},
			{"HIGH", prev.High, cur.High},
			{"MEDIUM", prev.Medium, cur.Medium},
			{"LOW", prev.Low, cur.Low},
		} {
			increase := sev.cur - sev.prev
			if increase > severityThreshold[sev.name] {
				regressions = append(regressions, Regression{
					Severity:      sev.name,
					Category:      "severity_increase",
					Message:       fmt.Sprintf("%s findings increased from %d to %d", sev.name, sev.prev, sev.cur),
					PreviousValue: float64(sev.prev),
					CurrentValue:  float64(sev.cur),
				})
			}
		}

		if i < len(scoreSeries) {
			drop := scoreSeries[i-1] - scoreSeries[i]
			if drop > scoreDropThreshold {
				regressions = append(regressions, Regression{
					Severity:      "",
					Category:      "score_drop",
					Message:       fmt.Sprintf("security posture score dropped from %.1f to %.1f", scoreSeries[i-1], scoreSeries[i]),
					PreviousValue: scoreSeries[i-1],
					CurrentValue:  scoreSeries[i],
				})
			}
		}
	}

	return regressions
}
