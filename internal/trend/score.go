package trend

// SeverityCounts is a per-scan severity breakdown, independent of the
// history package's row type so this package has no storage dependency.
type SeverityCounts struct {
	Critical int
	High     int
	Medium   int
	Low      int
	Info     int
}

// Total returns the sum of all five counts.
func (c SeverityCounts) Total() int {
	return c.Critical + c.High + c.Medium + c.Low + c.Info
}

// Score computes the security posture score in [0, 10] (spec §4.4
// "Security posture score"): start at 10.0, subtract a weighted penalty per
// severity, clamp to the valid range.
func Score(c SeverityCounts) float64 {
	penalty := 3.0*float64(c.Critical) + 1.0*float64(c.High) + 0.3*float64(c.Medium) + 0.1*float64(c.Low)
	score := 10.0 - penalty
	if score < 0 {
		return 0
	}
	if score > 10 {
		return 10
	}
	return score
}

// Grade maps a score to its letter grade per the spec's thresholds.
func Grade(score float64) string {
	switch {
	case score >= 9:
		return "A"
	case score >= 7:
		return "B"
	case score >= 5:
		return "C"
	case score >= 3:
		return "D"
	default:
		return "F"
	}
}
