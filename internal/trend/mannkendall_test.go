package trend

import "testing"

func TestMannKendall_MonotonicDecreasing(t *testing.T) {
	series := []float64{10, 9, 8, 7, 6, 5, 4, 3, 2, 1}
	result := MannKendall(series)
	if result.Trend != TrendDecreasing {
		t.Errorf("expected decreasing trend, got %q", result.Trend)
	}
	if !result.Significant {
		t.Error("a perfectly monotonic series of length 10 should be significant")
	}
	wantS := -(9 + 8 + 7 + 6 + 5 + 4 + 3 + 2 + 1)
	if result.S != wantS {
		t.Errorf("S = %d, want %d", result.S, wantS)
	}
}

func TestMannKendall_MonotonicIncreasing(t *testing.T) {
	series := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	result := MannKendall(series)
	if result.Trend != TrendIncreasing {
		t.Errorf("expected increasing trend, got %q", result.Trend)
	}
	if !result.Significant {
		t.Error("a perfectly monotonic series of length 10 should be significant")
	}
}

func TestMannKendall_FlatSeriesHasNoTrend(t *testing.T) {
	series := []float64{5, 5, 5, 5, 5}
	result := MannKendall(series)
	if result.Trend != TrendNone {
		t.Errorf("expected no-trend for a constant series, got %q", result.Trend)
	}
	if result.S != 0 {
		t.Errorf("S = %d, want 0", result.S)
	}
	if result.Significant {
		t.Error("a constant series should not be statistically significant")
	}
}

func TestMannKendall_ShortSeriesIsInconclusive(t *testing.T) {
	result := MannKendall([]float64{1, 2})
	if result.Trend != TrendNone || result.Significant {
		t.Errorf("series shorter than 3 points should report no significant trend, got %+v", result)
	}
}
