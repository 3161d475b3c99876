package telemetry

import (
	"math"
	"testing"
)

func TestComputeLoadStats(t *testing.T) {
	values := []float64{10, 9, 8, 7, 6, 5, 4, 3, 2, 1}
	s := ComputeLoadStats(values)

	if math.Abs(s.Mean-5.5) > 1e-12 {
		t.Errorf("Mean = %v, want 5.5", s.Mean)
	}
	if s.P50 != 5 {
		t.Errorf("P50 = %v, want 5", s.P50)
	}
	if s.P90 != 9 {
		t.Errorf("P90 = %v, want 9", s.P90)
	}
	if s.Max != 10 {
		t.Errorf("Max = %v, want 10", s.Max)
	}
	if values[0] != 10 {
		t.Error("input was reordered")
	}
}

func TestComputeLoadStatsEmpty(t *testing.T) {
	if s := ComputeLoadStats(nil); s != (LoadStats{}) {
		t.Errorf("empty stats = %+v", s)
	}
}

func TestPoisoningDeaths(t *testing.T) {
	s := WindowStats{AcuteDeaths: 3, ChronicDeaths: 4, NaturalDeaths: 100}
	if s.PoisoningDeaths() != 7 {
		t.Errorf("PoisoningDeaths = %v, want 7", s.PoisoningDeaths())
	}
}
