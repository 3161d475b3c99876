package telemetry

import (
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// WindowStats holds aggregated statistics for a time window.
type WindowStats struct {
	WindowStartTick int32   `csv:"-"`
	WindowEndTick   int32   `csv:"window_end"`
	SimTimeSec      float64 `csv:"sim_time"`

	// Populations at window end
	Instances int     `csv:"instances"`
	Members   float64 `csv:"members"`

	// Deaths during window
	AcuteDeaths   float64 `csv:"acute_deaths"`
	ChronicDeaths float64 `csv:"chronic_deaths"`
	NaturalDeaths float64 `csv:"natural_deaths"`
	Extinctions   int     `csv:"extinctions"`

	// Tissue load distribution across tracked contaminants (sampled at window end)
	LoadMean float64 `csv:"load_mean"`
	LoadP50  float64 `csv:"load_p50"`
	LoadP90  float64 `csv:"load_p90"`
	LoadMax  float64 `csv:"load_max"`

	// Impairment averaged over instances (sampled at window end)
	ReproductionImpairment float64 `csv:"reproduction_impairment"`
	ForagingImpairment     float64 `csv:"foraging_impairment"`
	MovementImpairment     float64 `csv:"movement_impairment"`
}

// PoisoningDeaths returns acute plus chronic deaths.
func (s WindowStats) PoisoningDeaths() float64 {
	return s.AcuteDeaths + s.ChronicDeaths
}

// LogValue implements slog.LogValuer for structured logging.
func (s WindowStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("window_end", int(s.WindowEndTick)),
		slog.Float64("sim_time", s.SimTimeSec),
		slog.Int("instances", s.Instances),
		slog.Float64("members", s.Members),
		slog.Float64("acute_deaths", s.AcuteDeaths),
		slog.Float64("chronic_deaths", s.ChronicDeaths),
		slog.Float64("natural_deaths", s.NaturalDeaths),
		slog.Int("extinctions", s.Extinctions),
		slog.Float64("load_p50", s.LoadP50),
		slog.Float64("load_max", s.LoadMax),
	)
}

// LoadStats summarises a set of tissue loads.
type LoadStats struct {
	Mean, P50, P90, Max float64
}

// ComputeLoadStats returns the mean, empirical quantiles and maximum of
// values. The input is not modified.
func ComputeLoadStats(values []float64) LoadStats {
	if len(values) == 0 {
		return LoadStats{}
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return LoadStats{
		Mean: stat.Mean(sorted, nil),
		P50:  stat.Quantile(0.5, stat.Empirical, sorted, nil),
		P90:  stat.Quantile(0.9, stat.Empirical, sorted, nil),
		Max:  floats.Max(sorted),
	}
}
