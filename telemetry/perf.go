package telemetry

import (
	"log/slog"
	"time"

	"gonum.org/v1/gonum/floats"
)

// Phase is one stage of a simulation step.
type Phase int

const (
	PhaseIntoxicate Phase = iota
	PhaseIngest
	PhaseSettle
	PhaseMortality
	PhaseTelemetry
	PhaseCheckpoint
	numPhases
)

var phaseNames = [numPhases]string{"intoxicate", "ingest", "settle", "mortality", "telemetry", "checkpoint"}

func (p Phase) String() string {
	if p < 0 || p >= numPhases {
		return "unknown"
	}
	return phaseNames[p]
}

// tickTiming is the wall time of one step and of each of its phases.
type tickTiming struct {
	total  time.Duration
	phases [numPhases]time.Duration
}

// PerfCollector keeps step timings for the last windowSize ticks.
type PerfCollector struct {
	ring []tickTiming
	next int
	full bool

	current    tickTiming
	tickStart  time.Time
	phaseStart time.Time
	phase      Phase
	inPhase    bool
}

// NewPerfCollector creates a collector averaging over windowSize ticks.
func NewPerfCollector(windowSize int) *PerfCollector {
	if windowSize < 1 {
		windowSize = 100
	}
	return &PerfCollector{ring: make([]tickTiming, windowSize)}
}

// StartTick begins timing a step.
func (p *PerfCollector) StartTick() {
	p.tickStart = time.Now()
	p.current = tickTiming{}
	p.inPhase = false
}

func (p *PerfCollector) closePhase(now time.Time) {
	if p.inPhase {
		p.current.phases[p.phase] += now.Sub(p.phaseStart)
	}
}

// StartPhase ends the running phase, if any, and starts timing phase.
func (p *PerfCollector) StartPhase(phase Phase) {
	now := time.Now()
	p.closePhase(now)
	p.phase, p.phaseStart, p.inPhase = phase, now, true
}

// EndTick ends the running phase and stores the step's timing.
func (p *PerfCollector) EndTick() {
	now := time.Now()
	p.closePhase(now)
	p.inPhase = false
	p.current.total = now.Sub(p.tickStart)

	p.ring[p.next] = p.current
	p.next++
	if p.next == len(p.ring) {
		p.next, p.full = 0, true
	}
}

// samples returns the number of stored timings.
func (p *PerfCollector) samples() int {
	if p.full {
		return len(p.ring)
	}
	return p.next
}

// PerfStats summarises step timing over the collector window.
type PerfStats struct {
	AvgTickDuration time.Duration
	MinTickDuration time.Duration
	MaxTickDuration time.Duration
	TicksPerSecond  float64

	PhaseAvg [numPhases]time.Duration
	PhasePct [numPhases]float64 // share of the average step, 0..100
}

// Stats computes timing statistics over the stored ticks.
func (p *PerfCollector) Stats() PerfStats {
	n := p.samples()
	if n == 0 {
		return PerfStats{}
	}

	totals := make([]float64, n)
	var phaseSum [numPhases]float64
	for i, s := range p.ring[:n] {
		totals[i] = float64(s.total)
		for ph, d := range s.phases {
			phaseSum[ph] += float64(d)
		}
	}

	avg := floats.Sum(totals) / float64(n)
	stats := PerfStats{
		AvgTickDuration: time.Duration(avg),
		MinTickDuration: time.Duration(floats.Min(totals)),
		MaxTickDuration: time.Duration(floats.Max(totals)),
	}
	if avg > 0 {
		stats.TicksPerSecond = float64(time.Second) / avg
	}
	for ph, sum := range phaseSum {
		stats.PhaseAvg[ph] = time.Duration(sum / float64(n))
		if avg > 0 {
			stats.PhasePct[ph] = sum / float64(n) / avg * 100
		}
	}
	return stats
}

// LogValue implements slog.LogValuer.
func (s PerfStats) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int64("avg_tick_us", s.AvgTickDuration.Microseconds()),
		slog.Int64("min_tick_us", s.MinTickDuration.Microseconds()),
		slog.Int64("max_tick_us", s.MaxTickDuration.Microseconds()),
		slog.Float64("ticks_per_sec", s.TicksPerSecond),
	}
	for ph, pct := range s.PhasePct {
		// Phases that barely register only clutter the log line.
		if pct > 0.1 {
			attrs = append(attrs, slog.Float64(Phase(ph).String()+"_pct", pct))
		}
	}
	return slog.GroupValue(attrs...)
}

// PerfStatsCSV is one row of perf.csv.
type PerfStatsCSV struct {
	WindowEnd     int32   `csv:"window_end"`
	AvgTickUS     int64   `csv:"avg_tick_us"`
	MinTickUS     int64   `csv:"min_tick_us"`
	MaxTickUS     int64   `csv:"max_tick_us"`
	TicksPerSec   float64 `csv:"ticks_per_sec"`
	IntoxicatePct float64 `csv:"intoxicate_pct"`
	IngestPct     float64 `csv:"ingest_pct"`
	SettlePct     float64 `csv:"settle_pct"`
	MortalityPct  float64 `csv:"mortality_pct"`
	TelemetryPct  float64 `csv:"telemetry_pct"`
	CheckpointPct float64 `csv:"checkpoint_pct"`
}

// ToCSV flattens s into a perf.csv row.
func (s PerfStats) ToCSV(windowEnd int32) PerfStatsCSV {
	return PerfStatsCSV{
		WindowEnd:     windowEnd,
		AvgTickUS:     s.AvgTickDuration.Microseconds(),
		MinTickUS:     s.MinTickDuration.Microseconds(),
		MaxTickUS:     s.MaxTickDuration.Microseconds(),
		TicksPerSec:   s.TicksPerSecond,
		IntoxicatePct: s.PhasePct[PhaseIntoxicate],
		IngestPct:     s.PhasePct[PhaseIngest],
		SettlePct:     s.PhasePct[PhaseSettle],
		MortalityPct:  s.PhasePct[PhaseMortality],
		TelemetryPct:  s.PhasePct[PhaseTelemetry],
		CheckpointPct: s.PhasePct[PhaseCheckpoint],
	}
}
