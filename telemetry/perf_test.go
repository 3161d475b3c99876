package telemetry

import (
	"testing"
	"time"
)

func TestPerfCollectorPhases(t *testing.T) {
	pc := NewPerfCollector(10)

	for i := 0; i < 5; i++ {
		pc.StartTick()
		pc.StartPhase(PhaseIntoxicate)
		time.Sleep(50 * time.Microsecond)
		pc.StartPhase(PhaseSettle)
		time.Sleep(300 * time.Microsecond)
		pc.EndTick()
	}

	stats := pc.Stats()
	if stats.AvgTickDuration <= 0 {
		t.Fatal("expected positive average tick duration")
	}
	if stats.PhaseAvg[PhaseIntoxicate] <= 0 {
		t.Error("intoxicate phase not tracked")
	}
	if stats.PhaseAvg[PhaseIngest] != 0 {
		t.Errorf("ingest phase = %v, want 0", stats.PhaseAvg[PhaseIngest])
	}
	if stats.PhasePct[PhaseSettle] <= stats.PhasePct[PhaseIntoxicate] {
		t.Errorf("settle %v%% should exceed intoxicate %v%%", stats.PhasePct[PhaseSettle], stats.PhasePct[PhaseIntoxicate])
	}
	if stats.MinTickDuration > stats.AvgTickDuration || stats.AvgTickDuration > stats.MaxTickDuration {
		t.Errorf("min/avg/max = %v/%v/%v", stats.MinTickDuration, stats.AvgTickDuration, stats.MaxTickDuration)
	}
	if stats.TicksPerSecond <= 0 {
		t.Error("expected positive ticks per second")
	}
}

func TestPerfCollectorRollingWindow(t *testing.T) {
	pc := NewPerfCollector(3)
	for i := 0; i < 10; i++ {
		pc.StartTick()
		pc.StartPhase(PhaseIngest)
		pc.EndTick()
	}
	if n := pc.samples(); n != 3 {
		t.Errorf("samples = %d, want 3", n)
	}
}

func TestPerfCollectorEmpty(t *testing.T) {
	if stats := NewPerfCollector(0).Stats(); stats != (PerfStats{}) {
		t.Errorf("empty stats = %+v", stats)
	}
}

func TestPhaseString(t *testing.T) {
	tests := []struct {
		p    Phase
		want string
	}{
		{PhaseIntoxicate, "intoxicate"},
		{PhaseCheckpoint, "checkpoint"},
		{Phase(-1), "unknown"},
		{numPhases, "unknown"},
	}
	for _, tt := range tests {
		if got := tt.p.String(); got != tt.want {
			t.Errorf("Phase(%d).String() = %q, want %q", int(tt.p), got, tt.want)
		}
	}
}

func TestPerfStatsToCSV(t *testing.T) {
	s := PerfStats{AvgTickDuration: 2 * time.Millisecond}
	s.PhasePct[PhaseSettle] = 60
	s.PhasePct[PhaseCheckpoint] = 5

	row := s.ToCSV(42)
	if row.WindowEnd != 42 || row.AvgTickUS != 2000 {
		t.Errorf("row = %+v", row)
	}
	if row.SettlePct != 60 || row.CheckpointPct != 5 || row.IngestPct != 0 {
		t.Errorf("phase columns = %+v", row)
	}
}
