package telemetry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gocarina/gocsv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/pthm-cable/exposure/exposure"
)

func TestDeathLogFlushesToCSV(t *testing.T) {
	dir := t.TempDir()
	out, err := NewOutputManager(dir)
	if err != nil {
		t.Fatalf("NewOutputManager: %v", err)
	}
	collector := NewCollector(3600)
	metrics := NewMetrics(prometheus.NewRegistry())
	log := NewDeathLog(out, collector, metrics, 2)

	log.SetTick(7)
	log.LogDeath(exposure.Death{Instance: "a", Taxon: "daphnia", Count: 10, Remaining: 90, Cause: exposure.CauseAcute})
	if log.Pending() != 1 {
		t.Errorf("Pending() = %d, want 1", log.Pending())
	}
	log.LogDeath(exposure.Death{Instance: "a", Taxon: "daphnia", Count: 5, Remaining: 85, Cause: exposure.CauseChronic})
	if log.Pending() != 0 {
		t.Errorf("Pending() = %d after reaching limit, want 0", log.Pending())
	}
	log.LogDeath(exposure.Death{Instance: "b", Taxon: "perch", Count: 1, Remaining: 9, Cause: exposure.CauseNatural})
	if err := log.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if err := out.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(filepath.Join(dir, "deaths.csv"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	var rows []DeathEvent
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		t.Fatalf("reading deaths.csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}
	if rows[0].Tick != 7 || rows[0].Cause != exposure.CauseAcute || rows[0].Count != 10 {
		t.Errorf("rows[0] = %+v", rows[0])
	}

	stats := collector.Flush(7, 3600, PopulationSample{})
	if stats.AcuteDeaths != 10 || stats.ChronicDeaths != 5 || stats.NaturalDeaths != 1 {
		t.Errorf("collector deaths = %v/%v/%v, want 10/5/1", stats.AcuteDeaths, stats.ChronicDeaths, stats.NaturalDeaths)
	}

	if got := testutil.ToFloat64(metrics.deaths.WithLabelValues("daphnia", exposure.CauseAcute)); got != 10 {
		t.Errorf("deaths metric = %v, want 10", got)
	}
}

func TestDeathLogWithoutSinks(t *testing.T) {
	log := NewDeathLog(nil, nil, nil, 0)
	log.LogDeath(exposure.Death{Count: 1, Cause: exposure.CauseAcute})
	if err := log.Flush(); err != nil {
		t.Errorf("Flush with no output = %v, want nil", err)
	}
}

func TestCollectorWindow(t *testing.T) {
	c := NewCollector(100)
	if c.ShouldFlush(50) {
		t.Error("ShouldFlush(50) = true, want false")
	}
	if !c.ShouldFlush(100) {
		t.Error("ShouldFlush(100) = false, want true")
	}
	c.RecordExtinction()
	stats := c.Flush(10, 100, PopulationSample{
		Instances:   2,
		Members:     300,
		Loads:       []float64{1, 3},
		Impairments: [3]float64{0.5, 0, 0},
	})
	if stats.Extinctions != 1 || stats.LoadMean != 2 || stats.ReproductionImpairment != 0.5 {
		t.Errorf("stats = %+v", stats)
	}
	if c.ShouldFlush(150) {
		t.Error("window did not reset after Flush")
	}
}

func TestCollectorReset(t *testing.T) {
	c := NewCollector(100)
	c.RecordDeath(exposure.CauseAcute, 5)
	c.Reset(40, 4000)
	if c.ShouldFlush(4050) {
		t.Error("ShouldFlush(4050) after Reset(4000) = true, want false")
	}
	stats := c.Flush(50, 4100, PopulationSample{})
	if stats.WindowStartTick != 40 || stats.AcuteDeaths != 0 {
		t.Errorf("stats after Reset = %+v", stats)
	}
}
