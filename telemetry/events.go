// Package telemetry provides mortality logging, windowed exposure statistics,
// bookmarking, metrics and snapshots.
package telemetry

import (
	"log/slog"

	"github.com/pthm-cable/exposure/exposure"
)

// DeathEvent is one row of deaths.csv.
type DeathEvent struct {
	Tick      int32   `csv:"tick"`
	Time      float64 `csv:"time"`
	Instance  string  `csv:"instance"`
	Taxon     string  `csv:"taxon"`
	Count     float64 `csv:"count"`
	Remaining float64 `csv:"remaining"`
	Mass      float64 `csv:"mass"`
	Cause     string  `csv:"cause"`
}

// NewDeathEvent converts a controller death into a log row.
func NewDeathEvent(tick int32, d exposure.Death) DeathEvent {
	return DeathEvent{
		Tick:      tick,
		Time:      d.Time,
		Instance:  d.Instance,
		Taxon:     d.Taxon,
		Count:     d.Count,
		Remaining: d.Remaining,
		Mass:      d.Mass,
		Cause:     d.Cause,
	}
}

// DeathLog buffers death events and writes them to deaths.csv on Flush. It
// also feeds the window collector and metrics. Any of its sinks may be nil.
type DeathLog struct {
	out       *OutputManager
	collector *Collector
	metrics   *Metrics
	logger    *slog.Logger

	tick   int32
	limit  int
	buffer []DeathEvent
}

// NewDeathLog creates a death log that flushes once limit events are buffered.
func NewDeathLog(out *OutputManager, collector *Collector, metrics *Metrics, limit int) *DeathLog {
	if limit < 1 {
		limit = 256
	}
	return &DeathLog{
		out:       out,
		collector: collector,
		metrics:   metrics,
		logger:    slog.Default(),
		limit:     limit,
	}
}

// SetTick sets the tick stamped onto subsequent events.
func (d *DeathLog) SetTick(tick int32) {
	d.tick = tick
}

// LogDeath implements exposure.DeathLogger.
func (d *DeathLog) LogDeath(ev exposure.Death) {
	e := NewDeathEvent(d.tick, ev)
	d.buffer = append(d.buffer, e)

	if d.collector != nil {
		d.collector.RecordDeath(e.Cause, e.Count)
	}
	d.metrics.ObserveDeath(e.Taxon, e.Cause, e.Count)
	if e.Count > 0 {
		d.logger.Info("deaths",
			"tick", e.Tick,
			"instance", e.Instance,
			"cause", e.Cause,
			"count", e.Count,
			"remaining", e.Remaining,
		)
	}

	if len(d.buffer) >= d.limit {
		if err := d.Flush(); err != nil {
			d.logger.Error("flushing death log", "error", err)
		}
	}
}

// Pending returns the number of buffered events.
func (d *DeathLog) Pending() int {
	return len(d.buffer)
}

// Flush implements exposure.DeathLogger. Buffered events are written to
// deaths.csv and dropped.
func (d *DeathLog) Flush() error {
	if len(d.buffer) == 0 {
		return nil
	}
	err := d.out.WriteDeaths(d.buffer)
	d.buffer = d.buffer[:0]
	return err
}
