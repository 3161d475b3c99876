package world

import (
	"context"
	"log/slog"

	"github.com/pthm-cable/exposure/exposure"
	"github.com/pthm-cable/exposure/telemetry"
)

var impairmentEndpoints = [3]exposure.Endpoint{exposure.Reproduction, exposure.Foraging, exposure.Movement}

// instanceSample is the exposure state of one instance at a tick boundary.
type instanceSample struct {
	inst        instance
	members     float64
	hazards     []string
	records     []exposure.Record
	levels      []float64
	impairments [3]float64
}

// sample reads the state of every instance. Impairment formulas are
// evaluated on the instance's mailbox; failures are logged and read as 0.
func (w *World) sample(ctx context.Context) []instanceSample {
	insts := w.sinks()
	out := make([]instanceSample, 0, len(insts))
	for _, inst := range insts {
		s := instanceSample{inst: inst, members: w.orgMap.Get(inst.entity).Members}
		if inst.exp != nil {
			ctrl := inst.exp.Controller
			s.members = ctrl.Members()
			s.hazards = ctrl.Hazards()
			for _, name := range s.hazards {
				r, _ := ctrl.Record(name)
				s.records = append(s.records, r)
				s.levels = append(s.levels, ctrl.Level(name))
			}
			err := w.do(ctx, inst, func() error {
				for i, e := range impairmentEndpoints {
					v, err := ctrl.QueryImpairment(e, w.simTime)
					if err != nil {
						return err
					}
					s.impairments[i] = v
				}
				return nil
			})
			if err != nil {
				w.logger.Warn("sampling impairment", "instance", inst.name, "error", err)
			}
		}
		out = append(out, s)
	}
	return out
}

// flushTelemetry updates gauges every tick and, when the stats window has
// ended, writes window stats, per-instance loads and bookmarks.
func (w *World) flushTelemetry(ctx context.Context) {
	samples := w.sample(ctx)
	for _, s := range samples {
		w.metrics.SetMembers(s.inst.name, s.members)
		w.lifetimeTracker.UpdateMembers(s.inst.name, s.members)
		w.lifetimeTracker.UpdateSurvivalTime(s.inst.name, w.simTime)
		for _, r := range s.records {
			w.metrics.SetLoad(s.inst.name, r.Name, r.CurrentLoad)
			w.lifetimeTracker.UpdateLoad(s.inst.name, r.CurrentLoad)
		}
	}

	if !w.collector.ShouldFlush(w.simTime) {
		return
	}

	pop := telemetry.PopulationSample{Instances: len(samples)}
	var rows []telemetry.ExposureRow
	sinks := 0
	for _, s := range samples {
		pop.Members += s.members
		if s.inst.exp == nil {
			continue
		}
		sinks++
		for i := range pop.Impairments {
			pop.Impairments[i] += s.impairments[i]
		}
		for i, r := range s.records {
			pop.Loads = append(pop.Loads, r.CurrentLoad)
			rows = append(rows, telemetry.ExposureRow{
				Tick:        w.tick,
				Instance:    s.inst.name,
				Contaminant: r.Name,
				Load:        r.CurrentLoad,
				Level:       s.levels[i],
			})
		}
	}
	if sinks > 0 {
		for i := range pop.Impairments {
			pop.Impairments[i] /= float64(sinks)
		}
	}

	stats := w.collector.Flush(w.tick, w.simTime, pop)
	perfStats := w.perfCollector.Stats()
	w.logger.Info("window", slog.Any("stats", stats), slog.Any("perf", perfStats))

	if err := w.output.WriteTelemetry(stats); err != nil {
		w.logger.Error("failed to write telemetry", "error", err)
	}
	if err := w.output.WritePerf(perfStats, stats.WindowEndTick); err != nil {
		w.logger.Error("failed to write perf", "error", err)
	}
	if err := w.output.WriteExposure(rows); err != nil {
		w.logger.Error("failed to write exposure", "error", err)
	}
	if err := w.deaths.Flush(); err != nil {
		w.logger.Error("failed to write deaths", "error", err)
	}

	for _, bm := range w.bookmarkDetector.Check(stats) {
		bm.LogBookmark()
		if err := w.output.WriteBookmark(bm); err != nil {
			w.logger.Error("failed to write bookmark", "error", err)
		}
		snap := w.snapshot(samples)
		snap.Bookmark = &bm
		if path, err := w.output.WriteSnapshot(snap); err != nil {
			w.logger.Error("failed to write snapshot", "error", err)
		} else if path != "" {
			w.logger.Info("snapshot saved", "path", path)
		}
	}
}

// snapshot builds a JSON snapshot from instance samples.
func (w *World) snapshot(samples []instanceSample) *telemetry.Snapshot {
	snap := &telemetry.Snapshot{
		Version: telemetry.SnapshotVersion,
		RunID:   w.runID,
		Tick:    w.tick,
		SimTime: w.simTime,
	}
	for _, s := range samples {
		pos := w.posMap.Get(s.inst.entity)
		st := telemetry.InstanceState{
			Name:    s.inst.name,
			Taxon:   s.inst.taxon,
			X:       pos.X,
			Y:       pos.Y,
			Members: s.members,
			Mass:    w.orgMap.Get(s.inst.entity).IndividualMass,
			Levels:  s.levels,
		}
		if ls := w.lifetimeTracker.Get(s.inst.name); ls != nil {
			lifetime := *ls
			st.Lifetime = &lifetime
		}
		if len(s.records) > 0 {
			st.Loads = make(map[string]float64, len(s.records))
			for _, r := range s.records {
				st.Loads[r.Name] = r.CurrentLoad
			}
			st.Impairments = make(map[string]float64, len(impairmentEndpoints))
			for i, e := range impairmentEndpoints {
				st.Impairments[e.String()] = s.impairments[i]
			}
		}
		snap.Instances = append(snap.Instances, st)
	}
	return snap
}

// Snapshot returns a JSON-ready summary of every instance.
func (w *World) Snapshot(ctx context.Context) (*telemetry.Snapshot, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil, ErrClosed
	}
	return w.snapshot(w.sample(ctx)), nil
}
