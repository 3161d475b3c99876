package world

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pthm-cable/exposure/agent"
	"github.com/pthm-cable/exposure/exposure"
	"github.com/pthm-cable/exposure/telemetry"
)

// Step advances the world by one tick and returns the step length used.
// The step is the configured dt shortened to the smallest sampling
// interval any exposed instance asks for. With a store configured the
// world is checkpointed every simulation.checkpoint_every ticks. An error leaves the world
// unusable; no partial tick is retried.
func (w *World) Step(ctx context.Context) (float64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, ErrClosed
	}

	w.perfCollector.StartTick()
	defer w.perfCollector.EndTick()

	t := w.simTime
	proposed := w.cfg.Derived.DT
	insts := w.sinks()
	w.deaths.log.SetTick(w.tick)

	w.perfCollector.StartPhase(telemetry.PhaseIntoxicate)
	dt, err := w.intoxicate(ctx, insts, t, proposed)
	if err != nil {
		return 0, err
	}

	w.perfCollector.StartPhase(telemetry.PhaseIngest)
	if err := w.ingest(ctx, insts, t, dt); err != nil {
		return 0, err
	}

	w.perfCollector.StartPhase(telemetry.PhaseSettle)
	if err := w.settle(ctx, insts, t+dt, proposed, dt); err != nil {
		return 0, err
	}

	w.perfCollector.StartPhase(telemetry.PhaseMortality)
	if err := w.mortality(ctx, insts, t+dt, dt); err != nil {
		return 0, err
	}

	w.tick++
	w.simTime += dt

	w.perfCollector.StartPhase(telemetry.PhaseTelemetry)
	w.flushTelemetry(ctx)

	if every := w.cfg.Simulation.CheckpointEvery; w.store != nil && every > 0 && w.tick%int32(every) == 0 {
		w.perfCollector.StartPhase(telemetry.PhaseCheckpoint)
		if err := w.checkpoint(ctx, w.store); err != nil {
			return dt, fmt.Errorf("checkpoint at tick %d: %w", w.tick, err)
		}
	}
	return dt, nil
}

// intoxicate samples all sources for every live sink in parallel. Each
// controller runs on its own mailbox; sources serve reads on theirs.
func (w *World) intoxicate(ctx context.Context, insts []instance, t, dt float64) (float64, error) {
	dir := w.directory()
	if len(dir) == 0 {
		return dt, nil
	}

	suggestions := make([]float64, len(insts))
	g, gctx := errgroup.WithContext(ctx)
	if n := w.cfg.Simulation.Workers; n > 0 {
		g.SetLimit(n)
	}
	for i, inst := range insts {
		suggestions[i] = dt
		if inst.exp == nil {
			continue
		}
		g.Go(func() error {
			qctx, cancel := w.queryContext(gctx)
			defer cancel()
			return inst.exp.Mailbox.Do(qctx, func() error {
				s, err := inst.exp.Controller.Intoxicate(qctx, dir, t, dt)
				if err != nil {
					return fmt.Errorf("intoxicate %s: %w", inst.name, err)
				}
				suggestions[i] = s
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		if errors.Is(err, agent.ErrUnreachable) {
			w.metrics.IncUnreachable()
		}
		return dt, err
	}

	actual := dt
	for _, s := range suggestions {
		if s > 0 && s < actual {
			actual = s
		}
	}
	return actual, nil
}

// ingest reports each sink's dietary intake for the step.
func (w *World) ingest(ctx context.Context, insts []instance, t, dt float64) error {
	for _, inst := range insts {
		if inst.exp == nil {
			continue
		}
		org := w.orgMap.Get(inst.entity)
		for _, d := range org.Diet {
			mass := d.Daily * dt / 86400
			if !(mass > 0) {
				continue
			}
			var tracked bool
			err := w.do(ctx, inst, func() (err error) {
				tracked, err = inst.exp.Controller.Ingest(d.Contaminant, mass, t)
				return err
			})
			if err != nil {
				return fmt.Errorf("ingest %s: %w", inst.name, err)
			}
			if !tracked {
				w.logger.Debug("ingested untracked contaminant", "instance", inst.name, "contaminant", d.Contaminant)
				continue
			}
			w.lifetimeTracker.RecordIngest(inst.name, mass)
		}
	}
	return nil
}

// settle commits the step for every sink in spawn order. Instances with no
// members left settle with a NaN step so their state is left as is.
func (w *World) settle(ctx context.Context, insts []instance, t, proposed, dt float64) error {
	start := time.Now()
	for _, inst := range insts {
		if inst.exp == nil {
			continue
		}
		ctrl := inst.exp.Controller
		actual := dt
		if !(ctrl.Members() > 0) {
			actual = math.NaN()
		}
		if err := w.do(ctx, inst, func() error { return ctrl.Settle(t, proposed, actual) }); err != nil {
			return fmt.Errorf("settle %s: %w", inst.name, err)
		}
	}
	w.metrics.ObserveSettle(time.Since(start).Seconds())
	return nil
}

// mortality applies background mortality and removes instances with no
// members left.
func (w *World) mortality(ctx context.Context, insts []instance, t, dt float64) error {
	var extinct []instance
	for _, inst := range insts {
		org := w.orgMap.Get(inst.entity)
		loss := org.NaturalLoss(dt)

		if inst.exp != nil && inst.exp.Controller.OverridesMembers() {
			ctrl := inst.exp.Controller
			if members := ctrl.Members(); loss > 0 && members > 0 {
				var removed float64
				if err := w.do(ctx, inst, func() error {
					removed = ctrl.SetMembers(members * (1 - loss))
					return nil
				}); err != nil {
					return fmt.Errorf("mortality %s: %w", inst.name, err)
				}
				if removed > 0 {
					w.deaths.LogDeath(exposure.Death{
						Time:      t,
						Instance:  inst.name,
						Taxon:     inst.taxon,
						Count:     removed,
						Remaining: ctrl.Members(),
						Mass:      org.IndividualMass,
						Cause:     exposure.CauseNatural,
					})
				}
			}
			org.Members = ctrl.Members()
		} else if loss > 0 && org.Members > 0 {
			removed := org.Members * loss
			org.Members -= removed
			w.deaths.LogDeath(exposure.Death{
				Time:      t,
				Instance:  inst.name,
				Taxon:     inst.taxon,
				Count:     removed,
				Remaining: org.Members,
				Mass:      org.IndividualMass,
				Cause:     exposure.CauseNatural,
			})
		}

		if !(org.Members > 0) {
			org.Alive = false
			extinct = append(extinct, inst)
		}
	}

	for _, inst := range extinct {
		w.remove(inst)
	}
	return nil
}

// remove records an extinction and discards the instance.
func (w *World) remove(inst instance) {
	w.collector.RecordExtinction()
	if stats := w.lifetimeTracker.Get(inst.name); stats != nil {
		stats.SurvivalTimeSec = w.simTime - stats.SpawnTime
		w.logger.Info("instance extinct",
			"instance", inst.name,
			"taxon", inst.taxon,
			"tick", w.tick,
			"survival_time", stats.SurvivalTimeSec,
			"acute_deaths", stats.AcuteDeaths,
			"chronic_deaths", stats.ChronicDeaths,
			"natural_deaths", stats.NaturalDeaths,
			"peak_load", stats.PeakLoad,
		)
	}
	w.discard(inst)
}

// discard shuts down and deletes an instance.
func (w *World) discard(inst instance) {
	if inst.exp != nil {
		w.remoteMu.Lock()
		delete(w.remotes, inst.name)
		w.remoteMu.Unlock()

		if err := inst.exp.Controller.Shutdown(); err != nil {
			w.logger.Error("shutting down controller", "instance", inst.name, "error", err)
		}
		inst.exp.Mailbox.Close()
	}
	w.lifetimeTracker.Remove(inst.name)
	w.metrics.Forget(inst.name)
	delete(w.names, inst.name)
	w.world.RemoveEntity(inst.entity)
}

// do runs fn on the instance's mailbox, bounded by the query timeout.
func (w *World) do(ctx context.Context, inst instance, fn func() error) error {
	qctx, cancel := w.queryContext(ctx)
	defer cancel()
	err := inst.exp.Mailbox.Do(qctx, fn)
	if errors.Is(err, agent.ErrUnreachable) {
		w.metrics.IncUnreachable()
	}
	return err
}
