package exposure

import (
	"context"
	"fmt"
	"math"

	"github.com/pthm-cable/exposure/agent"
	"github.com/pthm-cable/exposure/contaminant"
	"github.com/pthm-cable/exposure/formula"
)

// Sample reads the concentration of hazard from src at the host's location
// and records it if it is the highest seen this tick. It returns the step
// the caller should shrink to: dt when the source has nothing applicable,
// otherwise min(SampleInterval, dt).
func (c *Controller) Sample(ctx context.Context, src agent.Source, hazard string, t, dt float64) (float64, error) {
	i := c.registry.InterestIndex(hazard)
	if i < 0 {
		return dt, fmt.Errorf("%w: %s", ErrUntracked, hazard)
	}
	id, err := src.HazardID(ctx, hazard)
	if err != nil {
		return dt, fmt.Errorf("resolving %s: %w", hazard, err)
	}
	if id < 0 {
		return dt, nil
	}
	reading, err := src.HazardReading(ctx, t, c.Host.Location(), id)
	if err != nil {
		return dt, fmt.Errorf("sampling %s: %w", hazard, err)
	}
	if math.IsNaN(reading) {
		return dt, nil
	}

	r := &c.records[i]
	r.TickConcentration = math.Max(r.TickConcentration, reading)
	r.NextSample = math.Min(r.SampleInterval, dt)
	return r.NextSample, nil
}

// Intoxicate samples every tracked contaminant from every source in dir and
// returns the smallest step suggestion.
func (c *Controller) Intoxicate(ctx context.Context, dir agent.Directory, t, dt float64) (float64, error) {
	if len(c.records) == 0 {
		return dt, nil
	}
	sources, err := dir.Sources(ctx)
	if err != nil {
		return dt, fmt.Errorf("listing sources: %w", err)
	}
	for _, src := range sources {
		for _, name := range c.registry.Interests() {
			if dt, err = c.Sample(ctx, src, name, t, dt); err != nil {
				return dt, err
			}
		}
	}
	return dt, nil
}

// Ingest adds mass of hazard eaten this tick. It reports false without error
// when hazard is not tracked.
func (c *Controller) Ingest(hazard string, mass, t float64) (bool, error) {
	i := c.registry.InterestIndex(hazard)
	if i < 0 {
		return false, nil
	}
	if !(mass > 0) {
		return false, fmt.Errorf("%w: %v of %s at t=%v", ErrNonPositiveMass, mass, hazard, t)
	}
	c.records[i].TickIngested += mass
	return true, nil
}

// Settle commits one tick of exposure. Acute hazard is taken from the
// peak concentration, new loads from the load update formulas and chronic
// hazard from the new loads; both hazard batches are applied to the
// accumulator, acute first. A NaN actualDt means the instance did not act
// and leaves all state untouched. If any load update fails nothing is
// committed.
func (c *Controller) Settle(t, proposedDt, actualDt float64) error {
	n := len(c.records)
	if n == 0 || math.IsNaN(actualDt) {
		return nil
	}

	imass := c.Host.IndividualMass()
	for i := range c.records {
		r := &c.records[i]
		if !r.configured() {
			return fmt.Errorf("%w: %s", ErrNotConfigured, r.Name)
		}
		c.acute[i] = r.surfaces[AcuteLethal].Value(r.TickConcentration, actualDt)

		c.bind(r, t, actualDt, imass)
		if err := formula.EvalVariables(c.scope, r.variables); err != nil {
			return fmt.Errorf("settling %s: %w", r.Name, err)
		}
		load, err := r.loadUpdate.Eval(c.scope)
		if err != nil {
			return fmt.Errorf("settling %s: %w", r.Name, err)
		}
		if math.IsNaN(load) || math.IsInf(load, 0) {
			return fmt.Errorf("%w: %s = %v", ErrBadLoad, r.Name, load)
		}
		c.loads[i] = load
	}

	for i := range c.records {
		r := &c.records[i]
		r.CurrentLoad = c.loads[i]
		if !c.profile.Set(r.Name, r.CurrentLoad) {
			c.Logger.Warn("profile has no entry for tracked contaminant", "instance", c.name, "contaminant", r.Name)
		}
	}

	c.applyBatch(c.acute, t, imass, CauseAcute)

	for i := range c.records {
		r := &c.records[i]
		c.acute[i] = r.surfaces[ChronicLethal].Value(r.CurrentLoad, actualDt)
	}
	c.applyBatch(c.acute, t, imass, CauseChronic)

	for i := range c.records {
		c.records[i].resetTick()
	}
	c.Logger.Debug("settled", "instance", c.name, "t", t, "proposed_dt", proposedDt, "dt", actualDt, "members", c.cube.Value())
	return nil
}

// applyBatch applies levels to the hazard axes and logs the resulting deaths.
func (c *Controller) applyBatch(levels []float64, t, imass float64, cause string) {
	hit := false
	for _, l := range levels {
		if l > 0 {
			hit = true
			break
		}
	}
	if !hit {
		return
	}
	before := c.cube.Value()
	after := c.cube.AdjustByLevels(levels, 1)
	c.logDeath(Death{
		Time:      t,
		Instance:  c.name,
		Taxon:     c.taxon,
		Count:     before - after,
		Remaining: after,
		Mass:      imass,
		Cause:     cause,
	})
}

func (c *Controller) logDeath(d Death) {
	c.Logger.Debug("deaths", "instance", d.Instance, "cause", d.Cause, "count", d.Count, "remaining", d.Remaining)
	if c.Deaths != nil {
		c.Deaths.LogDeath(d)
	}
}

// bind sets the per-evaluation variables for r.
func (c *Controller) bind(r *Record, t, dt, imass float64) {
	c.scope.Bind(VarConc, r.TickConcentration)
	c.scope.Bind(VarDT, dt)
	c.scope.Bind(VarMass, imass)
	c.scope.Bind(VarAte, r.TickIngested)
	c.scope.Bind(VarCurrentLoad, r.CurrentLoad)
	c.scope.Bind(VarTime, t)
	for k, v := range r.constants {
		c.scope.Bind(k, v)
	}
}

// QueryImpairment combines the impairment of every contaminant with a
// formula for e as independent risks, 1 - Π(1 - vᵢ). Contaminants without
// a formula for e do not contribute.
func (c *Controller) QueryImpairment(e Endpoint, t float64) (float64, error) {
	if !e.Impairment() {
		return 0, fmt.Errorf("%w: %s", ErrNotImpairment, e)
	}
	imass := c.Host.IndividualMass()
	unaffected := 1.0
	for i := range c.records {
		r := &c.records[i]
		p := r.impairments[e]
		if p == nil {
			continue
		}
		c.bind(r, t, 0, imass)
		if err := formula.EvalVariables(c.scope, r.variables); err != nil {
			return 0, fmt.Errorf("%s impairment of %s: %w", e, r.Name, err)
		}
		v, err := p.Eval(c.scope)
		if err != nil {
			return 0, fmt.Errorf("%s impairment of %s: %w", e, r.Name, err)
		}
		unaffected *= 1 - math.Min(1, math.Max(0, v))
	}
	return 1 - unaffected, nil
}

// ExportProfile returns a copy of the profile for other instances to read.
func (c *Controller) ExportProfile(context.Context) (*contaminant.Profile, error) {
	return c.profile.Clone(), nil
}
