package exposure

import (
	"fmt"

	"github.com/pthm-cable/exposure/contaminant"
	"github.com/pthm-cable/exposure/hazard"
	"github.com/pthm-cable/exposure/pack"
)

// MarshalBinary encodes the persistent controller state: taxon, record
// count, accumulator (absent when nothing is tracked), instance name and
// one record per tracked contaminant. It must only be called between ticks.
func (c *Controller) MarshalBinary() ([]byte, error) {
	w := pack.NewWriter()
	w.String(c.taxon)
	w.Int(len(c.records))
	if c.cube != nil {
		b, err := c.cube.MarshalBinary()
		if err != nil {
			return nil, err
		}
		w.Part(b)
	} else {
		w.Absent()
	}
	w.String(c.name)
	for i := range c.records {
		b, err := c.records[i].MarshalBinary()
		if err != nil {
			return nil, err
		}
		w.Part(b)
	}
	return w.Bytes(), nil
}

// UnmarshalBinary restores state written by MarshalBinary. The registry and
// profile are rebuilt from the records. Reinitialize must be called before
// the next tick to recompile formulas.
func (c *Controller) UnmarshalBinary(data []byte) error {
	r := pack.NewReader(data)
	taxon, err := r.String()
	if err != nil {
		return fmt.Errorf("%w: taxon: %v", ErrCorruptState, err)
	}
	n, err := r.Int()
	if err != nil {
		return fmt.Errorf("%w: count: %v", ErrCorruptState, err)
	}
	if n < 0 {
		return fmt.Errorf("%w: negative record count %d", ErrCorruptState, n)
	}

	cubeData, hasCube, err := r.Part()
	if err != nil {
		return fmt.Errorf("%w: accumulator: %v", ErrCorruptState, err)
	}
	var cube *hazard.Accumulator
	if hasCube {
		cube = &hazard.Accumulator{}
		if err := cube.UnmarshalBinary(cubeData); err != nil {
			return fmt.Errorf("%w: %v", ErrCorruptState, err)
		}
		if cube.Axes() != n+1 {
			return fmt.Errorf("%w: %d records but %d axes", ErrCorruptState, n, cube.Axes())
		}
	} else if n > 0 {
		return fmt.Errorf("%w: %d records without accumulator", ErrCorruptState, n)
	}

	name, err := r.String()
	if err != nil {
		return fmt.Errorf("%w: name: %v", ErrCorruptState, err)
	}

	records := make([]Record, n)
	reg := contaminant.NewRegistry()
	prof := contaminant.NewProfile()
	for i := range records {
		b, err := r.Required()
		if err != nil {
			return fmt.Errorf("%w: record %d: %v", ErrCorruptState, i, err)
		}
		if err := records[i].UnmarshalBinary(b); err != nil {
			return fmt.Errorf("%w: record %d: %v", ErrCorruptState, i, err)
		}
		if reg.RegisterInterest(records[i].Name) != i {
			return fmt.Errorf("%w: duplicate record %s", ErrCorruptState, records[i].Name)
		}
		if err := prof.Append(records[i].Name, records[i].CurrentLoad); err != nil {
			return err
		}
	}
	if err := r.Done(); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptState, err)
	}

	c.taxon, c.name = taxon, name
	c.cube = cube
	c.records = records
	c.registry = reg
	c.profile = prof
	c.allocScratch()
	return nil
}

// Attach adopts a separately restored registry and profile. The registry's
// interests must match the tracked records in order.
func (c *Controller) Attach(reg *contaminant.Registry, prof *contaminant.Profile) error {
	if reg.CountInterests() != len(c.records) {
		return fmt.Errorf("%w: registry has %d interests, %d records", ErrHazardSetChanged, reg.CountInterests(), len(c.records))
	}
	for i := range c.records {
		if reg.InterestAt(i) != c.records[i].Name {
			return fmt.Errorf("%w: interest %d is %s, record is %s", ErrHazardSetChanged, i, reg.InterestAt(i), c.records[i].Name)
		}
	}
	for i := range c.records {
		r := &c.records[i]
		if m, ok := prof.Mass(r.Name); ok && m != r.CurrentLoad {
			c.Logger.Warn("restored profile disagrees with record", "instance", c.name, "contaminant", r.Name, "profile", m, "load", r.CurrentLoad)
			prof.Set(r.Name, r.CurrentLoad)
		}
	}
	c.registry = reg
	c.profile = prof
	return nil
}

// Adopt replaces c's state with src's, keeping c's collaborators. It is how
// a restored controller is swapped in once fully decoded; src must not be
// used afterwards.
func (c *Controller) Adopt(src *Controller) {
	deps := c.Deps
	*c = *src
	c.Deps = deps
}
