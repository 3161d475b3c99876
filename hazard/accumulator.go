// Package hazard implements a multi-hazard mortality accumulator.
//
// Each hazard owns one axis of a unit hypercube. An axis level is the
// fraction of the population that hazard has killed in isolation; the
// surviving fraction is the product of the complements of all levels, so
// hazards never claim the same death twice.
package hazard

import (
	"fmt"
	"math"
)

// Accumulator tracks per-hazard mortality levels against a reference population.
// Axis 0 is reserved for the baseline (natural) mortality of the host.
type Accumulator struct {
	ref    float64
	levels []float64
}

// New creates an accumulator with axisCount axes and a reference population of 1.
func New(axisCount int) *Accumulator {
	return NewWithReference(axisCount, 1)
}

// NewWithReference creates an accumulator with axisCount axes, all at level 0.
func NewWithReference(axisCount int, ref float64) *Accumulator {
	if axisCount < 0 {
		panic(fmt.Sprintf("hazard: negative axis count %d", axisCount))
	}
	return &Accumulator{
		ref:    ref,
		levels: make([]float64, axisCount),
	}
}

// Axes returns the number of axes.
func (a *Accumulator) Axes() int {
	return len(a.levels)
}

// Reference returns the reference population.
func (a *Accumulator) Reference() float64 {
	return a.ref
}

// Level returns the level of axis i.
func (a *Accumulator) Level(i int) float64 {
	return a.levels[i]
}

// Survivorship returns the surviving fraction Π(1 - level).
func (a *Accumulator) Survivorship() float64 {
	return a.product(-1)
}

// Value returns the surviving count, ceil(ref · Π(1 - level)).
func (a *Accumulator) Value() float64 {
	return math.Ceil(a.ref * a.product(-1))
}

// AdjustByCount removes up to removed individuals through the given axis and
// returns how many individuals the surviving count actually dropped by.
// The removal is clamped to what the other axes leave alive.
func (a *Accumulator) AdjustByCount(removed float64, axis int) float64 {
	if axis < 0 || axis >= len(a.levels) {
		panic(fmt.Sprintf("hazard: axis %d out of range [0,%d)", axis, len(a.levels)))
	}
	q := a.product(axis)
	if q <= 0 || a.ref <= 0 || !(removed > 0) {
		return 0
	}
	before := a.Value()

	avail := a.ref * q
	if removed > avail {
		removed = avail
	}
	a.levels[axis] = math.Min(1, a.levels[axis]+removed/avail)

	return math.Max(0, math.Floor(before-a.Value()))
}

// AdjustByLevels applies a batch of per-axis levels starting at axis base.
// Each level l kills a fraction l of the survivors left on its axis, so
// level[base+i] becomes level + l·(1 - level). Returns the new surviving count.
func (a *Accumulator) AdjustByLevels(levels []float64, base int) float64 {
	if base < 0 || base+len(levels) > len(a.levels) {
		panic(fmt.Sprintf("hazard: level batch [%d,%d) exceeds %d axes", base, base+len(levels), len(a.levels)))
	}
	for i, l := range levels {
		checkLevel(l, base+i)
		v := a.levels[base+i]
		a.levels[base+i] = math.Min(1, v+l*(1-v))
	}
	return math.Max(0, a.Value())
}

// AddDimension appends a new axis at level 0.
func (a *Accumulator) AddDimension() {
	a.levels = append(a.levels, 0)
}

// product computes Π(1 - level) over all axes except skip.
func (a *Accumulator) product(skip int) float64 {
	q := 1.0
	for i, v := range a.levels {
		checkLevel(v, i)
		if i == skip {
			continue
		}
		q *= 1 - v
	}
	return q
}

func checkLevel(v float64, axis int) {
	if !(v >= 0 && v <= 1) {
		panic(fmt.Sprintf("hazard: axis %d level %v outside [0,1]", axis, v))
	}
}
