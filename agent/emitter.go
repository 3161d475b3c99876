package agent

import (
	"context"
	"math"

	"github.com/pthm-cable/exposure/contaminant"
)

// Field gives the concentration of one contaminant at a place and time.
type Field func(t float64, loc Location) float64

// Emitter is a Source backed by one concentration field per contaminant.
type Emitter struct {
	registry *contaminant.Registry
	fields   []Field
}

// NewEmitter creates an emitter with no contaminants.
func NewEmitter() *Emitter {
	return &Emitter{registry: contaminant.NewRegistry()}
}

// Emit registers a contaminant and its field. Re-emitting a name replaces
// its field and keeps its id.
func (e *Emitter) Emit(name string, f Field) int {
	id := e.registry.RegisterSource(name)
	if id == len(e.fields) {
		e.fields = append(e.fields, f)
	} else {
		e.fields[id] = f
	}
	return id
}

// Registry returns the emitter's contaminant registry.
func (e *Emitter) Registry() *contaminant.Registry {
	return e.registry
}

func (e *Emitter) HazardID(_ context.Context, name string) (int, error) {
	return e.registry.SourceIndex(name), nil
}

func (e *Emitter) HazardReading(_ context.Context, t float64, loc Location, id int) (float64, error) {
	if id < 0 || id >= len(e.fields) {
		return math.NaN(), nil
	}
	return e.fields[id](t, loc), nil
}

// Plume returns a field that decays exponentially with distance from origin,
// peak·exp(-d/scale), and halves every halfLife seconds. Beyond rng metres
// the field is not applicable. rng or halfLife of zero disable the limit or
// the decay.
func Plume(origin Location, peak, scale, rng, halfLife float64) Field {
	return func(t float64, loc Location) float64 {
		d := origin.Dist(loc)
		if rng > 0 && d > rng {
			return math.NaN()
		}
		c := peak * math.Exp(-d/scale)
		if halfLife > 0 {
			c *= math.Exp2(-t / halfLife)
		}
		return c
	}
}
