package exposure

import (
	"fmt"
	"math"

	"github.com/pthm-cable/exposure/doseresponse"
	"github.com/pthm-cable/exposure/formula"
	"github.com/pthm-cable/exposure/pack"
)

// Record is the exposure state of one tracked contaminant.
type Record struct {
	Name              string
	CurrentLoad       float64 // persistent tissue load
	TickConcentration float64 // peak sampled concentration this tick
	TickIngested      float64 // mass ingested this tick
	SampleInterval    float64 // longest step the contaminant tolerates, seconds
	NextSample        float64 // last step suggestion returned by Sample

	surfaces    [numEndpoints]doseresponse.Surface
	impairments [numEndpoints]formula.Program
	loadUpdate  formula.Program
	constants   map[string]float64
	variables   []formula.Variable
}

// Surface returns the dose-response surface configured for e.
func (r *Record) Surface(e Endpoint) doseresponse.Surface {
	return r.surfaces[e]
}

// HasImpairment reports whether an impairment formula is configured for e.
func (r *Record) HasImpairment(e Endpoint) bool {
	return r.impairments[e] != nil
}

func (r *Record) configured() bool {
	return r.loadUpdate != nil
}

func (r *Record) resetTick() {
	r.TickConcentration = 0
	r.TickIngested = 0
}

// MarshalBinary encodes the persistent part of the record: load and name.
func (r *Record) MarshalBinary() ([]byte, error) {
	w := pack.NewWriter()
	w.Float64(r.CurrentLoad)
	w.String(r.Name)
	return w.Bytes(), nil
}

// UnmarshalBinary restores load and name. Tick fields are zeroed and the
// record must be reconfigured before use.
func (r *Record) UnmarshalBinary(data []byte) error {
	rd := pack.NewReader(data)
	load, err := rd.Float64()
	if err != nil {
		return fmt.Errorf("record load: %w", err)
	}
	name, err := rd.String()
	if err != nil {
		return fmt.Errorf("record name: %w", err)
	}
	if err := rd.Done(); err != nil {
		return fmt.Errorf("record: %w", err)
	}
	if name == "" {
		return fmt.Errorf("%w: unnamed record", ErrCorruptState)
	}
	*r = Record{Name: name, CurrentLoad: load, SampleInterval: math.Inf(1)}
	return nil
}
