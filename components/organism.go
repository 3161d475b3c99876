package components

import (
	"math"

	"github.com/pthm-cable/exposure/agent"
)

// Organism holds population state of an instance.
type Organism struct {
	IndividualMass   float64 // kg
	InitialMembers   float64
	Members          float64 // authoritative only when no controller owns the count
	NaturalMortality float64 // fraction per day
	Diet             []Ingestion
	Alive            bool
}

// Ingestion is a steady intake of a contaminant per individual.
type Ingestion struct {
	Contaminant string
	Daily       float64 // kg per day
}

// NaturalLoss returns the fraction of members lost to background mortality
// over dt seconds.
func (o *Organism) NaturalLoss(dt float64) float64 {
	if o.NaturalMortality <= 0 || dt <= 0 {
		return 0
	}
	return 1 - math.Pow(1-o.NaturalMortality, dt/86400)
}

// Host is the exposure.Host of an instance. It is held by pointer so the
// controller sees position updates without reaching into ECS storage.
type Host struct {
	Loc     agent.Location
	Mass    float64
	Initial float64
}

func (h *Host) Location() agent.Location { return h.Loc }
func (h *Host) IndividualMass() float64 { return h.Mass }
func (h *Host) InitialMembers() float64 { return h.Initial }
