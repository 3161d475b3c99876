package components

import (
	"math"
	"testing"

	"github.com/pthm-cable/exposure/agent"
)

func TestNaturalLoss(t *testing.T) {
	tests := []struct {
		name string
		rate float64
		dt   float64
		want float64
	}{
		{"one day", 0.1, 86400, 0.1},
		{"two days", 0.1, 2 * 86400, 0.19},
		{"none", 0, 86400, 0},
		{"no time", 0.5, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := Organism{NaturalMortality: tt.rate}
			if got := o.NaturalLoss(tt.dt); math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("NaturalLoss(%v) = %v, want %v", tt.dt, got, tt.want)
			}
		})
	}
}

func TestCapabilities(t *testing.T) {
	c := Capabilities(false, true)
	if !c.Has(agent.CapSink) || !c.Has(agent.CapDeathLogger) || c.Has(agent.CapSource) {
		t.Errorf("Capabilities(false, true) = %v", c)
	}
	if c := Capabilities(true, false); c != agent.CapSource {
		t.Errorf("Capabilities(true, false) = %v, want %v", c, agent.CapSource)
	}
}
