package telemetry

import "github.com/pthm-cable/exposure/exposure"

// Collector accumulates events within time windows and produces WindowStats.
type Collector struct {
	windowDurationSec float64

	// Current window tracking
	windowStartTick int32
	windowStartTime float64

	// Event counters for current window
	acuteDeaths   float64
	chronicDeaths float64
	naturalDeaths float64
	extinctions   int
}

// NewCollector creates a new stats collector.
// windowDurationSec: how long each stats window lasts in simulation seconds
func NewCollector(windowDurationSec float64) *Collector {
	return &Collector{windowDurationSec: windowDurationSec}
}

// RecordDeath adds count deaths under cause to the current window.
func (c *Collector) RecordDeath(cause string, count float64) {
	switch cause {
	case exposure.CauseAcute:
		c.acuteDeaths += count
	case exposure.CauseChronic:
		c.chronicDeaths += count
	default:
		c.naturalDeaths += count
	}
}

// RecordExtinction records an instance whose members all died.
func (c *Collector) RecordExtinction() {
	c.extinctions++
}

// ShouldFlush returns true if the current window has ended.
func (c *Collector) ShouldFlush(simTime float64) bool {
	return simTime-c.windowStartTime >= c.windowDurationSec
}

// PopulationSample is the state of all instances at the end of a window.
type PopulationSample struct {
	Instances   int
	Members     float64
	Loads       []float64
	Impairments [3]float64 // reproduction, foraging, movement; averaged over instances
}

// Flush produces stats for the current window and resets counters.
func (c *Collector) Flush(tick int32, simTime float64, pop PopulationSample) WindowStats {
	loads := ComputeLoadStats(pop.Loads)
	stats := WindowStats{
		WindowStartTick:        c.windowStartTick,
		WindowEndTick:          tick,
		SimTimeSec:             simTime,
		Instances:              pop.Instances,
		Members:                pop.Members,
		AcuteDeaths:            c.acuteDeaths,
		ChronicDeaths:          c.chronicDeaths,
		NaturalDeaths:          c.naturalDeaths,
		Extinctions:            c.extinctions,
		LoadMean:               loads.Mean,
		LoadP50:                loads.P50,
		LoadP90:                loads.P90,
		LoadMax:                loads.Max,
		ReproductionImpairment: pop.Impairments[0],
		ForagingImpairment:     pop.Impairments[1],
		MovementImpairment:     pop.Impairments[2],
	}

	c.windowStartTick = tick
	c.windowStartTime = simTime
	c.acuteDeaths = 0
	c.chronicDeaths = 0
	c.naturalDeaths = 0
	c.extinctions = 0

	return stats
}

// Reset discards the current window and starts a new one at tick.
func (c *Collector) Reset(tick int32, simTime float64) {
	*c = Collector{
		windowDurationSec: c.windowDurationSec,
		windowStartTick:   tick,
		windowStartTime:   simTime,
	}
}
