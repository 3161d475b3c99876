package world

import (
	"github.com/pthm-cable/exposure/exposure"
	"github.com/pthm-cable/exposure/telemetry"
)

// deathRouter feeds controller death events to the run's death log and the
// per-instance lifetime stats.
type deathRouter struct {
	log      *telemetry.DeathLog
	lifetime *telemetry.LifetimeTracker
}

func (d deathRouter) LogDeath(ev exposure.Death) {
	d.lifetime.RecordDeath(ev.Instance, ev.Cause, ev.Count)
	d.log.LogDeath(ev)
}

func (d deathRouter) Flush() error {
	return d.log.Flush()
}
