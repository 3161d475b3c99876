package telemetry

import "github.com/pthm-cable/exposure/exposure"

// LifetimeStats tracks per-instance statistics over its lifetime.
type LifetimeStats struct {
	SpawnTick       int32   `json:"spawn_tick"`
	SpawnTime       float64 `json:"spawn_time"`
	SurvivalTimeSec float64 `json:"survival_time_sec"`

	InitialMembers float64 `json:"initial_members"`
	PeakMembers    float64 `json:"peak_members"`

	// Deaths by cause
	AcuteDeaths   float64 `json:"acute_deaths"`
	ChronicDeaths float64 `json:"chronic_deaths"`
	NaturalDeaths float64 `json:"natural_deaths"`

	// Exposure
	PeakLoad      float64 `json:"peak_load"`
	TotalIngested float64 `json:"total_ingested"` // kg per individual across all contaminants
}

// Poisoned returns the fraction of initial members lost to poisoning.
func (ls *LifetimeStats) Poisoned() float64 {
	if ls == nil || ls.InitialMembers <= 0 {
		return 0
	}
	return (ls.AcuteDeaths + ls.ChronicDeaths) / ls.InitialMembers
}

// LifetimeTracker manages per-instance lifetime statistics.
type LifetimeTracker struct {
	stats map[string]*LifetimeStats
}

// NewLifetimeTracker creates a new lifetime tracker.
func NewLifetimeTracker() *LifetimeTracker {
	return &LifetimeTracker{
		stats: make(map[string]*LifetimeStats),
	}
}

// Register creates lifetime stats for a new instance.
func (lt *LifetimeTracker) Register(instance string, spawnTick int32, spawnTime, members float64) {
	lt.stats[instance] = &LifetimeStats{
		SpawnTick:      spawnTick,
		SpawnTime:      spawnTime,
		InitialMembers: members,
		PeakMembers:    members,
	}
}

// Get returns the lifetime stats for an instance, or nil if not found.
func (lt *LifetimeTracker) Get(instance string) *LifetimeStats {
	return lt.stats[instance]
}

// Remove removes an instance's stats and returns them.
func (lt *LifetimeTracker) Remove(instance string) *LifetimeStats {
	stats := lt.stats[instance]
	delete(lt.stats, instance)
	return stats
}

// RecordDeath adds count deaths under cause.
func (lt *LifetimeTracker) RecordDeath(instance, cause string, count float64) {
	s := lt.stats[instance]
	if s == nil {
		return
	}
	switch cause {
	case exposure.CauseAcute:
		s.AcuteDeaths += count
	case exposure.CauseChronic:
		s.ChronicDeaths += count
	default:
		s.NaturalDeaths += count
	}
}

// RecordIngest adds ingested mass to the cumulative total.
func (lt *LifetimeTracker) RecordIngest(instance string, mass float64) {
	if s := lt.stats[instance]; s != nil {
		s.TotalIngested += mass
	}
}

// UpdateMembers tracks peak membership.
func (lt *LifetimeTracker) UpdateMembers(instance string, members float64) {
	if s := lt.stats[instance]; s != nil && members > s.PeakMembers {
		s.PeakMembers = members
	}
}

// UpdateLoad tracks the peak tissue load of any contaminant.
func (lt *LifetimeTracker) UpdateLoad(instance string, load float64) {
	if s := lt.stats[instance]; s != nil && load > s.PeakLoad {
		s.PeakLoad = load
	}
}

// UpdateSurvivalTime updates the survival time based on the current
// simulated time.
func (lt *LifetimeTracker) UpdateSurvivalTime(instance string, simTime float64) {
	if s := lt.stats[instance]; s != nil {
		s.SurvivalTimeSec = simTime - s.SpawnTime
	}
}

// All returns all tracked stats (for snapshots).
func (lt *LifetimeTracker) All() map[string]*LifetimeStats {
	return lt.stats
}

// Count returns the number of tracked instances.
func (lt *LifetimeTracker) Count() int {
	return len(lt.stats)
}
