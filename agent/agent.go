// Package agent defines the capabilities organism instances expose to one
// another and the request/response plumbing used to reach them.
package agent

import (
	"context"
	"errors"
	"math"
	"strings"

	"github.com/pthm-cable/exposure/contaminant"
)

// ErrUnreachable is returned when a target instance does not answer a query.
// Callers treat it as fatal for the current tick and do not retry.
var ErrUnreachable = errors.New("agent: instance unreachable")

// Location is a position in world coordinates (metres).
type Location struct {
	X, Y float64
}

// Dist returns the Euclidean distance to o.
func (l Location) Dist(o Location) float64 {
	return math.Hypot(l.X-o.X, l.Y-o.Y)
}

// Capability is a set of roles an instance holds.
type Capability uint8

const (
	CapSource      Capability = 1 << iota // emits contaminants
	CapSink                               // accumulates exposure
	CapDeathLogger                        // records mortality events
)

// Has reports whether all roles in want are present.
func (c Capability) Has(want Capability) bool {
	return c&want == want
}

func (c Capability) String() string {
	if c == 0 {
		return "none"
	}
	var parts []string
	if c.Has(CapSource) {
		parts = append(parts, "source")
	}
	if c.Has(CapSink) {
		parts = append(parts, "sink")
	}
	if c.Has(CapDeathLogger) {
		parts = append(parts, "deathlogger")
	}
	return strings.Join(parts, "|")
}

// Source is an instance that emits contaminants.
type Source interface {
	// HazardID resolves a contaminant name to the source's id for it, or -1
	// when the source does not emit it.
	HazardID(ctx context.Context, name string) (int, error)
	// HazardReading returns the concentration (kg/m³) of contaminant id at
	// loc and time t. NaN means the source has no applicable value there.
	HazardReading(ctx context.Context, t float64, loc Location, id int) (float64, error)
}

// ProfileProvider is an instance whose contaminant body burden can be read.
type ProfileProvider interface {
	ExportProfile(ctx context.Context) (*contaminant.Profile, error)
}

// Directory enumerates the sources visible to a sink.
type Directory interface {
	Sources(ctx context.Context) ([]Source, error)
}

// StaticDirectory is a fixed list of sources.
type StaticDirectory []Source

func (d StaticDirectory) Sources(context.Context) ([]Source, error) {
	return d, nil
}
