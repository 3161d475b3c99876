package components

import "github.com/pthm-cable/exposure/agent"

// Position represents an entity's world position in metres.
type Position struct {
	X, Y float64
}

// Location converts to the query coordinate type.
func (p Position) Location() agent.Location {
	return agent.Location{X: p.X, Y: p.Y}
}
