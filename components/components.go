// Package components defines ECS components for the world host.
//
// Capabilities are expressed by component presence: an entity with
// Emission is a contaminant source, one with Exposure is a sink.
package components

import (
	"github.com/pthm-cable/exposure/agent"
	"github.com/pthm-cable/exposure/exposure"
)

// Identity names an instance.
type Identity struct {
	ID    uint32
	Name  string
	Taxon string
}

// Emission makes an entity a contaminant source. Remote serves the emitter
// through the entity's mailbox.
type Emission struct {
	Emitter *agent.Emitter
	Mailbox *agent.Mailbox
	Remote  *agent.RemoteSource
}

// Exposure makes an entity a contaminant sink. All controller calls go
// through Mailbox so the controller has a single writer.
type Exposure struct {
	Controller *exposure.Controller
	Host       *Host
	Mailbox    *agent.Mailbox
	Profile    *agent.RemoteProfile
}

// Capabilities derives the capability set from the components present.
func Capabilities(emits, sinks bool) agent.Capability {
	var c agent.Capability
	if emits {
		c |= agent.CapSource
	}
	if sinks {
		c |= agent.CapSink | agent.CapDeathLogger
	}
	return c
}
