package world

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/exposure/agent"
	"github.com/pthm-cable/exposure/components"
	"github.com/pthm-cable/exposure/config"
	"github.com/pthm-cable/exposure/exposure"
	"github.com/pthm-cable/exposure/units"
)

// SpawnScenario spawns every source and organism of the configured scenario.
func (w *World) SpawnScenario() error {
	for _, s := range w.cfg.Scenario.Sources {
		if _, err := w.SpawnSource(s); err != nil {
			return err
		}
	}
	for _, o := range w.cfg.Scenario.Organisms {
		if _, err := w.SpawnOrganism(o); err != nil {
			return err
		}
	}
	return nil
}

// SpawnSource creates a contaminant source with one plume per configured
// contaminant.
func (w *World) SpawnSource(spec config.SourceSpec) (ecs.Entity, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ecs.Entity{}, ErrClosed
	}
	if _, ok := w.names[spec.Name]; ok {
		return ecs.Entity{}, fmt.Errorf("%w: %s", ErrDuplicateName, spec.Name)
	}
	srcCfg, ok := w.cfg.SourceConfig(spec.Taxon)
	if !ok {
		return ecs.Entity{}, fmt.Errorf("source %s: %w: %s", spec.Name, exposure.ErrUnknownTaxon, spec.Taxon)
	}

	origin := agent.Location{X: spec.X, Y: spec.Y}
	emitter := agent.NewEmitter()
	for _, p := range spec.Plumes {
		if !slices.Contains(srcCfg.Contaminants, p.Contaminant) {
			return ecs.Entity{}, fmt.Errorf("source %s: taxon %s does not emit %s", spec.Name, spec.Taxon, p.Contaminant)
		}
		peak, err := units.Parse(p.Peak, units.Concentration)
		if err != nil {
			return ecs.Entity{}, fmt.Errorf("source %s plume %s peak: %w", spec.Name, p.Contaminant, err)
		}
		var halfLife float64
		if p.HalfLife != "" {
			if halfLife, err = units.Parse(p.HalfLife, units.Time); err != nil {
				return ecs.Entity{}, fmt.Errorf("source %s plume %s half_life: %w", spec.Name, p.Contaminant, err)
			}
		}
		emitter.Emit(p.Contaminant, agent.Plume(origin, peak, p.Scale, p.Range, halfLife))
	}

	mb := agent.NewMailbox(mailboxDepth)
	id := components.Identity{ID: w.nextID, Name: spec.Name, Taxon: spec.Taxon}
	w.nextID++
	pos := components.Position{X: spec.X, Y: spec.Y}
	em := components.Emission{Emitter: emitter, Mailbox: mb, Remote: agent.NewRemoteSource(mb, emitter)}

	entity := w.sourceMapper.NewEntity(&id, &pos, &em)
	w.names[spec.Name] = entity

	w.logger.Info("spawned source",
		"name", spec.Name,
		"taxon", spec.Taxon,
		"contaminants", emitter.Registry().Sources(),
		"capabilities", components.Capabilities(true, false).String(),
	)
	return entity, nil
}

// SpawnOrganism creates an organism instance. When its taxon has a
// contaminant sink the instance gets an exposure controller.
func (w *World) SpawnOrganism(spec config.OrganismSpec) (ecs.Entity, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ecs.Entity{}, ErrClosed
	}
	if _, ok := w.names[spec.Name]; ok {
		return ecs.Entity{}, fmt.Errorf("%w: %s", ErrDuplicateName, spec.Name)
	}
	sink, ok := w.cfg.SinkConfig(spec.Taxon)
	if !ok {
		return ecs.Entity{}, fmt.Errorf("organism %s: %w: %s", spec.Name, exposure.ErrUnknownTaxon, spec.Taxon)
	}

	mass, ok := w.cfg.Derived.OrganismMass[spec.Name]
	if !ok {
		var err error
		if mass, err = units.Parse(spec.Mass, units.Mass); err != nil {
			return ecs.Entity{}, fmt.Errorf("organism %s mass: %w", spec.Name, err)
		}
	}
	diet, err := w.diet(spec)
	if err != nil {
		return ecs.Entity{}, err
	}

	host := &components.Host{
		Loc:     agent.Location{X: spec.X, Y: spec.Y},
		Mass:    mass,
		Initial: spec.Members,
	}

	var exp *components.Exposure
	if !sink.Disable && len(sink.Contaminants) > 0 {
		ctrl := exposure.New(exposure.Deps{
			Params:    w.cfg,
			Evaluator: w.evaluator,
			Host:      host,
			Deaths:    w.deaths,
			Logger:    w.logger,
		})
		if err := ctrl.Setup(spec.Taxon, spec.Name); err != nil {
			return ecs.Entity{}, fmt.Errorf("organism %s: %w", spec.Name, err)
		}
		mb := agent.NewMailbox(mailboxDepth)
		exp = &components.Exposure{
			Controller: ctrl,
			Host:       host,
			Mailbox:    mb,
			Profile:    agent.NewRemoteProfile(mb, ctrl),
		}
	}

	id := components.Identity{ID: w.nextID, Name: spec.Name, Taxon: spec.Taxon}
	w.nextID++
	pos := components.Position{X: spec.X, Y: spec.Y}
	org := components.Organism{
		IndividualMass:   mass,
		InitialMembers:   spec.Members,
		Members:          spec.Members,
		NaturalMortality: spec.NaturalMortality,
		Diet:             diet,
		Alive:            spec.Members > 0,
	}

	entity := w.organismMapper.NewEntity(&id, &pos, &org)
	if exp != nil {
		w.exposureMap.Add(entity, exp)
		w.remoteMu.Lock()
		w.remotes[spec.Name] = exp.Profile
		w.remoteMu.Unlock()
	}
	w.names[spec.Name] = entity

	w.lifetimeTracker.Register(spec.Name, w.tick, w.simTime, spec.Members)
	w.metrics.SetMembers(spec.Name, spec.Members)

	w.logger.Info("spawned organism",
		"name", spec.Name,
		"taxon", spec.Taxon,
		"members", spec.Members,
		"mass", mass,
		"capabilities", components.Capabilities(false, exp != nil).String(),
	)
	return entity, nil
}

// diet resolves the ingestion rates of spec in declaration order.
func (w *World) diet(spec config.OrganismSpec) ([]components.Ingestion, error) {
	rates, ok := w.cfg.Derived.DailyIngestion[spec.Name]
	var diet []components.Ingestion
	for _, in := range spec.Diet {
		if slices.ContainsFunc(diet, func(d components.Ingestion) bool { return d.Contaminant == in.Contaminant }) {
			continue
		}
		rate, found := rates[in.Contaminant]
		if !ok || !found {
			var err error
			if rate, err = units.Parse(in.Daily, units.Mass); err != nil {
				return nil, fmt.Errorf("organism %s diet %s: %w", spec.Name, in.Contaminant, err)
			}
		}
		diet = append(diet, components.Ingestion{Contaminant: in.Contaminant, Daily: rate})
	}
	return diet, nil
}

// instance is a snapshot of one organism entity taken outside a query.
type instance struct {
	entity ecs.Entity
	id     uint32
	name   string
	taxon  string
	exp    *components.Exposure // nil when the instance is not a sink
}

// sinks collects all organism instances in spawn order. Query iteration
// must complete before the world is modified.
func (w *World) sinks() []instance {
	var out []instance
	query := w.organismFilter.Query()
	for query.Next() {
		entity := query.Entity()
		id, _, _ := query.Get()
		inst := instance{entity: entity, id: id.ID, name: id.Name, taxon: id.Taxon}
		if w.exposureMap.HasAll(entity) {
			exp := *w.exposureMap.Get(entity)
			inst.exp = &exp
		}
		out = append(out, inst)
	}
	slices.SortFunc(out, func(a, b instance) int { return cmp.Compare(a.id, b.id) })
	return out
}

// sources collects the emission components of all sources.
func (w *World) sources() []components.Emission {
	var out []components.Emission
	query := w.sourceFilter.Query()
	for query.Next() {
		_, em := query.Get()
		out = append(out, *em)
	}
	return out
}

// directory lists every source as seen through its mailbox.
func (w *World) directory() agent.StaticDirectory {
	srcs := w.sources()
	dir := make(agent.StaticDirectory, 0, len(srcs))
	for _, s := range srcs {
		dir = append(dir, s.Remote)
	}
	return dir
}
