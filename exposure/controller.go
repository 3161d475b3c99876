// Package exposure accumulates contaminant exposure for one organism
// instance and settles it into mortality and tissue load each tick.
//
// A Controller owns one Record per tracked contaminant and a
// hazard.Accumulator with one axis per contaminant plus the baseline axis 0.
// Each tick the host samples sources (Sample, Intoxicate), reports ingestion
// (Ingest) and then calls Settle once.
package exposure

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/pthm-cable/exposure/agent"
	"github.com/pthm-cable/exposure/config"
	"github.com/pthm-cable/exposure/contaminant"
	"github.com/pthm-cable/exposure/doseresponse"
	"github.com/pthm-cable/exposure/formula"
	"github.com/pthm-cable/exposure/hazard"
	"github.com/pthm-cable/exposure/units"
)

var (
	ErrNoResponse       = errors.New("exposure: contaminant has no configured response")
	ErrNoLoadUpdate     = errors.New("exposure: contaminant has no load update formula")
	ErrHazardSetChanged = errors.New("exposure: tracked contaminant set changed")
	ErrNonPositiveMass  = errors.New("exposure: ingested mass must be positive")
	ErrNotImpairment    = errors.New("exposure: endpoint has no impairment formula")
	ErrNotConfigured    = errors.New("exposure: controller not configured")
	ErrUntracked        = errors.New("exposure: contaminant not tracked")
	ErrBadLoad          = errors.New("exposure: load update produced a non-finite load")
	ErrShutdown         = errors.New("exposure: controller already shut down")
	ErrCorruptState     = errors.New("exposure: corrupt controller state")
	ErrUnknownTaxon     = errors.New("exposure: unknown taxon")
)

// Cause labels attached to death events.
const (
	CauseAcute   = "AcutePoisoning"
	CauseChronic = "ChronicPoisoning"
	CauseNatural = "NaturalMortality"
)

// Variables bound for every formula evaluation.
const (
	VarConc        = "conc"
	VarDT          = "dt"
	VarMass        = "imass"
	VarAte         = "ate"
	VarCurrentLoad = "current_load"
	VarTime        = "t"
)

var builtinVars = []string{VarConc, VarDT, VarMass, VarAte, VarCurrentLoad, VarTime}

// ParamSource supplies per-taxon contaminant configuration.
type ParamSource interface {
	SinkConfig(taxon string) (config.SinkConfig, bool)
}

// Host is the organism instance a controller belongs to.
type Host interface {
	Location() agent.Location
	IndividualMass() float64 // kg
	InitialMembers() float64
}

// Death is one mortality event.
type Death struct {
	Time      float64
	Instance  string
	Taxon     string
	Count     float64
	Remaining float64
	Mass      float64
	Cause     string
}

// DeathLogger receives mortality events.
type DeathLogger interface {
	LogDeath(d Death)
	Flush() error
}

// Deps are the collaborators of a Controller. Deaths and Logger are optional.
type Deps struct {
	Params    ParamSource
	Evaluator formula.Evaluator
	Host      Host
	Deaths    DeathLogger
	Logger    *slog.Logger
}

// Controller settles contaminant exposure for one organism instance.
// It is not safe for concurrent use; the host is its only writer.
type Controller struct {
	Deps

	taxon string
	name  string

	registry *contaminant.Registry
	profile  *contaminant.Profile
	cube     *hazard.Accumulator
	records  []Record

	scope *formula.Scope
	acute []float64
	loads []float64
	shut  bool
}

// New creates an unconfigured controller.
func New(d Deps) *Controller {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Controller{
		Deps:     d,
		registry: contaminant.NewRegistry(),
		profile:  contaminant.NewProfile(),
		scope:    formula.NewScope(),
	}
}

// Setup loads the contaminants taxon is sensitive to and prepares one
// record and hazard axis for each.
func (c *Controller) Setup(taxon, name string) error {
	c.taxon, c.name = taxon, name

	sink, ok := c.Params.SinkConfig(taxon)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTaxon, taxon)
	}
	if sink.Disable {
		sink.Contaminants = nil
	}

	for _, cc := range sink.Contaminants {
		c.registry.RegisterInterest(cc.Name)
	}
	if c.registry.CountInterests() != len(sink.Contaminants) {
		return fmt.Errorf("%w: duplicate contaminant in taxon %s", ErrHazardSetChanged, taxon)
	}

	c.records = make([]Record, len(sink.Contaminants))
	for i, cc := range sink.Contaminants {
		c.records[i].Name = cc.Name
		if err := c.configure(&c.records[i], cc); err != nil {
			return fmt.Errorf("taxon %s: %w", taxon, err)
		}
		if err := c.profile.Append(cc.Name, c.records[i].CurrentLoad); err != nil {
			return err
		}
	}

	if n := len(c.records); n > 0 {
		c.cube = hazard.NewWithReference(n+1, c.Host.InitialMembers())
	}
	c.allocScratch()

	c.Logger.Debug("exposure setup", "instance", name, "taxon", taxon, "contaminants", c.registry.Interests())
	return nil
}

// Reinitialize recompiles formulas and reloads surfaces for the retained
// taxon without touching identity, loads or the accumulator. It is used
// after state has been restored.
func (c *Controller) Reinitialize() error {
	sink, ok := c.Params.SinkConfig(c.taxon)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTaxon, c.taxon)
	}
	if sink.Disable {
		sink.Contaminants = nil
	}
	if len(sink.Contaminants) != len(c.records) {
		return fmt.Errorf("%w: %d configured, %d tracked", ErrHazardSetChanged, len(sink.Contaminants), len(c.records))
	}
	for i, cc := range sink.Contaminants {
		r := &c.records[i]
		if r.Name != cc.Name {
			return fmt.Errorf("%w: axis %d is %s, config has %s", ErrHazardSetChanged, i+1, r.Name, cc.Name)
		}
		if err := c.configure(r, cc); err != nil {
			return fmt.Errorf("taxon %s: %w", c.taxon, err)
		}
	}
	c.allocScratch()
	return nil
}

// configure loads endpoint surfaces and compiles formulas into r.
func (c *Controller) configure(r *Record, cc config.ContaminantConfig) error {
	endpoints := [numEndpoints]*string{
		AcuteLethal:   cc.AcuteLethal,
		ChronicLethal: cc.ChronicLethal,
		Movement:      cc.Movement,
		Foraging:      cc.Foraging,
		Reproduction:  cc.Reproduction,
	}
	caught := 0
	for e, def := range endpoints {
		r.surfaces[e] = doseresponse.Surface{}
		if def == nil {
			continue
		}
		s, err := doseresponse.Parse(*def)
		if err != nil {
			return fmt.Errorf("%s %s: %w", cc.Name, Endpoint(e), err)
		}
		r.surfaces[e] = s
		caught++
	}
	if caught == 0 {
		return fmt.Errorf("%w: %s", ErrNoResponse, cc.Name)
	}

	r.SampleInterval = math.Inf(1)
	if cc.Tick != "" {
		v, err := units.Parse(cc.Tick, units.Time)
		if err != nil {
			return fmt.Errorf("%s contaminant_tick: %w", cc.Name, err)
		}
		if !(v > 0) {
			return fmt.Errorf("%s contaminant_tick must be positive", cc.Name)
		}
		r.SampleInterval = v
	}

	vars := slices.Clone(builtinVars)
	r.constants = make(map[string]float64, len(cc.Constants))
	for k, v := range cc.Constants {
		r.constants[k] = v
		vars = append(vars, k)
	}
	r.variables = r.variables[:0]
	for _, vc := range cc.Variables {
		p, err := c.Evaluator.Compile(vc.Expr, vars)
		if err != nil {
			return fmt.Errorf("%s variable %s: %w", cc.Name, vc.Name, err)
		}
		r.variables = append(r.variables, formula.Variable{Name: vc.Name, Program: p})
		vars = append(vars, vc.Name)
	}

	if cc.LoadUpdate == "" {
		return fmt.Errorf("%w: %s", ErrNoLoadUpdate, cc.Name)
	}
	p, err := c.Evaluator.Compile(cc.LoadUpdate, vars)
	if err != nil {
		return fmt.Errorf("%s load_update: %w", cc.Name, err)
	}
	r.loadUpdate = p

	impairments := map[Endpoint]string{
		Reproduction: cc.ReproductiveImpairment,
		Foraging:     cc.ForagingImpairment,
		Movement:     cc.MovementImpairment,
	}
	for e := range r.impairments {
		r.impairments[e] = nil
	}
	for e, src := range impairments {
		if src == "" {
			continue
		}
		p, err := c.Evaluator.Compile(src, vars)
		if err != nil {
			return fmt.Errorf("%s %s impairment: %w", cc.Name, e, err)
		}
		r.impairments[e] = p
	}
	return nil
}

func (c *Controller) allocScratch() {
	c.acute = make([]float64, len(c.records))
	c.loads = make([]float64, len(c.records))
}

// Reset drops every reference the controller holds without flushing or
// releasing anything. The state now belongs elsewhere.
func (c *Controller) Reset() {
	c.registry = contaminant.NewRegistry()
	c.profile = contaminant.NewProfile()
	c.cube = nil
	c.records = nil
	c.acute, c.loads = nil, nil
	c.Deaths = nil
}

// Shutdown flushes pending death events and logs final loads. It must be
// called exactly once.
func (c *Controller) Shutdown() error {
	if c.shut {
		return ErrShutdown
	}
	c.shut = true

	for _, r := range c.records {
		c.Logger.Info("final load", "instance", c.name, "contaminant", r.Name, "load", r.CurrentLoad)
	}
	if c.Deaths != nil {
		if err := c.Deaths.Flush(); err != nil {
			return fmt.Errorf("flushing death log: %w", err)
		}
	}
	return nil
}

// Taxon returns the taxon passed to Setup.
func (c *Controller) Taxon() string { return c.taxon }

// Name returns the instance name passed to Setup.
func (c *Controller) Name() string { return c.name }

// Hazards returns the tracked contaminant names in axis order.
func (c *Controller) Hazards() []string { return c.registry.Interests() }

// Registry returns the controller's interest registry.
func (c *Controller) Registry() *contaminant.Registry { return c.registry }

// Profile returns a copy of the exported profile.
func (c *Controller) Profile() *contaminant.Profile { return c.profile.Clone() }

// Record returns a copy of the record for name.
func (c *Controller) Record(name string) (Record, bool) {
	i := c.registry.InterestIndex(name)
	if i < 0 {
		return Record{}, false
	}
	return c.records[i], true
}

// Level returns the hazard level applied so far for name, or NaN.
func (c *Controller) Level(name string) float64 {
	i := c.registry.InterestIndex(name)
	if i < 0 || c.cube == nil {
		return math.NaN()
	}
	return c.cube.Level(i + 1)
}

// OverridesMembers reports whether the accumulator owns the member count.
func (c *Controller) OverridesMembers() bool {
	return c.cube != nil
}

// Members returns the surviving member count.
func (c *Controller) Members() float64 {
	if c.cube == nil {
		return c.Host.InitialMembers()
	}
	return c.cube.Value()
}

// SetMembers lowers the member count to m through the baseline axis and
// returns how many members were removed. Counts cannot rise.
func (c *Controller) SetMembers(m float64) float64 {
	if c.cube == nil {
		return 0
	}
	cur := c.cube.Value()
	if !(m < cur) {
		return 0
	}
	return c.cube.AdjustByCount(cur-m, 0)
}
