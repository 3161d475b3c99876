// Package config provides configuration loading and access for exposure runs.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/exposure/units"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all run configuration parameters.
type Config struct {
	Simulation SimulationConfig       `yaml:"simulation"`
	Telemetry  TelemetryConfig        `yaml:"telemetry"`
	Bookmarks  BookmarksConfig        `yaml:"bookmarks"`
	Store      StoreConfig            `yaml:"store"`
	Metrics    MetricsConfig          `yaml:"metrics"`
	Taxa       map[string]TaxonConfig `yaml:"taxa" validate:"dive"`
	Scenario   ScenarioConfig         `yaml:"scenario"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// SimulationConfig holds tick loop parameters.
type SimulationConfig struct {
	DT              string `yaml:"dt" validate:"required"`
	MaxTicks        int    `yaml:"max_ticks" validate:"gte=0"`
	CheckpointEvery int    `yaml:"checkpoint_every" validate:"gte=0"`
	Workers         int    `yaml:"workers" validate:"gte=0"`
	QueryTimeout    string `yaml:"query_timeout"`
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	StatsWindow         string `yaml:"stats_window"`
	OutputDir           string `yaml:"output_dir"`
	BookmarkHistorySize int    `yaml:"bookmark_history_size" validate:"gte=0"`
	PerfCollectorWindow int    `yaml:"perf_collector_window" validate:"gte=0"`
	DeathLogBuffer      int    `yaml:"death_log_buffer" validate:"gte=0"`
}

// BookmarksConfig holds bookmark detection thresholds.
type BookmarksConfig struct {
	PopulationCrash PopulationCrashConfig `yaml:"population_crash"`
	MassMortality   MassMortalityConfig   `yaml:"mass_mortality"`
}

// PopulationCrashConfig holds population crash detection parameters.
type PopulationCrashConfig struct {
	DropPercent float64 `yaml:"drop_percent" validate:"gte=0,lte=1"`
	MinDrop     float64 `yaml:"min_drop" validate:"gte=0"`
}

// MassMortalityConfig holds poisoning die-off detection parameters.
type MassMortalityConfig struct {
	MinDeaths float64 `yaml:"min_deaths" validate:"gte=0"`
}

// StoreConfig selects the checkpoint backend.
type StoreConfig struct {
	Driver string   `yaml:"driver" validate:"oneof=memory sqlite badger s3"`
	Path   string   `yaml:"path" validate:"required_if=Driver sqlite,required_if=Driver badger"`
	S3     S3Config `yaml:"s3"`
}

// S3Config holds S3 checkpoint store parameters.
type S3Config struct {
	Bucket       string `yaml:"bucket"`
	Prefix       string `yaml:"prefix"`
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

// MetricsConfig holds the prometheus endpoint address. Empty disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// TaxonConfig holds per-taxon contaminant behaviour.
type TaxonConfig struct {
	ContaminantSink   SinkConfig   `yaml:"contaminant_sink"`
	ContaminantSource SourceConfig `yaml:"contaminant_source"`
}

// SinkConfig lists the contaminants a taxon accumulates.
type SinkConfig struct {
	Disable      bool                `yaml:"disable"`
	Contaminants []ContaminantConfig `yaml:"contaminants" validate:"dive"`
}

// ContaminantConfig describes the response of a taxon to one contaminant.
// Endpoint surfaces are nil when absent; "none" marks an explicit absence.
type ContaminantConfig struct {
	Name          string  `yaml:"name" validate:"required"`
	AcuteLethal   *string `yaml:"acute_lethal,omitempty"`
	ChronicLethal *string `yaml:"chronic_lethal,omitempty"`
	Reproduction  *string `yaml:"reproduction,omitempty"`
	Movement      *string `yaml:"movement,omitempty"`
	Foraging      *string `yaml:"foraging,omitempty"`

	LoadUpdate             string `yaml:"load_update" validate:"required"`
	ReproductiveImpairment string `yaml:"reproductive_impairment,omitempty"`
	ForagingImpairment     string `yaml:"foraging_impairment,omitempty"`
	MovementImpairment     string `yaml:"movement_impairment,omitempty"`

	Constants map[string]float64 `yaml:"constants,omitempty"`
	Variables []VariableConfig   `yaml:"variables,omitempty" validate:"dive"`
	Tick      string             `yaml:"contaminant_tick"`
}

// VariableConfig is a derived variable evaluated before the load update.
type VariableConfig struct {
	Name string `yaml:"name" validate:"required"`
	Expr string `yaml:"expr" validate:"required"`
}

// SourceConfig lists the contaminants a taxon emits.
type SourceConfig struct {
	Contaminants []string `yaml:"contaminants"`
}

// ScenarioConfig holds the initial instances of a run.
type ScenarioConfig struct {
	Sources   []SourceSpec   `yaml:"sources" validate:"dive"`
	Organisms []OrganismSpec `yaml:"organisms" validate:"dive"`
}

// SourceSpec places a contaminant emitter.
type SourceSpec struct {
	Name   string        `yaml:"name" validate:"required"`
	Taxon  string        `yaml:"taxon" validate:"required"`
	X      float64       `yaml:"x"`
	Y      float64       `yaml:"y"`
	Plumes []PlumeConfig `yaml:"plumes" validate:"dive"`
}

// PlumeConfig describes the concentration field around a source:
// peak·exp(-d/scale), halved every half_life, not applicable beyond range.
type PlumeConfig struct {
	Contaminant string  `yaml:"contaminant" validate:"required"`
	Peak        string  `yaml:"peak" validate:"required"`
	Scale       float64 `yaml:"scale" validate:"gt=0"`
	Range       float64 `yaml:"range" validate:"gte=0"`
	HalfLife    string  `yaml:"half_life,omitempty"`
}

// OrganismSpec places a population of a taxon.
type OrganismSpec struct {
	Name             string            `yaml:"name" validate:"required"`
	Taxon            string            `yaml:"taxon" validate:"required"`
	X                float64           `yaml:"x"`
	Y                float64           `yaml:"y"`
	Mass             string            `yaml:"mass" validate:"required"`
	Members          float64           `yaml:"members" validate:"gte=0"`
	NaturalMortality float64           `yaml:"natural_mortality" validate:"gte=0,lte=1"` // fraction per day
	Diet             []IngestionConfig `yaml:"diet" validate:"dive"`
}

// IngestionConfig is a steady dietary intake of a contaminant.
type IngestionConfig struct {
	Contaminant string `yaml:"contaminant" validate:"required"`
	Daily       string `yaml:"daily" validate:"required"` // mass per individual per day
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	DT             float64 // seconds per tick
	StatsWindow    float64 // seconds
	QueryTimeout   float64 // seconds
	OrganismMass   map[string]float64
	DailyIngestion map[string]map[string]float64 // organism -> contaminant -> kg/day
}

var validate = validator.New()

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.computeDerived(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse loads configuration from YAML bytes on top of the embedded defaults.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.computeDerived(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ErrInvalid wraps struct validation failures.
var ErrInvalid = errors.New("config: invalid")

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() error {
	var err error
	if c.Derived.DT, err = units.Parse(c.Simulation.DT, units.Time); err != nil {
		return fmt.Errorf("simulation.dt: %w", err)
	}
	if !(c.Derived.DT > 0) {
		return fmt.Errorf("%w: simulation.dt must be positive", ErrInvalid)
	}

	c.Derived.StatsWindow = c.Derived.DT
	if c.Telemetry.StatsWindow != "" {
		if c.Derived.StatsWindow, err = units.Parse(c.Telemetry.StatsWindow, units.Time); err != nil {
			return fmt.Errorf("telemetry.stats_window: %w", err)
		}
	}

	c.Derived.QueryTimeout = 5
	if c.Simulation.QueryTimeout != "" {
		if c.Derived.QueryTimeout, err = units.Parse(c.Simulation.QueryTimeout, units.Time); err != nil {
			return fmt.Errorf("simulation.query_timeout: %w", err)
		}
	}

	c.Derived.OrganismMass = make(map[string]float64, len(c.Scenario.Organisms))
	c.Derived.DailyIngestion = make(map[string]map[string]float64, len(c.Scenario.Organisms))
	for _, o := range c.Scenario.Organisms {
		m, err := units.Parse(o.Mass, units.Mass)
		if err != nil {
			return fmt.Errorf("organism %s mass: %w", o.Name, err)
		}
		c.Derived.OrganismMass[o.Name] = m

		diet := make(map[string]float64, len(o.Diet))
		for _, in := range o.Diet {
			d, err := units.Parse(in.Daily, units.Mass)
			if err != nil {
				return fmt.Errorf("organism %s diet %s: %w", o.Name, in.Contaminant, err)
			}
			diet[in.Contaminant] += d
		}
		c.Derived.DailyIngestion[o.Name] = diet
	}
	return nil
}

// SinkConfig returns the contaminant sink configuration of a taxon.
func (c *Config) SinkConfig(taxon string) (SinkConfig, bool) {
	t, ok := c.Taxa[taxon]
	if !ok {
		return SinkConfig{}, false
	}
	return t.ContaminantSink, true
}

// SourceConfig returns the contaminant source configuration of a taxon.
func (c *Config) SourceConfig(taxon string) (SourceConfig, bool) {
	t, ok := c.Taxa[taxon]
	if !ok {
		return SourceConfig{}, false
	}
	return t.ContaminantSource, true
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
