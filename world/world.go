// Package world hosts organism and source instances in an ECS world and
// drives the exposure tick loop over them.
package world

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/exposure/agent"
	"github.com/pthm-cable/exposure/components"
	"github.com/pthm-cable/exposure/config"
	"github.com/pthm-cable/exposure/formula"
	"github.com/pthm-cable/exposure/store"
	"github.com/pthm-cable/exposure/telemetry"
)

var (
	ErrDuplicateName = errors.New("world: instance name already in use")
	ErrNoInstance    = errors.New("world: no such instance")
	ErrClosed        = errors.New("world: shut down")
)

// mailboxDepth is the queue length of each instance mailbox.
const mailboxDepth = 16

// Options are the optional collaborators of a World. Nil sinks disable
// the corresponding output.
type Options struct {
	RunID     string
	Output    *telemetry.OutputManager
	Metrics   *telemetry.Metrics
	Evaluator formula.Evaluator
	Store     store.Store
	Logger    *slog.Logger
}

// World holds the complete simulation state.
type World struct {
	cfg    *config.Config
	runID  string
	logger *slog.Logger

	world *ecs.World

	sourceMapper   *ecs.Map3[components.Identity, components.Position, components.Emission]
	organismMapper *ecs.Map3[components.Identity, components.Position, components.Organism]
	sourceFilter   *ecs.Filter2[components.Identity, components.Emission]
	organismFilter *ecs.Filter3[components.Identity, components.Position, components.Organism]

	// Individual component mappers for lookups
	idMap       *ecs.Map1[components.Identity]
	posMap      *ecs.Map1[components.Position]
	orgMap      *ecs.Map1[components.Organism]
	exposureMap *ecs.Map1[components.Exposure]

	names     map[string]ecs.Entity
	evaluator formula.Evaluator
	store     store.Store

	// Telemetry
	output           *telemetry.OutputManager
	metrics          *telemetry.Metrics
	deaths           deathRouter
	collector        *telemetry.Collector
	bookmarkDetector *telemetry.BookmarkDetector
	perfCollector    *telemetry.PerfCollector
	lifetimeTracker  *telemetry.LifetimeTracker

	// remotes maps sink names to their mailbox-backed profile readers.
	// Guarded by remoteMu, not mu.
	remoteMu sync.RWMutex
	remotes  map[string]*agent.RemoteProfile

	// mu serialises Step, Checkpoint, Restore and Shutdown.
	mu      sync.Mutex
	tick    int32
	simTime float64
	nextID  uint32
	closed  bool
}

// New creates an empty world. Instances are added with SpawnSource,
// SpawnOrganism or SpawnScenario.
func New(cfg *config.Config, opts Options) *World {
	world := ecs.NewWorld()

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Evaluator == nil {
		opts.Evaluator = formula.NewExpr()
	}

	w := &World{
		cfg:       cfg,
		runID:     opts.RunID,
		logger:    opts.Logger,
		world:     world,
		names:     make(map[string]ecs.Entity),
		remotes:   make(map[string]*agent.RemoteProfile),
		evaluator: opts.Evaluator,
		store:     opts.Store,

		sourceMapper:   ecs.NewMap3[components.Identity, components.Position, components.Emission](world),
		organismMapper: ecs.NewMap3[components.Identity, components.Position, components.Organism](world),
		sourceFilter:   ecs.NewFilter2[components.Identity, components.Emission](world),
		organismFilter: ecs.NewFilter3[components.Identity, components.Position, components.Organism](world),

		idMap:       ecs.NewMap1[components.Identity](world),
		posMap:      ecs.NewMap1[components.Position](world),
		orgMap:      ecs.NewMap1[components.Organism](world),
		exposureMap: ecs.NewMap1[components.Exposure](world),

		output:           opts.Output,
		metrics:          opts.Metrics,
		collector:        telemetry.NewCollector(cfg.Derived.StatsWindow),
		bookmarkDetector: telemetry.NewBookmarkDetector(cfg.Telemetry.BookmarkHistorySize, cfg.Bookmarks),
		perfCollector:    telemetry.NewPerfCollector(cfg.Telemetry.PerfCollectorWindow),
		lifetimeTracker:  telemetry.NewLifetimeTracker(),
	}
	w.deaths = deathRouter{
		log:      telemetry.NewDeathLog(opts.Output, w.collector, opts.Metrics, cfg.Telemetry.DeathLogBuffer),
		lifetime: w.lifetimeTracker,
	}
	return w
}

// Tick returns the number of completed steps.
func (w *World) Tick() int32 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.tick
}

// SimTime returns the simulated time in seconds.
func (w *World) SimTime() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.simTime
}

// RunID returns the run identifier used for checkpoint keys.
func (w *World) RunID() string {
	return w.runID
}

// Perf returns the performance collector.
func (w *World) Perf() *telemetry.PerfCollector {
	return w.perfCollector
}

// queryContext bounds one cross-instance call.
func (w *World) queryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, time.Duration(w.cfg.Derived.QueryTimeout*float64(time.Second)))
}

// Shutdown shuts down every sink controller, stops all mailboxes and
// flushes the death log. The world cannot be stepped afterwards.
func (w *World) Shutdown() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	w.closed = true

	w.remoteMu.Lock()
	w.remotes = nil
	w.remoteMu.Unlock()

	var errs []error
	for _, s := range w.sinks() {
		if s.exp == nil {
			continue
		}
		if err := s.exp.Controller.Shutdown(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
		s.exp.Mailbox.Close()
	}
	for _, src := range w.sources() {
		src.Mailbox.Close()
	}
	if err := w.deaths.Flush(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
