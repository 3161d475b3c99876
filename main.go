package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/pthm-cable/exposure/config"
	"github.com/pthm-cable/exposure/store"
	"github.com/pthm-cable/exposure/telemetry"
	"github.com/pthm-cable/exposure/world"
)

var (
	configPath string
	verbose    bool

	runID     string
	outputDir string
	maxTicks  int
	resume    bool
	tick      int32
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "exposure",
		Short:         "Contaminant exposure and mortality simulation",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Initialize config before anything else
			if err := config.Init(configPath); err != nil {
				return err
			}
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			// JSON to stdout for structured logging
			slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config.yaml (empty = use defaults)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at debug level")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the configured scenario",
		RunE:  runSimulation,
	}
	runCmd.Flags().StringVar(&runID, "run", "", "Run ID for checkpoint keys (empty = random)")
	runCmd.Flags().StringVar(&outputDir, "output-dir", "", "Output directory for CSV logs and config snapshot (empty = use config)")
	runCmd.Flags().IntVar(&maxTicks, "max-ticks", -1, "Stop after N ticks (0 = unlimited, -1 = use config)")
	runCmd.Flags().BoolVar(&resume, "resume", false, "Resume from the latest checkpoint of --run")

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Load the configuration and spawn the scenario without stepping",
		RunE:  validateScenario,
	}

	inspectCmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print a JSON snapshot of a checkpointed run",
		RunE:  inspectCheckpoint,
	}
	inspectCmd.Flags().StringVar(&runID, "run", "", "Run ID to inspect")
	inspectCmd.Flags().Int32Var(&tick, "tick", -1, "Checkpoint tick (-1 = latest)")
	inspectCmd.MarkFlagRequired("run")

	rootCmd.AddCommand(runCmd, validateCmd, inspectCmd)

	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func runSimulation(cmd *cobra.Command, _ []string) error {
	cfg := config.Cfg()
	logger := slog.Default()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if runID == "" {
		if resume {
			return errors.New("--resume needs --run")
		}
		runID = uuid.NewString()
	}
	if outputDir == "" {
		outputDir = cfg.Telemetry.OutputDir
	}
	if maxTicks < 0 {
		maxTicks = cfg.Simulation.MaxTicks
	}

	output, err := telemetry.NewOutputManager(outputDir)
	if err != nil {
		return err
	}
	defer output.Close()
	if err := output.WriteConfig(cfg); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)
	if cfg.Metrics.Addr != "" {
		srv := &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		defer srv.Close()
	}

	st, err := store.NewStore(cfg.Store, logger)
	if err != nil {
		return err
	}
	if err := st.Init(ctx); err != nil {
		return fmt.Errorf("initializing %s store: %w", cfg.Store.Driver, err)
	}
	defer st.Close()

	w := world.New(cfg, world.Options{
		RunID:   runID,
		Output:  output,
		Metrics: metrics,
		Store:   st,
		Logger:  logger,
	})
	if err := w.SpawnScenario(); err != nil {
		w.Shutdown()
		return err
	}

	if resume {
		latest, ok, err := w.LatestCheckpoint(ctx, st)
		if err != nil {
			w.Shutdown()
			return err
		}
		if !ok {
			w.Shutdown()
			return fmt.Errorf("run %s has no checkpoint to resume", runID)
		}
		if err := w.Restore(ctx, st, latest); err != nil {
			w.Shutdown()
			return err
		}
	}

	logger.Info("starting simulation",
		"run", runID,
		"tick", w.Tick(),
		"max_ticks", maxTicks,
		"store", cfg.Store.Driver,
		"output_dir", outputDir,
	)

	stepErr := loop(ctx, w)
	if stepErr == nil && cfg.Simulation.CheckpointEvery > 0 {
		stepErr = w.Checkpoint(context.WithoutCancel(ctx), st)
	}
	if err := w.Shutdown(); err != nil {
		stepErr = errors.Join(stepErr, err)
	}

	perf := w.Perf().Stats()
	logger.Info("simulation finished",
		"run", runID,
		"tick", w.Tick(),
		"sim_time", w.SimTime(),
		"avg_tick", perf.AvgTickDuration,
	)
	return stepErr
}

// loop steps w until maxTicks or cancellation.
func loop(ctx context.Context, w *world.World) error {
	for maxTicks == 0 || int(w.Tick()) < maxTicks {
		if ctx.Err() != nil {
			slog.Info("interrupted", "tick", w.Tick())
			return nil
		}
		if _, err := w.Step(ctx); err != nil {
			return fmt.Errorf("tick %d: %w", w.Tick(), err)
		}
	}
	slog.Info("max ticks reached", "tick", w.Tick())
	return nil
}

func validateScenario(cmd *cobra.Command, _ []string) error {
	cfg := config.Cfg()
	w := world.New(cfg, world.Options{RunID: "validate"})
	if err := w.SpawnScenario(); err != nil {
		w.Shutdown()
		return err
	}
	if err := w.Shutdown(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "ok: %d sources, %d organisms\n", len(cfg.Scenario.Sources), len(cfg.Scenario.Organisms))
	return nil
}

func inspectCheckpoint(cmd *cobra.Command, _ []string) error {
	cfg := config.Cfg()
	ctx := cmd.Context()

	st, err := store.NewStore(cfg.Store, slog.Default())
	if err != nil {
		return err
	}
	if err := st.Init(ctx); err != nil {
		return err
	}
	defer st.Close()

	w := world.New(cfg, world.Options{RunID: runID})
	defer w.Shutdown()
	if err := w.SpawnScenario(); err != nil {
		return err
	}

	at := tick
	if at < 0 {
		latest, ok, err := w.LatestCheckpoint(ctx, st)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("run %s has no checkpoint", runID)
		}
		at = latest
	}
	if err := w.Restore(ctx, st, at); err != nil {
		return err
	}

	snap, err := w.Snapshot(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}
