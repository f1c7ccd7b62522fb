package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/HemSoft/hs-buddy-sub001/ai/anthropic"
	"github.com/HemSoft/hs-buddy-sub001/config"
	"github.com/HemSoft/hs-buddy-sub001/dispatch"
	"github.com/HemSoft/hs-buddy-sub001/job"
	"github.com/HemSoft/hs-buddy-sub001/logger"
	"github.com/HemSoft/hs-buddy-sub001/run"
	"github.com/HemSoft/hs-buddy-sub001/schedule"
	"github.com/HemSoft/hs-buddy-sub001/worker"
)

// DaemonCmd runs the scheduler daemon in the foreground
var DaemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the scheduler daemon",
	Long: `Run the scheduler daemon in foreground mode.

On startup the daemon reconciles schedule firings missed while it was down
(per each schedule's missed-run policy), then starts:
- the schedule scanner, firing due schedules into pending runs
- the dispatcher, executing pending runs one at a time
- a config watcher, logging when the config file changes

Runs until interrupted (Ctrl+C / SIGTERM). Shutdown stops the dispatcher
first, cancelling any in-flight execution, then the scanner.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		database, err := openDatabase(cmd, cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		log := logger.Logger

		jobs := job.NewStore(database)
		schedules := schedule.NewStore(database)
		runs := run.NewStore(database)

		registry := buildRegistry(cfg, runs, log)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Reconcile missed firings before the scanner starts, so catchup
		// runs land in the queue ahead of anything newly due
		reconciler := schedule.NewReconciler(schedules, runs, schedule.ReconcilerConfig{
			DefaultTimezone: cfg.Scheduler.DefaultTimezone,
			CatchupLimit:    cfg.Scheduler.CatchupLimit,
			CatchupFloor:    cfg.Scheduler.CatchupFloor(),
		}, log)

		result, err := reconciler.Reconcile(ctx, time.Now())
		if err != nil {
			return err
		}
		if result.RunsCreated > 0 || len(result.Errors) > 0 {
			log.Infow("Offline reconciliation complete",
				"schedules", result.SchedulesProcessed,
				"runs_created", result.RunsCreated,
				"skipped", result.SchedulesSkipped,
				"errors", len(result.Errors))
		}

		scanner := schedule.NewScannerWithContext(ctx, schedules, runs, jobs, schedule.ScannerConfig{
			Interval:        cfg.Scheduler.TickInterval(),
			DefaultTimezone: cfg.Scheduler.DefaultTimezone,
		}, log)
		scanner.Start()

		dispatcher := dispatch.NewWithContext(ctx, runs, schedules, registry, dispatch.Config{
			PollInterval: cfg.Dispatcher.PollInterval(),
			MaxBackoff:   cfg.Dispatcher.MaxBackoff(),
		}, log)
		dispatcher.Start()

		watcher := startConfigWatcher(log)
		if watcher != nil {
			defer watcher.Stop()
		}

		fmt.Println("buddy daemon started")
		fmt.Printf("  Scan interval: %v\n", cfg.Scheduler.TickInterval())
		fmt.Printf("  Poll interval: %v\n", cfg.Dispatcher.PollInterval())
		fmt.Printf("  Worker types: %v\n", registry.Types())
		fmt.Println("\nPress Ctrl+C to shut down")

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		fmt.Println("\nShutting down...")

		// Dispatcher first: its stop cancels in-flight work and the scanner
		// must not keep feeding the queue while we drain
		dispatcher.Stop()
		scanner.Stop()
		cancel()

		fmt.Println("buddy daemon stopped")
		return nil
	},
}

// buildRegistry wires the built-in workers. The AI worker is only registered
// when an API key is configured; AI runs fail with "no worker registered"
// otherwise instead of failing mid-request.
func buildRegistry(cfg *config.Config, runs *run.Store, log *zap.SugaredLogger) *worker.Registry {
	registry := worker.NewRegistry()
	registry.Register(worker.NewExecWorker(log))

	if cfg.Anthropic.APIKey != "" {
		client := anthropic.NewClient(anthropic.Config{
			APIKey:            cfg.Anthropic.APIKey,
			Model:             cfg.Anthropic.Model,
			MaxTokens:         cfg.Anthropic.MaxTokens,
			Temperature:       cfg.Anthropic.Temperature,
			RequestsPerMinute: cfg.Anthropic.RequestsPerMinute,
		})
		registry.Register(worker.NewAIWorker(client, log))
	} else {
		log.Infow("No Anthropic API key configured, AI worker disabled")
	}

	registry.Register(buildSkillWorker(cfg, runs, log))
	return registry
}

// startConfigWatcher watches the active config file if one was found.
// Reloads only take effect for values read per-operation; interval changes
// require a restart, which the log line says.
func startConfigWatcher(log *zap.SugaredLogger) *config.Watcher {
	path := config.FindConfigFile()
	if path == "" {
		return nil
	}

	watcher, err := config.NewWatcher(path)
	if err != nil {
		log.Warnw("Config watcher unavailable", "path", path, "error", err)
		return nil
	}
	watcher.OnReload(func(cfg *config.Config) error {
		log.Infow("Config file reloaded; interval changes take effect on restart",
			"path", path)
		return nil
	})
	watcher.Start()
	return watcher
}
