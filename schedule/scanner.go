package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/HemSoft/hs-buddy-sub001/db"
	"github.com/HemSoft/hs-buddy-sub001/errors"
	"github.com/HemSoft/hs-buddy-sub001/job"
	"github.com/HemSoft/hs-buddy-sub001/run"
)

// Scanner fires due schedules on a fixed tick. For each enabled, due
// schedule it creates a pending run and advances next_run_at from now (not
// from the missed time, so a slow tick never accumulates a backlog).
type Scanner struct {
	schedules *Store
	runs      *run.Store
	jobs      *job.Store

	interval  time.Duration
	defaultTZ string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *zap.SugaredLogger

	mu              sync.Mutex
	lastTickAt      time.Time
	ticksSinceStart int64
	lastActiveWork  int
}

// ScannerConfig contains configuration for the schedule scanner
type ScannerConfig struct {
	Interval        time.Duration // how often to check for due schedules (default: 1 minute)
	DefaultTimezone string        // applied to schedules without a timezone
}

// DefaultScannerConfig returns sensible defaults
func DefaultScannerConfig() ScannerConfig {
	return ScannerConfig{
		Interval:        time.Minute,
		DefaultTimezone: "UTC",
	}
}

// ScanResult aggregates one scan pass. Per-schedule failures are logged and
// counted, never aborting the remainder of the pass.
type ScanResult struct {
	RunsCreated       int
	SchedulesUpdated  int
	SchedulesDisabled int
	Errors            int
}

// NewScanner creates a schedule scanner
func NewScanner(schedules *Store, runs *run.Store, jobs *job.Store, cfg ScannerConfig, log *zap.SugaredLogger) *Scanner {
	return NewScannerWithContext(context.Background(), schedules, runs, jobs, cfg, log)
}

// NewScannerWithContext creates a scanner with a parent context
func NewScannerWithContext(ctx context.Context, schedules *Store, runs *run.Store, jobs *job.Store, cfg ScannerConfig, log *zap.SugaredLogger) *Scanner {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	scanCtx, cancel := context.WithCancel(ctx)

	return &Scanner{
		schedules: schedules,
		runs:      runs,
		jobs:      jobs,
		interval:  cfg.Interval,
		defaultTZ: cfg.DefaultTimezone,
		ctx:       scanCtx,
		cancel:    cancel,
		logger:    log.Named("scanner"),
	}
}

// Start begins the scan loop
func (s *Scanner) Start() {
	s.wg.Add(1)
	go s.loop()
	s.logger.Infow("Schedule scanner started", "interval", s.interval)
}

// Stop gracefully stops the scanner
func (s *Scanner) Stop() {
	s.cancel()
	s.wg.Wait()
	s.logger.Infow("Schedule scanner stopped")
}

func (s *Scanner) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case tickTime := <-ticker.C:
			s.mu.Lock()
			s.lastTickAt = tickTime
			s.ticksSinceStart++
			tick := s.ticksSinceStart
			s.mu.Unlock()

			s.logHeartbeat(tickTime)

			if _, err := s.ScanOnce(tickTime); err != nil {
				// A closed database means shutdown is racing the ticker
				if db.IsDatabaseClosed(err) {
					s.logger.Debugw("Scan tick aborted, database closed", "tick", tick)
				} else {
					s.logger.Warnw("Scan tick error", "error", err, "tick", tick)
				}
			}
		}
	}
}

// ScanOnce runs a single scan pass at now and returns aggregate counts.
// A failure listing schedules aborts the pass; a failure processing one
// schedule only skips that schedule.
func (s *Scanner) ScanOnce(now time.Time) (ScanResult, error) {
	var result ScanResult

	schedules, err := s.schedules.ListEnabled()
	if err != nil {
		return result, errors.Wrap(err, "failed to list enabled schedules")
	}

	for _, sched := range schedules {
		select {
		case <-s.ctx.Done():
			return result, s.ctx.Err()
		default:
		}

		if !sched.IsDue(now) {
			continue
		}

		if err := s.fireSchedule(sched, now, &result); err != nil {
			result.Errors++
			s.logger.Errorw("Failed to process due schedule",
				"schedule_id", sched.ID,
				"job_id", sched.JobID,
				"error", err)
			continue
		}
	}

	if result.RunsCreated > 0 || result.SchedulesDisabled > 0 {
		s.logger.Infow("Scan pass complete",
			"runs_created", result.RunsCreated,
			"schedules_updated", result.SchedulesUpdated,
			"schedules_disabled", result.SchedulesDisabled)
	}

	return result, nil
}

// fireSchedule handles one due schedule: orphan check, duplicate-run guard,
// then run creation and next_run_at advance.
func (s *Scanner) fireSchedule(sched *Schedule, now time.Time, result *ScanResult) error {
	// Orphan check before anything else - a schedule whose job is gone is
	// disabled, never fired.
	if _, err := s.jobs.Get(sched.JobID); err != nil {
		if errors.IsNotFoundError(err) {
			if derr := s.schedules.Disable(sched.ID); derr != nil {
				return errors.Wrap(derr, "failed to disable orphaned schedule")
			}
			result.SchedulesDisabled++
			s.logger.Warnw("Disabled orphaned schedule",
				"schedule_id", sched.ID,
				"job_id", sched.JobID)
			return nil
		}
		return errors.Wrap(err, "failed to look up schedule's job")
	}

	next := s.nextRun(sched, now)

	// Duplicate-run guard: while a prior run is still pending or running,
	// only advance next_run_at so the schedule does not stay permanently due.
	active, err := s.runs.FindActiveForSchedule(sched.ID)
	if err != nil {
		return errors.Wrap(err, "failed to check for active run")
	}
	if active != nil {
		if err := s.schedules.AdvanceNextRun(sched.ID, next); err != nil {
			return err
		}
		result.SchedulesUpdated++
		s.logger.Debugw("Skipping schedule with in-flight run",
			"schedule_id", sched.ID,
			"active_run_id", active.ID,
			"active_status", active.Status)
		return nil
	}

	r := run.New(sched.JobID, &sched.ID, run.TriggerSchedule, sched.Params)
	if err := s.runs.Create(r); err != nil {
		return errors.Wrap(err, "failed to create run")
	}

	if err := s.schedules.MarkFired(sched.ID, now, next); err != nil {
		return err
	}

	result.RunsCreated++
	result.SchedulesUpdated++
	s.logger.Infow("Schedule fired",
		"schedule_id", sched.ID,
		"job_id", sched.JobID,
		"run_id", r.ID,
		"next_run_at", next.Format(time.RFC3339))
	return nil
}

// nextRun computes the schedule's next fire time from now, falling back an
// hour on evaluation errors (which are logged, not propagated).
func (s *Scanner) nextRun(sched *Schedule, now time.Time) time.Time {
	tz := sched.Timezone
	if tz == "" {
		tz = s.defaultTZ
	}

	next, err := NextOccurrence(sched.Cron, tz, now)
	if err != nil {
		s.logger.Warnw("Cron evaluation failed, using fallback",
			"schedule_id", sched.ID,
			"cron", sched.Cron,
			"timezone", tz,
			"fallback", next.Format(time.RFC3339),
			"error", err)
	}
	return next
}

// logHeartbeat logs time until the next due schedule plus queue activity.
// Only logs when active work count changes, to keep idle logs quiet.
func (s *Scanner) logHeartbeat(now time.Time) {
	next, err := s.schedules.NextScheduled()
	if err != nil {
		if !db.IsDatabaseClosed(err) {
			s.logger.Warnw("Failed to get next scheduled", "error", err)
		}
		return
	}

	stats, err := s.runs.GetStats()
	if err != nil {
		s.logger.Warnw("Failed to get run stats", "error", err)
		stats = &run.Stats{}
	}
	activeWork := stats.Pending + stats.Running

	s.mu.Lock()
	changed := activeWork != s.lastActiveWork
	s.lastActiveWork = activeWork
	s.mu.Unlock()

	if !changed {
		return
	}

	if next == nil || next.NextRunAt == nil {
		s.logger.Infow("No scheduled runs pending", "active_runs", activeWork)
		return
	}

	until := next.NextRunAt.Sub(now)
	if until < 0 {
		until = 0
	}

	msg := fmt.Sprintf("Next schedule %s fires in %s", next.ID, until.Round(time.Second))
	if activeWork > 0 {
		msg += fmt.Sprintf(", %d runs active", activeWork)
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		msg += fmt.Sprintf(" | Mem: %.1f/%.1fGB (%.0f%%)",
			float64(vm.Used)/(1<<30), float64(vm.Total)/(1<<30), vm.UsedPercent)
	}
	s.logger.Infow(msg)
}

// GetStats returns scanner statistics
func (s *Scanner) GetStats() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	return map[string]interface{}{
		"last_tick_at":      s.lastTickAt,
		"ticks_since_start": s.ticksSinceStart,
		"interval":          s.interval,
	}
}
