package schedule

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/HemSoft/hs-buddy-sub001/errors"
	"github.com/HemSoft/hs-buddy-sub001/run"
)

// Reconciler applies each schedule's missed-run policy to firings missed
// while the process was not running. It runs once at startup, before the
// dispatcher begins polling.
type Reconciler struct {
	schedules *Store
	runs      *run.Store

	defaultTZ    string
	catchupLimit int
	catchupFloor time.Duration

	logger *zap.SugaredLogger
}

// ReconcilerConfig contains configuration for the offline reconciler
type ReconcilerConfig struct {
	DefaultTimezone string
	// CatchupLimit bounds how many missed runs catchup replays per schedule
	CatchupLimit int
	// CatchupFloor bounds how far back enumeration reaches, regardless of
	// how long the process was down
	CatchupFloor time.Duration
}

// DefaultReconcilerConfig returns sensible defaults
func DefaultReconcilerConfig() ReconcilerConfig {
	return ReconcilerConfig{
		DefaultTimezone: "UTC",
		CatchupLimit:    100,
		CatchupFloor:    7 * 24 * time.Hour,
	}
}

// ReconcileResult aggregates one reconciliation pass. Errors holds
// per-schedule failure messages for startup diagnostics; a failing schedule
// never stops reconciliation of the remainder.
type ReconcileResult struct {
	SchedulesProcessed int
	RunsCreated        int
	SchedulesSkipped   int
	Errors             []string
}

// NewReconciler creates an offline reconciler
func NewReconciler(schedules *Store, runs *run.Store, cfg ReconcilerConfig, log *zap.SugaredLogger) *Reconciler {
	if cfg.CatchupLimit <= 0 {
		cfg.CatchupLimit = 100
	}
	if cfg.CatchupFloor <= 0 {
		cfg.CatchupFloor = 7 * 24 * time.Hour
	}
	return &Reconciler{
		schedules:    schedules,
		runs:         runs,
		defaultTZ:    cfg.DefaultTimezone,
		catchupLimit: cfg.CatchupLimit,
		catchupFloor: cfg.CatchupFloor,
		logger:       log.Named("reconciler"),
	}
}

// Reconcile processes every enabled schedule whose next fire time is unset
// or in the past, applying its missed-run policy, and returns aggregate
// counters. Only a failure to list schedules aborts the pass.
func (r *Reconciler) Reconcile(ctx context.Context, now time.Time) (ReconcileResult, error) {
	var result ReconcileResult

	schedules, err := r.schedules.ListEnabled()
	if err != nil {
		return result, errors.Wrap(err, "failed to list enabled schedules")
	}

	for _, sched := range schedules {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		if !sched.IsDue(now) {
			result.SchedulesSkipped++
			continue
		}

		created, err := r.reconcileSchedule(sched, now)
		if err != nil {
			result.Errors = append(result.Errors, errors.Wrapf(err, "schedule %s", sched.ID).Error())
			r.logger.Errorw("Failed to reconcile schedule",
				"schedule_id", sched.ID,
				"policy", sched.MissedPolicy,
				"error", err)
			continue
		}

		result.SchedulesProcessed++
		result.RunsCreated += created
	}

	r.logger.Infow("Reconciliation complete",
		"processed", result.SchedulesProcessed,
		"runs_created", result.RunsCreated,
		"skipped", result.SchedulesSkipped,
		"errors", len(result.Errors))

	return result, nil
}

// reconcileSchedule applies one schedule's missed-run policy and advances
// its next fire time from now. Returns the number of runs created.
func (r *Reconciler) reconcileSchedule(sched *Schedule, now time.Time) (int, error) {
	tz := sched.Timezone
	if tz == "" {
		tz = r.defaultTZ
	}

	next, nerr := NextOccurrence(sched.Cron, tz, now)
	if nerr != nil {
		r.logger.Warnw("Cron evaluation failed, using fallback",
			"schedule_id", sched.ID,
			"cron", sched.Cron,
			"error", nerr)
	}

	from, known := r.missedWindowStart(sched, now)
	if !known {
		// Fresh schedule with no firing history: nothing can have been
		// missed, just initialize the next fire time.
		if err := r.schedules.AdvanceNextRun(sched.ID, next); err != nil {
			return 0, err
		}
		return 0, nil
	}

	created := 0
	switch sched.MissedPolicy {
	case MissedCatchup:
		occurrences, err := OccurrencesInRange(sched.Cron, tz, from, now, r.catchupLimit)
		if err != nil {
			return 0, err
		}
		for _, occ := range occurrences {
			nr := run.New(sched.JobID, &sched.ID, run.TriggerSchedule, sched.Params)
			if err := r.runs.Create(nr); err != nil {
				return created, errors.Wrap(err, "failed to create catchup run")
			}
			created++
			r.logger.Debugw("Created catchup run",
				"schedule_id", sched.ID,
				"run_id", nr.ID,
				"missed_at", occ.Format(time.RFC3339))
		}

	case MissedLast:
		occurrences, err := OccurrencesInRange(sched.Cron, tz, from, now, 1)
		if err != nil {
			return 0, err
		}
		if len(occurrences) > 0 {
			nr := run.New(sched.JobID, &sched.ID, run.TriggerSchedule, sched.Params)
			if err := r.runs.Create(nr); err != nil {
				return 0, errors.Wrap(err, "failed to create collapsed run")
			}
			created = 1
		}

	case MissedSkip:
		// Backlog ignored

	default:
		return 0, errors.Newf("unknown missed-run policy: %s", sched.MissedPolicy)
	}

	if err := r.schedules.AdvanceNextRun(sched.ID, next); err != nil {
		return created, err
	}

	if created > 0 {
		r.logger.Infow("Reconciled missed schedule",
			"schedule_id", sched.ID,
			"policy", sched.MissedPolicy,
			"runs_created", created,
			"next_run_at", next.Format(time.RFC3339))
	}
	return created, nil
}

// missedWindowStart determines where missed-occurrence enumeration begins:
// the latest of next_run_at, last_run_at, and now minus the floor. Returns
// known=false when the schedule has never been initialized or fired.
func (r *Reconciler) missedWindowStart(sched *Schedule, now time.Time) (time.Time, bool) {
	if sched.NextRunAt == nil && sched.LastRunAt == nil {
		return time.Time{}, false
	}

	from := now.Add(-r.catchupFloor)
	if sched.NextRunAt != nil && sched.NextRunAt.After(from) {
		from = *sched.NextRunAt
	}
	if sched.LastRunAt != nil && sched.LastRunAt.After(from) {
		from = *sched.LastRunAt
	}
	// next_run_at is the first missed occurrence itself; start enumeration
	// just before it so it is included.
	if sched.NextRunAt != nil && from.Equal(*sched.NextRunAt) {
		from = from.Add(-time.Second)
	}
	return from, true
}
