// Package dispatch drains pending runs one at a time and executes them
// through registered workers.
package dispatch

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/HemSoft/hs-buddy-sub001/db"
	"github.com/HemSoft/hs-buddy-sub001/errors"
	"github.com/HemSoft/hs-buddy-sub001/job"
	"github.com/HemSoft/hs-buddy-sub001/run"
	"github.com/HemSoft/hs-buddy-sub001/schedule"
	"github.com/HemSoft/hs-buddy-sub001/worker"
)

// Dispatcher polls for pending runs and executes them strictly serially:
// one run in flight at a time, and after each completed run it immediately
// polls again to drain any backlog before sleeping a full interval.
type Dispatcher struct {
	runs      *run.Store
	schedules *schedule.Store
	registry  *worker.Registry

	interval   time.Duration
	maxBackoff time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *zap.SugaredLogger

	mu                sync.Mutex
	processing        bool
	consecutiveErrors int
	runsProcessed     int64
	runsFailed        int64
}

// Config contains configuration for the dispatcher
type Config struct {
	PollInterval time.Duration // how often to check for pending runs (default: 10s)
	MaxBackoff   time.Duration // cap on the poll-error backoff window (default: 2m)
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		PollInterval: 10 * time.Second,
		MaxBackoff:   2 * time.Minute,
	}
}

// Stats is a snapshot of dispatcher activity
type Stats struct {
	Processing        bool  `json:"processing"`
	ConsecutiveErrors int   `json:"consecutive_errors"`
	RunsProcessed     int64 `json:"runs_processed"`
	RunsFailed        int64 `json:"runs_failed"`
}

// New creates a dispatcher
func New(runs *run.Store, schedules *schedule.Store, registry *worker.Registry, cfg Config, log *zap.SugaredLogger) *Dispatcher {
	return NewWithContext(context.Background(), runs, schedules, registry, cfg, log)
}

// NewWithContext creates a dispatcher with a parent context
func NewWithContext(ctx context.Context, runs *run.Store, schedules *schedule.Store, registry *worker.Registry, cfg Config, log *zap.SugaredLogger) *Dispatcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 2 * time.Minute
	}
	dispatchCtx, cancel := context.WithCancel(ctx)

	return &Dispatcher{
		runs:       runs,
		schedules:  schedules,
		registry:   registry,
		interval:   cfg.PollInterval,
		maxBackoff: cfg.MaxBackoff,
		ctx:        dispatchCtx,
		cancel:     cancel,
		logger:     log.Named("dispatcher"),
	}
}

// Start begins the poll loop
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go d.loop()
	d.logger.Infow("Dispatcher started",
		"poll_interval", d.interval,
		"worker_types", d.registry.Types())
}

// Stop cancels any in-flight execution and waits for the loop to exit.
// The aborted run resolves to failed through the worker's cancellation path.
func (d *Dispatcher) Stop() {
	d.cancel()
	d.wg.Wait()
	d.logger.Infow("Dispatcher stopped")
}

func (d *Dispatcher) loop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.poll()
		}
	}
}

// poll drains the pending backlog: claim, execute, repeat until nothing is
// pending or the context is cancelled. The processing flag makes overlapping
// polls a no-op so execution stays strictly serial.
func (d *Dispatcher) poll() {
	d.mu.Lock()
	if d.processing {
		d.mu.Unlock()
		return
	}
	d.processing = true
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.processing = false
		d.mu.Unlock()
	}()

	for {
		if d.ctx.Err() != nil {
			return
		}

		r, j, err := d.runs.ClaimOldestPending()
		if err != nil {
			d.recordStoreError(err)
			return
		}
		if r == nil {
			d.resetErrors()
			return
		}
		d.resetErrors()

		d.execute(r, j)
	}
}

// execute runs one claimed run to a terminal state. Every path out of this
// function resolves the run to completed or failed.
func (d *Dispatcher) execute(r *run.Run, j *job.Job) {
	if j == nil {
		d.failRun(r, "job not found")
		return
	}

	w := d.registry.Get(string(j.Type))
	if w == nil {
		d.failRun(r, "no worker registered for type: "+string(j.Type))
		return
	}

	d.logger.Infow("Executing run",
		"run_id", r.ID,
		"job", j.Name,
		"type", j.Type,
		"triggered_by", r.TriggeredBy)

	req := &worker.Request{
		RunID:   r.ID,
		JobID:   j.ID,
		JobName: j.Name,
		Config:  j.Config,
		Input:   r.Input,
	}

	start := time.Now()
	result, err := w.Execute(d.ctx, req)
	if err != nil {
		// Worker errors (including cancellation) resolve to failed
		d.failRun(r, err.Error())
		return
	}
	if result == nil {
		d.failRun(r, "worker returned no result")
		return
	}

	if result.Success {
		if err := d.runs.Complete(r.ID, result.Output); err != nil {
			d.recordStoreError(errors.Wrapf(err, "failed to mark run %s completed", r.ID))
			return
		}
		d.mu.Lock()
		d.runsProcessed++
		d.mu.Unlock()

		d.logger.Infow("Run completed",
			"run_id", r.ID,
			"job", j.Name,
			"duration", time.Since(start).Round(time.Millisecond))
		d.propagateOutcome(r, run.StatusCompleted)
		return
	}

	d.failRun(r, result.Error)
}

// failRun marks a run failed and propagates the outcome to its schedule
func (d *Dispatcher) failRun(r *run.Run, errMsg string) {
	if err := d.runs.Fail(r.ID, errMsg); err != nil {
		d.recordStoreError(errors.Wrapf(err, "failed to mark run %s failed", r.ID))
		return
	}
	d.mu.Lock()
	d.runsProcessed++
	d.runsFailed++
	d.mu.Unlock()

	d.logger.Warnw("Run failed",
		"run_id", r.ID,
		"error", errMsg)
	d.propagateOutcome(r, run.StatusFailed)
}

// propagateOutcome records the terminal status on the originating schedule
// so operators can see last-run health without querying run history.
func (d *Dispatcher) propagateOutcome(r *run.Run, status run.Status) {
	if r.ScheduleID == nil {
		return
	}
	if err := d.schedules.SetLastOutcome(*r.ScheduleID, string(status), time.Now()); err != nil {
		d.logger.Warnw("Failed to record schedule outcome",
			"schedule_id", *r.ScheduleID, "error", err)
	}
}

// recordStoreError counts any store failure toward the consecutive-error
// throttle and logs the first failure and then every sixth, so a persistent
// database outage does not flood the log at the poll rate. A closed database
// means shutdown is in progress, not an outage; it is logged quietly and
// never counted.
func (d *Dispatcher) recordStoreError(err error) {
	if db.IsDatabaseClosed(err) {
		d.logger.Debugw("Store unavailable, database closed", "error", err)
		return
	}

	d.mu.Lock()
	d.consecutiveErrors++
	n := d.consecutiveErrors
	d.mu.Unlock()

	if (n-1)%6 == 0 {
		d.logger.Errorw("Dispatch store error",
			"error", err,
			"consecutive_errors", n,
			"backoff", d.backoffFor(n))
	}
}

func (d *Dispatcher) resetErrors() {
	d.mu.Lock()
	if d.consecutiveErrors > 0 {
		d.logger.Infow("Dispatch recovered",
			"after_errors", d.consecutiveErrors)
	}
	d.consecutiveErrors = 0
	d.mu.Unlock()
}

// backoffFor doubles the poll interval per consecutive failure, capped
func (d *Dispatcher) backoffFor(n int) time.Duration {
	if n <= 0 {
		return d.interval
	}
	backoff := d.interval
	for i := 1; i < n; i++ {
		backoff *= 2
		if backoff >= d.maxBackoff {
			return d.maxBackoff
		}
	}
	return backoff
}

// GetStats returns a snapshot of dispatcher activity
func (d *Dispatcher) GetStats() *Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return &Stats{
		Processing:        d.processing,
		ConsecutiveErrors: d.consecutiveErrors,
		RunsProcessed:     d.runsProcessed,
		RunsFailed:        d.runsFailed,
	}
}
