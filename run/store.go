package run

import (
	"database/sql"
	"encoding/json"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/HemSoft/hs-buddy-sub001/errors"
	"github.com/HemSoft/hs-buddy-sub001/job"
)

// timeFormat is fixed-width RFC3339 with nanoseconds, always UTC, so that
// lexicographic comparison of stored timestamps matches chronological order
// (the FIFO claim orders by created_at as TEXT).
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Store handles persistence of runs
type Store struct {
	db *sql.DB
}

// NewStore creates a new run store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Stats summarizes current queue depth
type Stats struct {
	Pending int
	Running int
}

// Create inserts a new run
func (s *Store) Create(r *Run) error {
	query := `
		INSERT INTO runs (
			id, job_id, schedule_id, status, triggered_by, input,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	var scheduleID, input interface{}
	if r.ScheduleID != nil {
		scheduleID = *r.ScheduleID
	}
	if len(r.Input) > 0 {
		input = string(r.Input)
	}

	_, err := s.db.Exec(query,
		r.ID,
		r.JobID,
		scheduleID,
		string(r.Status),
		string(r.TriggeredBy),
		input,
		r.CreatedAt.UTC().Format(timeFormat),
		r.UpdatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return errors.Wrap(err, "failed to create run")
	}

	return nil
}

const runColumns = `id, job_id, schedule_id, status, triggered_by, input,
	output, error, started_at, completed_at, duration_ms, created_at, updated_at`

// Get retrieves a run by ID. Returns errors.ErrNotFound if it does not exist.
func (s *Store) Get(id string) (*Run, error) {
	row := s.db.QueryRow("SELECT "+runColumns+" FROM runs WHERE id = ?", id)

	r, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(errors.ErrNotFound, "run %s", id)
		}
		return nil, errors.Wrap(err, "failed to get run")
	}
	return r, nil
}

// FindActiveForSchedule returns a pending or running run for the schedule,
// or nil if none exists. Used as the scanner's duplicate-run guard.
func (s *Store) FindActiveForSchedule(scheduleID string) (*Run, error) {
	query := `
		SELECT ` + runColumns + `
		FROM runs
		WHERE schedule_id = ? AND status IN ('pending', 'running')
		ORDER BY created_at
		LIMIT 1
	`

	r, err := scanRun(s.db.QueryRow(query, scheduleID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to find active run")
	}
	return r, nil
}

// ClaimOldestPending atomically transitions the oldest pending run to
// running and returns it together with its job. Returns (nil, nil, nil)
// when nothing is pending. The returned job is nil if it was deleted after
// the run was created; the caller is expected to fail the run.
//
// The claim uses a conditional UPDATE guarded on status='pending' inside a
// transaction and retries on conflict, so two dispatchers can never both
// win the same run.
func (s *Store) ClaimOldestPending() (*Run, *job.Job, error) {
	for {
		r, j, done, err := s.tryClaim()
		if err != nil {
			return nil, nil, err
		}
		if !done {
			// Lost the race for a specific run; another may still be pending
			continue
		}
		return r, j, nil
	}
}

// tryClaim returns done=false when a conditional update conflicted and the
// claim should be retried against the remaining pending set.
func (s *Store) tryClaim() (*Run, *job.Job, bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, nil, false, errors.Wrap(err, "failed to begin claim transaction")
	}
	defer tx.Rollback()

	row := tx.QueryRow(`
		SELECT ` + runColumns + `
		FROM runs
		WHERE status = 'pending'
		ORDER BY created_at, id
		LIMIT 1
	`)

	r, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, true, nil // nothing pending
		}
		return nil, nil, false, errors.Wrap(err, "failed to select pending run")
	}

	now := time.Now()
	result, err := tx.Exec(`
		UPDATE runs
		SET status = 'running', started_at = ?, updated_at = ?
		WHERE id = ? AND status = 'pending'
	`, now.UTC().Format(timeFormat), now.UTC().Format(timeFormat), r.ID)
	if err != nil {
		if isClaimConflict(err) {
			return nil, nil, false, nil
		}
		return nil, nil, false, errors.Wrap(err, "failed to claim run")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, nil, false, errors.Wrap(err, "failed to check claim result")
	}
	if rows == 0 {
		// Another dispatcher claimed it between select and update
		return nil, nil, false, nil
	}

	r.Status = StatusRunning
	r.StartedAt = &now
	r.UpdatedAt = now

	// Resolve the job inside the same transaction; a missing job is not an
	// error here - the dispatcher fails the run explicitly.
	var j *job.Job
	jobRow := tx.QueryRow(`
		SELECT id, name, type, config, params, created_at, updated_at
		FROM jobs WHERE id = ?
	`, r.JobID)
	j, err = scanClaimJob(jobRow)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, nil, false, errors.Wrap(err, "failed to load job for claimed run")
		}
		j = nil
	}

	if err := tx.Commit(); err != nil {
		if isClaimConflict(err) {
			return nil, nil, false, nil
		}
		return nil, nil, false, errors.Wrap(err, "failed to commit claim")
	}

	return r, j, true, nil
}

// isClaimConflict reports whether the error is SQLite signalling that another
// writer committed between this transaction's read and its conditional
// update. The claim loop retries against a fresh snapshot.
func isClaimConflict(err error) bool {
	var serr sqlite3.Error
	return errors.As(err, &serr) &&
		(serr.Code == sqlite3.ErrBusy || serr.Code == sqlite3.ErrLocked)
}

// Complete transitions a running run to completed with its output.
// Duration is computed from completedAt - startedAt.
func (s *Store) Complete(id, output string) error {
	return s.finish(id, StatusCompleted, output, "")
}

// Fail transitions a running run to failed with an error message
func (s *Store) Fail(id, errMsg string) error {
	return s.finish(id, StatusFailed, "", errMsg)
}

func (s *Store) finish(id string, status Status, output, errMsg string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	var current string
	var startedAt sql.NullString
	err = tx.QueryRow("SELECT status, started_at FROM runs WHERE id = ?", id).
		Scan(&current, &startedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errors.Wrapf(errors.ErrNotFound, "run %s", id)
		}
		return errors.Wrap(err, "failed to read run")
	}

	if Status(current).IsTerminal() {
		return errors.Wrapf(errors.ErrTerminalState, "cannot mark run %s %s (status: %s)", id, status, current)
	}

	now := time.Now()
	var durationMs interface{}
	if startedAt.Valid {
		if started, perr := time.Parse(time.RFC3339Nano, startedAt.String); perr == nil {
			durationMs = now.Sub(started).Milliseconds()
		}
	}

	var outputVal, errVal interface{}
	if output != "" {
		outputVal = output
	}
	if errMsg != "" {
		errVal = errMsg
	}

	result, err := tx.Exec(`
		UPDATE runs
		SET status = ?, output = ?, error = ?, completed_at = ?, duration_ms = ?, updated_at = ?
		WHERE id = ? AND status = 'running'
	`, string(status), outputVal, errVal,
		now.UTC().Format(timeFormat), durationMs, now.UTC().Format(timeFormat), id)
	if err != nil {
		return errors.Wrapf(err, "failed to mark run %s", status)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check update result")
	}
	if rows == 0 {
		return errors.Newf("run %s is not running (status: %s)", id, current)
	}

	return tx.Commit()
}

// Cancel transitions a pending run to cancelled. Runs that are already
// running cannot be cancelled through the store: aborting an in-flight
// worker resolves to failed with a cancellation error instead.
func (s *Store) Cancel(id string) error {
	now := time.Now()
	result, err := s.db.Exec(`
		UPDATE runs
		SET status = 'cancelled', completed_at = ?, updated_at = ?
		WHERE id = ? AND status = 'pending'
	`, now.UTC().Format(timeFormat), now.UTC().Format(timeFormat), id)
	if err != nil {
		return errors.Wrap(err, "failed to cancel run")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check cancel result")
	}
	if rows == 0 {
		r, gerr := s.Get(id)
		if gerr != nil {
			return gerr
		}
		if r.Status.IsTerminal() {
			return errors.Wrapf(errors.ErrTerminalState, "run %s already %s", id, r.Status)
		}
		return errors.Newf("run %s cannot be cancelled while %s", id, r.Status)
	}

	return nil
}

// Cleanup deletes terminal runs older than the cutoff. Pending and running
// runs are never deleted regardless of age. Returns the number deleted.
func (s *Store) Cleanup(olderThanDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -olderThanDays)

	result, err := s.db.Exec(`
		DELETE FROM runs
		WHERE status IN ('completed', 'failed', 'cancelled')
		  AND created_at < ?
	`, cutoff.UTC().Format(timeFormat))
	if err != nil {
		return 0, errors.Wrap(err, "failed to clean up runs")
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to count deleted runs")
	}
	return deleted, nil
}

// List returns runs filtered by status (nil for all), newest first
func (s *Store) List(status *Status, limit int) ([]*Run, error) {
	query := "SELECT " + runColumns + " FROM runs"
	var args []interface{}
	if status != nil {
		query += " WHERE status = ?"
		args = append(args, string(*status))
	}
	query += " ORDER BY created_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list runs")
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan run")
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetStats returns current pending/running counts
func (s *Store) GetStats() (*Stats, error) {
	rows, err := s.db.Query(`
		SELECT status, COUNT(*) FROM runs
		WHERE status IN ('pending', 'running')
		GROUP BY status
	`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query run stats")
	}
	defer rows.Close()

	stats := &Stats{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, errors.Wrap(err, "failed to scan run stats")
		}
		switch Status(status) {
		case StatusPending:
			stats.Pending = count
		case StatusRunning:
			stats.Running = count
		}
	}
	return stats, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*Run, error) {
	var r Run
	var status, trigger, createdAt, updatedAt string
	var scheduleID, input, output, errMsg, startedAt, completedAt sql.NullString
	var durationMs sql.NullInt64

	err := row.Scan(
		&r.ID, &r.JobID, &scheduleID, &status, &trigger, &input,
		&output, &errMsg, &startedAt, &completedAt, &durationMs,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	r.Status = Status(status)
	r.TriggeredBy = Trigger(trigger)
	if scheduleID.Valid {
		r.ScheduleID = &scheduleID.String
	}
	if input.Valid {
		r.Input = json.RawMessage(input.String)
	}
	if output.Valid {
		r.Output = output.String
	}
	if errMsg.Valid {
		r.Error = errMsg.String
	}
	if durationMs.Valid {
		r.DurationMs = &durationMs.Int64
	}

	if r.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, errors.Wrap(err, "failed to parse created_at")
	}
	if r.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, errors.Wrap(err, "failed to parse updated_at")
	}
	if startedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, startedAt.String)
		if err != nil {
			return nil, errors.Wrap(err, "failed to parse started_at")
		}
		r.StartedAt = &t
	}
	if completedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, completedAt.String)
		if err != nil {
			return nil, errors.Wrap(err, "failed to parse completed_at")
		}
		r.CompletedAt = &t
	}

	return &r, nil
}

func scanClaimJob(row rowScanner) (*job.Job, error) {
	var j job.Job
	var jobType, createdAt, updatedAt string
	var cfg, params sql.NullString

	if err := row.Scan(&j.ID, &j.Name, &jobType, &cfg, &params, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	j.Type = job.Type(jobType)
	if cfg.Valid {
		j.Config = json.RawMessage(cfg.String)
	}
	if params.Valid {
		j.Params = json.RawMessage(params.String)
	}

	var err error
	if j.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, errors.Wrap(err, "failed to parse job created_at")
	}
	if j.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, errors.Wrap(err, "failed to parse job updated_at")
	}

	return &j, nil
}
