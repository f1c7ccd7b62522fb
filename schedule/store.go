package schedule

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/HemSoft/hs-buddy-sub001/errors"
)

// timeFormat is fixed-width RFC3339 with nanoseconds, always UTC, so that
// lexicographic comparison of stored timestamps matches chronological order.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Store handles persistence of schedules.
//
// Every mutation is a single UPDATE statement so that the scanner and
// dispatcher racing on the same schedule never interleave partial writes.
type Store struct {
	db *sql.DB
}

// NewStore creates a new schedule store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts a new schedule
func (s *Store) Create(sched *Schedule) error {
	query := `
		INSERT INTO schedules (
			id, job_id, cron_expr, timezone, enabled, missed_policy,
			last_run_at, last_run_status, next_run_at, params,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var lastRunAt, lastRunStatus, nextRunAt, params interface{}
	if sched.LastRunAt != nil {
		lastRunAt = sched.LastRunAt.UTC().Format(timeFormat)
	}
	if sched.LastRunStatus != "" {
		lastRunStatus = sched.LastRunStatus
	}
	if sched.NextRunAt != nil {
		nextRunAt = sched.NextRunAt.UTC().Format(timeFormat)
	}
	if len(sched.Params) > 0 {
		params = string(sched.Params)
	}

	_, err := s.db.Exec(query,
		sched.ID,
		sched.JobID,
		sched.Cron,
		sched.Timezone,
		boolToInt(sched.Enabled),
		string(sched.MissedPolicy),
		lastRunAt,
		lastRunStatus,
		nextRunAt,
		params,
		sched.CreatedAt.UTC().Format(timeFormat),
		sched.UpdatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return errors.Wrap(err, "failed to create schedule")
	}

	return nil
}

const scheduleColumns = `id, job_id, cron_expr, timezone, enabled, missed_policy,
	last_run_at, last_run_status, next_run_at, params, created_at, updated_at`

// Get retrieves a schedule by ID. Returns errors.ErrNotFound if it does not exist.
func (s *Store) Get(id string) (*Schedule, error) {
	row := s.db.QueryRow("SELECT "+scheduleColumns+" FROM schedules WHERE id = ?", id)

	sched, err := scanSchedule(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(errors.ErrNotFound, "schedule %s", id)
		}
		return nil, errors.Wrap(err, "failed to get schedule")
	}
	return sched, nil
}

// ListEnabled returns all enabled schedules
func (s *Store) ListEnabled() ([]*Schedule, error) {
	return s.list("WHERE enabled = 1")
}

// ListAll returns every schedule
func (s *Store) ListAll() ([]*Schedule, error) {
	return s.list("")
}

// ListForJob returns the schedules bound to a job
func (s *Store) ListForJob(jobID string) ([]*Schedule, error) {
	return s.list("WHERE job_id = ?", jobID)
}

func (s *Store) list(where string, args ...interface{}) ([]*Schedule, error) {
	query := "SELECT " + scheduleColumns + " FROM schedules " + where + " ORDER BY created_at"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list schedules")
	}
	defer rows.Close()

	var schedules []*Schedule
	for rows.Next() {
		sched, err := scanSchedule(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan schedule")
		}
		schedules = append(schedules, sched)
	}
	return schedules, rows.Err()
}

// NextScheduled returns the enabled schedule with the soonest next fire
// time, or nil if none have one set. Used for the scanner heartbeat log.
func (s *Store) NextScheduled() (*Schedule, error) {
	row := s.db.QueryRow(`
		SELECT ` + scheduleColumns + `
		FROM schedules
		WHERE enabled = 1 AND next_run_at IS NOT NULL
		ORDER BY next_run_at
		LIMIT 1
	`)

	sched, err := scanSchedule(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get next scheduled")
	}
	return sched, nil
}

// Disable marks a schedule disabled and clears its next fire time.
// Used by the scanner when a schedule's job no longer exists.
func (s *Store) Disable(id string) error {
	return s.exec(`
		UPDATE schedules
		SET enabled = 0, next_run_at = NULL, updated_at = ?
		WHERE id = ?
	`, "failed to disable schedule", time.Now().UTC().Format(timeFormat), id)
}

// SetEnabled flips the enabled flag. Enabling clears next_run_at so the
// scanner reinitializes it; disabling clears it per the invariant.
func (s *Store) SetEnabled(id string, enabled bool) error {
	return s.exec(`
		UPDATE schedules
		SET enabled = ?, next_run_at = NULL, updated_at = ?
		WHERE id = ?
	`, "failed to update schedule enabled flag", boolToInt(enabled), time.Now().UTC().Format(timeFormat), id)
}

// UpdateCron replaces the cron expression and timezone, clearing
// next_run_at so it is recomputed on the next scan.
func (s *Store) UpdateCron(id, cronExpr, timezone string) error {
	if err := ValidateCron(cronExpr); err != nil {
		return err
	}
	return s.exec(`
		UPDATE schedules
		SET cron_expr = ?, timezone = ?, next_run_at = NULL, updated_at = ?
		WHERE id = ?
	`, "failed to update schedule cron", cronExpr, timezone, time.Now().UTC().Format(timeFormat), id)
}

// AdvanceNextRun sets only the next fire time. Used by the duplicate-run
// guard so a schedule with an in-flight run does not stay permanently due.
func (s *Store) AdvanceNextRun(id string, next time.Time) error {
	return s.exec(`
		UPDATE schedules
		SET next_run_at = ?, updated_at = ?
		WHERE id = ?
	`, "failed to advance schedule", next.UTC().Format(timeFormat), time.Now().UTC().Format(timeFormat), id)
}

// MarkFired records a firing: last_run_at and the recomputed next fire time
func (s *Store) MarkFired(id string, firedAt, next time.Time) error {
	return s.exec(`
		UPDATE schedules
		SET last_run_at = ?, next_run_at = ?, updated_at = ?
		WHERE id = ?
	`, "failed to mark schedule fired",
		firedAt.UTC().Format(timeFormat), next.UTC().Format(timeFormat),
		time.Now().UTC().Format(timeFormat), id)
}

// SetLastOutcome records the terminal status of the schedule's most recent
// run. Denormalized convenience for display, not authoritative state.
func (s *Store) SetLastOutcome(id, status string, at time.Time) error {
	return s.exec(`
		UPDATE schedules
		SET last_run_status = ?, last_run_at = ?, updated_at = ?
		WHERE id = ?
	`, "failed to record schedule outcome",
		status, at.UTC().Format(timeFormat), time.Now().UTC().Format(timeFormat), id)
}

// Delete removes a schedule
func (s *Store) Delete(id string) error {
	result, err := s.db.Exec("DELETE FROM schedules WHERE id = ?", id)
	if err != nil {
		return errors.Wrap(err, "failed to delete schedule")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check delete result")
	}
	if rows == 0 {
		return errors.Wrapf(errors.ErrNotFound, "schedule %s", id)
	}
	return nil
}

func (s *Store) exec(query, wrapMsg string, args ...interface{}) error {
	result, err := s.db.Exec(query, args...)
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}
	if rows == 0 {
		return errors.Wrap(errors.ErrNotFound, wrapMsg)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSchedule(row rowScanner) (*Schedule, error) {
	var sched Schedule
	var enabled int
	var policy, createdAt, updatedAt string
	var lastRunAt, lastRunStatus, nextRunAt, params sql.NullString

	err := row.Scan(
		&sched.ID, &sched.JobID, &sched.Cron, &sched.Timezone, &enabled, &policy,
		&lastRunAt, &lastRunStatus, &nextRunAt, &params, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	sched.Enabled = enabled != 0
	sched.MissedPolicy = MissedPolicy(policy)
	if lastRunStatus.Valid {
		sched.LastRunStatus = lastRunStatus.String
	}
	if params.Valid {
		sched.Params = json.RawMessage(params.String)
	}

	if lastRunAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, lastRunAt.String)
		if err != nil {
			return nil, errors.Wrap(err, "failed to parse last_run_at")
		}
		sched.LastRunAt = &t
	}
	if nextRunAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, nextRunAt.String)
		if err != nil {
			return nil, errors.Wrap(err, "failed to parse next_run_at")
		}
		sched.NextRunAt = &t
	}
	if sched.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, errors.Wrap(err, "failed to parse created_at")
	}
	if sched.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, errors.Wrap(err, "failed to parse updated_at")
	}

	return &sched, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
