package job

import (
	"database/sql"
	"time"

	"github.com/HemSoft/hs-buddy-sub001/errors"
)

// Store handles persistence of job definitions
type Store struct {
	db *sql.DB
}

// NewStore creates a new job store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts a new job
func (s *Store) Create(j *Job) error {
	query := `
		INSERT INTO jobs (id, name, type, config, params, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	var cfg, params interface{}
	if len(j.Config) > 0 {
		cfg = string(j.Config)
	}
	if len(j.Params) > 0 {
		params = string(j.Params)
	}

	_, err := s.db.Exec(query,
		j.ID,
		j.Name,
		string(j.Type),
		cfg,
		params,
		j.CreatedAt.Format(time.RFC3339),
		j.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return errors.Wrap(err, "failed to create job")
	}

	return nil
}

// Get retrieves a job by ID. Returns errors.ErrNotFound if it does not exist.
func (s *Store) Get(id string) (*Job, error) {
	return s.getBy("id", id)
}

// GetByName retrieves a job by its unique name
func (s *Store) GetByName(name string) (*Job, error) {
	return s.getBy("name", name)
}

func (s *Store) getBy(column, value string) (*Job, error) {
	query := `
		SELECT id, name, type, config, params, created_at, updated_at
		FROM jobs
		WHERE ` + column + ` = ?
	`

	j, err := scanJob(s.db.QueryRow(query, value))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(errors.ErrNotFound, "job %s=%s", column, value)
		}
		return nil, errors.Wrap(err, "failed to get job")
	}
	return j, nil
}

// List returns all jobs ordered by name
func (s *Store) List() ([]*Job, error) {
	query := `
		SELECT id, name, type, config, params, created_at, updated_at
		FROM jobs
		ORDER BY name
	`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list jobs")
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan job")
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// Update persists changes to an existing job
func (s *Store) Update(j *Job) error {
	query := `
		UPDATE jobs
		SET name = ?, type = ?, config = ?, params = ?, updated_at = ?
		WHERE id = ?
	`

	var cfg, params interface{}
	if len(j.Config) > 0 {
		cfg = string(j.Config)
	}
	if len(j.Params) > 0 {
		params = string(j.Params)
	}

	result, err := s.db.Exec(query,
		j.Name,
		string(j.Type),
		cfg,
		params,
		time.Now().Format(time.RFC3339),
		j.ID,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update job")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check update result")
	}
	if rows == 0 {
		return errors.Wrapf(errors.ErrNotFound, "job %s", j.ID)
	}
	return nil
}

// Delete removes a job. Its schedules are deleted by the foreign key
// cascade; its runs keep their job reference for history.
func (s *Store) Delete(id string) error {
	result, err := s.db.Exec("DELETE FROM jobs WHERE id = ?", id)
	if err != nil {
		return errors.Wrap(err, "failed to delete job")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check delete result")
	}
	if rows == 0 {
		return errors.Wrapf(errors.ErrNotFound, "job %s", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*Job, error) {
	var j Job
	var jobType, createdAt, updatedAt string
	var cfg, params sql.NullString

	if err := row.Scan(&j.ID, &j.Name, &jobType, &cfg, &params, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	j.Type = Type(jobType)
	if cfg.Valid {
		j.Config = []byte(cfg.String)
	}
	if params.Valid {
		j.Params = []byte(params.String)
	}

	var err error
	if j.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, errors.Wrap(err, "failed to parse created_at")
	}
	if j.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, errors.Wrap(err, "failed to parse updated_at")
	}

	return &j, nil
}
