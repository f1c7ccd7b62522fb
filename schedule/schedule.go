// Package schedule provides recurring cron triggers for jobs, the scanner
// that fires them, and the startup reconciler for firings missed while the
// process was down.
package schedule

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/HemSoft/hs-buddy-sub001/errors"
)

// MissedPolicy controls how firings missed during downtime are reconciled
type MissedPolicy string

const (
	// MissedSkip ignores the backlog and just advances the next fire time
	MissedSkip MissedPolicy = "skip"
	// MissedCatchup replays every missed firing (bounded)
	MissedCatchup MissedPolicy = "catchup"
	// MissedLast collapses the backlog into a single run
	MissedLast MissedPolicy = "last"
)

// IsValidPolicy returns true if s is a known missed-run policy
func IsValidPolicy(s string) bool {
	switch MissedPolicy(s) {
	case MissedSkip, MissedCatchup, MissedLast:
		return true
	default:
		return false
	}
}

// Schedule is a recurring cron trigger bound to exactly one job.
//
// NextRunAt is always either nil ("needs (re)initialization") or a
// timestamp computed from Cron+Timezone by the evaluator. It is recomputed
// whenever cron, timezone, or enabled changes and cleared when disabled.
type Schedule struct {
	ID            string          `json:"id"`
	JobID         string          `json:"job_id"`
	Cron          string          `json:"cron"`
	Timezone      string          `json:"timezone,omitempty"`
	Enabled       bool            `json:"enabled"`
	MissedPolicy  MissedPolicy    `json:"missed_policy"`
	LastRunAt     *time.Time      `json:"last_run_at,omitempty"`
	LastRunStatus string          `json:"last_run_status,omitempty"`
	NextRunAt     *time.Time      `json:"next_run_at,omitempty"`
	Params        json.RawMessage `json:"params,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// New creates an enabled schedule with a generated ID. NextRunAt is left
// nil; the scanner initializes it on its first pass.
func New(jobID, cronExpr, timezone string, policy MissedPolicy, params json.RawMessage) (*Schedule, error) {
	if jobID == "" {
		return nil, errors.New("schedule job ID cannot be empty")
	}
	if err := ValidateCron(cronExpr); err != nil {
		return nil, err
	}
	if policy == "" {
		policy = MissedSkip
	}
	if !IsValidPolicy(string(policy)) {
		return nil, errors.Newf("unknown missed-run policy: %s", policy)
	}

	now := time.Now()
	return &Schedule{
		ID:           uuid.NewString(),
		JobID:        jobID,
		Cron:         cronExpr,
		Timezone:     timezone,
		Enabled:      true,
		MissedPolicy: policy,
		Params:       params,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// IsDue reports whether the schedule should fire at now
func (s *Schedule) IsDue(now time.Time) bool {
	return s.NextRunAt == nil || !s.NextRunAt.After(now)
}
