// Package run tracks execution attempts of jobs through their lifecycle.
//
// State machine: pending → running → {completed | failed | cancelled}.
// pending → cancelled is also legal (user cancel before claim). There is
// no transition out of a terminal state, and running → cancelled is not
// supported: cancelling an in-flight run aborts the worker, which resolves
// to failed with a cancellation error.
package run

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status represents the current state of a run
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsTerminal returns true if no further transitions are allowed
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsValidStatus returns true if the status string is a valid Status
func IsValidStatus(s string) bool {
	switch Status(s) {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Trigger identifies what created a run
type Trigger string

const (
	TriggerManual   Trigger = "manual"
	TriggerSchedule Trigger = "schedule"
	TriggerAPI      Trigger = "api"
)

// Run represents one execution attempt of a job
type Run struct {
	ID          string          `json:"id"`
	JobID       string          `json:"job_id"`
	ScheduleID  *string         `json:"schedule_id,omitempty"` // nil for manual/API runs
	Status      Status          `json:"status"`
	TriggeredBy Trigger         `json:"triggered_by"`
	Input       json.RawMessage `json:"input,omitempty"`
	Output      string          `json:"output,omitempty"`
	Error       string          `json:"error,omitempty"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	DurationMs  *int64          `json:"duration_ms,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// New creates a pending run for a job
func New(jobID string, scheduleID *string, trigger Trigger, input json.RawMessage) *Run {
	now := time.Now()
	return &Run{
		ID:          uuid.NewString(),
		JobID:       jobID,
		ScheduleID:  scheduleID,
		Status:      StatusPending,
		TriggeredBy: trigger,
		Input:       input,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
