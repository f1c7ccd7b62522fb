// Package job defines reusable task definitions and their persistence.
package job

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/HemSoft/hs-buddy-sub001/errors"
)

// Type identifies which worker executes a job
type Type string

const (
	// TypeExec runs a shell command
	TypeExec Type = "exec"
	// TypeAI runs an AI prompt against the configured provider
	TypeAI Type = "ai"
	// TypeSkill runs a named in-process skill
	TypeSkill Type = "skill"
)

// IsValidType returns true if s is a known job type
func IsValidType(s string) bool {
	switch Type(s) {
	case TypeExec, TypeAI, TypeSkill:
		return true
	default:
		return false
	}
}

// Job is a reusable task definition. The Config blob is opaque to the
// scheduling core; only the worker registered for Type interprets it.
type Job struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Type      Type            `json:"type"`
	Config    json.RawMessage `json:"config,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"` // declared input parameters
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// New creates a job definition with a generated ID
func New(name string, jobType Type, cfg, params json.RawMessage) (*Job, error) {
	if name == "" {
		return nil, errors.New("job name cannot be empty")
	}
	if !IsValidType(string(jobType)) {
		return nil, errors.Newf("unknown job type: %s", jobType)
	}

	now := time.Now()
	return &Job{
		ID:        uuid.NewString(),
		Name:      name,
		Type:      jobType,
		Config:    cfg,
		Params:    params,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}
