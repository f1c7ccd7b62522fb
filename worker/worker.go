// Package worker defines the execution contract consumed by the dispatcher
// and the built-in workers (shell command, AI prompt, named skill).
package worker

import (
	"context"
	"sync"

	"github.com/HemSoft/hs-buddy-sub001/errors"
)

// Request carries everything a worker needs for one run
type Request struct {
	RunID   string
	JobID   string
	JobName string
	Config  []byte // worker-specific config blob from the job
	Input   []byte // run input payload (schedule params or manual input)
}

// Result is what a worker reports back to the dispatcher.
// Expected failures are returned as Success=false with Error set, not as a
// Go error; the dispatcher treats a returned error the same way defensively.
type Result struct {
	Success    bool   `json:"success"`
	Output     string `json:"output,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Worker executes jobs of one type.
//
// Context cancellation: workers MUST observe ctx.Done() promptly and return
// rather than completing normally; the dispatcher's stop cancels the context
// of any in-flight execution.
type Worker interface {
	// Type returns the worker-type tag this worker handles ("exec", "ai", "skill")
	Type() string

	// Execute runs one request to completion or cancellation
	Execute(ctx context.Context, req *Request) (*Result, error)
}

// Registry manages workers by type tag.
// Thread-safe for concurrent registration and lookup.
type Registry struct {
	workers map[string]Worker
	mu      sync.RWMutex
}

// NewRegistry creates an empty worker registry
func NewRegistry() *Registry {
	return &Registry{
		workers: make(map[string]Worker),
	}
}

// Register adds a worker under its type tag.
// Panics if a worker is already registered for that type.
func (r *Registry) Register(w Worker) {
	r.mu.Lock()
	defer r.mu.Unlock()

	workerType := w.Type()
	if _, exists := r.workers[workerType]; exists {
		panic("worker already registered for type: " + workerType)
	}
	r.workers[workerType] = w
}

// Get retrieves the worker for a type tag.
// Returns nil if no worker is registered.
func (r *Registry) Get(workerType string) Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.workers[workerType]
}

// Has checks if a worker is registered for a type
func (r *Registry) Has(workerType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.workers[workerType]
	return exists
}

// Types returns all registered worker types
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.workers))
	for t := range r.workers {
		types = append(types, t)
	}
	return types
}

// failed builds a failure result from an error message
func failed(errMsg string, durationMs int64) *Result {
	return &Result{Success: false, Error: errMsg, DurationMs: durationMs}
}

// cancellationError converts a context error into a worker failure.
// An aborted in-flight run resolves to failed with a cancellation error,
// never to a cancelled terminal state.
func cancellationError(ctx context.Context) error {
	return errors.Wrap(ctx.Err(), "execution cancelled")
}
