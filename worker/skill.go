package worker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/HemSoft/hs-buddy-sub001/errors"
)

// SkillConfig is the job config blob for skill jobs
type SkillConfig struct {
	Skill string          `json:"skill"`
	Args  json.RawMessage `json:"args,omitempty"`
}

// SkillFunc is an in-process skill implementation. Args come from the job
// config, input from the run. Returns human-readable output.
type SkillFunc func(ctx context.Context, args, input json.RawMessage) (string, error)

// SkillWorker runs named in-process skills.
// Skills are registered at startup by the composing process.
type SkillWorker struct {
	skills map[string]SkillFunc
	mu     sync.RWMutex
	logger *zap.SugaredLogger
}

// NewSkillWorker creates a skill worker with no skills registered
func NewSkillWorker(log *zap.SugaredLogger) *SkillWorker {
	return &SkillWorker{
		skills: make(map[string]SkillFunc),
		logger: log.Named("skill"),
	}
}

// RegisterSkill adds a named skill.
// Panics if a skill is already registered with that name.
func (w *SkillWorker) RegisterSkill(name string, fn SkillFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, exists := w.skills[name]; exists {
		panic("skill already registered: " + name)
	}
	w.skills[name] = fn
}

// Skills returns all registered skill names
func (w *SkillWorker) Skills() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	names := make([]string, 0, len(w.skills))
	for name := range w.skills {
		names = append(names, name)
	}
	return names
}

// Type implements Worker
func (w *SkillWorker) Type() string { return "skill" }

// Execute implements Worker
func (w *SkillWorker) Execute(ctx context.Context, req *Request) (*Result, error) {
	start := time.Now()

	var cfg SkillConfig
	if err := json.Unmarshal(req.Config, &cfg); err != nil {
		return nil, errors.Wrap(err, "invalid skill config")
	}
	if cfg.Skill == "" {
		return nil, errors.New("skill config missing skill name")
	}

	w.mu.RLock()
	fn, ok := w.skills[cfg.Skill]
	w.mu.RUnlock()
	if !ok {
		return nil, errors.Newf("unknown skill: %s", cfg.Skill)
	}

	w.logger.Debugw("Running skill",
		"run_id", req.RunID,
		"job", req.JobName,
		"skill", cfg.Skill)

	output, err := fn(ctx, cfg.Args, req.Input)
	durationMs := time.Since(start).Milliseconds()

	if ctx.Err() != nil {
		return nil, cancellationError(ctx)
	}
	if err != nil {
		return failed(err.Error(), durationMs), nil
	}

	return &Result{
		Success:    true,
		Output:     output,
		DurationMs: durationMs,
	}, nil
}
