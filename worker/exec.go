package worker

import (
	"context"
	"encoding/json"
	"os/exec"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
	"go.uber.org/zap"

	"github.com/HemSoft/hs-buddy-sub001/errors"
)

// ExecConfig is the job config blob for exec jobs
type ExecConfig struct {
	Command        string `json:"command"`
	WorkingDir     string `json:"working_dir,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

// ExecWorker runs shell commands. The command string is split with shell
// quoting rules and executed directly, not through a shell.
type ExecWorker struct {
	logger *zap.SugaredLogger
}

// NewExecWorker creates a shell command worker
func NewExecWorker(log *zap.SugaredLogger) *ExecWorker {
	return &ExecWorker{logger: log.Named("exec")}
}

// Type implements Worker
func (w *ExecWorker) Type() string { return "exec" }

// Execute implements Worker
func (w *ExecWorker) Execute(ctx context.Context, req *Request) (*Result, error) {
	start := time.Now()

	var cfg ExecConfig
	if err := json.Unmarshal(req.Config, &cfg); err != nil {
		return nil, errors.Wrap(err, "invalid exec config")
	}
	if cfg.Command == "" {
		return nil, errors.New("exec config missing command")
	}

	argv, err := shellquote.Split(cfg.Command)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse command %q", cfg.Command)
	}

	execCtx := ctx
	if cfg.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, time.Duration(cfg.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	w.logger.Debugw("Executing command",
		"run_id", req.RunID,
		"job", req.JobName,
		"command", cfg.Command)

	cmd := exec.CommandContext(execCtx, argv[0], argv[1:]...)
	if cfg.WorkingDir != "" {
		cmd.Dir = cfg.WorkingDir
	}

	output, err := cmd.CombinedOutput()
	durationMs := time.Since(start).Milliseconds()

	if ctx.Err() != nil {
		return nil, cancellationError(ctx)
	}
	if err != nil {
		msg := err.Error()
		if len(output) > 0 {
			msg += ": " + strings.TrimSpace(string(output))
		}
		return failed(msg, durationMs), nil
	}

	return &Result{
		Success:    true,
		Output:     strings.TrimSpace(string(output)),
		DurationMs: durationMs,
	}, nil
}
