package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/HemSoft/hs-buddy-sub001/ai/anthropic"
	"github.com/HemSoft/hs-buddy-sub001/errors"
)

// AIConfig is the job config blob for ai jobs.
// Placeholders of the form {{key}} in prompt and system are replaced with
// values from the run input when the input is a flat JSON object.
type AIConfig struct {
	Prompt string `json:"prompt"`
	System string `json:"system,omitempty"`
}

// PromptClient is the slice of the AI provider the worker needs
type PromptClient interface {
	Complete(ctx context.Context, system, prompt string) (string, *anthropic.Usage, error)
}

// AIWorker runs prompt jobs against an AI provider
type AIWorker struct {
	client PromptClient
	logger *zap.SugaredLogger
}

// NewAIWorker creates an AI prompt worker
func NewAIWorker(client PromptClient, log *zap.SugaredLogger) *AIWorker {
	return &AIWorker{
		client: client,
		logger: log.Named("ai"),
	}
}

// Type implements Worker
func (w *AIWorker) Type() string { return "ai" }

// Execute implements Worker
func (w *AIWorker) Execute(ctx context.Context, req *Request) (*Result, error) {
	start := time.Now()

	var cfg AIConfig
	if err := json.Unmarshal(req.Config, &cfg); err != nil {
		return nil, errors.Wrap(err, "invalid ai config")
	}
	if cfg.Prompt == "" {
		return nil, errors.New("ai config missing prompt")
	}

	prompt := substituteParams(cfg.Prompt, req.Input)
	system := substituteParams(cfg.System, req.Input)

	w.logger.Debugw("Sending prompt",
		"run_id", req.RunID,
		"job", req.JobName,
		"prompt_len", len(prompt))

	text, usage, err := w.client.Complete(ctx, system, prompt)
	durationMs := time.Since(start).Milliseconds()

	if ctx.Err() != nil {
		return nil, cancellationError(ctx)
	}
	if err != nil {
		return failed(err.Error(), durationMs), nil
	}

	if usage != nil {
		w.logger.Debugw("Prompt complete",
			"run_id", req.RunID,
			"input_tokens", usage.InputTokens,
			"output_tokens", usage.OutputTokens,
			"duration_ms", durationMs)
	}

	return &Result{
		Success:    true,
		Output:     text,
		DurationMs: durationMs,
	}, nil
}

// substituteParams replaces {{key}} placeholders with values from a flat
// JSON object. Non-object input and unknown keys are left untouched.
func substituteParams(s string, input []byte) string {
	if s == "" || len(input) == 0 || !strings.Contains(s, "{{") {
		return s
	}

	var params map[string]interface{}
	if err := json.Unmarshal(input, &params); err != nil {
		return s
	}

	for key, value := range params {
		s = strings.ReplaceAll(s, "{{"+key+"}}", fmt.Sprintf("%v", value))
	}
	return s
}
