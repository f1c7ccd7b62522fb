package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/HemSoft/hs-buddy-sub001/config"
	"github.com/HemSoft/hs-buddy-sub001/run"
	"github.com/HemSoft/hs-buddy-sub001/worker"
)

// buildSkillWorker registers the built-in skills. Skill jobs reference these
// by name in their config: {"skill": "runs.cleanup"}.
func buildSkillWorker(cfg *config.Config, runs *run.Store, log *zap.SugaredLogger) *worker.SkillWorker {
	w := worker.NewSkillWorker(log)

	w.RegisterSkill("runs.cleanup", func(ctx context.Context, args, input json.RawMessage) (string, error) {
		days := cfg.Runs.RetentionDays
		if len(args) > 0 {
			var override struct {
				RetentionDays int `json:"retention_days"`
			}
			if err := json.Unmarshal(args, &override); err != nil {
				return "", err
			}
			if override.RetentionDays > 0 {
				days = override.RetentionDays
			}
		}

		deleted, err := runs.Cleanup(days)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("deleted %d runs older than %d days", deleted, days), nil
	})

	return w
}
