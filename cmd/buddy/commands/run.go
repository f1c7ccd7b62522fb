package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/HemSoft/hs-buddy-sub001/job"
	"github.com/HemSoft/hs-buddy-sub001/run"
)

// RunCmd queues a manual run of a job
var RunCmd = &cobra.Command{
	Use:   "run <job-name>",
	Short: "Trigger a job manually",
	Long: `Queue a manual run of a job.

The run is created pending and picked up by a running daemon's dispatcher.
Input parameters are passed to the worker (AI prompts substitute {{key}}
placeholders from them).

Example:
  buddy run report --input '{"month": "2026-08"}'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		inputJSON, _ := cmd.Flags().GetString("input")
		if err := validateJSON(inputJSON, "--input"); err != nil {
			return err
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		database, err := openDatabase(cmd, cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		j, err := job.NewStore(database).GetByName(args[0])
		if err != nil {
			return err
		}

		r := run.New(j.ID, nil, run.TriggerManual, rawOrNil(inputJSON))
		if err := run.NewStore(database).Create(r); err != nil {
			return err
		}

		fmt.Printf("Queued run %s for job %s\n", r.ID, j.Name)
		return nil
	},
}

func init() {
	RunCmd.Flags().String("input", "", "Run input parameters as JSON")
}
