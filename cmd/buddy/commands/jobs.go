package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/HemSoft/hs-buddy-sub001/errors"
	"github.com/HemSoft/hs-buddy-sub001/job"
	"github.com/HemSoft/hs-buddy-sub001/schedule"
)

// JobsCmd manages job definitions
var JobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Manage job definitions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var jobsAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a job definition",
	Long: `Add a job definition.

The config blob is interpreted by the worker for the job's type:
  exec:  {"command": "./backup.sh", "timeout_seconds": 300}
  ai:    {"prompt": "Summarize: {{text}}", "system": "Be brief"}
  skill: {"skill": "runs.cleanup"}`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jobType, _ := cmd.Flags().GetString("type")
		configJSON, _ := cmd.Flags().GetString("config")
		paramsJSON, _ := cmd.Flags().GetString("params")

		if err := validateJSON(configJSON, "--config"); err != nil {
			return err
		}
		if err := validateJSON(paramsJSON, "--params"); err != nil {
			return err
		}

		j, err := job.New(args[0], job.Type(jobType), rawOrNil(configJSON), rawOrNil(paramsJSON))
		if err != nil {
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

		if err := job.NewStore(database).Create(j); err != nil {
			return err
		}

		fmt.Printf("Created job %s (%s, type %s)\n", j.Name, j.ID, j.Type)
		return nil
	},
}

var jobsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List job definitions",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		database, err := openDatabase(cmd, cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		jobs, err := job.NewStore(database).List()
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			fmt.Println("No jobs defined")
			return nil
		}

		fmt.Printf("%-36s  %-6s  %-20s  %s\n", "ID", "TYPE", "NAME", "CREATED")
		for _, j := range jobs {
			fmt.Printf("%-36s  %-6s  %-20s  %s\n",
				j.ID, j.Type, j.Name, j.CreatedAt.Format("2006-01-02 15:04"))
		}
		return nil
	},
}

var jobsRmCmd = &cobra.Command{
	Use:   "rm <name>",
	Short: "Remove a job and its schedules (run history is kept)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		database, err := openDatabase(cmd, cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		store := job.NewStore(database)
		j, err := store.GetByName(args[0])
		if err != nil {
			return err
		}

		// Count the schedules the delete will cascade over, so the operator
		// sees what went with the job
		scheds, err := schedule.NewStore(database).ListForJob(j.ID)
		if err != nil {
			return err
		}

		if err := store.Delete(j.ID); err != nil {
			return err
		}

		if n := len(scheds); n > 0 {
			fmt.Printf("Removed job %s and %d schedule(s)\n", j.Name, n)
		} else {
			fmt.Printf("Removed job %s\n", j.Name)
		}
		return nil
	},
}

// rawOrNil treats an empty flag as an absent JSON blob
func rawOrNil(s string) json.RawMessage {
	if s == "" {
		return nil
	}
	return json.RawMessage(s)
}

// validateJSON rejects malformed blobs before they reach the database
func validateJSON(s, what string) error {
	if s == "" {
		return nil
	}
	if !json.Valid([]byte(s)) {
		return errors.Newf("invalid JSON in %s", what)
	}
	return nil
}

func init() {
	jobsAddCmd.Flags().String("type", "exec", "Job type: exec, ai, or skill")
	jobsAddCmd.Flags().String("config", "", "Worker config as JSON")
	jobsAddCmd.Flags().String("params", "", "Declared input parameters as JSON")

	JobsCmd.AddCommand(jobsAddCmd)
	JobsCmd.AddCommand(jobsLsCmd)
	JobsCmd.AddCommand(jobsRmCmd)
}
