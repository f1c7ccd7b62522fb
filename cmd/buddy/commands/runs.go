package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/HemSoft/hs-buddy-sub001/errors"
	"github.com/HemSoft/hs-buddy-sub001/run"
)

// RunsCmd inspects and manages run history
var RunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect and manage run history",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var runsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List recent runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		statusFilter, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		var status *run.Status
		if statusFilter != "" {
			if !run.IsValidStatus(statusFilter) {
				return errors.Newf("unknown status: %s", statusFilter)
			}
			s := run.Status(statusFilter)
			status = &s
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

		runs, err := run.NewStore(database).List(status, limit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No runs")
			return nil
		}

		fmt.Printf("%-36s  %-10s  %-8s  %-16s  %s\n",
			"ID", "STATUS", "TRIGGER", "CREATED", "DURATION")
		for _, r := range runs {
			duration := "-"
			if r.DurationMs != nil {
				duration = fmt.Sprintf("%dms", *r.DurationMs)
			}
			fmt.Printf("%-36s  %-10s  %-8s  %-16s  %s\n",
				r.ID, r.Status, r.TriggeredBy,
				r.CreatedAt.Format("2006-01-02 15:04"), duration)
		}
		return nil
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run in full",
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

		r, err := run.NewStore(database).Get(args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Run:        %s\n", r.ID)
		fmt.Printf("Job:        %s\n", r.JobID)
		if r.ScheduleID != nil {
			fmt.Printf("Schedule:   %s\n", *r.ScheduleID)
		}
		fmt.Printf("Status:     %s\n", r.Status)
		fmt.Printf("Trigger:    %s\n", r.TriggeredBy)
		fmt.Printf("Created:    %s\n", r.CreatedAt.Format("2006-01-02 15:04:05 MST"))
		if r.StartedAt != nil {
			fmt.Printf("Started:    %s\n", r.StartedAt.Format("2006-01-02 15:04:05 MST"))
		}
		if r.CompletedAt != nil {
			fmt.Printf("Completed:  %s\n", r.CompletedAt.Format("2006-01-02 15:04:05 MST"))
		}
		if r.DurationMs != nil {
			fmt.Printf("Duration:   %dms\n", *r.DurationMs)
		}
		if len(r.Input) > 0 {
			fmt.Printf("Input:      %s\n", string(r.Input))
		}
		if r.Output != "" {
			fmt.Printf("Output:\n%s\n", r.Output)
		}
		if r.Error != "" {
			fmt.Printf("Error:      %s\n", r.Error)
		}
		return nil
	},
}

var runsCancelCmd = &cobra.Command{
	Use:   "cancel <run-id>",
	Short: "Cancel a pending run",
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

		if err := run.NewStore(database).Cancel(args[0]); err != nil {
			return err
		}
		fmt.Printf("Cancelled run %s\n", args[0])
		return nil
	},
}

var runsCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete old terminal runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		days, _ := cmd.Flags().GetInt("days")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if days <= 0 {
			days = cfg.Runs.RetentionDays
		}

		database, err := openDatabase(cmd, cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		deleted, err := run.NewStore(database).Cleanup(days)
		if err != nil {
			return err
		}
		fmt.Printf("Deleted %d runs older than %d days\n", deleted, days)
		return nil
	},
}

func init() {
	runsLsCmd.Flags().String("status", "", "Filter by status (pending, running, completed, failed, cancelled)")
	runsLsCmd.Flags().Int("limit", 20, "Maximum runs to list")
	runsCleanupCmd.Flags().Int("days", 0, "Retention in days (default: configured retention)")

	RunsCmd.AddCommand(runsLsCmd)
	RunsCmd.AddCommand(runsShowCmd)
	RunsCmd.AddCommand(runsCancelCmd)
	RunsCmd.AddCommand(runsCleanupCmd)
}
