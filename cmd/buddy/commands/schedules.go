package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/HemSoft/hs-buddy-sub001/job"
	"github.com/HemSoft/hs-buddy-sub001/schedule"
)

// SchedulesCmd manages cron schedules
var SchedulesCmd = &cobra.Command{
	Use:   "schedules",
	Short: "Manage cron schedules",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var schedulesAddCmd = &cobra.Command{
	Use:   "add <job-name> <cron-expr>",
	Short: "Attach a cron schedule to a job",
	Long: `Attach a cron schedule to a job.

The cron expression uses five fields (minute hour day-of-month month
day-of-week). The missed-run policy controls what happens to firings missed
while the daemon was down: skip (default), catchup, or last.

Examples:
  buddy schedules add backup "0 3 * * *"
  buddy schedules add report "0 9 * * 1" --tz America/New_York --missed last`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		tz, _ := cmd.Flags().GetString("tz")
		missed, _ := cmd.Flags().GetString("missed")
		paramsJSON, _ := cmd.Flags().GetString("params")

		if err := validateJSON(paramsJSON, "--params"); err != nil {
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

		sched, err := schedule.New(j.ID, args[1], tz, schedule.MissedPolicy(missed), rawOrNil(paramsJSON))
		if err != nil {
			return err
		}
		if err := schedule.NewStore(database).Create(sched); err != nil {
			return err
		}

		fmt.Printf("Created schedule %s for job %s (%q, %s)\n",
			sched.ID, j.Name, sched.Cron, sched.MissedPolicy)
		return nil
	},
}

var schedulesLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List schedules",
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

		scheds, err := schedule.NewStore(database).ListAll()
		if err != nil {
			return err
		}
		if len(scheds) == 0 {
			fmt.Println("No schedules defined")
			return nil
		}

		jobs := job.NewStore(database)
		fmt.Printf("%-36s  %-20s  %-16s  %-8s  %-8s  %s\n",
			"ID", "JOB", "CRON", "POLICY", "ENABLED", "NEXT RUN")
		for _, s := range scheds {
			jobName := s.JobID
			if j, err := jobs.Get(s.JobID); err == nil {
				jobName = j.Name
			}
			next := "-"
			if s.NextRunAt != nil {
				next = s.NextRunAt.Format("2006-01-02 15:04 MST")
			}
			fmt.Printf("%-36s  %-20s  %-16s  %-8s  %-8t  %s\n",
				s.ID, jobName, s.Cron, s.MissedPolicy, s.Enabled, next)
		}
		return nil
	},
}

var schedulesEnableCmd = &cobra.Command{
	Use:   "enable <schedule-id>",
	Short: "Enable a schedule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setScheduleEnabled(cmd, args[0], true)
	},
}

var schedulesDisableCmd = &cobra.Command{
	Use:   "disable <schedule-id>",
	Short: "Disable a schedule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setScheduleEnabled(cmd, args[0], false)
	},
}

var schedulesRmCmd = &cobra.Command{
	Use:   "rm <schedule-id>",
	Short: "Remove a schedule",
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

		if err := schedule.NewStore(database).Delete(args[0]); err != nil {
			return err
		}
		fmt.Printf("Removed schedule %s\n", args[0])
		return nil
	},
}

func setScheduleEnabled(cmd *cobra.Command, id string, enabled bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	database, err := openDatabase(cmd, cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := schedule.NewStore(database).SetEnabled(id, enabled); err != nil {
		return err
	}
	state := "disabled"
	if enabled {
		state = "enabled"
	}
	fmt.Printf("Schedule %s %s\n", id, state)
	return nil
}

func init() {
	schedulesAddCmd.Flags().String("tz", "", "IANA timezone for cron evaluation (default: scheduler default)")
	schedulesAddCmd.Flags().String("missed", "skip", "Missed-run policy: skip, catchup, or last")
	schedulesAddCmd.Flags().String("params", "", "Run input parameters as JSON")

	SchedulesCmd.AddCommand(schedulesAddCmd)
	SchedulesCmd.AddCommand(schedulesLsCmd)
	SchedulesCmd.AddCommand(schedulesEnableCmd)
	SchedulesCmd.AddCommand(schedulesDisableCmd)
	SchedulesCmd.AddCommand(schedulesRmCmd)
}
