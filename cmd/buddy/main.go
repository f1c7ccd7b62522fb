package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/HemSoft/hs-buddy-sub001/cmd/buddy/commands"
	"github.com/HemSoft/hs-buddy-sub001/logger"
)

var jsonLogs bool

var rootCmd = &cobra.Command{
	Use:   "buddy",
	Short: "Buddy - scheduled job runner",
	Long: `Buddy - cron-scheduled job definitions executed through pluggable workers.

Jobs are reusable task definitions (shell commands, AI prompts, in-process
skills). Schedules attach cron expressions to jobs; the daemon fires due
schedules, reconciles firings missed while it was down, and executes the
resulting runs one at a time.

Available commands:
  daemon     - Run the scheduler daemon in the foreground
  jobs       - Manage job definitions
  schedules  - Manage cron schedules
  run        - Trigger a job manually
  runs       - Inspect and manage run history

Examples:
  buddy daemon                          # Start the daemon
  buddy jobs add backup --type exec --config '{"command":"./backup.sh"}'
  buddy schedules add backup "0 3 * * *"
  buddy run backup                      # Queue a manual run
  buddy runs ls --status failed         # Recent failures`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logger.Initialize(jsonLogs); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "Emit logs as JSON instead of console format")
	rootCmd.PersistentFlags().String("db", "", "Database path (overrides config)")

	rootCmd.AddCommand(commands.DaemonCmd)
	rootCmd.AddCommand(commands.JobsCmd)
	rootCmd.AddCommand(commands.SchedulesCmd)
	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.RunsCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	defer logger.Sync()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
