package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "hive",
	Short: "Agent fleet orchestration core",
	Long: `Hive coordinates a fleet of long-lived agent worker processes that
execute steps of decomposed tasks on behalf of supervising workflows.

Core capabilities:
- Workflow, task, and agent-slot state machines
- FIFO admission control with per-class and per-workflow quotas
- Checkpoint/resume so multi-step workflows survive restarts
- A process supervisor that keeps worker processes alive under failure`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(agentsCmd)
	rootCmd.AddCommand(versionCmd)
}
