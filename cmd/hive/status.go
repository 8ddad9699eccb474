package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/hive/internal/session"
	"github.com/ShayCichocki/hive/internal/state"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show resumable sessions and checkpoint state",
	Long: `Display the orchestrator's persisted state.

Shows:
  - Resumable sessions with their progress and resume phase
  - The age of each session's latest checkpoint`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	// Try project database first, then global.
	dbPath := state.ProjectDBPath(cwd)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		dbPath = state.GlobalDBPath()
	}
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Println("No sessions recorded. Run 'hive run <task>' to start.")
		return nil
	}

	db, err := state.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	engine := session.NewEngine(db)
	resumable, err := engine.CheckForResumableSessions()
	if err != nil {
		return fmt.Errorf("check resumable sessions: %w", err)
	}
	if len(resumable) == 0 {
		fmt.Println("No resumable sessions.")
		return nil
	}

	bold := color.New(color.Bold)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	bold.Println("Resumable Sessions:")
	for _, rs := range resumable {
		fmt.Printf("  %s: %q\n", rs.SessionID, rs.OriginalTask)
		if rs.CompletedTasks == rs.TotalTasks {
			green.Printf("    %d/%d tasks done", rs.CompletedTasks, rs.TotalTasks)
		} else {
			yellow.Printf("    %d/%d tasks done", rs.CompletedTasks, rs.TotalTasks)
		}
		fmt.Printf(", resume at %s, last checkpoint %s ago\n",
			rs.ResumePhase, formatDuration(time.Since(rs.LastCheckpointAt)))
	}
	fmt.Println("\nUse 'hive run --resume <session-id>' to continue one.")
	return nil
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		h := int(d.Hours())
		m := int(d.Minutes()) % 60
		if m > 0 {
			return fmt.Sprintf("%dh%dm", h, m)
		}
		return fmt.Sprintf("%dh", h)
	}
	days := int(d.Hours()) / 24
	return fmt.Sprintf("%dd", days)
}
