package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ShayCichocki/hive/internal/config"
	"github.com/ShayCichocki/hive/internal/state"
	"github.com/ShayCichocki/hive/pkg/models"
)

var (
	agentsFleetPath string
	agentsYAML      bool
	agentsHistory   string
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "Show the configured agent fleet",
	Long: `List the agent classes defined in the fleet file, or with --history,
the recorded lifecycle events for one agent.`,
	RunE: runAgents,
}

func init() {
	agentsCmd.Flags().StringVar(&agentsFleetPath, "fleet", "", "Path to the fleet file (default: from config)")
	agentsCmd.Flags().BoolVar(&agentsYAML, "yaml", false, "Print the fleet as YAML")
	agentsCmd.Flags().StringVar(&agentsHistory, "history", "", "Show lifecycle history for one agent ID")
}

func runAgents(cmd *cobra.Command, args []string) error {
	if agentsHistory != "" {
		return showAgentHistory(agentsHistory)
	}

	path := agentsFleetPath
	if path == "" {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		path = cfg.Fleet.Path
	}
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("get working directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	fleet, err := config.LoadFleet(path)
	if err != nil {
		return err
	}

	if agentsYAML {
		out, err := yaml.Marshal(map[string]any{"agents": fleet})
		if err != nil {
			return fmt.Errorf("marshal fleet: %w", err)
		}
		fmt.Print(string(out))
		return nil
	}

	bold := color.New(color.Bold)
	bold.Printf("Agent fleet (%s):\n", path)
	for _, agent := range fleet {
		fmt.Printf("  %s", agent.ID)
		if agent.Name != "" && agent.Name != agent.ID {
			fmt.Printf(" (%s)", agent.Name)
		}
		fmt.Printf(": %s", agent.Command)
		if agent.Port > 0 {
			fmt.Printf(" [port %d]", agent.Port)
		}
		fmt.Println()
		if agent.Role != "" {
			fmt.Printf("    role: %s\n", agent.Role)
		}
	}
	return nil
}

func showAgentHistory(agentID string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	db, err := state.OpenProject(cwd)
	if err != nil {
		return fmt.Errorf("open state database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	events, err := db.ListProcessEvents(agentID)
	if err != nil {
		return fmt.Errorf("list events for %s: %w", agentID, err)
	}
	if len(events) == 0 {
		fmt.Printf("No recorded events for agent %s.\n", agentID)
		return nil
	}

	red := color.New(color.FgRed)
	for _, ev := range events {
		line := fmt.Sprintf("  %s  %-20s %s",
			ev.Timestamp.Local().Format(time.DateTime), ev.Event, ev.Detail)
		if ev.Event == models.ProcessEventHealthCheckFailed {
			red.Println(line)
		} else {
			fmt.Println(line)
		}
	}
	return nil
}
