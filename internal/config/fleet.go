package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/ShayCichocki/hive/pkg/models"
)

// fleetFile is the on-disk shape of the agent-fleet definition.
type fleetFile struct {
	Agents []models.AgentConfig `mapstructure:"agents"`
}

// LoadFleet parses the agent-fleet YAML file and validates it: every agent
// needs a unique ID and a command to spawn. Durations accept the usual Go
// forms ("2s", "1m30s").
func LoadFleet(path string) ([]models.AgentConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read fleet file %s: %w", path, err)
	}

	var file fleetFile
	if err := v.Unmarshal(&file); err != nil {
		return nil, fmt.Errorf("parse fleet file %s: %w", path, err)
	}
	if len(file.Agents) == 0 {
		return nil, fmt.Errorf("fleet file %s defines no agents", path)
	}

	seen := make(map[string]bool, len(file.Agents))
	for i, agent := range file.Agents {
		if agent.ID == "" {
			return nil, fmt.Errorf("fleet file %s: agent %d has no id", path, i)
		}
		if seen[agent.ID] {
			return nil, fmt.Errorf("fleet file %s: duplicate agent id %q", path, agent.ID)
		}
		seen[agent.ID] = true
		if agent.Command == "" {
			return nil, fmt.Errorf("fleet file %s: agent %q has no command", path, agent.ID)
		}
	}

	return file.Agents, nil
}
