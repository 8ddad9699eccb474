// Package config handles configuration loading and management for hive.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for hive.
type Config struct {
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Supervisor   SupervisorConfig   `mapstructure:"supervisor"`
	Checkpoints  CheckpointsConfig  `mapstructure:"checkpoints"`
	Fleet        FleetConfig        `mapstructure:"fleet"`
}

// OrchestratorConfig holds dispatch and concurrency settings.
type OrchestratorConfig struct {
	// MaxConcurrent is the global concurrency cap for admission queues.
	MaxConcurrent int `mapstructure:"max_concurrent"`
	// SerialValidation forces the one-at-a-time validation policy.
	SerialValidation bool `mapstructure:"serial_validation"`
	// DebugLog enables the file-backed dispatch trace log.
	DebugLog bool `mapstructure:"debug_log"`
}

// SupervisorConfig holds process-supervision settings.
type SupervisorConfig struct {
	// StopTimeout bounds the graceful-stop wait before force kill.
	StopTimeout time.Duration `mapstructure:"stop_timeout"`
	// HealthCheckTimeout bounds one health probe.
	HealthCheckTimeout time.Duration `mapstructure:"health_check_timeout"`
	// WorkDir is the working directory for spawned workers.
	WorkDir string `mapstructure:"work_dir"`
}

// CheckpointsConfig holds checkpoint retention settings.
type CheckpointsConfig struct {
	// Retention is how long checkpoints are kept before purging.
	Retention time.Duration `mapstructure:"retention"`
}

// FleetConfig points at the agent-fleet definition file.
type FleetConfig struct {
	// Path is the fleet YAML file; relative paths resolve against the
	// project root.
	Path string `mapstructure:"path"`
}

// Load loads configuration from XDG paths, project overrides, and environment
// variables. Precedence (highest to lowest):
// 1. Environment variables (HIVE_*)
// 2. Project config (.hive.yaml in current directory or parent)
// 3. User config (~/.config/hive/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.SetEnvPrefix("HIVE")
	v.AutomaticEnv()
	v.BindEnv("fleet.path", "HIVE_FLEET_PATH")
	v.BindEnv("orchestrator.max_concurrent", "HIVE_MAX_CONCURRENT")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return cfg, nil
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("orchestrator.max_concurrent", 4)
	v.SetDefault("orchestrator.serial_validation", false)
	v.SetDefault("orchestrator.debug_log", false)

	v.SetDefault("supervisor.stop_timeout", "5s")
	v.SetDefault("supervisor.health_check_timeout", "2s")
	v.SetDefault("supervisor.work_dir", "")

	v.SetDefault("checkpoints.retention", "720h")

	v.SetDefault("fleet.path", "agents.yaml")
}

// getUserConfigDir returns the XDG config directory for hive.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "hive")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "hive")
	}
	return filepath.Join(home, ".config", "hive")
}

// findProjectConfig searches for .hive.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".hive.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Orchestrator: OrchestratorConfig{
			MaxConcurrent: 4,
		},
		Supervisor: SupervisorConfig{
			StopTimeout:        5 * time.Second,
			HealthCheckTimeout: 2 * time.Second,
		},
		Checkpoints: CheckpointsConfig{
			Retention: 720 * time.Hour,
		},
		Fleet: FleetConfig{
			Path: "agents.yaml",
		},
	}
}
