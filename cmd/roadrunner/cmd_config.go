package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/nvandessel/roadrunner/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage roadrunner configuration",
		Long: `View and modify roadrunner configuration settings.

Configuration is stored in ~/.roadrunner/config.yaml. ROADRUNNER_*
environment variables override the file.

Examples:
  roadrunner config list                  # Show all settings
  roadrunner config get env.lanes         # Get a specific setting
  roadrunner config set env.lanes 5       # Set a setting`,
	}

	cmd.AddCommand(
		newConfigListCmd(),
		newConfigGetCmd(),
		newConfigSetCmd(),
	)

	return cmd
}

func newConfigListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all configuration settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(cfg)
			}

			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Configuration (~/.roadrunner/config.yaml):")
			fmt.Fprintln(cmd.OutOrStdout())
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			key := args[0]

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			value, found := getConfigValue(cfg, key)
			if !found {
				if jsonOut {
					json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
						"error": "key not found",
						"key":   key,
					})
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Unknown configuration key: %s\n", key)
				}
				return nil
			}

			if jsonOut {
				json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"key":   key,
					"value": value,
				})
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s = %v\n", key, value)
			}

			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			key := args[0]
			value := args[1]

			dir, err := config.Dir()
			if err != nil {
				return err
			}
			configPath := filepath.Join(dir, "config.yaml")

			// Edit the file contents only, so environment overrides are not persisted.
			cfg := config.Default()
			if _, statErr := os.Stat(configPath); statErr == nil {
				cfg, err = config.LoadFromFile(configPath)
				if err != nil {
					return fmt.Errorf("failed to load config: %w", err)
				}
			}

			err = setConfigValue(cfg, key, value)
			if err == nil {
				err = cfg.Validate()
			}
			if err != nil {
				if jsonOut {
					json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
						"error": err.Error(),
						"key":   key,
					})
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Error: %v\n", err)
				}
				return nil
			}

			if err := saveConfig(configPath, cfg); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			if jsonOut {
				json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"status": "updated",
					"key":    key,
					"value":  value,
				})
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", key, value)
			}

			return nil
		},
	}
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.RoadrunnerConfig, key string) (interface{}, bool) {
	switch key {
	case "env.lanes":
		return cfg.Env.Lanes, true
	case "env.base_speed":
		return cfg.Env.BaseSpeed, true
	case "env.spawn_probability":
		return cfg.Env.SpawnProbability, true
	case "env.spawn_count":
		return cfg.Env.SpawnCount, true
	case "env.max_steps":
		return cfg.Env.MaxSteps, true
	case "env.obstacle_length":
		return cfg.Env.ObstacleLength, true
	case "runner.episodes":
		return cfg.Runner.Episodes, true
	case "runner.policy":
		return cfg.Runner.Policy, true
	case "runner.seed":
		return cfg.Runner.Seed, true
	case "store.path":
		return cfg.Store.Path, true
	case "logging.level":
		return cfg.Logging.Level, true
	default:
		return nil, false
	}
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.RoadrunnerConfig, key, value string) error {
	var err error
	switch key {
	case "env.lanes":
		cfg.Env.Lanes, err = strconv.Atoi(value)
	case "env.base_speed":
		cfg.Env.BaseSpeed, err = strconv.ParseFloat(value, 64)
	case "env.spawn_probability":
		cfg.Env.SpawnProbability, err = strconv.ParseFloat(value, 64)
	case "env.spawn_count":
		cfg.Env.SpawnCount, err = strconv.Atoi(value)
	case "env.max_steps":
		cfg.Env.MaxSteps, err = strconv.Atoi(value)
	case "env.obstacle_length":
		cfg.Env.ObstacleLength, err = strconv.ParseFloat(value, 64)
	case "runner.episodes":
		cfg.Runner.Episodes, err = strconv.Atoi(value)
	case "runner.policy":
		cfg.Runner.Policy = value
	case "runner.seed":
		cfg.Runner.Seed, err = strconv.ParseUint(value, 10, 64)
	case "store.path":
		cfg.Store.Path = value
	case "logging.level":
		cfg.Logging.Level = value
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	if err != nil {
		return fmt.Errorf("invalid value for %s: %s", key, value)
	}
	return nil
}

// saveConfig writes the configuration to path, creating its directory.
func saveConfig(path string, cfg *config.RoadrunnerConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
