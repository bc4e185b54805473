// Package config provides unified configuration loading for roadrunner.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nvandessel/roadrunner/internal/constants"
	"github.com/nvandessel/roadrunner/internal/engine"
	"gopkg.in/yaml.v3"
)

// RoadrunnerConfig contains all roadrunner configuration settings.
type RoadrunnerConfig struct {
	// Env contains the simulation parameters.
	Env EnvConfig `json:"env" yaml:"env"`

	// Runner contains settings for `roadrunner run`.
	Runner RunnerConfig `json:"runner" yaml:"runner"`

	// Store contains settings for the episode history database.
	Store StoreConfig `json:"store" yaml:"store"`

	// Logging contains settings for operational and trace logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// EnvConfig configures the simulation engine.
type EnvConfig struct {
	// Lanes is the number of lanes.
	Lanes int `json:"lanes" yaml:"lanes"`

	// BaseSpeed is the per-tick distance decrement of obstacles.
	BaseSpeed float64 `json:"base_speed" yaml:"base_speed"`

	// SpawnProbability is the chance of one obstacle appearing per tick.
	// Zero with SpawnCount unset means the default of 1/lanes; a negative
	// value disables spawning. A value above 1 is read as a count: its
	// integer part spawns that many obstacles per tick.
	SpawnProbability float64 `json:"spawn_probability,omitempty" yaml:"spawn_probability,omitempty"`

	// SpawnCount, when positive, spawns that many obstacles on distinct lanes
	// every tick. It takes precedence over SpawnProbability.
	SpawnCount int `json:"spawn_count,omitempty" yaml:"spawn_count,omitempty"`

	// MaxSteps is the episode step limit. Zero derives it from BaseSpeed.
	MaxSteps int `json:"max_steps,omitempty" yaml:"max_steps,omitempty"`

	// ObstacleLength is the collision threshold.
	ObstacleLength float64 `json:"obstacle_length" yaml:"obstacle_length"`
}

// RunnerConfig configures episode playback.
type RunnerConfig struct {
	// Episodes is the number of episodes to play.
	Episodes int `json:"episodes" yaml:"episodes"`

	// Policy names the action policy: "hold", "random" or "greedy".
	Policy string `json:"policy" yaml:"policy"`

	// Seed seeds the engine and policy. Zero picks a random seed.
	Seed uint64 `json:"seed,omitempty" yaml:"seed,omitempty"`
}

// StoreConfig configures the episode history store.
type StoreConfig struct {
	// Path is the directory holding roadrunner.db. Empty means ~/.roadrunner.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

// LoggingConfig configures roadrunner's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables per-tick trace logging to <store>/trace.jsonl.
	Level string `json:"level" yaml:"level"`
}

// Default returns a RoadrunnerConfig with sensible defaults.
func Default() *RoadrunnerConfig {
	return &RoadrunnerConfig{
		Env: EnvConfig{
			Lanes:          constants.DefaultLanes,
			BaseSpeed:      constants.DefaultBaseSpeed,
			ObstacleLength: constants.DefaultObstacleLength,
		},
		Runner: RunnerConfig{
			Episodes: constants.DefaultEpisodes,
			Policy:   constants.DefaultPolicy,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Dir returns the roadrunner home directory (~/.roadrunner).
func Dir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".roadrunner"), nil
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.roadrunner/config.yaml -> environment variables
func Load() (*RoadrunnerConfig, error) {
	config := Default()

	// Try to load from default config file
	if dir, err := Dir(); err == nil {
		configPath := filepath.Join(dir, "config.yaml")
		if _, statErr := os.Stat(configPath); statErr == nil {
			fileConfig, loadErr := LoadFromFile(configPath)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			config = fileConfig
		}
	}

	// Apply environment variable overrides
	applyEnvOverrides(config)

	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file.
func LoadFromFile(path string) (*RoadrunnerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	config.Store.Path = expandEnvVars(config.Store.Path)

	return config, nil
}

// Validate checks that the configuration is valid.
// Engine parameters are checked by building the engine configuration.
func (c *RoadrunnerConfig) Validate() error {
	if _, err := c.EngineConfig(); err != nil {
		return err
	}

	if c.Runner.Episodes < 1 {
		return fmt.Errorf("episodes must be at least 1, got %d", c.Runner.Episodes)
	}

	validPolicies := map[string]bool{"hold": true, "random": true, "greedy": true}
	if !validPolicies[c.Runner.Policy] {
		return fmt.Errorf("invalid policy: %s (valid: hold, random, greedy)", c.Runner.Policy)
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level)
	}

	return nil
}

// EngineConfig converts the env section into a validated engine.Config.
func (c *RoadrunnerConfig) EngineConfig() (engine.Config, error) {
	cfg := engine.Config{
		Lanes:          c.Env.Lanes,
		BaseSpeed:      c.Env.BaseSpeed,
		MaxSteps:       c.Env.MaxSteps,
		ObstacleLength: c.Env.ObstacleLength,
	}

	switch {
	case c.Env.SpawnCount > 0:
		cfg.Spawn = engine.SpawnCount(c.Env.SpawnCount)
	case c.Env.SpawnProbability < 0:
		cfg.Spawn = engine.SpawnProbability(0)
	case c.Env.SpawnProbability > 1:
		cfg.Spawn = engine.SpawnCount(int(c.Env.SpawnProbability))
	case c.Env.SpawnProbability > 0:
		cfg.Spawn = engine.SpawnProbability(c.Env.SpawnProbability)
	}

	if err := cfg.Validate(); err != nil {
		return engine.Config{}, fmt.Errorf("env: %w", err)
	}
	return cfg, nil
}

// StoreDir returns the configured store directory, defaulting to ~/.roadrunner.
func (c *RoadrunnerConfig) StoreDir() (string, error) {
	if c.Store.Path != "" {
		return c.Store.Path, nil
	}
	return Dir()
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *RoadrunnerConfig) {
	if v := os.Getenv("ROADRUNNER_LANES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Env.Lanes = n
		}
	}

	if v := os.Getenv("ROADRUNNER_BASE_SPEED"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Env.BaseSpeed = f
		}
	}

	if v := os.Getenv("ROADRUNNER_SPAWN_PROBABILITY"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Env.SpawnProbability = f
		}
	}

	if v := os.Getenv("ROADRUNNER_SPAWN_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Env.SpawnCount = n
		}
	}

	if v := os.Getenv("ROADRUNNER_MAX_STEPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Env.MaxSteps = n
		}
	}

	if v := os.Getenv("ROADRUNNER_POLICY"); v != "" {
		config.Runner.Policy = v
	}

	if v := os.Getenv("ROADRUNNER_SEED"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			config.Runner.Seed = n
		}
	}

	if v := os.Getenv("ROADRUNNER_STORE_PATH"); v != "" {
		config.Store.Path = v
	}

	if v := os.Getenv("ROADRUNNER_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
