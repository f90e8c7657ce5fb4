package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/neynn/army-attack-client-sub000/internal/action"
	"github.com/neynn/army-attack-client-sub000/internal/actions"
	"gopkg.in/yaml.v3"
)

// Config is the root of the YAML configuration file
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Logger   LoggerConfig   `yaml:"logger"`
	Queue    QueueConfig    `yaml:"queue"`
	Actions  ActionsConfig  `yaml:"actions"`
	Scenario ScenarioConfig `yaml:"scenario"`
}

type ServerConfig struct {
	Port           string `yaml:"port"`
	TickRate       int    `yaml:"tick_rate"` // ticks per second
	InputQueueSize int    `yaml:"input_queue_size"`
	URL            string `yaml:"url"` // relay endpoint dialed by clients
}

type DatabaseConfig struct {
	// URL is a sqlite file path or a postgres:// connection string
	URL string `yaml:"url"`
}

type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
	File   string `yaml:"file"`
}

type QueueConfig struct {
	Variant           string `yaml:"variant"`
	LaneCapacity      int    `yaml:"lane_capacity"`
	ExecutionCapacity int    `yaml:"execution_capacity"`
	ImmediateCapacity int    `yaml:"immediate_capacity"`
	MaxInstantActions int    `yaml:"max_instant_actions"`
}

type ActionsConfig struct {
	HitDuration  int `yaml:"hit_duration"`
	MoveDuration int `yaml:"move_duration"`
}

type ScenarioConfig struct {
	File string `yaml:"file"`
}

// Default returns the configuration used when no file is given
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:           "3000",
			TickRate:       20,
			InputQueueSize: 1000,
			URL:            "ws://localhost:3000/ws",
		},
		Database: DatabaseConfig{URL: "matches.db"},
		Logger:   LoggerConfig{Level: "info", Format: "json"},
		Queue: QueueConfig{
			Variant:           "server",
			LaneCapacity:      action.DefaultLaneCapacity,
			ExecutionCapacity: action.DefaultExecutionCapacity,
			ImmediateCapacity: action.DefaultImmediateCapacity,
			MaxInstantActions: action.DefaultMaxInstantActions,
		},
		Actions:  ActionsConfig{HitDuration: 10, MoveDuration: 5},
		Scenario: ScenarioConfig{File: "scenarios/example.yaml"},
	}
}

// Load reads path over the defaults, then applies environment overrides.
// An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse YAML: %w", err)
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

// ApplyEnv overrides fields from the environment
func (c *Config) ApplyEnv() error {
	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Server.URL = getEnv("SERVER_URL", c.Server.URL)
	c.Database.URL = getEnv("DATABASE_URL", c.Database.URL)
	c.Logger.Level = getEnv("LOG_LEVEL", c.Logger.Level)
	c.Logger.Format = getEnv("LOG_FORMAT", c.Logger.Format)
	c.Scenario.File = getEnv("SCENARIO_FILE", c.Scenario.File)
	c.Queue.Variant = getEnv("QUEUE_VARIANT", c.Queue.Variant)

	var err error
	if c.Server.TickRate, err = getEnvInt("TICK_RATE", c.Server.TickRate); err != nil {
		return err
	}
	return nil
}

// Validate reports every invalid field at once
func (c Config) Validate() error {
	var errs []error
	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port must be set"))
	}
	if c.Server.TickRate <= 0 {
		errs = append(errs, fmt.Errorf("server.tick_rate must be positive, got %d", c.Server.TickRate))
	}
	if c.Server.InputQueueSize <= 0 {
		errs = append(errs, fmt.Errorf("server.input_queue_size must be positive, got %d", c.Server.InputQueueSize))
	}
	switch strings.ToLower(c.Logger.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logger.level must be one of debug, info, warn, error, got %q", c.Logger.Level))
	}
	switch c.Logger.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("logger.format must be json or console, got %q", c.Logger.Format))
	}
	if _, err := action.ParseVariant(c.Queue.Variant); err != nil {
		errs = append(errs, fmt.Errorf("queue.variant: %w", err))
	}
	for _, f := range []struct {
		name  string
		value int
	}{
		{"queue.lane_capacity", c.Queue.LaneCapacity},
		{"queue.execution_capacity", c.Queue.ExecutionCapacity},
		{"queue.immediate_capacity", c.Queue.ImmediateCapacity},
		{"actions.hit_duration", c.Actions.HitDuration},
		{"actions.move_duration", c.Actions.MoveDuration},
	} {
		if f.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", f.name, f.value))
		}
	}
	return errors.Join(errs...)
}

// ActionQueue converts the queue section for action.NewQueue
func (c Config) ActionQueue() action.Config {
	variant, _ := action.ParseVariant(c.Queue.Variant)
	return action.Config{
		LaneCapacity:      c.Queue.LaneCapacity,
		ExecutionCapacity: c.Queue.ExecutionCapacity,
		ImmediateCapacity: c.Queue.ImmediateCapacity,
		MaxInstantActions: c.Queue.MaxInstantActions,
		Variant:           variant,
	}
}

// ActionTimings converts the actions section for actions.Register
func (c Config) ActionTimings() actions.Config {
	return actions.Config{
		HitDuration:  c.Actions.HitDuration,
		MoveDuration: c.Actions.MoveDuration,
	}
}
