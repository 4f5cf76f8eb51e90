package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models flowboard.yml.
type Config struct {
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Scheduler struct {
		SweepInterval string `yaml:"sweep_interval"`
	} `yaml:"scheduler"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if c.Server.BasePath == "" {
		return fmt.Errorf("config.server.base_path is required")
	}
	if c.Scheduler.SweepInterval != "" {
		d, err := time.ParseDuration(c.Scheduler.SweepInterval)
		if err != nil {
			return fmt.Errorf("config.scheduler.sweep_interval: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("config.scheduler.sweep_interval must be positive")
		}
	}
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config.log.level %q not one of debug, info, warn, error", c.Log.Level)
	}
	return nil
}

// SweepInterval returns the configured due-date sweep interval. The sweep
// defaults to hourly.
func (c *Config) SweepInterval() time.Duration {
	if c.Scheduler.SweepInterval == "" {
		return time.Hour
	}
	d, err := time.ParseDuration(c.Scheduler.SweepInterval)
	if err != nil || d <= 0 {
		return time.Hour
	}
	return d
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "flowboard.yml")
}

// Load reads and validates config from the workspace, falling back to
// defaults when no file exists.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	cfg.Server.Addr = "127.0.0.1:8080"
	cfg.Server.BasePath = "/v0"
	cfg.Scheduler.SweepInterval = "1h"
	cfg.Log.Level = "info"
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /v0

scheduler:
  sweep_interval: 1h

log:
  level: info
`
