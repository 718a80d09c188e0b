// Package config loads process configuration from the environment and engine
// tuning from an optional JSON file.
package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Sensor backend selection values.
const (
	SensorSim    = "sim"
	SensorSerial = "serial"
)

// Config is the process-level configuration, mapped from WEAVESYNC_*
// environment variables.
type Config struct {
	// ServerURL is the base URL of the ingest server.
	ServerURL string `envconfig:"SERVER_URL" default:"http://127.0.0.1:5000"`

	// ListenAddr serves /metrics and /healthz.
	ListenAddr string `envconfig:"LISTEN_ADDR" default:":9090"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// SensorMode selects the velocity sensor backend: sim or serial.
	SensorMode string `envconfig:"SENSOR_MODE" default:"sim"`

	// SensorPort is the serial device for SensorMode=serial.
	SensorPort string `envconfig:"SENSOR_PORT" default:"/dev/ttyUSB0"`

	// TuningPath points at a JSON tuning file; empty means built-in defaults.
	TuningPath string `envconfig:"TUNING_PATH" default:""`

	// DeadLetterPath is the sqlite file for undeliverable picture batches.
	// Empty disables the spool.
	DeadLetterPath string `envconfig:"DEADLETTER_PATH" default:"weavesync-deadletter.db"`
}

// Load reads a .env file if present, then maps the environment into a Config.
func Load() (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("weavesync", &cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks fields that cannot be defaulted into a safe value.
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("server URL must not be empty")
	}
	switch c.SensorMode {
	case SensorSim, SensorSerial:
	default:
		return fmt.Errorf("unknown sensor mode %q (want %s or %s)", c.SensorMode, SensorSim, SensorSerial)
	}
	if c.SensorMode == SensorSerial && c.SensorPort == "" {
		return fmt.Errorf("sensor port required for serial sensor mode")
	}
	return nil
}
