// Package config provides configuration loading for conductord.
//
// Configuration is loaded from an optional YAML file and overridden by
// environment variables. See LoadWithFile for precedence and the
// environment variable mapping.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete conductord configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Oracle   OracleConfig   `koanf:"oracle"`
	Workflow WorkflowConfig `koanf:"workflow"`
	Events   EventsConfig   `koanf:"events"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP/WebSocket server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// OracleConfig holds reasoning provider configuration.
type OracleConfig struct {
	// Provider selects the backing model API: "openai" (including
	// OpenAI-compatible endpoints via BaseURL) or "googleai".
	Provider string `koanf:"provider"`

	// Model is the model identifier passed to the provider.
	Model string `koanf:"model"`

	// APIKey authenticates against the provider.
	APIKey Secret `koanf:"api_key"`

	// BaseURL overrides the provider endpoint. Optional.
	BaseURL string `koanf:"base_url"`

	// Timeout bounds a single oracle request.
	Timeout Duration `koanf:"timeout"`

	// MaxRetries bounds transport-level retries per request.
	MaxRetries int `koanf:"max_retries"`

	// RequestsPerMinute rate-limits outbound oracle calls.
	RequestsPerMinute int `koanf:"requests_per_minute"`

	// Temperature controls sampling. Low values keep answers parseable.
	Temperature float64 `koanf:"temperature"`
}

// WorkflowConfig holds engine policy configuration.
type WorkflowConfig struct {
	// MaxRetries is the repair budget per step.
	MaxRetries int `koanf:"max_retries"`

	// ExecutorTimeout bounds a single wait for an executor outcome.
	// Zero disables the timeout (the executor is assumed cooperative).
	ExecutorTimeout Duration `koanf:"executor_timeout"`

	// Prechecks enables local validation predicates ahead of the
	// oracle-backed validator.
	Prechecks bool `koanf:"prechecks"`
}

// EventsConfig holds event sink configuration.
type EventsConfig struct {
	// NATSURL enables the NATS event sink when non-empty.
	NATSURL string `koanf:"nats_url"`

	// SubjectPrefix is the subject prefix for published run events.
	SubjectPrefix string `koanf:"subject_prefix"`
}

// LoggingConfig holds logger configuration.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Default returns a configuration with production-ready defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8084,
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Oracle: OracleConfig{
			Provider:          "openai",
			Model:             "gpt-4o-mini",
			Timeout:           Duration(120 * time.Second),
			MaxRetries:        3,
			RequestsPerMinute: 60,
			Temperature:       0.1,
		},
		Workflow: WorkflowConfig{
			MaxRetries: 2,
			Prechecks:  true,
		},
		Events: EventsConfig{
			SubjectPrefix: "conductor.runs",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}

	switch c.Oracle.Provider {
	case "openai", "googleai":
	default:
		return fmt.Errorf("unknown oracle provider: %q", c.Oracle.Provider)
	}
	if c.Oracle.Model == "" {
		return errors.New("oracle model is required")
	}
	if c.Oracle.Timeout <= 0 {
		return errors.New("oracle timeout must be positive")
	}
	if c.Oracle.MaxRetries < 0 {
		return errors.New("oracle max_retries cannot be negative")
	}
	if c.Oracle.RequestsPerMinute < 1 {
		return errors.New("oracle requests_per_minute must be at least 1")
	}

	if c.Workflow.MaxRetries < 0 {
		return errors.New("workflow max_retries cannot be negative")
	}
	if c.Workflow.ExecutorTimeout < 0 {
		return errors.New("workflow executor_timeout cannot be negative")
	}

	if c.Events.NATSURL != "" && c.Events.SubjectPrefix == "" {
		return errors.New("events subject_prefix required when NATS is enabled")
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("unknown log format: %q", c.Logging.Format)
	}

	return nil
}
