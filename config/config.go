// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the in-flight tracker daemon.
type Config struct {
	Tracker     TrackerConfig     `yaml:"tracker"`
	Log         LogConfig         `yaml:"log"`
	Storage     StorageConfig     `yaml:"storage"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	FlowControl FlowControlConfig `yaml:"flow_control"`
	Webhook     WebhookConfig     `yaml:"webhook"`
	Health      HealthConfig      `yaml:"health"`
}

// TrackerConfig holds the delivery policy and diagnostics settings.
type TrackerConfig struct {
	NodeID string `yaml:"node_id"`

	// Deliveries allowed on one channel before a message is dead lettered.
	MaxRedeliveryAttempts int `yaml:"max_redelivery_attempts"`

	// Diagnostics dump target, written on SIGUSR1. A ".zst" suffix
	// compresses the dump.
	DumpPath string `yaml:"dump_path"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// StorageConfig selects the purge store backend.
type StorageConfig struct {
	Type       string        `yaml:"type"` // memory, badger
	BadgerDir  string        `yaml:"badger_dir"`
	GCInterval time.Duration `yaml:"gc_interval"`
}

// MetricsConfig holds OpenTelemetry configuration.
type MetricsConfig struct {
	Enabled         bool    `yaml:"enabled"`
	Endpoint        string  `yaml:"endpoint"` // OTLP gRPC endpoint
	ServiceName     string  `yaml:"service_name"`
	ServiceVersion  string  `yaml:"service_version"`
	TracesEnabled   bool    `yaml:"traces_enabled"`
	MetricsEnabled  bool    `yaml:"metrics_enabled"`
	TraceSampleRate float64 `yaml:"trace_sample_rate"` // 0.0 to 1.0
}

// FlowControlConfig limits sends per consumer channel.
type FlowControlConfig struct {
	MaxUnackedPerChannel int64   `yaml:"max_unacked_per_channel"` // 0 disables the cap
	SendRate             float64 `yaml:"send_rate"`               // messages per second, 0 disables rate limiting
	SendBurst            int     `yaml:"send_burst"`
}

// HealthConfig holds the health and admin HTTP server configuration.
type HealthConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// WebhookConfig holds webhook notification configuration.
type WebhookConfig struct {
	Enabled         bool              `yaml:"enabled"`
	QueueSize       int               `yaml:"queue_size"`
	DropPolicy      string            `yaml:"drop_policy"`      // "oldest" or "newest"
	Workers         int               `yaml:"workers"`          // Number of worker goroutines
	ShutdownTimeout time.Duration     `yaml:"shutdown_timeout"` // Graceful shutdown timeout
	Defaults        WebhookDefaults   `yaml:"defaults"`
	Endpoints       []WebhookEndpoint `yaml:"endpoints"`
}

// WebhookDefaults holds default settings for webhook endpoints.
type WebhookDefaults struct {
	Timeout        time.Duration        `yaml:"timeout"`
	Retry          RetryConfig          `yaml:"retry"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// RetryConfig holds retry configuration for webhook delivery.
type RetryConfig struct {
	MaxAttempts     int           `yaml:"max_attempts"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
	Multiplier      float64       `yaml:"multiplier"`
}

// CircuitBreakerConfig holds circuit breaker configuration.
type CircuitBreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	ResetTimeout     time.Duration `yaml:"reset_timeout"`
}

// WebhookEndpoint defines a single webhook endpoint configuration.
type WebhookEndpoint struct {
	Name         string            `yaml:"name"`
	Type         string            `yaml:"type"` // "http"
	URL          string            `yaml:"url"`
	Events       []string          `yaml:"events"`       // Event type filter (empty = all)
	Destinations []string          `yaml:"destinations"` // Destination glob filter (empty = all)
	Headers      map[string]string `yaml:"headers"`
	Timeout      time.Duration     `yaml:"timeout,omitempty"` // Override default
	Retry        *RetryConfig      `yaml:"retry,omitempty"`   // Override default
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Tracker: TrackerConfig{
			NodeID:                "inflight-1",
			MaxRedeliveryAttempts: 10,
			DumpPath:              "/tmp/inflight/message-status.csv",
			ShutdownTimeout:       30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Storage: StorageConfig{
			Type:       "badger",
			BadgerDir:  "/tmp/inflight/purges",
			GCInterval: 5 * time.Minute,
		},
		Metrics: MetricsConfig{
			Enabled:         false,
			Endpoint:        "localhost:4317",
			ServiceName:     "inflight",
			ServiceVersion:  "1.0.0",
			MetricsEnabled:  true,
			TracesEnabled:   false,
			TraceSampleRate: 0.1,
		},
		FlowControl: FlowControlConfig{
			MaxUnackedPerChannel: 1000,
			SendRate:             0,
			SendBurst:            100,
		},
		Webhook: WebhookConfig{
			Enabled:         false,
			QueueSize:       10000,
			DropPolicy:      "oldest",
			Workers:         5,
			ShutdownTimeout: 30 * time.Second,
			Defaults: WebhookDefaults{
				Timeout: 5 * time.Second,
				Retry: RetryConfig{
					MaxAttempts:     3,
					InitialInterval: 1 * time.Second,
					MaxInterval:     30 * time.Second,
					Multiplier:      2.0,
				},
				CircuitBreaker: CircuitBreakerConfig{
					FailureThreshold: 5,
					ResetTimeout:     60 * time.Second,
				},
			},
			Endpoints: []WebhookEndpoint{},
		},
		Health: HealthConfig{
			Enabled:         true,
			Addr:            ":8081",
			ShutdownTimeout: 10 * time.Second,
		},
	}
}

// Load loads configuration from a YAML file.
// If the file doesn't exist, returns default configuration.
func Load(filename string) (*Config, error) {
	if filename == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Tracker.MaxRedeliveryAttempts < 1 {
		return fmt.Errorf("tracker.max_redelivery_attempts must be at least 1")
	}
	if c.Tracker.NodeID == "" {
		return fmt.Errorf("tracker.node_id cannot be empty")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("log.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("log.format must be one of: text, json")
	}

	validStorage := map[string]bool{"memory": true, "badger": true}
	if !validStorage[c.Storage.Type] {
		return fmt.Errorf("storage.type must be one of: memory, badger")
	}
	if c.Storage.Type == "badger" && c.Storage.BadgerDir == "" {
		return fmt.Errorf("storage.badger_dir required when type is badger")
	}

	if c.Metrics.Enabled {
		if c.Metrics.ServiceName == "" {
			return fmt.Errorf("metrics.service_name cannot be empty when metrics enabled")
		}
		if c.Metrics.Endpoint == "" {
			return fmt.Errorf("metrics.endpoint cannot be empty when metrics enabled")
		}
		if c.Metrics.TraceSampleRate < 0.0 || c.Metrics.TraceSampleRate > 1.0 {
			return fmt.Errorf("metrics.trace_sample_rate must be between 0.0 and 1.0")
		}
	}

	if c.FlowControl.MaxUnackedPerChannel < 0 {
		return fmt.Errorf("flow_control.max_unacked_per_channel cannot be negative")
	}
	if c.FlowControl.SendRate < 0 {
		return fmt.Errorf("flow_control.send_rate cannot be negative")
	}
	if c.FlowControl.SendRate > 0 && c.FlowControl.SendBurst < 1 {
		return fmt.Errorf("flow_control.send_burst must be at least 1 when send_rate is set")
	}

	if c.Health.Enabled && c.Health.Addr == "" {
		return fmt.Errorf("health.addr required when health server is enabled")
	}

	// Webhook validation (only if enabled)
	if c.Webhook.Enabled {
		if c.Webhook.QueueSize < 100 {
			return fmt.Errorf("webhook.queue_size must be at least 100")
		}
		if c.Webhook.DropPolicy != "oldest" && c.Webhook.DropPolicy != "newest" {
			return fmt.Errorf("webhook.drop_policy must be 'oldest' or 'newest'")
		}
		if c.Webhook.Workers < 1 {
			return fmt.Errorf("webhook.workers must be at least 1")
		}
		if c.Webhook.ShutdownTimeout < time.Second {
			return fmt.Errorf("webhook.shutdown_timeout must be at least 1 second")
		}
		if c.Webhook.Defaults.Timeout < time.Second {
			return fmt.Errorf("webhook.defaults.timeout must be at least 1 second")
		}
		if c.Webhook.Defaults.Retry.MaxAttempts < 1 {
			return fmt.Errorf("webhook.defaults.retry.max_attempts must be at least 1")
		}
		if c.Webhook.Defaults.Retry.Multiplier < 1.0 {
			return fmt.Errorf("webhook.defaults.retry.multiplier must be at least 1.0")
		}
		if c.Webhook.Defaults.CircuitBreaker.FailureThreshold < 1 {
			return fmt.Errorf("webhook.defaults.circuit_breaker.failure_threshold must be at least 1")
		}

		for i, endpoint := range c.Webhook.Endpoints {
			if endpoint.Name == "" {
				return fmt.Errorf("webhook.endpoints[%d].name cannot be empty", i)
			}
			if endpoint.Type != "http" {
				return fmt.Errorf("webhook.endpoints[%d].type must be 'http'", i)
			}
			if endpoint.URL == "" {
				return fmt.Errorf("webhook.endpoints[%d].url cannot be empty", i)
			}
		}
	}

	return nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
