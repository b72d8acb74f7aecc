// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads and validates planstore service configuration.
//
// Configuration layers, later layers winning: compiled defaults, then the
// yaml config file, then environment variables. The Watcher re-reads the
// file on change so a running service can pick up the reload-safe subset
// (currently the log level) without a restart.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
)

// ErrInvalid marks configuration validation failures.
var ErrInvalid = errors.New("invalid configuration")

// Config is the root planstore configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Auth      AuthConfig      `yaml:"auth"`
	Index     IndexConfig     `yaml:"index"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	// Port is the HTTP server port.
	Port int `yaml:"port"`

	// GinMode sets the gin framework mode: "debug", "release" or "test".
	GinMode string `yaml:"gin_mode"`

	// ShutdownTimeoutSeconds bounds how long graceful shutdown waits for
	// in-flight requests before the listener is torn down.
	ShutdownTimeoutSeconds int `yaml:"shutdown_timeout_seconds"`
}

// StorageConfig selects and configures the key-value backend.
type StorageConfig struct {
	// Backend is "badger" for the persistent store or "memory" for the
	// in-process store used in tests and demos.
	Backend string `yaml:"backend"`

	// Dir is the badger data directory. Required for the badger backend.
	Dir string `yaml:"dir"`
}

// AuthConfig selects the token validation strategy.
type AuthConfig struct {
	// Mode is "none", "static" or "introspection".
	Mode string `yaml:"mode"`

	// StaticToken is the shared secret for static mode. Prefer the
	// PLANSTORE_STATIC_TOKEN environment variable over the file.
	StaticToken string `yaml:"static_token"`

	// IntrospectionURL is the OAuth2 token introspection endpoint for
	// introspection mode.
	IntrospectionURL string `yaml:"introspection_url"`

	// ClientID and ClientSecret authenticate this service to the
	// introspection endpoint.
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// IndexConfig controls the search index pipeline.
type IndexConfig struct {
	// WeaviateURL is the search backend. Empty disables indexing; the
	// store then runs with a no-op notifier.
	WeaviateURL string `yaml:"weaviate_url"`

	// QueueSize bounds the asynchronous index event queue. Events beyond
	// a full queue are dropped, not blocked on.
	QueueSize int `yaml:"queue_size"`
}

// TelemetryConfig controls tracing and metrics exporters. Empty fields
// fall back to the OTEL_* environment variables and their defaults.
type TelemetryConfig struct {
	// TraceExporter is "none", "otlp" or "stdout".
	TraceExporter string `yaml:"trace_exporter"`

	// MetricExporter is "none", "prometheus" or "stdout".
	MetricExporter string `yaml:"metric_exporter"`

	// OTLPEndpoint is the collector address for the otlp exporter.
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	// Level is "debug", "info", "warn" or "error". Reload-safe.
	Level string `yaml:"level"`

	// Dir enables file logging when set.
	Dir string `yaml:"dir"`

	// JSON forces JSON on stderr instead of auto-detecting a terminal.
	JSON bool `yaml:"json"`

	// Quiet silences stderr, leaving only file logging. For daemon
	// deployments where stderr is discarded anyway.
	Quiet bool `yaml:"quiet"`
}

// RateLimitConfig controls the per-client API rate limiter.
type RateLimitConfig struct {
	// Enabled turns the limiter on. Disabled by default for local use.
	Enabled bool `yaml:"enabled"`

	// RequestsPerSecond is the sustained per-client rate.
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	// Burst is the per-client burst allowance.
	Burst int `yaml:"burst"`
}

// Default returns the compiled-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:                   8080,
			GinMode:                "release",
			ShutdownTimeoutSeconds: 10,
		},
		Storage: StorageConfig{
			Backend: "badger",
			Dir:     "./data/planstore",
		},
		Auth: AuthConfig{
			Mode: "none",
		},
		Index: IndexConfig{
			QueueSize: 256,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerSecond: 50,
			Burst:             100,
		},
	}
}

// applyEnv overlays environment variables onto the configuration. The
// Weaviate variable keeps the name the deployment scripts already export.
func applyEnv(cfg *Config) {
	if v := os.Getenv("PLANSTORE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("PLANSTORE_GIN_MODE"); v != "" {
		cfg.Server.GinMode = v
	}
	if v := os.Getenv("PLANSTORE_STORAGE"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv("PLANSTORE_DATA_DIR"); v != "" {
		cfg.Storage.Dir = v
	}
	if v := os.Getenv("PLANSTORE_AUTH_MODE"); v != "" {
		cfg.Auth.Mode = v
	}
	if v := os.Getenv("PLANSTORE_STATIC_TOKEN"); v != "" {
		cfg.Auth.StaticToken = v
	}
	if v := os.Getenv("WEAVIATE_SERVICE_URL"); v != "" {
		cfg.Index.WeaviateURL = v
	}
	if v := os.Getenv("PLANSTORE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PLANSTORE_LOG_DIR"); v != "" {
		cfg.Logging.Dir = v
	}
}

// Validate rejects configurations the server cannot run with. All
// failures wrap ErrInvalid.
func (c Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port %d out of range", ErrInvalid, c.Server.Port)
	}
	switch c.Server.GinMode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("%w: server.gin_mode %q", ErrInvalid, c.Server.GinMode)
	}
	if c.Server.ShutdownTimeoutSeconds < 1 {
		return fmt.Errorf("%w: server.shutdown_timeout_seconds must be positive", ErrInvalid)
	}

	switch c.Storage.Backend {
	case "badger":
		if c.Storage.Dir == "" {
			return fmt.Errorf("%w: storage.dir required for the badger backend", ErrInvalid)
		}
	case "memory":
	default:
		return fmt.Errorf("%w: storage.backend %q", ErrInvalid, c.Storage.Backend)
	}

	switch c.Auth.Mode {
	case "none":
	case "static":
		if c.Auth.StaticToken == "" {
			return fmt.Errorf("%w: auth.static_token required for static mode", ErrInvalid)
		}
	case "introspection":
		if c.Auth.IntrospectionURL == "" {
			return fmt.Errorf("%w: auth.introspection_url required for introspection mode", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: auth.mode %q", ErrInvalid, c.Auth.Mode)
	}

	if c.Index.QueueSize < 1 {
		return fmt.Errorf("%w: index.queue_size must be positive", ErrInvalid)
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.RequestsPerSecond <= 0 {
			return fmt.Errorf("%w: rate_limit.requests_per_second must be positive", ErrInvalid)
		}
		if c.RateLimit.Burst < 1 {
			return fmt.Errorf("%w: rate_limit.burst must be positive", ErrInvalid)
		}
	}
	return nil
}
