// Package config loads worldflow settings.
//
// Sources, lowest priority first:
//  1. Default values in code
//  2. An optional YAML file (--config, or WORLDFLOW_CONFIG)
//  3. Environment variables
//
// The result is validated before it is returned.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Load builds the configuration. An empty path falls back to
// WORLDFLOW_CONFIG; when both are empty no file is read. A path that was
// asked for but does not exist is an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("WORLDFLOW_CONFIG")
	}

	cfg := Default()
	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// applyEnv overlays environment variables; unset variables keep the
// current value.
func applyEnv(cfg *Config) {
	cfg.Environment = Environment(getEnv("ENVIRONMENT", string(cfg.Environment)))
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.Workspace = getEnv("WORKSPACE_ID", cfg.Workspace)
	cfg.Backend = getEnv("WORLDFLOW_BACKEND", cfg.Backend)

	// Supabase
	cfg.Supabase.URL = getEnv("SUPABASE_URL", cfg.Supabase.URL)
	cfg.Supabase.APIKey = getEnv("SUPABASE_ANON_KEY", cfg.Supabase.APIKey)
	cfg.Supabase.Schema = getEnv("SUPABASE_SCHEMA", cfg.Supabase.Schema)
	cfg.Supabase.AccessToken = getEnv("SUPABASE_ACCESS_TOKEN", cfg.Supabase.AccessToken)

	// Change feed
	cfg.Feed.Driver = getEnv("FEED_DRIVER", cfg.Feed.Driver)
	cfg.Feed.RealtimeURL = getEnv("REALTIME_URL", cfg.Feed.RealtimeURL)
	cfg.Feed.HeartbeatInterval = getEnvDuration("FEED_HEARTBEAT_INTERVAL", cfg.Feed.HeartbeatInterval)
	cfg.Feed.JoinTimeout = getEnvDuration("FEED_JOIN_TIMEOUT", cfg.Feed.JoinTimeout)
	cfg.Feed.ReconnectDelay = getEnvDuration("FEED_RECONNECT_DELAY", cfg.Feed.ReconnectDelay)
	cfg.Feed.MaxReconnectDelay = getEnvDuration("FEED_MAX_RECONNECT_DELAY", cfg.Feed.MaxReconnectDelay)
	cfg.Feed.Redis.Addr = getEnv("REDIS_ADDR", cfg.Feed.Redis.Addr)
	cfg.Feed.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Feed.Redis.Password)
	cfg.Feed.Redis.DB = getEnvInt("REDIS_DB", cfg.Feed.Redis.DB)
	cfg.Feed.Redis.Prefix = getEnv("REDIS_CHANNEL_PREFIX", cfg.Feed.Redis.Prefix)

	// Server
	cfg.Server.Address = getEnv("SERVER_ADDRESS", cfg.Server.Address)

	// Gateway breaker
	cfg.Breaker.Enabled = getEnvBool("BREAKER_ENABLED", cfg.Breaker.Enabled)
	cfg.Breaker.Timeout = getEnvDuration("BREAKER_TIMEOUT", cfg.Breaker.Timeout)
	cfg.Breaker.FailureThreshold = getEnvFloat("BREAKER_FAILURE_THRESHOLD", cfg.Breaker.FailureThreshold)

	// Observability
	cfg.Metrics.Enabled = getEnvBool("ENABLE_METRICS", cfg.Metrics.Enabled)
	cfg.Tracing.Enabled = getEnvBool("ENABLE_TRACING", cfg.Tracing.Enabled)
	cfg.Tracing.Endpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Tracing.Endpoint)
	cfg.Tracing.SampleRate = getEnvFloat("TRACING_SAMPLE_RATE", cfg.Tracing.SampleRate)
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat gets a float environment variable with a default value
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
