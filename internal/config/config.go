package config

import (
	"fmt"
	"strings"
	"time"
)

// Environment is the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Backend drivers.
const (
	BackendSupabase = "supabase"
	BackendMemory   = "memory"
)

// Feed drivers.
const (
	FeedRealtime = "realtime"
	FeedRedis    = "redis"
	FeedLocal    = "local"
)

// Config holds all runtime settings.
type Config struct {
	Environment Environment `yaml:"environment"`
	LogLevel    string      `yaml:"logLevel"`

	// Workspace is opened on startup when no --workspace flag is given.
	Workspace string `yaml:"workspace"`

	// Backend selects the CRUD gateway: supabase or memory.
	Backend  string   `yaml:"backend"`
	Supabase Supabase `yaml:"supabase"`
	Feed     Feed     `yaml:"feed"`
	Server   Server   `yaml:"server"`
	Breaker  Breaker  `yaml:"breaker"`
	Metrics  Metrics  `yaml:"metrics"`
	Tracing  Tracing  `yaml:"tracing"`
}

// Supabase holds the hosted backend credentials.
type Supabase struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"apiKey"`
	Schema      string `yaml:"schema"`
	AccessToken string `yaml:"accessToken"`
}

// Feed configures the change feed.
type Feed struct {
	// Driver selects the source: realtime, redis or local.
	Driver string `yaml:"driver"`

	// RealtimeURL defaults to the Supabase URL.
	RealtimeURL       string        `yaml:"realtimeUrl"`
	HeartbeatInterval time.Duration `yaml:"heartbeatInterval"`
	JoinTimeout       time.Duration `yaml:"joinTimeout"`

	// A lost realtime connection is retried with exponential backoff
	// between these bounds.
	ReconnectDelay    time.Duration `yaml:"reconnectDelay"`
	MaxReconnectDelay time.Duration `yaml:"maxReconnectDelay"`

	Redis Redis `yaml:"redis"`
}

// Redis configures the redis feed.
type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// Server configures the renderer-facing HTTP server.
type Server struct {
	Address         string        `yaml:"address"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// Breaker configures the gateway circuit breaker.
type Breaker struct {
	Enabled          bool          `yaml:"enabled"`
	MaxRequests      uint32        `yaml:"maxRequests"`
	Interval         time.Duration `yaml:"interval"`
	Timeout          time.Duration `yaml:"timeout"`
	FailureThreshold float64       `yaml:"failureThreshold"`
	MinRequests      uint32        `yaml:"minRequests"`
}

// Metrics configures the Prometheus collector.
type Metrics struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// Tracing configures the OTLP exporter.
type Tracing struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	ServiceName string  `yaml:"serviceName"`
	SampleRate  float64 `yaml:"sampleRate"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Environment: Development,
		LogLevel:    "info",
		Backend:     BackendSupabase,
		Supabase: Supabase{
			Schema: "public",
		},
		Feed: Feed{
			Driver:            FeedRealtime,
			HeartbeatInterval: 25 * time.Second,
			JoinTimeout:       10 * time.Second,
			ReconnectDelay:    time.Second,
			MaxReconnectDelay: 30 * time.Second,
			Redis: Redis{
				Addr:   "localhost:6379",
				Prefix: "worldflow:",
			},
		},
		Server: Server{
			Address:         ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Breaker: Breaker{
			Enabled:          true,
			MaxRequests:      5,
			Interval:         30 * time.Second,
			Timeout:          30 * time.Second,
			FailureThreshold: 0.6,
			MinRequests:      5,
		},
		Metrics: Metrics{
			Enabled:   true,
			Namespace: "worldflow",
		},
		Tracing: Tracing{
			Endpoint:    "localhost:4317",
			Insecure:    true,
			ServiceName: "worldflow",
			SampleRate:  0.1,
		},
	}
}

// Validate checks that the configuration can be wired.
func (c *Config) Validate() error {
	switch c.Environment {
	case Development, Staging, Production:
	default:
		return fmt.Errorf("unknown environment %q", c.Environment)
	}

	switch c.Backend {
	case BackendSupabase:
		if c.Supabase.URL == "" {
			return fmt.Errorf("SUPABASE_URL is required for the supabase backend")
		}
		if c.Supabase.APIKey == "" {
			return fmt.Errorf("SUPABASE_ANON_KEY is required for the supabase backend")
		}
	case BackendMemory:
		if c.Environment == Production {
			return fmt.Errorf("the memory backend is not allowed in production")
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}

	switch c.Feed.Driver {
	case FeedRealtime:
		if c.Backend != BackendSupabase {
			return fmt.Errorf("the realtime feed requires the supabase backend")
		}
		if c.Feed.HeartbeatInterval <= 0 {
			return fmt.Errorf("feed heartbeat interval must be positive")
		}
	case FeedRedis:
		if c.Feed.Redis.Addr == "" {
			return fmt.Errorf("REDIS_ADDR is required for the redis feed")
		}
	case FeedLocal:
		if c.Backend != BackendMemory {
			return fmt.Errorf("the local feed only works with the memory backend")
		}
	default:
		return fmt.Errorf("unknown feed driver %q", c.Feed.Driver)
	}

	if c.Breaker.Enabled && (c.Breaker.FailureThreshold <= 0 || c.Breaker.FailureThreshold > 1) {
		return fmt.Errorf("breaker failure threshold must be in (0, 1]")
	}
	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		return fmt.Errorf("OTEL_EXPORTER_OTLP_ENDPOINT is required when tracing is enabled")
	}
	return nil
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == Development
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}

// RealtimeURL returns the realtime endpoint, falling back to the Supabase URL.
func (c *Config) RealtimeURL() string {
	if c.Feed.RealtimeURL != "" {
		return c.Feed.RealtimeURL
	}
	return strings.TrimRight(c.Supabase.URL, "/") + "/realtime/v1/websocket"
}
