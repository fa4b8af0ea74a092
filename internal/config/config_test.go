package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/divyanshwrite/worldflow/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

// TestLoad_FileThenEnv checks the override order: defaults, file, env.
func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worldflow.yaml")
	writeFile(t, path, `
environment: staging
logLevel: debug
supabase:
  url: https://project.supabase.co
  apiKey: from-file
feed:
  heartbeatInterval: 5s
server:
  address: ":9000"
`)
	t.Setenv("SUPABASE_ANON_KEY", "from-env")
	t.Setenv("WORKSPACE_ID", "ws-env")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, config.Staging, cfg.Environment)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "from-env", cfg.Supabase.APIKey)
	assert.Equal(t, "ws-env", cfg.Workspace)
	assert.Equal(t, 5*time.Second, cfg.Feed.HeartbeatInterval)
	assert.Equal(t, ":9000", cfg.Server.Address)
	assert.Equal(t, "public", cfg.Supabase.Schema, "default survives")
	assert.Equal(t, "https://project.supabase.co/realtime/v1/websocket", cfg.RealtimeURL())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoad_EnvOnly(t *testing.T) {
	t.Setenv("WORLDFLOW_BACKEND", "memory")
	t.Setenv("FEED_DRIVER", "local")
	t.Setenv("FEED_HEARTBEAT_INTERVAL", "not-a-duration")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, config.BackendMemory, cfg.Backend)
	assert.Equal(t, 25*time.Second, cfg.Feed.HeartbeatInterval, "bad duration keeps the default")
}

func TestValidate(t *testing.T) {
	valid := func() *config.Config {
		cfg := config.Default()
		cfg.Supabase.URL = "https://project.supabase.co"
		cfg.Supabase.APIKey = "anon"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{"valid", func(*config.Config) {}, ""},
		{"missing url", func(c *config.Config) { c.Supabase.URL = "" }, "SUPABASE_URL"},
		{"missing key", func(c *config.Config) { c.Supabase.APIKey = "" }, "SUPABASE_ANON_KEY"},
		{"unknown feed", func(c *config.Config) { c.Feed.Driver = "kafka" }, "unknown feed driver"},
		{"unknown backend", func(c *config.Config) { c.Backend = "mysql" }, "unknown backend"},
		{"unknown environment", func(c *config.Config) { c.Environment = "qa" }, "unknown environment"},
		{"local feed needs memory", func(c *config.Config) { c.Feed.Driver = config.FeedLocal }, "local feed"},
		{"redis feed", func(c *config.Config) { c.Feed.Driver = config.FeedRedis }, ""},
		{"redis without addr", func(c *config.Config) {
			c.Feed.Driver = config.FeedRedis
			c.Feed.Redis.Addr = ""
		}, "REDIS_ADDR"},
		{"realtime needs supabase", func(c *config.Config) {
			c.Backend = config.BackendMemory
		}, "realtime feed"},
		{"memory in production", func(c *config.Config) {
			c.Environment = config.Production
			c.Backend = config.BackendMemory
			c.Feed.Driver = config.FeedLocal
		}, "not allowed in production"},
		{"breaker threshold", func(c *config.Config) { c.Breaker.FailureThreshold = 1.5 }, "failure threshold"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestWatcher_ReloadsInDevelopment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worldflow.yaml")
	base := "backend: memory\nfeed:\n  driver: local\n"
	writeFile(t, path, base+"logLevel: info\n")

	initial, err := config.Load(path)
	require.NoError(t, err)

	w, err := config.NewWatcher(path, initial, nil)
	require.NoError(t, err)
	defer w.Stop()

	changed := make(chan *config.Config, 1)
	w.OnChange(func(c *config.Config) {
		select {
		case changed <- c:
		default:
		}
	})

	writeFile(t, path, base+"logLevel: debug\n")

	select {
	case c := <-changed:
		assert.Equal(t, "debug", c.LogLevel)
		assert.Equal(t, "debug", w.Config().LogLevel)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload observed")
	}
}

func TestWatcher_InertOutsideDevelopment(t *testing.T) {
	cfg := config.Default()
	cfg.Environment = config.Production

	w, err := config.NewWatcher("/does/not/matter.yaml", cfg, nil)
	require.NoError(t, err)
	assert.Same(t, cfg, w.Config())
	w.Stop()
	w.Stop()
}
