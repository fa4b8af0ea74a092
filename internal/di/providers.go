// Package di wires the synchronization core from configuration.
//
// The graph is declared as Wire provider sets (wire_sets.go) and built by
// InitializeContainer. Each provider here turns one part of config.Config
// into a component; cleanups run in reverse construction order.
package di

import (
	"context"
	"fmt"
	"net/http"

	"github.com/divyanshwrite/worldflow/internal/application/commands"
	"github.com/divyanshwrite/worldflow/internal/application/session"
	"github.com/divyanshwrite/worldflow/internal/config"
	"github.com/divyanshwrite/worldflow/internal/domain/graph"
	"github.com/divyanshwrite/worldflow/internal/feed"
	"github.com/divyanshwrite/worldflow/internal/feed/realtime"
	"github.com/divyanshwrite/worldflow/internal/feed/redisfeed"
	"github.com/divyanshwrite/worldflow/internal/gateway"
	"github.com/divyanshwrite/worldflow/internal/gateway/memory"
	"github.com/divyanshwrite/worldflow/internal/gateway/supabase"
	v1 "github.com/divyanshwrite/worldflow/internal/interfaces/http/v1"
	"github.com/divyanshwrite/worldflow/internal/interfaces/websocket"
	"github.com/divyanshwrite/worldflow/internal/linking"
	"github.com/divyanshwrite/worldflow/internal/observability"
	"github.com/divyanshwrite/worldflow/internal/store"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Logging pairs the root logger with its runtime-adjustable level.
type Logging struct {
	Logger *zap.Logger
	Level  zap.AtomicLevel
}

// Feeds is the change-feed source and, when this process also produces
// changes (memory backend), the publisher the backend echoes writes to.
type Feeds struct {
	Source    feed.Source
	Publisher feed.Publisher
}

// ProvideLogging builds the root logger.
func ProvideLogging(cfg *config.Config) (*Logging, error) {
	logger, level, err := observability.NewLogger(cfg.LogLevel, string(cfg.Environment))
	if err != nil {
		return nil, err
	}
	return &Logging{Logger: logger, Level: level}, nil
}

// ProvideLogger exposes the root logger.
func ProvideLogger(l *Logging) *zap.Logger {
	return l.Logger
}

// ProvideCollector creates the Prometheus collector.
func ProvideCollector(cfg *config.Config) *observability.Collector {
	return observability.NewCollector(cfg.Metrics.Namespace)
}

// ProvideTracer installs the tracer provider and flushes it on cleanup.
func ProvideTracer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*observability.TracerProvider, func(), error) {
	tp, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		Version:     Version,
		Environment: string(cfg.Environment),
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		SampleRate:  cfg.Tracing.SampleRate,
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("Tracer shutdown failed", zap.Error(err))
		}
	}
	return tp, cleanup, nil
}

// ProvideFeeds selects the change-feed driver.
func ProvideFeeds(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Feeds, func(), error) {
	switch cfg.Feed.Driver {
	case config.FeedRealtime:
		src := realtime.NewSource(realtime.Config{
			URL:               cfg.RealtimeURL(),
			APIKey:            cfg.Supabase.APIKey,
			AccessToken:       cfg.Supabase.AccessToken,
			Schema:            cfg.Supabase.Schema,
			HeartbeatInterval: cfg.Feed.HeartbeatInterval,
			JoinTimeout:       cfg.Feed.JoinTimeout,
			ReconnectDelay:    cfg.Feed.ReconnectDelay,
			MaxReconnectDelay: cfg.Feed.MaxReconnectDelay,
		}, logger)
		return &Feeds{Source: src}, func() {}, nil

	case config.FeedRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Feed.Redis.Addr,
			Password: cfg.Feed.Redis.Password,
			DB:       cfg.Feed.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.Feed.Redis.Addr, err)
		}
		src := redisfeed.NewSource(client, cfg.Feed.Redis.Prefix, logger)
		cleanup := func() {
			if err := client.Close(); err != nil {
				logger.Warn("Redis client close failed", zap.Error(err))
			}
		}
		return &Feeds{Source: src, Publisher: src}, cleanup, nil

	case config.FeedLocal:
		src := feed.NewLocalSource()
		return &Feeds{Source: src, Publisher: src}, func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown feed driver %q", cfg.Feed.Driver)
	}
}

// ProvideBackend builds the CRUD backend and layers the circuit breaker and
// instrumentation over it. Instrumentation is outermost so spans include
// breaker rejections.
func ProvideBackend(
	cfg *config.Config,
	feeds *Feeds,
	collector *observability.Collector,
	tp *observability.TracerProvider,
	logger *zap.Logger,
) (gateway.Backend, error) {
	var backend gateway.Backend
	switch cfg.Backend {
	case config.BackendSupabase:
		gw, err := supabase.New(supabase.Config{
			URL:         cfg.Supabase.URL,
			APIKey:      cfg.Supabase.APIKey,
			Schema:      cfg.Supabase.Schema,
			AccessToken: cfg.Supabase.AccessToken,
		}, logger)
		if err != nil {
			return nil, err
		}
		backend = gw

	case config.BackendMemory:
		opts := []memory.Option{memory.WithLogger(logger)}
		if feeds.Publisher != nil {
			opts = append(opts, memory.WithPublisher(feeds.Publisher))
		}
		mem := memory.New(opts...)
		// The memory backend starts empty; seed the workspace to open.
		if cfg.Workspace != "" {
			mem.PutWorkspace(graph.Workspace{ID: graph.WorkspaceID(cfg.Workspace), Name: cfg.Workspace})
		}
		backend = mem

	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}

	if cfg.Breaker.Enabled {
		backend = gateway.NewBreaker(backend, gateway.BreakerConfig{
			Name:             "gateway",
			MaxRequests:      cfg.Breaker.MaxRequests,
			Interval:         cfg.Breaker.Interval,
			Timeout:          cfg.Breaker.Timeout,
			FailureThreshold: cfg.Breaker.FailureThreshold,
			MinRequests:      cfg.Breaker.MinRequests,
		}, logger)
	}
	return gateway.NewInstrumented(backend, tp.Provider(), collector, logger), nil
}

// ProvideStore creates the graph store.
func ProvideStore(collector *observability.Collector, logger *zap.Logger) *store.GraphStore {
	return store.New(store.WithLogger(logger), store.WithMetrics(collector))
}

// ProvideAdapter creates the change-feed adapter.
func ProvideAdapter(feeds *Feeds, collector *observability.Collector, logger *zap.Logger) *feed.Adapter {
	return feed.NewAdapter(feeds.Source, logger, collector)
}

// ProvideSessions creates the workspace session manager and closes the
// open session on cleanup.
func ProvideSessions(backend gateway.Backend, st *store.GraphStore, adapter *feed.Adapter, logger *zap.Logger) (*session.Manager, func()) {
	m := session.NewManager(backend, st, adapter, logger)
	return m, m.Close
}

// ProvideCommands creates the command service.
func ProvideCommands(backend gateway.Backend, st *store.GraphStore, logger *zap.Logger) *commands.Service {
	return commands.NewService(backend, st, logger)
}

// ProvideLinking creates the linking machine and attaches it to the store.
func ProvideLinking(st *store.GraphStore, svc *commands.Service, logger *zap.Logger) (*linking.Machine, func()) {
	m := linking.NewMachine(st, svc, nil, logger)
	return m, m.Attach(st)
}

// ProvideHub starts the snapshot push hub and attaches it to the store.
func ProvideHub(st *store.GraphStore, collector *observability.Collector, logger *zap.Logger) (*websocket.Hub, func()) {
	hub := websocket.NewHub(st, collector, logger)
	go hub.Run(context.Background())
	detach := hub.Attach(st)
	return hub, func() {
		detach()
		hub.Stop()
	}
}

// ProvideRouter mounts the HTTP API, /metrics and /ws.
func ProvideRouter(
	cfg *config.Config,
	st *store.GraphStore,
	machine *linking.Machine,
	svc *commands.Service,
	hub *websocket.Hub,
	collector *observability.Collector,
	logger *zap.Logger,
) http.Handler {
	opts := v1.Options{
		Store:          st,
		Linking:        machine,
		Commands:       svc,
		Logger:         logger,
		Snapshots:      websocket.NewServer(hub, websocket.DefaultServerConfig()),
		RequestTimeout: cfg.Server.WriteTimeout,
	}
	if cfg.Metrics.Enabled {
		opts.Recorder = collector
		opts.Metrics = collector.Handler()
	}
	return v1.NewRouter(opts)
}
