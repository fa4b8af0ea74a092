package di

import (
	"net/http"

	"github.com/divyanshwrite/worldflow/internal/application/commands"
	"github.com/divyanshwrite/worldflow/internal/application/session"
	"github.com/divyanshwrite/worldflow/internal/config"
	"github.com/divyanshwrite/worldflow/internal/feed"
	"github.com/divyanshwrite/worldflow/internal/gateway"
	"github.com/divyanshwrite/worldflow/internal/interfaces/websocket"
	"github.com/divyanshwrite/worldflow/internal/linking"
	"github.com/divyanshwrite/worldflow/internal/observability"
	"github.com/divyanshwrite/worldflow/internal/store"

	"go.uber.org/zap"
)

// Version is stamped at build time with -ldflags "-X ...di.Version=...".
var Version = "dev"

// Container holds every wired component.
type Container struct {
	Config    *config.Config
	Logging   *Logging
	Logger    *zap.Logger
	Collector *observability.Collector
	Tracer    *observability.TracerProvider

	Backend  gateway.Backend
	Store    *store.GraphStore
	Adapter  *feed.Adapter
	Sessions *session.Manager
	Commands *commands.Service
	Linking  *linking.Machine
	Hub      *websocket.Hub
	Router   http.Handler
}

func provideContainer(
	cfg *config.Config,
	logging *Logging,
	logger *zap.Logger,
	collector *observability.Collector,
	tracer *observability.TracerProvider,
	backend gateway.Backend,
	st *store.GraphStore,
	adapter *feed.Adapter,
	sessions *session.Manager,
	svc *commands.Service,
	machine *linking.Machine,
	hub *websocket.Hub,
	router http.Handler,
) *Container {
	return &Container{
		Config:    cfg,
		Logging:   logging,
		Logger:    logger,
		Collector: collector,
		Tracer:    tracer,
		Backend:   backend,
		Store:     st,
		Adapter:   adapter,
		Sessions:  sessions,
		Commands:  svc,
		Linking:   machine,
		Hub:       hub,
		Router:    router,
	}
}
