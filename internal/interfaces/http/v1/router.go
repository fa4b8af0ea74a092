// Package v1 serves the renderer-facing HTTP API: the graph snapshot, the
// pointer events that drive the linking machine, and the node editor and
// edge actions.
package v1

import (
	"context"
	"net/http"
	"time"

	"github.com/divyanshwrite/worldflow/internal/application/commands"
	"github.com/divyanshwrite/worldflow/internal/domain/graph"
	"github.com/divyanshwrite/worldflow/internal/gateway"
	"github.com/divyanshwrite/worldflow/internal/interfaces/http/middleware"
	"github.com/divyanshwrite/worldflow/internal/linking"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// SnapshotReader exposes the current graph.
type SnapshotReader interface {
	Snapshot() graph.Snapshot
}

// Linking is the pointer-event surface of linking.Machine.
type Linking interface {
	State() linking.State
	EnterLinkingMode() linking.State
	ExitLinkingMode() linking.State
	OnNodeClicked(ctx context.Context, id graph.NodeID) (linking.ClickResult, error)
	OnCanvasClicked(ctx context.Context, pos graph.Position) (graph.Node, error)
}

// Commands is the editor surface of commands.Service.
type Commands interface {
	UpdateNode(ctx context.Context, id graph.NodeID, in gateway.UpdateNodeInput) (graph.Node, error)
	SaveNodeFields(ctx context.Context, cmd commands.SaveNodeFieldsCommand) (graph.Node, error)
	DeleteNode(ctx context.Context, id graph.NodeID) error
	UpdateEdge(ctx context.Context, cmd commands.UpdateEdgeCommand) (graph.Edge, error)
	DeleteEdge(ctx context.Context, id graph.EdgeID) error
}

// Options configures the router. Metrics and Snapshots are optional.
type Options struct {
	Store    SnapshotReader
	Linking  Linking
	Commands Commands
	Logger   *zap.Logger

	// Recorder observes every request; Metrics serves /metrics.
	Recorder middleware.Recorder
	Metrics  http.Handler

	// Snapshots serves the websocket push on /ws.
	Snapshots http.Handler

	RequestTimeout time.Duration
}

// NewRouter builds the chi router with every route mounted.
func NewRouter(opts Options) *chi.Mux {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{
		store:    opts.Store,
		linking:  opts.Linking,
		commands: opts.Commands,
		logger:   logger.Named("http"),
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(h.logger))
	r.Use(chimw.Recoverer)
	r.Use(middleware.Metrics(opts.Recorder))

	r.Get("/healthz", h.health)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}
	if opts.Snapshots != nil {
		r.Method(http.MethodGet, "/ws", opts.Snapshots)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.APIVersion(middleware.VersionV1))
		if opts.RequestTimeout > 0 {
			r.Use(chimw.Timeout(opts.RequestTimeout))
		}

		r.Get("/snapshot", h.snapshot)
		r.Post("/canvas/click", h.canvasClick)

		r.Route("/linking", func(r chi.Router) {
			r.Get("/", h.linkingState)
			r.Post("/", h.enterLinking)
			r.Delete("/", h.exitLinking)
		})

		r.Route("/nodes/{nodeId}", func(r chi.Router) {
			r.Post("/click", h.nodeClick)
			r.Patch("/", h.saveNode)
			r.Patch("/position", h.moveNode)
			r.Delete("/", h.deleteNode)
		})

		r.Route("/edges/{edgeId}", func(r chi.Router) {
			r.Patch("/", h.updateEdge)
			r.Delete("/", h.deleteEdge)
		})
	})

	return r
}
