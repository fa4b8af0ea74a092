package gateway

import (
	"context"
	"time"

	"github.com/divyanshwrite/worldflow/internal/domain/graph"
	apperrors "github.com/divyanshwrite/worldflow/internal/errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

// Metrics receives one observation per gateway call.
// observability.Collector implements it.
type Metrics interface {
	GatewayCall(operation, status string, elapsed time.Duration)
}

// Instrumented opens one span per call and records call metrics.
type Instrumented struct {
	next    Backend
	tracer  trace.Tracer
	metrics Metrics
	logger  *zap.Logger
}

// NewInstrumented decorates next. A nil tracer provider disables tracing.
func NewInstrumented(next Backend, tp trace.TracerProvider, metrics Metrics, logger *zap.Logger) *Instrumented {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tp == nil {
		tp = noop.NewTracerProvider()
	}
	tracer := tp.Tracer("github.com/divyanshwrite/worldflow/internal/gateway")
	return &Instrumented{
		next:    next,
		tracer:  tracer,
		metrics: metrics,
		logger:  logger.Named("gateway"),
	}
}

func (g *Instrumented) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	ctx, span := g.tracer.Start(ctx, "gateway."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
	return ctx, span, time.Now()
}

func (g *Instrumented) finish(span trace.Span, op string, started time.Time, err error) {
	defer span.End()

	status := "ok"
	if err != nil {
		status = string(apperrors.ErrorTypeInternal)
		if unified, ok := apperrors.As(err); ok {
			status = string(unified.Type)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("error.code", string(apperrors.CodeOf(err))))

		if apperrors.IsValidation(err) || apperrors.IsNotFound(err) {
			g.logger.Debug("Gateway call rejected", zap.String("operation", op), zap.Error(err))
		} else {
			g.logger.Warn("Gateway call failed", zap.String("operation", op), zap.Error(err))
		}
	} else {
		span.SetStatus(codes.Ok, "")
	}

	if g.metrics != nil {
		g.metrics.GatewayCall(op, status, time.Since(started))
	}
}

func wsAttr(ws graph.WorkspaceID) attribute.KeyValue {
	return attribute.String("worldflow.workspace_id", string(ws))
}

func nodeAttr(id graph.NodeID) attribute.KeyValue {
	return attribute.String("worldflow.node_id", string(id))
}

func edgeAttr(id graph.EdgeID) attribute.KeyValue {
	return attribute.String("worldflow.edge_id", string(id))
}

func (g *Instrumented) CreateNode(ctx context.Context, in CreateNodeInput) (n graph.Node, err error) {
	ctx, span, started := g.start(ctx, "createNode", wsAttr(in.WorkspaceID))
	defer func() { g.finish(span, "createNode", started, err) }()
	n, err = g.next.CreateNode(ctx, in)
	if err == nil {
		span.SetAttributes(nodeAttr(n.ID))
	}
	return n, err
}

func (g *Instrumented) UpdateNode(ctx context.Context, id graph.NodeID, in UpdateNodeInput) (n graph.Node, err error) {
	ctx, span, started := g.start(ctx, "updateNode", nodeAttr(id))
	defer func() { g.finish(span, "updateNode", started, err) }()
	return g.next.UpdateNode(ctx, id, in)
}

func (g *Instrumented) DeleteNode(ctx context.Context, id graph.NodeID) (err error) {
	ctx, span, started := g.start(ctx, "deleteNode", nodeAttr(id))
	defer func() { g.finish(span, "deleteNode", started, err) }()
	return g.next.DeleteNode(ctx, id)
}

func (g *Instrumented) CreateEdge(ctx context.Context, in CreateEdgeInput) (e graph.Edge, err error) {
	ctx, span, started := g.start(ctx, "createEdge", wsAttr(in.WorkspaceID),
		attribute.String("worldflow.source_node_id", string(in.Source)),
		attribute.String("worldflow.target_node_id", string(in.Target)),
	)
	defer func() { g.finish(span, "createEdge", started, err) }()
	e, err = g.next.CreateEdge(ctx, in)
	if err == nil {
		span.SetAttributes(edgeAttr(e.ID))
	}
	return e, err
}

func (g *Instrumented) UpdateEdge(ctx context.Context, id graph.EdgeID, in UpdateEdgeInput) (e graph.Edge, err error) {
	ctx, span, started := g.start(ctx, "updateEdge", edgeAttr(id))
	defer func() { g.finish(span, "updateEdge", started, err) }()
	return g.next.UpdateEdge(ctx, id, in)
}

func (g *Instrumented) DeleteEdge(ctx context.Context, id graph.EdgeID) (err error) {
	ctx, span, started := g.start(ctx, "deleteEdge", edgeAttr(id))
	defer func() { g.finish(span, "deleteEdge", started, err) }()
	return g.next.DeleteEdge(ctx, id)
}

func (g *Instrumented) ListNodes(ctx context.Context, ws graph.WorkspaceID) (nodes []graph.Node, err error) {
	ctx, span, started := g.start(ctx, "listNodes", wsAttr(ws))
	defer func() { g.finish(span, "listNodes", started, err) }()
	nodes, err = g.next.ListNodes(ctx, ws)
	span.SetAttributes(attribute.Int("worldflow.count", len(nodes)))
	return nodes, err
}

func (g *Instrumented) ListEdges(ctx context.Context, ws graph.WorkspaceID) (edges []graph.Edge, err error) {
	ctx, span, started := g.start(ctx, "listEdges", wsAttr(ws))
	defer func() { g.finish(span, "listEdges", started, err) }()
	edges, err = g.next.ListEdges(ctx, ws)
	span.SetAttributes(attribute.Int("worldflow.count", len(edges)))
	return edges, err
}

func (g *Instrumented) GetNode(ctx context.Context, id graph.NodeID) (n graph.Node, err error) {
	ctx, span, started := g.start(ctx, "getNode", nodeAttr(id))
	defer func() { g.finish(span, "getNode", started, err) }()
	return g.next.GetNode(ctx, id)
}

func (g *Instrumented) GetEdge(ctx context.Context, id graph.EdgeID) (e graph.Edge, err error) {
	ctx, span, started := g.start(ctx, "getEdge", edgeAttr(id))
	defer func() { g.finish(span, "getEdge", started, err) }()
	return g.next.GetEdge(ctx, id)
}

func (g *Instrumented) GetWorkspace(ctx context.Context, ws graph.WorkspaceID) (w graph.Workspace, err error) {
	ctx, span, started := g.start(ctx, "getWorkspace", wsAttr(ws))
	defer func() { g.finish(span, "getWorkspace", started, err) }()
	return g.next.GetWorkspace(ctx, ws)
}
