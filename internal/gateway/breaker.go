package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/divyanshwrite/worldflow/internal/domain/graph"
	apperrors "github.com/divyanshwrite/worldflow/internal/errors"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ============================================================================
// CIRCUIT BREAKER DECORATOR - Fails fast while the backend is down
// ============================================================================

// BreakerConfig holds configuration for the gateway circuit breaker.
type BreakerConfig struct {
	Name        string
	MaxRequests uint32        // requests allowed through while half-open
	Interval    time.Duration // closed-state window after which counts reset
	Timeout     time.Duration // how long the circuit stays open

	FailureThreshold float64 // failure ratio that trips the circuit
	MinRequests      uint32  // requests needed before the ratio is evaluated
}

// DefaultBreakerConfig returns the configuration used when none is given.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:             "gateway",
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 0.6,
		MinRequests:      5,
	}
}

// Breaker wraps a Backend with a circuit breaker. Only transport failures
// count against the circuit; validation and not-found results are answers
// from a healthy backend.
type Breaker struct {
	next   Backend
	cb     *gobreaker.CircuitBreaker
	logger *zap.Logger
}

// NewBreaker decorates next.
func NewBreaker(next Backend, cfg BreakerConfig, logger *zap.Logger) *Breaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("gateway_breaker")

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !isTransportFailure(err)
		},
	})

	return &Breaker{next: next, cb: cb, logger: logger}
}

// State returns the current circuit state.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

// isTransportFailure reports whether err counts against the backend. A call
// the caller cancelled says nothing about backend health.
func isTransportFailure(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	unified, ok := apperrors.As(err)
	if !ok {
		return true
	}
	switch unified.Type {
	case apperrors.ErrorTypeConnection, apperrors.ErrorTypeTimeout,
		apperrors.ErrorTypeExternal, apperrors.ErrorTypeUnavailable, apperrors.ErrorTypeInternal:
		return true
	}
	return false
}

func (b *Breaker) execute(op string, fn func() (any, error)) (any, error) {
	result, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		b.logger.Debug("Gateway call rejected by circuit breaker", zap.String("operation", op))
		return nil, apperrors.Unavailable(apperrors.CodeCircuitOpen, "backend temporarily unavailable").
			WithOperation(op).
			WithDetails(err.Error()).
			WithCause(err).
			Build()
	}
	return result, err
}

// ============================================================================
// GATEWAY
// ============================================================================

func (b *Breaker) CreateNode(ctx context.Context, in CreateNodeInput) (graph.Node, error) {
	res, err := b.execute("createNode", func() (any, error) { return b.next.CreateNode(ctx, in) })
	if err != nil {
		return graph.Node{}, err
	}
	return res.(graph.Node), nil
}

func (b *Breaker) UpdateNode(ctx context.Context, id graph.NodeID, in UpdateNodeInput) (graph.Node, error) {
	res, err := b.execute("updateNode", func() (any, error) { return b.next.UpdateNode(ctx, id, in) })
	if err != nil {
		return graph.Node{}, err
	}
	return res.(graph.Node), nil
}

func (b *Breaker) DeleteNode(ctx context.Context, id graph.NodeID) error {
	_, err := b.execute("deleteNode", func() (any, error) { return nil, b.next.DeleteNode(ctx, id) })
	return err
}

func (b *Breaker) CreateEdge(ctx context.Context, in CreateEdgeInput) (graph.Edge, error) {
	res, err := b.execute("createEdge", func() (any, error) { return b.next.CreateEdge(ctx, in) })
	if err != nil {
		return graph.Edge{}, err
	}
	return res.(graph.Edge), nil
}

func (b *Breaker) UpdateEdge(ctx context.Context, id graph.EdgeID, in UpdateEdgeInput) (graph.Edge, error) {
	res, err := b.execute("updateEdge", func() (any, error) { return b.next.UpdateEdge(ctx, id, in) })
	if err != nil {
		return graph.Edge{}, err
	}
	return res.(graph.Edge), nil
}

func (b *Breaker) DeleteEdge(ctx context.Context, id graph.EdgeID) error {
	_, err := b.execute("deleteEdge", func() (any, error) { return nil, b.next.DeleteEdge(ctx, id) })
	return err
}

// ============================================================================
// READER
// ============================================================================

func (b *Breaker) ListNodes(ctx context.Context, ws graph.WorkspaceID) ([]graph.Node, error) {
	res, err := b.execute("listNodes", func() (any, error) { return b.next.ListNodes(ctx, ws) })
	if err != nil {
		return nil, err
	}
	return res.([]graph.Node), nil
}

func (b *Breaker) ListEdges(ctx context.Context, ws graph.WorkspaceID) ([]graph.Edge, error) {
	res, err := b.execute("listEdges", func() (any, error) { return b.next.ListEdges(ctx, ws) })
	if err != nil {
		return nil, err
	}
	return res.([]graph.Edge), nil
}

func (b *Breaker) GetNode(ctx context.Context, id graph.NodeID) (graph.Node, error) {
	res, err := b.execute("getNode", func() (any, error) { return b.next.GetNode(ctx, id) })
	if err != nil {
		return graph.Node{}, err
	}
	return res.(graph.Node), nil
}

func (b *Breaker) GetEdge(ctx context.Context, id graph.EdgeID) (graph.Edge, error) {
	res, err := b.execute("getEdge", func() (any, error) { return b.next.GetEdge(ctx, id) })
	if err != nil {
		return graph.Edge{}, err
	}
	return res.(graph.Edge), nil
}

func (b *Breaker) GetWorkspace(ctx context.Context, ws graph.WorkspaceID) (graph.Workspace, error) {
	res, err := b.execute("getWorkspace", func() (any, error) { return b.next.GetWorkspace(ctx, ws) })
	if err != nil {
		return graph.Workspace{}, err
	}
	return res.(graph.Workspace), nil
}
