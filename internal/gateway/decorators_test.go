package gateway_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/divyanshwrite/worldflow/internal/domain/graph"
	apperrors "github.com/divyanshwrite/worldflow/internal/errors"
	"github.com/divyanshwrite/worldflow/internal/gateway"
	"github.com/divyanshwrite/worldflow/internal/gateway/memory"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/codes"
)

// flaky fails ListNodes with a transport error while down is set.
type flaky struct {
	*memory.Backend
	mu   sync.Mutex
	down bool
}

func (f *flaky) setDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = down
}

func (f *flaky) ListNodes(ctx context.Context, ws graph.WorkspaceID) ([]graph.Node, error) {
	f.mu.Lock()
	down := f.down
	f.mu.Unlock()
	if down {
		return nil, apperrors.Connection(apperrors.CodeTransport, "backend unreachable").Build()
	}
	return f.Backend.ListNodes(ctx, ws)
}

func breakerConfig() gateway.BreakerConfig {
	cfg := gateway.DefaultBreakerConfig()
	cfg.MinRequests = 3
	cfg.FailureThreshold = 0.5
	cfg.Timeout = time.Hour
	return cfg
}

func TestBreaker_OpensOnTransportFailures(t *testing.T) {
	backend := &flaky{Backend: memory.New(), down: true}
	b := gateway.NewBreaker(backend, breakerConfig(), nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := b.ListNodes(ctx, "ws")
		require.True(t, apperrors.IsConnection(err))
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())

	backend.setDown(false)
	_, err := b.ListNodes(ctx, "ws")
	assert.True(t, apperrors.IsUnavailable(err))
	assert.Equal(t, apperrors.CodeCircuitOpen, apperrors.CodeOf(err))
	assert.True(t, apperrors.IsRetryable(err))
}

func TestBreaker_CallerErrorsDoNotTrip(t *testing.T) {
	b := gateway.NewBreaker(memory.New(), breakerConfig(), nil)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		err := b.DeleteNode(ctx, "missing")
		require.True(t, apperrors.IsNotFound(err))
		_, err = b.CreateNode(ctx, gateway.CreateNodeInput{})
		require.True(t, apperrors.IsValidation(err))
	}
	assert.Equal(t, gobreaker.StateClosed, b.State())

	n, err := b.CreateNode(ctx, gateway.CreateNodeInput{WorkspaceID: "ws", Type: "default"})
	require.NoError(t, err)
	got, err := b.GetNode(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, n, got)
}

// cancelling fails every call the way a caller-cancelled request does.
type cancelling struct {
	*memory.Backend
}

func (c cancelling) ListNodes(ctx context.Context, ws graph.WorkspaceID) ([]graph.Node, error) {
	return nil, apperrors.Timeout(apperrors.CodeRequestTimeout, "request cancelled before it was sent").
		WithCause(context.Canceled).
		Build()
}

func TestBreaker_CancellationsDoNotTrip(t *testing.T) {
	b := gateway.NewBreaker(cancelling{Backend: memory.New()}, breakerConfig(), nil)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := b.ListNodes(ctx, "ws")
		require.ErrorIs(t, err, context.Canceled)
		require.Equal(t, apperrors.CodeRequestTimeout, apperrors.CodeOf(err))
	}
	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestBreaker_DeadlinesStillTrip(t *testing.T) {
	b := gateway.NewBreaker(deadlined{Backend: memory.New()}, breakerConfig(), nil)

	for i := 0; i < 3; i++ {
		_, err := b.ListNodes(context.Background(), "ws")
		require.True(t, apperrors.IsType(err, apperrors.ErrorTypeTimeout))
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())
}

type deadlined struct {
	*memory.Backend
}

func (d deadlined) ListNodes(ctx context.Context, ws graph.WorkspaceID) ([]graph.Node, error) {
	return nil, apperrors.Timeout(apperrors.CodeRequestTimeout, "backend did not answer in time").
		WithCause(context.DeadlineExceeded).
		Build()
}

type recordedCall struct {
	op, status string
}

type callRecorder struct {
	mu    sync.Mutex
	calls []recordedCall
}

func (r *callRecorder) GatewayCall(op, status string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, recordedCall{op, status})
}

func TestInstrumented_SpansAndMetrics(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	metrics := &callRecorder{}
	g := gateway.NewInstrumented(memory.New(), tp, metrics, nil)
	ctx := context.Background()

	n, err := g.CreateNode(ctx, gateway.CreateNodeInput{WorkspaceID: "ws", Type: "default"})
	require.NoError(t, err)
	err = g.DeleteEdge(ctx, "missing")
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	assert.Equal(t, "gateway.createNode", spans[0].Name())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	var sawNodeID bool
	for _, kv := range spans[0].Attributes() {
		if string(kv.Key) == "worldflow.node_id" {
			sawNodeID = true
			assert.Equal(t, string(n.ID), kv.Value.AsString())
		}
	}
	assert.True(t, sawNodeID)

	assert.Equal(t, "gateway.deleteEdge", spans[1].Name())
	assert.Equal(t, codes.Error, spans[1].Status().Code)

	assert.Equal(t, []recordedCall{
		{"createNode", "ok"},
		{"deleteEdge", string(apperrors.ErrorTypeNotFound)},
	}, metrics.calls)
}

func TestInputValidation(t *testing.T) {
	valid := gateway.CreateEdgeInput{WorkspaceID: "ws", Source: "a", Target: "b", Type: "default"}
	assert.NoError(t, valid.Validate())

	bad := valid
	bad.Data.Kind = "purple"
	assert.Equal(t, apperrors.CodeInvalidEdgeKind, apperrors.CodeOf(bad.Validate()))

	bad = valid
	bad.Source = ""
	assert.True(t, apperrors.IsValidation(bad.Validate()))

	assert.True(t, apperrors.IsValidation(gateway.UpdateNodeInput{}.Validate()))
	color := graph.NodeData{Color: "#zzzzzz"}
	assert.True(t, apperrors.IsValidation(gateway.UpdateNodeInput{Data: &color}.Validate()))
}
