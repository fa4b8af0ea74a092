package feed

import (
	"context"
	"sync"

	"github.com/divyanshwrite/worldflow/internal/domain/graph"
	apperrors "github.com/divyanshwrite/worldflow/internal/errors"
	"github.com/divyanshwrite/worldflow/internal/store"

	"go.uber.org/zap"
)

// Sink receives decoded operations. *store.GraphStore satisfies it.
type Sink interface {
	Apply(op store.Operation) bool
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(op store.Operation) bool

func (f SinkFunc) Apply(op store.Operation) bool { return f(op) }

// Metrics receives feed counters. observability.Collector implements it.
type Metrics interface {
	FeedEvent(table, event string, applied bool)
	FeedDecodeError(table string)
}

// Adapter opens the node and edge subscriptions of a workspace on a Source
// and forwards every change to a Sink. It does not deduplicate; the store
// upserts by id.
type Adapter struct {
	source  Source
	logger  *zap.Logger
	metrics Metrics
}

// NewAdapter creates an adapter over source.
func NewAdapter(source Source, logger *zap.Logger, metrics Metrics) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Adapter{
		source:  source,
		logger:  logger.Named("feed"),
		metrics: metrics,
	}
}

// Subscription is the release handle of one Subscribe call.
type Subscription struct {
	workspace graph.WorkspaceID

	mu      sync.Mutex // held while delivering; guards active
	active  bool
	streams []Stream

	once   sync.Once
	logger *zap.Logger
}

// Workspace returns the workspace this subscription is filtered to.
func (s *Subscription) Workspace() graph.WorkspaceID {
	return s.workspace
}

// Subscribe opens exactly two subscriptions on the source, one for the
// nodes table and one for the edges table, both filtered to ws. If either
// fails, whatever was opened is closed again and the error is returned.
func (a *Adapter) Subscribe(ctx context.Context, ws graph.WorkspaceID, sink Sink) (*Subscription, error) {
	if ws == "" {
		return nil, apperrors.Validation(apperrors.CodeNoActiveWorkspace, "workspace id is required").
			WithOperation("feed.subscribe").
			Build()
	}

	sub := &Subscription{
		workspace: ws,
		active:    true,
		logger:    a.logger.With(zap.String("workspace", string(ws))),
	}

	for _, table := range []Table{TableNodes, TableEdges} {
		topic := Topic{Table: table, Workspace: ws}
		stream, err := a.source.Subscribe(ctx, topic, a.handler(sub, sink))
		if err != nil {
			sub.Unsubscribe()
			a.logger.Warn("Change feed subscription failed",
				zap.String("topic", topic.String()),
				zap.Error(err),
			)
			if _, ok := apperrors.As(err); ok {
				return nil, err
			}
			return nil, apperrors.Connection(apperrors.CodeFeedSubscribe, "change feed subscription failed").
				WithOperation("feed.subscribe").
				WithResource(topic.String()).
				WithDetails(err.Error()).
				WithCause(err).
				Build()
		}
		sub.mu.Lock()
		sub.streams = append(sub.streams, stream)
		sub.mu.Unlock()
	}

	sub.logger.Info("Change feed subscribed")
	return sub, nil
}

func (a *Adapter) handler(sub *Subscription, sink Sink) Handler {
	return func(c Change) {
		sub.mu.Lock()
		defer sub.mu.Unlock()
		if !sub.active {
			return
		}

		op, err := Decode(sub.workspace, c)
		if err != nil {
			a.metrics.FeedDecodeError(string(c.Table))
			sub.logger.Warn("Discarding undecodable change", zap.Error(err))
			return
		}
		applied := sink.Apply(op)
		a.metrics.FeedEvent(string(c.Table), string(c.Type), applied)
	}
}

// Unsubscribe releases both underlying streams. It is idempotent, and once
// it returns the sink receives no further operation from this subscription.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.mu.Lock()
		s.active = false
		streams := s.streams
		s.streams = nil
		s.mu.Unlock()

		for _, stream := range streams {
			if err := stream.Close(); err != nil {
				s.logger.Warn("Closing change feed stream failed", zap.Error(err))
			}
		}
		s.logger.Info("Change feed unsubscribed")
	})
}

type noopMetrics struct{}

func (noopMetrics) FeedEvent(string, string, bool) {}
func (noopMetrics) FeedDecodeError(string)         {}
