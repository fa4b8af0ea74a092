// Package memory is an in-process gateway.Backend. It behaves like the
// hosted backend: ids and audit timestamps are assigned on insert, edges
// must reference existing nodes, deleting a node deletes its edges, and
// every committed write is echoed as a change on an optional feed.Publisher.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/divyanshwrite/worldflow/internal/domain/graph"
	apperrors "github.com/divyanshwrite/worldflow/internal/errors"
	"github.com/divyanshwrite/worldflow/internal/feed"
	"github.com/divyanshwrite/worldflow/internal/gateway"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Backend is an in-memory implementation of gateway.Backend.
type Backend struct {
	mu         sync.RWMutex
	workspaces map[graph.WorkspaceID]graph.Workspace
	nodes      map[graph.NodeID]graph.Node
	edges      map[graph.EdgeID]graph.Edge
	seq        map[string]uint64 // insertion order for stable listings
	next       uint64

	publisher feed.Publisher
	actor     string
	now       func() time.Time
	logger    *zap.Logger
}

// Option configures a Backend.
type Option func(*Backend)

// WithPublisher echoes committed writes to p.
func WithPublisher(p feed.Publisher) Option {
	return func(b *Backend) { b.publisher = p }
}

// WithActor sets the identity recorded in created_by/updated_by.
func WithActor(actor string) Option {
	return func(b *Backend) { b.actor = actor }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Backend) { b.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(b *Backend) {
		if logger != nil {
			b.logger = logger.Named("memory_backend")
		}
	}
}

// New creates an empty backend.
func New(opts ...Option) *Backend {
	b := &Backend{
		workspaces: make(map[graph.WorkspaceID]graph.Workspace),
		nodes:      make(map[graph.NodeID]graph.Node),
		edges:      make(map[graph.EdgeID]graph.Edge),
		seq:        make(map[string]uint64),
		now:        time.Now,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

var _ gateway.Backend = (*Backend)(nil)

// PutWorkspace registers or replaces a workspace.
func (b *Backend) PutWorkspace(w graph.Workspace) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if w.CreatedAt == "" {
		w.CreatedAt = b.timestamp()
	}
	w.UpdatedAt = b.timestamp()
	b.workspaces[w.ID] = w
}

func (b *Backend) timestamp() string {
	return b.now().UTC().Format(time.RFC3339Nano)
}

func (b *Backend) order(key string) {
	if _, ok := b.seq[key]; !ok {
		b.next++
		b.seq[key] = b.next
	}
}

// ============================================================================
// NODES
// ============================================================================

func (b *Backend) CreateNode(ctx context.Context, in gateway.CreateNodeInput) (graph.Node, error) {
	if err := in.Validate(); err != nil {
		return graph.Node{}, err
	}

	b.mu.Lock()
	ts := b.timestamp()
	n := graph.Node{
		ID:          graph.NodeID(uuid.New().String()),
		WorkspaceID: in.WorkspaceID,
		Type:        in.Type,
		Position:    in.Position,
		Data:        in.Data.Clone(),
		CreatedAt:   ts,
		UpdatedAt:   ts,
		CreatedBy:   b.actor,
		UpdatedBy:   b.actor,
	}
	b.nodes[n.ID] = n
	b.order("n:" + string(n.ID))
	b.mu.Unlock()

	b.publishNode(ctx, feed.EventInsert, n)
	return n, nil
}

func (b *Backend) UpdateNode(ctx context.Context, id graph.NodeID, in gateway.UpdateNodeInput) (graph.Node, error) {
	if err := gateway.RequireID("node", id); err != nil {
		return graph.Node{}, err
	}
	if err := in.Validate(); err != nil {
		return graph.Node{}, err
	}

	b.mu.Lock()
	n, ok := b.nodes[id]
	if !ok {
		b.mu.Unlock()
		return graph.Node{}, nodeNotFound("updateNode", id)
	}
	if in.Position != nil {
		n.Position = *in.Position
	}
	if in.Data != nil {
		n.Data = in.Data.Clone()
	}
	n.UpdatedAt = b.timestamp()
	n.UpdatedBy = b.actor
	b.nodes[id] = n
	b.mu.Unlock()

	b.publishNode(ctx, feed.EventUpdate, n)
	return n, nil
}

func (b *Backend) DeleteNode(ctx context.Context, id graph.NodeID) error {
	if err := gateway.RequireID("node", id); err != nil {
		return err
	}

	b.mu.Lock()
	n, ok := b.nodes[id]
	if !ok {
		b.mu.Unlock()
		return nodeNotFound("deleteNode", id)
	}
	delete(b.nodes, id)
	delete(b.seq, "n:"+string(id))

	var cascaded []graph.Edge
	for eid, e := range b.edges {
		if e.Touches(id) {
			cascaded = append(cascaded, e)
			delete(b.edges, eid)
			delete(b.seq, "e:"+string(eid))
		}
	}
	b.mu.Unlock()

	sort.Slice(cascaded, func(i, j int) bool { return cascaded[i].ID < cascaded[j].ID })
	for _, e := range cascaded {
		b.publish(ctx, feed.Topic{Table: feed.TableEdges, Workspace: e.WorkspaceID}, feed.EventDelete, nil, idRecord(string(e.ID)))
	}
	b.publish(ctx, feed.Topic{Table: feed.TableNodes, Workspace: n.WorkspaceID}, feed.EventDelete, nil, idRecord(string(id)))
	return nil
}

// ============================================================================
// EDGES
// ============================================================================

func (b *Backend) CreateEdge(ctx context.Context, in gateway.CreateEdgeInput) (graph.Edge, error) {
	if err := in.Validate(); err != nil {
		return graph.Edge{}, err
	}

	b.mu.Lock()
	for _, end := range []graph.NodeID{in.Source, in.Target} {
		n, ok := b.nodes[end]
		if !ok || n.WorkspaceID != in.WorkspaceID {
			b.mu.Unlock()
			return graph.Edge{}, apperrors.Validation(apperrors.CodeConstraintViolation, "edge endpoint does not exist").
				WithOperation("createEdge").
				WithResource("node:" + string(end)).
				Build()
		}
	}

	ts := b.timestamp()
	e := graph.Edge{
		ID:           graph.EdgeID(uuid.New().String()),
		WorkspaceID:  in.WorkspaceID,
		SourceNodeID: in.Source,
		TargetNodeID: in.Target,
		Type:         in.Type,
		Data:         in.Data.Clone(),
		CreatedAt:    ts,
		UpdatedAt:    ts,
		CreatedBy:    b.actor,
		UpdatedBy:    b.actor,
	}
	b.edges[e.ID] = e
	b.order("e:" + string(e.ID))
	b.mu.Unlock()

	b.publishEdge(ctx, feed.EventInsert, e)
	return e, nil
}

func (b *Backend) UpdateEdge(ctx context.Context, id graph.EdgeID, in gateway.UpdateEdgeInput) (graph.Edge, error) {
	if err := gateway.RequireID("edge", id); err != nil {
		return graph.Edge{}, err
	}
	if err := in.Validate(); err != nil {
		return graph.Edge{}, err
	}

	b.mu.Lock()
	e, ok := b.edges[id]
	if !ok {
		b.mu.Unlock()
		return graph.Edge{}, edgeNotFound("updateEdge", id)
	}
	e.Data = in.Data.Clone()
	e.UpdatedAt = b.timestamp()
	e.UpdatedBy = b.actor
	b.edges[id] = e
	b.mu.Unlock()

	b.publishEdge(ctx, feed.EventUpdate, e)
	return e, nil
}

func (b *Backend) DeleteEdge(ctx context.Context, id graph.EdgeID) error {
	if err := gateway.RequireID("edge", id); err != nil {
		return err
	}

	b.mu.Lock()
	e, ok := b.edges[id]
	if !ok {
		b.mu.Unlock()
		return edgeNotFound("deleteEdge", id)
	}
	delete(b.edges, id)
	delete(b.seq, "e:"+string(id))
	b.mu.Unlock()

	b.publish(ctx, feed.Topic{Table: feed.TableEdges, Workspace: e.WorkspaceID}, feed.EventDelete, nil, idRecord(string(id)))
	return nil
}

// ============================================================================
// READER
// ============================================================================

func (b *Backend) ListNodes(_ context.Context, ws graph.WorkspaceID) ([]graph.Node, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]graph.Node, 0)
	for _, n := range b.nodes {
		if n.WorkspaceID == ws {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return b.seq["n:"+string(out[i].ID)] < b.seq["n:"+string(out[j].ID)]
	})
	return out, nil
}

func (b *Backend) ListEdges(_ context.Context, ws graph.WorkspaceID) ([]graph.Edge, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]graph.Edge, 0)
	for _, e := range b.edges {
		if e.WorkspaceID == ws {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return b.seq["e:"+string(out[i].ID)] < b.seq["e:"+string(out[j].ID)]
	})
	return out, nil
}

func (b *Backend) GetNode(_ context.Context, id graph.NodeID) (graph.Node, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n, ok := b.nodes[id]
	if !ok {
		return graph.Node{}, nodeNotFound("getNode", id)
	}
	return n, nil
}

func (b *Backend) GetEdge(_ context.Context, id graph.EdgeID) (graph.Edge, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.edges[id]
	if !ok {
		return graph.Edge{}, edgeNotFound("getEdge", id)
	}
	return e, nil
}

func (b *Backend) GetWorkspace(_ context.Context, ws graph.WorkspaceID) (graph.Workspace, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	w, ok := b.workspaces[ws]
	if !ok {
		return graph.Workspace{}, apperrors.NotFound(apperrors.CodeWorkspaceNotFound, "workspace not found").
			WithOperation("getWorkspace").
			WithResource("workspace:" + string(ws)).
			Build()
	}
	return w, nil
}

// ============================================================================
// ECHO
// ============================================================================

func (b *Backend) publishNode(ctx context.Context, event feed.EventType, n graph.Node) {
	row, err := graph.NodeRowFrom(n)
	if err != nil {
		b.logger.Error("Node row encoding failed", zap.String("node", string(n.ID)), zap.Error(err))
		return
	}
	b.publish(ctx, feed.Topic{Table: feed.TableNodes, Workspace: n.WorkspaceID}, event, row, nil)
}

func (b *Backend) publishEdge(ctx context.Context, event feed.EventType, e graph.Edge) {
	row, err := graph.EdgeRowFrom(e)
	if err != nil {
		b.logger.Error("Edge row encoding failed", zap.String("edge", string(e.ID)), zap.Error(err))
		return
	}
	b.publish(ctx, feed.Topic{Table: feed.TableEdges, Workspace: e.WorkspaceID}, event, row, nil)
}

func (b *Backend) publish(ctx context.Context, topic feed.Topic, event feed.EventType, record, old any) {
	if b.publisher == nil {
		return
	}
	change, err := feed.NewChange(topic.Table, event, record, old)
	if err != nil {
		b.logger.Error("Change encoding failed", zap.String("topic", topic.String()), zap.Error(err))
		return
	}
	if err := b.publisher.Publish(ctx, topic, change); err != nil {
		b.logger.Warn("Change echo failed", zap.String("topic", topic.String()), zap.Error(err))
	}
}

func idRecord(id string) map[string]string {
	return map[string]string{"id": id}
}

func nodeNotFound(op string, id graph.NodeID) error {
	return apperrors.NotFound(apperrors.CodeNodeNotFound, "node not found").
		WithOperation(op).
		WithResource(fmt.Sprintf("node:%s", id)).
		Build()
}

func edgeNotFound(op string, id graph.EdgeID) error {
	return apperrors.NotFound(apperrors.CodeEdgeNotFound, "edge not found").
		WithOperation(op).
		WithResource(fmt.Sprintf("edge:%s", id)).
		Build()
}
