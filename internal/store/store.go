// Package store owns the canonical in-memory graph of the active workspace.
//
// GraphStore merges three streams into one snapshot: results of locally
// initiated commands, the bulk initial load, and change-feed events from
// other clients. Conflicts resolve last-writer-wins by entity id in call
// order. Every operation carries the workspace it was produced for, and
// anything tagged with a workspace other than the active one is dropped.
package store

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/divyanshwrite/worldflow/internal/domain/graph"

	"go.uber.org/zap"
)

// Listener receives the new snapshot after every mutation. It is not a diff.
type Listener func(graph.Snapshot)

// NodeDeletedListener is told about every node removed from the snapshot,
// so that selection or editor state held on it can be cleared.
type NodeDeletedListener func(ws graph.WorkspaceID, id graph.NodeID)

// WorkspaceListener is told when the active workspace changes. prev is
// empty on the first activation; next is empty on teardown.
type WorkspaceListener func(prev, next graph.WorkspaceID)

// Metrics receives store counters. observability.Collector implements it.
type Metrics interface {
	OperationApplied(kind string)
	OperationDropped(kind, reason string)
	SnapshotSize(nodes, edges int)
}

// Drop reasons reported to Metrics.
const (
	DropNoWorkspace    = "no_workspace"
	DropStaleWorkspace = "stale_workspace"
	DropForeignEntity  = "foreign_entity"
)

// GraphStore is the single owner of the graph snapshot.
//
// Mutations are serialized, and listeners run synchronously in mutation
// order. Listeners must not call mutating methods of the same store from
// inside the callback; hand the work to another goroutine instead.
type GraphStore struct {
	mu       sync.Mutex // serializes mutations
	notifyMu sync.Mutex // keeps listener delivery in mutation order

	snap   atomic.Pointer[graph.Snapshot]
	active bool

	nextID         uint64
	listeners      map[uint64]Listener
	nodeDeleted    map[uint64]NodeDeletedListener
	workspaceMoves map[uint64]WorkspaceListener

	logger  *zap.Logger
	metrics Metrics
}

// Option configures a GraphStore.
type Option func(*GraphStore)

// WithLogger sets the store logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *GraphStore) {
		if logger != nil {
			s.logger = logger.Named("graph_store")
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(s *GraphStore) {
		if m != nil {
			s.metrics = m
		}
	}
}

// New creates a store with no active workspace.
func New(opts ...Option) *GraphStore {
	s := &GraphStore{
		listeners:      make(map[uint64]Listener),
		nodeDeleted:    make(map[uint64]NodeDeletedListener),
		workspaceMoves: make(map[uint64]WorkspaceListener),
		logger:         zap.NewNop(),
		metrics:        noopMetrics{},
	}
	for _, opt := range opts {
		opt(s)
	}
	empty := graph.EmptySnapshot("")
	s.snap.Store(&empty)
	return s
}

// ============================================================================
// READ API
// ============================================================================

// Snapshot returns the current snapshot. The value is immutable and safe to
// iterate while other goroutines apply operations.
func (s *GraphStore) Snapshot() graph.Snapshot {
	return *s.snap.Load()
}

// Workspace returns the active workspace id and whether one is active.
func (s *GraphStore) Workspace() (graph.WorkspaceID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Load().WorkspaceID, s.active
}

// Node looks a node up in the current snapshot.
func (s *GraphStore) Node(id graph.NodeID) (graph.Node, bool) {
	return s.Snapshot().Node(id)
}

// Edge looks an edge up in the current snapshot.
func (s *GraphStore) Edge(id graph.EdgeID) (graph.Edge, bool) {
	return s.Snapshot().Edge(id)
}

// ============================================================================
// WORKSPACE LIFECYCLE
// ============================================================================

// SetWorkspace replaces the snapshot with an empty one for ws. It is the only
// way the active workspace changes. Workspace listeners are told first so
// the feed owner can release the previous subscription, then change
// listeners receive the empty snapshot.
func (s *GraphStore) SetWorkspace(ws graph.WorkspaceID) {
	s.mu.Lock()
	prev := s.snap.Load().WorkspaceID
	if !s.active {
		prev = ""
	}
	next := graph.EmptySnapshot(ws)
	s.snap.Store(&next)
	s.active = ws != ""

	s.logger.Info("Workspace activated",
		zap.String("workspace", string(ws)),
		zap.String("previous", string(prev)),
	)

	moves, changes := s.workspaceListenersLocked(), s.changeListenersLocked()
	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()

	for _, fn := range moves {
		s.safeCall("workspace", func() { fn(prev, ws) })
	}
	s.deliver(changes, next)
}

// Teardown discards the snapshot and leaves no workspace active.
func (s *GraphStore) Teardown() {
	s.SetWorkspace("")
}

// LoadInitial bulk-replaces the snapshot contents for ws. Repeated ids in the
// input collapse to one entry holding the last value, and entities owned by
// another workspace are left out. It reports false, and
// changes nothing, when ws is not the active workspace.
func (s *GraphStore) LoadInitial(ws graph.WorkspaceID, nodes []graph.Node, edges []graph.Edge) bool {
	s.mu.Lock()
	cur := s.snap.Load()
	if reason, ok := s.acceptLocked(ws, cur); !ok {
		s.mu.Unlock()
		s.drop("load_initial", ws, reason)
		return false
	}

	keptNodes, foreignNodes := dedupeNodes(ws, nodes)
	keptEdges, foreignEdges := dedupeEdges(ws, edges)
	next := graph.NewSnapshot(ws, keptNodes, keptEdges)
	s.snap.Store(&next)
	if foreign := foreignNodes + foreignEdges; foreign > 0 {
		s.metrics.OperationDropped("load_initial_entity", DropForeignEntity)
		s.logger.Warn("Skipped entities owned by another workspace",
			zap.String("workspace", string(ws)),
			zap.Int("nodes", foreignNodes),
			zap.Int("edges", foreignEdges),
		)
	}
	s.metrics.OperationApplied("load_initial")
	s.metrics.SnapshotSize(next.Len())

	s.logger.Debug("Initial graph loaded",
		zap.String("workspace", string(ws)),
		zap.Int("nodes", len(next.Nodes)),
		zap.Int("edges", len(next.Edges)),
	)

	changes := s.changeListenersLocked()
	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()

	s.deliver(changes, next)
	return true
}

// ============================================================================
// MUTATION API
// ============================================================================

// Apply applies one operation with last-writer-wins semantics by entity id.
//
// Created and updated operations upsert, so a duplicate create or an update
// for an absent entity leaves exactly one entry. Deleting a node also removes
// every edge that references it. Apply reports whether the operation was
// accepted for the active workspace; a delete of an absent id is accepted
// but changes nothing and notifies no one.
func (s *GraphStore) Apply(op Operation) bool {
	s.mu.Lock()
	cur := s.snap.Load()
	if reason, ok := s.acceptLocked(op.WorkspaceID, cur); !ok {
		s.mu.Unlock()
		s.drop(op.Kind.String(), op.WorkspaceID, reason)
		return false
	}

	next, changed, deleted := reduce(*cur, op)
	if !changed {
		s.mu.Unlock()
		s.logger.Debug("Operation left snapshot unchanged",
			zap.Stringer("op", op.Kind),
			zap.String("workspace", string(op.WorkspaceID)),
		)
		return true
	}

	s.snap.Store(&next)
	s.metrics.OperationApplied(op.Kind.String())
	s.metrics.SnapshotSize(next.Len())

	changes := s.changeListenersLocked()
	var removed []NodeDeletedListener
	if deleted {
		removed = s.nodeDeletedListenersLocked()
	}
	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()

	s.deliver(changes, next)
	for _, fn := range removed {
		s.safeCall("node_deleted", func() { fn(op.WorkspaceID, op.NodeID) })
	}
	return true
}

// ApplyNodeCreated upserts n.
func (s *GraphStore) ApplyNodeCreated(n graph.Node) bool {
	return s.Apply(NodeCreated(n))
}

// ApplyNodeUpdated upserts n; an update for an absent node inserts it.
func (s *GraphStore) ApplyNodeUpdated(n graph.Node) bool {
	return s.Apply(NodeUpdated(n))
}

// ApplyNodeDeleted removes the node and cascades to every edge touching it.
func (s *GraphStore) ApplyNodeDeleted(ws graph.WorkspaceID, id graph.NodeID) bool {
	return s.Apply(NodeDeleted(ws, id))
}

// ApplyEdgeCreated upserts e. Endpoints are not checked.
func (s *GraphStore) ApplyEdgeCreated(e graph.Edge) bool {
	return s.Apply(EdgeCreated(e))
}

// ApplyEdgeUpdated upserts e.
func (s *GraphStore) ApplyEdgeUpdated(e graph.Edge) bool {
	return s.Apply(EdgeUpdated(e))
}

// ApplyEdgeDeleted removes the edge; no cascade.
func (s *GraphStore) ApplyEdgeDeleted(ws graph.WorkspaceID, id graph.EdgeID) bool {
	return s.Apply(EdgeDeleted(ws, id))
}

// ============================================================================
// SUBSCRIPTIONS
// ============================================================================

// OnChange registers a listener invoked after every mutation with the new
// snapshot. The returned function unsubscribes and may be called repeatedly.
func (s *GraphStore) OnChange(fn Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.register()
	s.listeners[id] = fn
	return s.unsubscriber(func() { delete(s.listeners, id) })
}

// OnNodeDeleted registers a deletion listener.
func (s *GraphStore) OnNodeDeleted(fn NodeDeletedListener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.register()
	s.nodeDeleted[id] = fn
	return s.unsubscriber(func() { delete(s.nodeDeleted, id) })
}

// OnWorkspaceChange registers a workspace-switch listener.
func (s *GraphStore) OnWorkspaceChange(fn WorkspaceListener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.register()
	s.workspaceMoves[id] = fn
	return s.unsubscriber(func() { delete(s.workspaceMoves, id) })
}

// ============================================================================
// INTERNALS
// ============================================================================

func (s *GraphStore) acceptLocked(ws graph.WorkspaceID, cur *graph.Snapshot) (string, bool) {
	if !s.active {
		return DropNoWorkspace, false
	}
	if ws != cur.WorkspaceID {
		return DropStaleWorkspace, false
	}
	return "", true
}

func (s *GraphStore) drop(kind string, ws graph.WorkspaceID, reason string) {
	s.metrics.OperationDropped(kind, reason)
	s.logger.Debug("Dropped operation for inactive workspace",
		zap.String("op", kind),
		zap.String("workspace", string(ws)),
		zap.String("reason", reason),
	)
}

func (s *GraphStore) register() uint64 {
	s.nextID++
	return s.nextID
}

func (s *GraphStore) unsubscriber(remove func()) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			remove()
		})
	}
}

// Listener maps are copied in registration order so delivery is stable.
func (s *GraphStore) changeListenersLocked() []Listener {
	out := make([]Listener, 0, len(s.listeners))
	for _, id := range sortedKeys(s.listeners) {
		out = append(out, s.listeners[id])
	}
	return out
}

func (s *GraphStore) nodeDeletedListenersLocked() []NodeDeletedListener {
	out := make([]NodeDeletedListener, 0, len(s.nodeDeleted))
	for _, id := range sortedKeys(s.nodeDeleted) {
		out = append(out, s.nodeDeleted[id])
	}
	return out
}

func (s *GraphStore) workspaceListenersLocked() []WorkspaceListener {
	out := make([]WorkspaceListener, 0, len(s.workspaceMoves))
	for _, id := range sortedKeys(s.workspaceMoves) {
		out = append(out, s.workspaceMoves[id])
	}
	return out
}

func sortedKeys[V any](m map[uint64]V) []uint64 {
	keys := make([]uint64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func (s *GraphStore) deliver(listeners []Listener, snap graph.Snapshot) {
	for _, fn := range listeners {
		s.safeCall("change", func() { fn(snap) })
	}
}

// safeCall isolates the store from a panicking listener.
func (s *GraphStore) safeCall(kind string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Store listener panicked",
				zap.String("listener", kind),
				zap.Any("panic", r),
			)
		}
	}()
	fn()
}

type noopMetrics struct{}

func (noopMetrics) OperationApplied(string)        {}
func (noopMetrics) OperationDropped(string, string) {}
func (noopMetrics) SnapshotSize(int, int)           {}
