// Package session owns the lifetime of the active workspace: resolving it,
// loading its graph, and holding its change-feed subscription until the
// workspace changes or the process shuts down.
package session

import (
	"context"
	"sync"

	"github.com/divyanshwrite/worldflow/internal/domain/graph"
	apperrors "github.com/divyanshwrite/worldflow/internal/errors"
	"github.com/divyanshwrite/worldflow/internal/feed"
	"github.com/divyanshwrite/worldflow/internal/gateway"
	"github.com/divyanshwrite/worldflow/internal/store"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Manager opens at most one Session at a time.
type Manager struct {
	reader  gateway.Reader
	store   *store.GraphStore
	adapter *feed.Adapter
	logger  *zap.Logger

	mu      sync.Mutex // serializes Open and Close
	current *Session
}

// NewManager creates a session manager.
func NewManager(reader gateway.Reader, st *store.GraphStore, adapter *feed.Adapter, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		reader:  reader,
		store:   st,
		adapter: adapter,
		logger:  logger.Named("session"),
	}
}

// Session is the release handle of an opened workspace.
type Session struct {
	workspace graph.Workspace
	sub       *feed.Subscription
	once      sync.Once
}

// Workspace returns the resolved workspace.
func (s *Session) Workspace() graph.Workspace {
	return s.workspace
}

// Close releases the change-feed subscription. It may be called any number
// of times; the subscription is released once.
func (s *Session) Close() {
	s.once.Do(s.sub.Unsubscribe)
}

// Open makes ws the active workspace.
//
// The workspace is resolved first, so an unknown id leaves the current
// session running. Then the current session is closed, the store is reset,
// the feed is subscribed and the initial graph is fetched. Feed events that
// arrive during the fetch are held back and replayed after LoadInitial, so
// they win over the fetched rows.
func (m *Manager) Open(ctx context.Context, ws graph.WorkspaceID) (*Session, error) {
	if err := gateway.RequireID("workspace", ws); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	w, err := m.reader.GetWorkspace(ctx, ws)
	if err != nil {
		return nil, err
	}

	if m.current != nil {
		m.current.Close()
		m.current = nil
	}
	m.store.SetWorkspace(ws)

	buf := &bufferedSink{next: m.store, buffering: true}
	sub, err := m.adapter.Subscribe(ctx, ws, buf)
	if err != nil {
		m.store.Teardown()
		return nil, err
	}

	nodes, edges, err := m.fetch(ctx, ws)
	if err != nil {
		sub.Unsubscribe()
		m.store.Teardown()
		return nil, err
	}

	if !m.store.LoadInitial(ws, nodes, edges) {
		m.logger.Warn("Initial load dropped; workspace changed underneath the session",
			zap.String("workspace", string(ws)),
		)
	}
	replayed := buf.flush()

	m.logger.Info("Workspace session opened",
		zap.String("workspace", string(ws)),
		zap.String("name", w.Name),
		zap.Int("nodes", len(nodes)),
		zap.Int("edges", len(edges)),
		zap.Int("replayed", replayed),
	)

	m.current = &Session{workspace: w, sub: sub}
	return m.current, nil
}

// Current returns the open session, if any.
func (m *Manager) Current() (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current, m.current != nil
}

// Close releases the current session and tears the store down.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return
	}
	m.current.Close()
	m.current = nil
	m.store.Teardown()
	m.logger.Info("Workspace session closed")
}

func (m *Manager) fetch(ctx context.Context, ws graph.WorkspaceID) ([]graph.Node, []graph.Edge, error) {
	g, ctx := errgroup.WithContext(ctx)

	var nodes []graph.Node
	var edges []graph.Edge

	g.Go(func() error {
		var err error
		nodes, err = m.reader.ListNodes(ctx, ws)
		return err
	})
	g.Go(func() error {
		var err error
		edges, err = m.reader.ListEdges(ctx, ws)
		return err
	})

	if err := g.Wait(); err != nil {
		m.logger.Error("Failed to fetch initial graph", zap.String("workspace", string(ws)), zap.Error(err))
		return nil, nil, apperrors.Wrap(err, "session.open", "failed to fetch initial graph")
	}
	return nodes, edges, nil
}

// bufferedSink queues operations until flush, then forwards them directly.
type bufferedSink struct {
	next feed.Sink

	mu        sync.Mutex
	buffering bool
	queue     []store.Operation
}

func (b *bufferedSink) Apply(op store.Operation) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.buffering {
		b.queue = append(b.queue, op)
		return true
	}
	return b.next.Apply(op)
}

// flush replays the queue in arrival order and stops buffering. Operations
// arriving meanwhile wait on the lock, so order is kept.
func (b *bufferedSink) flush() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, op := range b.queue {
		b.next.Apply(op)
	}
	n := len(b.queue)
	b.queue = nil
	b.buffering = false
	return n
}
