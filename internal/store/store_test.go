package store

import (
	"sync"
	"testing"

	"github.com/divyanshwrite/worldflow/internal/domain/graph"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	wsA graph.WorkspaceID = "ws-a"
	wsB graph.WorkspaceID = "ws-b"
)

func node(ws graph.WorkspaceID, id, label string) graph.Node {
	return graph.Node{
		ID:          graph.NodeID(id),
		WorkspaceID: ws,
		Type:        graph.DefaultNodeType,
		Data:        graph.NodeData{Label: label},
	}
}

func edge(ws graph.WorkspaceID, id, src, dst string) graph.Edge {
	return graph.Edge{
		ID:           graph.EdgeID(id),
		WorkspaceID:  ws,
		SourceNodeID: graph.NodeID(src),
		TargetNodeID: graph.NodeID(dst),
		Type:         graph.DefaultEdgeType,
	}
}

func newActiveStore(t *testing.T, ws graph.WorkspaceID) *GraphStore {
	t.Helper()
	s := New()
	s.SetWorkspace(ws)
	require.True(t, s.LoadInitial(ws, nil, nil))
	return s
}

type recordingMetrics struct {
	mu      sync.Mutex
	applied []string
	dropped []string
}

func (m *recordingMetrics) OperationApplied(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applied = append(m.applied, kind)
}

func (m *recordingMetrics) OperationDropped(kind, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropped = append(m.dropped, kind+":"+reason)
}

func (m *recordingMetrics) SnapshotSize(int, int) {}

func TestGraphStore_Idempotence(t *testing.T) {
	t.Run("duplicate create", func(t *testing.T) {
		s := newActiveStore(t, wsA)
		n := node(wsA, "n1", "first")

		assert.True(t, s.ApplyNodeCreated(n))
		assert.True(t, s.ApplyNodeCreated(n))

		snap := s.Snapshot()
		require.Len(t, snap.Nodes, 1)
		assert.Equal(t, n, snap.Nodes[0])
	})

	t.Run("update of absent node inserts", func(t *testing.T) {
		s := newActiveStore(t, wsA)

		assert.True(t, s.ApplyNodeUpdated(node(wsA, "n1", "late")))

		got, ok := s.Node("n1")
		require.True(t, ok)
		assert.Equal(t, "late", got.Label())
		assert.Len(t, s.Snapshot().Nodes, 1)
	})

	t.Run("duplicate edge create", func(t *testing.T) {
		s := newActiveStore(t, wsA)
		e := edge(wsA, "e1", "a", "b")

		s.ApplyEdgeCreated(e)
		s.ApplyEdgeUpdated(e)

		assert.Len(t, s.Snapshot().Edges, 1)
	})
}

func TestGraphStore_LastWriterWins(t *testing.T) {
	s := newActiveStore(t, wsA)
	s.ApplyNodeCreated(node(wsA, "n0", "other"))

	s.ApplyNodeUpdated(node(wsA, "1", "A"))
	s.ApplyNodeUpdated(node(wsA, "1", "B"))

	got, ok := s.Node("1")
	require.True(t, ok)
	assert.Equal(t, "B", got.Label())

	// Replacement keeps the original position in the collection.
	s.ApplyNodeUpdated(node(wsA, "n0", "renamed"))
	snap := s.Snapshot()
	require.Len(t, snap.Nodes, 2)
	assert.Equal(t, graph.NodeID("n0"), snap.Nodes[0].ID)
	assert.Equal(t, "renamed", snap.Nodes[0].Label())
}

func TestGraphStore_CascadeDelete(t *testing.T) {
	s := newActiveStore(t, wsA)
	s.ApplyNodeCreated(node(wsA, "n", "n"))
	s.ApplyNodeCreated(node(wsA, "m", "m"))
	s.ApplyNodeCreated(node(wsA, "k", "k"))
	s.ApplyEdgeCreated(edge(wsA, "e1", "n", "m"))
	s.ApplyEdgeCreated(edge(wsA, "e2", "k", "n"))
	s.ApplyEdgeCreated(edge(wsA, "e3", "m", "k"))

	var snaps []graph.Snapshot
	s.OnChange(func(snap graph.Snapshot) { snaps = append(snaps, snap) })

	assert.True(t, s.ApplyNodeDeleted(wsA, "n"))

	require.Len(t, snaps, 1, "cascade happens in one step")
	snap := snaps[0]
	assert.False(t, snap.HasNode("n"))
	require.Len(t, snap.Edges, 1)
	assert.Equal(t, graph.EdgeID("e3"), snap.Edges[0].ID)
}

func TestGraphStore_DeleteAbsent(t *testing.T) {
	s := newActiveStore(t, wsA)
	s.ApplyNodeCreated(node(wsA, "a", "a"))
	s.ApplyNodeCreated(node(wsA, "b", "b"))
	s.ApplyEdgeCreated(edge(wsA, "e1", "a", "b"))
	before := s.Snapshot()

	calls := 0
	s.OnChange(func(graph.Snapshot) { calls++ })
	deleted := 0
	s.OnNodeDeleted(func(graph.WorkspaceID, graph.NodeID) { deleted++ })

	assert.True(t, s.ApplyNodeDeleted(wsA, "missing"))
	assert.True(t, s.ApplyEdgeDeleted(wsA, "missing"))

	assert.Equal(t, before, s.Snapshot())
	assert.Zero(t, calls)
	assert.Zero(t, deleted)
}

func TestGraphStore_DeleteAbsentNodeClearsDanglingEdges(t *testing.T) {
	s := newActiveStore(t, wsA)
	s.ApplyEdgeCreated(edge(wsA, "e1", "ghost", "b"))

	deleted := 0
	s.OnNodeDeleted(func(graph.WorkspaceID, graph.NodeID) { deleted++ })

	assert.True(t, s.ApplyNodeDeleted(wsA, "ghost"))
	assert.Empty(t, s.Snapshot().Edges)
	assert.Zero(t, deleted, "no node existed, so nothing to deselect")
}

func TestGraphStore_DanglingEdgesTolerated(t *testing.T) {
	s := newActiveStore(t, wsA)

	require.True(t, s.ApplyEdgeCreated(edge(wsA, "e1", "a", "b")))
	snap := s.Snapshot()
	assert.Len(t, snap.Edges, 1)
	assert.Empty(t, snap.Renderable())

	s.ApplyNodeCreated(node(wsA, "a", "a"))
	s.ApplyNodeCreated(node(wsA, "b", "b"))
	assert.Len(t, s.Snapshot().Renderable(), 1)
}

func TestGraphStore_WorkspaceIsolation(t *testing.T) {
	metrics := &recordingMetrics{}
	s := New(WithMetrics(metrics))

	s.SetWorkspace(wsA)
	s.ApplyNodeCreated(node(wsA, "a1", "a"))
	s.SetWorkspace(wsB)

	assert.Empty(t, s.Snapshot().Nodes, "switch replaces the snapshot")
	assert.Equal(t, wsB, s.Snapshot().WorkspaceID)

	calls := 0
	s.OnChange(func(graph.Snapshot) { calls++ })

	assert.False(t, s.ApplyNodeCreated(node(wsA, "late", "late")))
	assert.False(t, s.ApplyNodeUpdated(node(wsA, "late", "late")))
	assert.False(t, s.ApplyEdgeCreated(edge(wsA, "e", "x", "y")))
	assert.False(t, s.ApplyNodeDeleted(wsA, "a1"))
	assert.False(t, s.ApplyEdgeDeleted(wsA, "e"))
	assert.False(t, s.LoadInitial(wsA, []graph.Node{node(wsA, "x", "x")}, nil))
	assert.False(t, s.ApplyNodeCreated(node("", "untagged", "u")))

	assert.Empty(t, s.Snapshot().Nodes)
	assert.Zero(t, calls)
	assert.Len(t, metrics.dropped, 7)
	assert.Contains(t, metrics.dropped, "node_created:stale_workspace")

	assert.True(t, s.ApplyNodeCreated(node(wsB, "b1", "b")))
	assert.Equal(t, 1, calls)
}

func TestGraphStore_NoWorkspace(t *testing.T) {
	metrics := &recordingMetrics{}
	s := New(WithMetrics(metrics))

	_, active := s.Workspace()
	assert.False(t, active)
	assert.False(t, s.ApplyNodeCreated(node("", "n1", "x")))
	assert.Equal(t, []string{"node_created:no_workspace"}, metrics.dropped)

	s.SetWorkspace(wsA)
	s.Teardown()
	_, active = s.Workspace()
	assert.False(t, active)
	assert.False(t, s.ApplyNodeCreated(node(wsA, "n1", "x")))
}

func TestGraphStore_LoadInitial(t *testing.T) {
	s := New()
	s.SetWorkspace(wsA)
	s.ApplyNodeCreated(node(wsA, "stale", "dropped by load"))

	ok := s.LoadInitial(wsA,
		[]graph.Node{node(wsA, "n1", "old"), node(wsA, "n2", "two"), node(wsA, "n1", "new")},
		[]graph.Edge{edge(wsA, "e1", "n1", "n2")},
	)
	require.True(t, ok)

	snap := s.Snapshot()
	require.Len(t, snap.Nodes, 2)
	assert.Equal(t, graph.NodeID("n1"), snap.Nodes[0].ID)
	assert.Equal(t, "new", snap.Nodes[0].Label())
	assert.False(t, snap.HasNode("stale"), "load replaces, it does not merge")
	assert.Len(t, snap.Edges, 1)

	// A later feed event for an entity already present is an upsert.
	s.ApplyNodeCreated(node(wsA, "n2", "two again"))
	assert.Len(t, s.Snapshot().Nodes, 2)
}

func TestGraphStore_LoadInitialSkipsForeignEntities(t *testing.T) {
	metrics := &recordingMetrics{}
	s := New(WithMetrics(metrics))
	s.SetWorkspace(wsA)

	unowned := node("", "n3", "no owner")
	ok := s.LoadInitial(wsA,
		[]graph.Node{node(wsA, "n1", "mine"), node(wsB, "n2", "theirs"), unowned},
		[]graph.Edge{edge(wsA, "e1", "n1", "n3"), edge(wsB, "e2", "n2", "n1")},
	)
	require.True(t, ok)

	snap := s.Snapshot()
	assert.True(t, snap.HasNode("n1"))
	assert.False(t, snap.HasNode("n2"))
	require.True(t, snap.HasNode("n3"))
	got, _ := s.Node("n3")
	assert.Equal(t, wsA, got.WorkspaceID)
	require.Len(t, snap.Edges, 1)
	assert.Equal(t, graph.EdgeID("e1"), snap.Edges[0].ID)
	for _, n := range snap.Nodes {
		assert.Equal(t, wsA, n.WorkspaceID)
	}

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	assert.Contains(t, metrics.dropped, "load_initial_entity:"+DropForeignEntity)
}

func TestGraphStore_SnapshotIsStable(t *testing.T) {
	s := newActiveStore(t, wsA)
	s.ApplyNodeCreated(node(wsA, "n1", "one"))

	held := s.Snapshot()
	s.ApplyNodeUpdated(node(wsA, "n1", "changed"))
	s.ApplyNodeCreated(node(wsA, "n2", "two"))
	s.ApplyNodeDeleted(wsA, "n1")

	require.Len(t, held.Nodes, 1)
	assert.Equal(t, "one", held.Nodes[0].Label())
}

func TestGraphStore_Listeners(t *testing.T) {
	t.Run("unsubscribe is idempotent", func(t *testing.T) {
		s := newActiveStore(t, wsA)
		calls := 0
		unsubscribe := s.OnChange(func(graph.Snapshot) { calls++ })

		s.ApplyNodeCreated(node(wsA, "n1", "x"))
		unsubscribe()
		unsubscribe()
		s.ApplyNodeCreated(node(wsA, "n2", "y"))

		assert.Equal(t, 1, calls)
	})

	t.Run("node deletion notification", func(t *testing.T) {
		s := newActiveStore(t, wsA)
		s.ApplyNodeCreated(node(wsA, "n1", "x"))

		var got []graph.NodeID
		s.OnNodeDeleted(func(ws graph.WorkspaceID, id graph.NodeID) {
			assert.Equal(t, wsA, ws)
			got = append(got, id)
		})
		s.ApplyNodeDeleted(wsA, "n1")

		assert.Equal(t, []graph.NodeID{"n1"}, got)
	})

	t.Run("workspace change notification", func(t *testing.T) {
		s := New()
		type move struct{ prev, next graph.WorkspaceID }
		var moves []move
		s.OnWorkspaceChange(func(prev, next graph.WorkspaceID) {
			moves = append(moves, move{prev, next})
		})

		s.SetWorkspace(wsA)
		s.SetWorkspace(wsB)
		s.Teardown()

		assert.Equal(t, []move{{"", wsA}, {wsA, wsB}, {wsB, ""}}, moves)
	})

	t.Run("panicking listener does not break the store", func(t *testing.T) {
		s := newActiveStore(t, wsA)
		calls := 0
		s.OnChange(func(graph.Snapshot) { panic("renderer bug") })
		s.OnChange(func(graph.Snapshot) { calls++ })

		assert.NotPanics(t, func() { s.ApplyNodeCreated(node(wsA, "n1", "x")) })
		assert.Equal(t, 1, calls)
		assert.True(t, s.Snapshot().HasNode("n1"))
	})
}

func TestGraphStore_ConcurrentApply(t *testing.T) {
	s := newActiveStore(t, wsA)

	var (
		mu   sync.Mutex
		last int
	)
	s.OnChange(func(snap graph.Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		n, _ := snap.Len()
		assert.GreaterOrEqual(t, n, last, "notifications arrive in mutation order")
		last = n
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.ApplyNodeCreated(node(wsA, string(rune('A'+i)), "x"))
		}(i)
	}
	wg.Wait()

	assert.Len(t, s.Snapshot().Nodes, 50)
}

func TestGraphStore_EndToEndScenario(t *testing.T) {
	s := New()
	s.SetWorkspace("W")
	require.True(t, s.LoadInitial("W", []graph.Node{}, []graph.Edge{}))

	created := graph.Node{
		ID:          "n1",
		WorkspaceID: "W",
		Type:        graph.DefaultNodeType,
		Position:    graph.Position{X: 1, Y: 2, Z: 3},
		Data:        graph.NodeData{Label: graph.DefaultNodeLabel, Color: graph.DefaultNodeColor},
	}
	require.True(t, s.ApplyNodeCreated(created))

	assert.Equal(t, []graph.Node{created}, s.Snapshot().Nodes)
}
