package linking

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/divyanshwrite/worldflow/internal/application/commands"
	"github.com/divyanshwrite/worldflow/internal/domain/graph"
	apperrors "github.com/divyanshwrite/worldflow/internal/errors"
	"github.com/divyanshwrite/worldflow/internal/gateway/memory"
	"github.com/divyanshwrite/worldflow/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ws graph.WorkspaceID = "W"

// recordingCommands records edge commands and can be told to fail.
type recordingCommands struct {
	mu    sync.Mutex
	edges []commands.CreateEdgeCommand
	fail  error
}

func (r *recordingCommands) CreateNodeAt(_ context.Context, pos graph.Position) (graph.Node, error) {
	return graph.Node{ID: "canvas", WorkspaceID: ws, Position: pos}, nil
}

func (r *recordingCommands) CreateEdge(_ context.Context, cmd commands.CreateEdgeCommand) (graph.Edge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.edges = append(r.edges, cmd)
	if r.fail != nil {
		return graph.Edge{}, r.fail
	}
	return graph.Edge{ID: "e1", WorkspaceID: ws, SourceNodeID: cmd.Source, TargetNodeID: cmd.Target, Type: cmd.Type, Data: cmd.Data}, nil
}

type recordingObserver struct {
	selected []graph.NodeID
	cleared  int
}

func (o *recordingObserver) NodeSelected(n graph.Node) { o.selected = append(o.selected, n.ID) }
func (o *recordingObserver) SelectionCleared()         { o.cleared++ }

type nodes map[graph.NodeID]graph.Node

func (n nodes) Node(id graph.NodeID) (graph.Node, bool) {
	node, ok := n[id]
	return node, ok
}

func twoNodes() nodes {
	return nodes{
		"X": {ID: "X", WorkspaceID: ws, Data: graph.NodeData{Label: "Alpha"}},
		"Y": {ID: "Y", WorkspaceID: ws, Data: graph.NodeData{Label: "Beta"}},
	}
}

func TestSameNodeTwiceStaysArmed(t *testing.T) {
	cmds := &recordingCommands{}
	m := NewMachine(twoNodes(), cmds, nil, nil)
	ctx := context.Background()

	m.EnterLinkingMode()
	res, err := m.OnNodeClicked(ctx, "X")
	require.NoError(t, err)
	assert.Equal(t, OutcomeArmed, res.Outcome)

	res, err = m.OnNodeClicked(ctx, "X")
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, res.Outcome)
	assert.Equal(t, State{Mode: Linking, Armed: "X"}, m.State())
	assert.Empty(t, cmds.edges)
}

func TestTwoNodesEmitOneEdgeAndReturnIdle(t *testing.T) {
	cmds := &recordingCommands{}
	m := NewMachine(twoNodes(), cmds, nil, nil)
	ctx := context.Background()

	m.EnterLinkingMode()
	_, err := m.OnNodeClicked(ctx, "X")
	require.NoError(t, err)
	res, err := m.OnNodeClicked(ctx, "Y")
	require.NoError(t, err)

	require.Len(t, cmds.edges, 1)
	assert.Equal(t, commands.CreateEdgeCommand{
		Source: "X",
		Target: "Y",
		Type:   graph.DefaultEdgeType,
		Data:   graph.EdgeData{Label: "Alpha → Beta"},
	}, cmds.edges[0])

	assert.Equal(t, OutcomeLinked, res.Outcome)
	require.NotNil(t, res.Edge)
	assert.Equal(t, graph.NodeID("X"), res.Edge.SourceNodeID)
	assert.Equal(t, State{Mode: Idle}, m.State())
}

func TestFailedLinkDoesNotRollBack(t *testing.T) {
	down := apperrors.Connection(apperrors.CodeTransport, "backend unreachable").Build()
	cmds := &recordingCommands{fail: down}
	m := NewMachine(twoNodes(), cmds, nil, nil)
	ctx := context.Background()

	m.EnterLinkingMode()
	_, _ = m.OnNodeClicked(ctx, "X")
	res, err := m.OnNodeClicked(ctx, "Y")

	assert.ErrorIs(t, err, down)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, State{Mode: Idle}, m.State())
	assert.Len(t, cmds.edges, 1)
}

func TestIdleClickSelects(t *testing.T) {
	obs := &recordingObserver{}
	m := NewMachine(twoNodes(), &recordingCommands{}, obs, nil)

	res, err := m.OnNodeClicked(context.Background(), "Y")
	require.NoError(t, err)
	assert.Equal(t, OutcomeSelected, res.Outcome)
	assert.Equal(t, State{Mode: Idle, Selected: "Y"}, m.State())
	assert.Equal(t, []graph.NodeID{"Y"}, obs.selected)

	m.EnterLinkingMode()
	assert.Equal(t, 1, obs.cleared, "entering linking mode clears the selection")
	assert.Equal(t, State{Mode: Linking}, m.State())

	assert.Equal(t, State{Mode: Linking}, m.EnterLinkingMode())
	assert.Equal(t, 1, obs.cleared)
}

func TestExitDiscardsArmedNode(t *testing.T) {
	cmds := &recordingCommands{}
	m := NewMachine(twoNodes(), cmds, nil, nil)
	ctx := context.Background()

	m.EnterLinkingMode()
	_, _ = m.OnNodeClicked(ctx, "X")
	assert.Equal(t, State{Mode: Idle}, m.ExitLinkingMode())

	m.EnterLinkingMode()
	res, err := m.OnNodeClicked(ctx, "Y")
	require.NoError(t, err)
	assert.Equal(t, OutcomeArmed, res.Outcome, "previous armed node was discarded")
	assert.Empty(t, cmds.edges)
}

func TestExitWhileIdleKeepsSelection(t *testing.T) {
	obs := &recordingObserver{}
	m := NewMachine(twoNodes(), &recordingCommands{}, obs, nil)

	_, err := m.OnNodeClicked(context.Background(), "X")
	require.NoError(t, err)

	assert.Equal(t, State{Mode: Idle, Selected: "X"}, m.ExitLinkingMode())
	assert.Equal(t, State{Mode: Idle, Selected: "X"}, m.State())
	assert.Zero(t, obs.cleared)
}

func TestExitWhileLinkingDoesNotNotify(t *testing.T) {
	obs := &recordingObserver{}
	m := NewMachine(twoNodes(), &recordingCommands{}, obs, nil)

	m.EnterLinkingMode()
	_, err := m.OnNodeClicked(context.Background(), "X")
	require.NoError(t, err)
	assert.Equal(t, 1, obs.cleared)

	assert.Equal(t, State{Mode: Idle}, m.ExitLinkingMode())
	assert.Equal(t, 1, obs.cleared, "nothing was selected while linking")
}

func TestStateJSON(t *testing.T) {
	tests := []struct {
		name  string
		state State
		json  string
	}{
		{"idle", State{Mode: Idle}, `{"mode":"idle"}`},
		{"idle with selection", State{Mode: Idle, Selected: "X"}, `{"mode":"idle","selected":"X"}`},
		{"linking", State{Mode: Linking}, `{"mode":"linking"}`},
		{"armed", State{Mode: Linking, Armed: "X"}, `{"mode":"linking","armed":"X"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.state)
			require.NoError(t, err)
			assert.JSONEq(t, tt.json, string(data))

			var got State
			require.NoError(t, json.Unmarshal(data, &got))
			assert.Equal(t, tt.state, got)
		})
	}

	var st State
	assert.Error(t, json.Unmarshal([]byte(`{"mode":"dragging"}`), &st))
}

func TestUnknownNodeClick(t *testing.T) {
	m := NewMachine(twoNodes(), &recordingCommands{}, nil, nil)
	m.EnterLinkingMode()

	_, err := m.OnNodeClicked(context.Background(), "ghost")
	assert.True(t, apperrors.IsValidation(err))
	assert.Equal(t, State{Mode: Linking}, m.State())
}

func TestCanvasClickIgnoresMode(t *testing.T) {
	m := NewMachine(twoNodes(), &recordingCommands{}, nil, nil)
	ctx := context.Background()

	m.EnterLinkingMode()
	_, _ = m.OnNodeClicked(ctx, "X")

	n, err := m.OnCanvasClicked(ctx, graph.Position{X: 4})
	require.NoError(t, err)
	assert.Equal(t, graph.Position{X: 4}, n.Position)
	assert.Equal(t, State{Mode: Linking, Armed: "X"}, m.State())
}

func TestStoreNotificationsClearState(t *testing.T) {
	gs := store.New()
	gs.SetWorkspace(ws)
	x := graph.Node{ID: "X", WorkspaceID: ws}
	y := graph.Node{ID: "Y", WorkspaceID: ws}
	gs.LoadInitial(ws, []graph.Node{x, y}, nil)

	obs := &recordingObserver{}
	m := NewMachine(gs, &recordingCommands{}, obs, nil)
	detach := m.Attach(gs)
	defer detach()
	ctx := context.Background()

	_, err := m.OnNodeClicked(ctx, "X")
	require.NoError(t, err)
	gs.ApplyNodeDeleted(ws, "X")
	assert.Equal(t, State{Mode: Idle}, m.State())
	assert.Equal(t, 1, obs.cleared)

	m.EnterLinkingMode()
	_, err = m.OnNodeClicked(ctx, "Y")
	require.NoError(t, err)
	gs.ApplyNodeDeleted(ws, "Y")
	assert.Equal(t, State{Mode: Linking}, m.State(), "disarmed, still linking")

	gs.SetWorkspace("other")
	assert.Equal(t, State{Mode: Idle}, m.State())
}

// TestEndToEnd runs the canvas and linking flow against the real store,
// command service and in-memory backend.
func TestEndToEnd(t *testing.T) {
	gs := store.New()
	gs.SetWorkspace(ws)
	require.True(t, gs.LoadInitial(ws, nil, nil))

	svc := commands.NewService(memory.New(), gs, nil)
	m := NewMachine(gs, svc, nil, nil)
	defer m.Attach(gs)()
	ctx := context.Background()

	n, err := m.OnCanvasClicked(ctx, graph.Position{X: 1, Y: 2, Z: 3})
	require.NoError(t, err)
	assert.Equal(t, graph.Position{X: 1, Y: 2, Z: 3}, n.Position)
	assert.Equal(t, "New Node", n.Data.Label)
	assert.Equal(t, "#4a90e2", n.Data.Color)
	assert.Equal(t, []graph.Node{n}, gs.Snapshot().Nodes)

	m.EnterLinkingMode()
	res, err := m.OnNodeClicked(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeArmed, res.Outcome)
	assert.Equal(t, State{Mode: Linking, Armed: n.ID}, m.State())
	assert.Empty(t, gs.Snapshot().Edges)

	other, err := m.OnCanvasClicked(ctx, graph.Position{})
	require.NoError(t, err)
	res, err = m.OnNodeClicked(ctx, other.ID)
	require.NoError(t, err)
	require.NotNil(t, res.Edge)
	assert.Equal(t, "New Node → New Node", res.Edge.Data.Label)

	snap := gs.Snapshot()
	assert.Equal(t, []graph.Edge{*res.Edge}, snap.Edges)
	assert.Equal(t, []graph.Edge{*res.Edge}, snap.Renderable())
}
