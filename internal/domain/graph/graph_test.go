package graph

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeData_PreservesUnknownKeys(t *testing.T) {
	in := []byte(`{"label":"Root","color":"#fff","weight":3,"tags":["a","b"]}`)

	var d NodeData
	require.NoError(t, json.Unmarshal(in, &d))

	assert.Equal(t, "Root", d.Label)
	assert.Equal(t, "#fff", d.Color)
	assert.Empty(t, d.Description)
	assert.Equal(t, json.Number("3"), d.Extra["weight"])
	assert.Equal(t, []any{"a", "b"}, d.Extra["tags"])

	out, err := json.Marshal(d)
	require.NoError(t, err)
	assert.JSONEq(t, string(in), string(out))
}

func TestNodeData_NonStringKnownKeyStaysInExtra(t *testing.T) {
	var d NodeData
	require.NoError(t, json.Unmarshal([]byte(`{"label":42}`), &d))

	assert.Empty(t, d.Label)
	assert.Equal(t, json.Number("42"), d.Extra["label"])
}

func TestNodeData_KeepsLargeIntegers(t *testing.T) {
	in := []byte(`{"label":"A","externalId":9007199254740993,"ratio":0.1}`)

	var d NodeData
	require.NoError(t, json.Unmarshal(in, &d))
	assert.Equal(t, json.Number("9007199254740993"), d.Extra["externalId"])

	out, err := json.Marshal(d.Clone())
	require.NoError(t, err)
	assert.Contains(t, string(out), `"externalId":9007199254740993`)
	assert.JSONEq(t, string(in), string(out))
}

func TestNodeData_EmptyKnownKeyRoundTrips(t *testing.T) {
	in := []byte(`{"label":"","color":"#4a90e2"}`)

	var d NodeData
	require.NoError(t, json.Unmarshal(in, &d))
	assert.Empty(t, d.Label)
	assert.Equal(t, "#4a90e2", d.Color)

	out, err := json.Marshal(d)
	require.NoError(t, err)
	assert.JSONEq(t, string(in), string(out))

	d.Label = "Named"
	out, err = json.Marshal(d)
	require.NoError(t, err)
	assert.JSONEq(t, `{"label":"Named","color":"#4a90e2"}`, string(out))
}

func TestNodeData_NullAndRejects(t *testing.T) {
	var d NodeData
	require.NoError(t, json.Unmarshal([]byte(`null`), &d))
	assert.Equal(t, NodeData{}, d)

	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &d))
}

func TestNodeData_ColorOr(t *testing.T) {
	assert.Equal(t, DefaultNodeColor, NodeData{}.ColorOr(DefaultNodeColor))
	assert.Equal(t, "#000000", NodeData{Color: "#000000"}.ColorOr(DefaultNodeColor))
}

func TestNodeData_CloneDetachesExtra(t *testing.T) {
	orig := NodeData{Label: "a", Extra: map[string]any{"k": "v"}}
	c := orig.Clone()
	c.Extra["k"] = "changed"

	assert.Equal(t, "v", orig.Extra["k"])
}

func TestEdgeData_TypeField(t *testing.T) {
	var d EdgeData
	require.NoError(t, json.Unmarshal([]byte(`{"type":"warning","label":"A → B","w":1}`), &d))

	assert.Equal(t, EdgeKindWarning, d.Kind)
	assert.Equal(t, "A → B", d.Label)
	assert.Equal(t, json.Number("1"), d.Extra["w"])

	out, err := json.Marshal(d)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"warning","label":"A → B","w":1}`, string(out))
}

func TestEdgeKind(t *testing.T) {
	tests := []struct {
		kind  EdgeKind
		valid bool
		color string
	}{
		{"", true, "#666666"},
		{EdgeKindDefault, true, "#666666"},
		{EdgeKindSuccess, true, "#44ff44"},
		{EdgeKindWarning, true, "#ffaa00"},
		{EdgeKindError, true, "#ff4444"},
		{"critical", false, "#666666"},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.kind.Valid())
			assert.Equal(t, tt.color, tt.kind.Color())
		})
	}
}

func TestSnapshot_LookupAndRenderable(t *testing.T) {
	s := NewSnapshot("w1",
		[]Node{{ID: "a"}, {ID: "b"}},
		[]Edge{
			{ID: "ab", SourceNodeID: "a", TargetNodeID: "b"},
			{ID: "ac", SourceNodeID: "a", TargetNodeID: "c"},
		},
	)

	n, ok := s.Node("b")
	require.True(t, ok)
	assert.Equal(t, NodeID("b"), n.ID)

	_, ok = s.Node("c")
	assert.False(t, ok)

	e, ok := s.Edge("ac")
	require.True(t, ok)
	assert.True(t, e.Touches("c"))

	r := s.Renderable()
	require.Len(t, r, 1)
	assert.Equal(t, EdgeID("ab"), r[0].ID)
}

func TestSnapshot_ZeroValueLookup(t *testing.T) {
	s := Snapshot{Nodes: []Node{{ID: "x"}}}
	assert.True(t, s.HasNode("x"))
	_, ok := s.Edge("missing")
	assert.False(t, ok)
}

func TestEmptySnapshot_MarshalsArrays(t *testing.T) {
	out, err := json.Marshal(EmptySnapshot("w"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"workspaceId":"w","nodes":[],"edges":[]}`, string(out))
}

func TestNodeRow_RoundTrip(t *testing.T) {
	creator := "user-1"
	row := NodeRow{
		ID:          "n1",
		WorkspaceID: "w1",
		Type:        "default",
		PositionX:   1,
		PositionY:   2,
		PositionZ:   3,
		Data:        json.RawMessage(`{"label":"New Node","color":"#4a90e2"}`),
		CreatedAt:   "2024-05-01T10:00:00+00:00",
		CreatedBy:   &creator,
	}

	n, err := row.Node()
	require.NoError(t, err)
	assert.Equal(t, NodeID("n1"), n.ID)
	assert.Equal(t, WorkspaceID("w1"), n.WorkspaceID)
	assert.Equal(t, Position{X: 1, Y: 2, Z: 3}, n.Position)
	assert.Equal(t, "New Node", n.Label())
	assert.Equal(t, "user-1", n.CreatedBy)
	assert.Empty(t, n.UpdatedBy)

	back, err := NodeRowFrom(n)
	require.NoError(t, err)
	assert.Equal(t, row.ID, back.ID)
	assert.Equal(t, row.PositionZ, back.PositionZ)
	assert.JSONEq(t, string(row.Data), string(back.Data))
	require.NotNil(t, back.CreatedBy)
	assert.Nil(t, back.UpdatedBy)
}

func TestEdgeRow_Decode(t *testing.T) {
	var row EdgeRow
	require.NoError(t, json.Unmarshal([]byte(`{
		"id":"e1","workspace_id":"w1","source_node_id":"a","target_node_id":"b",
		"type":"default","data":{"type":"error"},"created_by":null
	}`), &row))

	e, err := row.Edge()
	require.NoError(t, err)
	assert.Equal(t, NodeID("a"), e.SourceNodeID)
	assert.Equal(t, EdgeKindError, e.Data.Kind)
	assert.Empty(t, e.CreatedBy)
}

func TestWorkspaceRow(t *testing.T) {
	desc := "team space"
	ws := WorkspaceRow{ID: "w1", Name: "Main", Description: &desc, UserID: "u1"}.Workspace()
	assert.Equal(t, WorkspaceID("w1"), ws.ID)
	assert.Equal(t, "team space", ws.Description)
	assert.Equal(t, "u1", ws.OwnerID)
}
