// Package graph holds the data model shared by every layer of the
// synchronization core: nodes, edges, workspaces and the snapshot that
// materializes one workspace's graph.
package graph

import (
	"encoding/json"
)

// WorkspaceID identifies the isolation scope that owns one graph.
type WorkspaceID string

// NodeID is the opaque unique identifier of a node within a workspace.
type NodeID string

// EdgeID is the opaque unique identifier of an edge within a workspace.
type EdgeID string

// Node presentation defaults used when a node is created from the canvas
// or when its data carries no color.
const (
	DefaultNodeType  = "default"
	DefaultNodeLabel = "New Node"
	DefaultNodeColor = "#4a90e2"
)

// Position is a point in the 3D scene.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Node is a positioned, labeled vertex in a workspace graph.
//
// Audit fields are carried through untouched; the core never interprets them.
type Node struct {
	ID          NodeID      `json:"id"`
	WorkspaceID WorkspaceID `json:"workspaceId"`
	Type        string      `json:"type"`
	Position    Position    `json:"position"`
	Data        NodeData    `json:"data"`

	CreatedAt string `json:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
	CreatedBy string `json:"createdBy,omitempty"`
	UpdatedBy string `json:"updatedBy,omitempty"`
}

// Label returns the node's display label.
func (n Node) Label() string {
	return n.Data.Label
}

// NodeData is the open-ended payload of a node. The recognized fields are
// typed; any other key survives a decode/encode cycle through Extra.
type NodeData struct {
	Label       string
	Description string
	Color       string
	Icon        string

	// Extra holds keys this core does not recognize.
	Extra map[string]any
}

// ColorOr returns the node color, or fallback when none is set.
func (d NodeData) ColorOr(fallback string) string {
	if d.Color == "" {
		return fallback
	}
	return d.Color
}

// Clone returns a deep-enough copy: Extra is copied so that callers can
// mutate the result without touching a snapshot-owned value.
func (d NodeData) Clone() NodeData {
	d.Extra = cloneExtra(d.Extra)
	return d
}

// MarshalJSON flattens the typed fields and Extra into one JSON object.
func (d NodeData) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.Extra)+4)
	for k, v := range d.Extra {
		out[k] = v
	}
	putString(out, "label", d.Label)
	putString(out, "description", d.Description)
	putString(out, "color", d.Color)
	putString(out, "icon", d.Icon)
	return json.Marshal(out)
}

// UnmarshalJSON splits a JSON object into the typed fields and Extra.
// A JSON null decodes to the zero value.
func (d *NodeData) UnmarshalJSON(b []byte) error {
	raw, err := decodeObject(b)
	if err != nil {
		return err
	}
	*d = NodeData{
		Label:       takeString(raw, "label"),
		Description: takeString(raw, "description"),
		Color:       takeString(raw, "color"),
		Icon:        takeString(raw, "icon"),
	}
	d.Extra = remaining(raw)
	return nil
}
