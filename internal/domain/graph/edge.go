package graph

import (
	"encoding/json"
)

// DefaultEdgeType is the type tag given to edges created by linking.
const DefaultEdgeType = "default"

// EdgeKind is the presentation label of an edge, stored under data.type.
type EdgeKind string

const (
	EdgeKindDefault EdgeKind = "default"
	EdgeKindSuccess EdgeKind = "success"
	EdgeKindWarning EdgeKind = "warning"
	EdgeKindError   EdgeKind = "error"
)

// Valid reports whether k is one of the enumerated kinds. The empty kind is
// valid and renders as the default.
func (k EdgeKind) Valid() bool {
	switch k {
	case "", EdgeKindDefault, EdgeKindSuccess, EdgeKindWarning, EdgeKindError:
		return true
	}
	return false
}

// Color is the line color a renderer uses for the kind.
func (k EdgeKind) Color() string {
	switch k {
	case EdgeKindError:
		return "#ff4444"
	case EdgeKindWarning:
		return "#ffaa00"
	case EdgeKindSuccess:
		return "#44ff44"
	default:
		return "#666666"
	}
}

// Edge is a directed, typed connection between two nodes of one workspace.
// Endpoints are not validated; an edge may reference a node the snapshot
// does not hold (yet).
type Edge struct {
	ID           EdgeID      `json:"id"`
	WorkspaceID  WorkspaceID `json:"workspaceId"`
	SourceNodeID NodeID      `json:"sourceNodeId"`
	TargetNodeID NodeID      `json:"targetNodeId"`
	Type         string      `json:"type"`
	Data         EdgeData    `json:"data"`

	CreatedAt string `json:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
	CreatedBy string `json:"createdBy,omitempty"`
	UpdatedBy string `json:"updatedBy,omitempty"`
}

// Touches reports whether the edge has id as its source or target.
func (e Edge) Touches(id NodeID) bool {
	return e.SourceNodeID == id || e.TargetNodeID == id
}

// EdgeData is the open-ended payload of an edge.
type EdgeData struct {
	Kind  EdgeKind
	Label string

	// Extra holds keys this core does not recognize.
	Extra map[string]any
}

// Clone copies Extra so the result can be mutated freely.
func (d EdgeData) Clone() EdgeData {
	d.Extra = cloneExtra(d.Extra)
	return d
}

// MarshalJSON flattens Kind (as "type"), Label and Extra into one object.
func (d EdgeData) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.Extra)+2)
	for k, v := range d.Extra {
		out[k] = v
	}
	putString(out, "type", string(d.Kind))
	putString(out, "label", d.Label)
	return json.Marshal(out)
}

// UnmarshalJSON splits a JSON object into Kind, Label and Extra. Values
// of data.type outside the enumerated set are still decoded; callers that
// care use EdgeKind.Valid.
func (d *EdgeData) UnmarshalJSON(b []byte) error {
	raw, err := decodeObject(b)
	if err != nil {
		return err
	}
	*d = EdgeData{
		Kind:  EdgeKind(takeString(raw, "type")),
		Label: takeString(raw, "label"),
	}
	d.Extra = remaining(raw)
	return nil
}
