// Package commands contains the UI-level write actions of the graph editor.
//
// Each action captures the active workspace before it calls the gateway and
// feeds the returned entity into the store tagged with that workspace, so a
// result that lands after a workspace switch is dropped instead of leaking
// into the new graph.
package commands

import (
	"github.com/divyanshwrite/worldflow/internal/domain/graph"
	apperrors "github.com/divyanshwrite/worldflow/internal/errors"
	"github.com/divyanshwrite/worldflow/internal/validation"
)

// CreateNodeCommand creates a node in the active workspace. Empty Type and
// Data fields fall back to the canvas defaults.
type CreateNodeCommand struct {
	Type     string         `json:"type" validate:"omitempty,max=64"`
	Position graph.Position `json:"position"`
	Data     graph.NodeData `json:"data"`
}

// SaveNodeFieldsCommand is what the node editor submits. The fields are
// merged into the node's existing data; other keys survive.
type SaveNodeFieldsCommand struct {
	NodeID      graph.NodeID `json:"nodeId" validate:"notblank"`
	Label       string       `json:"label" validate:"max=200"`
	Description string       `json:"description" validate:"max=2000"`
	Color       string       `json:"color" validate:"omitempty,hexcolor"`
}

// Validate checks the command fields.
func (c SaveNodeFieldsCommand) Validate() error {
	return validation.Struct(c)
}

// CreateEdgeCommand links Source to Target in the active workspace.
type CreateEdgeCommand struct {
	Source graph.NodeID   `json:"sourceNodeId" validate:"notblank"`
	Target graph.NodeID   `json:"targetNodeId" validate:"notblank,nefield=Source"`
	Type   string         `json:"type" validate:"omitempty,max=64"`
	Data   graph.EdgeData `json:"data"`
}

// Validate rejects missing endpoints and self-loops.
func (c CreateEdgeCommand) Validate() error {
	if c.Source != "" && c.Source == c.Target {
		return apperrors.Validation(apperrors.CodeNodeSelfLink, "an edge cannot link a node to itself").
			WithResource("node:" + string(c.Source)).
			Build()
	}
	return validation.Struct(c)
}

// UpdateEdgeCommand changes the label and presentation kind of an edge.
// Nil fields keep their current value.
type UpdateEdgeCommand struct {
	EdgeID graph.EdgeID    `json:"edgeId" validate:"notblank"`
	Label  *string         `json:"label,omitempty"`
	Kind   *graph.EdgeKind `json:"type,omitempty"`
}

// Validate checks the command fields.
func (c UpdateEdgeCommand) Validate() error {
	if err := validation.Struct(c); err != nil {
		return err
	}
	if c.Kind != nil && !c.Kind.Valid() {
		return apperrors.Validation(apperrors.CodeInvalidEdgeKind, "unknown edge type").
			WithDetails(string(*c.Kind)).
			Build()
	}
	return nil
}

// LinkLabel is the label given to an edge formed by linking two nodes.
func LinkLabel(source, target graph.Node) string {
	return source.Label() + " → " + target.Label()
}
