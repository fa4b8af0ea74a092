// Package gateway defines the boundary to the external CRUD service.
//
// A Gateway call is atomic from the caller's point of view: it returns the
// new canonical entity, which the caller feeds into the matching store
// operation, or it fails with a classified *errors.UnifiedError:
// CONNECTION/EXTERNAL/UNAVAILABLE/TIMEOUT for transport failures,
// VALIDATION for rejected input and NOT_FOUND for unknown ids.
package gateway

import (
	"context"

	"github.com/divyanshwrite/worldflow/internal/domain/graph"
)

// Gateway is the set of write commands against the hosted backend.
type Gateway interface {
	CreateNode(ctx context.Context, in CreateNodeInput) (graph.Node, error)
	UpdateNode(ctx context.Context, id graph.NodeID, in UpdateNodeInput) (graph.Node, error)
	DeleteNode(ctx context.Context, id graph.NodeID) error

	CreateEdge(ctx context.Context, in CreateEdgeInput) (graph.Edge, error)
	UpdateEdge(ctx context.Context, id graph.EdgeID, in UpdateEdgeInput) (graph.Edge, error)
	DeleteEdge(ctx context.Context, id graph.EdgeID) error
}

// Reader is the read side used by the initial load and workspace resolution.
type Reader interface {
	ListNodes(ctx context.Context, ws graph.WorkspaceID) ([]graph.Node, error)
	ListEdges(ctx context.Context, ws graph.WorkspaceID) ([]graph.Edge, error)
	GetNode(ctx context.Context, id graph.NodeID) (graph.Node, error)
	GetEdge(ctx context.Context, id graph.EdgeID) (graph.Edge, error)
	GetWorkspace(ctx context.Context, ws graph.WorkspaceID) (graph.Workspace, error)
}

// Backend is a full CRUD service.
type Backend interface {
	Gateway
	Reader
}

// CreateNodeInput describes a node to insert.
type CreateNodeInput struct {
	WorkspaceID graph.WorkspaceID `json:"workspaceId" validate:"notblank"`
	Type        string            `json:"type" validate:"notblank,max=64"`
	Position    graph.Position    `json:"position"`
	Data        graph.NodeData    `json:"data"`
}

// UpdateNodeInput carries the fields to change; nil fields are left as
// they are.
type UpdateNodeInput struct {
	Position *graph.Position `json:"position,omitempty"`
	Data     *graph.NodeData `json:"data,omitempty"`
}

// Empty reports whether the update changes nothing.
func (in UpdateNodeInput) Empty() bool {
	return in.Position == nil && in.Data == nil
}

// CreateEdgeInput describes an edge to insert.
type CreateEdgeInput struct {
	WorkspaceID graph.WorkspaceID `json:"workspaceId" validate:"notblank"`
	Source      graph.NodeID      `json:"sourceNodeId" validate:"notblank"`
	Target      graph.NodeID      `json:"targetNodeId" validate:"notblank"`
	Type        string            `json:"type" validate:"notblank,max=64"`
	Data        graph.EdgeData    `json:"data"`
}

// UpdateEdgeInput replaces the edge payload.
type UpdateEdgeInput struct {
	Data graph.EdgeData `json:"data"`
}
