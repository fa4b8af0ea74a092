// Package supabase implements gateway.Backend on the Supabase PostgREST API
// through supabase-go. Rows use the snake_case schema of the nodes, edges
// and workspaces tables.
package supabase

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/divyanshwrite/worldflow/internal/domain/graph"
	apperrors "github.com/divyanshwrite/worldflow/internal/errors"
	"github.com/divyanshwrite/worldflow/internal/gateway"

	"github.com/supabase-community/supabase-go"
	"go.uber.org/zap"
)

const (
	tableNodes      = "nodes"
	tableEdges      = "edges"
	tableWorkspaces = "workspaces"

	returnRepresentation = "representation"
	returnMinimal        = "minimal"
)

// Config holds the PostgREST connection settings.
type Config struct {
	URL    string
	APIKey string
	Schema string

	// AccessToken, when set, is sent as the bearer token so row-level
	// security applies to the signed-in user instead of the key.
	AccessToken string
}

// Gateway talks to PostgREST. The underlying client does not accept a
// context, so cancellation is only observed before a request is sent.
type Gateway struct {
	client *supabase.Client
	logger *zap.Logger
}

var _ gateway.Backend = (*Gateway)(nil)

// New creates a Supabase-backed gateway.
func New(cfg Config, logger *zap.Logger) (*Gateway, error) {
	if cfg.URL == "" || cfg.APIKey == "" {
		return nil, apperrors.Validation(apperrors.CodeInvalidInput, "supabase url and key are required").Build()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := &supabase.ClientOptions{Schema: cfg.Schema}
	if cfg.AccessToken != "" {
		opts.Headers = map[string]string{"Authorization": "Bearer " + cfg.AccessToken}
	}
	client, err := supabase.NewClient(cfg.URL, cfg.APIKey, opts)
	if err != nil {
		return nil, apperrors.Connection(apperrors.CodeTransport, "unable to create supabase client").
			WithDetails(err.Error()).
			WithCause(err).
			Build()
	}

	return &Gateway{client: client, logger: logger.Named("supabase")}, nil
}

// ============================================================================
// NODES
// ============================================================================

type nodeInsert struct {
	WorkspaceID string          `json:"workspace_id"`
	Type        string          `json:"type"`
	PositionX   float64         `json:"position_x"`
	PositionY   float64         `json:"position_y"`
	PositionZ   float64         `json:"position_z"`
	Data        json.RawMessage `json:"data"`
}

func (g *Gateway) CreateNode(ctx context.Context, in gateway.CreateNodeInput) (graph.Node, error) {
	const op = "createNode"
	if err := in.Validate(); err != nil {
		return graph.Node{}, err
	}
	if err := ctx.Err(); err != nil {
		return graph.Node{}, cancelled(op, err)
	}

	data, err := json.Marshal(in.Data)
	if err != nil {
		return graph.Node{}, encodeError(op, err)
	}
	body := nodeInsert{
		WorkspaceID: string(in.WorkspaceID),
		Type:        in.Type,
		PositionX:   in.Position.X,
		PositionY:   in.Position.Y,
		PositionZ:   in.Position.Z,
		Data:        data,
	}

	var row graph.NodeRow
	_, err = g.client.From(tableNodes).
		Insert(body, false, "", returnRepresentation, "").
		Single().
		ExecuteTo(&row)
	if err != nil {
		return graph.Node{}, classify(op, "workspace:"+string(in.WorkspaceID), err)
	}
	return decodeNode(op, row)
}

func (g *Gateway) UpdateNode(ctx context.Context, id graph.NodeID, in gateway.UpdateNodeInput) (graph.Node, error) {
	const op = "updateNode"
	if err := gateway.RequireID("node", id); err != nil {
		return graph.Node{}, err
	}
	if err := in.Validate(); err != nil {
		return graph.Node{}, err
	}
	if err := ctx.Err(); err != nil {
		return graph.Node{}, cancelled(op, err)
	}

	patch := map[string]any{}
	if in.Position != nil {
		patch["position_x"] = in.Position.X
		patch["position_y"] = in.Position.Y
		patch["position_z"] = in.Position.Z
	}
	if in.Data != nil {
		data, err := json.Marshal(in.Data)
		if err != nil {
			return graph.Node{}, encodeError(op, err)
		}
		patch["data"] = json.RawMessage(data)
	}

	var row graph.NodeRow
	_, err := g.client.From(tableNodes).
		Update(patch, returnRepresentation, "").
		Eq("id", string(id)).
		Single().
		ExecuteTo(&row)
	if err != nil {
		return graph.Node{}, classify(op, "node:"+string(id), err)
	}
	return decodeNode(op, row)
}

func (g *Gateway) DeleteNode(ctx context.Context, id graph.NodeID) error {
	const op = "deleteNode"
	if err := gateway.RequireID("node", id); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return cancelled(op, err)
	}

	_, _, err := g.client.From(tableNodes).
		Delete(returnMinimal, "").
		Eq("id", string(id)).
		Execute()
	if err != nil {
		return classify(op, "node:"+string(id), err)
	}
	return nil
}

// ============================================================================
// EDGES
// ============================================================================

type edgeInsert struct {
	WorkspaceID  string          `json:"workspace_id"`
	SourceNodeID string          `json:"source_node_id"`
	TargetNodeID string          `json:"target_node_id"`
	Type         string          `json:"type"`
	Data         json.RawMessage `json:"data"`
}

func (g *Gateway) CreateEdge(ctx context.Context, in gateway.CreateEdgeInput) (graph.Edge, error) {
	const op = "createEdge"
	if err := in.Validate(); err != nil {
		return graph.Edge{}, err
	}
	if err := ctx.Err(); err != nil {
		return graph.Edge{}, cancelled(op, err)
	}

	data, err := json.Marshal(in.Data)
	if err != nil {
		return graph.Edge{}, encodeError(op, err)
	}
	body := edgeInsert{
		WorkspaceID:  string(in.WorkspaceID),
		SourceNodeID: string(in.Source),
		TargetNodeID: string(in.Target),
		Type:         in.Type,
		Data:         data,
	}

	var row graph.EdgeRow
	_, err = g.client.From(tableEdges).
		Insert(body, false, "", returnRepresentation, "").
		Single().
		ExecuteTo(&row)
	if err != nil {
		return graph.Edge{}, classify(op, "workspace:"+string(in.WorkspaceID), err)
	}
	return decodeEdge(op, row)
}

func (g *Gateway) UpdateEdge(ctx context.Context, id graph.EdgeID, in gateway.UpdateEdgeInput) (graph.Edge, error) {
	const op = "updateEdge"
	if err := gateway.RequireID("edge", id); err != nil {
		return graph.Edge{}, err
	}
	if err := in.Validate(); err != nil {
		return graph.Edge{}, err
	}
	if err := ctx.Err(); err != nil {
		return graph.Edge{}, cancelled(op, err)
	}

	data, err := json.Marshal(in.Data)
	if err != nil {
		return graph.Edge{}, encodeError(op, err)
	}

	var row graph.EdgeRow
	_, err = g.client.From(tableEdges).
		Update(map[string]any{"data": json.RawMessage(data)}, returnRepresentation, "").
		Eq("id", string(id)).
		Single().
		ExecuteTo(&row)
	if err != nil {
		return graph.Edge{}, classify(op, "edge:"+string(id), err)
	}
	return decodeEdge(op, row)
}

func (g *Gateway) DeleteEdge(ctx context.Context, id graph.EdgeID) error {
	const op = "deleteEdge"
	if err := gateway.RequireID("edge", id); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return cancelled(op, err)
	}

	_, _, err := g.client.From(tableEdges).
		Delete(returnMinimal, "").
		Eq("id", string(id)).
		Execute()
	if err != nil {
		return classify(op, "edge:"+string(id), err)
	}
	return nil
}

// ============================================================================
// READER
// ============================================================================

func (g *Gateway) ListNodes(ctx context.Context, ws graph.WorkspaceID) ([]graph.Node, error) {
	const op = "listNodes"
	if err := ctx.Err(); err != nil {
		return nil, cancelled(op, err)
	}

	var rows []graph.NodeRow
	_, err := g.client.From(tableNodes).
		Select("*", "", false).
		Eq("workspace_id", string(ws)).
		ExecuteTo(&rows)
	if err != nil {
		return nil, classify(op, "workspace:"+string(ws), err)
	}

	nodes := make([]graph.Node, 0, len(rows))
	for _, row := range rows {
		n, err := decodeNode(op, row)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

func (g *Gateway) ListEdges(ctx context.Context, ws graph.WorkspaceID) ([]graph.Edge, error) {
	const op = "listEdges"
	if err := ctx.Err(); err != nil {
		return nil, cancelled(op, err)
	}

	var rows []graph.EdgeRow
	_, err := g.client.From(tableEdges).
		Select("*", "", false).
		Eq("workspace_id", string(ws)).
		ExecuteTo(&rows)
	if err != nil {
		return nil, classify(op, "workspace:"+string(ws), err)
	}

	edges := make([]graph.Edge, 0, len(rows))
	for _, row := range rows {
		e, err := decodeEdge(op, row)
		if err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, nil
}

func (g *Gateway) GetNode(ctx context.Context, id graph.NodeID) (graph.Node, error) {
	const op = "getNode"
	if err := ctx.Err(); err != nil {
		return graph.Node{}, cancelled(op, err)
	}

	var row graph.NodeRow
	_, err := g.client.From(tableNodes).
		Select("*", "", false).
		Eq("id", string(id)).
		Single().
		ExecuteTo(&row)
	if err != nil {
		return graph.Node{}, classify(op, "node:"+string(id), err)
	}
	return decodeNode(op, row)
}

func (g *Gateway) GetEdge(ctx context.Context, id graph.EdgeID) (graph.Edge, error) {
	const op = "getEdge"
	if err := ctx.Err(); err != nil {
		return graph.Edge{}, cancelled(op, err)
	}

	var row graph.EdgeRow
	_, err := g.client.From(tableEdges).
		Select("*", "", false).
		Eq("id", string(id)).
		Single().
		ExecuteTo(&row)
	if err != nil {
		return graph.Edge{}, classify(op, "edge:"+string(id), err)
	}
	return decodeEdge(op, row)
}

func (g *Gateway) GetWorkspace(ctx context.Context, ws graph.WorkspaceID) (graph.Workspace, error) {
	const op = "getWorkspace"
	if err := ctx.Err(); err != nil {
		return graph.Workspace{}, cancelled(op, err)
	}

	var row graph.WorkspaceRow
	_, err := g.client.From(tableWorkspaces).
		Select("*", "", false).
		Eq("id", string(ws)).
		Single().
		ExecuteTo(&row)
	if err != nil {
		err = classify(op, "workspace:"+string(ws), err)
		if apperrors.IsNotFound(err) {
			return graph.Workspace{}, apperrors.NotFound(apperrors.CodeWorkspaceNotFound, "workspace not found").
				WithOperation(op).
				WithResource("workspace:" + string(ws)).
				WithCause(err).
				Build()
		}
		return graph.Workspace{}, err
	}
	return row.Workspace(), nil
}

func decodeNode(op string, row graph.NodeRow) (graph.Node, error) {
	n, err := row.Node()
	if err != nil {
		return graph.Node{}, apperrors.External(apperrors.CodeDecode, "malformed node row").
			WithOperation(op).
			WithResource(fmt.Sprintf("node:%s", row.ID)).
			WithDetails(err.Error()).
			WithCause(err).
			Build()
	}
	return n, nil
}

func decodeEdge(op string, row graph.EdgeRow) (graph.Edge, error) {
	e, err := row.Edge()
	if err != nil {
		return graph.Edge{}, apperrors.External(apperrors.CodeDecode, "malformed edge row").
			WithOperation(op).
			WithResource(fmt.Sprintf("edge:%s", row.ID)).
			WithDetails(err.Error()).
			WithCause(err).
			Build()
	}
	return e, nil
}
