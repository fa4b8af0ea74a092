package commands

import (
	"context"

	"github.com/divyanshwrite/worldflow/internal/domain/graph"
	apperrors "github.com/divyanshwrite/worldflow/internal/errors"
	"github.com/divyanshwrite/worldflow/internal/gateway"
	"github.com/divyanshwrite/worldflow/internal/store"

	"go.uber.org/zap"
)

// Store is the part of the graph store the command service needs.
// *store.GraphStore satisfies it.
type Store interface {
	Workspace() (graph.WorkspaceID, bool)
	Node(id graph.NodeID) (graph.Node, bool)
	Edge(id graph.EdgeID) (graph.Edge, bool)
	Apply(op store.Operation) bool
}

// Service runs editor actions against the gateway and reconciles the
// results into the store. Failures are returned to the caller as they are;
// the service never retries.
type Service struct {
	gateway gateway.Gateway
	store   Store
	logger  *zap.Logger
}

// NewService creates a command service.
func NewService(gw gateway.Gateway, st Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		gateway: gw,
		store:   st,
		logger:  logger.Named("commands"),
	}
}

// CreateNodeAt creates a default node at pos. This is the canvas action and
// works whether or not linking mode is on.
func (s *Service) CreateNodeAt(ctx context.Context, pos graph.Position) (graph.Node, error) {
	return s.CreateNode(ctx, CreateNodeCommand{Position: pos})
}

// CreateNode creates a node in the active workspace.
func (s *Service) CreateNode(ctx context.Context, cmd CreateNodeCommand) (graph.Node, error) {
	ws, err := s.activeWorkspace("createNode")
	if err != nil {
		return graph.Node{}, err
	}

	if cmd.Type == "" {
		cmd.Type = graph.DefaultNodeType
	}
	data := cmd.Data.Clone()
	if data.Label == "" {
		data.Label = graph.DefaultNodeLabel
	}
	if data.Color == "" {
		data.Color = graph.DefaultNodeColor
	}

	n, err := s.gateway.CreateNode(ctx, gateway.CreateNodeInput{
		WorkspaceID: ws,
		Type:        cmd.Type,
		Position:    cmd.Position,
		Data:        data,
	})
	if err != nil {
		return graph.Node{}, s.failed("createNode", err)
	}
	s.applyNode(store.OpNodeCreated, ws, n)
	return n, nil
}

// UpdateNode sends a partial node update, e.g. a drag that moved the node.
func (s *Service) UpdateNode(ctx context.Context, id graph.NodeID, in gateway.UpdateNodeInput) (graph.Node, error) {
	ws, err := s.activeWorkspace("updateNode")
	if err != nil {
		return graph.Node{}, err
	}
	if err := gateway.RequireID("node", id); err != nil {
		return graph.Node{}, err
	}
	if _, ok := s.store.Node(id); !ok {
		return graph.Node{}, missingNode("updateNode", id)
	}

	n, err := s.gateway.UpdateNode(ctx, id, in)
	if err != nil {
		return graph.Node{}, s.failed("updateNode", err)
	}
	s.applyNode(store.OpNodeUpdated, ws, n)
	return n, nil
}

// SaveNodeFields merges the editor fields into the node's current data.
// An empty color resets the node to the default color.
func (s *Service) SaveNodeFields(ctx context.Context, cmd SaveNodeFieldsCommand) (graph.Node, error) {
	if err := cmd.Validate(); err != nil {
		return graph.Node{}, err
	}
	ws, err := s.activeWorkspace("saveNodeFields")
	if err != nil {
		return graph.Node{}, err
	}
	current, ok := s.store.Node(cmd.NodeID)
	if !ok {
		return graph.Node{}, missingNode("saveNodeFields", cmd.NodeID)
	}

	data := current.Data.Clone()
	data.Label = cmd.Label
	data.Description = cmd.Description
	data.Color = cmd.Color
	if data.Color == "" {
		data.Color = graph.DefaultNodeColor
	}

	n, err := s.gateway.UpdateNode(ctx, cmd.NodeID, gateway.UpdateNodeInput{Data: &data})
	if err != nil {
		return graph.Node{}, s.failed("saveNodeFields", err)
	}
	s.applyNode(store.OpNodeUpdated, ws, n)
	return n, nil
}

// DeleteNode deletes a node the active graph holds. The store cascades the
// removal to every edge touching it.
func (s *Service) DeleteNode(ctx context.Context, id graph.NodeID) error {
	ws, err := s.activeWorkspace("deleteNode")
	if err != nil {
		return err
	}
	if _, ok := s.store.Node(id); !ok {
		return missingNode("deleteNode", id)
	}

	if err := s.gateway.DeleteNode(ctx, id); err != nil {
		return s.failed("deleteNode", err)
	}
	s.apply(store.NodeDeleted(ws, id))
	return nil
}

// CreateEdge links two nodes of the active workspace.
func (s *Service) CreateEdge(ctx context.Context, cmd CreateEdgeCommand) (graph.Edge, error) {
	if err := cmd.Validate(); err != nil {
		return graph.Edge{}, err
	}
	ws, err := s.activeWorkspace("createEdge")
	if err != nil {
		return graph.Edge{}, err
	}
	if cmd.Type == "" {
		cmd.Type = graph.DefaultEdgeType
	}

	e, err := s.gateway.CreateEdge(ctx, gateway.CreateEdgeInput{
		WorkspaceID: ws,
		Source:      cmd.Source,
		Target:      cmd.Target,
		Type:        cmd.Type,
		Data:        cmd.Data,
	})
	if err != nil {
		return graph.Edge{}, s.failed("createEdge", err)
	}
	s.applyEdge(store.OpEdgeCreated, ws, e)
	return e, nil
}

// UpdateEdge changes the label or kind of an edge, keeping the rest of its
// data. An edge the active graph does not hold starts from empty data.
func (s *Service) UpdateEdge(ctx context.Context, cmd UpdateEdgeCommand) (graph.Edge, error) {
	if err := cmd.Validate(); err != nil {
		return graph.Edge{}, err
	}
	ws, err := s.activeWorkspace("updateEdge")
	if err != nil {
		return graph.Edge{}, err
	}

	var data graph.EdgeData
	if current, ok := s.store.Edge(cmd.EdgeID); ok {
		data = current.Data.Clone()
	}
	if cmd.Label != nil {
		data.Label = *cmd.Label
	}
	if cmd.Kind != nil {
		data.Kind = *cmd.Kind
	}

	e, err := s.gateway.UpdateEdge(ctx, cmd.EdgeID, gateway.UpdateEdgeInput{Data: data})
	if err != nil {
		return graph.Edge{}, s.failed("updateEdge", err)
	}
	s.applyEdge(store.OpEdgeUpdated, ws, e)
	return e, nil
}

// DeleteEdge deletes an edge the active graph holds.
func (s *Service) DeleteEdge(ctx context.Context, id graph.EdgeID) error {
	ws, err := s.activeWorkspace("deleteEdge")
	if err != nil {
		return err
	}
	if _, ok := s.store.Edge(id); !ok {
		return apperrors.Validation(apperrors.CodeEdgeNotFound, "edge is not in the active graph").
			WithOperation("deleteEdge").
			WithResource("edge:" + string(id)).
			Build()
	}

	if err := s.gateway.DeleteEdge(ctx, id); err != nil {
		return s.failed("deleteEdge", err)
	}
	s.apply(store.EdgeDeleted(ws, id))
	return nil
}

func (s *Service) activeWorkspace(op string) (graph.WorkspaceID, error) {
	ws, ok := s.store.Workspace()
	if !ok {
		return "", apperrors.Validation(apperrors.CodeNoActiveWorkspace, "no workspace is active").
			WithOperation(op).
			Build()
	}
	return ws, nil
}

// applyNode tags n with the workspace captured when the action started.
func (s *Service) applyNode(kind store.OpKind, ws graph.WorkspaceID, n graph.Node) {
	if n.WorkspaceID == "" {
		n.WorkspaceID = ws
	}
	s.apply(store.Operation{Kind: kind, WorkspaceID: ws, Node: n})
}

func (s *Service) applyEdge(kind store.OpKind, ws graph.WorkspaceID, e graph.Edge) {
	if e.WorkspaceID == "" {
		e.WorkspaceID = ws
	}
	s.apply(store.Operation{Kind: kind, WorkspaceID: ws, Edge: e})
}

func (s *Service) apply(op store.Operation) {
	if !s.store.Apply(op) {
		s.logger.Debug("Result arrived after workspace switch; not applied",
			zap.Stringer("op", op.Kind),
			zap.String("workspace", string(op.WorkspaceID)),
		)
	}
}

func (s *Service) failed(op string, err error) error {
	if apperrors.IsValidation(err) || apperrors.IsNotFound(err) {
		s.logger.Info("Command rejected", zap.String("operation", op), zap.Error(err))
	} else {
		s.logger.Error("Command failed", zap.String("operation", op), zap.Error(err))
	}
	return err
}

func missingNode(op string, id graph.NodeID) error {
	return apperrors.Validation(apperrors.CodeNodeNotFound, "node is not in the active graph").
		WithOperation(op).
		WithResource("node:" + string(id)).
		Build()
}
