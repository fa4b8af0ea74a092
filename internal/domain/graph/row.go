package graph

import "encoding/json"

// Row types mirror the relational schema of the hosted backend. They are the
// wire shape of both the CRUD service and the change feed.

// NodeRow is one row of the nodes table.
type NodeRow struct {
	ID          string          `json:"id,omitempty"`
	WorkspaceID string          `json:"workspace_id"`
	Type        string          `json:"type"`
	PositionX   float64         `json:"position_x"`
	PositionY   float64         `json:"position_y"`
	PositionZ   float64         `json:"position_z"`
	Data        json.RawMessage `json:"data,omitempty"`
	CreatedAt   string          `json:"created_at,omitempty"`
	UpdatedAt   string          `json:"updated_at,omitempty"`
	CreatedBy   *string         `json:"created_by,omitempty"`
	UpdatedBy   *string         `json:"updated_by,omitempty"`
}

// Node converts the row into the domain type.
func (r NodeRow) Node() (Node, error) {
	var data NodeData
	if err := data.UnmarshalJSON(r.Data); err != nil {
		return Node{}, err
	}
	return Node{
		ID:          NodeID(r.ID),
		WorkspaceID: WorkspaceID(r.WorkspaceID),
		Type:        r.Type,
		Position:    Position{X: r.PositionX, Y: r.PositionY, Z: r.PositionZ},
		Data:        data,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		CreatedBy:   deref(r.CreatedBy),
		UpdatedBy:   deref(r.UpdatedBy),
	}, nil
}

// EdgeRow is one row of the edges table.
type EdgeRow struct {
	ID           string          `json:"id,omitempty"`
	WorkspaceID  string          `json:"workspace_id"`
	SourceNodeID string          `json:"source_node_id"`
	TargetNodeID string          `json:"target_node_id"`
	Type         string          `json:"type"`
	Data         json.RawMessage `json:"data,omitempty"`
	CreatedAt    string          `json:"created_at,omitempty"`
	UpdatedAt    string          `json:"updated_at,omitempty"`
	CreatedBy    *string         `json:"created_by,omitempty"`
	UpdatedBy    *string         `json:"updated_by,omitempty"`
}

// Edge converts the row into the domain type.
func (r EdgeRow) Edge() (Edge, error) {
	var data EdgeData
	if err := data.UnmarshalJSON(r.Data); err != nil {
		return Edge{}, err
	}
	return Edge{
		ID:           EdgeID(r.ID),
		WorkspaceID:  WorkspaceID(r.WorkspaceID),
		SourceNodeID: NodeID(r.SourceNodeID),
		TargetNodeID: NodeID(r.TargetNodeID),
		Type:         r.Type,
		Data:         data,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
		CreatedBy:    deref(r.CreatedBy),
		UpdatedBy:    deref(r.UpdatedBy),
	}, nil
}

// WorkspaceRow is one row of the workspaces table.
type WorkspaceRow struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
	UserID      string  `json:"user_id"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

// Workspace converts the row into the domain type.
func (r WorkspaceRow) Workspace() Workspace {
	return Workspace{
		ID:          WorkspaceID(r.ID),
		Name:        r.Name,
		Description: deref(r.Description),
		OwnerID:     r.UserID,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// NodeRowFrom converts a domain node into its row form.
func NodeRowFrom(n Node) (NodeRow, error) {
	data, err := json.Marshal(n.Data)
	if err != nil {
		return NodeRow{}, err
	}
	return NodeRow{
		ID:          string(n.ID),
		WorkspaceID: string(n.WorkspaceID),
		Type:        n.Type,
		PositionX:   n.Position.X,
		PositionY:   n.Position.Y,
		PositionZ:   n.Position.Z,
		Data:        data,
		CreatedAt:   n.CreatedAt,
		UpdatedAt:   n.UpdatedAt,
		CreatedBy:   ref(n.CreatedBy),
		UpdatedBy:   ref(n.UpdatedBy),
	}, nil
}

// EdgeRowFrom converts a domain edge into its row form.
func EdgeRowFrom(e Edge) (EdgeRow, error) {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return EdgeRow{}, err
	}
	return EdgeRow{
		ID:           string(e.ID),
		WorkspaceID:  string(e.WorkspaceID),
		SourceNodeID: string(e.SourceNodeID),
		TargetNodeID: string(e.TargetNodeID),
		Type:         e.Type,
		Data:         data,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
		CreatedBy:    ref(e.CreatedBy),
		UpdatedBy:    ref(e.UpdatedBy),
	}, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func ref(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
