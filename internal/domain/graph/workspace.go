package graph

// Workspace is the isolation scope of one graph. Its lifecycle is owned
// elsewhere; the core only reads it.
type Workspace struct {
	ID          WorkspaceID `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	OwnerID     string      `json:"ownerId"`
	CreatedAt   string      `json:"createdAt,omitempty"`
	UpdatedAt   string      `json:"updatedAt,omitempty"`
}
