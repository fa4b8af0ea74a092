package graph

// Snapshot is the materialized node and edge collections of one workspace.
//
// A Snapshot is immutable once built: the store replaces it wholesale on
// every mutation, so a consumer may iterate it while further operations
// are being applied. Callers must not modify the returned slices.
type Snapshot struct {
	WorkspaceID WorkspaceID `json:"workspaceId"`
	Nodes       []Node      `json:"nodes"`
	Edges       []Edge      `json:"edges"`

	nodeIndex map[NodeID]int
	edgeIndex map[EdgeID]int
}

// EmptySnapshot returns the snapshot a workspace starts with.
func EmptySnapshot(ws WorkspaceID) Snapshot {
	return NewSnapshot(ws, nil, nil)
}

// NewSnapshot builds a snapshot over nodes and edges, taking ownership of
// both slices. Nil slices are normalized to empty ones so the JSON form is
// always arrays.
func NewSnapshot(ws WorkspaceID, nodes []Node, edges []Edge) Snapshot {
	if nodes == nil {
		nodes = []Node{}
	}
	if edges == nil {
		edges = []Edge{}
	}
	s := Snapshot{
		WorkspaceID: ws,
		Nodes:       nodes,
		Edges:       edges,
		nodeIndex:   make(map[NodeID]int, len(nodes)),
		edgeIndex:   make(map[EdgeID]int, len(edges)),
	}
	for i, n := range nodes {
		s.nodeIndex[n.ID] = i
	}
	for i, e := range edges {
		s.edgeIndex[e.ID] = i
	}
	return s
}

// Node looks a node up by id.
func (s Snapshot) Node(id NodeID) (Node, bool) {
	if s.nodeIndex == nil {
		for _, n := range s.Nodes {
			if n.ID == id {
				return n, true
			}
		}
		return Node{}, false
	}
	i, ok := s.nodeIndex[id]
	if !ok {
		return Node{}, false
	}
	return s.Nodes[i], true
}

// Edge looks an edge up by id.
func (s Snapshot) Edge(id EdgeID) (Edge, bool) {
	if s.edgeIndex == nil {
		for _, e := range s.Edges {
			if e.ID == id {
				return e, true
			}
		}
		return Edge{}, false
	}
	i, ok := s.edgeIndex[id]
	if !ok {
		return Edge{}, false
	}
	return s.Edges[i], true
}

// HasNode reports whether id resolves in this snapshot.
func (s Snapshot) HasNode(id NodeID) bool {
	_, ok := s.Node(id)
	return ok
}

// Renderable returns the edges whose endpoints both resolve in this
// snapshot. Dangling edges stay in Edges; renderers skip them until the
// missing node arrives.
func (s Snapshot) Renderable() []Edge {
	out := make([]Edge, 0, len(s.Edges))
	for _, e := range s.Edges {
		if s.HasNode(e.SourceNodeID) && s.HasNode(e.TargetNodeID) {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the node and edge counts.
func (s Snapshot) Len() (nodes, edges int) {
	return len(s.Nodes), len(s.Edges)
}
