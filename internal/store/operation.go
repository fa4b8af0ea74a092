package store

import (
	"fmt"

	"github.com/divyanshwrite/worldflow/internal/domain/graph"
)

// OpKind classifies a mutation of the graph.
type OpKind int

const (
	OpNodeCreated OpKind = iota + 1
	OpNodeUpdated
	OpNodeDeleted
	OpEdgeCreated
	OpEdgeUpdated
	OpEdgeDeleted
)

func (k OpKind) String() string {
	switch k {
	case OpNodeCreated:
		return "node_created"
	case OpNodeUpdated:
		return "node_updated"
	case OpNodeDeleted:
		return "node_deleted"
	case OpEdgeCreated:
		return "edge_created"
	case OpEdgeUpdated:
		return "edge_updated"
	case OpEdgeDeleted:
		return "edge_deleted"
	default:
		return fmt.Sprintf("op(%d)", int(k))
	}
}

// Operation is one typed mutation submitted to the store, tagged with the
// workspace it was produced for. Only the fields relevant to Kind are read.
type Operation struct {
	Kind        OpKind
	WorkspaceID graph.WorkspaceID

	Node   graph.Node
	Edge   graph.Edge
	NodeID graph.NodeID
	EdgeID graph.EdgeID
}

// NodeCreated tags n with its own workspace id.
func NodeCreated(n graph.Node) Operation {
	return Operation{Kind: OpNodeCreated, WorkspaceID: n.WorkspaceID, Node: n}
}

func NodeUpdated(n graph.Node) Operation {
	return Operation{Kind: OpNodeUpdated, WorkspaceID: n.WorkspaceID, Node: n}
}

func NodeDeleted(ws graph.WorkspaceID, id graph.NodeID) Operation {
	return Operation{Kind: OpNodeDeleted, WorkspaceID: ws, NodeID: id}
}

func EdgeCreated(e graph.Edge) Operation {
	return Operation{Kind: OpEdgeCreated, WorkspaceID: e.WorkspaceID, Edge: e}
}

func EdgeUpdated(e graph.Edge) Operation {
	return Operation{Kind: OpEdgeUpdated, WorkspaceID: e.WorkspaceID, Edge: e}
}

func EdgeDeleted(ws graph.WorkspaceID, id graph.EdgeID) Operation {
	return Operation{Kind: OpEdgeDeleted, WorkspaceID: ws, EdgeID: id}
}

// reduce applies op to cur and returns the next snapshot. changed is false
// when op leaves the snapshot as it was; deleted reports whether a node
// that existed was removed.
func reduce(cur graph.Snapshot, op Operation) (next graph.Snapshot, changed, deleted bool) {
	switch op.Kind {
	case OpNodeCreated, OpNodeUpdated:
		return graph.NewSnapshot(cur.WorkspaceID, upsertNode(cur.Nodes, op.Node), cur.Edges), true, false

	case OpNodeDeleted:
		nodes, found := removeNode(cur.Nodes, op.NodeID)
		edges, cascaded := removeEdgesTouching(cur.Edges, op.NodeID)
		if !found && !cascaded {
			return cur, false, false
		}
		return graph.NewSnapshot(cur.WorkspaceID, nodes, edges), true, found

	case OpEdgeCreated, OpEdgeUpdated:
		return graph.NewSnapshot(cur.WorkspaceID, cur.Nodes, upsertEdge(cur.Edges, op.Edge)), true, false

	case OpEdgeDeleted:
		edges, found := removeEdge(cur.Edges, op.EdgeID)
		if !found {
			return cur, false, false
		}
		return graph.NewSnapshot(cur.WorkspaceID, cur.Nodes, edges), true, false
	}
	return cur, false, false
}

// upsertNode returns a new slice where n replaces the entry with the same id
// in place, or is appended when absent.
func upsertNode(nodes []graph.Node, n graph.Node) []graph.Node {
	out := make([]graph.Node, len(nodes), len(nodes)+1)
	copy(out, nodes)
	for i := range out {
		if out[i].ID == n.ID {
			out[i] = n
			return out
		}
	}
	return append(out, n)
}

func removeNode(nodes []graph.Node, id graph.NodeID) ([]graph.Node, bool) {
	out := make([]graph.Node, 0, len(nodes))
	found := false
	for _, n := range nodes {
		if n.ID == id {
			found = true
			continue
		}
		out = append(out, n)
	}
	if !found {
		return nodes, false
	}
	return out, true
}

func upsertEdge(edges []graph.Edge, e graph.Edge) []graph.Edge {
	out := make([]graph.Edge, len(edges), len(edges)+1)
	copy(out, edges)
	for i := range out {
		if out[i].ID == e.ID {
			out[i] = e
			return out
		}
	}
	return append(out, e)
}

func removeEdge(edges []graph.Edge, id graph.EdgeID) ([]graph.Edge, bool) {
	out := make([]graph.Edge, 0, len(edges))
	found := false
	for _, e := range edges {
		if e.ID == id {
			found = true
			continue
		}
		out = append(out, e)
	}
	if !found {
		return edges, false
	}
	return out, true
}

func removeEdgesTouching(edges []graph.Edge, id graph.NodeID) ([]graph.Edge, bool) {
	out := make([]graph.Edge, 0, len(edges))
	for _, e := range edges {
		if !e.Touches(id) {
			out = append(out, e)
		}
	}
	if len(out) == len(edges) {
		return edges, false
	}
	return out, true
}

// dedupeNodes collapses repeated ids, keeping the first position and the
// last value. Nodes owned by another workspace are skipped and counted; an
// empty owner is taken to mean ws.
func dedupeNodes(ws graph.WorkspaceID, nodes []graph.Node) ([]graph.Node, int) {
	out := make([]graph.Node, 0, len(nodes))
	index := make(map[graph.NodeID]int, len(nodes))
	foreign := 0
	for _, n := range nodes {
		switch n.WorkspaceID {
		case ws:
		case "":
			n.WorkspaceID = ws
		default:
			foreign++
			continue
		}
		if i, ok := index[n.ID]; ok {
			out[i] = n
			continue
		}
		index[n.ID] = len(out)
		out = append(out, n)
	}
	return out, foreign
}

func dedupeEdges(ws graph.WorkspaceID, edges []graph.Edge) ([]graph.Edge, int) {
	out := make([]graph.Edge, 0, len(edges))
	index := make(map[graph.EdgeID]int, len(edges))
	foreign := 0
	for _, e := range edges {
		switch e.WorkspaceID {
		case ws:
		case "":
			e.WorkspaceID = ws
		default:
			foreign++
			continue
		}
		if i, ok := index[e.ID]; ok {
			out[i] = e
			continue
		}
		index[e.ID] = len(out)
		out = append(out, e)
	}
	return out, foreign
}
