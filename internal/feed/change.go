// Package feed turns an external stream of row-level change notifications
// into typed store operations for one workspace.
package feed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/divyanshwrite/worldflow/internal/domain/graph"
	apperrors "github.com/divyanshwrite/worldflow/internal/errors"
	"github.com/divyanshwrite/worldflow/internal/store"
)

// Table names the relation a change belongs to.
type Table string

const (
	TableNodes Table = "nodes"
	TableEdges Table = "edges"
)

// EventType is the row-level event reported by the feed.
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// Change is one row-level notification. Record holds the new row for
// inserts and updates; OldRecord holds at least the id for deletes.
type Change struct {
	Table     Table           `json:"table"`
	Type      EventType       `json:"type"`
	Record    json.RawMessage `json:"record,omitempty"`
	OldRecord json.RawMessage `json:"old_record,omitempty"`
}

// NewChange encodes record and old as the row images of a change. Either
// may be nil.
func NewChange(table Table, event EventType, record, old any) (Change, error) {
	c := Change{Table: table, Type: event}
	if record != nil {
		b, err := json.Marshal(record)
		if err != nil {
			return Change{}, err
		}
		c.Record = b
	}
	if old != nil {
		b, err := json.Marshal(old)
		if err != nil {
			return Change{}, err
		}
		c.OldRecord = b
	}
	return c, nil
}

// Topic identifies one logical subscription: one table filtered to one
// workspace.
type Topic struct {
	Table     Table
	Workspace graph.WorkspaceID
}

func (t Topic) String() string {
	return fmt.Sprintf("%s:%s", t.Table, t.Workspace)
}

// Handler receives the changes of one topic. A source calls it from a
// single goroutine per stream.
type Handler func(Change)

// Stream is an open subscription on a Source.
type Stream interface {
	Close() error
}

// Source is the transport behind the change feed.
type Source interface {
	Subscribe(ctx context.Context, topic Topic, handler Handler) (Stream, error)
}

// Publisher announces changes on a topic. The in-memory gateway uses it to
// echo its own writes the way a hosted backend would.
type Publisher interface {
	Publish(ctx context.Context, topic Topic, c Change) error
}

// Decode classifies a change and converts it into the matching store
// operation, tagged with ws. Created and updated rows whose workspace_id
// names another workspace are rejected.
func Decode(ws graph.WorkspaceID, c Change) (store.Operation, error) {
	switch c.Table {
	case TableNodes:
		return decodeNode(ws, c)
	case TableEdges:
		return decodeEdge(ws, c)
	}
	return store.Operation{}, decodeError(c, fmt.Sprintf("unknown table %q", c.Table), nil)
}

func decodeNode(ws graph.WorkspaceID, c Change) (store.Operation, error) {
	switch c.Type {
	case EventInsert, EventUpdate:
		var row graph.NodeRow
		if err := json.Unmarshal(c.Record, &row); err != nil {
			return store.Operation{}, decodeError(c, "malformed node row", err)
		}
		n, err := row.Node()
		if err != nil {
			return store.Operation{}, decodeError(c, "malformed node data", err)
		}
		if n.WorkspaceID, err = ownedBy(ws, n.WorkspaceID, c); err != nil {
			return store.Operation{}, err
		}
		if c.Type == EventInsert {
			return store.NodeCreated(n), nil
		}
		return store.NodeUpdated(n), nil

	case EventDelete:
		id, err := oldID(c)
		if err != nil {
			return store.Operation{}, err
		}
		return store.NodeDeleted(ws, graph.NodeID(id)), nil
	}
	return store.Operation{}, decodeError(c, fmt.Sprintf("unknown event %q", c.Type), nil)
}

func decodeEdge(ws graph.WorkspaceID, c Change) (store.Operation, error) {
	switch c.Type {
	case EventInsert, EventUpdate:
		var row graph.EdgeRow
		if err := json.Unmarshal(c.Record, &row); err != nil {
			return store.Operation{}, decodeError(c, "malformed edge row", err)
		}
		e, err := row.Edge()
		if err != nil {
			return store.Operation{}, decodeError(c, "malformed edge data", err)
		}
		if e.WorkspaceID, err = ownedBy(ws, e.WorkspaceID, c); err != nil {
			return store.Operation{}, err
		}
		if c.Type == EventInsert {
			return store.EdgeCreated(e), nil
		}
		return store.EdgeUpdated(e), nil

	case EventDelete:
		id, err := oldID(c)
		if err != nil {
			return store.Operation{}, err
		}
		return store.EdgeDeleted(ws, graph.EdgeID(id)), nil
	}
	return store.Operation{}, decodeError(c, fmt.Sprintf("unknown event %q", c.Type), nil)
}

// ownedBy fills a missing workspace id from the subscription.
func ownedBy(ws, rowWS graph.WorkspaceID, c Change) (graph.WorkspaceID, error) {
	if rowWS == "" {
		return ws, nil
	}
	if rowWS != ws {
		return "", decodeError(c, fmt.Sprintf("row belongs to workspace %q", rowWS), nil)
	}
	return rowWS, nil
}

func oldID(c Change) (string, error) {
	var old struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(c.OldRecord, &old); err != nil {
		return "", decodeError(c, "malformed old record", err)
	}
	if old.ID == "" {
		return "", decodeError(c, "old record has no id", nil)
	}
	return old.ID, nil
}

func decodeError(c Change, msg string, cause error) error {
	b := apperrors.Validation(apperrors.CodeDecode, msg).
		WithOperation("feed.decode").
		WithResource(fmt.Sprintf("%s:%s", c.Table, c.Type))
	if cause != nil {
		b = b.WithDetails(cause.Error()).WithCause(cause)
	}
	return b.Build()
}
