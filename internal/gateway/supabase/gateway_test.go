package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/divyanshwrite/worldflow/internal/domain/graph"
	apperrors "github.com/divyanshwrite/worldflow/internal/errors"
	"github.com/divyanshwrite/worldflow/internal/gateway"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		errType apperrors.ErrorType
		code    apperrors.Code
	}{
		{"no row", errors.New("(PGRST116) JSON object requested, multiple (or no) rows returned"), apperrors.ErrorTypeNotFound, apperrors.CodeNodeNotFound},
		{"foreign key", errors.New(`(23503) insert or update on table "edges" violates foreign key constraint`), apperrors.ErrorTypeValidation, apperrors.CodeConstraintViolation},
		{"bad uuid", errors.New(`(22P02) invalid input syntax for type uuid: "x"`), apperrors.ErrorTypeValidation, apperrors.CodeInvalidInput},
		{"permission", errors.New("(42501) permission denied for table nodes"), apperrors.ErrorTypeExternal, apperrors.CodeBackendError},
		{"jwt", errors.New("(PGRST301) JWT expired"), apperrors.ErrorTypeExternal, apperrors.CodeBackendError},
		{"empty code", errors.New("() permission denied"), apperrors.ErrorTypeExternal, apperrors.CodeBackendError},
		{"unreadable", errors.New("error parsing error response: unexpected end of JSON input"), apperrors.ErrorTypeExternal, apperrors.CodeBackendError},
		{"transport", errors.New(`Get "http://localhost:1/rest/v1/nodes": dial tcp: connection refused`), apperrors.ErrorTypeConnection, apperrors.CodeTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify("getNode", "node:n1", tt.err)
			unified, ok := apperrors.As(err)
			require.True(t, ok)
			assert.Equal(t, tt.errType, unified.Type)
			assert.Equal(t, tt.code, unified.Code)
			assert.Equal(t, "getNode", unified.Operation)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestClassify_NotFoundCodeFollowsResource(t *testing.T) {
	noRow := errors.New("(PGRST116) no rows")
	assert.Equal(t, apperrors.CodeEdgeNotFound, apperrors.CodeOf(classify("getEdge", "edge:e1", noRow)))
	assert.Equal(t, apperrors.CodeWorkspaceNotFound, apperrors.CodeOf(classify("getWorkspace", "workspace:w", noRow)))
}

func TestClassify_EmptyCodeKeepsMessage(t *testing.T) {
	unified, ok := apperrors.As(classify("deleteNode", "node:n1", errors.New("() row is locked")))
	require.True(t, ok)
	assert.False(t, apperrors.IsConnection(unified))
	assert.Equal(t, "row is locked", unified.Details)
}

func TestNew_RequiresCredentials(t *testing.T) {
	_, err := New(Config{URL: "http://localhost"}, nil)
	assert.True(t, apperrors.IsValidation(err))
}

// fakePostgREST answers the handful of requests the gateway makes.
func fakePostgREST(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		q := r.URL.Query()

		switch {
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/nodes"):
			body, _ := io.ReadAll(r.Body)
			var in map[string]any
			json.Unmarshal(body, &in)
			in["id"] = "n-new"
			in["created_at"] = "2024-05-01T12:00:00Z"
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(in)

		case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/nodes") && q.Get("workspace_id") == "eq.ws-1":
			io.WriteString(w, `[
				{"id":"n1","workspace_id":"ws-1","type":"default","position_x":1,"position_y":2,"position_z":3,"data":{"label":"A"}},
				{"id":"n2","workspace_id":"ws-1","type":"default","position_x":0,"position_y":0,"position_z":0,"data":null}
			]`)

		case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/nodes") && q.Get("id") == "eq.missing":
			w.WriteHeader(http.StatusNotAcceptable)
			io.WriteString(w, `{"code":"PGRST116","details":"The result contains 0 rows","hint":null,"message":"JSON object requested, multiple (or no) rows returned"}`)

		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/edges"):
			w.WriteHeader(http.StatusConflict)
			io.WriteString(w, `{"code":"23503","details":"Key is not present in table \"nodes\".","hint":null,"message":"insert or update on table \"edges\" violates foreign key constraint"}`)

		case r.Method == http.MethodDelete && strings.HasSuffix(r.URL.Path, "/edges"):
			w.WriteHeader(http.StatusNoContent)

		default:
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `{"code":"PGRST000","message":"unexpected request"}`)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGateway_AgainstFakePostgREST(t *testing.T) {
	srv := fakePostgREST(t)
	g, err := New(Config{URL: srv.URL, APIKey: "anon"}, nil)
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("create node", func(t *testing.T) {
		n, err := g.CreateNode(ctx, gateway.CreateNodeInput{
			WorkspaceID: "ws-1",
			Type:        graph.DefaultNodeType,
			Position:    graph.Position{X: 1, Y: 2, Z: 3},
			Data:        graph.NodeData{Label: graph.DefaultNodeLabel, Color: graph.DefaultNodeColor},
		})
		require.NoError(t, err)
		assert.Equal(t, graph.NodeID("n-new"), n.ID)
		assert.Equal(t, graph.Position{X: 1, Y: 2, Z: 3}, n.Position)
		assert.Equal(t, graph.DefaultNodeLabel, n.Label())
		assert.Equal(t, graph.DefaultNodeColor, n.Data.Color)
	})

	t.Run("list nodes", func(t *testing.T) {
		nodes, err := g.ListNodes(ctx, "ws-1")
		require.NoError(t, err)
		require.Len(t, nodes, 2)
		assert.Equal(t, "A", nodes[0].Label())
		assert.Equal(t, graph.WorkspaceID("ws-1"), nodes[1].WorkspaceID)
	})

	t.Run("get missing node", func(t *testing.T) {
		_, err := g.GetNode(ctx, "missing")
		assert.True(t, apperrors.IsNotFound(err))
	})

	t.Run("edge to missing node", func(t *testing.T) {
		_, err := g.CreateEdge(ctx, gateway.CreateEdgeInput{WorkspaceID: "ws-1", Source: "a", Target: "b", Type: "default"})
		assert.True(t, apperrors.IsValidation(err))
		assert.Equal(t, apperrors.CodeConstraintViolation, apperrors.CodeOf(err))
	})

	t.Run("delete edge", func(t *testing.T) {
		assert.NoError(t, g.DeleteEdge(ctx, "e1"))
	})

	t.Run("invalid input never reaches the backend", func(t *testing.T) {
		_, err := g.CreateNode(ctx, gateway.CreateNodeInput{Type: "default"})
		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := g.ListEdges(cctx, "ws-1")
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeTimeout))
		assert.False(t, apperrors.IsRetryable(err))
	})
}

func TestGateway_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	g, err := New(Config{URL: srv.URL, APIKey: "anon"}, nil)
	require.NoError(t, err)

	_, err = g.ListNodes(context.Background(), "ws-1")
	assert.True(t, apperrors.IsConnection(err))
}
