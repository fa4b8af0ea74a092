package websocket

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/divyanshwrite/worldflow/internal/domain/graph"
	"github.com/divyanshwrite/worldflow/internal/store"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ws = graph.WorkspaceID("ws-1")

type countingMetrics struct{ n atomic.Int64 }

func (m *countingMetrics) ClientConnected()    { m.n.Add(1) }
func (m *countingMetrics) ClientDisconnected() { m.n.Add(-1) }

type harness struct {
	store   *store.GraphStore
	hub     *Hub
	server  *httptest.Server
	metrics *countingMetrics
}

func newHarness(t *testing.T, cfg ServerConfig) *harness {
	t.Helper()
	gs := store.New()
	gs.SetWorkspace(ws)
	require.True(t, gs.LoadInitial(ws, []graph.Node{{ID: "n1", WorkspaceID: ws}}, nil))

	metrics := &countingMetrics{}
	hub := NewHub(gs, metrics, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	detach := hub.Attach(gs)

	srv := httptest.NewServer(NewServer(hub, cfg))
	t.Cleanup(func() {
		detach()
		srv.Close()
		cancel()
	})
	return &harness{store: gs, hub: hub, server: srv, metrics: metrics}
}

func (h *harness) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

// readUntil skips messages until one of type t arrives.
func readUntil(t *testing.T, conn *websocket.Conn, typ MessageType) Message {
	t.Helper()
	for {
		msg := read(t, conn)
		if msg.Type == typ {
			return msg
		}
	}
}

func TestHub_NewClientGetsSnapshot(t *testing.T) {
	h := newHarness(t, DefaultServerConfig())
	conn := h.dial(t)

	assert.Equal(t, MessageConnectionEstablished, read(t, conn).Type)

	msg := read(t, conn)
	require.Equal(t, MessageGraphSnapshot, msg.Type)
	var snap SnapshotPayload
	require.NoError(t, json.Unmarshal(msg.Data, &snap))
	assert.Equal(t, ws, snap.WorkspaceID)
	require.Len(t, snap.Nodes, 1)
	assert.Equal(t, graph.NodeID("n1"), snap.Nodes[0].ID)

	assert.Eventually(t, func() bool { return h.hub.Clients() == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(1), h.metrics.n.Load())
}

func TestHub_PushesChangesAndDeletions(t *testing.T) {
	h := newHarness(t, DefaultServerConfig())
	conn := h.dial(t)
	readUntil(t, conn, MessageGraphSnapshot)

	require.True(t, h.store.ApplyNodeCreated(graph.Node{ID: "n2", WorkspaceID: ws}))
	var snap SnapshotPayload
	for len(snap.Nodes) != 2 {
		require.NoError(t, json.Unmarshal(readUntil(t, conn, MessageGraphSnapshot).Data, &snap))
	}

	require.True(t, h.store.ApplyNodeDeleted(ws, "n1"))
	var deleted NodeDeletedPayload
	require.NoError(t, json.Unmarshal(readUntil(t, conn, MessageNodeDeleted).Data, &deleted))
	assert.Equal(t, NodeDeletedPayload{WorkspaceID: ws, NodeID: "n1"}, deleted)
}

func TestHub_DisconnectUnregisters(t *testing.T) {
	h := newHarness(t, DefaultServerConfig())
	conn := h.dial(t)
	readUntil(t, conn, MessageGraphSnapshot)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return h.hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(0), h.metrics.n.Load())
}

func TestServer_ConnectionLimit(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.MaxConnections = 1
	h := newHarness(t, cfg)

	conn := h.dial(t)
	readUntil(t, conn, MessageGraphSnapshot)
	require.Eventually(t, func() bool { return h.hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	url := "ws" + strings.TrimPrefix(h.server.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 503, resp.StatusCode)
}

func TestHub_StopClosesClients(t *testing.T) {
	h := newHarness(t, DefaultServerConfig())
	conn := h.dial(t)
	readUntil(t, conn, MessageGraphSnapshot)

	h.hub.Stop()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	assert.Eventually(t, func() bool { return h.hub.Clients() == 0 }, time.Second, 10*time.Millisecond)
}
