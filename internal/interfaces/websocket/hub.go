// Package websocket pushes the graph to renderers. Every connection gets
// the full snapshot when it connects and again after every store change,
// plus a NODE_DELETED message for each removed node.
package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/divyanshwrite/worldflow/internal/domain/graph"

	"go.uber.org/zap"
)

// MessageType names a pushed message.
type MessageType string

const (
	MessageConnectionEstablished MessageType = "CONNECTION_ESTABLISHED"
	MessageGraphSnapshot         MessageType = "GRAPH_SNAPSHOT"
	MessageNodeDeleted           MessageType = "NODE_DELETED"
)

// Message is the envelope of every pushed message.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// SnapshotPayload is the data of a GRAPH_SNAPSHOT message.
type SnapshotPayload struct {
	WorkspaceID     graph.WorkspaceID `json:"workspaceId"`
	Nodes           []graph.Node      `json:"nodes"`
	Edges           []graph.Edge      `json:"edges"`
	RenderableEdges []graph.Edge      `json:"renderableEdges"`
}

// NodeDeletedPayload is the data of a NODE_DELETED message.
type NodeDeletedPayload struct {
	WorkspaceID graph.WorkspaceID `json:"workspaceId"`
	NodeID      graph.NodeID      `json:"nodeId"`
}

// Metrics tracks connected clients. observability.Collector implements it.
type Metrics interface {
	ClientConnected()
	ClientDisconnected()
}

// SnapshotSource supplies the snapshot a new client starts from.
type SnapshotSource interface {
	Snapshot() graph.Snapshot
}

// Hub owns the client set. All membership changes and sends happen on the
// Run goroutine.
type Hub struct {
	clients map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	events     chan []byte

	// Snapshots are latest-wins: a burst of store changes coalesces into
	// one push per client.
	snapMu  sync.Mutex
	pending []byte
	wake    chan struct{}

	source  SnapshotSource
	metrics Metrics
	logger  *zap.Logger

	done     chan struct{}
	stopOnce sync.Once
	mu       sync.RWMutex
	count    int
}

// NewHub creates a hub. source and metrics may be nil.
func NewHub(source SnapshotSource, metrics Metrics, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client, 16),
		unregister: make(chan *Client, 16),
		events:     make(chan []byte, 256),
		wake:       make(chan struct{}, 1),
		source:     source,
		metrics:    metrics,
		logger:     logger.Named("websocket"),
		done:       make(chan struct{}),
	}
}

// Run serves the hub until ctx is canceled or Stop is called.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		h.Stop()
		h.closeAll()
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return

		case c := <-h.register:
			h.add(c)

		case c := <-h.unregister:
			h.remove(c)

		case msg := <-h.events:
			h.fanOut(msg)

		case <-h.wake:
			h.snapMu.Lock()
			msg := h.pending
			h.pending = nil
			h.snapMu.Unlock()
			if msg != nil {
				h.fanOut(msg)
			}
		}
	}
}

// Stop ends Run and disconnects every client.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// PublishSnapshot queues snap for every client, replacing a snapshot that
// has not been sent yet. It never blocks.
func (h *Hub) PublishSnapshot(snap graph.Snapshot) {
	msg, err := encode(MessageGraphSnapshot, snapshotPayload(snap))
	if err != nil {
		h.logger.Error("Failed to encode snapshot", zap.Error(err))
		return
	}
	h.snapMu.Lock()
	h.pending = msg
	h.snapMu.Unlock()

	select {
	case h.wake <- struct{}{}:
	default:
	}
}

// PublishNodeDeleted queues a NODE_DELETED message. It never blocks; when
// the queue is full the message is dropped and logged.
func (h *Hub) PublishNodeDeleted(ws graph.WorkspaceID, id graph.NodeID) {
	msg, err := encode(MessageNodeDeleted, NodeDeletedPayload{WorkspaceID: ws, NodeID: id})
	if err != nil {
		h.logger.Error("Failed to encode node deletion", zap.Error(err))
		return
	}
	select {
	case h.events <- msg:
	default:
		h.logger.Warn("Event queue full, dropping message",
			zap.String("type", string(MessageNodeDeleted)),
			zap.String("node_id", string(id)),
		)
	}
}

func (h *Hub) add(c *Client) {
	h.clients[c] = struct{}{}
	h.setCount(len(h.clients))
	h.metrics.ClientConnected()
	h.logger.Info("Client registered",
		zap.String("connection_id", c.id),
		zap.Int("clients", len(h.clients)),
	)

	established, _ := encode(MessageConnectionEstablished, map[string]string{"connectionId": c.id})
	h.deliver(c, established)
	if h.source != nil {
		if msg, err := encode(MessageGraphSnapshot, snapshotPayload(h.source.Snapshot())); err == nil {
			h.deliver(c, msg)
		}
	}
}

func (h *Hub) remove(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.setCount(len(h.clients))
	h.metrics.ClientDisconnected()
	h.logger.Info("Client unregistered",
		zap.String("connection_id", c.id),
		zap.Int("clients", len(h.clients)),
	)
}

func (h *Hub) fanOut(msg []byte) {
	for c := range h.clients {
		h.deliver(c, msg)
	}
}

// deliver hands msg to c, dropping the client when its buffer is full.
func (h *Hub) deliver(c *Client, msg []byte) {
	select {
	case c.send <- msg:
	default:
		h.logger.Warn("Closing slow client", zap.String("connection_id", c.id))
		h.remove(c)
		c.conn.Close()
	}
}

func (h *Hub) closeAll() {
	for c := range h.clients {
		h.remove(c)
	}
	h.logger.Info("All connections closed")
}

func (h *Hub) setCount(n int) {
	h.mu.Lock()
	h.count = n
	h.mu.Unlock()
}

// join hands c to the Run loop. It reports false once the hub has stopped.
func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func snapshotPayload(snap graph.Snapshot) SnapshotPayload {
	return SnapshotPayload{
		WorkspaceID:     snap.WorkspaceID,
		Nodes:           snap.Nodes,
		Edges:           snap.Edges,
		RenderableEdges: snap.Renderable(),
	}
}

func encode(t MessageType, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{Type: t, Timestamp: time.Now().UnixMilli(), Data: raw})
}

type noopMetrics struct{}

func (noopMetrics) ClientConnected()    {}
func (noopMetrics) ClientDisconnected() {}
