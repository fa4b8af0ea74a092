package websocket

import (
	"net/http"

	"github.com/divyanshwrite/worldflow/internal/store"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ServerConfig holds WebSocket server configuration
type ServerConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
	MaxConnections  int
}

// DefaultServerConfig returns default WebSocket server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		// Renderers are served from arbitrary local origins.
		CheckOrigin:    func(*http.Request) bool { return true },
		MaxConnections: 256,
	}
}

// Server upgrades /ws requests and hands connections to the hub.
type Server struct {
	hub      *Hub
	upgrader websocket.Upgrader
	max      int
	logger   *zap.Logger
}

// NewServer creates the upgrade handler.
func NewServer(hub *Hub, cfg ServerConfig) *Server {
	return &Server{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin:     cfg.CheckOrigin,
		},
		max:    cfg.MaxConnections,
		logger: hub.logger,
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.max > 0 && s.hub.Clients() >= s.max {
		s.logger.Warn("Connection limit reached", zap.Int("clients", s.hub.Clients()))
		http.Error(w, "Connection limit exceeded", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Failed to upgrade connection",
			zap.Error(err),
			zap.String("remote_addr", r.RemoteAddr),
		)
		return
	}

	client := newClient(s.hub, conn)
	if !client.start() {
		conn.Close()
		return
	}
	s.logger.Debug("New WebSocket connection",
		zap.String("connection_id", client.ID()),
		zap.String("remote_addr", r.RemoteAddr),
	)
}

// Attach forwards store notifications to the hub: a GRAPH_SNAPSHOT after
// every change and a NODE_DELETED for each removed node. The returned
// function detaches both.
func (h *Hub) Attach(st *store.GraphStore) func() {
	offChange := st.OnChange(h.PublishSnapshot)
	offDeleted := st.OnNodeDeleted(h.PublishNodeDeleted)
	return func() {
		offChange()
		offDeleted()
	}
}
