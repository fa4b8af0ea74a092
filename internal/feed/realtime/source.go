// Package realtime is a change-feed source for the Supabase Realtime server.
// It speaks the Phoenix channel protocol over gorilla/websocket and joins
// one postgres_changes channel per feed topic.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/divyanshwrite/worldflow/internal/errors"
	"github.com/divyanshwrite/worldflow/internal/feed"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a frame to the server
	writeWait = 10 * time.Second

	// Maximum frame size accepted from the server
	maxMessageSize = 1024 * 1024

	defaultHeartbeat         = 25 * time.Second
	defaultJoinTimeout       = 10 * time.Second
	defaultReconnectDelay    = time.Second
	defaultMaxReconnectDelay = 30 * time.Second
	defaultSchema            = "public"
)

// Config holds the realtime connection settings.
type Config struct {
	// URL is the websocket endpoint, e.g. wss://<project>.supabase.co/realtime/v1/websocket.
	URL         string
	APIKey      string
	AccessToken string
	Schema      string

	HeartbeatInterval time.Duration
	JoinTimeout       time.Duration

	// ReconnectDelay is the first wait after a lost connection; it doubles
	// per failed attempt up to MaxReconnectDelay.
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
}

// Source opens one websocket connection per subscribed topic.
type Source struct {
	cfg    Config
	dialer *websocket.Dialer
	logger *zap.Logger
}

// NewSource creates a realtime source. Zero durations fall back to defaults.
func NewSource(cfg Config, logger *zap.Logger) *Source {
	if cfg.Schema == "" {
		cfg.Schema = defaultSchema
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaultHeartbeat
	}
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = defaultJoinTimeout
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if cfg.MaxReconnectDelay < cfg.ReconnectDelay {
		cfg.MaxReconnectDelay = max(defaultMaxReconnectDelay, cfg.ReconnectDelay)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{
		cfg:    cfg,
		dialer: websocket.DefaultDialer,
		logger: logger.Named("realtime"),
	}
}

// Subscribe dials the server, joins the channel for topic and waits for the
// join to be acknowledged before returning. A connection lost afterwards is
// re-dialed and the channel re-joined until the stream is closed.
func (s *Source) Subscribe(ctx context.Context, topic feed.Topic, handler feed.Handler) (feed.Stream, error) {
	if _, err := socketURL(s.cfg.URL, s.cfg.APIKey); err != nil {
		return nil, apperrors.Validation(apperrors.CodeInvalidInput, "invalid realtime url").
			WithOperation("realtime.subscribe").
			WithDetails(err.Error()).
			WithCause(err).
			Build()
	}

	ch := &channel{
		source:  s,
		topic:   topic,
		handler: handler,
		done:    make(chan struct{}),
		logger:  s.logger.With(zap.String("topic", channelTopic(topic))),
	}

	conn, err := ch.connect(ctx)
	if err != nil {
		return nil, err
	}
	ch.conn = conn

	ch.wg.Add(1)
	go ch.run(conn)

	ch.logger.Info("Realtime channel joined")
	return ch, nil
}

// channel is one joined Phoenix channel on its own connection.
type channel struct {
	source  *Source
	topic   feed.Topic
	handler feed.Handler

	// writeMu serializes frames and guards conn, which changes on reconnect.
	writeMu sync.Mutex
	conn    *websocket.Conn
	ref     atomic.Uint64

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	logger *zap.Logger
}

func (c *channel) nextRef() string {
	return strconv.FormatUint(c.ref.Add(1), 10)
}

func (c *channel) writeTo(conn *websocket.Conn, m message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(m)
}

// connect dials a fresh connection and joins the channel on it.
func (c *channel) connect(ctx context.Context) (*websocket.Conn, error) {
	cfg := c.source.cfg
	endpoint, err := socketURL(cfg.URL, cfg.APIKey)
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	if cfg.APIKey != "" {
		header.Set("apikey", cfg.APIKey)
	}

	conn, _, err := c.source.dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		return nil, apperrors.Connection(apperrors.CodeFeedSubscribe, "realtime dial failed").
			WithOperation("realtime.subscribe").
			WithResource(c.topic.String()).
			WithDetails(err.Error()).
			WithCause(err).
			Build()
	}
	conn.SetReadLimit(maxMessageSize)

	if err := c.join(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func (c *channel) join(ctx context.Context, conn *websocket.Conn) error {
	cfg := c.source.cfg
	ref := c.nextRef()
	if err := c.writeTo(conn, newJoin(c.topic, cfg.Schema, cfg.AccessToken, ref)); err != nil {
		return apperrors.Connection(apperrors.CodeFeedSubscribe, "realtime join could not be sent").
			WithOperation("realtime.join").
			WithResource(c.topic.String()).
			WithCause(err).
			Build()
	}

	// Cancelling ctx unblocks the read below.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	deadline := time.Now().Add(cfg.JoinTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetReadDeadline(deadline)
	defer conn.SetReadDeadline(time.Time{})

	for {
		var m message
		if err := conn.ReadJSON(&m); err != nil {
			return apperrors.Timeout(apperrors.CodeFeedSubscribe, "realtime join was not acknowledged").
				WithOperation("realtime.join").
				WithResource(c.topic.String()).
				WithDetails(err.Error()).
				WithCause(err).
				Build()
		}
		if m.Event != eventReply || m.Ref == nil || *m.Ref != ref {
			continue
		}

		var reply replyPayload
		if err := json.Unmarshal(m.Payload, &reply); err != nil || reply.Status != "ok" {
			return apperrors.External(apperrors.CodeFeedSubscribe, "realtime join refused").
				WithOperation("realtime.join").
				WithResource(c.topic.String()).
				WithDetails(fmt.Sprintf("status=%q response=%s", reply.Status, reply.Response)).
				Build()
		}
		return nil
	}
}

// run serves conn and, whenever it is lost, reconnects with backoff until
// the channel is closed.
func (c *channel) run(conn *websocket.Conn) {
	defer c.wg.Done()
	for conn != nil {
		c.serve(conn)
		conn = c.reconnect()
	}
}

// serve runs the heartbeat and read loops on conn until the connection
// fails or the channel is closed.
func (c *channel) serve(conn *websocket.Conn) {
	stop := make(chan struct{})
	var hb sync.WaitGroup
	hb.Add(1)
	go func() {
		defer hb.Done()
		c.heartbeatLoop(conn, stop)
	}()

	c.readLoop(conn)

	close(stop)
	hb.Wait()
	conn.Close()
}

func (c *channel) reconnect() *websocket.Conn {
	cfg := c.source.cfg
	delay := cfg.ReconnectDelay

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-c.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	for attempt := 1; ; attempt++ {
		timer := time.NewTimer(delay)
		select {
		case <-c.done:
			timer.Stop()
			return nil
		case <-timer.C:
		}

		conn, err := c.connect(ctx)
		if err == nil {
			c.writeMu.Lock()
			select {
			case <-c.done:
				c.writeMu.Unlock()
				conn.Close()
				return nil
			default:
			}
			c.conn = conn
			c.writeMu.Unlock()

			c.logger.Info("Realtime channel rejoined", zap.Int("attempt", attempt))
			return conn
		}

		select {
		case <-c.done:
			return nil
		default:
		}
		delay = min(delay*2, cfg.MaxReconnectDelay)
		c.logger.Warn("Realtime reconnect failed",
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", delay),
			zap.Error(err),
		)
	}
}

// readLoop dispatches postgres_changes frames to the handler until the
// connection fails or the server closes the channel.
func (c *channel) readLoop(conn *websocket.Conn) {
	// The server answers every heartbeat, so silence for two intervals
	// means the connection is gone.
	liveness := 2 * c.source.cfg.HeartbeatInterval
	conn.SetReadDeadline(time.Now().Add(liveness))

	joined := channelTopic(c.topic)
	for {
		var m message
		if err := conn.ReadJSON(&m); err != nil {
			select {
			case <-c.done:
			default:
				c.logger.Warn("Realtime connection lost", zap.Error(err))
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(liveness))

		switch m.Event {
		case eventChanges:
			if m.Topic != joined {
				continue
			}
			change, err := toChange(c.topic.Table, m.Payload)
			if err != nil {
				c.logger.Warn("Malformed postgres_changes payload", zap.Error(err))
				continue
			}
			c.handler(change)
		case eventError, eventClose:
			if m.Topic == joined {
				c.logger.Warn("Realtime channel closed by server", zap.String("event", m.Event))
				return
			}
		}
	}
}

func (c *channel) heartbeatLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(c.source.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-stop:
			return
		case <-ticker.C:
			if err := c.writeTo(conn, newHeartbeat(c.nextRef())); err != nil {
				c.logger.Warn("Realtime heartbeat failed", zap.Error(err))
				// Unblocks the read loop so the channel reconnects.
				conn.Close()
				return
			}
		}
	}
}

// Close leaves the channel, closes the connection and waits for the
// connection goroutines to exit. No handler call happens after it returns.
func (c *channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)

		c.writeMu.Lock()
		conn := c.conn
		c.writeMu.Unlock()

		if werr := c.writeTo(conn, newLeave(c.topic, c.nextRef())); werr != nil {
			c.logger.Debug("Realtime leave not sent", zap.Error(werr))
		}
		c.writeMu.Lock()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		c.writeMu.Unlock()

		// The connection may already be gone while a reconnect is pending.
		if cerr := conn.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = cerr
		}
		c.wg.Wait()
		c.logger.Info("Realtime channel left")
	})
	return err
}
