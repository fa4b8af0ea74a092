// Package redisfeed carries change-feed events over Redis pub/sub. Each feed
// topic maps to one channel, "<prefix><table>:<workspace>", whose messages
// are JSON-encoded feed.Change values.
package redisfeed

import (
	"context"
	"encoding/json"
	"sync"

	apperrors "github.com/divyanshwrite/worldflow/internal/errors"
	"github.com/divyanshwrite/worldflow/internal/feed"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultPrefix namespaces the feed channels.
const DefaultPrefix = "worldflow:"

// Source is both a feed.Source and a feed.Publisher.
type Source struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewSource creates a Redis-backed source. An empty prefix uses DefaultPrefix.
func NewSource(client *redis.Client, prefix string, logger *zap.Logger) *Source {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{client: client, prefix: prefix, logger: logger.Named("redis_feed")}
}

// Channel returns the pub/sub channel of topic.
func (s *Source) Channel(topic feed.Topic) string {
	return s.prefix + topic.String()
}

// Subscribe implements feed.Source. It returns once Redis has confirmed the
// subscription, so a change published afterwards is delivered.
func (s *Source) Subscribe(ctx context.Context, topic feed.Topic, handler feed.Handler) (feed.Stream, error) {
	channel := s.Channel(topic)
	pubsub := s.client.Subscribe(ctx, channel)

	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, apperrors.Connection(apperrors.CodeFeedSubscribe, "redis subscribe failed").
			WithOperation("redisfeed.subscribe").
			WithResource(channel).
			WithDetails(err.Error()).
			WithCause(err).
			Build()
	}

	st := &stream{
		pubsub:  pubsub,
		handler: handler,
		done:    make(chan struct{}),
		logger:  s.logger.With(zap.String("channel", channel)),
	}
	st.wg.Add(1)
	go st.run(topic.Table)

	st.logger.Debug("Redis feed subscribed")
	return st, nil
}

// Publish implements feed.Publisher.
func (s *Source) Publish(ctx context.Context, topic feed.Topic, c feed.Change) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return apperrors.Internal(apperrors.CodeDecode, "change could not be encoded").
			WithOperation("redisfeed.publish").
			WithCause(err).
			Build()
	}
	if err := s.client.Publish(ctx, s.Channel(topic), payload).Err(); err != nil {
		return apperrors.Connection(apperrors.CodeTransport, "redis publish failed").
			WithOperation("redisfeed.publish").
			WithResource(s.Channel(topic)).
			WithDetails(err.Error()).
			WithCause(err).
			Build()
	}
	return nil
}

type stream struct {
	pubsub  *redis.PubSub
	handler feed.Handler
	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
	logger  *zap.Logger
}

func (st *stream) run(table feed.Table) {
	defer st.wg.Done()

	msgs := st.pubsub.Channel()
	for {
		select {
		case <-st.done:
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			var c feed.Change
			if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil {
				st.logger.Warn("Malformed change on redis feed", zap.Error(err))
				continue
			}
			if c.Table == "" {
				c.Table = table
			}
			st.handler(c)
		}
	}
}

// Close unsubscribes and waits for the delivery goroutine to exit.
func (st *stream) Close() error {
	var err error
	st.once.Do(func() {
		close(st.done)
		err = st.pubsub.Close()
		st.wg.Wait()
	})
	return err
}
