package feed

import (
	"context"
	"sort"
	"sync"
)

// LocalSource is an in-process Source. Publish delivers synchronously to
// every stream subscribed to the topic, in subscription order.
type LocalSource struct {
	mu      sync.RWMutex
	nextID  uint64
	streams map[Topic]map[uint64]*localStream
}

// NewLocalSource creates an empty in-process source.
func NewLocalSource() *LocalSource {
	return &LocalSource{streams: make(map[Topic]map[uint64]*localStream)}
}

type localStream struct {
	id      uint64
	topic   Topic
	handler Handler
	source  *LocalSource
	once    sync.Once
	mu      sync.Mutex
}

// Subscribe implements Source.
func (s *LocalSource) Subscribe(_ context.Context, topic Topic, handler Handler) (Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	st := &localStream{id: s.nextID, topic: topic, handler: handler, source: s}
	if s.streams[topic] == nil {
		s.streams[topic] = make(map[uint64]*localStream)
	}
	s.streams[topic][st.id] = st
	return st, nil
}

// Publish delivers c to the subscribers of topic before returning.
func (s *LocalSource) Publish(_ context.Context, topic Topic, c Change) error {
	s.mu.RLock()
	targets := make([]*localStream, 0, len(s.streams[topic]))
	for _, st := range s.streams[topic] {
		targets = append(targets, st)
	}
	s.mu.RUnlock()

	sort.Slice(targets, func(i, j int) bool { return targets[i].id < targets[j].id })
	for _, st := range targets {
		st.deliver(c)
	}
	return nil
}

// Subscribers returns the number of open streams on topic.
func (s *LocalSource) Subscribers(topic Topic) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.streams[topic])
}

func (st *localStream) deliver(c Change) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.handler(c)
}

func (st *localStream) Close() error {
	st.once.Do(func() {
		st.source.mu.Lock()
		defer st.source.mu.Unlock()
		delete(st.source.streams[st.topic], st.id)
		if len(st.source.streams[st.topic]) == 0 {
			delete(st.source.streams, st.topic)
		}
	})
	return nil
}
