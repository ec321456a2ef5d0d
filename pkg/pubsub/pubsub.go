// Package pubsub fans domain events out to live subscribers such as
// websocket clients and the telemetry forwarder.
package pubsub

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dd0wney/echoaid/pkg/metrics"
)

// ErrClosed is returned when subscribing to a hub that has shut down.
var ErrClosed = errors.New("event hub is shut down")

// Topic groups related events.
type Topic string

const (
	TopicSensing    Topic = "sensing"
	TopicAlerts     Topic = "alerts"
	TopicBlockades  Topic = "blockades"
	TopicRoutes     Topic = "routes"
	TopicEvacuation Topic = "evacuation"
)

// Topics lists every topic in a stable order.
var Topics = []Topic{TopicSensing, TopicAlerts, TopicBlockades, TopicRoutes, TopicEvacuation}

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 100

// Event is one published message.
type Event struct {
	ID    string    `json:"id"`
	Topic Topic     `json:"topic"`
	Type  string    `json:"type"`
	Data  any       `json:"data"`
	Time  time.Time `json:"time"`
}

// Hub delivers events without blocking publishers: a subscriber whose
// buffer is full misses the event and its drop counter increases.
type Hub struct {
	buffer  int
	now     func() time.Time
	metrics *metrics.Registry

	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	closed bool
}

// Option customises a Hub.
type Option func(*Hub)

// WithBuffer sets the per-subscriber channel capacity.
func WithBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// WithMetrics records publish and drop counts.
func WithMetrics(m *metrics.Registry) Option {
	return func(h *Hub) { h.metrics = m }
}

// WithClock replaces time.Now for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(h *Hub) { h.now = now }
}

// NewHub creates an empty hub.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		buffer: DefaultBuffer,
		now:    time.Now,
		subs:   make(map[*Subscription]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscription receives events for a set of topics.
type Subscription struct {
	hub     *Hub
	topics  []Topic // empty means every topic
	ch      chan Event
	cancel  context.CancelFunc
	once    sync.Once
	dropped atomic.Uint64
}

// Subscribe registers interest in topics, or every topic when none are
// given. The subscription ends when ctx is cancelled, Unsubscribe is
// called or the hub shuts down; its channel is then closed.
func (h *Hub) Subscribe(ctx context.Context, topics ...Topic) (*Subscription, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrClosed
	}
	subCtx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		hub:    h,
		topics: slices.Clone(topics),
		ch:     make(chan Event, h.buffer),
		cancel: cancel,
	}
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-subCtx.Done()
		sub.Unsubscribe()
	}()
	return sub, nil
}

// Publish stamps and delivers an event to every matching subscriber and
// returns how many received it.
func (h *Hub) Publish(topic Topic, eventType string, data any) int {
	ev := Event{ID: uuid.NewString(), Topic: topic, Type: eventType, Data: data, Time: h.now()}

	// Sends are non-blocking, so holding the read lock is cheap and keeps
	// channels from being closed mid-send.
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return 0
	}

	delivered, dropped := 0, 0
	for sub := range h.subs {
		if !sub.wants(topic) {
			continue
		}
		select {
		case sub.ch <- ev:
			delivered++
		default:
			sub.dropped.Add(1)
			dropped++
		}
	}
	if h.metrics != nil {
		h.metrics.RecordPublish(string(topic), dropped)
	}
	return delivered
}

// SubscriberCount returns how many subscriptions would receive topic.
func (h *Hub) SubscriberCount(topic Topic) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for sub := range h.subs {
		if sub.wants(topic) {
			n++
		}
	}
	return n
}

// Shutdown closes every subscription. Later publishes are ignored.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	subs := h.subs
	h.subs = make(map[*Subscription]struct{})
	for sub := range subs {
		sub.closeChannel()
	}
	h.mu.Unlock()

	for sub := range subs {
		sub.cancel()
	}
}

// Closed reports whether Shutdown has been called.
func (h *Hub) Closed() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.closed
}

func (s *Subscription) wants(topic Topic) bool {
	return len(s.topics) == 0 || slices.Contains(s.topics, topic)
}

// Events returns the delivery channel.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Dropped returns how many events this subscriber missed.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Unsubscribe detaches the subscription and closes its channel. Safe to call repeatedly.
func (s *Subscription) Unsubscribe() {
	s.cancel()

	s.hub.mu.Lock()
	delete(s.hub.subs, s)
	s.closeChannel()
	s.hub.mu.Unlock()
}

// closeChannel must be called with the hub lock held.
func (s *Subscription) closeChannel() {
	s.once.Do(func() { close(s.ch) })
}
