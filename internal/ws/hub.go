package ws

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/remote-agent-terminal/relay/internal/buffer"
)

// DefaultQueueCapacity is the per-subscriber queue size used when none is given.
const DefaultQueueCapacity = 16

// Message is one published broadcast. It is immutable once published.
type Message struct {
	Seq    uint64
	Origin string
	Text   string
}

// String returns the wire form delivered to clients.
func (m Message) String() string {
	return fmt.Sprintf("%s : %s", m.Origin, m.Text)
}

// Subscription is one consumer's bounded, independently paced view of the hub.
type Subscription struct {
	id    uint64
	hub   *Hub
	queue *buffer.RingBuffer[Message]

	// ready holds a token while the queue may be non-empty.
	ready chan struct{}
	done  chan struct{}

	closeOnce sync.Once
	dropped   atomic.Uint64
}

func newSubscription(id uint64, hub *Hub, capacity int) *Subscription {
	return &Subscription{
		id:    id,
		hub:   hub,
		queue: buffer.NewRingBuffer[Message](capacity),
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// ID returns the hub-local identifier of the subscription.
func (s *Subscription) ID() uint64 {
	return s.id
}

// Ready is signalled when a message may be available via Next.
func (s *Subscription) Ready() <-chan struct{} {
	return s.ready
}

// Done is closed once the subscription has been removed from its hub,
// either by Unsubscribe or because the hub was closed.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Next pops the oldest queued message without blocking. If more messages
// remain, Ready is re-armed so the consumer wakes again.
func (s *Subscription) Next() (Message, bool) {
	msg, ok := s.queue.Pop()
	if ok && s.queue.Len() > 0 {
		s.signal()
	}
	return msg, ok
}

// Pending returns a snapshot of queued messages, oldest first.
func (s *Subscription) Pending() []Message {
	return s.queue.ReadAll()
}

// Len returns the number of queued messages.
func (s *Subscription) Len() int {
	return s.queue.Len()
}

// Cap returns the queue capacity.
func (s *Subscription) Cap() int {
	return s.queue.Cap()
}

// Dropped returns how many messages were discarded because the queue was full.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close unsubscribes from the hub. Safe to call more than once.
func (s *Subscription) Close() {
	s.hub.Unsubscribe(s)
}

func (s *Subscription) deliver(msg Message) (dropped bool) {
	if s.queue.Push(msg) {
		s.dropped.Add(1)
		dropped = true
	}
	s.signal()
	return dropped
}

func (s *Subscription) signal() {
	select {
	case s.ready <- struct{}{}:
	default:
	}
}

func (s *Subscription) close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

// HubStats is a snapshot of hub counters.
type HubStats struct {
	Subscribers int    `json:"subscribers"`
	Published   uint64 `json:"published"`
	Delivered   uint64 `json:"delivered"`
	Dropped     uint64 `json:"dropped"`
}

// Hub fans published messages out to every live subscription.
// It is the only state shared between connection sessions.
type Hub struct {
	capacity int

	mu     sync.Mutex
	subs   map[uint64]*Subscription
	nextID uint64
	seq    uint64
	closed bool

	published atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// NewHub creates a Hub whose subscriptions hold up to capacity messages.
func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &Hub{
		capacity: capacity,
		subs:     make(map[uint64]*Subscription),
	}
}

// Capacity returns the per-subscription queue capacity.
func (h *Hub) Capacity() int {
	return h.capacity
}

// Subscribe registers a new subscription. On a closed hub the returned
// subscription is already done.
func (h *Hub) Subscribe() *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	sub := newSubscription(h.nextID, h, h.capacity)
	if h.closed {
		sub.close()
		return sub
	}
	h.subs[sub.id] = sub
	return sub
}

// Unsubscribe removes the subscription from the hub. It is idempotent.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	h.mu.Lock()
	if cur, ok := h.subs[sub.id]; ok && cur == sub {
		delete(h.subs, sub.id)
	}
	h.mu.Unlock()

	sub.close()
}

// Publish delivers text, tagged with origin, to every live subscription.
// Deliveries happen under the hub lock so all subscribers observe a single
// publish order. Publish never blocks on a slow subscriber: a full queue
// drops its oldest message instead.
func (h *Hub) Publish(origin, text string) Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return Message{Origin: origin, Text: text}
	}

	h.seq++
	msg := Message{Seq: h.seq, Origin: origin, Text: text}
	h.published.Add(1)

	for _, sub := range h.subs {
		if sub.deliver(msg) {
			h.dropped.Add(1)
		}
		h.delivered.Add(1)
	}

	return msg
}

// SubscriberCount returns the number of live subscriptions.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Stats returns a snapshot of the hub counters.
func (h *Hub) Stats() HubStats {
	return HubStats{
		Subscribers: h.SubscriberCount(),
		Published:   h.published.Load(),
		Delivered:   h.delivered.Load(),
		Dropped:     h.dropped.Load(),
	}
}

// Close removes every subscription and marks the hub unavailable.
// Subsequent publishes are no-ops.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := make([]*Subscription, 0, len(h.subs))
	for _, sub := range h.subs {
		subs = append(subs, sub)
	}
	h.subs = make(map[uint64]*Subscription)
	h.closed = true
	h.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
}

// Closed reports whether Close has been called.
func (h *Hub) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}
