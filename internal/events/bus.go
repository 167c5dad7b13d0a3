package events

import (
	"sync"
)

const defaultBufSize = 256

// EventBus is a channel-based pub-sub event bus.
// Subscribers either follow one topic or every topic, and can leave at any time.
type EventBus struct {
	mu      sync.RWMutex
	nextID  int
	subs    map[string]map[int]chan Event // topic -> subscription id -> channel
	allSubs map[int]chan Event
	closed  bool
}

// NewEventBus creates a new event bus.
func NewEventBus() *EventBus {
	return &EventBus{
		subs:    make(map[string]map[int]chan Event),
		allSubs: make(map[int]chan Event),
	}
}

// Subscribe creates a subscription to a specific topic.
// The returned cancel func removes the subscription and closes the channel.
// bufSize determines the channel buffer size (defaults to 256 if <= 0).
func (b *EventBus) Subscribe(topic string, bufSize int) (<-chan Event, func()) {
	ch := make(chan Event, bufferSize(bufSize))

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int]chan Event)
	}
	b.subs[topic][id] = ch

	return ch, func() { b.unsubscribe(topic, id) }
}

// SubscribeAll creates a subscription to every topic.
func (b *EventBus) SubscribeAll(bufSize int) (<-chan Event, func()) {
	ch := make(chan Event, bufferSize(bufSize))

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.allSubs[id] = ch

	return ch, func() { b.unsubscribe("", id) }
}

// unsubscribe removes a subscription. An empty topic means an all-topic subscription.
func (b *EventBus) unsubscribe(topic string, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return // channels already closed by Close
	}

	subs := b.allSubs
	if topic != "" {
		subs = b.subs[topic]
	}
	if ch, ok := subs[id]; ok {
		delete(subs, id)
		close(ch)
	}
}

// Publish sends an event to all subscribers of the given topic and to all-topic subscribers.
// Non-blocking: if a subscriber's channel is full, the event is dropped for that subscriber.
// Publishing on a nil bus is a no-op.
func (b *EventBus) Publish(topic string, event Event) {
	if b == nil {
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, ch := range b.subs[topic] {
		select {
		case ch <- event:
		default:
		}
	}

	for _, ch := range b.allSubs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Close closes the event bus and all subscriber channels.
// Safe to call multiple times (idempotent).
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.closed = true

	for _, channels := range b.subs {
		for _, ch := range channels {
			close(ch)
		}
	}
	for _, ch := range b.allSubs {
		close(ch)
	}
}

func bufferSize(n int) int {
	if n <= 0 {
		return defaultBufSize
	}
	return n
}
