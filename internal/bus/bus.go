// Package bus is a minimal in-process topic broker. It stands in for the
// external messaging middleware: producers publish typed payloads to named
// topics and a capture session subscribes to the topics in its scope.
package bus

import (
	"sync"
	"time"
)

// Message is one typed payload on a named topic.
type Message struct {
	Topic    string
	Type     string
	Data     []byte
	Received time.Time
}

// subscriberBuffer bounds each subscription channel. Messages published
// while a subscriber's buffer is full are dropped for that subscriber.
const subscriberBuffer = 256

// Subscription is a live feed of messages matching a topic scope.
type Subscription struct {
	C      chan Message
	all    bool
	topics map[string]struct{}
	bus    *Bus
	once   sync.Once
}

// Bus routes published messages to matching subscriptions.
type Bus struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[*Subscription]struct{})}
}

// Subscribe registers a feed for the given topics. When all is true the
// topic list is ignored and every published message is delivered.
func (b *Bus) Subscribe(all bool, topics []string) *Subscription {
	sub := &Subscription{
		C:      make(chan Message, subscriberBuffer),
		all:    all,
		topics: make(map[string]struct{}, len(topics)),
		bus:    b,
	}
	for _, topic := range topics {
		sub.topics[topic] = struct{}{}
	}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Publish delivers a message to every matching subscription. Delivery is
// best-effort: a full subscriber buffer drops the message for that subscriber.
func (b *Bus) Publish(msg Message) {
	if msg.Received.IsZero() {
		msg.Received = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs {
		if !sub.matches(msg.Topic) {
			continue
		}
		select {
		case sub.C <- msg:
		default:
		}
	}
}

// Cancel removes the subscription and closes its channel. Safe to call more
// than once.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s)
		s.bus.mu.Unlock()
		close(s.C)
	})
}

func (s *Subscription) matches(topic string) bool {
	if s.all {
		return true
	}
	_, ok := s.topics[topic]
	return ok
}
