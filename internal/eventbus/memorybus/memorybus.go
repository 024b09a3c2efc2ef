// Package memorybus is an in-process, non-durable eventbus.Bus: each
// Subscribe call gets its own buffered channel per topic, and Publish
// fans out to every subscriber of that topic, waiting on a full subscriber
// channel until it has room or the caller's context is done (SPEC_FULL.md D.6,
// grounded on the corpus's own in-process pub/sub bus).
package memorybus

import (
	"context"
	"fmt"
	"sync"

	"github.com/chim331u/mediabutler/internal/eventbus"
)

const subscriberBuffer = 64

var _ eventbus.Bus = (*Bus)(nil)
var _ eventbus.Subscriber = (*Subscription)(nil)

// Bus is the default single-process eventbus.Bus implementation.
type Bus struct {
	mu   sync.RWMutex
	subs map[string][]chan eventbus.Message
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[string][]chan eventbus.Message)}
}

// Publish fans msg out to every current subscriber of topic. A full
// subscriber channel blocks Publish until it has room or ctx is done; in the
// latter case Publish returns ctx's error and the remaining subscribers do
// not receive msg.
func (b *Bus) Publish(ctx context.Context, topic string, msg eventbus.Message) error {
	if ctx == nil {
		return fmt.Errorf("memorybus: publish context is nil")
	}
	b.mu.RLock()
	chs := append([]chan eventbus.Message(nil), b.subs[topic]...)
	b.mu.RUnlock()

	for _, ch := range chs {
		select {
		case ch <- msg:
		case <-ctx.Done():
			return fmt.Errorf("memorybus: publish to topic %q: %w", topic, ctx.Err())
		}
	}
	return nil
}

// Subscribe registers a new subscriber channel for topic.
func (b *Bus) Subscribe(ctx context.Context, topic string) (eventbus.Subscriber, error) {
	ch := make(chan eventbus.Message, subscriberBuffer)

	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], ch)
	b.mu.Unlock()

	return &Subscription{bus: b, topic: topic, ch: ch}, nil
}

// Close releases all subscriber channels; Publish after Close is a no-op.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for topic, chs := range b.subs {
		for _, ch := range chs {
			close(ch)
		}
		delete(b.subs, topic)
	}
	return nil
}

// Subscription is one topic subscription's inbound channel.
type Subscription struct {
	bus   *Bus
	topic string
	ch    chan eventbus.Message
}

// C returns the read-only message channel.
func (s *Subscription) C() <-chan eventbus.Message { return s.ch }

// Close unsubscribes, removing this channel from the topic's subscriber list.
func (s *Subscription) Close() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	lst := s.bus.subs[s.topic]
	out := lst[:0]
	for _, c := range lst {
		if c != s.ch {
			out = append(out, c)
		}
	}
	s.bus.subs[s.topic] = out
	close(s.ch)
	return nil
}
