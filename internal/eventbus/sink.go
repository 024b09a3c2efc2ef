package eventbus

import (
	"context"
	"fmt"

	"github.com/chim331u/mediabutler/internal/store"
)

// domainEventsTopic is the single topic every store.DomainEvent is published
// to; subscribers filter by DomainEvent.Type themselves.
const domainEventsTopic = "mediabutler.domain_events"

// Sink adapts any Bus into a store.EventSink, so Store's post-commit
// dispatch can target either memorybus or redisbus without knowing which.
type Sink struct {
	bus Bus
}

// NewSink wraps bus as a store.EventSink.
func NewSink(bus Bus) *Sink {
	return &Sink{bus: bus}
}

var _ store.EventSink = (*Sink)(nil)

// Publish fans each event out over the bus's domain-events topic.
func (s *Sink) Publish(ctx context.Context, events []store.DomainEvent) error {
	for _, ev := range events {
		if err := s.bus.Publish(ctx, domainEventsTopic, ev); err != nil {
			return fmt.Errorf("eventbus: publish %q for hash %q: %w", ev.Type, ev.FileHash, err)
		}
	}
	return nil
}

// Subscribe returns a subscription to every domain event published through
// this Sink's bus.
func Subscribe(ctx context.Context, bus Bus) (Subscriber, error) {
	return bus.Subscribe(ctx, domainEventsTopic)
}
