// Package redisbus is a Redis pub/sub-backed eventbus.Bus, for deployments
// where the push-channel adapter runs as a separate process from the daemon
// (SPEC_FULL.md D.6). Messages are JSON-encoded; only store.DomainEvent
// values (and other JSON-marshalable types) may be published.
package redisbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chim331u/mediabutler/internal/eventbus"
)

// Bus publishes and subscribes over a Redis connection's pub/sub channels.
type Bus struct {
	client *redis.Client
}

// Config holds the Redis connection settings (grounded on the teacher's own
// cache.RedisConfig shape).
type Config struct {
	Addr     string
	Password string
	DB       int
}

// New connects to Redis and verifies reachability with a bounded ping.
func New(cfg Config) (*Bus, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redisbus: connection failed: %w", err)
	}
	return &Bus{client: client}, nil
}

var _ eventbus.Bus = (*Bus)(nil)

// Publish JSON-encodes msg and publishes it on topic.
func (b *Bus) Publish(ctx context.Context, topic string, msg eventbus.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("redisbus: marshal message for topic %q: %w", topic, err)
	}
	if err := b.client.Publish(ctx, topic, data).Err(); err != nil {
		return fmt.Errorf("redisbus: publish to topic %q: %w", topic, err)
	}
	return nil
}

// Subscribe opens a Redis pub/sub subscription on topic. Delivered messages
// are the raw JSON payload as a string; callers that need a typed value
// should unmarshal it themselves.
func (b *Bus) Subscribe(ctx context.Context, topic string) (eventbus.Subscriber, error) {
	pubsub := b.client.Subscribe(ctx, topic)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redisbus: subscribe to topic %q: %w", topic, err)
	}

	out := make(chan eventbus.Message, 64)
	done := make(chan struct{})
	go func() {
		defer close(out)
		ch := pubsub.Channel()
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				out <- msg.Payload
			case <-done:
				return
			}
		}
	}()

	return &subscription{pubsub: pubsub, ch: out, done: done}, nil
}

// Close closes the underlying Redis client.
func (b *Bus) Close() error {
	return b.client.Close()
}

type subscription struct {
	pubsub *redis.PubSub
	ch     chan eventbus.Message
	done   chan struct{}
}

func (s *subscription) C() <-chan eventbus.Message { return s.ch }

func (s *subscription) Close() error {
	close(s.done)
	return s.pubsub.Close()
}
