package memorybus_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chim331u/mediabutler/internal/eventbus/memorybus"
)

func TestPublishDeliversToAllSubscribers(t *testing.T) {
	bus := memorybus.New()
	ctx := context.Background()

	sub1, err := bus.Subscribe(ctx, "topic")
	require.NoError(t, err)
	sub2, err := bus.Subscribe(ctx, "topic")
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, "topic", "hello"))

	assert.Equal(t, "hello", <-sub1.C())
	assert.Equal(t, "hello", <-sub2.C())
}

func TestPublishOnlyReachesMatchingTopic(t *testing.T) {
	bus := memorybus.New()
	ctx := context.Background()

	sub, err := bus.Subscribe(ctx, "topic-a")
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, "topic-b", "ignored"))

	select {
	case <-sub.C():
		t.Fatal("subscriber on topic-a should not receive topic-b messages")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestCloseSubscriptionStopsDelivery(t *testing.T) {
	bus := memorybus.New()
	ctx := context.Background()

	sub, err := bus.Subscribe(ctx, "topic")
	require.NoError(t, err)
	require.NoError(t, sub.Close())

	require.NoError(t, bus.Publish(ctx, "topic", "after-close"))
}

func TestPublishReturnsErrorWhenContextDoneBeforeDelivery(t *testing.T) {
	bus := memorybus.New()

	sub, err := bus.Subscribe(context.Background(), "topic")
	require.NoError(t, err)
	_ = sub // never drained, so the buffered channel fills and publish blocks

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// fill the subscriber's 64-slot buffer exactly; one more would block forever
	for i := 0; i < 64; i++ {
		_ = bus.Publish(context.Background(), "topic", i)
	}

	err = bus.Publish(ctx, "topic", "one-too-many")
	assert.Error(t, err)
}
