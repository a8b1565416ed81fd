package pubsub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})

	return client
}

func TestBillingEvent_OmitEmpty(t *testing.T) {
	event := &BillingEvent{
		Type:     EventChargeSucceeded,
		TenantID: "t1",
	}

	data, err := json.Marshal(event)
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))

	assert.Contains(t, raw, "tenant_id")
	_, hasError := raw["error"]
	assert.False(t, hasError, "empty error should be omitted")
}

func TestPublisherSubscriber(t *testing.T) {
	client := setupTestRedis(t)

	publisher := NewPublisher(client)
	subscriber := NewSubscriber(client)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	received := make(chan *BillingEvent, 1)
	go func() {
		subscriber.Subscribe(ctx, func(event *BillingEvent) {
			received <- event
		})
	}()

	// 等待订阅建立
	require.Eventually(t, func() bool {
		n, err := client.PubSubNumSub(ctx, ChannelBillingEvents).Result()
		return err == nil && n[ChannelBillingEvents] > 0
	}, 2*time.Second, 10*time.Millisecond)

	err := publisher.Publish(ctx, &BillingEvent{
		Type:           EventChargeFailed,
		TenantID:       "t1",
		SubscriptionID: "s1",
		AttemptNumber:  2,
		Error:          "Payment declined",
	})
	require.NoError(t, err)

	select {
	case event := <-received:
		assert.Equal(t, EventChargeFailed, event.Type)
		assert.Equal(t, "s1", event.SubscriptionID)
		assert.Equal(t, 2, event.AttemptNumber)
		assert.Equal(t, "Payment declined", event.Error)
		assert.False(t, event.OccurredAt.IsZero())
	case <-ctx.Done():
		t.Fatal("Timeout waiting for message")
	}
}

func TestSubscriber_StopsOnCancel(t *testing.T) {
	client := setupTestRedis(t)
	subscriber := NewSubscriber(client)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- subscriber.Subscribe(ctx, func(*BillingEvent) {})
	}()

	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Subscribe did not return after cancel")
	}
}
