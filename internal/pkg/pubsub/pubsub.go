package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	ChannelBillingEvents = "billing_events"
)

// 事件类型
const (
	EventChargeSucceeded  = "charge_succeeded"
	EventChargeFailed     = "charge_failed"
	EventRetriesExhausted = "retries_exhausted"
	EventRunCompleted     = "run_completed"
)

// BillingEvent 扣款结果事件
type BillingEvent struct {
	Type           string    `json:"type"`
	TenantID       string    `json:"tenant_id"`
	SubscriptionID string    `json:"subscription_id,omitempty"`
	CustomerID     string    `json:"customer_id,omitempty"`
	Amount         int64     `json:"amount,omitempty"`
	AttemptNumber  int       `json:"attempt_number,omitempty"`
	TransactionID  string    `json:"transaction_id,omitempty"`
	Error          string    `json:"error,omitempty"`
	Successful     int       `json:"successful,omitempty"`
	Failed         int       `json:"failed,omitempty"`
	Skipped        int       `json:"skipped,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// Publisher Redis 发布者
type Publisher struct {
	client *redis.Client
}

// NewPublisher 创建发布者
func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

// Publish 发布扣款事件
func (p *Publisher) Publish(ctx context.Context, event *BillingEvent) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal billing event: %w", err)
	}

	return p.client.Publish(ctx, ChannelBillingEvents, data).Err()
}

// Subscriber Redis 订阅者
type Subscriber struct {
	client *redis.Client
}

// NewSubscriber 创建订阅者
func NewSubscriber(client *redis.Client) *Subscriber {
	return &Subscriber{client: client}
}

// Subscribe 订阅扣款事件，直到 ctx 取消
func (s *Subscriber) Subscribe(ctx context.Context, handler func(*BillingEvent)) error {
	pubsub := s.client.Subscribe(ctx, ChannelBillingEvents)
	defer pubsub.Close()

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var event BillingEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				continue // 忽略解析错误
			}

			handler(&event)
		}
	}
}
