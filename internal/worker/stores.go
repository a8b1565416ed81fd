package worker

import (
	"context"
	"time"

	"github.com/qs3c/pos_billing_server/internal/model"
	"github.com/qs3c/pos_billing_server/internal/pkg/pubsub"
)

type SubscriptionStore interface {
	ListDue(now time.Time, maxRetryAttempts int) ([]*model.Subscription, error)
	ListDueByTenant(tenantID string, now time.Time, maxRetryAttempts int) ([]*model.Subscription, error)
	GetByID(id string) (*model.Subscription, error)
	Update(id string, fields map[string]interface{}) error
}

type PaymentLogStore interface {
	Append(entry *model.PaymentLog) error
}

type CustomerStore interface {
	GetByID(id string) (*model.Customer, error)
}

type TenantStore interface {
	GetByID(id string) (*model.Tenant, error)
}

// EventPublisher 扣款事件出口，nil 表示不发布
type EventPublisher interface {
	Publish(ctx context.Context, event *pubsub.BillingEvent) error
}
