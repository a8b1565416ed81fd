package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type BillingCycle string

const (
	BillingCycleDaily   BillingCycle = "daily"
	BillingCycleWeekly  BillingCycle = "weekly"
	BillingCycleMonthly BillingCycle = "monthly"
)

// Valid 是否为已知的扣款周期
func (c BillingCycle) Valid() bool {
	switch c {
	case BillingCycleDaily, BillingCycleWeekly, BillingCycleMonthly:
		return true
	}
	return false
}

type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusPaused    SubscriptionStatus = "paused"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusFailed    SubscriptionStatus = "failed"
)

// Subscription 租户与顾客之间的定期扣款协议
type Subscription struct {
	ID                string             `gorm:"primaryKey;size:36" json:"id"`
	TenantID          string             `gorm:"size:36;not null;index" json:"tenant_id"`
	CustomerID        string             `gorm:"size:36;not null;index" json:"customer_id"`
	Amount            int64              `gorm:"not null" json:"amount"` // 最小货币单位（分）
	BillingCycle      BillingCycle       `gorm:"size:20;not null;default:monthly" json:"billing_cycle"`
	BillingDay        int                `gorm:"default:1" json:"billing_day"` // 仅 monthly 有效，1..31
	Status            SubscriptionStatus `gorm:"size:20;not null;default:active;index" json:"status"`
	NextChargeDate    time.Time          `gorm:"not null;index" json:"next_charge_date"`
	LastChargeDate    *time.Time         `json:"last_charge_date,omitempty"`
	FailedAttempts    int                `gorm:"not null;default:0" json:"failed_attempts"`
	LastFailureReason *string            `gorm:"size:500" json:"last_failure_reason,omitempty"`
	Description       *string            `gorm:"size:255" json:"description,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}

func (s *Subscription) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// IsDue 订阅在 now 时刻是否应被扣款
func (s *Subscription) IsDue(now time.Time, maxRetryAttempts int) bool {
	return s.Status == SubscriptionStatusActive &&
		!s.NextChargeDate.After(now) &&
		s.FailedAttempts < maxRetryAttempts
}

// DescriptionOr 返回扣款描述，未设置时使用 fallback
func (s *Subscription) DescriptionOr(fallback string) string {
	if s.Description != nil && *s.Description != "" {
		return *s.Description
	}
	return fallback
}
