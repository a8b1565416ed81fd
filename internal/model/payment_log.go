package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PaymentLogStatus string

const (
	PaymentLogStatusSuccess PaymentLogStatus = "success"
	PaymentLogStatusFailed  PaymentLogStatus = "failed"
)

// PaymentLog 单次扣款尝试的审计记录，只追加不修改
type PaymentLog struct {
	ID             string           `gorm:"primaryKey;size:36" json:"id"`
	SubscriptionID string           `gorm:"size:36;not null;index" json:"subscription_id"`
	TenantID       string           `gorm:"size:36;not null;index" json:"tenant_id"`
	CustomerID     string           `gorm:"size:36;not null;index" json:"customer_id"`
	Amount         int64            `gorm:"not null" json:"amount"`
	AttemptNumber  int              `gorm:"not null" json:"attempt_number"`
	Status         PaymentLogStatus `gorm:"size:20;not null;index" json:"status"`
	TransactionID  *string          `gorm:"size:100" json:"transaction_id,omitempty"`
	AuthCode       *string          `gorm:"size:50" json:"auth_code,omitempty"`
	FailureReason  *string          `gorm:"size:500" json:"failure_reason,omitempty"`
	RawResponse    string           `gorm:"type:text" json:"raw_response,omitempty"`
	AttemptedAt    time.Time        `gorm:"not null;index" json:"attempted_at"`
	ProcessedAt    *time.Time       `json:"processed_at,omitempty"`
}

func (PaymentLog) TableName() string {
	return "payment_logs"
}

func (l *PaymentLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}
