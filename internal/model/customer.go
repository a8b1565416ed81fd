package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	TokenStatusActive   = "active"
	TokenStatusInactive = "inactive"
	TokenStatusExpired  = "expired"
)

// Customer 顾客档案，由会员登记流程维护，这里只读
type Customer struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	TenantID    string    `gorm:"size:36;not null;index" json:"tenant_id"`
	Name        string    `gorm:"size:100" json:"name"`
	Email       string    `gorm:"size:100" json:"email,omitempty"`
	IPosToken   *string   `gorm:"column:ipos_token;size:255" json:"-"`
	TokenStatus string    `gorm:"size:20;default:inactive" json:"token_status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Customer) TableName() string {
	return "customers"
}

func (c *Customer) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// ActiveToken 返回可用于扣款的支付令牌
func (c *Customer) ActiveToken() (string, bool) {
	if c.IPosToken == nil || *c.IPosToken == "" || c.TokenStatus != TokenStatusActive {
		return "", false
	}
	return *c.IPosToken, true
}
