package repository

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/pos_billing_server/internal/model"
)

var ErrSubscriptionNotFound = errors.New("subscription not found")

type SubscriptionRepository struct {
	db *gorm.DB
}

func NewSubscriptionRepository(db *gorm.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

func (r *SubscriptionRepository) Create(sub *model.Subscription) error {
	return r.db.Create(sub).Error
}

func (r *SubscriptionRepository) GetByID(id string) (*model.Subscription, error) {
	var sub model.Subscription
	err := r.db.Where("id = ?", id).First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	return &sub, nil
}

func (r *SubscriptionRepository) dueQuery(now time.Time, maxRetryAttempts int) *gorm.DB {
	return r.db.Where("status = ? AND next_charge_date <= ? AND failed_attempts < ?",
		model.SubscriptionStatusActive, now, maxRetryAttempts).
		Order("next_charge_date ASC")
}

// ListDue 获取所有租户中到期待扣款的订阅
func (r *SubscriptionRepository) ListDue(now time.Time, maxRetryAttempts int) ([]*model.Subscription, error) {
	var subs []*model.Subscription
	err := r.dueQuery(now, maxRetryAttempts).Find(&subs).Error
	return subs, err
}

// ListDueByTenant 获取指定租户到期待扣款的订阅
func (r *SubscriptionRepository) ListDueByTenant(tenantID string, now time.Time, maxRetryAttempts int) ([]*model.Subscription, error) {
	var subs []*model.Subscription
	err := r.dueQuery(now, maxRetryAttempts).Where("tenant_id = ?", tenantID).Find(&subs).Error
	return subs, err
}

func (r *SubscriptionRepository) ListByTenant(tenantID string) ([]*model.Subscription, error) {
	var subs []*model.Subscription
	err := r.db.Where("tenant_id = ?", tenantID).Order("created_at ASC").Find(&subs).Error
	return subs, err
}

// Update 按字段更新订阅，nil 值会被写为 NULL
func (r *SubscriptionRepository) Update(id string, fields map[string]interface{}) error {
	result := r.db.Model(&model.Subscription{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

// Reactivate 人工恢复一个失败的订阅，立即重新进入扣款队列
func (r *SubscriptionRepository) Reactivate(id string, now time.Time) error {
	return r.Update(id, map[string]interface{}{
		"status":              model.SubscriptionStatusActive,
		"failed_attempts":     0,
		"last_failure_reason": nil,
		"next_charge_date":    now,
	})
}
