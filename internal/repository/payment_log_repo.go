package repository

import (
	"gorm.io/gorm"

	"github.com/qs3c/pos_billing_server/internal/model"
)

// PaymentLogRepository 扣款审计日志，只提供追加和查询
type PaymentLogRepository struct {
	db *gorm.DB
}

func NewPaymentLogRepository(db *gorm.DB) *PaymentLogRepository {
	return &PaymentLogRepository{db: db}
}

func (r *PaymentLogRepository) Append(entry *model.PaymentLog) error {
	return r.db.Create(entry).Error
}

func (r *PaymentLogRepository) ListBySubscription(subscriptionID string) ([]*model.PaymentLog, error) {
	var logs []*model.PaymentLog
	err := r.db.Where("subscription_id = ?", subscriptionID).
		Order("attempted_at DESC").
		Find(&logs).Error
	return logs, err
}

func (r *PaymentLogRepository) ListByTenant(tenantID string, page, pageSize int) ([]*model.PaymentLog, int64, error) {
	var logs []*model.PaymentLog
	var total int64

	query := r.db.Model(&model.PaymentLog{}).Where("tenant_id = ?", tenantID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.Order("attempted_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&logs).Error

	return logs, total, err
}

func (r *PaymentLogRepository) CountBySubscription(subscriptionID string) (int64, error) {
	var count int64
	err := r.db.Model(&model.PaymentLog{}).Where("subscription_id = ?", subscriptionID).Count(&count).Error
	return count, err
}
