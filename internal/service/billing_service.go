package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/qs3c/pos_billing_server/internal/model"
	"github.com/qs3c/pos_billing_server/internal/model/dto"
	"github.com/qs3c/pos_billing_server/internal/pkg/queue"
	"github.com/qs3c/pos_billing_server/internal/repository"
)

var (
	ErrPermissionDenied     = errors.New("无权访问该租户的数据")
	ErrSubscriptionNotFound = errors.New("订阅不存在")
	ErrTenantNotFound       = errors.New("租户不存在")
	ErrNotReactivatable     = errors.New("只有扣款失败的订阅可以恢复")
	ErrQueueUnavailable     = errors.New("扣款队列不可用")
)

// Caller 发起请求的身份，来自 JWT claims
type Caller struct {
	TenantID string
	Admin    bool
}

// canAccess admin 可以访问任意租户
func (c Caller) canAccess(tenantID string) bool {
	return c.Admin || c.TenantID == tenantID
}

// RunQueue 扣款批次队列
type RunQueue interface {
	Push(ctx context.Context, msg *queue.RunMessage) error
}

type BillingService struct {
	subRepo    *repository.SubscriptionRepository
	logRepo    *repository.PaymentLogRepository
	tenantRepo *repository.TenantRepository
	runQueue   RunQueue
	now        func() time.Time
}

func NewBillingService(
	subRepo *repository.SubscriptionRepository,
	logRepo *repository.PaymentLogRepository,
	tenantRepo *repository.TenantRepository,
	runQueue RunQueue,
) *BillingService {
	return &BillingService{
		subRepo:    subRepo,
		logRepo:    logRepo,
		tenantRepo: tenantRepo,
		runQueue:   runQueue,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// EnqueueRun 把一个扣款批次放入队列，由 worker 异步处理。
// 非 admin 只能处理自己的租户。
func (s *BillingService) EnqueueRun(ctx context.Context, caller Caller, req *dto.BillingRunRequest) (*dto.BillingRunResponse, error) {
	if s.runQueue == nil {
		return nil, ErrQueueUnavailable
	}

	tenantID := req.TenantID
	if !caller.Admin {
		if tenantID != "" && tenantID != caller.TenantID {
			return nil, ErrPermissionDenied
		}
		tenantID = caller.TenantID
	}

	if tenantID != "" {
		if _, err := s.tenantRepo.GetByID(tenantID); err != nil {
			if errors.Is(err, repository.ErrTenantNotFound) {
				return nil, ErrTenantNotFound
			}
			return nil, err
		}
	}

	requestedBy := caller.TenantID
	if caller.Admin {
		requestedBy = "admin"
	}

	msg := &queue.RunMessage{
		RunID:       uuid.NewString(),
		TenantID:    tenantID,
		RequestedBy: requestedBy,
		RequestedAt: s.now(),
	}
	if err := s.runQueue.Push(ctx, msg); err != nil {
		return nil, fmt.Errorf("enqueue billing run: %w", err)
	}

	return &dto.BillingRunResponse{
		RunID:    msg.RunID,
		TenantID: msg.TenantID,
		QueuedAt: msg.RequestedAt.Format(time.RFC3339),
	}, nil
}

// GetSubscription 获取订阅详情
func (s *BillingService) GetSubscription(caller Caller, id string) (*dto.SubscriptionItem, error) {
	sub, err := s.loadSubscription(caller, id)
	if err != nil {
		return nil, err
	}
	return toSubscriptionItem(sub), nil
}

// ListSubscriptionLogs 订阅的全部扣款记录，最新的在前
func (s *BillingService) ListSubscriptionLogs(caller Caller, id string) ([]*dto.PaymentLogItem, error) {
	sub, err := s.loadSubscription(caller, id)
	if err != nil {
		return nil, err
	}

	logs, err := s.logRepo.ListBySubscription(sub.ID)
	if err != nil {
		return nil, err
	}
	return toPaymentLogItems(logs), nil
}

// ListPaymentLogs 租户的扣款记录分页。admin 可以指定 tenantID，否则使用自己的租户。
func (s *BillingService) ListPaymentLogs(caller Caller, tenantID string, page, pageSize int) ([]*dto.PaymentLogItem, int64, error) {
	if tenantID == "" {
		tenantID = caller.TenantID
	}
	if !caller.canAccess(tenantID) {
		return nil, 0, ErrPermissionDenied
	}

	logs, total, err := s.logRepo.ListByTenant(tenantID, page, pageSize)
	if err != nil {
		return nil, 0, err
	}
	return toPaymentLogItems(logs), total, nil
}

// Reactivate 恢复一个重试耗尽的订阅：清零失败次数并立即到期
func (s *BillingService) Reactivate(caller Caller, id string) (*dto.SubscriptionItem, error) {
	sub, err := s.loadSubscription(caller, id)
	if err != nil {
		return nil, err
	}
	if sub.Status != model.SubscriptionStatusFailed {
		return nil, ErrNotReactivatable
	}

	if err := s.subRepo.Reactivate(sub.ID, s.now()); err != nil {
		return nil, err
	}

	updated, err := s.subRepo.GetByID(sub.ID)
	if err != nil {
		return nil, err
	}
	return toSubscriptionItem(updated), nil
}

func (s *BillingService) loadSubscription(caller Caller, id string) (*model.Subscription, error) {
	sub, err := s.subRepo.GetByID(id)
	if err != nil {
		if errors.Is(err, repository.ErrSubscriptionNotFound) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	// 不暴露其他租户订阅是否存在
	if !caller.canAccess(sub.TenantID) {
		return nil, ErrSubscriptionNotFound
	}
	return sub, nil
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func toSubscriptionItem(sub *model.Subscription) *dto.SubscriptionItem {
	return &dto.SubscriptionItem{
		ID:                sub.ID,
		TenantID:          sub.TenantID,
		CustomerID:        sub.CustomerID,
		Amount:            sub.Amount,
		BillingCycle:      string(sub.BillingCycle),
		BillingDay:        sub.BillingDay,
		Status:            string(sub.Status),
		NextChargeDate:    sub.NextChargeDate.UTC().Format(time.RFC3339),
		LastChargeDate:    formatTime(sub.LastChargeDate),
		FailedAttempts:    sub.FailedAttempts,
		LastFailureReason: sub.LastFailureReason,
		Description:       sub.Description,
	}
}

func toPaymentLogItems(logs []*model.PaymentLog) []*dto.PaymentLogItem {
	items := make([]*dto.PaymentLogItem, 0, len(logs))
	for _, l := range logs {
		items = append(items, &dto.PaymentLogItem{
			ID:             l.ID,
			SubscriptionID: l.SubscriptionID,
			CustomerID:     l.CustomerID,
			Amount:         l.Amount,
			AttemptNumber:  l.AttemptNumber,
			Status:         string(l.Status),
			TransactionID:  l.TransactionID,
			AuthCode:       l.AuthCode,
			FailureReason:  l.FailureReason,
			AttemptedAt:    l.AttemptedAt.UTC().Format(time.RFC3339),
		})
	}
	return items
}
