package testutil

import (
	"fmt"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/pos_billing_server/internal/model"
)

// TestTenant 创建测试租户
func TestTenant(t *testing.T, db *gorm.DB, opts ...func(*model.Tenant)) *model.Tenant {
	t.Helper()

	tenant := &model.Tenant{
		Name:             fmt.Sprintf("Test Shop %d", time.Now().UnixNano()%10000),
		GatewayAuthToken: "tenant-auth-token",
		MerchantID:       "MERCHANT-001",
	}

	for _, opt := range opts {
		opt(tenant)
	}

	if err := db.Create(tenant).Error; err != nil {
		t.Fatalf("Failed to create test tenant: %v", err)
	}

	return tenant
}

// WithGatewayAuth 设置租户网关凭证
func WithGatewayAuth(authToken, merchantID string) func(*model.Tenant) {
	return func(tn *model.Tenant) {
		tn.GatewayAuthToken = authToken
		tn.MerchantID = merchantID
	}
}

// TestCustomer 创建带有效支付令牌的测试顾客
func TestCustomer(t *testing.T, db *gorm.DB, tenantID string, opts ...func(*model.Customer)) *model.Customer {
	t.Helper()

	token := fmt.Sprintf("ipos_tok_%d", time.Now().UnixNano())
	customer := &model.Customer{
		TenantID:    tenantID,
		Name:        "Test Customer",
		Email:       fmt.Sprintf("customer_%d@example.com", time.Now().UnixNano()),
		IPosToken:   &token,
		TokenStatus: model.TokenStatusActive,
	}

	for _, opt := range opts {
		opt(customer)
	}

	if err := db.Create(customer).Error; err != nil {
		t.Fatalf("Failed to create test customer: %v", err)
	}

	return customer
}

// WithTokenStatus 设置支付令牌状态
func WithTokenStatus(status string) func(*model.Customer) {
	return func(c *model.Customer) {
		c.TokenStatus = status
	}
}

// WithoutToken 顾客没有绑定支付令牌
func WithoutToken() func(*model.Customer) {
	return func(c *model.Customer) {
		c.IPosToken = nil
	}
}

// TestSubscription 创建一个已到期的月度测试订阅
func TestSubscription(t *testing.T, db *gorm.DB, tenantID, customerID string, opts ...func(*model.Subscription)) *model.Subscription {
	t.Helper()

	sub := &model.Subscription{
		TenantID:       tenantID,
		CustomerID:     customerID,
		Amount:         1000,
		BillingCycle:   model.BillingCycleMonthly,
		BillingDay:     15,
		Status:         model.SubscriptionStatusActive,
		NextChargeDate: time.Now().UTC().Add(-24 * time.Hour).Truncate(time.Second),
	}

	for _, opt := range opts {
		opt(sub)
	}

	if err := db.Create(sub).Error; err != nil {
		t.Fatalf("Failed to create test subscription: %v", err)
	}

	return sub
}

// WithNextChargeDate 设置下次扣款时间
func WithNextChargeDate(at time.Time) func(*model.Subscription) {
	return func(s *model.Subscription) {
		s.NextChargeDate = at
	}
}

// WithCycle 设置扣款周期
func WithCycle(cycle model.BillingCycle, billingDay int) func(*model.Subscription) {
	return func(s *model.Subscription) {
		s.BillingCycle = cycle
		s.BillingDay = billingDay
	}
}

// WithSubscriptionStatus 设置订阅状态
func WithSubscriptionStatus(status model.SubscriptionStatus) func(*model.Subscription) {
	return func(s *model.Subscription) {
		s.Status = status
	}
}

// WithFailedAttempts 设置连续失败次数
func WithFailedAttempts(n int) func(*model.Subscription) {
	return func(s *model.Subscription) {
		s.FailedAttempts = n
	}
}

// WithAmount 设置扣款金额
func WithAmount(amount int64) func(*model.Subscription) {
	return func(s *model.Subscription) {
		s.Amount = amount
	}
}

// TestPaymentLog 创建测试扣款记录
func TestPaymentLog(t *testing.T, db *gorm.DB, sub *model.Subscription, status model.PaymentLogStatus, attemptedAt time.Time) *model.PaymentLog {
	t.Helper()

	entry := &model.PaymentLog{
		SubscriptionID: sub.ID,
		TenantID:       sub.TenantID,
		CustomerID:     sub.CustomerID,
		Amount:         sub.Amount,
		AttemptNumber:  sub.FailedAttempts + 1,
		Status:         status,
		AttemptedAt:    attemptedAt,
	}

	if err := db.Create(entry).Error; err != nil {
		t.Fatalf("Failed to create test payment log: %v", err)
	}

	return entry
}
