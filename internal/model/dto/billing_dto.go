package dto

// BillingRunRequest 手动触发扣款批次，admin 可不填 tenant_id 处理全部租户
type BillingRunRequest struct {
	TenantID string `json:"tenant_id,omitempty"`
}

// BillingRunResponse 已入队的批次
type BillingRunResponse struct {
	RunID    string `json:"run_id"`
	TenantID string `json:"tenant_id,omitempty"`
	QueuedAt string `json:"queued_at"`
}

// SubscriptionItem 订阅详情
type SubscriptionItem struct {
	ID                string  `json:"id"`
	TenantID          string  `json:"tenant_id"`
	CustomerID        string  `json:"customer_id"`
	Amount            int64   `json:"amount"`
	BillingCycle      string  `json:"billing_cycle"`
	BillingDay        int     `json:"billing_day"`
	Status            string  `json:"status"`
	NextChargeDate    string  `json:"next_charge_date"`
	LastChargeDate    *string `json:"last_charge_date"`
	FailedAttempts    int     `json:"failed_attempts"`
	LastFailureReason *string `json:"last_failure_reason"`
	Description       *string `json:"description"`
}

// PaymentLogItem 扣款审计记录
type PaymentLogItem struct {
	ID             string  `json:"id"`
	SubscriptionID string  `json:"subscription_id"`
	CustomerID     string  `json:"customer_id"`
	Amount         int64   `json:"amount"`
	AttemptNumber  int     `json:"attempt_number"`
	Status         string  `json:"status"`
	TransactionID  *string `json:"transaction_id"`
	AuthCode       *string `json:"auth_code"`
	FailureReason  *string `json:"failure_reason"`
	AttemptedAt    string  `json:"attempted_at"`
}
