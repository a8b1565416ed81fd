package worker

import (
	"fmt"
	"time"
)

type ResultStatus string

const (
	ResultSuccess ResultStatus = "success"
	ResultFailed  ResultStatus = "failed"
	ResultSkipped ResultStatus = "skipped"
)

// 跳过原因
const (
	ReasonAlreadyProcessing = "already being processed"
	ReasonNoLongerDue       = "no longer due"
	ReasonPassCancelled     = "pass cancelled"
)

// 前置条件失败原因，会写入 last_failure_reason 和审计日志
const (
	ReasonInvalidBillingCycle = "Invalid billing cycle"
	ReasonCustomerNotFound    = "Customer not found"
	ReasonNoActiveToken       = "No active payment token"
	ReasonTenantNotFound      = "Tenant not found"
	ReasonAuthNotConfigured   = "auth token not configured"
	ReasonGatewayTimeout      = "Gateway timeout"
	ReasonPaymentDeclined     = "Payment declined"
)

// SubscriptionResult 单个订阅在本轮的处理结果
type SubscriptionResult struct {
	SubscriptionID string       `json:"subscription_id"`
	CustomerID     string       `json:"customer_id"`
	Status         ResultStatus `json:"status"`
	Error          string       `json:"error,omitempty"`
	TransactionID  string       `json:"transaction_id,omitempty"`
	AuthCode       string       `json:"auth_code,omitempty"`

	auditFailed bool
}

// ProcessingResult 一轮扣款的汇总
type ProcessingResult struct {
	RunID          string               `json:"run_id,omitempty"`
	TenantID       string               `json:"tenant_id,omitempty"`
	TotalProcessed int                  `json:"total_processed"`
	Successful     int                  `json:"successful"`
	Failed         int                  `json:"failed"`
	Skipped        int                  `json:"skipped"`
	AuditFailures  int                  `json:"audit_failures"`
	DryRun         bool                 `json:"dry_run"`
	StartedAt      time.Time            `json:"started_at"`
	FinishedAt     time.Time            `json:"finished_at"`
	Results        []SubscriptionResult `json:"results"`
}

func (r *ProcessingResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

func (r *ProcessingResult) Summary() string {
	mode := ""
	if r.DryRun {
		mode = " (dry-run)"
	}
	return fmt.Sprintf("processed=%d successful=%d failed=%d skipped=%d audit_failures=%d in %s%s",
		r.TotalProcessed, r.Successful, r.Failed, r.Skipped, r.AuditFailures,
		r.Duration().Round(time.Millisecond), mode)
}

func skipped(sub SubscriptionResult, reason string) SubscriptionResult {
	sub.Status = ResultSkipped
	sub.Error = reason
	return sub
}

func failed(sub SubscriptionResult, reason string) SubscriptionResult {
	sub.Status = ResultFailed
	sub.Error = reason
	return sub
}
