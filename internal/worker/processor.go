package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/qs3c/pos_billing_server/config"
	"github.com/qs3c/pos_billing_server/internal/gateway"
	"github.com/qs3c/pos_billing_server/internal/model"
	"github.com/qs3c/pos_billing_server/internal/pkg/lock"
	"github.com/qs3c/pos_billing_server/internal/pkg/pubsub"
	"github.com/qs3c/pos_billing_server/internal/repository"
)

var ErrTenantRequired = errors.New("tenant id is required")

const defaultDescription = "Recurring payment"

// LockKey 单个订阅的认领锁
func LockKey(subscriptionID string) string {
	return "billing:subscription:" + subscriptionID
}

// Processor 定期扣款处理器
type Processor struct {
	subs      SubscriptionStore
	logs      PaymentLogStore
	customers CustomerStore
	tenants   TenantStore
	gateway   gateway.Gateway
	locker    lock.Locker
	publisher EventPublisher
	cfg       *config.Config
	billing   config.BillingConfig
	policy    RetryPolicy
	now       func() time.Time

	// 所有扣款轮次共用一个网关限速器，nil 表示不限速
	limiter *rate.Limiter
}

// NewProcessor 创建扣款处理器。publisher 可以为 nil。
func NewProcessor(
	subs SubscriptionStore,
	logs PaymentLogStore,
	customers CustomerStore,
	tenants TenantStore,
	gw gateway.Gateway,
	locker lock.Locker,
	publisher EventPublisher,
	cfg *config.Config,
) *Processor {
	billing := cfg.Billing.WithDefaults()
	if locker == nil {
		locker = lock.NewMemoryLocker()
	}
	return &Processor{
		subs:      subs,
		logs:      logs,
		customers: customers,
		tenants:   tenants,
		gateway:   gw,
		locker:    locker,
		publisher: publisher,
		cfg:       cfg,
		billing:   billing,
		policy:    NewRetryPolicy(billing),
		limiter:   newChargeLimiter(billing),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// newChargeLimiter dry-run 不调用网关，间隔为 0 表示关闭限速
func newChargeLimiter(b config.BillingConfig) *rate.Limiter {
	if b.DryRun || b.InterAttemptDelay() <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(b.InterAttemptDelay()), 1)
}

// claimTTL 认领锁至少覆盖一次完整的网关调用
func (p *Processor) claimTTL() time.Duration {
	if ttl := p.billing.MinLockTTL(); ttl > p.billing.LockTTL() {
		return ttl
	}
	return p.billing.LockTTL()
}

// SetClock 替换时钟，测试用
func (p *Processor) SetClock(now func() time.Time) {
	p.now = now
}

func (p *Processor) DryRun() bool {
	return p.billing.DryRun
}

// ProcessAllDueSubscriptions 处理所有租户的到期订阅。
// 只有列举失败会返回 error，单个订阅的问题都记录在 Results 里。
func (p *Processor) ProcessAllDueSubscriptions(ctx context.Context) (*ProcessingResult, error) {
	startedAt := p.now()
	subs, err := p.subs.ListDue(startedAt, p.policy.MaxAttempts)
	if err != nil {
		return nil, fmt.Errorf("failed to list due subscriptions: %w", err)
	}

	log.Printf("[Billing] %d due subscriptions across all tenants", len(subs))
	result := p.processBatch(ctx, subs, startedAt)
	return result, nil
}

// ProcessTenantSubscriptions 只处理指定租户的到期订阅
func (p *Processor) ProcessTenantSubscriptions(ctx context.Context, tenantID string) (*ProcessingResult, error) {
	if tenantID == "" {
		return nil, ErrTenantRequired
	}

	startedAt := p.now()
	subs, err := p.subs.ListDueByTenant(tenantID, startedAt, p.policy.MaxAttempts)
	if err != nil {
		return nil, fmt.Errorf("failed to list due subscriptions for tenant %s: %w", tenantID, err)
	}

	log.Printf("[Billing] %d due subscriptions for tenant %s", len(subs), tenantID)
	result := p.processBatch(ctx, subs, startedAt)
	result.TenantID = tenantID
	return result, nil
}

type passCounters struct {
	successful    atomic.Int64
	failed        atomic.Int64
	skipped       atomic.Int64
	auditFailures atomic.Int64
}

func (c *passCounters) record(r SubscriptionResult) {
	switch r.Status {
	case ResultSuccess:
		c.successful.Add(1)
	case ResultFailed:
		c.failed.Add(1)
	default:
		c.skipped.Add(1)
	}
	if r.auditFailed {
		c.auditFailures.Add(1)
	}
}

func (p *Processor) processBatch(ctx context.Context, subs []*model.Subscription, startedAt time.Time) *ProcessingResult {
	results := make([]SubscriptionResult, len(subs))
	var counters passCounters

	var g errgroup.Group
	g.SetLimit(p.billing.Workers)

	for i, sub := range subs {
		i, sub := i, sub
		base := SubscriptionResult{SubscriptionID: sub.ID, CustomerID: sub.CustomerID}
		if ctx.Err() != nil {
			results[i] = skipped(base, ReasonPassCancelled)
			counters.record(results[i])
			continue
		}

		g.Go(func() error {
			if ctx.Err() != nil {
				results[i] = skipped(base, ReasonPassCancelled)
			} else {
				results[i] = p.processOne(ctx, sub)
			}
			counters.record(results[i])
			return nil
		})
	}
	_ = g.Wait()

	result := &ProcessingResult{
		TotalProcessed: len(subs),
		Successful:     int(counters.successful.Load()),
		Failed:         int(counters.failed.Load()),
		Skipped:        int(counters.skipped.Load()),
		AuditFailures:  int(counters.auditFailures.Load()),
		DryRun:         p.billing.DryRun,
		StartedAt:      startedAt,
		FinishedAt:     p.now(),
		Results:        results,
	}
	log.Printf("[Billing] pass finished: %s", result.Summary())
	return result
}

// processOne 认领并处理单个订阅。
// 先等限速再认领，锁的 TTL 只需覆盖认领之后的工作。
func (p *Processor) processOne(ctx context.Context, sub *model.Subscription) SubscriptionResult {
	res := SubscriptionResult{SubscriptionID: sub.ID, CustomerID: sub.CustomerID}

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return skipped(res, ReasonPassCancelled)
		}
	}

	release, acquired, err := p.locker.TryAcquire(ctx, LockKey(sub.ID), p.claimTTL())
	if err != nil {
		log.Printf("[Billing] subscription %s: lock error: %v", sub.ID, err)
		return skipped(res, fmt.Sprintf("lock unavailable: %v", err))
	}
	if !acquired {
		return skipped(res, ReasonAlreadyProcessing)
	}
	defer release()

	// 拿到锁后重新读取，另一轮可能已经推进了扣款日
	current, err := p.subs.GetByID(sub.ID)
	if err != nil {
		if errors.Is(err, repository.ErrSubscriptionNotFound) {
			return skipped(res, ReasonNoLongerDue)
		}
		log.Printf("[Billing] subscription %s: reload failed: %v", sub.ID, err)
		return failed(res, fmt.Sprintf("failed to reload subscription: %v", err))
	}

	now := p.now()
	if !current.IsDue(now, p.policy.MaxAttempts) {
		return skipped(res, ReasonNoLongerDue)
	}
	res.CustomerID = current.CustomerID

	req, reason, err := p.prepareCharge(current)
	if err != nil {
		// 查询故障不计入失败次数，下一轮会重新选中
		log.Printf("[Billing] subscription %s: precondition lookup failed: %v", sub.ID, err)
		return failed(res, err.Error())
	}
	if reason != "" {
		if p.billing.DryRun {
			log.Printf("[Billing] dry-run: subscription %s would fail: %s", sub.ID, reason)
			return failed(res, reason)
		}
		return p.fail(ctx, current, now, res, reason, "")
	}

	if p.billing.DryRun {
		log.Printf("[Billing] dry-run: would charge subscription %s amount=%d attempt=%d",
			sub.ID, current.Amount, req.AttemptNumber)
		res.Status = ResultSuccess
		return res
	}

	// 已发出的扣款不可取消，只受单次超时约束
	chargeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.billing.GatewayTimeout())
	defer cancel()

	charge, err := p.gateway.Charge(chargeCtx, req)
	if err != nil {
		reason := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			reason = ReasonGatewayTimeout
		}
		log.Printf("[Billing] subscription %s: gateway error: %v", sub.ID, err)
		return p.fail(ctx, current, now, res, reason, "")
	}
	if !charge.Success {
		reason := charge.Error
		if reason == "" {
			reason = ReasonPaymentDeclined
		}
		return p.fail(ctx, current, now, res, reason, charge.RawResponse)
	}

	return p.succeed(ctx, current, now, res, charge)
}

// prepareCharge 按顺序检查前置条件。reason 非空表示前置条件失败。
func (p *Processor) prepareCharge(sub *model.Subscription) (*gateway.ChargeRequest, string, error) {
	if !sub.BillingCycle.Valid() {
		return nil, ReasonInvalidBillingCycle, nil
	}

	customer, err := p.customers.GetByID(sub.CustomerID)
	if err != nil {
		if errors.Is(err, repository.ErrCustomerNotFound) {
			return nil, ReasonCustomerNotFound, nil
		}
		return nil, "", fmt.Errorf("failed to load customer: %w", err)
	}

	token, ok := customer.ActiveToken()
	if !ok {
		return nil, ReasonNoActiveToken, nil
	}

	tenant, err := p.tenants.GetByID(sub.TenantID)
	if err != nil {
		if errors.Is(err, repository.ErrTenantNotFound) {
			return nil, ReasonTenantNotFound, nil
		}
		return nil, "", fmt.Errorf("failed to load tenant: %w", err)
	}

	creds := p.credentials(tenant)
	if creds.AuthToken == "" {
		return nil, ReasonAuthNotConfigured, nil
	}

	attempt := sub.FailedAttempts + 1
	return &gateway.ChargeRequest{
		Amount:        sub.Amount,
		Token:         token,
		Credentials:   creds,
		Description:   sub.DescriptionOr(defaultDescription),
		AttemptNumber: attempt,
		Reference:     fmt.Sprintf("%s-%d-%d", sub.ID, sub.NextChargeDate.Unix(), attempt),
	}, "", nil
}

// credentials 租户凭证优先，缺失时用全局配置
func (p *Processor) credentials(tenant *model.Tenant) gateway.Credentials {
	creds := gateway.Credentials{
		AuthToken:  tenant.GatewayAuthToken,
		MerchantID: tenant.MerchantID,
	}
	if creds.AuthToken == "" {
		creds.AuthToken = p.cfg.Gateway.AuthToken
	}
	if creds.MerchantID == "" {
		creds.MerchantID = p.cfg.Gateway.MerchantID
	}
	return creds
}

func (p *Processor) succeed(ctx context.Context, sub *model.Subscription, now time.Time, res SubscriptionResult, charge *gateway.ChargeResult) SubscriptionResult {
	attempt := sub.FailedAttempts + 1
	next := NextChargeDate(sub.BillingCycle, sub.BillingDay, now)

	res.Status = ResultSuccess
	res.TransactionID = charge.TransactionID
	res.AuthCode = charge.AuthCode

	err := p.subs.Update(sub.ID, map[string]interface{}{
		"status":              model.SubscriptionStatusActive,
		"last_charge_date":    now,
		"next_charge_date":    next,
		"failed_attempts":     0,
		"last_failure_reason": nil,
	})
	if err != nil {
		// 钱已经扣了，审计日志仍然要写
		log.Printf("[Billing] subscription %s: charged (tx=%s) but state update failed: %v",
			sub.ID, charge.TransactionID, err)
		res.Error = fmt.Sprintf("failed to update subscription: %v", err)
	}

	processedAt := now
	entry := &model.PaymentLog{
		SubscriptionID: sub.ID,
		TenantID:       sub.TenantID,
		CustomerID:     sub.CustomerID,
		Amount:         sub.Amount,
		AttemptNumber:  attempt,
		Status:         model.PaymentLogStatusSuccess,
		TransactionID:  optional(charge.TransactionID),
		AuthCode:       optional(charge.AuthCode),
		RawResponse:    charge.RawResponse,
		AttemptedAt:    now,
		ProcessedAt:    &processedAt,
	}
	res.auditFailed = !p.appendLog(entry)

	log.Printf("[Billing] subscription %s charged amount=%d tx=%s next=%s",
		sub.ID, sub.Amount, charge.TransactionID, next.Format("2006-01-02"))

	p.publish(ctx, &pubsub.BillingEvent{
		Type:           pubsub.EventChargeSucceeded,
		TenantID:       sub.TenantID,
		SubscriptionID: sub.ID,
		CustomerID:     sub.CustomerID,
		Amount:         sub.Amount,
		AttemptNumber:  attempt,
		TransactionID:  charge.TransactionID,
		OccurredAt:     now,
	})

	return res
}

func (p *Processor) fail(ctx context.Context, sub *model.Subscription, now time.Time, res SubscriptionResult, reason, raw string) SubscriptionResult {
	attempt := sub.FailedAttempts + 1
	exhausted := p.policy.Exhausted(attempt)

	fields := map[string]interface{}{
		"failed_attempts":     attempt,
		"last_failure_reason": reason,
	}
	if exhausted {
		fields["status"] = model.SubscriptionStatusFailed
	} else {
		fields["next_charge_date"] = p.policy.NextAttempt(attempt, now)
	}

	res = failed(res, reason)
	if err := p.subs.Update(sub.ID, fields); err != nil {
		log.Printf("[Billing] subscription %s: failed to record failure: %v", sub.ID, err)
		res.Error = fmt.Sprintf("%s (state update failed: %v)", reason, err)
	}

	entry := &model.PaymentLog{
		SubscriptionID: sub.ID,
		TenantID:       sub.TenantID,
		CustomerID:     sub.CustomerID,
		Amount:         sub.Amount,
		AttemptNumber:  attempt,
		Status:         model.PaymentLogStatusFailed,
		FailureReason:  &reason,
		RawResponse:    raw,
		AttemptedAt:    now,
	}
	res.auditFailed = !p.appendLog(entry)

	eventType := pubsub.EventChargeFailed
	if exhausted {
		eventType = pubsub.EventRetriesExhausted
		log.Printf("[Billing] subscription %s marked failed after %d attempts: %s", sub.ID, attempt, reason)
	} else {
		log.Printf("[Billing] subscription %s attempt %d failed: %s", sub.ID, attempt, reason)
	}

	p.publish(ctx, &pubsub.BillingEvent{
		Type:           eventType,
		TenantID:       sub.TenantID,
		SubscriptionID: sub.ID,
		CustomerID:     sub.CustomerID,
		Amount:         sub.Amount,
		AttemptNumber:  attempt,
		Error:          reason,
		OccurredAt:     now,
	})

	return res
}

// appendLog 审计日志写入失败不回滚订阅状态
func (p *Processor) appendLog(entry *model.PaymentLog) bool {
	if err := p.logs.Append(entry); err != nil {
		log.Printf("[Billing] subscription %s: failed to append payment log (attempt %d, %s): %v",
			entry.SubscriptionID, entry.AttemptNumber, entry.Status, err)
		return false
	}
	return true
}

func (p *Processor) publish(ctx context.Context, event *pubsub.BillingEvent) {
	if p.publisher == nil || !p.billing.EnableNotifications {
		return
	}
	if err := p.publisher.Publish(context.WithoutCancel(ctx), event); err != nil {
		log.Printf("[Billing] failed to publish %s event for %s: %v", event.Type, event.SubscriptionID, err)
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
