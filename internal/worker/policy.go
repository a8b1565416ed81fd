package worker

import (
	"time"

	"github.com/qs3c/pos_billing_server/config"
)

// RetryPolicy 失败重试阶梯。最后一级在阶梯用完后重复使用。
type RetryPolicy struct {
	MaxAttempts int
	DelayDays   []int
}

func NewRetryPolicy(cfg config.BillingConfig) RetryPolicy {
	cfg = cfg.WithDefaults()
	return RetryPolicy{
		MaxAttempts: cfg.MaxRetryAttempts,
		DelayDays:   cfg.RetryDelayDays,
	}
}

func (p RetryPolicy) delayDays(failedAttempts int) int {
	if len(p.DelayDays) == 0 {
		return 0
	}
	idx := failedAttempts - 1
	if idx < 0 {
		idx = 0
	}
	if idx > len(p.DelayDays)-1 {
		idx = len(p.DelayDays) - 1
	}
	return p.DelayDays[idx]
}

// Delay 第 failedAttempts 次失败之后的等待时间
func (p RetryPolicy) Delay(failedAttempts int) time.Duration {
	return time.Duration(p.delayDays(failedAttempts)) * 24 * time.Hour
}

// Exhausted 失败次数是否已用完重试预算
func (p RetryPolicy) Exhausted(failedAttempts int) bool {
	return failedAttempts >= p.MaxAttempts
}

// NextAttempt 下一次重试时间，按日历天推进
func (p RetryPolicy) NextAttempt(failedAttempts int, now time.Time) time.Time {
	return now.AddDate(0, 0, p.delayDays(failedAttempts))
}
