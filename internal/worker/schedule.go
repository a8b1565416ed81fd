package worker

import (
	"log"
	"time"

	"github.com/qs3c/pos_billing_server/internal/model"
)

// NextChargeDate 计算扣款成功后的下次扣款日，结果归一到当天 00:00:00（now 所在时区）。
// 月度扣款遇到目标月份没有 billingDay 时取该月最后一天。
func NextChargeDate(cycle model.BillingCycle, billingDay int, now time.Time) time.Time {
	y, m, d := now.Date()
	loc := now.Location()

	switch cycle {
	case model.BillingCycleDaily:
		return time.Date(y, m, d+1, 0, 0, 0, 0, loc)
	case model.BillingCycleWeekly:
		return time.Date(y, m, d+7, 0, 0, 0, 0, loc)
	case model.BillingCycleMonthly:
		return nextMonthly(billingDay, now)
	default:
		log.Printf("[Billing] unknown billing cycle %q, falling back to monthly", cycle)
		return nextMonthly(billingDay, now)
	}
}

func nextMonthly(billingDay int, now time.Time) time.Time {
	if billingDay <= 0 {
		billingDay = now.Day()
	}

	loc := now.Location()
	// 先定位到下个月 1 号，避免 time.Date 对溢出日期自动进位
	first := time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, loc)
	last := daysIn(first.Year(), first.Month(), loc)
	if billingDay > last {
		billingDay = last
	}

	return time.Date(first.Year(), first.Month(), billingDay, 0, 0, 0, 0, loc)
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}
