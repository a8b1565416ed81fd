package worker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/qs3c/pos_billing_server/config"
)

func TestNewRetryPolicy_Defaults(t *testing.T) {
	policy := NewRetryPolicy(config.BillingConfig{})

	assert.Equal(t, 3, policy.MaxAttempts)
	assert.Equal(t, []int{1, 3, 7}, policy.DelayDays)
}

func TestRetryPolicy_Delay(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 5, DelayDays: []int{1, 3, 7}}

	tests := []struct {
		failedAttempts int
		want           time.Duration
	}{
		{0, 24 * time.Hour},
		{1, 24 * time.Hour},
		{2, 3 * 24 * time.Hour},
		{3, 7 * 24 * time.Hour},
		{4, 7 * 24 * time.Hour},
		{10, 7 * 24 * time.Hour},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, policy.Delay(tt.failedAttempts), "failedAttempts=%d", tt.failedAttempts)
	}
}

func TestRetryPolicy_DelayMonotonic(t *testing.T) {
	policy := NewRetryPolicy(config.DefaultBilling())

	prev := time.Duration(0)
	for n := 1; n <= 10; n++ {
		d := policy.Delay(n)
		assert.GreaterOrEqual(t, d, prev)
		prev = d
	}
}

func TestRetryPolicy_Exhausted(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, DelayDays: []int{1}}

	assert.False(t, policy.Exhausted(1))
	assert.False(t, policy.Exhausted(2))
	assert.True(t, policy.Exhausted(3))
	assert.True(t, policy.Exhausted(4))
}

func TestRetryPolicy_NextAttempt(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, DelayDays: []int{1, 3, 7}}
	now := time.Date(2024, 3, 10, 14, 30, 0, 0, time.UTC)

	assert.Equal(t, now.AddDate(0, 0, 1), policy.NextAttempt(1, now))
	assert.Equal(t, now.AddDate(0, 0, 3), policy.NextAttempt(2, now))
	assert.Equal(t, now.AddDate(0, 0, 7), policy.NextAttempt(3, now))
}

func TestRetryPolicy_EmptyLadder(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 1}

	assert.Equal(t, time.Duration(0), policy.Delay(1))
}
