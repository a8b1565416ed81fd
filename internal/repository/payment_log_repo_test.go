package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/pos_billing_server/internal/model"
	"github.com/qs3c/pos_billing_server/internal/testutil"
)

func TestPaymentLogRepository_Append(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewPaymentLogRepository(db)
	tenant := testutil.TestTenant(t, db)
	customer := testutil.TestCustomer(t, db, tenant.ID)
	sub := testutil.TestSubscription(t, db, tenant.ID, customer.ID)

	txID := "TX1"
	authCode := "A1"
	now := time.Now().UTC()
	entry := &model.PaymentLog{
		SubscriptionID: sub.ID,
		TenantID:       tenant.ID,
		CustomerID:     customer.ID,
		Amount:         sub.Amount,
		AttemptNumber:  1,
		Status:         model.PaymentLogStatusSuccess,
		TransactionID:  &txID,
		AuthCode:       &authCode,
		RawResponse:    `{"status":"approved"}`,
		AttemptedAt:    now,
		ProcessedAt:    &now,
	}

	err := repo.Append(entry)
	require.NoError(t, err)
	assert.NotEmpty(t, entry.ID)

	logs, err := repo.ListBySubscription(sub.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, model.PaymentLogStatusSuccess, logs[0].Status)
	require.NotNil(t, logs[0].TransactionID)
	assert.Equal(t, "TX1", *logs[0].TransactionID)
	assert.Nil(t, logs[0].FailureReason)
}

func TestPaymentLogRepository_ListBySubscription_NewestFirst(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewPaymentLogRepository(db)
	tenant := testutil.TestTenant(t, db)
	customer := testutil.TestCustomer(t, db, tenant.ID)
	sub := testutil.TestSubscription(t, db, tenant.ID, customer.ID)
	base := time.Now().UTC().Truncate(time.Second)

	first := testutil.TestPaymentLog(t, db, sub, model.PaymentLogStatusFailed, base.Add(-2*time.Hour))
	latest := testutil.TestPaymentLog(t, db, sub, model.PaymentLogStatusSuccess, base)

	logs, err := repo.ListBySubscription(sub.ID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, latest.ID, logs[0].ID)
	assert.Equal(t, first.ID, logs[1].ID)
}

func TestPaymentLogRepository_ListByTenant_Paged(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewPaymentLogRepository(db)
	tenant := testutil.TestTenant(t, db)
	other := testutil.TestTenant(t, db)
	customer := testutil.TestCustomer(t, db, tenant.ID)
	sub := testutil.TestSubscription(t, db, tenant.ID, customer.ID)
	otherSub := testutil.TestSubscription(t, db, other.ID, customer.ID)
	base := time.Now().UTC().Truncate(time.Second)

	for i := 0; i < 5; i++ {
		testutil.TestPaymentLog(t, db, sub, model.PaymentLogStatusFailed, base.Add(time.Duration(i)*time.Minute))
	}
	testutil.TestPaymentLog(t, db, otherSub, model.PaymentLogStatusSuccess, base)

	logs, total, err := repo.ListByTenant(tenant.ID, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	assert.Len(t, logs, 2)

	logs, total, err = repo.ListByTenant(tenant.ID, 3, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	assert.Len(t, logs, 1)
}

func TestPaymentLogRepository_CountBySubscription(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewPaymentLogRepository(db)
	tenant := testutil.TestTenant(t, db)
	customer := testutil.TestCustomer(t, db, tenant.ID)
	sub := testutil.TestSubscription(t, db, tenant.ID, customer.ID)

	count, err := repo.CountBySubscription(sub.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	testutil.TestPaymentLog(t, db, sub, model.PaymentLogStatusFailed, time.Now().UTC())
	testutil.TestPaymentLog(t, db, sub, model.PaymentLogStatusFailed, time.Now().UTC())

	count, err = repo.CountBySubscription(sub.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}
