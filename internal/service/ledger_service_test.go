package service

import (
	"context"
	"sync"
	"testing"

	"rentledger/internal/config"
	"rentledger/internal/model"
	"rentledger/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostMonthlyRentAccumulates(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	svc := newTestPaymentService(t, db, nil)
	ledger := svc.Ledger()
	tenant := onboardTestTenant(t, db, svc.Audit())

	// 连记两个账期，欠款累加且状态转为逾期
	balance, err := ledger.PostMonthlyRent(ctx, tenant.ID, "2025-08")
	require.NoError(t, err)
	assert.Equal(t, int64(15000), balance)

	balance, err = ledger.PostMonthlyRent(ctx, tenant.ID, "2025-09")
	require.NoError(t, err)
	assert.Equal(t, int64(30000), balance)

	updated, err := repository.NewTenantRepository(db).GetByID(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TenantStatusOverdue, updated.Status)

	// 流水前后余额首尾相接
	entries, total, err := ledger.History(ctx, tenant.ID, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, model.LedgerEntryTypeCharge, e.Type)
		assert.Equal(t, e.BalanceBefore+e.Delta, e.BalanceAfter)
	}
}

func TestApplyDeltaClampZero(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	svc := newTestPaymentService(t, db, nil)
	ledger := svc.Ledger()
	tenant := onboardTestTenant(t, db, svc.Audit())

	_, err := ledger.PostMonthlyRent(ctx, tenant.ID, "2025-09")
	require.NoError(t, err)

	// 多缴 50 元：余额钳到 0，不产生负余额
	balance, err := ledger.ApplyDeltaWithRetry(ctx, &ApplyDeltaRequest{
		TenantID:  tenant.ID,
		Delta:     -20000,
		Type:      model.LedgerEntryTypeCredit,
		PaymentNo: "PMT-TEST-CLAMP",
		ClampZero: true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)

	updated, err := repository.NewTenantRepository(db).GetByID(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), updated.Balance)
	assert.Equal(t, model.TenantStatusCurrent, updated.Status)
}

func TestApplyDeltaValidation(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	svc := newTestPaymentService(t, db, nil)
	ledger := svc.Ledger()
	tenant := onboardTestTenant(t, db, svc.Audit())

	_, err := ledger.ApplyDeltaWithRetry(ctx, &ApplyDeltaRequest{TenantID: tenant.ID, Delta: 0})
	assert.ErrorIs(t, err, ErrInvalidDelta)

	_, err = ledger.ApplyDeltaWithRetry(ctx, &ApplyDeltaRequest{TenantID: 99999, Delta: 100, Type: model.LedgerEntryTypeAdjust})
	assert.ErrorIs(t, err, repository.ErrTenantNotFound)
}

func TestApplyDeltaFormerTenant(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	svc := newTestPaymentService(t, db, nil)
	ledger := svc.Ledger()
	tenant := onboardTestTenant(t, db, svc.Audit())

	_, err := NewTenantService(db, svc.Audit()).Vacate(ctx, tenant.ID, 1, nil)
	require.NoError(t, err)

	// 退租租户的余额冻结，不再接受任何变动
	_, err = ledger.ApplyDeltaWithRetry(ctx, &ApplyDeltaRequest{
		TenantID: tenant.ID,
		Delta:    15000,
		Type:     model.LedgerEntryTypeCharge,
	})
	assert.ErrorIs(t, err, repository.ErrTenantInactive)
}

// TestConcurrentDeltasSumExactly 并发变更在乐观锁重试下不丢更新
func TestConcurrentDeltasSumExactly(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	svc := newTestPaymentService(t, db, nil)
	tenant := onboardTestTenant(t, db, svc.Audit())

	// 并发冲突频繁，放宽重试上限
	cfg := config.Default()
	cfg.Business.MaxRetryCount = 20
	ledger := NewLedgerService(db, cfg, svc.Audit())

	const workers = 4
	const perWorker = 5
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				_, err := ledger.ApplyDeltaWithRetry(ctx, &ApplyDeltaRequest{
					TenantID: tenant.ID,
					Delta:    1000,
					Type:     model.LedgerEntryTypeCharge,
				})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	updated, err := repository.NewTenantRepository(db).GetByID(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(workers*perWorker*1000), updated.Balance)

	// 每次变更一条流水
	_, total, err := ledger.History(ctx, tenant.ID, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(workers*perWorker), total)
}

func TestOutstandingTwoTracks(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	svc := newTestPaymentService(t, db, nil)
	ledger := svc.Ledger()
	tenant := onboardTestTenant(t, db, svc.Audit())

	_, err := ledger.PostMonthlyRent(ctx, tenant.ID, "2025-09")
	require.NoError(t, err)

	// 未结水费单独成轨，不混进租金余额
	reading := NewReadingService(db, svc.Audit())
	prev := int64(100)
	_, err = reading.Record(ctx, &RecordReadingRequest{
		TenantID: tenant.ID,
		Month:    "2025-09",
		Previous: &prev,
		Current:  125,
	})
	require.NoError(t, err)

	detail, err := ledger.Outstanding(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(15000), detail.RentBalance)
	assert.Equal(t, int64(25*350), detail.WaterDue)
	assert.Equal(t, int64(15000+25*350), detail.Total)

	// 水费欠款不影响租金余额
	updated, err := repository.NewTenantRepository(db).GetByID(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(15000), updated.Balance)
}
