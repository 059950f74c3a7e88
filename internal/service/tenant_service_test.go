package service

import (
	"context"
	"testing"

	"rentledger/internal/model"
	"rentledger/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOnboardUnitOccupied(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	svc := newTestPaymentService(t, db, nil)
	tenants := NewTenantService(db, svc.Audit())

	first, err := tenants.Onboard(ctx, &OnboardRequest{
		Name: "张三", Unit: "5-101", MonthlyRent: 15000, WaterRate: 350,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, first.TenantNo)
	assert.Equal(t, model.TenantStatusCurrent, first.Status)
	assert.Equal(t, int64(0), first.Balance)

	// 同一房号不能住两个在租租户
	_, err = tenants.Onboard(ctx, &OnboardRequest{
		Name: "李四", Unit: "5-101", MonthlyRent: 16000, WaterRate: 350,
	})
	assert.ErrorIs(t, err, repository.ErrUnitOccupied)

	_, err = tenants.Onboard(ctx, &OnboardRequest{
		Name: "李四", Unit: "5-102", MonthlyRent: 0, WaterRate: 350,
	})
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestEscalateRules(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	svc := newTestPaymentService(t, db, nil)
	tenants := NewTenantService(db, svc.Audit())
	tenant := onboardTestTenant(t, db, svc.Audit())

	// 没有逾期不能直接标记拖欠
	err := tenants.Escalate(ctx, tenant.ID, model.TenantStatusDelinquent, 7, nil)
	assert.ErrorIs(t, err, ErrInvalidEscalation)

	_, err = svc.Ledger().PostMonthlyRent(ctx, tenant.ID, "2025-09")
	require.NoError(t, err)

	// OVERDUE -> DELINQUENT -> EVICTED 逐级人工升级
	require.NoError(t, tenants.Escalate(ctx, tenant.ID, model.TenantStatusDelinquent, 7, nil))
	require.NoError(t, tenants.Escalate(ctx, tenant.ID, model.TenantStatusEvicted, 7, nil))

	evicted, err := tenants.Get(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TenantStatusEvicted, evicted.Status)

	// 清退是人工终点，不能再升级
	err = tenants.Escalate(ctx, tenant.ID, model.TenantStatusDelinquent, 7, nil)
	assert.ErrorIs(t, err, ErrInvalidEscalation)
}

func TestDelinquentClearsOnPayment(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	svc := newTestPaymentService(t, db, nil)
	tenants := NewTenantService(db, svc.Audit())
	tenant := onboardTestTenant(t, db, svc.Audit())

	_, err := svc.Ledger().PostMonthlyRent(ctx, tenant.ID, "2025-09")
	require.NoError(t, err)
	require.NoError(t, tenants.Escalate(ctx, tenant.ID, model.TenantStatusDelinquent, 7, nil))

	// 部分收款不会让拖欠自动降级
	payment, err := svc.Submit(ctx, &SubmitRequest{
		TenantID: tenant.ID, Type: model.PaymentTypeRent, Amount: 5000, Month: "2025-09",
	})
	require.NoError(t, err)
	_, err = svc.Verify(ctx, &VerifyRequest{PaymentNo: payment.PaymentNo, VerifierID: 7, Outcome: model.PaymentStatusVerified})
	require.NoError(t, err)

	mid, err := tenants.Get(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), mid.Balance)
	assert.Equal(t, model.TenantStatusDelinquent, mid.Status)

	// 欠款全部结清才回到正常
	payment, err = svc.Submit(ctx, &SubmitRequest{
		TenantID: tenant.ID, Type: model.PaymentTypeRent, Amount: 10000, Month: "2025-09",
	})
	require.NoError(t, err)
	_, err = svc.Verify(ctx, &VerifyRequest{PaymentNo: payment.PaymentNo, VerifierID: 7, Outcome: model.PaymentStatusVerified})
	require.NoError(t, err)

	after, err := tenants.Get(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), after.Balance)
	assert.Equal(t, model.TenantStatusCurrent, after.Status)
}

func TestVacateArchivesAndFreesUnit(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	svc := newTestPaymentService(t, db, nil)
	tenants := NewTenantService(db, svc.Audit())

	tenant, err := tenants.Onboard(ctx, &OnboardRequest{
		Name: "张三", Unit: "6-301", MonthlyRent: 15000, WaterRate: 350,
	})
	require.NoError(t, err)

	_, err = svc.Ledger().PostMonthlyRent(ctx, tenant.ID, "2025-09")
	require.NoError(t, err)

	archive, err := tenants.Vacate(ctx, tenant.ID, 7, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, archive.ArchiveNo)
	assert.Equal(t, tenant.TenantNo, archive.TenantNo)
	assert.Equal(t, "6-301", archive.Unit)
	assert.Equal(t, int64(15000), archive.FinalBalance)

	former, err := tenants.Get(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TenantStatusFormer, former.Status)
	assert.Empty(t, former.Unit)

	// 重复退租报错
	_, err = tenants.Vacate(ctx, tenant.ID, 7, nil)
	assert.ErrorIs(t, err, repository.ErrTenantInactive)

	// 房号释放，新租户可以入住
	_, err = tenants.Onboard(ctx, &OnboardRequest{
		Name: "李四", Unit: "6-301", MonthlyRent: 16000, WaterRate: 350,
	})
	require.NoError(t, err)
}
