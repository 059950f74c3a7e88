package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"rentledger/internal/config"
	"rentledger/internal/model"
	"rentledger/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func createPendingPayment(t *testing.T, db *gorm.DB, tenantID int64, amount int64) *model.Payment {
	t.Helper()

	payment := &model.Payment{
		PaymentNo: fmt.Sprintf("PMT-RCPT-%d", time.Now().UnixNano()),
		TenantID:  tenantID,
		Type:      model.PaymentTypeRent,
		Amount:    amount,
		Month:     "2025-09",
		Status:    model.PaymentStatusPending,
	}
	require.NoError(t, repository.NewPaymentRepository(db).Create(context.Background(), nil, payment))
	return payment
}

func TestIssueSequentialNumbers(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	svc := newTestPaymentService(t, db, nil)
	tenant := onboardTestTenant(t, db, svc.Audit())

	receipts := NewReceiptService(db, nil, &stubRenderer{}, config.Default())
	year := time.Now().Year()

	// 连发 5 张，编号连续且唯一
	for i := 1; i <= 5; i++ {
		payment := createPendingPayment(t, db, tenant.ID, 15000)
		receipt, err := receipts.Issue(ctx, payment, tenant, nil)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("MTA-%d-%04d", year, i), receipt.ReceiptNo)
		assert.Equal(t, payment.Amount, receipt.Amount)
		assert.NotEmpty(t, receipt.ArtifactPath)

		require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
			return receipts.Persist(ctx, tx, receipt)
		}))
	}
}

func TestIssueDuplicatePayment(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	svc := newTestPaymentService(t, db, nil)
	tenant := onboardTestTenant(t, db, svc.Audit())

	receipts := NewReceiptService(db, nil, &stubRenderer{}, config.Default())
	repo := repository.NewReceiptRepository(db)
	year := time.Now().Year()

	payment := createPendingPayment(t, db, tenant.ID, 15000)
	receipt, err := receipts.Issue(ctx, payment, tenant, nil)
	require.NoError(t, err)
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return receipts.Persist(ctx, tx, receipt)
	}))

	// 同一支付单再出具直接报错，且不消耗序号
	_, err = receipts.Issue(ctx, payment, tenant, nil)
	assert.ErrorIs(t, err, repository.ErrReceiptExists)

	next, err := repo.ReserveSequence(ctx, "MTA", year)
	require.NoError(t, err)
	assert.Equal(t, int64(2), next)
}

func TestRenderFailureBurnsNumber(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	svc := newTestPaymentService(t, db, nil)
	tenant := onboardTestTenant(t, db, svc.Audit())
	year := time.Now().Year()

	failing := NewReceiptService(db, nil, &flakyRenderer{failures: 1}, config.Default())

	payment := createPendingPayment(t, db, tenant.ID, 15000)
	_, err := failing.Issue(ctx, payment, tenant, nil)
	assert.ErrorIs(t, err, ErrRenderFailed)

	// 渲染失败烧掉 0001，重试拿到 0002——序号作废不复用
	receipt, err := failing.Issue(ctx, payment, tenant, nil)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("MTA-%d-0002", year), receipt.ReceiptNo)
}

func TestRematerializeKeepsNumber(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	svc := newTestPaymentService(t, db, nil)
	tenant := onboardTestTenant(t, db, svc.Audit())

	rdr := &stubRenderer{}
	receipts := NewReceiptService(db, nil, rdr, config.Default())

	payment := createPendingPayment(t, db, tenant.ID, 15000)
	receipt, err := receipts.Issue(ctx, payment, tenant, nil)
	require.NoError(t, err)
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return receipts.Persist(ctx, tx, receipt)
	}))

	// 重渲染沿用已分配的收据号，不发新号
	path, err := receipts.Rematerialize(ctx, receipt.ReceiptNo, payment, tenant, nil)
	require.NoError(t, err)
	assert.Contains(t, path, receipt.ReceiptNo)
	assert.Equal(t, []string{receipt.ReceiptNo, receipt.ReceiptNo}, rdr.calls)

	stored, err := receipts.Get(ctx, receipt.ReceiptNo)
	require.NoError(t, err)
	assert.Equal(t, path, stored.ArtifactPath)
}

func TestMarkDownloaded(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	svc := newTestPaymentService(t, db, nil)
	tenant := onboardTestTenant(t, db, svc.Audit())

	receipts := NewReceiptService(db, nil, &stubRenderer{}, config.Default())

	payment := createPendingPayment(t, db, tenant.ID, 15000)
	receipt, err := receipts.Issue(ctx, payment, tenant, nil)
	require.NoError(t, err)
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return receipts.Persist(ctx, tx, receipt)
	}))

	require.NoError(t, receipts.MarkDownloaded(ctx, receipt.ReceiptNo))
	require.NoError(t, receipts.MarkDownloaded(ctx, receipt.ReceiptNo))

	stored, err := receipts.Get(ctx, receipt.ReceiptNo)
	require.NoError(t, err)
	assert.True(t, stored.Downloaded)
	assert.NotNil(t, stored.DownloadedAt)
	assert.Equal(t, 2, stored.DownloadCount)

	err = receipts.MarkDownloaded(ctx, "MTA-2099-9999")
	assert.ErrorIs(t, err, repository.ErrReceiptNotFound)
}
