package service

import (
	"context"
	"testing"

	"rentledger/internal/repository"
	"rentledger/pkg/billing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordReadingDefaultsPrevious(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	svc := newTestPaymentService(t, db, nil)
	readings := NewReadingService(db, svc.Audit())
	tenant := onboardTestTenant(t, db, svc.Audit())

	// 首次抄表无历史，上月表底默认为 0
	first, err := readings.Record(ctx, &RecordReadingRequest{
		TenantID: tenant.ID, Month: "2025-08", Current: 100,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), first.Previous)
	assert.Equal(t, int64(100), first.Units)
	assert.Equal(t, int64(100*350), first.Amount)
	assert.Equal(t, int64(350), first.Rate)
	assert.False(t, first.Paid)

	// 第二次默认取上次的本月表底
	second, err := readings.Record(ctx, &RecordReadingRequest{
		TenantID: tenant.ID, Month: "2025-09", Current: 125,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(100), second.Previous)
	assert.Equal(t, int64(25), second.Units)
	assert.Equal(t, int64(25*350), second.Amount)
}

func TestRecordReadingDuplicateMonth(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	svc := newTestPaymentService(t, db, nil)
	readings := NewReadingService(db, svc.Audit())
	tenant := onboardTestTenant(t, db, svc.Audit())

	_, err := readings.Record(ctx, &RecordReadingRequest{TenantID: tenant.ID, Month: "2025-09", Current: 100})
	require.NoError(t, err)

	_, err = readings.Record(ctx, &RecordReadingRequest{TenantID: tenant.ID, Month: "2025-09", Current: 110})
	assert.ErrorIs(t, err, repository.ErrDuplicateReading)
}

func TestRecordReadingValidation(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	svc := newTestPaymentService(t, db, nil)
	readings := NewReadingService(db, svc.Audit())
	tenant := onboardTestTenant(t, db, svc.Audit())

	_, err := readings.Record(ctx, &RecordReadingRequest{TenantID: tenant.ID, Month: "2025-9", Current: 100})
	assert.ErrorIs(t, err, ErrInvalidMonth)

	// 倒表
	prev := int64(200)
	_, err = readings.Record(ctx, &RecordReadingRequest{TenantID: tenant.ID, Month: "2025-09", Previous: &prev, Current: 100})
	assert.ErrorIs(t, err, billing.ErrInvalidReading)

	_, err = readings.Record(ctx, &RecordReadingRequest{TenantID: 99999, Month: "2025-09", Current: 100})
	assert.ErrorIs(t, err, repository.ErrTenantNotFound)
}

func TestRecordReadingFormerTenant(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	svc := newTestPaymentService(t, db, nil)
	readings := NewReadingService(db, svc.Audit())
	tenant := onboardTestTenant(t, db, svc.Audit())

	_, err := NewTenantService(db, svc.Audit()).Vacate(ctx, tenant.ID, 1, nil)
	require.NoError(t, err)

	_, err = readings.Record(ctx, &RecordReadingRequest{TenantID: tenant.ID, Month: "2025-09", Current: 100})
	assert.ErrorIs(t, err, repository.ErrTenantInactive)
}
