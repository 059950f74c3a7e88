package service

import (
	"context"
	"fmt"
	"log"

	"rentledger/internal/model"
	"rentledger/internal/repository"
	"rentledger/pkg/billing"

	"gorm.io/gorm"
)

// ReadingService 水表抄表
type ReadingService struct {
	db          *gorm.DB
	tenantRepo  *repository.TenantRepository
	readingRepo *repository.ReadingRepository
	audit       *AuditService
}

func NewReadingService(db *gorm.DB, audit *AuditService) *ReadingService {
	return &ReadingService{
		db:          db,
		tenantRepo:  repository.NewTenantRepository(db),
		readingRepo: repository.NewReadingRepository(db),
		audit:       audit,
	}
}

type RecordReadingRequest struct {
	TenantID int64
	Month    string
	Previous *int64 // 为空时取上次抄表的本月表底，无历史记录则为 0
	Current  int64
	Meta     *AuditMeta
}

// Record 录入一个账期的水表读数
//
// 水费单价从租户档案固化到读数行；(tenant, month) 唯一索引防止重复抄表
func (s *ReadingService) Record(ctx context.Context, req *RecordReadingRequest) (*model.WaterReading, error) {
	if !billing.ValidMonthKey(req.Month) {
		return nil, ErrInvalidMonth
	}

	tenant, err := s.tenantRepo.GetByID(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}
	if tenant.Status == model.TenantStatusFormer {
		return nil, repository.ErrTenantInactive
	}

	var previous int64
	if req.Previous != nil {
		previous = *req.Previous
	} else {
		latest, err := s.readingRepo.GetLatest(ctx, tenant.ID)
		if err != nil {
			return nil, err
		}
		if latest != nil {
			previous = latest.Current
		}
	}

	units, err := billing.MeterUnits(previous, req.Current)
	if err != nil {
		return nil, err
	}
	amount, err := billing.WaterAmount(units, tenant.WaterRate)
	if err != nil {
		return nil, err
	}

	reading := &model.WaterReading{
		TenantID: tenant.ID,
		Month:    req.Month,
		Previous: previous,
		Current:  req.Current,
		Units:    units,
		Rate:     tenant.WaterRate,
		Amount:   amount,
		Paid:     false,
	}

	if err := s.readingRepo.Create(ctx, reading); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, nil, "reading.record", "water_reading", fmt.Sprintf("%d/%s", tenant.ID, req.Month),
		map[string]interface{}{},
		map[string]interface{}{"previous": previous, "current": req.Current, "units": units, "amount": amount},
		req.Meta,
	)

	log.Printf("水表读数已录入: tenantNo=%s, month=%s, units=%d, amount=%d",
		tenant.TenantNo, req.Month, units, amount)
	return reading, nil
}

func (s *ReadingService) ListByTenant(ctx context.Context, tenantID int64, page, pageSize int) ([]*model.WaterReading, int64, error) {
	return s.readingRepo.ListByTenant(ctx, tenantID, page, pageSize)
}

func (s *ReadingService) GetByTenantAndMonth(ctx context.Context, tenantID int64, month string) (*model.WaterReading, error) {
	return s.readingRepo.GetByTenantAndMonth(ctx, tenantID, month)
}

func (s *ReadingService) ListUnpaid(ctx context.Context, tenantID int64) ([]*model.WaterReading, error) {
	return s.readingRepo.ListUnpaid(ctx, tenantID)
}
