package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"rentledger/internal/model"
	"rentledger/internal/repository"
	"rentledger/pkg/idgen"

	"gorm.io/gorm"
)

var (
	ErrInvalidEscalation = errors.New("状态升级不合法")
)

// TenantService 租户档案
type TenantService struct {
	db         *gorm.DB
	tenantRepo *repository.TenantRepository
	audit      *AuditService
}

func NewTenantService(db *gorm.DB, audit *AuditService) *TenantService {
	return &TenantService{
		db:         db,
		tenantRepo: repository.NewTenantRepository(db),
		audit:      audit,
	}
}

type OnboardRequest struct {
	Name        string
	Phone       string
	Unit        string
	MonthlyRent int64
	WaterRate   int64
	Meta        *AuditMeta
}

// Onboard 租户入住
func (s *TenantService) Onboard(ctx context.Context, req *OnboardRequest) (*model.Tenant, error) {
	if req.MonthlyRent <= 0 {
		return nil, ErrInvalidAmount
	}

	occupied, err := s.tenantRepo.GetActiveByUnit(ctx, req.Unit)
	if err != nil {
		return nil, err
	}
	if occupied != nil {
		return nil, repository.ErrUnitOccupied
	}

	tenant := &model.Tenant{
		TenantNo:    idgen.GenerateTenantNo(),
		Name:        req.Name,
		Phone:       req.Phone,
		Unit:        req.Unit,
		MonthlyRent: req.MonthlyRent,
		WaterRate:   req.WaterRate,
		Balance:     0,
		Status:      model.TenantStatusCurrent,
	}

	if err := s.tenantRepo.Create(ctx, tenant); err != nil {
		return nil, fmt.Errorf("创建租户失败: %w", err)
	}

	s.audit.Record(ctx, nil, "tenant.onboard", "tenant", tenant.TenantNo,
		map[string]interface{}{},
		map[string]interface{}{"name": tenant.Name, "unit": tenant.Unit, "monthly_rent": tenant.MonthlyRent, "status": tenant.Status},
		req.Meta,
	)

	log.Printf("租户已入住: tenantNo=%s, unit=%s, rent=%d", tenant.TenantNo, tenant.Unit, tenant.MonthlyRent)
	return tenant, nil
}

func (s *TenantService) Get(ctx context.Context, id int64) (*model.Tenant, error) {
	return s.tenantRepo.GetByID(ctx, id)
}

func (s *TenantService) GetByTenantNo(ctx context.Context, tenantNo string) (*model.Tenant, error) {
	return s.tenantRepo.GetByTenantNo(ctx, tenantNo)
}

func (s *TenantService) List(ctx context.Context, page, pageSize int) ([]*model.Tenant, int64, error) {
	return s.tenantRepo.List(ctx, page, pageSize)
}

// Escalate 人工状态升级
//
// 欠款状态的自动推导到 OVERDUE 为止；OVERDUE -> DELINQUENT、
// DELINQUENT -> EVICTED 是管理决定，不由余额自动触发
func (s *TenantService) Escalate(ctx context.Context, id int64, toStatus string, actor int64, meta *AuditMeta) error {
	tenant, err := s.tenantRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	var allowed bool
	switch toStatus {
	case model.TenantStatusDelinquent:
		allowed = tenant.Status == model.TenantStatusOverdue
	case model.TenantStatusEvicted:
		allowed = tenant.Status == model.TenantStatusOverdue || tenant.Status == model.TenantStatusDelinquent
	}
	if !allowed {
		return ErrInvalidEscalation
	}

	if err := s.tenantRepo.UpdateStatus(ctx, nil, id, tenant.Status, toStatus); err != nil {
		return err
	}

	s.audit.Record(ctx, &actor, "tenant.escalate", "tenant", tenant.TenantNo,
		map[string]interface{}{"status": tenant.Status},
		map[string]interface{}{"status": toStatus},
		meta,
	)

	log.Printf("租户状态升级: tenantNo=%s, %s -> %s", tenant.TenantNo, tenant.Status, toStatus)
	return nil
}

// Vacate 退租（软删除）
//
// 租户状态置 FORMER、释放房号，同时写入归档行；
// 不物理删除，保留历史支付与收据的关联
func (s *TenantService) Vacate(ctx context.Context, id int64, actor int64, meta *AuditMeta) (*model.FormerTenant, error) {
	tenant, err := s.tenantRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if tenant.Status == model.TenantStatusFormer {
		return nil, repository.ErrTenantInactive
	}

	archive := &model.FormerTenant{
		ArchiveNo:    idgen.GenerateArchiveNo(),
		TenantID:     tenant.ID,
		TenantNo:     tenant.TenantNo,
		Unit:         tenant.Unit,
		FinalBalance: tenant.Balance,
		VacatedAt:    time.Now(),
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.tenantRepo.Vacate(ctx, tx, tenant.ID); err != nil {
			return err
		}
		return s.tenantRepo.CreateArchive(ctx, tx, archive)
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, &actor, "tenant.vacate", "tenant", tenant.TenantNo,
		map[string]interface{}{"status": tenant.Status, "unit": tenant.Unit},
		map[string]interface{}{"status": model.TenantStatusFormer, "unit": "", "archive_no": archive.ArchiveNo},
		meta,
	)

	log.Printf("租户已退租: tenantNo=%s, unit=%s, finalBalance=%d", tenant.TenantNo, archive.Unit, archive.FinalBalance)
	return archive, nil
}
