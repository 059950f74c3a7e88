package repository

import (
	"context"
	"errors"

	"rentledger/internal/model"

	"gorm.io/gorm"
)

var (
	ErrTenantNotFound = errors.New("租户不存在")
	ErrTenantInactive = errors.New("租户已退租")
	ErrOptimisticLock = errors.New("乐观锁冲突，请重试")
	ErrUnitOccupied   = errors.New("房号已被占用")
)

type TenantRepository struct {
	db *gorm.DB
}

func NewTenantRepository(db *gorm.DB) *TenantRepository {
	return &TenantRepository{db: db}
}

func (r *TenantRepository) Create(ctx context.Context, tenant *model.Tenant) error {
	return r.db.WithContext(ctx).Create(tenant).Error
}

func (r *TenantRepository) GetByID(ctx context.Context, id int64) (*model.Tenant, error) {
	var tenant model.Tenant
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&tenant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTenantNotFound
		}
		return nil, err
	}
	return &tenant, nil
}

func (r *TenantRepository) GetByTenantNo(ctx context.Context, tenantNo string) (*model.Tenant, error) {
	var tenant model.Tenant
	err := r.db.WithContext(ctx).Where("tenant_no = ?", tenantNo).First(&tenant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTenantNotFound
		}
		return nil, err
	}
	return &tenant, nil
}

// GetActiveByUnit 查询占用某房号的在租租户
func (r *TenantRepository) GetActiveByUnit(ctx context.Context, unit string) (*model.Tenant, error) {
	var tenant model.Tenant
	err := r.db.WithContext(ctx).
		Where("unit = ? AND status <> ?", unit, model.TenantStatusFormer).
		First(&tenant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tenant, nil
}

// UpdateBalanceAndStatus 版本校验更新余额与状态
//
// 【关键点】带 version 条件的单条 UPDATE：两笔审核并发核销同一租户时，
// 后提交的一方 RowsAffected=0，返回乐观锁冲突让上层重试，
// 绝不允许"先读后写"两步操作覆盖别人的更新
func (r *TenantRepository) UpdateBalanceAndStatus(ctx context.Context, tx *gorm.DB, id int64, newBalance int64, newStatus string, version int) error {
	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.Tenant{}).
		Where("id = ? AND version = ?", id, version).
		Updates(map[string]interface{}{
			"balance": newBalance,
			"status":  newStatus,
			"version": gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrOptimisticLock
	}

	return nil
}

// UpdateStatus 人工状态流转（OVERDUE -> DELINQUENT、清退等）
func (r *TenantRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, id int64, fromStatus, toStatus string) error {
	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.Tenant{}).
		Where("id = ? AND status = ?", id, fromStatus).
		Updates(map[string]interface{}{
			"status":  toStatus,
			"version": gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrOptimisticLock
	}
	return nil
}

// Vacate 退租：状态置 FORMER 并释放房号
func (r *TenantRepository) Vacate(ctx context.Context, tx *gorm.DB, id int64) error {
	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.Tenant{}).
		Where("id = ? AND status <> ?", id, model.TenantStatusFormer).
		Updates(map[string]interface{}{
			"status":  model.TenantStatusFormer,
			"unit":    "",
			"version": gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrTenantInactive
	}
	return nil
}

func (r *TenantRepository) CreateArchive(ctx context.Context, tx *gorm.DB, archive *model.FormerTenant) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(archive).Error
}

func (r *TenantRepository) List(ctx context.Context, page, pageSize int) ([]*model.Tenant, int64, error) {
	var tenants []*model.Tenant
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Tenant{})

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&tenants).Error

	return tenants, total, err
}

// CountByStatus 按状态统计租户数（看板用）
func (r *TenantRepository) CountByStatus(ctx context.Context, status string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Tenant{}).
		Where("status = ?", status).
		Count(&count).Error
	return count, err
}

// TotalArrears 在租租户欠款总额（看板用）
func (r *TenantRepository) TotalArrears(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&model.Tenant{}).
		Where("balance > 0 AND status <> ?", model.TenantStatusFormer).
		Select("COALESCE(SUM(balance), 0)").
		Scan(&total).Error
	return total, err
}
