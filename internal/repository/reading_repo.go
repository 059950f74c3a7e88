package repository

import (
	"context"
	"errors"

	"rentledger/internal/model"

	"gorm.io/gorm"
)

var (
	ErrReadingNotFound  = errors.New("水表读数不存在")
	ErrDuplicateReading = errors.New("该账期已有水表读数")
	ErrReadingPaid      = errors.New("该水费已结清")
)

type ReadingRepository struct {
	db *gorm.DB
}

func NewReadingRepository(db *gorm.DB) *ReadingRepository {
	return &ReadingRepository{db: db}
}

// Create 新增读数，(tenant_id, month) 唯一索引兜底防重
func (r *ReadingRepository) Create(ctx context.Context, reading *model.WaterReading) error {
	err := r.db.WithContext(ctx).Create(reading).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateReading
		}
		return err
	}
	return nil
}

func (r *ReadingRepository) GetByTenantAndMonth(ctx context.Context, tenantID int64, month string) (*model.WaterReading, error) {
	var reading model.WaterReading
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND month = ?", tenantID, month).
		First(&reading).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &reading, nil
}

// GetLatest 查询租户最近一条读数（用于默认上月表底）
func (r *ReadingRepository) GetLatest(ctx context.Context, tenantID int64) (*model.WaterReading, error) {
	var reading model.WaterReading
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("month DESC").
		First(&reading).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &reading, nil
}

// MarkPaid 结清水费并绑定支付单
//
// 带 paid = false 条件的单条 UPDATE，RowsAffected=0 说明已被其他支付结清，
// 防止同一账期水费被重复核销
func (r *ReadingRepository) MarkPaid(ctx context.Context, tx *gorm.DB, id int64, paymentID int64) error {
	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.WaterReading{}).
		Where("id = ? AND paid = ?", id, false).
		Updates(map[string]interface{}{
			"paid":       true,
			"payment_id": paymentID,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrReadingPaid
	}
	return nil
}

// LinkPayment 提交时预关联支付单（不结清，结清只发生在审核通过时）
func (r *ReadingRepository) LinkPayment(ctx context.Context, tx *gorm.DB, id int64, paymentID int64) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).
		Model(&model.WaterReading{}).
		Where("id = ? AND paid = ?", id, false).
		Update("payment_id", paymentID).Error
}

func (r *ReadingRepository) ListByTenant(ctx context.Context, tenantID int64, page, pageSize int) ([]*model.WaterReading, int64, error) {
	var readings []*model.WaterReading
	var total int64

	query := r.db.WithContext(ctx).Model(&model.WaterReading{}).Where("tenant_id = ?", tenantID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("month DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&readings).Error

	return readings, total, err
}

func (r *ReadingRepository) ListUnpaid(ctx context.Context, tenantID int64) ([]*model.WaterReading, error) {
	var readings []*model.WaterReading
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND paid = ?", tenantID, false).
		Order("month ASC").
		Find(&readings).Error
	return readings, err
}

// SumUnpaid 未结水费总额（租金之外的第二条欠款轨道）
func (r *ReadingRepository) SumUnpaid(ctx context.Context, tenantID int64) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&model.WaterReading{}).
		Where("tenant_id = ? AND paid = ?", tenantID, false).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error
	return total, err
}
