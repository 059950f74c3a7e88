package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rentledger/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrReceiptNotFound = errors.New("收据不存在")
	ErrReceiptExists   = errors.New("支付单已有收据")
)

type ReceiptRepository struct {
	db *gorm.DB
}

func NewReceiptRepository(db *gorm.DB) *ReceiptRepository {
	return &ReceiptRepository{db: db}
}

// Create 落库收据，payment_id / receipt_no 唯一索引兜底防重
func (r *ReceiptRepository) Create(ctx context.Context, tx *gorm.DB, receipt *model.Receipt) error {
	if tx == nil {
		tx = r.db
	}
	err := tx.WithContext(ctx).Create(receipt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrReceiptExists
		}
		return err
	}
	return nil
}

func (r *ReceiptRepository) GetByPaymentID(ctx context.Context, paymentID int64) (*model.Receipt, error) {
	var receipt model.Receipt
	err := r.db.WithContext(ctx).Where("payment_id = ?", paymentID).First(&receipt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &receipt, nil
}

func (r *ReceiptRepository) GetByReceiptNo(ctx context.Context, receiptNo string) (*model.Receipt, error) {
	var receipt model.Receipt
	err := r.db.WithContext(ctx).Where("receipt_no = ?", receiptNo).First(&receipt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReceiptNotFound
		}
		return nil, err
	}
	return &receipt, nil
}

// ReserveSequence 预占下一个收据序号
//
// 【关键点】发号在独立事务内完成并立即提交，与审核主事务分离：
// 主事务回滚时该序号作废（允许空洞来自失败的审核尝试，
// 但绝不会出现两张收据共用一个号）。
// 事务内先保证序列行存在，再原子自增并回读——UPDATE 持有行锁，
// 同事务内的 SELECT 读到的就是自己加出来的值
func (r *ReceiptRepository) ReserveSequence(ctx context.Context, prefix string, year int) (int64, error) {
	var next int64

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seq := &model.ReceiptSequence{Prefix: prefix, Year: year, LastValue: 0}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "prefix"}, {Name: "year"}},
			DoNothing: true,
		}).Create(seq).Error; err != nil {
			return err
		}

		if err := tx.Model(&model.ReceiptSequence{}).
			Where("prefix = ? AND year = ?", prefix, year).
			UpdateColumn("last_value", gorm.Expr("last_value + 1")).Error; err != nil {
			return err
		}

		var row model.ReceiptSequence
		if err := tx.Where("prefix = ? AND year = ?", prefix, year).First(&row).Error; err != nil {
			return err
		}
		next = row.LastValue
		return nil
	})

	if err != nil {
		return 0, err
	}
	return next, nil
}

// MarkDownloaded 下载计数
func (r *ReceiptRepository) MarkDownloaded(ctx context.Context, receiptNo string) error {
	now := time.Now()
	result := r.db.WithContext(ctx).
		Model(&model.Receipt{}).
		Where("receipt_no = ?", receiptNo).
		Updates(map[string]interface{}{
			"downloaded":     true,
			"downloaded_at":  &now,
			"download_count": gorm.Expr("download_count + 1"),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrReceiptNotFound
	}
	return nil
}

// UpdateArtifactPath 收据文件重新渲染后回写位置
func (r *ReceiptRepository) UpdateArtifactPath(ctx context.Context, receiptNo, path string) error {
	result := r.db.WithContext(ctx).
		Model(&model.Receipt{}).
		Where("receipt_no = ?", receiptNo).
		Update("artifact_path", path)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrReceiptNotFound
	}
	return nil
}

// CountByYearPrefix 指定年份已落库收据数（看板/对账用）
func (r *ReceiptRepository) CountByYearPrefix(ctx context.Context, prefix string, year int) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Receipt{}).
		Where("receipt_no LIKE ?", fmt.Sprintf("%s-%d-%%", prefix, year)).
		Count(&count).Error
	return count, err
}
