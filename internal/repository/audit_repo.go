package repository

import (
	"context"
	"time"

	"rentledger/internal/model"

	"gorm.io/gorm"
)

type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create 追加审计日志
//
// 【注意】审计写入永远走基础连接，不挂在调用方的事务上：
// 审计失败不允许回滚财务操作，财务回滚也不应撤销已写的审计
func (r *AuditRepository) Create(ctx context.Context, entry *model.AuditLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *AuditRepository) ListByEntity(ctx context.Context, entityType, entityID string, limit int) ([]*model.AuditLog, error) {
	var entries []*model.AuditLog
	err := r.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

// PurgeOlderThan 按保留期限清理历史日志，返回删除条数
func (r *AuditRepository) PurgeOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("created_at < ?", before).
		Delete(&model.AuditLog{})
	return result.RowsAffected, result.Error
}
