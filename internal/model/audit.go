package model

import (
	"time"
)

// AuditLog 审计日志表
// 只追加，不修改；仅按保留期限由后台任务清理
type AuditLog struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Actor      *int64    `gorm:"index" json:"actor"`                              // 操作人（系统操作为空）
	Action     string    `gorm:"type:varchar(32);index;not null" json:"action"`   // 动作，如 payment.verify
	EntityType string    `gorm:"type:varchar(32);index;not null" json:"entity_type"`
	EntityID   string    `gorm:"type:varchar(64);index;not null" json:"entity_id"`
	Diff       string    `gorm:"type:text" json:"diff"` // 变更差异（仅包含值发生变化的字段，JSON）
	IP         string    `gorm:"type:varchar(64)" json:"ip"`
	UserAgent  string    `gorm:"type:varchar(256)" json:"user_agent"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_log"
}
