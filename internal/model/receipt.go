package model

import (
	"time"
)

// Receipt 收据表
// 与已审核通过的支付单一一对应（payment_id 唯一索引），
// 收据编号形如 MTA-2025-0001，年内连续递增
type Receipt struct {
	ID           int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	ReceiptNo    string     `gorm:"type:varchar(32);uniqueIndex;not null" json:"receipt_no"`
	PaymentID    int64      `gorm:"uniqueIndex;not null" json:"payment_id"`
	TenantID     int64      `gorm:"index;not null" json:"tenant_id"`
	Amount       int64      `gorm:"not null" json:"amount"`                        // 收款金额（分）
	ArtifactPath string     `gorm:"type:varchar(256);not null" json:"artifact_path"` // 收据文件位置
	GeneratedAt  time.Time  `gorm:"not null" json:"generated_at"`
	Downloaded   bool       `gorm:"not null;default:false" json:"downloaded"`
	DownloadedAt *time.Time `json:"downloaded_at"`
	DownloadCount int       `gorm:"not null;default:0" json:"download_count"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Receipt) TableName() string {
	return "receipt"
}

// ReceiptSequence 收据号序列表
// 每个（前缀，年份）一行，last_value 在事务内原子自增
//
// 【重要】不用内存计数器发号：进程重启或多实例部署时内存序列会重复，
// 序列必须落库才能保证年内无重号
type ReceiptSequence struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Prefix    string    `gorm:"type:varchar(16);not null;uniqueIndex:uk_prefix_year" json:"prefix"`
	Year      int       `gorm:"not null;uniqueIndex:uk_prefix_year" json:"year"`
	LastValue int64     `gorm:"not null;default:0" json:"last_value"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ReceiptSequence) TableName() string {
	return "receipt_sequence"
}
