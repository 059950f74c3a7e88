package model

import (
	"time"
)

// ============================================================================
// 租金流水实体
// ============================================================================

const (
	LedgerEntryTypeCharge  = "CHARGE"  // 计租（余额增加）
	LedgerEntryTypeCredit  = "CREDIT"  // 收款核销（余额减少）
	LedgerEntryTypeAdjust  = "ADJUST"  // 人工调整
)

// LedgerEntry 租金流水表
// 记录租户余额的每一笔变动，是对账的核心依据
//
// 【重要】流水表设计原则：
// 1. 只追加，不修改，不删除 —— 保证审计可追溯
// 2. 收款流水必须关联支付单号 —— 便于对账
// 3. 记录变动前后余额 —— 便于校验余额一致性
type LedgerEntry struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	EntryNo       string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"entry_no"` // 流水号（全局唯一）
	TenantID      int64     `gorm:"index;not null" json:"tenant_id"`
	PaymentNo     string    `gorm:"type:varchar(64);index" json:"payment_no"` // 关联支付单号（计租流水为空）
	Delta         int64     `gorm:"not null" json:"delta"`                    // 变动金额（正数计租，负数核销）
	Type          string    `gorm:"type:varchar(20);not null" json:"type"`
	BalanceBefore int64     `gorm:"not null" json:"balance_before"`
	BalanceAfter  int64     `gorm:"not null" json:"balance_after"`
	Remark        string    `gorm:"type:varchar(256)" json:"remark"`
	CreatedAt     time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (LedgerEntry) TableName() string {
	return "ledger_entry"
}
