package model

import (
	"time"
)

// ============================================================================
// 租户状态常量
// ============================================================================

const (
	TenantStatusCurrent    = "CURRENT"    // 正常（无欠租）
	TenantStatusOverdue    = "OVERDUE"    // 欠租
	TenantStatusDelinquent = "DELINQUENT" // 严重欠租（人工标记）
	TenantStatusEvicted    = "EVICTED"    // 已清退（人工标记）
	TenantStatusFormer     = "FORMER"     // 已退租（软删除）
)

// IsActiveTenantStatus 判断租户是否仍在租
func IsActiveTenantStatus(status string) bool {
	return status != TenantStatusFormer && status != TenantStatusEvicted
}

// DeriveTenantStatus 根据租金余额推导租户状态
//
// 【规则】balance <= 0 时必为 CURRENT；balance > 0 时为 OVERDUE。
// DELINQUENT / EVICTED 属于人工升级状态，欠租金额不会自动覆盖它们，
// 但还清欠款后会回到 CURRENT。
func DeriveTenantStatus(currentStatus string, balance int64) string {
	if balance <= 0 {
		if currentStatus == TenantStatusEvicted || currentStatus == TenantStatusFormer {
			return currentStatus
		}
		return TenantStatusCurrent
	}
	if currentStatus == TenantStatusDelinquent ||
		currentStatus == TenantStatusEvicted ||
		currentStatus == TenantStatusFormer {
		return currentStatus
	}
	return TenantStatusOverdue
}

// Tenant 租户表
// 记录租户的月租金、水费单价和租金余额，是整个对账系统的核心数据
type Tenant struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	TenantNo    string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"tenant_no"` // 租户编号
	Name        string    `gorm:"type:varchar(64);not null" json:"name"`                  // 姓名
	Phone       string    `gorm:"type:varchar(32)" json:"phone"`                          // 联系电话
	Unit        string    `gorm:"type:varchar(32);index" json:"unit"`                     // 房号（退租后释放）
	MonthlyRent int64     `gorm:"not null" json:"monthly_rent"`                           // 月租金（分）
	WaterRate   int64     `gorm:"not null" json:"water_rate"`                             // 水费单价（分/吨）
	Balance     int64     `gorm:"not null;default:0" json:"balance"`                      // 租金余额（正数表示欠款）
	Version     int       `gorm:"not null;default:0" json:"version"`                      // 乐观锁版本号
	Status      string    `gorm:"type:varchar(20);index;not null;default:CURRENT" json:"status"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Tenant) TableName() string {
	return "tenant"
}

// FormerTenant 退租归档表
// 退租时写入一条归档记录并释放房号，而不是改写租户编号来腾出唯一索引
type FormerTenant struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ArchiveNo    string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"archive_no"` // 归档编号
	TenantID     int64     `gorm:"index;not null" json:"tenant_id"`
	TenantNo     string    `gorm:"type:varchar(64);index;not null" json:"tenant_no"`
	Unit         string    `gorm:"type:varchar(32);not null" json:"unit"` // 退租时占用的房号
	FinalBalance int64     `gorm:"not null" json:"final_balance"`         // 退租时的租金余额
	VacatedAt    time.Time `gorm:"not null" json:"vacated_at"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (FormerTenant) TableName() string {
	return "former_tenant"
}
