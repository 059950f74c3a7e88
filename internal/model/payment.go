package model

import (
	"time"
)

const (
	PaymentStatusPending   = "PENDING"
	PaymentStatusVerified  = "VERIFIED"
	PaymentStatusRejected  = "REJECTED"
	PaymentStatusCancelled = "CANCELLED"
)

const (
	PaymentTypeRent        = "RENT"
	PaymentTypeWater       = "WATER"
	PaymentTypeMaintenance = "MAINTENANCE"
	PaymentTypeOther       = "OTHER"
)

// ValidStatusTransitions 支付单合法状态流转表
//
// VERIFIED / REJECTED / CANCELLED 均为终态，不允许再次流转
var ValidStatusTransitions = map[string][]string{
	PaymentStatusPending: {PaymentStatusVerified, PaymentStatusRejected, PaymentStatusCancelled},
}

func CanTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidStatusTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

func IsValidPaymentType(t string) bool {
	switch t {
	case PaymentTypeRent, PaymentTypeWater, PaymentTypeMaintenance, PaymentTypeOther:
		return true
	}
	return false
}

// Payment 支付单表
// 租户提交的付款凭据，经管理员审核后才产生财务影响
type Payment struct {
	ID           int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	PaymentNo    string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"payment_no"` // 支付单号
	TenantID     int64      `gorm:"index;not null" json:"tenant_id"`
	Type         string     `gorm:"type:varchar(20);not null" json:"type"`   // RENT / WATER / MAINTENANCE / OTHER
	Method       string     `gorm:"type:varchar(32)" json:"method"`          // 支付方式（转账、现金等）
	Amount       int64      `gorm:"not null" json:"amount"`                  // 金额（分）
	Month        string     `gorm:"type:varchar(7);index" json:"month"`      // 账期 YYYY-MM
	Status       string     `gorm:"type:varchar(20);index;not null" json:"status"`
	EvidenceRefs string     `gorm:"type:text" json:"evidence_refs"`          // 凭证文件引用列表（JSON，外部文件服务持有）
	VerifiedBy   *int64     `json:"verified_by"`                             // 审核人
	VerifiedAt   *time.Time `json:"verified_at"`
	AdminNotes   string     `gorm:"type:varchar(256)" json:"admin_notes"`
	CreatedAt    time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Payment) TableName() string {
	return "payment"
}
