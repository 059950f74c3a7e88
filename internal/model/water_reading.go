package model

import (
	"time"
)

// WaterReading 水表读数表
// 每个租户每个账期最多一条（tenant_id + month 唯一索引）
//
// 【重要】水费单价在抄表时固化到 rate 字段，之后调价不影响历史账单
type WaterReading struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	TenantID  int64     `gorm:"not null;uniqueIndex:uk_tenant_month" json:"tenant_id"`
	Month     string    `gorm:"type:varchar(7);not null;uniqueIndex:uk_tenant_month" json:"month"` // 账期 YYYY-MM
	Previous  int64     `gorm:"not null" json:"previous"`                                          // 上月表底
	Current   int64     `gorm:"not null" json:"current"`                                           // 本月表底
	Units     int64     `gorm:"not null" json:"units"`                                             // 用量 = current - previous
	Rate      int64     `gorm:"not null" json:"rate"`                                              // 抄表时单价（分/吨）
	Amount    int64     `gorm:"not null" json:"amount"`                                            // 应缴水费（分）
	Paid      bool      `gorm:"not null;default:false;index" json:"paid"`
	PaymentID *int64    `gorm:"index" json:"payment_id"` // 结清该水费的支付单
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (WaterReading) TableName() string {
	return "water_reading"
}
