package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveTenantStatus(t *testing.T) {
	tests := []struct {
		name    string
		current string
		balance int64
		want    string
	}{
		{name: "无欠款回到正常", current: TenantStatusOverdue, balance: 0, want: TenantStatusCurrent},
		{name: "拖欠结清后回到正常", current: TenantStatusDelinquent, balance: 0, want: TenantStatusCurrent},
		{name: "正常欠款转逾期", current: TenantStatusCurrent, balance: 15000, want: TenantStatusOverdue},
		{name: "逾期保持逾期", current: TenantStatusOverdue, balance: 500, want: TenantStatusOverdue},
		{name: "拖欠不会自动降级", current: TenantStatusDelinquent, balance: 500, want: TenantStatusDelinquent},
		{name: "清退状态不随欠款变化", current: TenantStatusEvicted, balance: 15000, want: TenantStatusEvicted},
		{name: "清退状态不随结清变化", current: TenantStatusEvicted, balance: 0, want: TenantStatusEvicted},
		{name: "退租状态冻结", current: TenantStatusFormer, balance: 0, want: TenantStatusFormer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveTenantStatus(tt.current, tt.balance))
		})
	}
}

func TestIsActiveTenantStatus(t *testing.T) {
	assert.True(t, IsActiveTenantStatus(TenantStatusCurrent))
	assert.True(t, IsActiveTenantStatus(TenantStatusOverdue))
	assert.True(t, IsActiveTenantStatus(TenantStatusDelinquent))
	assert.False(t, IsActiveTenantStatus(TenantStatusEvicted))
	assert.False(t, IsActiveTenantStatus(TenantStatusFormer))
}
