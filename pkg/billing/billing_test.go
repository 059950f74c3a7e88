package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeterUnits(t *testing.T) {
	tests := []struct {
		name     string
		previous int64
		current  int64
		want     int64
		wantErr  error
	}{
		{name: "正常用量", previous: 100, current: 125, want: 25},
		{name: "零用量", previous: 100, current: 100, want: 0},
		{name: "首次抄表", previous: 0, current: 42, want: 42},
		{name: "倒表", previous: 125, current: 100, wantErr: ErrInvalidReading},
		{name: "负数表底", previous: -1, current: 10, wantErr: ErrInvalidReading},
		{name: "负数本月表底", previous: 0, current: -5, wantErr: ErrInvalidReading},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MeterUnits(tt.previous, tt.current)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWaterAmount(t *testing.T) {
	// 25 吨 * 350 分/吨 = 8750 分
	amount, err := WaterAmount(25, 350)
	require.NoError(t, err)
	assert.Equal(t, int64(8750), amount)

	// 零用量合法，水费为零
	amount, err = WaterAmount(0, 350)
	require.NoError(t, err)
	assert.Equal(t, int64(0), amount)

	_, err = WaterAmount(-1, 350)
	assert.ErrorIs(t, err, ErrInvalidReading)

	_, err = WaterAmount(25, -1)
	assert.ErrorIs(t, err, ErrInvalidRate)
}

func TestValidMonthKey(t *testing.T) {
	valid := []string{"2025-01", "2025-09", "2025-12", "1999-06"}
	for _, s := range valid {
		assert.True(t, ValidMonthKey(s), s)
	}

	invalid := []string{"", "2025-13", "2025-00", "2025-1", "2025/01", "202501", "25-01", "2025-01-01"}
	for _, s := range invalid {
		assert.False(t, ValidMonthKey(s), s)
	}
}
