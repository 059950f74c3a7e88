package billing

import (
	"errors"
	"regexp"
)

// ============================================================================
// 计费纯函数
// ============================================================================
//
// 所有金额以最小货币单位（分）的 int64 表示，不使用浮点数，
// 避免跨账期累计时出现精度漂移。

var (
	ErrInvalidReading = errors.New("水表读数不合法")
	ErrInvalidRate    = errors.New("水费单价不合法")
)

var monthKeyPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

// MeterUnits 计算用水量 = 本月表底 - 上月表底
// 本月表底小于上月表底（倒表）视为非法读数
func MeterUnits(previous, current int64) (int64, error) {
	if previous < 0 || current < 0 {
		return 0, ErrInvalidReading
	}
	if current < previous {
		return 0, ErrInvalidReading
	}
	return current - previous, nil
}

// WaterAmount 计算水费 = 用量 * 单价
func WaterAmount(units, ratePerUnit int64) (int64, error) {
	if units < 0 {
		return 0, ErrInvalidReading
	}
	if ratePerUnit < 0 {
		return 0, ErrInvalidRate
	}
	return units * ratePerUnit, nil
}

// ValidMonthKey 校验账期格式 YYYY-MM
func ValidMonthKey(s string) bool {
	return monthKeyPattern.MatchString(s)
}
