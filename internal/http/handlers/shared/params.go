package shared

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	dateLayout  = "2006-01-02"
	monthLayout = "2006-01"
)

// ParseDateTime 解析 RFC3339 或 YYYY-MM-DD 日期；空串返回 nil。
func ParseDateTime(raw string) (*time.Time, error) {
	t, _, err := parseDate(raw)
	return t, err
}

// ParseDateUntil 解析含当日的截止日期（闭区间 <=）。
// 仅日期时取当日最后一刻，带时间时按原值。
func ParseDateUntil(raw string) (*time.Time, error) {
	t, dateOnly, err := parseDate(raw)
	if err != nil || t == nil || !dateOnly {
		return t, err
	}
	end := t.AddDate(0, 0, 1).Add(-time.Nanosecond)
	return &end, nil
}

// ParseDateBefore 解析开区间截止日期（<）。
// 仅日期时取次日零点，使当日包含在内。
func ParseDateBefore(raw string) (*time.Time, error) {
	t, dateOnly, err := parseDate(raw)
	if err != nil || t == nil || !dateOnly {
		return t, err
	}
	next := t.AddDate(0, 0, 1)
	return &next, nil
}

func parseDate(raw string) (*time.Time, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, false, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		utc := t.UTC()
		return &utc, false, nil
	}
	t, err := time.ParseInLocation(dateLayout, raw, time.UTC)
	if err != nil {
		return nil, false, err
	}
	return &t, true, nil
}

// ParseMonth 解析 YYYY-MM 月份
func ParseMonth(raw string) (time.Time, error) {
	return time.ParseInLocation(monthLayout, strings.TrimSpace(raw), time.UTC)
}

// ParseOptionalDecimal 解析可选数量/金额
func ParseOptionalDecimal(raw *string) (*decimal.Decimal, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	value, err := decimal.NewFromString(strings.TrimSpace(*raw))
	if err != nil {
		return nil, err
	}
	return &value, nil
}

// DateOrZero 解引用日期，空值交给服务层取当前时间
func DateOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
