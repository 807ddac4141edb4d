package models

import (
	"database/sql/driver"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// QuantityScale 数量保留位数（公斤精确到克）
	QuantityScale int32 = 3
	// MoneyScale 金额保留位数
	MoneyScale int32 = 2
)

// Quantity 台账数量类型（保留 3 位小数，单位由批次声明）
type Quantity struct {
	decimal.Decimal
}

// NewQuantity 从 decimal 创建数量
func NewQuantity(value decimal.Decimal) Quantity {
	return Quantity{Decimal: value.Round(QuantityScale)}
}

// NewQuantityFromInt 从整数创建数量
func NewQuantityFromInt(value int64) Quantity {
	return Quantity{Decimal: decimal.NewFromInt(value)}
}

// ParseQuantity 解析字符串数量
func ParseQuantity(raw string) (Quantity, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return Quantity{}, err
	}
	return NewQuantity(d), nil
}

// Neg 返回相反数
func (q Quantity) Neg() Quantity {
	return Quantity{Decimal: q.Decimal.Neg()}
}

// MarshalJSON 统一输出 3 位小数的字符串
func (q Quantity) MarshalJSON() ([]byte, error) {
	return json.Marshal(q.String())
}

// UnmarshalJSON 解析数量（字符串或数字）
func (q *Quantity) UnmarshalJSON(b []byte) error {
	d, err := unmarshalScaledDecimal(b, QuantityScale)
	if err != nil {
		return err
	}
	q.Decimal = d
	return nil
}

// Value 用于数据库写入
func (q Quantity) Value() (driver.Value, error) {
	return q.Decimal.Round(QuantityScale).Value()
}

// Scan 用于数据库读取
func (q *Quantity) Scan(value interface{}) error {
	if err := q.Decimal.Scan(value); err != nil {
		return err
	}
	q.Decimal = q.Decimal.Round(QuantityScale)
	return nil
}

// String 返回 3 位小数格式
func (q Quantity) String() string {
	return q.Decimal.Round(QuantityScale).StringFixed(QuantityScale)
}

// Money 金额类型（保留 2 位小数），用于收购价与销售价
type Money struct {
	decimal.Decimal
}

// NewMoneyFromDecimal 从 decimal 创建金额
func NewMoneyFromDecimal(amount decimal.Decimal) Money {
	return Money{Decimal: amount.Round(MoneyScale)}
}

// MarshalJSON 统一输出 2 位小数的字符串
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON 解析金额（字符串或数字）
func (m *Money) UnmarshalJSON(b []byte) error {
	d, err := unmarshalScaledDecimal(b, MoneyScale)
	if err != nil {
		return err
	}
	m.Decimal = d
	return nil
}

// Value 用于数据库写入
func (m Money) Value() (driver.Value, error) {
	return m.Decimal.Round(MoneyScale).Value()
}

// Scan 用于数据库读取
func (m *Money) Scan(value interface{}) error {
	if err := m.Decimal.Scan(value); err != nil {
		return err
	}
	m.Decimal = m.Decimal.Round(MoneyScale)
	return nil
}

// String 返回 2 位小数格式
func (m Money) String() string {
	return m.Decimal.Round(MoneyScale).StringFixed(MoneyScale)
}

func unmarshalScaledDecimal(b []byte, scale int32) (decimal.Decimal, error) {
	if len(b) == 0 || string(b) == "null" {
		return decimal.Zero, nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return decimal.Zero, err
		}
		d, err := decimal.NewFromString(strings.TrimSpace(s))
		if err != nil {
			return decimal.Zero, err
		}
		return d.Round(scale), nil
	}
	d, err := decimal.NewFromString(string(b))
	if err != nil {
		return decimal.Zero, err
	}
	return d.Round(scale), nil
}
