package models

import "time"

// LedgerTransaction 台账流水（只追加，写入后不可修改）
type LedgerTransaction struct {
	ID            uint      `gorm:"primarykey" json:"id"`                                 // 主键
	BatchID       uint      `gorm:"index;not null" json:"batch_id"`                       // 批次ID
	BatchCode     string    `gorm:"type:varchar(64);index;not null" json:"batch_code"`    // 批次编码
	CooperativeID uint      `gorm:"index;not null" json:"cooperative_id"`                 // 合作社ID
	Kind          string    `gorm:"type:varchar(16);index;not null" json:"kind"`          // 类型（RECEIPT/TRANSFORM_IN/TRANSFORM_OUT/DISPATCH/ADJUSTMENT）
	Operation     string    `gorm:"type:varchar(32);index;not null" json:"operation"`     // 业务操作标签
	QuantityDelta Quantity  `gorm:"type:decimal(20,3);not null" json:"quantity_delta"`    // 带符号数量变化
	Date          time.Time `gorm:"index;not null" json:"date"`                           // 业务日期
	FarmerID      *uint     `gorm:"index" json:"farmer_id,omitempty"`                     // 农户ID
	LandID        *uint     `gorm:"index" json:"land_id,omitempty"`                       // 地块ID
	Counterparty  string    `gorm:"type:varchar(128)" json:"counterparty,omitempty"`      // 交易对手（供应商/买家）
	Price         *Money    `gorm:"type:decimal(20,2)" json:"price,omitempty"`            // 单价
	OperationRef  string    `gorm:"type:varchar(64);index;not null" json:"operation_ref"` // 同一逻辑操作的分组引用
	ReversalOfID  *uint     `gorm:"index" json:"reversal_of_id,omitempty"`                // 冲正的原流水ID
	Note          string    `gorm:"type:text" json:"note,omitempty"`                      // 备注
	CreatedBy     string    `gorm:"type:varchar(128)" json:"created_by"`                  // 记账主体
	CreatedAt     time.Time `gorm:"index" json:"created_at"`                              // 写入时间
}

// TableName 指定表名
func (LedgerTransaction) TableName() string {
	return "transactions"
}

// IsOutflow 是否为出库方向
func (t LedgerTransaction) IsOutflow() bool {
	return t.QuantityDelta.Decimal.IsNegative()
}
