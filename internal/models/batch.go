package models

import "time"

// Batch 实物批次表（数量不落库，始终由台账推导）
type Batch struct {
	ID              uint      `gorm:"primarykey" json:"id"`                                      // 内部主键
	Code            string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"code"`         // 批次编码（业务唯一）
	CooperativeID   uint      `gorm:"index;not null" json:"cooperative_id"`                      // 所属合作社
	ProductType     string    `gorm:"type:varchar(32);index;not null" json:"product_type"`       // 产品形态（cherry/green_bean...）
	Unit            string    `gorm:"type:varchar(16);not null" json:"unit"`                     // 计量单位
	ParentBatchCode *string   `gorm:"type:varchar(64);index" json:"parent_batch_code,omitempty"` // 父批次编码（为空表示原始采收批次）
	CreatedBy       string    `gorm:"type:varchar(128)" json:"created_by"`                       // 创建主体
	CreatedAt       time.Time `gorm:"index" json:"created_at"`                                   // 创建时间
}

// TableName 指定表名
func (Batch) TableName() string {
	return "batches"
}

// IsOrigin 是否为原始采收批次
func (b Batch) IsOrigin() bool {
	return b.ParentBatchCode == nil || *b.ParentBatchCode == ""
}

// ParentCode 返回父批次编码（无父批次时为空串）
func (b Batch) ParentCode() string {
	if b.ParentBatchCode == nil {
		return ""
	}
	return *b.ParentBatchCode
}
