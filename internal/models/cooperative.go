package models

import "time"

// Cooperative 合作社（参考数据，由登记系统维护）
type Cooperative struct {
	ID        uint      `gorm:"primarykey" json:"id"`                              // 主键
	Code      string    `gorm:"type:varchar(32);uniqueIndex;not null" json:"code"` // 合作社编码
	Name      string    `gorm:"type:varchar(128);not null" json:"name"`            // 名称
	Province  string    `gorm:"type:varchar(64);index;not null" json:"province"`   // 所在省份
	District  string    `gorm:"type:varchar(64)" json:"district"`                  // 所在区县
	Address   string    `gorm:"type:text" json:"address"`                          // 地址
	CreatedAt time.Time `gorm:"index" json:"created_at"`                           // 创建时间
	UpdatedAt time.Time `json:"updated_at"`                                        // 更新时间
}

// TableName 指定表名
func (Cooperative) TableName() string {
	return "cooperatives"
}
