package models

import "time"

// Farmer 农户（参考数据）
type Farmer struct {
	ID            uint       `gorm:"primarykey" json:"id"`
	CooperativeID uint       `gorm:"index;not null" json:"cooperative_id"`
	Code          string     `gorm:"type:varchar(32);index" json:"code"`
	Name          string     `gorm:"type:varchar(128);not null" json:"name"`
	Phone         string     `gorm:"type:varchar(32)" json:"phone,omitempty"`
	Status        string     `gorm:"type:varchar(16);index;not null;default:active" json:"status"`
	JoinedAt      *time.Time `json:"joined_at,omitempty"`
	CreatedAt     time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`

	Cooperative *Cooperative `gorm:"foreignKey:CooperativeID" json:"cooperative,omitempty"`
}

// TableName 指定表名
func (Farmer) TableName() string {
	return "farmers"
}
