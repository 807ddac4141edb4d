package models

import "time"

// CultivationActivity 农事活动记录（种植、施肥、产量预估、采收）
type CultivationActivity struct {
	ID                uint       `gorm:"primarykey" json:"id"`
	LandID            uint       `gorm:"index;not null" json:"land_id"`
	FarmerID          uint       `gorm:"index;not null" json:"farmer_id"`
	Type              string     `gorm:"type:varchar(32);index;not null" json:"type"`
	ActivityDate      *time.Time `gorm:"index" json:"activity_date,omitempty"`
	EstimatedDate     *time.Time `gorm:"index" json:"estimated_date,omitempty"` // 预计采收日期（harvest_estimate）
	EstimatedQuantity Quantity   `gorm:"type:decimal(20,3);not null;default:0" json:"estimated_quantity"`
	Notes             string     `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt         time.Time  `gorm:"index" json:"created_at"`
}

// TableName 指定表名
func (CultivationActivity) TableName() string {
	return "cultivation_activities"
}
