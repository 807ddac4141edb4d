package models

import "time"

// Land 农户地块（参考数据）
type Land struct {
	ID             uint      `gorm:"primarykey" json:"id"`                                       // 主键
	FarmerID       uint      `gorm:"index;not null" json:"farmer_id"`                            // 所属农户
	Name           string    `gorm:"type:varchar(128);not null" json:"name"`                     // 地块名称
	AreaHectares   Quantity  `gorm:"type:decimal(12,3);not null;default:0" json:"area_hectares"` // 面积（公顷）
	Location       string    `gorm:"type:varchar(255)" json:"location,omitempty"`                // 位置描述
	AltitudeMeters int       `gorm:"default:0" json:"altitude_meters,omitempty"`                 // 海拔
	Variety        string    `gorm:"type:varchar(64)" json:"variety,omitempty"`                  // 咖啡品种
	CreatedAt      time.Time `gorm:"index" json:"created_at"`                                    // 创建时间
	UpdatedAt      time.Time `json:"updated_at"`                                                 // 更新时间

	Farmer *Farmer `gorm:"foreignKey:FarmerID" json:"farmer,omitempty"`
}

// TableName 指定表名
func (Land) TableName() string {
	return "lands"
}
