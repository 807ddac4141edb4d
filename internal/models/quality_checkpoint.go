package models

import (
	"time"

	"gorm.io/datatypes"
)

// QualityCheckpoint 质量检查记录（由质检系统写入，按批次编码关联）
type QualityCheckpoint struct {
	ID         uint           `gorm:"primarykey" json:"id"`
	BatchCode  string         `gorm:"type:varchar(64);index;not null" json:"batch_code"`
	Stage      string         `gorm:"type:varchar(32);not null" json:"stage"` // 检查环节（cupping/moisture/defects...）
	Score      float64        `gorm:"not null;default:0" json:"score"`
	Passed     bool           `gorm:"not null;default:false" json:"passed"`
	Grader     string         `gorm:"type:varchar(128)" json:"grader,omitempty"`
	Attributes datatypes.JSON `json:"attributes,omitempty"` // 检查明细（水分、瑕疵数等）
	CheckedAt  time.Time      `gorm:"index" json:"checked_at"`
	CreatedAt  time.Time      `json:"created_at"`
}

// TableName 指定表名
func (QualityCheckpoint) TableName() string {
	return "quality_checkpoints"
}
