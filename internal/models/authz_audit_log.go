package models

import (
	"time"

	"gorm.io/datatypes"
)

// AuthzAuditLog 权限策略审计日志
// 说明：记录角色策略变更与范围令牌签发，按操作主体与时间范围检索。
type AuthzAuditLog struct {
	ID              uint           `gorm:"primarykey" json:"id"`
	OperatorSubject string         `gorm:"type:varchar(128);index;not null" json:"operator_subject"`
	TargetSubject   string         `gorm:"type:varchar(128);index;not null;default:''" json:"target_subject"`
	Action          string         `gorm:"type:varchar(64);index;not null" json:"action"`
	Role            string         `gorm:"type:varchar(120);index;not null;default:''" json:"role"`
	Object          string         `gorm:"type:varchar(255);index;not null;default:''" json:"object"`
	Method          string         `gorm:"type:varchar(20);index;not null;default:''" json:"method"`
	RequestID       string         `gorm:"type:varchar(64);index;not null;default:''" json:"request_id"`
	DetailJSON      datatypes.JSON `json:"detail,omitempty"`
	CreatedAt       time.Time      `gorm:"index" json:"created_at"`
}

// TableName 指定表名
func (AuthzAuditLog) TableName() string {
	return "authz_audit_logs"
}
