package service

import (
	"strings"

	"github.com/coopledger/internal/constants"
	"github.com/coopledger/internal/models"
)

// Scope 调用方能力范围，由请求入口解析后显式传入每个台账操作
type Scope struct {
	Subject       string `json:"subject"`
	Role          string `json:"role"`
	CooperativeID uint   `json:"cooperative_id,omitempty"`
	Province      string `json:"province,omitempty"`
}

// Validate 校验范围是否自洽
func (s Scope) Validate() error {
	switch s.Role {
	case constants.RoleNationalAdmin:
		return nil
	case constants.RoleCooperativeOperator:
		if s.CooperativeID == 0 {
			return ErrScopeForbidden
		}
		return nil
	case constants.RoleProvincialAnalyst:
		if strings.TrimSpace(s.Province) == "" {
			return ErrScopeForbidden
		}
		return nil
	default:
		return ErrScopeForbidden
	}
}

// CanWrite 是否允许向指定合作社记账
func (s Scope) CanWrite(cooperativeID uint) error {
	if err := s.Validate(); err != nil {
		return err
	}
	switch s.Role {
	case constants.RoleNationalAdmin:
		return nil
	case constants.RoleCooperativeOperator:
		if cooperativeID != 0 && cooperativeID == s.CooperativeID {
			return nil
		}
	}
	return ErrScopeForbidden
}

// CanRead 是否允许读取指定合作社的数据
func (s Scope) CanRead(cooperative *models.Cooperative) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if cooperative == nil {
		if s.Role == constants.RoleNationalAdmin {
			return nil
		}
		return ErrScopeForbidden
	}
	switch s.Role {
	case constants.RoleNationalAdmin:
		return nil
	case constants.RoleCooperativeOperator:
		if cooperative.ID == s.CooperativeID {
			return nil
		}
	case constants.RoleProvincialAnalyst:
		if strings.EqualFold(strings.TrimSpace(cooperative.Province), strings.TrimSpace(s.Province)) {
			return nil
		}
	}
	return ErrScopeForbidden
}
