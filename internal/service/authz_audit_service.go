package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/coopledger/internal/logger"
	"github.com/coopledger/internal/models"
	"github.com/coopledger/internal/repository"

	"gorm.io/datatypes"
)

// AuthzAuditRecordInput 权限审计记录输入
type AuthzAuditRecordInput struct {
	OperatorSubject string
	TargetSubject   string
	Action          string
	Role            string
	Object          string
	Method          string
	RequestID       string
	Detail          map[string]interface{}
}

// AuthzAuditService 权限审计服务
type AuthzAuditService struct {
	repo repository.AuthzAuditLogRepository
}

// NewAuthzAuditService 创建权限审计服务
func NewAuthzAuditService(repo repository.AuthzAuditLogRepository) *AuthzAuditService {
	return &AuthzAuditService{repo: repo}
}

// Record 记录权限审计日志
func (s *AuthzAuditService) Record(ctx context.Context, input AuthzAuditRecordInput) error {
	if s == nil || s.repo == nil {
		return nil
	}
	if strings.TrimSpace(input.OperatorSubject) == "" || strings.TrimSpace(input.Action) == "" {
		return nil
	}

	item := &models.AuthzAuditLog{
		OperatorSubject: strings.TrimSpace(input.OperatorSubject),
		TargetSubject:   strings.TrimSpace(input.TargetSubject),
		Action:          strings.TrimSpace(input.Action),
		Role:            strings.TrimSpace(input.Role),
		Object:          strings.TrimSpace(input.Object),
		Method:          strings.ToUpper(strings.TrimSpace(input.Method)),
		RequestID:       strings.TrimSpace(input.RequestID),
		CreatedAt:       time.Now().UTC(),
	}
	if len(input.Detail) > 0 {
		raw, err := json.Marshal(input.Detail)
		if err != nil {
			logger.Warnw("authz_audit_detail_marshal_failed", "action", item.Action, "error", err)
		} else {
			item.DetailJSON = datatypes.JSON(raw)
		}
	}
	return s.repo.WithContext(ctx).Create(item)
}

// List 查询权限审计日志
func (s *AuthzAuditService) List(ctx context.Context, filter repository.AuthzAuditLogListFilter) ([]models.AuthzAuditLog, int64, error) {
	if s == nil || s.repo == nil {
		return []models.AuthzAuditLog{}, 0, nil
	}
	return s.repo.WithContext(ctx).List(filter)
}
