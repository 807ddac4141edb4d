package repository

import (
	"context"
	"strings"
	"time"

	"github.com/coopledger/internal/models"

	"gorm.io/gorm"
)

// AuthzAuditLogListFilter 权限审计日志查询条件
type AuthzAuditLogListFilter struct {
	Page            int
	PageSize        int
	OperatorSubject string
	TargetSubject   string
	Action          string
	Role            string
	CreatedFrom     *time.Time
	CreatedTo       *time.Time
}

// AuthzAuditLogRepository 权限审计日志数据访问接口
type AuthzAuditLogRepository interface {
	Create(log *models.AuthzAuditLog) error
	List(filter AuthzAuditLogListFilter) ([]models.AuthzAuditLog, int64, error)
	WithContext(ctx context.Context) AuthzAuditLogRepository
}

// GormAuthzAuditLogRepository GORM 实现
type GormAuthzAuditLogRepository struct {
	db *gorm.DB
}

// NewAuthzAuditLogRepository 创建权限审计日志仓库
func NewAuthzAuditLogRepository(db *gorm.DB) *GormAuthzAuditLogRepository {
	return &GormAuthzAuditLogRepository{db: db}
}

// WithContext 绑定请求上下文
func (r *GormAuthzAuditLogRepository) WithContext(ctx context.Context) AuthzAuditLogRepository {
	if ctx == nil {
		return r
	}
	return &GormAuthzAuditLogRepository{db: r.db.WithContext(ctx)}
}

// Create 创建权限审计日志
func (r *GormAuthzAuditLogRepository) Create(log *models.AuthzAuditLog) error {
	if log == nil {
		return nil
	}
	return r.db.Create(log).Error
}

// List 分页查询权限审计日志
func (r *GormAuthzAuditLogRepository) List(filter AuthzAuditLogListFilter) ([]models.AuthzAuditLog, int64, error) {
	query := r.db.Model(&models.AuthzAuditLog{})
	if subject := strings.TrimSpace(filter.OperatorSubject); subject != "" {
		query = query.Where("operator_subject = ?", subject)
	}
	if subject := strings.TrimSpace(filter.TargetSubject); subject != "" {
		query = query.Where("target_subject = ?", subject)
	}
	if action := strings.TrimSpace(filter.Action); action != "" {
		query = query.Where("action = ?", action)
	}
	if role := strings.TrimSpace(filter.Role); role != "" {
		query = query.Where("role = ?", role)
	}
	if filter.CreatedFrom != nil {
		query = query.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		query = query.Where("created_at <= ?", *filter.CreatedTo)
	}

	return findPage[models.AuthzAuditLog](query, filter.Page, filter.PageSize, "id DESC")
}
