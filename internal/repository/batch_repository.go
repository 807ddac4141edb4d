package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/coopledger/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BatchRepository 批次数据访问接口
type BatchRepository interface {
	Create(batch *models.Batch) error
	GetByCode(code string) (*models.Batch, error)
	GetByCodeForUpdate(code string) (*models.Batch, error)
	GetByCodes(codes []string) ([]models.Batch, error)
	ListChildren(parentCode string) ([]models.Batch, error)
	ListChildrenOf(parentCodes []string) ([]models.Batch, error)
	List(filter BatchListFilter) ([]models.Batch, int64, error)
	ListAll(cooperativeID uint) ([]models.Batch, error)
	WithTx(tx *gorm.DB) BatchRepository
	WithContext(ctx context.Context) BatchRepository
}

// GormBatchRepository GORM 批次仓储实现
type GormBatchRepository struct {
	db *gorm.DB
}

// NewBatchRepository 创建批次仓储
func NewBatchRepository(db *gorm.DB) *GormBatchRepository {
	return &GormBatchRepository{db: db}
}

// WithTx 绑定事务
func (r *GormBatchRepository) WithTx(tx *gorm.DB) BatchRepository {
	if tx == nil {
		return r
	}
	return &GormBatchRepository{db: tx}
}

// WithContext 绑定请求上下文
func (r *GormBatchRepository) WithContext(ctx context.Context) BatchRepository {
	if ctx == nil {
		return r
	}
	return &GormBatchRepository{db: r.db.WithContext(ctx)}
}

// Create 创建批次
func (r *GormBatchRepository) Create(batch *models.Batch) error {
	return r.db.Create(batch).Error
}

// GetByCode 按编码获取批次
func (r *GormBatchRepository) GetByCode(code string) (*models.Batch, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, nil
	}
	var batch models.Batch
	if err := r.db.Where("code = ?", code).First(&batch).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &batch, nil
}

// GetByCodeForUpdate 按编码加锁获取批次
// 说明：批次行锁用于串行化同一批次上的出库校验；sqlite 下由单连接写事务保证。
func (r *GormBatchRepository) GetByCodeForUpdate(code string) (*models.Batch, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, nil
	}
	var batch models.Batch
	if err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("code = ?", code).
		First(&batch).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &batch, nil
}

// GetByCodes 批量获取批次
func (r *GormBatchRepository) GetByCodes(codes []string) ([]models.Batch, error) {
	if len(codes) == 0 {
		return []models.Batch{}, nil
	}
	var batches []models.Batch
	if err := r.db.Where("code IN ?", codes).Find(&batches).Error; err != nil {
		return nil, err
	}
	return batches, nil
}

// ListChildren 获取直接子批次
func (r *GormBatchRepository) ListChildren(parentCode string) ([]models.Batch, error) {
	return r.ListChildrenOf([]string{parentCode})
}

// ListChildrenOf 批量获取多个父批次的直接子批次
func (r *GormBatchRepository) ListChildrenOf(parentCodes []string) ([]models.Batch, error) {
	if len(parentCodes) == 0 {
		return []models.Batch{}, nil
	}
	var batches []models.Batch
	if err := r.db.Where("parent_batch_code IN ?", parentCodes).
		Order("created_at asc, id asc").
		Find(&batches).Error; err != nil {
		return nil, err
	}
	return batches, nil
}

// List 分页查询批次
func (r *GormBatchRepository) List(filter BatchListFilter) ([]models.Batch, int64, error) {
	query := r.db.Model(&models.Batch{})
	if filter.CooperativeID != 0 {
		query = query.Where("cooperative_id = ?", filter.CooperativeID)
	}
	if productType := strings.TrimSpace(filter.ProductType); productType != "" {
		query = query.Where("product_type = ?", productType)
	}
	if filter.OnlyOrigin {
		query = query.Where("parent_batch_code IS NULL OR parent_batch_code = ''")
	}

	return findPage[models.Batch](query, filter.Page, filter.PageSize, "id desc")
}

// ListAll 获取全部批次（用于完整性巡检），cooperativeID 为 0 时不限制
func (r *GormBatchRepository) ListAll(cooperativeID uint) ([]models.Batch, error) {
	query := r.db.Model(&models.Batch{})
	if cooperativeID != 0 {
		query = query.Where("cooperative_id = ?", cooperativeID)
	}
	var batches []models.Batch
	if err := query.Order("id asc").Find(&batches).Error; err != nil {
		return nil, err
	}
	return batches, nil
}
