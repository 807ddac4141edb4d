package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/coopledger/internal/constants"
	"github.com/coopledger/internal/models"

	"gorm.io/gorm"
)

// LedgerRepository 台账流水数据访问接口
// 说明：流水只追加，不提供更新与删除。
type LedgerRepository interface {
	Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error
	WithTx(tx *gorm.DB) LedgerRepository
	WithContext(ctx context.Context) LedgerRepository

	Create(entry *models.LedgerTransaction) error
	CreateMany(entries []models.LedgerTransaction) error
	GetByID(id uint) (*models.LedgerTransaction, error)
	GetReversalOf(id uint) (*models.LedgerTransaction, error)
	ListByBatch(batchID uint, asOf *time.Time) ([]models.LedgerTransaction, error)
	ListByBatchIDs(batchIDs []uint) ([]models.LedgerTransaction, error)
	ListByOperationRefs(refs []string) ([]models.LedgerTransaction, error)
	ListTransformOperationRefs() ([]string, error)
	List(filter TransactionListFilter) ([]models.LedgerTransaction, int64, error)
}

// GormLedgerRepository GORM 台账仓储实现
type GormLedgerRepository struct {
	db *gorm.DB
}

// NewLedgerRepository 创建台账仓储
func NewLedgerRepository(db *gorm.DB) *GormLedgerRepository {
	return &GormLedgerRepository{db: db}
}

// Transaction 在同一数据库事务内执行写入
func (r *GormLedgerRepository) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if fn == nil {
		return nil
	}
	db := r.db
	if ctx != nil {
		db = db.WithContext(ctx)
	}
	return db.Transaction(fn)
}

// WithTx 绑定事务
func (r *GormLedgerRepository) WithTx(tx *gorm.DB) LedgerRepository {
	if tx == nil {
		return r
	}
	return &GormLedgerRepository{db: tx}
}

// WithContext 绑定请求上下文
func (r *GormLedgerRepository) WithContext(ctx context.Context) LedgerRepository {
	if ctx == nil {
		return r
	}
	return &GormLedgerRepository{db: r.db.WithContext(ctx)}
}

// Create 追加一条流水
func (r *GormLedgerRepository) Create(entry *models.LedgerTransaction) error {
	return r.db.Create(entry).Error
}

// CreateMany 追加多条流水（调用方负责事务）
func (r *GormLedgerRepository) CreateMany(entries []models.LedgerTransaction) error {
	if len(entries) == 0 {
		return nil
	}
	return r.db.Create(&entries).Error
}

// GetByID 按ID获取流水
func (r *GormLedgerRepository) GetByID(id uint) (*models.LedgerTransaction, error) {
	if id == 0 {
		return nil, nil
	}
	var entry models.LedgerTransaction
	if err := r.db.First(&entry, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

// GetReversalOf 获取冲正指定流水的补偿流水
func (r *GormLedgerRepository) GetReversalOf(id uint) (*models.LedgerTransaction, error) {
	if id == 0 {
		return nil, nil
	}
	var entry models.LedgerTransaction
	if err := r.db.Where("reversal_of_id = ?", id).First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

// ListByBatch 获取批次流水，asOf 不为空时仅包含业务日期不晚于 asOf 的流水
func (r *GormLedgerRepository) ListByBatch(batchID uint, asOf *time.Time) ([]models.LedgerTransaction, error) {
	if batchID == 0 {
		return []models.LedgerTransaction{}, nil
	}
	query := r.db.Where("batch_id = ?", batchID)
	if asOf != nil {
		query = query.Where("date <= ?", *asOf)
	}
	var entries []models.LedgerTransaction
	if err := query.Order("date asc, id asc").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// ListByBatchIDs 批量获取多个批次的流水
func (r *GormLedgerRepository) ListByBatchIDs(batchIDs []uint) ([]models.LedgerTransaction, error) {
	if len(batchIDs) == 0 {
		return []models.LedgerTransaction{}, nil
	}
	var entries []models.LedgerTransaction
	if err := r.db.Where("batch_id IN ?", batchIDs).
		Order("date asc, id asc").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// ListByOperationRefs 按操作引用获取流水
func (r *GormLedgerRepository) ListByOperationRefs(refs []string) ([]models.LedgerTransaction, error) {
	cleaned := make([]string, 0, len(refs))
	for _, ref := range refs {
		if ref = strings.TrimSpace(ref); ref != "" {
			cleaned = append(cleaned, ref)
		}
	}
	if len(cleaned) == 0 {
		return []models.LedgerTransaction{}, nil
	}
	var entries []models.LedgerTransaction
	if err := r.db.Where("operation_ref IN ?", cleaned).
		Order("date asc, id asc").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// ListTransformOperationRefs 获取所有加工操作引用
func (r *GormLedgerRepository) ListTransformOperationRefs() ([]string, error) {
	var refs []string
	if err := r.db.Model(&models.LedgerTransaction{}).
		Where("kind IN ?", []string{constants.TxnKindTransformIn, constants.TxnKindTransformOut}).
		Distinct("operation_ref").
		Order("operation_ref asc").
		Pluck("operation_ref", &refs).Error; err != nil {
		return nil, err
	}
	return refs, nil
}

// List 分页查询流水
func (r *GormLedgerRepository) List(filter TransactionListFilter) ([]models.LedgerTransaction, int64, error) {
	query := r.db.Model(&models.LedgerTransaction{})
	if filter.BatchID != 0 {
		query = query.Where("batch_id = ?", filter.BatchID)
	}
	if filter.CooperativeID != 0 {
		query = query.Where("cooperative_id = ?", filter.CooperativeID)
	}
	if kind := strings.TrimSpace(filter.Kind); kind != "" {
		query = query.Where("kind = ?", kind)
	}
	if operation := strings.TrimSpace(filter.Operation); operation != "" {
		query = query.Where("operation = ?", operation)
	}
	if ref := strings.TrimSpace(filter.OperationRef); ref != "" {
		query = query.Where("operation_ref = ?", ref)
	}
	if filter.DateFrom != nil {
		query = query.Where("date >= ?", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		query = query.Where("date <= ?", *filter.DateTo)
	}

	return findPage[models.LedgerTransaction](query, filter.Page, filter.PageSize, "date asc, id asc")
}
