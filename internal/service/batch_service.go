package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/coopledger/internal/constants"
	"github.com/coopledger/internal/logger"
	"github.com/coopledger/internal/models"
	"github.com/coopledger/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BatchService 批次存储服务
type BatchService struct {
	batchRepo  repository.BatchRepository
	ledgerRepo repository.LedgerRepository
	registry   *RegistryLookup
	retrier    *WriteRetrier
	now        func() time.Time
}

// CreateBatchInput 创建批次输入（不接受数量，初始数量必须通过台账入库）
type CreateBatchInput struct {
	Code          string
	CooperativeID uint
	ProductType   string
	Unit          string
	ParentCode    string
}

// NewBatchService 创建批次服务
func NewBatchService(
	batchRepo repository.BatchRepository,
	ledgerRepo repository.LedgerRepository,
	registry *RegistryLookup,
	retrier *WriteRetrier,
) *BatchService {
	return &BatchService{
		batchRepo:  batchRepo,
		ledgerRepo: ledgerRepo,
		registry:   registry,
		retrier:    retrier,
		now:        time.Now,
	}
}

// Create 创建批次
func (s *BatchService) Create(ctx context.Context, scope Scope, input CreateBatchInput) (*models.Batch, error) {
	input.Code = normalizeBatchCode(input.Code)
	input.ProductType = strings.TrimSpace(input.ProductType)
	input.Unit = strings.TrimSpace(input.Unit)
	input.ParentCode = normalizeBatchCode(input.ParentCode)
	if input.CooperativeID == 0 || input.ProductType == "" {
		return nil, ErrInvalidBatchInput
	}
	if input.Unit == "" {
		input.Unit = constants.UnitKilogram
	}
	if input.Code != "" && input.Code == input.ParentCode {
		return nil, ErrInvalidParent
	}
	if err := scope.CanWrite(input.CooperativeID); err != nil {
		return nil, err
	}
	cooperative, err := s.registry.Cooperative(ctx, input.CooperativeID)
	if err != nil {
		return nil, err
	}
	if cooperative == nil {
		return nil, ErrCooperativeNotFound
	}

	var created *models.Batch
	err = s.retrier.Do(ctx, "create_batch", func() error {
		return s.ledgerRepo.Transaction(ctx, func(tx *gorm.DB) error {
			batch, err := createBatchTx(s.batchRepo.WithTx(tx), input, scope.Subject, s.now())
			if err != nil {
				return err
			}
			created = batch
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	logger.Infow("batch_created",
		"batch_code", created.Code,
		"cooperative_id", created.CooperativeID,
		"parent_batch_code", created.ParentCode(),
		"subject", scope.Subject,
	)
	return created, nil
}

// Get 获取批次
func (s *BatchService) Get(ctx context.Context, scope Scope, code string) (*models.Batch, error) {
	return loadReadableBatch(ctx, s.batchRepo, s.registry, scope, code)
}

// List 分页查询调用方范围内的批次
func (s *BatchService) List(ctx context.Context, scope Scope, filter repository.BatchListFilter) ([]models.Batch, int64, error) {
	if err := scope.Validate(); err != nil {
		return nil, 0, err
	}
	switch scope.Role {
	case constants.RoleCooperativeOperator:
		if filter.CooperativeID != 0 && filter.CooperativeID != scope.CooperativeID {
			return nil, 0, ErrScopeForbidden
		}
		filter.CooperativeID = scope.CooperativeID
	case constants.RoleProvincialAnalyst:
		if filter.CooperativeID == 0 {
			return nil, 0, ErrScopeForbidden
		}
		cooperative, err := s.registry.Cooperative(ctx, filter.CooperativeID)
		if err != nil {
			return nil, 0, err
		}
		if err := scope.CanRead(cooperative); err != nil {
			return nil, 0, err
		}
	}
	return s.batchRepo.WithContext(ctx).List(filter)
}

// createBatchTx 在事务内校验父批次并写入批次
func createBatchTx(repo repository.BatchRepository, input CreateBatchInput, subject string, now time.Time) (*models.Batch, error) {
	var parentCode *string
	if input.ParentCode != "" {
		parent, err := repo.GetByCode(input.ParentCode)
		if err != nil {
			return nil, err
		}
		if parent == nil || parent.CooperativeID != input.CooperativeID {
			return nil, ErrInvalidParent
		}
		code := parent.Code
		parentCode = &code
	}

	code := input.Code
	if code == "" {
		code = generateBatchCode(input.ProductType, now)
	}
	existing, err := repo.GetByCode(code)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrBatchCodeConflict
	}

	batch := &models.Batch{
		Code:            code,
		CooperativeID:   input.CooperativeID,
		ProductType:     input.ProductType,
		Unit:            input.Unit,
		ParentBatchCode: parentCode,
		CreatedBy:       subject,
		CreatedAt:       now.UTC(),
	}
	if err := repo.Create(batch); err != nil {
		// 查重与写入之间被并发创建抢先
		if isUniqueViolation(err) {
			return nil, ErrBatchCodeConflict
		}
		return nil, err
	}
	return batch, nil
}

// loadReadableBatch 获取批次并校验读取范围
func loadReadableBatch(ctx context.Context, repo repository.BatchRepository, registry *RegistryLookup, scope Scope, code string) (*models.Batch, error) {
	code = normalizeBatchCode(code)
	if code == "" {
		return nil, ErrBatchNotFound
	}
	batch, err := repo.WithContext(ctx).GetByCode(code)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return nil, ErrBatchNotFound
	}
	if err := authorizeBatchRead(ctx, registry, scope, batch); err != nil {
		return nil, err
	}
	return batch, nil
}

func authorizeBatchRead(ctx context.Context, registry *RegistryLookup, scope Scope, batch *models.Batch) error {
	if scope.Role == constants.RoleCooperativeOperator {
		// 操作员只需比对合作社ID，无需查询登记数据
		if err := scope.Validate(); err != nil {
			return err
		}
		if batch.CooperativeID != scope.CooperativeID {
			return ErrScopeForbidden
		}
		return nil
	}
	cooperative, err := registry.Cooperative(ctx, batch.CooperativeID)
	if err != nil {
		return err
	}
	return scope.CanRead(cooperative)
}

func normalizeBatchCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// generateBatchCode 生成批次编码：<产品>-<yyyymmdd>-<随机6位>
func generateBatchCode(productType string, now time.Time) string {
	prefix := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(productType), "_", "-"))
	if prefix == "" {
		prefix = "BATCH"
	}
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:6]
	return fmt.Sprintf("%s-%s-%s", prefix, now.UTC().Format("20060102"), suffix)
}

// generateOperationRef 生成操作引用：OP-<yyyymmddhhmmss>-<随机8位>
func generateOperationRef(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("OP-%s-%s", now.UTC().Format("20060102150405"), suffix)
}
