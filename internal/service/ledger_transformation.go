package service

import (
	"context"
	"strings"
	"time"

	"github.com/coopledger/internal/constants"
	"github.com/coopledger/internal/logger"
	"github.com/coopledger/internal/models"
	"github.com/coopledger/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TransformationOutput 加工产出批次
// 批次不存在时新建，父批次为加工源批次；ProductType/Unit 为空时按源批次推断。
type TransformationOutput struct {
	BatchCode   string
	Quantity    decimal.Decimal
	ProductType string
	Unit        string
}

// TransformationInput 加工输入
// 守恒：SourceQuantityOut = Σ Outputs.Quantity + Loss
type TransformationInput struct {
	SourceBatchCode   string
	SourceQuantityOut decimal.Decimal
	Outputs           []TransformationOutput
	Loss              decimal.Decimal
	Date              time.Time
	Note              string
}

// TransformationResult 加工结果
type TransformationResult struct {
	OperationRef   string                     `json:"operation_ref"`
	TransactionIDs []uint                     `json:"transaction_ids"`
	Entries        []models.LedgerTransaction `json:"entries"`
	CreatedBatches []models.Batch             `json:"created_batches"`
}

// RecordTransformation 原子写入一次加工：源批次 TRANSFORM_OUT（含损耗），每个产出批次 TRANSFORM_IN
func (s *LedgerService) RecordTransformation(ctx context.Context, scope Scope, input TransformationInput) (*TransformationResult, error) {
	outputs, err := normalizeTransformation(&input)
	if err != nil {
		return nil, err
	}
	source, err := s.loadWritableBatch(ctx, scope, input.SourceBatchCode)
	if err != nil {
		return nil, err
	}
	date := s.normalizeDate(input.Date)
	now := s.now()
	note := strings.TrimSpace(input.Note)

	var result *TransformationResult
	err = s.retrier.Do(ctx, "transformation", func() error {
		ref := generateOperationRef(now)
		return s.ledgerRepo.Transaction(ctx, func(tx *gorm.DB) error {
			batchRepo := s.batchRepo.WithTx(tx)
			ledger := s.ledgerRepo.WithTx(tx)

			locked, err := batchRepo.GetByCodeForUpdate(source.Code)
			if err != nil {
				return err
			}
			if locked == nil {
				return ErrBatchNotFound
			}

			current := &TransformationResult{OperationRef: ref}
			outputTotal := decimal.Zero
			entries := make([]models.LedgerTransaction, 0, len(outputs)+2)
			inflows := make([]models.LedgerTransaction, 0, len(outputs))
			for _, output := range outputs {
				child, created, err := resolveOutputBatch(batchRepo, locked, output, scope.Subject, now)
				if err != nil {
					return err
				}
				if created {
					current.CreatedBatches = append(current.CreatedBatches, *child)
				}
				outputTotal = outputTotal.Add(output.Quantity)
				inflows = append(inflows, models.LedgerTransaction{
					BatchID:       child.ID,
					BatchCode:     child.Code,
					CooperativeID: child.CooperativeID,
					Kind:          constants.TxnKindTransformIn,
					Operation:     constants.OperationTransformation,
					QuantityDelta: models.NewQuantity(output.Quantity),
					Date:          date,
					OperationRef:  ref,
					Note:          note,
					CreatedBy:     scope.Subject,
				})
			}

			entries = append(entries, models.LedgerTransaction{
				BatchID:       locked.ID,
				BatchCode:     locked.Code,
				CooperativeID: locked.CooperativeID,
				Kind:          constants.TxnKindTransformOut,
				Operation:     constants.OperationTransformation,
				QuantityDelta: models.NewQuantity(outputTotal.Neg()),
				Date:          date,
				OperationRef:  ref,
				Note:          note,
				CreatedBy:     scope.Subject,
			})
			if input.Loss.IsPositive() {
				entries = append(entries, models.LedgerTransaction{
					BatchID:       locked.ID,
					BatchCode:     locked.Code,
					CooperativeID: locked.CooperativeID,
					Kind:          constants.TxnKindTransformOut,
					Operation:     constants.OperationProcessingLoss,
					QuantityDelta: models.NewQuantity(input.Loss.Neg()),
					Date:          date,
					OperationRef:  ref,
					Note:          note,
					CreatedBy:     scope.Subject,
				})
			}
			entries = append(entries, inflows...)

			if err := ensureAvailable(ledger, locked, entries); err != nil {
				return err
			}
			if err := ledger.CreateMany(entries); err != nil {
				return err
			}
			current.Entries = entries
			for _, entry := range entries {
				current.TransactionIDs = append(current.TransactionIDs, entry.ID)
			}
			result = current
			return nil
		})
	})
	if err != nil {
		s.observeFailure(err, []models.LedgerTransaction{{Kind: constants.TxnKindTransformOut}}, source.Code, "transformation")
		return nil, err
	}
	for _, entry := range result.Entries {
		s.metrics.ObserveEntry(entry.Kind, entry.Operation)
	}
	logger.Ledger().Infow("ledger_transformation_recorded",
		"operation_ref", result.OperationRef,
		"source_batch_code", source.Code,
		"quantity_out", input.SourceQuantityOut.StringFixed(3),
		"loss", input.Loss.StringFixed(3),
		"outputs", len(outputs),
		"created_batches", len(result.CreatedBatches),
		"subject", scope.Subject,
	)
	return result, nil
}

// normalizeTransformation 校验加工参数并检查守恒
func normalizeTransformation(input *TransformationInput) ([]TransformationOutput, error) {
	input.SourceBatchCode = normalizeBatchCode(input.SourceBatchCode)
	input.SourceQuantityOut = input.SourceQuantityOut.Round(models.QuantityScale)
	input.Loss = input.Loss.Round(models.QuantityScale)
	if input.SourceBatchCode == "" || len(input.Outputs) == 0 {
		return nil, ErrInvalidTransformation
	}
	if !input.SourceQuantityOut.IsPositive() || input.Loss.IsNegative() {
		return nil, ErrInvalidQuantity
	}

	seen := make(map[string]struct{}, len(input.Outputs))
	outputs := make([]TransformationOutput, 0, len(input.Outputs))
	total := decimal.Zero
	for _, output := range input.Outputs {
		output.BatchCode = normalizeBatchCode(output.BatchCode)
		output.ProductType = strings.TrimSpace(output.ProductType)
		output.Unit = strings.TrimSpace(output.Unit)
		output.Quantity = output.Quantity.Round(models.QuantityScale)
		if !output.Quantity.IsPositive() {
			return nil, ErrInvalidQuantity
		}
		if output.BatchCode == input.SourceBatchCode {
			return nil, ErrInvalidTransformation
		}
		if output.BatchCode != "" {
			if _, ok := seen[output.BatchCode]; ok {
				return nil, ErrInvalidTransformation
			}
			seen[output.BatchCode] = struct{}{}
		}
		total = total.Add(output.Quantity)
		outputs = append(outputs, output)
	}
	if !total.Add(input.Loss).Equal(input.SourceQuantityOut) {
		return nil, ErrConservationViolated
	}
	return outputs, nil
}

// 加工产出的默认产品形态
var defaultOutputProducts = map[string]string{
	constants.ProductCherry:    constants.ProductGreenBean,
	constants.ProductParchment: constants.ProductGreenBean,
	constants.ProductGreenBean: constants.ProductRoasted,
}

// resolveOutputBatch 获取或新建产出批次；已存在的批次必须以源批次为父批次
func resolveOutputBatch(batches repository.BatchRepository, source *models.Batch, output TransformationOutput, subject string, now time.Time) (*models.Batch, bool, error) {
	if output.BatchCode != "" {
		existing, err := batches.GetByCodeForUpdate(output.BatchCode)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			if existing.ParentCode() != source.Code || existing.CooperativeID != source.CooperativeID {
				return nil, false, ErrInvalidParent
			}
			return existing, false, nil
		}
	}
	productType := output.ProductType
	if productType == "" {
		productType = defaultOutputProducts[source.ProductType]
	}
	if productType == "" {
		productType = source.ProductType
	}
	unit := output.Unit
	if unit == "" {
		unit = source.Unit
	}
	child, err := createBatchTx(batches, CreateBatchInput{
		Code:          output.BatchCode,
		CooperativeID: source.CooperativeID,
		ProductType:   productType,
		Unit:          unit,
		ParentCode:    source.Code,
	}, subject, now)
	if err != nil {
		return nil, false, err
	}
	return child, true, nil
}
