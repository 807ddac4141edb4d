package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/coopledger/internal/constants"
	"github.com/coopledger/internal/logger"
	"github.com/coopledger/internal/metrics"
	"github.com/coopledger/internal/models"
	"github.com/coopledger/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// LedgerService 台账记账服务
type LedgerService struct {
	batchRepo  repository.BatchRepository
	ledgerRepo repository.LedgerRepository
	registry   *RegistryLookup
	retrier    *WriteRetrier
	metrics    *metrics.Metrics
	now        func() time.Time
}

// EntryContext 流水上下文引用
type EntryContext struct {
	FarmerID     *uint
	LandID       *uint
	Counterparty string
	Price        *decimal.Decimal
	Note         string
}

// RecordInput 通用记账输入
// 说明：RECEIPT/DISPATCH 的方向由类型决定，数量取绝对值；ADJUSTMENT 按符号记账。
type RecordInput struct {
	BatchCode string
	Kind      string
	Operation string
	Quantity  decimal.Decimal
	Date      time.Time
	Context   EntryContext
}

// ReceiptInput 入库（采收/收购）
type ReceiptInput struct {
	BatchCode string
	Operation string
	Quantity  decimal.Decimal
	Date      time.Time
	FarmerID  *uint
	LandID    *uint
	Supplier  string
	Price     *decimal.Decimal
	Note      string
}

// DispatchInput 出库（分销/销售）
type DispatchInput struct {
	BatchCode string
	Operation string
	Quantity  decimal.Decimal
	Date      time.Time
	Buyer     string
	Price     *decimal.Decimal
	Note      string
}

// AdjustmentInput 补偿调整（带符号，必须说明原因）
type AdjustmentInput struct {
	BatchCode     string
	QuantityDelta decimal.Decimal
	Date          time.Time
	Note          string
}

// ReverseInput 冲正输入
type ReverseInput struct {
	TransactionID uint
	Date          time.Time
	Note          string
}

var kindOperations = map[string][]string{
	constants.TxnKindReceipt:    {constants.OperationHarvest, constants.OperationPurchase},
	constants.TxnKindDispatch:   {constants.OperationDistribution, constants.OperationSale},
	constants.TxnKindAdjustment: {constants.OperationCorrection},
}

// NewLedgerService 创建台账服务
func NewLedgerService(
	batchRepo repository.BatchRepository,
	ledgerRepo repository.LedgerRepository,
	registry *RegistryLookup,
	retrier *WriteRetrier,
	m *metrics.Metrics,
) *LedgerService {
	return &LedgerService{
		batchRepo:  batchRepo,
		ledgerRepo: ledgerRepo,
		registry:   registry,
		retrier:    retrier,
		metrics:    m,
		now:        time.Now,
	}
}

// RecordReceipt 记录入库
func (s *LedgerService) RecordReceipt(ctx context.Context, scope Scope, input ReceiptInput) (*models.LedgerTransaction, error) {
	operation := strings.TrimSpace(input.Operation)
	if operation == "" {
		operation = constants.OperationHarvest
	}
	return s.Record(ctx, scope, RecordInput{
		BatchCode: input.BatchCode,
		Kind:      constants.TxnKindReceipt,
		Operation: operation,
		Quantity:  input.Quantity,
		Date:      input.Date,
		Context: EntryContext{
			FarmerID:     input.FarmerID,
			LandID:       input.LandID,
			Counterparty: input.Supplier,
			Price:        input.Price,
			Note:         input.Note,
		},
	})
}

// RecordDispatch 记录出库
func (s *LedgerService) RecordDispatch(ctx context.Context, scope Scope, input DispatchInput) (*models.LedgerTransaction, error) {
	operation := strings.TrimSpace(input.Operation)
	if operation == "" {
		operation = constants.OperationSale
	}
	return s.Record(ctx, scope, RecordInput{
		BatchCode: input.BatchCode,
		Kind:      constants.TxnKindDispatch,
		Operation: operation,
		Quantity:  input.Quantity,
		Date:      input.Date,
		Context: EntryContext{
			Counterparty: input.Buyer,
			Price:        input.Price,
			Note:         input.Note,
		},
	})
}

// RecordAdjustment 记录补偿调整
func (s *LedgerService) RecordAdjustment(ctx context.Context, scope Scope, input AdjustmentInput) (*models.LedgerTransaction, error) {
	if strings.TrimSpace(input.Note) == "" {
		return nil, ErrInvalidOperation
	}
	return s.Record(ctx, scope, RecordInput{
		BatchCode: input.BatchCode,
		Kind:      constants.TxnKindAdjustment,
		Operation: constants.OperationCorrection,
		Quantity:  input.QuantityDelta,
		Date:      input.Date,
		Context:   EntryContext{Note: input.Note},
	})
}

// Record 通用记账入口
// 加工类流水（TRANSFORM_IN/TRANSFORM_OUT）必须通过 RecordTransformation 成对写入。
func (s *LedgerService) Record(ctx context.Context, scope Scope, input RecordInput) (*models.LedgerTransaction, error) {
	kind := strings.ToUpper(strings.TrimSpace(input.Kind))
	operation := strings.TrimSpace(input.Operation)
	delta, err := signedDelta(kind, input.Quantity)
	if err != nil {
		return nil, err
	}
	if !operationAllowed(kind, operation) {
		return nil, ErrInvalidOperation
	}
	if input.Context.Price != nil && input.Context.Price.IsNegative() {
		return nil, ErrInvalidQuantity
	}

	batch, err := s.loadWritableBatch(ctx, scope, input.BatchCode)
	if err != nil {
		return nil, err
	}
	refs, err := s.resolveEntryRefs(ctx, batch, kind, operation, input.Context)
	if err != nil {
		return nil, err
	}

	date := s.normalizeDate(input.Date)
	entry := models.LedgerTransaction{
		BatchID:       batch.ID,
		BatchCode:     batch.Code,
		CooperativeID: batch.CooperativeID,
		Kind:          kind,
		Operation:     operation,
		QuantityDelta: models.NewQuantity(delta),
		Date:          date,
		FarmerID:      refs.FarmerID,
		LandID:        refs.LandID,
		Counterparty:  strings.TrimSpace(input.Context.Counterparty),
		Price:         normalizePrice(input.Context.Price),
		Note:          strings.TrimSpace(input.Context.Note),
		CreatedBy:     scope.Subject,
	}

	if err := s.appendChecked(ctx, "record", batch.Code, []models.LedgerTransaction{entry}, func(created []models.LedgerTransaction) {
		entry = created[0]
	}); err != nil {
		return nil, err
	}
	logger.Ledger().Infow("ledger_entry_recorded",
		"transaction_id", entry.ID,
		"batch_code", entry.BatchCode,
		"kind", entry.Kind,
		"operation", entry.Operation,
		"quantity_delta", entry.QuantityDelta.String(),
		"subject", scope.Subject,
	)
	return &entry, nil
}

// Reverse 冲正一笔入库或出库流水（写入等量反向的 ADJUSTMENT）
// 冲正流水沿用原业务操作标签，使汇总口径同步扣减。
func (s *LedgerService) Reverse(ctx context.Context, scope Scope, input ReverseInput) (*models.LedgerTransaction, error) {
	original, err := s.ledgerRepo.WithContext(ctx).GetByID(input.TransactionID)
	if err != nil {
		return nil, err
	}
	if original == nil {
		return nil, ErrTransactionNotFound
	}
	if err := scope.CanWrite(original.CooperativeID); err != nil {
		return nil, err
	}
	if original.ReversalOfID != nil ||
		(original.Kind != constants.TxnKindReceipt && original.Kind != constants.TxnKindDispatch) {
		return nil, ErrTransactionNotReversible
	}

	note := strings.TrimSpace(input.Note)
	if note == "" {
		note = "reversal"
	}
	reversalOf := original.ID
	entry := models.LedgerTransaction{
		BatchID:       original.BatchID,
		BatchCode:     original.BatchCode,
		CooperativeID: original.CooperativeID,
		Kind:          constants.TxnKindAdjustment,
		Operation:     original.Operation,
		QuantityDelta: original.QuantityDelta.Neg(),
		Date:          s.normalizeDate(input.Date),
		FarmerID:      original.FarmerID,
		LandID:        original.LandID,
		Counterparty:  original.Counterparty,
		Price:         original.Price,
		ReversalOfID:  &reversalOf,
		Note:          note,
		CreatedBy:     scope.Subject,
	}

	guard := func(tx *gorm.DB) error {
		existing, err := s.ledgerRepo.WithTx(tx).GetReversalOf(original.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrTransactionAlreadyReversed
		}
		return nil
	}
	if err := s.appendCheckedWithGuard(ctx, "reverse", original.BatchCode, []models.LedgerTransaction{entry}, guard, func(created []models.LedgerTransaction) {
		entry = created[0]
	}); err != nil {
		return nil, err
	}
	logger.Ledger().Infow("ledger_entry_reversed",
		"transaction_id", entry.ID,
		"reversal_of_id", original.ID,
		"batch_code", entry.BatchCode,
		"quantity_delta", entry.QuantityDelta.String(),
		"subject", scope.Subject,
	)
	return &entry, nil
}

// GetTransaction 获取单笔流水
func (s *LedgerService) GetTransaction(ctx context.Context, scope Scope, id uint) (*models.LedgerTransaction, error) {
	entry, err := s.ledgerRepo.WithContext(ctx).GetByID(id)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, ErrTransactionNotFound
	}
	if _, err := loadReadableBatch(ctx, s.batchRepo, s.registry, scope, entry.BatchCode); err != nil {
		return nil, err
	}
	return entry, nil
}

// ListBatchTransactions 分页查询批次流水
func (s *LedgerService) ListBatchTransactions(ctx context.Context, scope Scope, code string, filter repository.TransactionListFilter) ([]models.LedgerTransaction, int64, error) {
	batch, err := loadReadableBatch(ctx, s.batchRepo, s.registry, scope, code)
	if err != nil {
		return nil, 0, err
	}
	filter.BatchID = batch.ID
	return s.ledgerRepo.WithContext(ctx).List(filter)
}

// appendChecked 在单个事务内锁定批次、校验库存并追加流水
func (s *LedgerService) appendChecked(ctx context.Context, operation, batchCode string, entries []models.LedgerTransaction, onCommit func([]models.LedgerTransaction)) error {
	return s.appendCheckedWithGuard(ctx, operation, batchCode, entries, nil, onCommit)
}

func (s *LedgerService) appendCheckedWithGuard(
	ctx context.Context,
	operation, batchCode string,
	entries []models.LedgerTransaction,
	guard func(tx *gorm.DB) error,
	onCommit func([]models.LedgerTransaction),
) error {
	ref := generateOperationRef(s.now())
	err := s.retrier.Do(ctx, operation, func() error {
		pending := make([]models.LedgerTransaction, len(entries))
		copy(pending, entries)
		return s.ledgerRepo.Transaction(ctx, func(tx *gorm.DB) error {
			batch, err := s.batchRepo.WithTx(tx).GetByCodeForUpdate(batchCode)
			if err != nil {
				return err
			}
			if batch == nil {
				return ErrBatchNotFound
			}
			if guard != nil {
				if err := guard(tx); err != nil {
					return err
				}
			}
			ledger := s.ledgerRepo.WithTx(tx)
			if err := ensureAvailable(ledger, batch, pending); err != nil {
				return err
			}
			for i := range pending {
				pending[i].OperationRef = ref
			}
			if err := ledger.CreateMany(pending); err != nil {
				return err
			}
			onCommit(pending)
			return nil
		})
	})
	if err != nil {
		s.observeFailure(err, entries, batchCode, operation)
		return err
	}
	for _, entry := range entries {
		s.metrics.ObserveEntry(entry.Kind, entry.Operation)
	}
	return nil
}

// ensureAvailable 校验同一批次上的出库合计不超过该日期起的可用量
func ensureAvailable(ledger repository.LedgerRepository, batch *models.Batch, pending []models.LedgerTransaction) error {
	outflow := decimal.Zero
	var earliest time.Time
	for _, entry := range pending {
		if entry.BatchID != batch.ID || !entry.QuantityDelta.Decimal.IsNegative() {
			continue
		}
		outflow = outflow.Add(entry.QuantityDelta.Decimal.Neg())
		if earliest.IsZero() || entry.Date.Before(earliest) {
			earliest = entry.Date
		}
	}
	if outflow.IsZero() {
		return nil
	}
	history, err := ledger.ListByBatch(batch.ID, nil)
	if err != nil {
		return err
	}
	available := availableFrom(history, earliest)
	if outflow.GreaterThan(available) {
		return &InsufficientStockError{
			BatchCode: batch.Code,
			Available: available,
			Requested: outflow.Round(models.QuantityScale),
		}
	}
	return nil
}

func (s *LedgerService) observeFailure(err error, entries []models.LedgerTransaction, batchCode, operation string) {
	var stockErr *InsufficientStockError
	if errors.As(err, &stockErr) {
		kind := constants.TxnKindDispatch
		if len(entries) > 0 {
			kind = entries[0].Kind
		}
		s.metrics.ObserveStockRejection(kind)
		logger.Ledger().Infow("ledger_insufficient_stock",
			"batch_code", stockErr.BatchCode,
			"available", stockErr.Available.StringFixed(3),
			"requested", stockErr.Requested.StringFixed(3),
			"operation", operation,
		)
		return
	}
	if isBusinessError(err) {
		return
	}
	logger.Ledger().Errorw("ledger_record_failed",
		"batch_code", batchCode,
		"operation", operation,
		"error", err,
	)
}

// loadWritableBatch 获取批次并校验写入范围
func (s *LedgerService) loadWritableBatch(ctx context.Context, scope Scope, code string) (*models.Batch, error) {
	code = normalizeBatchCode(code)
	if code == "" {
		return nil, ErrBatchNotFound
	}
	batch, err := s.batchRepo.WithContext(ctx).GetByCode(code)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return nil, ErrBatchNotFound
	}
	if err := scope.CanWrite(batch.CooperativeID); err != nil {
		return nil, err
	}
	return batch, nil
}

type entryRefs struct {
	FarmerID *uint
	LandID   *uint
}

// resolveEntryRefs 校验农户/地块引用属于批次所在合作社；采收入库只允许记在原始批次上
func (s *LedgerService) resolveEntryRefs(ctx context.Context, batch *models.Batch, kind, operation string, entryCtx EntryContext) (entryRefs, error) {
	refs := entryRefs{}
	if kind != constants.TxnKindReceipt {
		return refs, nil
	}
	if operation == constants.OperationHarvest && !batch.IsOrigin() {
		return refs, ErrInvalidOperation
	}
	if entryCtx.LandID != nil && *entryCtx.LandID != 0 {
		land, err := s.registry.Land(ctx, *entryCtx.LandID)
		if err != nil {
			return refs, err
		}
		if land == nil {
			return refs, ErrRegistryReference
		}
		landID := land.ID
		refs.LandID = &landID
		if entryCtx.FarmerID == nil || *entryCtx.FarmerID == 0 {
			farmerID := land.FarmerID
			refs.FarmerID = &farmerID
		} else if *entryCtx.FarmerID != land.FarmerID {
			return refs, ErrRegistryReference
		}
	}
	if refs.FarmerID == nil && entryCtx.FarmerID != nil && *entryCtx.FarmerID != 0 {
		farmerID := *entryCtx.FarmerID
		refs.FarmerID = &farmerID
	}
	if refs.FarmerID != nil {
		farmer, err := s.registry.Farmer(ctx, *refs.FarmerID)
		if err != nil {
			return refs, err
		}
		if farmer == nil || farmer.CooperativeID != batch.CooperativeID {
			return refs, ErrRegistryReference
		}
	}
	return refs, nil
}

func (s *LedgerService) normalizeDate(date time.Time) time.Time {
	if date.IsZero() {
		return s.now().UTC()
	}
	return date.UTC()
}

// signedDelta 按类型确定数量方向
func signedDelta(kind string, quantity decimal.Decimal) (decimal.Decimal, error) {
	q := quantity.Round(models.QuantityScale)
	if q.IsZero() {
		return decimal.Zero, ErrInvalidQuantity
	}
	switch kind {
	case constants.TxnKindReceipt:
		return q.Abs(), nil
	case constants.TxnKindDispatch:
		return q.Abs().Neg(), nil
	case constants.TxnKindAdjustment:
		return q, nil
	default:
		return decimal.Zero, ErrInvalidTransactionKind
	}
}

func operationAllowed(kind, operation string) bool {
	for _, allowed := range kindOperations[kind] {
		if allowed == operation {
			return true
		}
	}
	return false
}

func normalizePrice(price *decimal.Decimal) *models.Money {
	if price == nil {
		return nil
	}
	money := models.NewMoneyFromDecimal(*price)
	return &money
}
