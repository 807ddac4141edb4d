package service

import (
	"context"
	"sort"
	"time"

	"github.com/coopledger/internal/constants"
	"github.com/coopledger/internal/logger"
	"github.com/coopledger/internal/metrics"
	"github.com/coopledger/internal/models"
	"github.com/coopledger/internal/repository"

	"github.com/shopspring/decimal"
)

// TraceabilityService 溯源重建服务（只读）
type TraceabilityService struct {
	batchRepo  repository.BatchRepository
	ledgerRepo repository.LedgerRepository
	registry   *RegistryLookup
	lineage    *LineageService
	metrics    *metrics.Metrics
}

// TraceabilityReport 溯源报告
type TraceabilityReport struct {
	BatchCode          string                     `json:"batch_code"`
	Batch              models.Batch               `json:"batch"`
	Lineage            []string                   `json:"lineage"`
	Stages             []TraceStage               `json:"stages"`
	QualityCheckpoints []models.QualityCheckpoint `json:"quality_checkpoints"`
	Transactions       []models.LedgerTransaction `json:"transactions"`
}

// TraceStage 溯源阶段；按阶段类型填充对应明细
type TraceStage struct {
	Stage      string           `json:"stage"`
	Status     string           `json:"status"`
	Note       string           `json:"note,omitempty"`
	Origin     *OriginDetail    `json:"origin,omitempty"`
	Harvest    *HarvestDetail   `json:"harvest,omitempty"`
	Processing []ProcessingStep `json:"processing,omitempty"`
	Current    *StockView       `json:"current,omitempty"`
}

// OriginDetail 产地信息
type OriginDetail struct {
	OriginBatchCode string         `json:"origin_batch_code"`
	CooperativeID   uint           `json:"cooperative_id"`
	CooperativeName string         `json:"cooperative_name,omitempty"`
	Province        string         `json:"province,omitempty"`
	Sources         []OriginSource `json:"sources"`
}

// OriginSource 采收来源（农户 + 地块）
type OriginSource struct {
	FarmerID     uint            `json:"farmer_id"`
	FarmerName   string          `json:"farmer_name"`
	LandID       uint            `json:"land_id"`
	LandName     string          `json:"land_name"`
	AreaHectares models.Quantity `json:"area_hectares"`
	Variety      string          `json:"variety,omitempty"`
}

// HarvestDetail 原始批次入库明细
// TotalQuantity 为冲正后的净额，与汇总口径一致；GrossQuantity 为冲正前合计。
type HarvestDetail struct {
	OriginBatchCode  string                     `json:"origin_batch_code"`
	Receipts         []models.LedgerTransaction `json:"receipts"`
	Reversals        []models.LedgerTransaction `json:"reversals"`
	GrossQuantity    models.Quantity            `json:"gross_quantity"`
	ReversedQuantity models.Quantity            `json:"reversed_quantity"`
	TotalQuantity    models.Quantity            `json:"total_quantity"`
	FirstDate        *time.Time                 `json:"first_date,omitempty"`
	LastDate         *time.Time                 `json:"last_date,omitempty"`
}

// ProcessingStep 一次加工在谱系路径上的一步
// QuantityIn 为本步产出到 ToBatchCode 的数量；Operation* 为整次加工合计，
// 满足 OperationQuantityOut = OperationQuantityIn + OperationLoss。
type ProcessingStep struct {
	OperationRef         string          `json:"operation_ref"`
	Date                 time.Time       `json:"date"`
	FromBatchCode        string          `json:"from_batch_code"`
	ToBatchCode          string          `json:"to_batch_code"`
	QuantityIn           models.Quantity `json:"quantity_in"`
	OperationQuantityOut models.Quantity `json:"operation_quantity_out"`
	OperationQuantityIn  models.Quantity `json:"operation_quantity_in"`
	OperationLoss        models.Quantity `json:"operation_loss"`
	OutputCount          int             `json:"output_count"`
}

// NewTraceabilityService 创建溯源服务
func NewTraceabilityService(
	batchRepo repository.BatchRepository,
	ledgerRepo repository.LedgerRepository,
	registry *RegistryLookup,
	lineage *LineageService,
	m *metrics.Metrics,
) *TraceabilityService {
	return &TraceabilityService{
		batchRepo:  batchRepo,
		ledgerRepo: ledgerRepo,
		registry:   registry,
		lineage:    lineage,
		metrics:    m,
	}
}

// Reconstruct 重建批次溯源链：产地 -> 采收 -> 加工 -> 当前状态
// 仅当批次本身不存在时返回 ErrBatchNotFound，其余缺失以阶段状态体现。
func (s *TraceabilityService) Reconstruct(ctx context.Context, scope Scope, code string) (*TraceabilityReport, error) {
	startedAt := time.Now()
	defer s.metrics.ObserveTrace(startedAt)

	batch, err := loadReadableBatch(ctx, s.batchRepo, s.registry, scope, code)
	if err != nil {
		return nil, err
	}
	path, err := s.lineage.pathOf(ctx, batch)
	if err != nil {
		return nil, err
	}

	ids := make([]uint, 0, len(path))
	lineage := make([]string, 0, len(path))
	for _, item := range path {
		ids = append(ids, item.ID)
		lineage = append(lineage, item.Code)
	}
	history, err := s.ledgerRepo.WithContext(ctx).ListByBatchIDs(ids)
	if err != nil {
		return nil, err
	}
	byBatch := make(map[uint][]models.LedgerTransaction, len(path))
	for _, entry := range history {
		byBatch[entry.BatchID] = append(byBatch[entry.BatchID], entry)
	}

	origin := path[0]
	originStage := s.originStage(ctx, origin, byBatch[origin.ID])
	harvestStage := harvestStage(origin, byBatch[origin.ID])
	operations, err := s.transformOperations(ctx, history)
	if err != nil {
		return nil, err
	}
	processingStage := processingStage(path, history, operations)

	current := buildStockView(batch, byBatch[batch.ID], nil)
	currentStage := TraceStage{
		Stage:   constants.TraceStageCurrent,
		Status:  constants.TraceStatusComplete,
		Current: current,
	}

	checkpoints, err := s.registry.QualityCheckpoints(ctx, batch.Code)
	if err != nil {
		logger.Warnw("trace_quality_checkpoints_failed", "batch_code", batch.Code, "error", err)
		checkpoints = []models.QualityCheckpoint{}
	}

	return &TraceabilityReport{
		BatchCode:          batch.Code,
		Batch:              *batch,
		Lineage:            lineage,
		Stages:             []TraceStage{originStage, harvestStage, processingStage, currentStage},
		QualityCheckpoints: checkpoints,
		Transactions:       history,
	}, nil
}

// originStage 由原始批次的入库流水关联到农户与地块；关联缺失时降级为 unknown/partial
func (s *TraceabilityService) originStage(ctx context.Context, origin models.Batch, entries []models.LedgerTransaction) TraceStage {
	stage := TraceStage{Stage: constants.TraceStageOrigin, Status: constants.TraceStatusUnknown}
	detail := &OriginDetail{
		OriginBatchCode: origin.Code,
		CooperativeID:   origin.CooperativeID,
		Sources:         []OriginSource{},
	}
	stage.Origin = detail

	if cooperative, err := s.registry.Cooperative(ctx, origin.CooperativeID); err == nil && cooperative != nil {
		detail.CooperativeName = cooperative.Name
		detail.Province = cooperative.Province
	}
	if !origin.IsOrigin() {
		stage.Note = "parent batch missing"
		return stage
	}

	receipts := 0
	linked := 0
	seen := map[uint]struct{}{}
	for _, entry := range entries {
		if entry.Kind != constants.TxnKindReceipt {
			continue
		}
		receipts++
		if entry.LandID == nil {
			continue
		}
		land, err := s.registry.Land(ctx, *entry.LandID)
		if err != nil || land == nil {
			continue
		}
		farmerID := land.FarmerID
		if entry.FarmerID != nil {
			farmerID = *entry.FarmerID
		}
		farmer, err := s.registry.Farmer(ctx, farmerID)
		if err != nil || farmer == nil {
			continue
		}
		linked++
		if _, ok := seen[land.ID]; ok {
			continue
		}
		seen[land.ID] = struct{}{}
		detail.Sources = append(detail.Sources, OriginSource{
			FarmerID:     farmer.ID,
			FarmerName:   farmer.Name,
			LandID:       land.ID,
			LandName:     land.Name,
			AreaHectares: land.AreaHectares,
			Variety:      land.Variety,
		})
	}
	switch {
	case receipts == 0:
		stage.Note = "no receipt recorded on origin batch"
	case linked == 0:
		stage.Note = "harvest not linked to land"
	case linked < receipts:
		stage.Status = constants.TraceStatusPartial
	default:
		stage.Status = constants.TraceStatusComplete
	}
	return stage
}

func harvestStage(origin models.Batch, entries []models.LedgerTransaction) TraceStage {
	detail := &HarvestDetail{
		OriginBatchCode: origin.Code,
		Receipts:        []models.LedgerTransaction{},
		Reversals:       []models.LedgerTransaction{},
	}
	gross := decimal.Zero
	receiptIDs := map[uint]struct{}{}
	for _, entry := range entries {
		if entry.Kind != constants.TxnKindReceipt {
			continue
		}
		date := entry.Date
		if detail.FirstDate == nil || date.Before(*detail.FirstDate) {
			detail.FirstDate = &date
		}
		if detail.LastDate == nil || date.After(*detail.LastDate) {
			detail.LastDate = &date
		}
		gross = gross.Add(entry.QuantityDelta.Decimal)
		receiptIDs[entry.ID] = struct{}{}
		detail.Receipts = append(detail.Receipts, entry)
	}
	reversed := decimal.Zero
	for _, entry := range entries {
		if entry.Kind != constants.TxnKindAdjustment || entry.ReversalOfID == nil {
			continue
		}
		if _, ok := receiptIDs[*entry.ReversalOfID]; !ok {
			continue
		}
		reversed = reversed.Add(entry.QuantityDelta.Decimal.Neg())
		detail.Reversals = append(detail.Reversals, entry)
	}
	detail.GrossQuantity = models.NewQuantity(gross)
	detail.ReversedQuantity = models.NewQuantity(reversed)
	detail.TotalQuantity = models.NewQuantity(gross.Sub(reversed))
	status := constants.TraceStatusComplete
	if len(detail.Receipts) == 0 {
		status = constants.TraceStatusEmpty
	}
	return TraceStage{Stage: constants.TraceStageHarvest, Status: status, Harvest: detail}
}

// transformOperations 取路径上加工操作引用对应的全部流水（含路径外的兄弟产出）
func (s *TraceabilityService) transformOperations(ctx context.Context, history []models.LedgerTransaction) (map[string][]models.LedgerTransaction, error) {
	refs := []string{}
	seen := map[string]struct{}{}
	for _, entry := range history {
		if entry.Kind != constants.TxnKindTransformIn || entry.OperationRef == "" {
			continue
		}
		if _, ok := seen[entry.OperationRef]; ok {
			continue
		}
		seen[entry.OperationRef] = struct{}{}
		refs = append(refs, entry.OperationRef)
	}
	operations := make(map[string][]models.LedgerTransaction, len(refs))
	if len(refs) == 0 {
		return operations, nil
	}
	entries, err := s.ledgerRepo.WithContext(ctx).ListByOperationRefs(refs)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		operations[entry.OperationRef] = append(operations[entry.OperationRef], entry)
	}
	return operations, nil
}

// processingStage 沿谱系路径收集加工步骤，按日期排序
func processingStage(path []models.Batch, history []models.LedgerTransaction, operations map[string][]models.LedgerTransaction) TraceStage {
	stage := TraceStage{Stage: constants.TraceStageProcessing, Processing: []ProcessingStep{}}
	if len(path) < 2 {
		stage.Status = constants.TraceStatusEmpty
		return stage
	}

	type stepKey struct {
		ref   string
		child string
	}
	steps := map[stepKey]*ProcessingStep{}
	order := []stepKey{}

	covered := map[string]struct{}{}
	for _, child := range path[1:] {
		for _, entry := range history {
			if entry.BatchID != child.ID || entry.Kind != constants.TxnKindTransformIn {
				continue
			}
			key := stepKey{ref: entry.OperationRef, child: child.Code}
			step, ok := steps[key]
			if !ok {
				step = &ProcessingStep{
					OperationRef:  entry.OperationRef,
					Date:          entry.Date,
					FromBatchCode: child.ParentCode(),
					ToBatchCode:   child.Code,
				}
				fillOperationTotals(step, operations[entry.OperationRef])
				steps[key] = step
				order = append(order, key)
			}
			step.QuantityIn = models.NewQuantity(step.QuantityIn.Decimal.Add(entry.QuantityDelta.Decimal))
			covered[child.Code] = struct{}{}
		}
	}

	for _, key := range order {
		stage.Processing = append(stage.Processing, *steps[key])
	}
	sort.SliceStable(stage.Processing, func(i, j int) bool {
		return stage.Processing[i].Date.Before(stage.Processing[j].Date)
	})

	switch {
	case len(covered) == len(path)-1:
		stage.Status = constants.TraceStatusComplete
	case len(covered) == 0:
		stage.Status = constants.TraceStatusUnknown
		stage.Note = "no transformation recorded along lineage"
	default:
		stage.Status = constants.TraceStatusPartial
	}
	return stage
}

// fillOperationTotals 汇总一次加工的投入、全部产出与损耗
func fillOperationTotals(step *ProcessingStep, entries []models.LedgerTransaction) {
	out, in, loss := decimal.Zero, decimal.Zero, decimal.Zero
	outputs := map[uint]struct{}{}
	for _, entry := range entries {
		switch entry.Kind {
		case constants.TxnKindTransformOut:
			amount := entry.QuantityDelta.Decimal.Abs()
			out = out.Add(amount)
			if entry.Operation == constants.OperationProcessingLoss {
				loss = loss.Add(amount)
			}
		case constants.TxnKindTransformIn:
			in = in.Add(entry.QuantityDelta.Decimal)
			outputs[entry.BatchID] = struct{}{}
		}
	}
	step.OperationQuantityOut = models.NewQuantity(out)
	step.OperationQuantityIn = models.NewQuantity(in)
	step.OperationLoss = models.NewQuantity(loss)
	step.OutputCount = len(outputs)
}
