package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coopledger/internal/constants"
	"github.com/coopledger/internal/logger"
	"github.com/coopledger/internal/metrics"
	"github.com/coopledger/internal/models"
	"github.com/coopledger/internal/repository"

	"github.com/shopspring/decimal"
)

// IntegrityService 台账完整性巡检
type IntegrityService struct {
	batchRepo  repository.BatchRepository
	ledgerRepo repository.LedgerRepository
	lineage    *LineageService
	metrics    *metrics.Metrics
}

// AuditIssue 巡检发现的问题
type AuditIssue struct {
	Type         string `json:"type"`
	BatchCode    string `json:"batch_code,omitempty"`
	OperationRef string `json:"operation_ref,omitempty"`
	Detail       string `json:"detail"`
}

// AuditReport 巡检报告
type AuditReport struct {
	CooperativeID     uint           `json:"cooperative_id,omitempty"`
	StartedAt         time.Time      `json:"started_at"`
	FinishedAt        time.Time      `json:"finished_at"`
	BatchesScanned    int            `json:"batches_scanned"`
	OperationsScanned int            `json:"operations_scanned"`
	Issues            []AuditIssue   `json:"issues"`
	Counts            map[string]int `json:"counts"`
}

// NewIntegrityService 创建巡检服务
func NewIntegrityService(
	batchRepo repository.BatchRepository,
	ledgerRepo repository.LedgerRepository,
	lineage *LineageService,
	m *metrics.Metrics,
) *IntegrityService {
	return &IntegrityService{
		batchRepo:  batchRepo,
		ledgerRepo: ledgerRepo,
		lineage:    lineage,
		metrics:    m,
	}
}

// Audit 巡检负库存、谱系环、跨合作社父批次、父批次缺失与加工不守恒
// cooperativeID 为 0 时巡检全部合作社。
func (s *IntegrityService) Audit(ctx context.Context, cooperativeID uint) (*AuditReport, error) {
	report := &AuditReport{
		CooperativeID: cooperativeID,
		StartedAt:     time.Now().UTC(),
		Issues:        []AuditIssue{},
		Counts:        map[string]int{},
	}
	batches, err := s.batchRepo.WithContext(ctx).ListAll(cooperativeID)
	if err != nil {
		return nil, err
	}
	report.BatchesScanned = len(batches)

	byCode := make(map[string]models.Batch, len(batches))
	byID := make(map[uint]models.Batch, len(batches))
	ids := make([]uint, 0, len(batches))
	for _, batch := range batches {
		byCode[batch.Code] = batch
		byID[batch.ID] = batch
		ids = append(ids, batch.ID)
	}

	if err := s.auditLineage(ctx, batches, byCode, report); err != nil {
		return nil, err
	}

	entries, err := s.ledgerRepo.WithContext(ctx).ListByBatchIDs(ids)
	if err != nil {
		return nil, err
	}
	auditBalances(entries, byID, report)
	auditOperations(entries, byID, report)

	report.FinishedAt = time.Now().UTC()
	s.metrics.SetAuditIssues(report.Counts)
	logger.Named("audit").Infow("integrity_audit_finished",
		"cooperative_id", cooperativeID,
		"batches_scanned", report.BatchesScanned,
		"operations_scanned", report.OperationsScanned,
		"issues", len(report.Issues),
		"duration_ms", report.FinishedAt.Sub(report.StartedAt).Milliseconds(),
	)
	return report, nil
}

func (r *AuditReport) add(issue AuditIssue) {
	r.Issues = append(r.Issues, issue)
	r.Counts[issue.Type]++
}

func (s *IntegrityService) auditLineage(ctx context.Context, batches []models.Batch, byCode map[string]models.Batch, report *AuditReport) error {
	repo := s.batchRepo.WithContext(ctx)
	for i := range batches {
		batch := batches[i]
		if batch.IsOrigin() {
			continue
		}
		parent, ok := byCode[batch.ParentCode()]
		if !ok {
			found, err := repo.GetByCode(batch.ParentCode())
			if err != nil {
				return err
			}
			if found == nil {
				report.add(AuditIssue{
					Type:      constants.AuditIssueMissingParent,
					BatchCode: batch.Code,
					Detail:    fmt.Sprintf("parent %s not found", batch.ParentCode()),
				})
				continue
			}
			parent = *found
		}
		if parent.CooperativeID != batch.CooperativeID {
			report.add(AuditIssue{
				Type:      constants.AuditIssueCrossCooperative,
				BatchCode: batch.Code,
				Detail:    fmt.Sprintf("parent %s belongs to cooperative %d", parent.Code, parent.CooperativeID),
			})
		}
		if _, err := s.lineage.pathOf(ctx, &batch); err != nil {
			var cycleErr *LineageCycleError
			if !errors.As(err, &cycleErr) {
				return err
			}
			report.add(AuditIssue{
				Type:      constants.AuditIssueLineageCycle,
				BatchCode: batch.Code,
				Detail:    cycleErr.Error(),
			})
		}
	}
	return nil
}

// auditBalances 检查每个批次在任意时点的余额不为负（entries 已按日期升序）
func auditBalances(entries []models.LedgerTransaction, byID map[uint]models.Batch, report *AuditReport) {
	balances := map[uint]decimal.Decimal{}
	flagged := map[uint]struct{}{}
	for _, entry := range entries {
		balance := balances[entry.BatchID].Add(entry.QuantityDelta.Decimal)
		balances[entry.BatchID] = balance
		if !balance.IsNegative() {
			continue
		}
		if _, done := flagged[entry.BatchID]; done {
			continue
		}
		flagged[entry.BatchID] = struct{}{}
		report.add(AuditIssue{
			Type:      constants.AuditIssueNegativeStock,
			BatchCode: byID[entry.BatchID].Code,
			Detail:    fmt.Sprintf("balance %s after transaction %d", balance.StringFixed(3), entry.ID),
		})
	}
}

// auditOperations 检查每次加工：产出合计等于源批次转出（不含损耗），且产出批次的父批次为源批次
func auditOperations(entries []models.LedgerTransaction, byID map[uint]models.Batch, report *AuditReport) {
	type opTotals struct {
		out     decimal.Decimal
		in      decimal.Decimal
		sources map[string]struct{}
		outputs []uint
	}
	ops := map[string]*opTotals{}
	order := []string{}
	for _, entry := range entries {
		if entry.Kind != constants.TxnKindTransformIn && entry.Kind != constants.TxnKindTransformOut {
			continue
		}
		op, ok := ops[entry.OperationRef]
		if !ok {
			op = &opTotals{sources: map[string]struct{}{}}
			ops[entry.OperationRef] = op
			order = append(order, entry.OperationRef)
		}
		code := byID[entry.BatchID].Code
		if entry.Kind == constants.TxnKindTransformOut {
			op.sources[code] = struct{}{}
			if entry.Operation != constants.OperationProcessingLoss {
				op.out = op.out.Add(entry.QuantityDelta.Decimal.Abs())
			}
			continue
		}
		op.in = op.in.Add(entry.QuantityDelta.Decimal)
		op.outputs = append(op.outputs, entry.BatchID)
	}
	report.OperationsScanned = len(order)

	for _, ref := range order {
		op := ops[ref]
		if !op.out.Equal(op.in) || len(op.sources) != 1 {
			report.add(AuditIssue{
				Type:         constants.AuditIssueUnbalancedOp,
				OperationRef: ref,
				Detail:       fmt.Sprintf("out %s, in %s, sources %d", op.out.StringFixed(3), op.in.StringFixed(3), len(op.sources)),
			})
			continue
		}
		for source := range op.sources {
			for _, output := range op.outputs {
				child := byID[output]
				if child.ParentCode() != source {
					report.add(AuditIssue{
						Type:         constants.AuditIssueUnbalancedOp,
						BatchCode:    child.Code,
						OperationRef: ref,
						Detail:       fmt.Sprintf("output parent %q is not source %s", child.ParentCode(), source),
					})
				}
			}
		}
	}
}

