package service

import (
	"context"
	"time"

	"github.com/coopledger/internal/constants"
	"github.com/coopledger/internal/models"
	"github.com/coopledger/internal/repository"

	"github.com/shopspring/decimal"
)

// StockService 库存推导服务（只读，数量始终由台账折叠得到）
type StockService struct {
	batchRepo  repository.BatchRepository
	ledgerRepo repository.LedgerRepository
	registry   *RegistryLookup
}

// StockView 批次库存视图
type StockView struct {
	BatchCode   string          `json:"batch_code"`
	Unit        string          `json:"unit"`
	Quantity    models.Quantity `json:"quantity"`
	TotalInflow models.Quantity `json:"total_inflow"`
	Status      string          `json:"status"`
	AsOf        *time.Time      `json:"as_of,omitempty"`
	EntryCount  int             `json:"entry_count"`
}

// NewStockService 创建库存服务
func NewStockService(
	batchRepo repository.BatchRepository,
	ledgerRepo repository.LedgerRepository,
	registry *RegistryLookup,
) *StockService {
	return &StockService{
		batchRepo:  batchRepo,
		ledgerRepo: ledgerRepo,
		registry:   registry,
	}
}

// CurrentStock 当前库存：该批次全部流水的带符号求和
func (s *StockService) CurrentStock(ctx context.Context, scope Scope, code string) (*StockView, error) {
	return s.StockAsOf(ctx, scope, code, nil)
}

// StockAsOf 截至指定业务日期（含）的库存，asOf 为空时等同当前库存
func (s *StockService) StockAsOf(ctx context.Context, scope Scope, code string, asOf *time.Time) (*StockView, error) {
	batch, err := loadReadableBatch(ctx, s.batchRepo, s.registry, scope, code)
	if err != nil {
		return nil, err
	}
	var cutoff *time.Time
	if asOf != nil {
		normalized := asOf.UTC()
		cutoff = &normalized
	}
	entries, err := s.ledgerRepo.WithContext(ctx).ListByBatch(batch.ID, cutoff)
	if err != nil {
		return nil, err
	}
	return buildStockView(batch, entries, cutoff), nil
}

func buildStockView(batch *models.Batch, entries []models.LedgerTransaction, asOf *time.Time) *StockView {
	stock := foldStock(entries)
	inflow := totalInflow(entries)
	return &StockView{
		BatchCode:   batch.Code,
		Unit:        batch.Unit,
		Quantity:    models.NewQuantity(stock),
		TotalInflow: models.NewQuantity(inflow),
		Status:      stockStatus(stock, inflow),
		AsOf:        asOf,
		EntryCount:  len(entries),
	}
}

// foldStock 流水带符号求和
func foldStock(entries []models.LedgerTransaction) decimal.Decimal {
	total := decimal.Zero
	for _, entry := range entries {
		total = total.Add(entry.QuantityDelta.Decimal)
	}
	return total.Round(models.QuantityScale)
}

// totalInflow 正向流水合计（入库、加工产出、正向调整）
func totalInflow(entries []models.LedgerTransaction) decimal.Decimal {
	total := decimal.Zero
	for _, entry := range entries {
		if entry.QuantityDelta.Decimal.IsPositive() {
			total = total.Add(entry.QuantityDelta.Decimal)
		}
	}
	return total.Round(models.QuantityScale)
}

// stockStatus 库存状态：0 为 depleted，等于累计流入为 full，其余为 partial
func stockStatus(stock, inflow decimal.Decimal) string {
	if !stock.IsPositive() {
		return constants.StockStatusDepleted
	}
	if stock.GreaterThanOrEqual(inflow) {
		return constants.StockStatusFull
	}
	return constants.StockStatusPartial
}

// availableFrom 返回在 date 记一笔出库时可用的最大数量
// 即 date 时点余额与其后每一时点余额中的最小值，保证任何时点库存不为负。
// entries 需按业务日期、ID 升序。
func availableFrom(entries []models.LedgerTransaction, date time.Time) decimal.Decimal {
	balance := decimal.Zero
	idx := 0
	for ; idx < len(entries); idx++ {
		if entries[idx].Date.After(date) {
			break
		}
		balance = balance.Add(entries[idx].QuantityDelta.Decimal)
	}
	minimum := balance
	for ; idx < len(entries); idx++ {
		balance = balance.Add(entries[idx].QuantityDelta.Decimal)
		if balance.LessThan(minimum) {
			minimum = balance
		}
	}
	if minimum.IsNegative() {
		return decimal.Zero
	}
	return minimum.Round(models.QuantityScale)
}
