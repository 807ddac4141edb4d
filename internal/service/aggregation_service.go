package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/coopledger/internal/constants"
	"github.com/coopledger/internal/metrics"
	"github.com/coopledger/internal/models"
	"github.com/coopledger/internal/repository"

	"github.com/shopspring/decimal"
)

// AggregationService 多级汇总服务（只读）
type AggregationService struct {
	aggregationRepo repository.AggregationRepository
	metrics         *metrics.Metrics
}

// RollupInput 汇总参数；DateFrom 含、DateTo 不含
type RollupInput struct {
	Level    string
	Metric   string
	DateFrom *time.Time
	DateTo   *time.Time
}

// RollupEntry 汇总结果行；Value 为空表示指标无定义（如面积为 0 的单产）
type RollupEntry struct {
	Key   string           `json:"key"`
	Label string           `json:"label"`
	Value *decimal.Decimal `json:"value"`
}

// RollupResult 汇总结果
type RollupResult struct {
	Level    string        `json:"level"`
	Metric   string        `json:"metric"`
	DateFrom *time.Time    `json:"date_from,omitempty"`
	DateTo   *time.Time    `json:"date_to,omitempty"`
	Entries  []RollupEntry `json:"entries"`
}

// SupplyProjectionEntry 月度供给预测
type SupplyProjectionEntry struct {
	Month       string          `json:"month"`
	Province    string          `json:"province"`
	EstimatedKg models.Quantity `json:"estimated_kg"`
}

var rollupLevels = map[string]struct{}{
	constants.RollupLevelNation:      {},
	constants.RollupLevelProvince:    {},
	constants.RollupLevelCooperative: {},
	constants.RollupLevelFarmer:      {},
	constants.RollupLevelLand:        {},
	constants.RollupLevelMonth:       {},
}

// NewAggregationService 创建汇总服务
func NewAggregationService(aggregationRepo repository.AggregationRepository, m *metrics.Metrics) *AggregationService {
	return &AggregationService{aggregationRepo: aggregationRepo, metrics: m}
}

// Rollup 按层级与指标汇总；无数据时返回空列表
func (s *AggregationService) Rollup(ctx context.Context, scope Scope, input RollupInput) (*RollupResult, error) {
	level := strings.TrimSpace(input.Level)
	metric := strings.TrimSpace(input.Metric)
	if _, ok := rollupLevels[level]; !ok {
		return nil, ErrInvalidRollup
	}
	if level == constants.RollupLevelMonth &&
		(metric == constants.RollupMetricLandArea || metric == constants.RollupMetricProductivity) {
		return nil, ErrInvalidRollup
	}
	if input.DateFrom != nil && input.DateTo != nil && !input.DateTo.After(*input.DateFrom) {
		return nil, ErrInvalidDateRange
	}
	query, err := rollupScopeQuery(scope)
	if err != nil {
		return nil, err
	}
	query.DateFrom = utcPtr(input.DateFrom)
	query.DateTo = utcPtr(input.DateTo)

	startedAt := time.Now()
	defer s.metrics.ObserveRollup(level, metric, startedAt)

	repo := s.aggregationRepo.WithContext(ctx)
	var entries []RollupEntry
	switch metric {
	case constants.RollupMetricHarvestTotal:
		rows, err := repo.SumHarvest(level, query)
		if err != nil {
			return nil, err
		}
		entries = rowsToEntries(rows)
	case constants.RollupMetricActiveFarmers:
		rows, err := repo.CountActiveFarmers(level, query)
		if err != nil {
			return nil, err
		}
		entries = rowsToEntries(rows)
	case constants.RollupMetricLandArea:
		rows, err := repo.SumLandArea(level, query)
		if err != nil {
			return nil, err
		}
		entries = rowsToEntries(rows)
	case constants.RollupMetricProductivity:
		harvest, err := repo.SumHarvest(level, query)
		if err != nil {
			return nil, err
		}
		area, err := repo.SumLandArea(level, query)
		if err != nil {
			return nil, err
		}
		entries = productivityEntries(harvest, area)
	default:
		return nil, ErrInvalidRollup
	}

	return &RollupResult{
		Level:    level,
		Metric:   metric,
		DateFrom: query.DateFrom,
		DateTo:   query.DateTo,
		Entries:  entries,
	}, nil
}

// SupplyProjection 指定月份按省份汇总采收预估
func (s *AggregationService) SupplyProjection(ctx context.Context, scope Scope, month time.Time) ([]SupplyProjectionEntry, error) {
	start := monthStart(month)
	return s.supplyProjection(ctx, scope, start, start.AddDate(0, 1, 0))
}

// SupplyProjectionRange 月份区间（含首尾月）按月、省份汇总采收预估
func (s *AggregationService) SupplyProjectionRange(ctx context.Context, scope Scope, from, to time.Time) ([]SupplyProjectionEntry, error) {
	start := monthStart(from)
	end := monthStart(to)
	if end.Before(start) {
		return nil, ErrInvalidDateRange
	}
	return s.supplyProjection(ctx, scope, start, end.AddDate(0, 1, 0))
}

func (s *AggregationService) supplyProjection(ctx context.Context, scope Scope, startAt, endAt time.Time) ([]SupplyProjectionEntry, error) {
	query, err := rollupScopeQuery(scope)
	if err != nil {
		return nil, err
	}
	rows, err := s.aggregationRepo.WithContext(ctx).SumHarvestEstimates(startAt, endAt, query)
	if err != nil {
		return nil, err
	}
	result := make([]SupplyProjectionEntry, 0, len(rows))
	for _, row := range rows {
		result = append(result, SupplyProjectionEntry{
			Month:       row.Month,
			Province:    row.Province,
			EstimatedKg: models.NewQuantity(decimal.NewFromFloat(row.EstimatedKg)),
		})
	}
	return result, nil
}

// rollupScopeQuery 将调用方范围转换为汇总过滤条件
func rollupScopeQuery(scope Scope) (repository.RollupQuery, error) {
	if err := scope.Validate(); err != nil {
		return repository.RollupQuery{}, err
	}
	switch scope.Role {
	case constants.RoleCooperativeOperator:
		return repository.RollupQuery{CooperativeIDs: []uint{scope.CooperativeID}}, nil
	case constants.RoleProvincialAnalyst:
		return repository.RollupQuery{Province: strings.TrimSpace(scope.Province)}, nil
	default:
		return repository.RollupQuery{}, nil
	}
}

func rowsToEntries(rows []repository.RollupRow) []RollupEntry {
	entries := make([]RollupEntry, 0, len(rows))
	for _, row := range rows {
		value := decimal.NewFromFloat(row.MetricValue).Round(models.QuantityScale)
		entries = append(entries, RollupEntry{Key: row.GroupKey, Label: row.GroupLabel, Value: &value})
	}
	return entries
}

// productivityEntries 单产 = 采收量 / 面积；面积为 0 或缺失时为 null
func productivityEntries(harvest, area []repository.RollupRow) []RollupEntry {
	type pair struct {
		label   string
		harvest decimal.Decimal
		area    decimal.Decimal
	}
	merged := map[string]*pair{}
	for _, row := range area {
		merged[row.GroupKey] = &pair{label: row.GroupLabel, area: decimal.NewFromFloat(row.MetricValue)}
	}
	for _, row := range harvest {
		item, ok := merged[row.GroupKey]
		if !ok {
			item = &pair{label: row.GroupLabel}
			merged[row.GroupKey] = item
		}
		item.harvest = decimal.NewFromFloat(row.MetricValue)
	}

	keys := make([]string, 0, len(merged))
	for key := range merged {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	entries := make([]RollupEntry, 0, len(keys))
	for _, key := range keys {
		item := merged[key]
		entry := RollupEntry{Key: key, Label: item.label}
		if item.area.IsPositive() {
			value := item.harvest.DivRound(item.area, models.QuantityScale)
			entry.Value = &value
		}
		entries = append(entries, entry)
	}
	return entries
}

func monthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	normalized := t.UTC()
	return &normalized
}
