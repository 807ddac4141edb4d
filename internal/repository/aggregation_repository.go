package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/coopledger/internal/constants"

	"gorm.io/gorm"
)

// AggregationRepository 汇总聚合查询接口
// 说明：仅聚合统计数据，不承载业务规则。
type AggregationRepository interface {
	WithContext(ctx context.Context) AggregationRepository
	SumHarvest(level string, query RollupQuery) ([]RollupRow, error)
	CountActiveFarmers(level string, query RollupQuery) ([]RollupRow, error)
	SumLandArea(level string, query RollupQuery) ([]RollupRow, error)
	SumHarvestEstimates(startAt, endAt time.Time, query RollupQuery) ([]SupplyProjectionRow, error)
}

// GormAggregationRepository GORM 汇总聚合实现
type GormAggregationRepository struct {
	db *gorm.DB
}

// NewAggregationRepository 创建汇总仓库
func NewAggregationRepository(db *gorm.DB) *GormAggregationRepository {
	return &GormAggregationRepository{db: db}
}

// WithContext 绑定请求上下文
func (r *GormAggregationRepository) WithContext(ctx context.Context) AggregationRepository {
	if ctx == nil {
		return r
	}
	return &GormAggregationRepository{db: r.db.WithContext(ctx)}
}

// groupColumns 汇总层级对应的分组键与展示名
type groupColumns struct {
	key     string
	label   string
	grouped bool
}

func nationColumns() groupColumns {
	literal := fmt.Sprintf("'%s'", constants.RollupNationKey)
	return groupColumns{key: literal, label: literal}
}

// harvestGroupColumns 台账采收流水的分组列，同时返回所需关联
func (r *GormAggregationRepository) harvestGroupColumns(level string) (groupColumns, []string, error) {
	switch level {
	case constants.RollupLevelNation:
		return nationColumns(), nil, nil
	case constants.RollupLevelProvince:
		return groupColumns{key: "c.province", label: "c.province", grouped: true}, nil, nil
	case constants.RollupLevelCooperative:
		return groupColumns{key: idTextExpr(r.db, "c.id"), label: "c.name", grouped: true}, nil, nil
	case constants.RollupLevelFarmer:
		return groupColumns{key: idTextExpr(r.db, "f.id"), label: "f.name", grouped: true},
			[]string{"JOIN farmers f ON f.id = t.farmer_id"}, nil
	case constants.RollupLevelLand:
		return groupColumns{key: idTextExpr(r.db, "l.id"), label: "l.name", grouped: true},
			[]string{"JOIN lands l ON l.id = t.land_id"}, nil
	case constants.RollupLevelMonth:
		month := monthBucketExpr(r.db, "t.date")
		return groupColumns{key: month, label: month, grouped: true}, nil, nil
	default:
		return groupColumns{}, nil, fmt.Errorf("unsupported rollup level: %s", level)
	}
}

// harvestBase 采收流水基础查询（operation = harvest）
func (r *GormAggregationRepository) harvestBase(joins []string, query RollupQuery) *gorm.DB {
	db := r.db.Table("transactions AS t").
		Joins("JOIN cooperatives c ON c.id = t.cooperative_id").
		Where("t.operation = ?", constants.OperationHarvest)
	for _, join := range joins {
		db = db.Joins(join)
	}
	if query.DateFrom != nil {
		db = db.Where("t.date >= ?", *query.DateFrom)
	}
	if query.DateTo != nil {
		db = db.Where("t.date < ?", *query.DateTo)
	}
	return applyRollupScope(db, query)
}

func applyRollupScope(db *gorm.DB, query RollupQuery) *gorm.DB {
	if len(query.CooperativeIDs) > 0 {
		db = db.Where("c.id IN ?", query.CooperativeIDs)
	}
	if query.Province != "" {
		db = db.Where("c.province = ?", query.Province)
	}
	return db
}

func scanRollup(db *gorm.DB, columns groupColumns, valueExpr string) ([]RollupRow, error) {
	db = db.Select(fmt.Sprintf("%s AS group_key, %s AS group_label, %s AS metric_value, COUNT(*) AS row_count",
		columns.key, columns.label, valueExpr))
	if columns.grouped {
		db = db.Group(fmt.Sprintf("%s, %s", columns.key, columns.label)).Order("group_key asc")
	}
	var rows []RollupRow
	if err := db.Scan(&rows).Error; err != nil {
		return nil, err
	}
	// 聚合无分组时空集仍返回一行，按无数据处理
	result := make([]RollupRow, 0, len(rows))
	for _, row := range rows {
		if row.RowCount == 0 {
			continue
		}
		result = append(result, row)
	}
	return result, nil
}

// SumHarvest 按层级汇总采收量（含采收冲正）
func (r *GormAggregationRepository) SumHarvest(level string, query RollupQuery) ([]RollupRow, error) {
	columns, joins, err := r.harvestGroupColumns(level)
	if err != nil {
		return nil, err
	}
	return scanRollup(r.harvestBase(joins, query), columns, "COALESCE(SUM(t.quantity_delta), 0)")
}

// CountActiveFarmers 按层级统计有采收记录的农户数
func (r *GormAggregationRepository) CountActiveFarmers(level string, query RollupQuery) ([]RollupRow, error) {
	columns, joins, err := r.harvestGroupColumns(level)
	if err != nil {
		return nil, err
	}
	db := r.harvestBase(joins, query).Where("t.farmer_id IS NOT NULL")
	return scanRollup(db, columns, "COUNT(DISTINCT t.farmer_id)")
}

// SumLandArea 按层级汇总地块面积
func (r *GormAggregationRepository) SumLandArea(level string, query RollupQuery) ([]RollupRow, error) {
	var columns groupColumns
	switch level {
	case constants.RollupLevelNation:
		columns = nationColumns()
	case constants.RollupLevelProvince:
		columns = groupColumns{key: "c.province", label: "c.province", grouped: true}
	case constants.RollupLevelCooperative:
		columns = groupColumns{key: idTextExpr(r.db, "c.id"), label: "c.name", grouped: true}
	case constants.RollupLevelFarmer:
		columns = groupColumns{key: idTextExpr(r.db, "f.id"), label: "f.name", grouped: true}
	case constants.RollupLevelLand:
		columns = groupColumns{key: idTextExpr(r.db, "l.id"), label: "l.name", grouped: true}
	default:
		return nil, fmt.Errorf("unsupported land area level: %s", level)
	}
	db := r.db.Table("lands AS l").
		Joins("JOIN farmers f ON f.id = l.farmer_id").
		Joins("JOIN cooperatives c ON c.id = f.cooperative_id")
	db = applyRollupScope(db, query)
	return scanRollup(db, columns, "COALESCE(SUM(l.area_hectares), 0)")
}

// SumHarvestEstimates 按月份与省份汇总采收预估（startAt 含、endAt 不含）
func (r *GormAggregationRepository) SumHarvestEstimates(startAt, endAt time.Time, query RollupQuery) ([]SupplyProjectionRow, error) {
	month := monthBucketExpr(r.db, "a.estimated_date")
	db := r.db.Table("cultivation_activities AS a").
		Joins("JOIN farmers f ON f.id = a.farmer_id").
		Joins("JOIN cooperatives c ON c.id = f.cooperative_id").
		Where("a.type = ? AND a.estimated_date IS NOT NULL", constants.ActivityHarvestEstimate).
		Where("a.estimated_date >= ? AND a.estimated_date < ?", startAt, endAt)
	db = applyRollupScope(db, query)

	var rows []SupplyProjectionRow
	if err := db.Select(fmt.Sprintf("%s AS month, c.province AS province, COALESCE(SUM(a.estimated_quantity), 0) AS estimated_kg", month)).
		Group(fmt.Sprintf("%s, c.province", month)).
		Order("month asc, province asc").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
