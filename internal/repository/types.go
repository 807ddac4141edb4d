package repository

import "time"

// TransactionListFilter 查询台账流水列表的过滤条件
type TransactionListFilter struct {
	Page          int
	PageSize      int
	BatchID       uint
	CooperativeID uint
	Kind          string
	Operation     string
	OperationRef  string
	DateFrom      *time.Time
	DateTo        *time.Time
}

// BatchListFilter 查询批次列表的过滤条件
type BatchListFilter struct {
	Page          int
	PageSize      int
	CooperativeID uint
	ProductType   string
	OnlyOrigin    bool
}

// RollupQuery 汇总查询条件
// 说明：DateFrom 含、DateTo 不含；CooperativeIDs / Province 为调用方数据范围限制，为空表示不限制。
type RollupQuery struct {
	DateFrom       *time.Time
	DateTo         *time.Time
	CooperativeIDs []uint
	Province       string
}

// RollupRow 汇总查询原始行
type RollupRow struct {
	GroupKey    string
	GroupLabel  string
	MetricValue float64
	RowCount    int64
}

// SupplyProjectionRow 供给预测原始行
type SupplyProjectionRow struct {
	Month       string
	Province    string
	EstimatedKg float64
}
