package export

import (
	"fmt"
	"time"

	"github.com/coopledger/internal/service"
)

// RollupTable 汇总结果转表格；无定义值输出为空单元格
func RollupTable(result *service.RollupResult) Table {
	table := Table{
		Sheet: "rollup",
		Meta: [][2]string{
			{"level", result.Level},
			{"metric", result.Metric},
			{"date_from", formatDate(result.DateFrom)},
			{"date_to", formatDate(result.DateTo)},
		},
		Headers: []string{"key", "label", "value"},
	}
	for _, entry := range result.Entries {
		var value interface{}
		if entry.Value != nil {
			value = entry.Value.InexactFloat64()
		}
		table.Rows = append(table.Rows, []interface{}{entry.Key, entry.Label, value})
	}
	return table
}

// SupplyProjectionTable 供给预测转表格
func SupplyProjectionTable(entries []service.SupplyProjectionEntry) Table {
	table := Table{
		Sheet:   "supply_projection",
		Headers: []string{"month", "province", "estimated_kg"},
	}
	for _, entry := range entries {
		table.Rows = append(table.Rows, []interface{}{entry.Month, entry.Province, entry.EstimatedKg.InexactFloat64()})
	}
	return table
}

// RollupFileName 汇总导出文件名
func RollupFileName(level, metric string, now time.Time) string {
	return fmt.Sprintf("rollup_%s_%s_%s.xlsx", level, metric, now.UTC().Format("20060102150405"))
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format("2006-01-02")
}

// AuditTable 巡检报告转表格
func AuditTable(report *service.AuditReport) Table {
	table := Table{
		Sheet: "integrity_audit",
		Meta: [][2]string{
			{"started_at", report.StartedAt.UTC().Format(time.RFC3339)},
			{"finished_at", report.FinishedAt.UTC().Format(time.RFC3339)},
			{"batches_scanned", fmt.Sprintf("%d", report.BatchesScanned)},
			{"operations_scanned", fmt.Sprintf("%d", report.OperationsScanned)},
		},
		Headers: []string{"type", "batch_code", "operation_ref", "detail"},
	}
	for _, issue := range report.Issues {
		table.Rows = append(table.Rows, []interface{}{issue.Type, issue.BatchCode, issue.OperationRef, issue.Detail})
	}
	return table
}

// AuditFileName 巡检报告文件名
func AuditFileName(cooperativeID uint, now time.Time) string {
	scope := "all"
	if cooperativeID != 0 {
		scope = fmt.Sprintf("coop%d", cooperativeID)
	}
	return fmt.Sprintf("audit_%s_%s.xlsx", scope, now.UTC().Format("20060102150405"))
}
