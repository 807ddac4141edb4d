package queue

import (
	"encoding/json"
	"time"

	"github.com/coopledger/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskLedgerIntegrityAudit 台账完整性巡检任务
	TaskLedgerIntegrityAudit = constants.TaskLedgerIntegrityAudit
	// TaskRollupExport 汇总导出任务
	TaskRollupExport = constants.TaskRollupExport
)

// IntegrityAuditPayload 巡检任务载荷；CooperativeID 为 0 表示全部
type IntegrityAuditPayload struct {
	CooperativeID uint   `json:"cooperative_id,omitempty"`
	Trigger       string `json:"trigger"`
}

// RollupExportPayload 汇总导出任务载荷，携带发起方范围以便按原范围计算
type RollupExportPayload struct {
	Level         string     `json:"level"`
	Metric        string     `json:"metric"`
	DateFrom      *time.Time `json:"date_from,omitempty"`
	DateTo        *time.Time `json:"date_to,omitempty"`
	Subject       string     `json:"subject"`
	Role          string     `json:"role"`
	CooperativeID uint       `json:"cooperative_id,omitempty"`
	Province      string     `json:"province,omitempty"`
}

// NewIntegrityAuditTask 创建巡检任务
func NewIntegrityAuditTask(payload IntegrityAuditPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerIntegrityAudit, body), nil
}

// NewRollupExportTask 创建汇总导出任务
func NewRollupExportTask(payload RollupExportPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRollupExport, body), nil
}
