package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/coopledger/internal/export"
	"github.com/coopledger/internal/logger"
	"github.com/coopledger/internal/provider"
	"github.com/coopledger/internal/queue"
	"github.com/coopledger/internal/service"

	"github.com/hibiken/asynq"
)

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskLedgerIntegrityAudit, c.handleIntegrityAudit)
	mux.HandleFunc(queue.TaskRollupExport, c.handleRollupExport)
}

func (c *Consumer) handleIntegrityAudit(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_integrity_audit_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.IntegrityAuditPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_integrity_audit_unmarshal_failed", "error", err)
		return err
	}
	report, err := c.IntegrityService.Audit(ctx, payload.CooperativeID)
	if err != nil {
		logger.Warnw("worker_integrity_audit_failed",
			"cooperative_id", payload.CooperativeID,
			"trigger", payload.Trigger,
			"error", err,
		)
		return err
	}
	path, err := export.SaveFile(c.exportDir(), export.AuditFileName(payload.CooperativeID, report.FinishedAt), export.AuditTable(report))
	if err != nil {
		logger.Warnw("worker_integrity_audit_save_failed", "cooperative_id", payload.CooperativeID, "error", err)
		return err
	}
	logger.Infow("worker_integrity_audit_done",
		"cooperative_id", payload.CooperativeID,
		"trigger", payload.Trigger,
		"issues", len(report.Issues),
		"file", path,
	)
	return nil
}

func (c *Consumer) handleRollupExport(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_rollup_export_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.RollupExportPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_rollup_export_unmarshal_failed", "error", err)
		return err
	}
	scope := scopeFromPayload(payload)
	result, err := c.AggregationService.Rollup(ctx, scope, service.RollupInput{
		Level:    payload.Level,
		Metric:   payload.Metric,
		DateFrom: payload.DateFrom,
		DateTo:   payload.DateTo,
	})
	if err != nil {
		logger.Warnw("worker_rollup_export_failed",
			"subject", payload.Subject,
			"level", payload.Level,
			"metric", payload.Metric,
			"error", err,
		)
		if isPermanentExportError(err) {
			return nil
		}
		return err
	}
	path, err := export.SaveFile(c.exportDir(), export.RollupFileName(result.Level, result.Metric, time.Now()), export.RollupTable(result))
	if err != nil {
		logger.Warnw("worker_rollup_export_save_failed", "subject", payload.Subject, "error", err)
		return err
	}
	logger.Infow("worker_rollup_export_done",
		"subject", payload.Subject,
		"level", result.Level,
		"metric", result.Metric,
		"entries", len(result.Entries),
		"file", path,
	)
	return nil
}

func (c *Consumer) exportDir() string {
	if c == nil || c.Config == nil {
		return ""
	}
	return c.Config.Export.Dir
}

func scopeFromPayload(payload queue.RollupExportPayload) service.Scope {
	return service.Scope{
		Subject:       payload.Subject,
		Role:          payload.Role,
		CooperativeID: payload.CooperativeID,
		Province:      payload.Province,
	}
}

// isPermanentExportError 参数或范围错误重试无意义
func isPermanentExportError(err error) bool {
	return errors.Is(err, service.ErrInvalidRollup) ||
		errors.Is(err, service.ErrInvalidDateRange) ||
		errors.Is(err, service.ErrScopeForbidden)
}
