package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/coopledger/internal/config"
	"github.com/coopledger/internal/export"
	"github.com/coopledger/internal/logger"
	"github.com/coopledger/internal/provider"
	"github.com/coopledger/internal/queue"

	"github.com/robfig/cron/v3"
)

const (
	auditTimeout   = 10 * time.Minute
	enqueueTimeout = 5 * time.Second
)

// Service 定时任务服务（台账完整性巡检）
type Service struct {
	name      string
	cron      *cron.Cron
	spec      string
	container *provider.Container
}

// NewService 创建定时任务服务
func NewService(cfg *config.AuditConfig, c *provider.Container) (*Service, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, errors.New("audit scheduler disabled")
	}
	if c == nil {
		return nil, errors.New("container is nil")
	}
	spec := cfg.Cron
	if spec == "" {
		spec = "0 2 * * *"
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, err
	}
	return &Service{
		name:      "scheduler",
		cron:      cron.New(cron.WithLocation(time.UTC)),
		spec:      spec,
		container: c,
	}, nil
}

// Name 服务名称
func (s *Service) Name() string {
	if s == nil || s.name == "" {
		return "scheduler"
	}
	return s.name
}

// Start 注册巡检任务并阻塞至上下文结束
func (s *Service) Start(ctx context.Context) error {
	if s == nil || s.cron == nil {
		return errors.New("scheduler not initialized")
	}
	if _, err := s.cron.AddFunc(s.spec, s.runAudit); err != nil {
		return err
	}
	logger.Infow("scheduler_started", "audit_cron", s.spec)
	s.cron.Start()
	<-ctx.Done()
	return nil
}

// Stop 停止调度并等待运行中的任务结束
func (s *Service) Stop(ctx context.Context) error {
	if s == nil || s.cron == nil {
		return nil
	}
	done := s.cron.Stop().Done()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// runAudit 队列可用时投递任务，否则在本进程直接巡检
func (s *Service) runAudit() {
	if client := s.container.QueueClient; client != nil && client.Enabled() {
		ctx, cancel := context.WithTimeout(context.Background(), enqueueTimeout)
		defer cancel()
		taskID, err := client.EnqueueIntegrityAudit(ctx, queue.IntegrityAuditPayload{Trigger: "cron"})
		if errors.Is(err, queue.ErrAuditAlreadyQueued) {
			logger.Infow("scheduler_audit_skipped", "reason", "already_queued")
			return
		}
		if err != nil {
			logger.Warnw("scheduler_audit_enqueue_failed", "error", err)
			return
		}
		logger.Infow("scheduler_audit_enqueued", "task_id", taskID)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
	defer cancel()
	report, err := s.container.IntegrityService.Audit(ctx, 0)
	if err != nil {
		logger.Errorw("scheduler_audit_failed", "error", err)
		return
	}
	if len(report.Issues) == 0 {
		return
	}
	path, err := export.SaveFile(s.container.Config.Export.Dir, export.AuditFileName(0, report.FinishedAt), export.AuditTable(report))
	if err != nil {
		logger.Warnw("scheduler_audit_save_failed", "error", err)
		return
	}
	logger.Warnw("scheduler_audit_issues_found", "issues", len(report.Issues), "file", path)
}
