package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/coopledger/internal/config"
	"github.com/coopledger/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// DefaultQueue 导出等普通任务
	DefaultQueue = constants.QueueDefault
	// CriticalQueue 完整性巡检
	CriticalQueue = constants.QueueCritical

	// auditUniqueTTL 同一范围的巡检在该时间内只排队一次
	auditUniqueTTL = 10 * time.Minute
	exportTimeout  = 5 * time.Minute
)

var (
	// ErrDisabled 队列未启用
	ErrDisabled = errors.New("queue disabled")
	// ErrAuditAlreadyQueued 同一范围已有巡检在排队
	ErrAuditAlreadyQueued = errors.New("巡检任务已在排队")
)

// Client 台账任务投递客户端
type Client struct {
	client *asynq.Client
}

// NewClient 创建队列客户端；未启用时返回可用但拒绝投递的客户端
func NewClient(cfg *config.QueueConfig) (*Client, error) {
	if cfg == nil || !cfg.Enabled {
		return &Client{}, nil
	}
	return &Client{client: asynq.NewClient(buildRedisOpt(cfg))}, nil
}

// Enabled 判断是否启用
func (c *Client) Enabled() bool {
	return c != nil && c.client != nil
}

// Close 关闭客户端
func (c *Client) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.client.Close()
}

// EnqueueIntegrityAudit 推送台账完整性巡检任务，按合作社范围去重
func (c *Client) EnqueueIntegrityAudit(ctx context.Context, payload IntegrityAuditPayload, opts ...asynq.Option) (string, error) {
	task, err := NewIntegrityAuditTask(payload)
	if err != nil {
		return "", err
	}
	options := append([]asynq.Option{
		asynq.Queue(CriticalQueue),
		asynq.MaxRetry(3),
		asynq.Unique(auditUniqueTTL),
	}, opts...)
	id, err := c.enqueue(ctx, task, options)
	if errors.Is(err, asynq.ErrDuplicateTask) {
		return "", ErrAuditAlreadyQueued
	}
	return id, err
}

// EnqueueRollupExport 推送汇总导出任务
func (c *Client) EnqueueRollupExport(ctx context.Context, payload RollupExportPayload, opts ...asynq.Option) (string, error) {
	task, err := NewRollupExportTask(payload)
	if err != nil {
		return "", err
	}
	options := append([]asynq.Option{
		asynq.Queue(DefaultQueue),
		asynq.Timeout(exportTimeout),
	}, opts...)
	return c.enqueue(ctx, task, options)
}

func (c *Client) enqueue(ctx context.Context, task *asynq.Task, options []asynq.Option) (string, error) {
	if !c.Enabled() {
		return "", ErrDisabled
	}
	info, err := c.client.EnqueueContext(ctx, task, options...)
	if err != nil {
		return "", fmt.Errorf("enqueue %s: %w", task.Type(), err)
	}
	return info.ID, nil
}

// BuildServerConfig 生成队列服务配置
func BuildServerConfig(cfg *config.QueueConfig) (asynq.RedisClientOpt, asynq.Config) {
	opt := buildRedisOpt(cfg)
	concurrency := 10
	if cfg != nil && cfg.Concurrency > 0 {
		concurrency = cfg.Concurrency
	}
	queues := map[string]int{CriticalQueue: 3, DefaultQueue: 1}
	if cfg != nil && len(cfg.Queues) > 0 {
		queues = cfg.Queues
	}
	return opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      queues,
	}
}

func buildRedisOpt(cfg *config.QueueConfig) asynq.RedisClientOpt {
	host := "127.0.0.1"
	port := 6379
	password := ""
	db := 0
	if cfg != nil {
		if strings.TrimSpace(cfg.Host) != "" {
			host = strings.TrimSpace(cfg.Host)
		}
		if cfg.Port > 0 {
			port = cfg.Port
		}
		password = cfg.Password
		db = cfg.DB
	}
	return asynq.RedisClientOpt{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	}
}
