package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/coopledger/internal/config"
	"github.com/coopledger/internal/logger"
	"github.com/coopledger/internal/metrics"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// 可重试的 postgres SQLSTATE
var transientSQLStates = map[string]struct{}{
	"40001": {}, // serialization_failure
	"40P01": {}, // deadlock_detected
	"55P03": {}, // lock_not_available
}

// isTransientStoreError 判断是否为可重试的临时性存储错误
func isTransientStoreError(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		_, ok := transientSQLStates[pgErr.Code]
		return ok
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "sqlite_busy")
}

// isUniqueViolation 判断是否为唯一索引冲突（并发写入同一业务编码）
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

// WriteRetrier 对台账写事务做有界指数退避重试
type WriteRetrier struct {
	maxAttempts     int
	initialInterval time.Duration
	maxInterval     time.Duration
	metrics         *metrics.Metrics
}

// NewWriteRetrier 创建写入重试器
func NewWriteRetrier(cfg config.RetryConfig, m *metrics.Metrics) *WriteRetrier {
	r := &WriteRetrier{
		maxAttempts:     cfg.MaxAttempts,
		initialInterval: time.Duration(cfg.InitialIntervalMS) * time.Millisecond,
		maxInterval:     time.Duration(cfg.MaxIntervalMS) * time.Millisecond,
		metrics:         m,
	}
	if r.maxAttempts <= 0 {
		r.maxAttempts = 1
	}
	if r.initialInterval <= 0 {
		r.initialInterval = 20 * time.Millisecond
	}
	if r.maxInterval < r.initialInterval {
		r.maxInterval = r.initialInterval
	}
	return r
}

// Do 执行写操作；业务错误立即返回，临时性错误按退避重试
func (r *WriteRetrier) Do(ctx context.Context, operation string, fn func() error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.initialInterval
	policy.MaxInterval = r.maxInterval
	policy.MaxElapsedTime = 0

	var bo backoff.BackOff = backoff.WithMaxRetries(policy, uint64(r.maxAttempts-1))
	bo = backoff.WithContext(bo, ctx)

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := fn()
		if err == nil {
			return nil
		}
		if !isTransientStoreError(err) {
			return backoff.Permanent(err)
		}
		r.metrics.ObserveRetry(operation)
		logger.Warnw("ledger_write_retry",
			"operation", operation,
			"attempt", attempt,
			"error", err,
		)
		return err
	}, bo)
}
