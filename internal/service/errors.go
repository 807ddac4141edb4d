package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// 通用错误
var (
	ErrNotFound         = errors.New("记录不存在")
	ErrScopeForbidden   = errors.New("超出调用方数据范围")
	ErrQueueUnavailable = errors.New("任务队列不可用")
)

// 批次与台账错误
var (
	ErrBatchNotFound              = fmt.Errorf("批次不存在: %w", ErrNotFound)
	ErrTransactionNotFound        = fmt.Errorf("台账流水不存在: %w", ErrNotFound)
	ErrCooperativeNotFound        = fmt.Errorf("合作社不存在: %w", ErrNotFound)
	ErrInvalidParent              = errors.New("父批次不存在或不属于同一合作社")
	ErrBatchCodeConflict          = errors.New("批次编码已存在")
	ErrInvalidBatchInput          = errors.New("批次参数无效")
	ErrInsufficientStock          = errors.New("批次库存不足")
	ErrInvalidQuantity            = errors.New("数量无效")
	ErrInvalidTransactionKind     = errors.New("台账类型无效")
	ErrInvalidOperation           = errors.New("业务操作标签无效")
	ErrInvalidTransformation      = errors.New("加工参数无效")
	ErrConservationViolated       = errors.New("加工投入与产出（含损耗）不守恒")
	ErrTransactionNotReversible   = errors.New("该流水不可冲正")
	ErrTransactionAlreadyReversed = errors.New("该流水已冲正")
	ErrRegistryReference          = errors.New("农户或地块引用无效或不属于批次所在合作社")
)

// 谱系与报表错误
var (
	ErrLineageCycle     = errors.New("批次谱系存在环或超过最大深度")
	ErrInvalidRollup    = errors.New("汇总层级或指标无效")
	ErrInvalidDateRange = errors.New("日期范围无效")
)

// InsufficientStockError 库存不足（携带可用量与请求量）
type InsufficientStockError struct {
	BatchCode string
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("批次 %s 库存不足: 可用 %s, 请求 %s",
		e.BatchCode, e.Available.StringFixed(3), e.Requested.StringFixed(3))
}

// Is 支持 errors.Is(err, ErrInsufficientStock)
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// LineageCycleError 谱系遍历检测到环或超出深度
type LineageCycleError struct {
	BatchCode string
	Path      []string
}

func (e *LineageCycleError) Error() string {
	return fmt.Sprintf("批次 %s 谱系异常: %s", e.BatchCode, strings.Join(e.Path, " -> "))
}

// Is 支持 errors.Is(err, ErrLineageCycle)
func (e *LineageCycleError) Is(target error) bool {
	return target == ErrLineageCycle
}

// isBusinessError 业务规则错误（直接返回调用方，不记错误日志）
func isBusinessError(err error) bool {
	for _, target := range []error{
		ErrNotFound,
		ErrScopeForbidden,
		ErrInvalidParent,
		ErrBatchCodeConflict,
		ErrInvalidBatchInput,
		ErrInsufficientStock,
		ErrInvalidQuantity,
		ErrInvalidTransactionKind,
		ErrInvalidOperation,
		ErrInvalidTransformation,
		ErrConservationViolated,
		ErrTransactionNotReversible,
		ErrTransactionAlreadyReversed,
		ErrRegistryReference,
		ErrInvalidRollup,
		ErrInvalidDateRange,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
