package shared

import (
	"errors"

	"github.com/coopledger/internal/http/response"
	"github.com/coopledger/internal/service"

	"github.com/gin-gonic/gin"
)

// mappedHandlerError 定义业务错误到接口错误响应的映射关系。
type mappedHandlerError struct {
	target error
	code   int
}

var ledgerErrorRules = []mappedHandlerError{
	{target: service.ErrScopeForbidden, code: response.CodeForbidden},
	{target: service.ErrNotFound, code: response.CodeNotFound},
	{target: service.ErrBatchCodeConflict, code: response.CodeConflict},
	{target: service.ErrTransactionAlreadyReversed, code: response.CodeConflict},
	{target: service.ErrInsufficientStock, code: response.CodeUnprocessableEntity},
	{target: service.ErrConservationViolated, code: response.CodeUnprocessableEntity},
	{target: service.ErrLineageCycle, code: response.CodeUnprocessableEntity},
	{target: service.ErrTransactionNotReversible, code: response.CodeUnprocessableEntity},
	{target: service.ErrInvalidParent, code: response.CodeBadRequest},
	{target: service.ErrInvalidBatchInput, code: response.CodeBadRequest},
	{target: service.ErrInvalidQuantity, code: response.CodeBadRequest},
	{target: service.ErrInvalidTransactionKind, code: response.CodeBadRequest},
	{target: service.ErrInvalidOperation, code: response.CodeBadRequest},
	{target: service.ErrInvalidTransformation, code: response.CodeBadRequest},
	{target: service.ErrRegistryReference, code: response.CodeBadRequest},
	{target: service.ErrInvalidRollup, code: response.CodeBadRequest},
	{target: service.ErrInvalidDateRange, code: response.CodeBadRequest},
	{target: service.ErrQueueUnavailable, code: response.CodeServiceUnavailable},
}

// RespondServiceError 将台账服务错误映射为接口响应；未识别的错误按 500 处理并记录日志。
func RespondServiceError(c *gin.Context, err error) {
	var stockErr *service.InsufficientStockError
	if errors.As(err, &stockErr) {
		response.Reject(c, response.CodeUnprocessableEntity, stockErr.Error(), gin.H{
			"batch_code": stockErr.BatchCode,
			"available":  stockErr.Available.StringFixed(3),
			"requested":  stockErr.Requested.StringFixed(3),
		})
		return
	}
	var cycleErr *service.LineageCycleError
	if errors.As(err, &cycleErr) {
		response.Reject(c, response.CodeUnprocessableEntity, cycleErr.Error(), gin.H{
			"batch_code": cycleErr.BatchCode,
			"path":       cycleErr.Path,
		})
		return
	}
	for _, rule := range ledgerErrorRules {
		if errors.Is(err, rule.target) {
			RespondErrorWithMsg(c, rule.code, err.Error(), nil)
			return
		}
	}
	RespondErrorWithMsg(c, response.CodeInternal, "服务器内部错误", err)
}
