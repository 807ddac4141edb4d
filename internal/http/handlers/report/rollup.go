package report

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/coopledger/internal/export"
	handlershared "github.com/coopledger/internal/http/handlers/shared"
	"github.com/coopledger/internal/http/response"
	"github.com/coopledger/internal/queue"
	"github.com/coopledger/internal/service"

	"github.com/gin-gonic/gin"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type rollupExportPayload struct {
	Level  string `json:"level" binding:"required"`
	Metric string `json:"metric" binding:"required"`
	From   string `json:"from"`
	To     string `json:"to"`
}

// GetRollup 多级汇总
func (h *Handler) GetRollup(c *gin.Context) {
	scope, ok := handlershared.GetScope(c)
	if !ok {
		return
	}
	input, ok := bindRollupQuery(c)
	if !ok {
		return
	}
	result, err := h.AggregationService.Rollup(c.Request.Context(), scope, input)
	if err != nil {
		handlershared.RespondServiceError(c, err)
		return
	}
	response.Success(c, result)
}

// DownloadRollup 同步导出汇总为 xlsx
func (h *Handler) DownloadRollup(c *gin.Context) {
	scope, ok := handlershared.GetScope(c)
	if !ok {
		return
	}
	input, ok := bindRollupQuery(c)
	if !ok {
		return
	}
	result, err := h.AggregationService.Rollup(c.Request.Context(), scope, input)
	if err != nil {
		handlershared.RespondServiceError(c, err)
		return
	}
	var buf bytes.Buffer
	if err := export.Write(&buf, export.RollupTable(result)); err != nil {
		handlershared.RespondErrorWithMsg(c, response.CodeInternal, "导出失败", err)
		return
	}
	filename := export.RollupFileName(result.Level, result.Metric, time.Now())
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

// EnqueueRollupExport 异步导出汇总，文件写入导出目录
func (h *Handler) EnqueueRollupExport(c *gin.Context) {
	scope, ok := handlershared.GetScope(c)
	if !ok {
		return
	}
	var req rollupExportPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		handlershared.RespondErrorWithMsg(c, response.CodeBadRequest, "请求参数错误", nil)
		return
	}
	dateFrom, err := handlershared.ParseDateTime(req.From)
	if err != nil {
		handlershared.RespondErrorWithMsg(c, response.CodeBadRequest, "from 日期格式错误", nil)
		return
	}
	dateTo, err := handlershared.ParseDateBefore(req.To)
	if err != nil {
		handlershared.RespondErrorWithMsg(c, response.CodeBadRequest, "to 日期格式错误", nil)
		return
	}
	if h.QueueClient == nil || !h.QueueClient.Enabled() {
		handlershared.RespondServiceError(c, service.ErrQueueUnavailable)
		return
	}
	taskID, err := h.QueueClient.EnqueueRollupExport(c.Request.Context(), queue.RollupExportPayload{
		Level:         req.Level,
		Metric:        req.Metric,
		DateFrom:      dateFrom,
		DateTo:        dateTo,
		Subject:       scope.Subject,
		Role:          scope.Role,
		CooperativeID: scope.CooperativeID,
		Province:      scope.Province,
	})
	if err != nil {
		handlershared.RespondErrorWithMsg(c, response.CodeInternal, "导出任务提交失败", err)
		return
	}
	handlershared.RequestLog(c).Infow("report_rollup_export_enqueued",
		"task_id", taskID,
		"subject", scope.Subject,
		"level", req.Level,
		"metric", req.Metric,
	)
	response.Success(c, gin.H{"task_id": taskID})
}

func bindRollupQuery(c *gin.Context) (service.RollupInput, bool) {
	dateFrom, err := handlershared.ParseDateTime(c.Query("from"))
	if err != nil {
		handlershared.RespondErrorWithMsg(c, response.CodeBadRequest, "from 日期格式错误", nil)
		return service.RollupInput{}, false
	}
	dateTo, err := handlershared.ParseDateBefore(c.Query("to"))
	if err != nil {
		handlershared.RespondErrorWithMsg(c, response.CodeBadRequest, "to 日期格式错误", nil)
		return service.RollupInput{}, false
	}
	return service.RollupInput{
		Level:    c.Query("level"),
		Metric:   c.Query("metric"),
		DateFrom: dateFrom,
		DateTo:   dateTo,
	}, true
}
