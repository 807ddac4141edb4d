package report

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/coopledger/internal/export"
	handlershared "github.com/coopledger/internal/http/handlers/shared"
	"github.com/coopledger/internal/http/response"

	"github.com/gin-gonic/gin"
)

// GetSupplyProjection 单月供给预测
func (h *Handler) GetSupplyProjection(c *gin.Context) {
	scope, ok := handlershared.GetScope(c)
	if !ok {
		return
	}
	month, err := handlershared.ParseMonth(c.Query("month"))
	if err != nil {
		handlershared.RespondErrorWithMsg(c, response.CodeBadRequest, "month 格式应为 YYYY-MM", nil)
		return
	}
	entries, err := h.AggregationService.SupplyProjection(c.Request.Context(), scope, month)
	if err != nil {
		handlershared.RespondServiceError(c, err)
		return
	}
	response.Success(c, entries)
}

// GetSupplyProjectionRange 多月供给预测（含首尾月份）
func (h *Handler) GetSupplyProjectionRange(c *gin.Context) {
	scope, ok := handlershared.GetScope(c)
	if !ok {
		return
	}
	from, err := handlershared.ParseMonth(c.Query("from"))
	if err != nil {
		handlershared.RespondErrorWithMsg(c, response.CodeBadRequest, "from 格式应为 YYYY-MM", nil)
		return
	}
	to, err := handlershared.ParseMonth(c.Query("to"))
	if err != nil {
		handlershared.RespondErrorWithMsg(c, response.CodeBadRequest, "to 格式应为 YYYY-MM", nil)
		return
	}
	entries, err := h.AggregationService.SupplyProjectionRange(c.Request.Context(), scope, from, to)
	if err != nil {
		handlershared.RespondServiceError(c, err)
		return
	}
	if c.Query("format") != "xlsx" {
		response.Success(c, entries)
		return
	}
	var buf bytes.Buffer
	if err := export.Write(&buf, export.SupplyProjectionTable(entries)); err != nil {
		handlershared.RespondErrorWithMsg(c, response.CodeInternal, "导出失败", err)
		return
	}
	filename := fmt.Sprintf("supply_projection_%s_%s.xlsx", from.Format("200601"), to.Format("200601"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
