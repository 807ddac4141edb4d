package ledger

import (
	"strconv"
	"strings"

	handlershared "github.com/coopledger/internal/http/handlers/shared"
	"github.com/coopledger/internal/http/response"
	"github.com/coopledger/internal/repository"
	"github.com/coopledger/internal/service"

	"github.com/gin-gonic/gin"
)

type createBatchPayload struct {
	Code          string `json:"code"`
	CooperativeID uint   `json:"cooperative_id" binding:"required"`
	ProductType   string `json:"product_type" binding:"required"`
	Unit          string `json:"unit"`
	ParentCode    string `json:"parent_batch_code"`
}

// CreateBatch 创建批次
func (h *Handler) CreateBatch(c *gin.Context) {
	scope, ok := handlershared.GetScope(c)
	if !ok {
		return
	}
	var req createBatchPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		handlershared.RespondErrorWithMsg(c, response.CodeBadRequest, "请求参数错误", nil)
		return
	}
	batch, err := h.BatchService.Create(c.Request.Context(), scope, service.CreateBatchInput{
		Code:          req.Code,
		CooperativeID: req.CooperativeID,
		ProductType:   req.ProductType,
		Unit:          req.Unit,
		ParentCode:    req.ParentCode,
	})
	if err != nil {
		handlershared.RespondServiceError(c, err)
		return
	}
	response.Success(c, batch)
}

// GetBatch 获取批次
func (h *Handler) GetBatch(c *gin.Context) {
	scope, ok := handlershared.GetScope(c)
	if !ok {
		return
	}
	batch, err := h.BatchService.Get(c.Request.Context(), scope, c.Param("code"))
	if err != nil {
		handlershared.RespondServiceError(c, err)
		return
	}
	response.Success(c, batch)
}

// ListBatches 分页查询批次
func (h *Handler) ListBatches(c *gin.Context) {
	scope, ok := handlershared.GetScope(c)
	if !ok {
		return
	}
	page, pageSize := handlershared.ParsePagination(c)
	cooperativeID, _ := strconv.ParseUint(c.Query("cooperative_id"), 10, 64)

	batches, total, err := h.BatchService.List(c.Request.Context(), scope, repository.BatchListFilter{
		Page:          page,
		PageSize:      pageSize,
		CooperativeID: uint(cooperativeID),
		ProductType:   strings.TrimSpace(c.Query("product_type")),
		OnlyOrigin:    c.Query("only_origin") == "true",
	})
	if err != nil {
		handlershared.RespondServiceError(c, err)
		return
	}
	response.SuccessWithPage(c, batches, response.BuildPagination(page, pageSize, total))
}

// GetStock 查询批次库存；携带 as_of 时返回该时点库存
func (h *Handler) GetStock(c *gin.Context) {
	scope, ok := handlershared.GetScope(c)
	if !ok {
		return
	}
	asOf, err := handlershared.ParseDateUntil(c.Query("as_of"))
	if err != nil {
		handlershared.RespondErrorWithMsg(c, response.CodeBadRequest, "as_of 日期格式错误", nil)
		return
	}
	var view *service.StockView
	if asOf == nil {
		view, err = h.StockService.CurrentStock(c.Request.Context(), scope, c.Param("code"))
	} else {
		view, err = h.StockService.StockAsOf(c.Request.Context(), scope, c.Param("code"), asOf)
	}
	if err != nil {
		handlershared.RespondServiceError(c, err)
		return
	}
	response.Success(c, view)
}
