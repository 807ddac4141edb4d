package ledger

import (
	"strconv"
	"strings"
	"time"

	handlershared "github.com/coopledger/internal/http/handlers/shared"
	"github.com/coopledger/internal/http/response"
	"github.com/coopledger/internal/repository"
	"github.com/coopledger/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type recordPayload struct {
	BatchCode    string          `json:"batch_code" binding:"required"`
	Kind         string          `json:"kind" binding:"required"`
	Operation    string          `json:"operation"`
	Quantity     decimal.Decimal `json:"quantity"`
	Date         string          `json:"date"`
	FarmerID     *uint           `json:"farmer_id"`
	LandID       *uint           `json:"land_id"`
	Counterparty string          `json:"counterparty"`
	Price        *string         `json:"price"`
	Note         string          `json:"note"`
}

type receiptPayload struct {
	BatchCode string          `json:"batch_code" binding:"required"`
	Operation string          `json:"operation"`
	Quantity  decimal.Decimal `json:"quantity"`
	Date      string          `json:"date"`
	FarmerID  *uint           `json:"farmer_id"`
	LandID    *uint           `json:"land_id"`
	Supplier  string          `json:"supplier"`
	Price     *string         `json:"price"`
	Note      string          `json:"note"`
}

type dispatchPayload struct {
	BatchCode string          `json:"batch_code" binding:"required"`
	Operation string          `json:"operation"`
	Quantity  decimal.Decimal `json:"quantity"`
	Date      string          `json:"date"`
	Buyer     string          `json:"buyer"`
	Price     *string         `json:"price"`
	Note      string          `json:"note"`
}

type adjustmentPayload struct {
	BatchCode     string          `json:"batch_code" binding:"required"`
	QuantityDelta decimal.Decimal `json:"quantity_delta"`
	Date          string          `json:"date"`
	Note          string          `json:"note" binding:"required"`
}

type reversePayload struct {
	Date string `json:"date"`
	Note string `json:"note"`
}

// RecordTransaction 通用记账（RECEIPT/DISPATCH/ADJUSTMENT）
func (h *Handler) RecordTransaction(c *gin.Context) {
	scope, ok := handlershared.GetScope(c)
	if !ok {
		return
	}
	var req recordPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		handlershared.RespondErrorWithMsg(c, response.CodeBadRequest, "请求参数错误", nil)
		return
	}
	date, price, ok := parseDateAndPrice(c, req.Date, req.Price)
	if !ok {
		return
	}
	entry, err := h.LedgerService.Record(c.Request.Context(), scope, service.RecordInput{
		BatchCode: req.BatchCode,
		Kind:      strings.ToUpper(strings.TrimSpace(req.Kind)),
		Operation: req.Operation,
		Quantity:  req.Quantity,
		Date:      date,
		Context: service.EntryContext{
			FarmerID:     req.FarmerID,
			LandID:       req.LandID,
			Counterparty: req.Counterparty,
			Price:        price,
			Note:         req.Note,
		},
	})
	if err != nil {
		handlershared.RespondServiceError(c, err)
		return
	}
	response.Success(c, entry)
}

// RecordReceipt 记录入库
func (h *Handler) RecordReceipt(c *gin.Context) {
	scope, ok := handlershared.GetScope(c)
	if !ok {
		return
	}
	var req receiptPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		handlershared.RespondErrorWithMsg(c, response.CodeBadRequest, "请求参数错误", nil)
		return
	}
	date, price, ok := parseDateAndPrice(c, req.Date, req.Price)
	if !ok {
		return
	}
	entry, err := h.LedgerService.RecordReceipt(c.Request.Context(), scope, service.ReceiptInput{
		BatchCode: req.BatchCode,
		Operation: req.Operation,
		Quantity:  req.Quantity,
		Date:      date,
		FarmerID:  req.FarmerID,
		LandID:    req.LandID,
		Supplier:  req.Supplier,
		Price:     price,
		Note:      req.Note,
	})
	if err != nil {
		handlershared.RespondServiceError(c, err)
		return
	}
	response.Success(c, entry)
}

// RecordDispatch 记录出库
func (h *Handler) RecordDispatch(c *gin.Context) {
	scope, ok := handlershared.GetScope(c)
	if !ok {
		return
	}
	var req dispatchPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		handlershared.RespondErrorWithMsg(c, response.CodeBadRequest, "请求参数错误", nil)
		return
	}
	date, price, ok := parseDateAndPrice(c, req.Date, req.Price)
	if !ok {
		return
	}
	entry, err := h.LedgerService.RecordDispatch(c.Request.Context(), scope, service.DispatchInput{
		BatchCode: req.BatchCode,
		Operation: req.Operation,
		Quantity:  req.Quantity,
		Date:      date,
		Buyer:     req.Buyer,
		Price:     price,
		Note:      req.Note,
	})
	if err != nil {
		handlershared.RespondServiceError(c, err)
		return
	}
	response.Success(c, entry)
}

// RecordAdjustment 记录带符号的补偿调整
func (h *Handler) RecordAdjustment(c *gin.Context) {
	scope, ok := handlershared.GetScope(c)
	if !ok {
		return
	}
	var req adjustmentPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		handlershared.RespondErrorWithMsg(c, response.CodeBadRequest, "请求参数错误", nil)
		return
	}
	date, _, ok := parseDateAndPrice(c, req.Date, nil)
	if !ok {
		return
	}
	entry, err := h.LedgerService.RecordAdjustment(c.Request.Context(), scope, service.AdjustmentInput{
		BatchCode:     req.BatchCode,
		QuantityDelta: req.QuantityDelta,
		Date:          date,
		Note:          req.Note,
	})
	if err != nil {
		handlershared.RespondServiceError(c, err)
		return
	}
	response.Success(c, entry)
}

// ReverseTransaction 冲正一条流水
func (h *Handler) ReverseTransaction(c *gin.Context) {
	scope, ok := handlershared.GetScope(c)
	if !ok {
		return
	}
	id, ok := parseTransactionID(c)
	if !ok {
		return
	}
	var req reversePayload
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			handlershared.RespondErrorWithMsg(c, response.CodeBadRequest, "请求参数错误", nil)
			return
		}
	}
	date, _, ok := parseDateAndPrice(c, req.Date, nil)
	if !ok {
		return
	}
	entry, err := h.LedgerService.Reverse(c.Request.Context(), scope, service.ReverseInput{
		TransactionID: id,
		Date:          date,
		Note:          req.Note,
	})
	if err != nil {
		handlershared.RespondServiceError(c, err)
		return
	}
	response.Success(c, entry)
}

// GetTransaction 获取流水详情
func (h *Handler) GetTransaction(c *gin.Context) {
	scope, ok := handlershared.GetScope(c)
	if !ok {
		return
	}
	id, ok := parseTransactionID(c)
	if !ok {
		return
	}
	entry, err := h.LedgerService.GetTransaction(c.Request.Context(), scope, id)
	if err != nil {
		handlershared.RespondServiceError(c, err)
		return
	}
	response.Success(c, entry)
}

// ListBatchTransactions 分页查询批次流水
func (h *Handler) ListBatchTransactions(c *gin.Context) {
	scope, ok := handlershared.GetScope(c)
	if !ok {
		return
	}
	page, pageSize := handlershared.ParsePagination(c)
	dateFrom, err := handlershared.ParseDateTime(c.Query("from"))
	if err != nil {
		handlershared.RespondErrorWithMsg(c, response.CodeBadRequest, "from 日期格式错误", nil)
		return
	}
	dateTo, err := handlershared.ParseDateUntil(c.Query("to"))
	if err != nil {
		handlershared.RespondErrorWithMsg(c, response.CodeBadRequest, "to 日期格式错误", nil)
		return
	}

	entries, total, err := h.LedgerService.ListBatchTransactions(c.Request.Context(), scope, c.Param("code"), repository.TransactionListFilter{
		Page:         page,
		PageSize:     pageSize,
		Kind:         strings.ToUpper(strings.TrimSpace(c.Query("kind"))),
		Operation:    strings.TrimSpace(c.Query("operation")),
		OperationRef: strings.TrimSpace(c.Query("operation_ref")),
		DateFrom:     dateFrom,
		DateTo:       dateTo,
	})
	if err != nil {
		handlershared.RespondServiceError(c, err)
		return
	}
	response.SuccessWithPage(c, entries, response.BuildPagination(page, pageSize, total))
}

func parseTransactionID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		handlershared.RespondErrorWithMsg(c, response.CodeBadRequest, "流水ID无效", nil)
		return 0, false
	}
	return uint(id), true
}

func parseDateAndPrice(c *gin.Context, rawDate string, rawPrice *string) (date time.Time, price *decimal.Decimal, ok bool) {
	parsed, err := handlershared.ParseDateTime(rawDate)
	if err != nil {
		handlershared.RespondErrorWithMsg(c, response.CodeBadRequest, "日期格式错误", nil)
		return time.Time{}, nil, false
	}
	price, err = handlershared.ParseOptionalDecimal(rawPrice)
	if err != nil {
		handlershared.RespondErrorWithMsg(c, response.CodeBadRequest, "价格格式错误", nil)
		return time.Time{}, nil, false
	}
	return handlershared.DateOrZero(parsed), price, true
}
