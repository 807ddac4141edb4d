package ledger

import (
	handlershared "github.com/coopledger/internal/http/handlers/shared"
	"github.com/coopledger/internal/http/response"
	"github.com/coopledger/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type transformationOutputPayload struct {
	BatchCode   string          `json:"batch_code"`
	Quantity    decimal.Decimal `json:"quantity"`
	ProductType string          `json:"product_type"`
	Unit        string          `json:"unit"`
}

type transformationPayload struct {
	SourceBatchCode   string                        `json:"source_batch_code" binding:"required"`
	SourceQuantityOut decimal.Decimal               `json:"source_quantity_out"`
	Outputs           []transformationOutputPayload `json:"outputs" binding:"required"`
	Loss              decimal.Decimal               `json:"loss"`
	Date              string                        `json:"date"`
	Note              string                        `json:"note"`
}

// RecordTransformation 记录一次加工（源批次转出，产出批次转入）
func (h *Handler) RecordTransformation(c *gin.Context) {
	scope, ok := handlershared.GetScope(c)
	if !ok {
		return
	}
	var req transformationPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		handlershared.RespondErrorWithMsg(c, response.CodeBadRequest, "请求参数错误", nil)
		return
	}
	date, _, ok := parseDateAndPrice(c, req.Date, nil)
	if !ok {
		return
	}
	outputs := make([]service.TransformationOutput, 0, len(req.Outputs))
	for _, item := range req.Outputs {
		outputs = append(outputs, service.TransformationOutput{
			BatchCode:   item.BatchCode,
			Quantity:    item.Quantity,
			ProductType: item.ProductType,
			Unit:        item.Unit,
		})
	}
	result, err := h.LedgerService.RecordTransformation(c.Request.Context(), scope, service.TransformationInput{
		SourceBatchCode:   req.SourceBatchCode,
		SourceQuantityOut: req.SourceQuantityOut,
		Outputs:           outputs,
		Loss:              req.Loss,
		Date:              date,
		Note:              req.Note,
	})
	if err != nil {
		handlershared.RespondServiceError(c, err)
		return
	}
	response.Success(c, result)
}
