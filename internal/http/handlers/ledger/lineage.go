package ledger

import (
	handlershared "github.com/coopledger/internal/http/handlers/shared"
	"github.com/coopledger/internal/http/response"

	"github.com/gin-gonic/gin"
)

// ListChildren 直接子批次
func (h *Handler) ListChildren(c *gin.Context) {
	scope, ok := handlershared.GetScope(c)
	if !ok {
		return
	}
	children, err := h.LineageService.Children(c.Request.Context(), scope, c.Param("code"))
	if err != nil {
		handlershared.RespondServiceError(c, err)
		return
	}
	response.Success(c, children)
}

// ListAncestors 祖先批次（根在前，不含自身）
func (h *Handler) ListAncestors(c *gin.Context) {
	scope, ok := handlershared.GetScope(c)
	if !ok {
		return
	}
	ancestors, err := h.LineageService.Ancestors(c.Request.Context(), scope, c.Param("code"))
	if err != nil {
		handlershared.RespondServiceError(c, err)
		return
	}
	response.Success(c, ancestors)
}

// ListDescendants 后代批次（按层级）
func (h *Handler) ListDescendants(c *gin.Context) {
	scope, ok := handlershared.GetScope(c)
	if !ok {
		return
	}
	nodes, err := h.LineageService.Descendants(c.Request.Context(), scope, c.Param("code"))
	if err != nil {
		handlershared.RespondServiceError(c, err)
		return
	}
	response.Success(c, nodes)
}

// GetPath 根到自身的谱系路径
func (h *Handler) GetPath(c *gin.Context) {
	scope, ok := handlershared.GetScope(c)
	if !ok {
		return
	}
	path, err := h.LineageService.Path(c.Request.Context(), scope, c.Param("code"))
	if err != nil {
		handlershared.RespondServiceError(c, err)
		return
	}
	response.Success(c, path)
}

// GetEdges 批次的加工边（流入与流出）
func (h *Handler) GetEdges(c *gin.Context) {
	scope, ok := handlershared.GetScope(c)
	if !ok {
		return
	}
	edges, err := h.LineageService.Edges(c.Request.Context(), scope, c.Param("code"))
	if err != nil {
		handlershared.RespondServiceError(c, err)
		return
	}
	response.Success(c, edges)
}

// GetTrace 溯源报告
func (h *Handler) GetTrace(c *gin.Context) {
	scope, ok := handlershared.GetScope(c)
	if !ok {
		return
	}
	report, err := h.TraceabilityService.Reconstruct(c.Request.Context(), scope, c.Param("code"))
	if err != nil {
		handlershared.RespondServiceError(c, err)
		return
	}
	response.Success(c, report)
}
