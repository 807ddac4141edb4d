package report

import (
	"errors"

	handlershared "github.com/coopledger/internal/http/handlers/shared"
	"github.com/coopledger/internal/http/response"
	"github.com/coopledger/internal/queue"

	"github.com/gin-gonic/gin"
)

type auditPayload struct {
	CooperativeID uint `json:"cooperative_id"`
	Async         bool `json:"async"`
}

// RunAudit 触发台账完整性巡检；async=true 时投递到队列
func (h *Handler) RunAudit(c *gin.Context) {
	scope, ok := handlershared.GetScope(c)
	if !ok {
		return
	}
	var req auditPayload
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			handlershared.RespondErrorWithMsg(c, response.CodeBadRequest, "请求参数错误", nil)
			return
		}
	}
	if req.Async && h.QueueClient != nil && h.QueueClient.Enabled() {
		taskID, err := h.QueueClient.EnqueueIntegrityAudit(c.Request.Context(), queue.IntegrityAuditPayload{
			CooperativeID: req.CooperativeID,
			Trigger:       "api:" + scope.Subject,
		})
		if errors.Is(err, queue.ErrAuditAlreadyQueued) {
			handlershared.RespondErrorWithMsg(c, response.CodeConflict, err.Error(), nil)
			return
		}
		if err != nil {
			handlershared.RespondErrorWithMsg(c, response.CodeInternal, "巡检任务提交失败", err)
			return
		}
		response.Success(c, gin.H{"task_id": taskID})
		return
	}
	report, err := h.IntegrityService.Audit(c.Request.Context(), req.CooperativeID)
	if err != nil {
		handlershared.RespondServiceError(c, err)
		return
	}
	response.Success(c, report)
}
