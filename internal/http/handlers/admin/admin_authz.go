package admin

import (
	"net/url"
	"strings"

	"github.com/coopledger/internal/constants"
	handlershared "github.com/coopledger/internal/http/handlers/shared"
	"github.com/coopledger/internal/http/response"
	"github.com/coopledger/internal/logger"
	"github.com/coopledger/internal/repository"
	"github.com/coopledger/internal/service"

	"github.com/gin-gonic/gin"
)

type authzPolicyPayload struct {
	Role   string `json:"role" binding:"required"`
	Object string `json:"object" binding:"required"`
	Action string `json:"action" binding:"required"`
}

type scopeTokenPayload struct {
	Subject       string `json:"subject" binding:"required"`
	Role          string `json:"role" binding:"required"`
	CooperativeID uint   `json:"cooperative_id"`
	Province      string `json:"province"`
}

// ListAuthzRoles 获取角色列表
func (h *Handler) ListAuthzRoles(c *gin.Context) {
	roles, err := h.AuthzService.ListRoles()
	if err != nil {
		respondErrorWithMsg(c, response.CodeInternal, "读取角色失败", err)
		return
	}
	response.Success(c, roles)
}

// GetAuthzRolePolicies 获取角色策略
func (h *Handler) GetAuthzRolePolicies(c *gin.Context) {
	role := decodeRoleParam(c.Param("role"))
	if strings.TrimSpace(role) == "" {
		respondErrorWithMsg(c, response.CodeBadRequest, "角色不能为空", nil)
		return
	}

	policies, err := h.AuthzService.GetRolePolicies(role, c.Query("effective") == "true")
	if err != nil {
		respondAuthzError(c, "读取角色策略失败", err)
		return
	}
	response.Success(c, policies)
}

// GrantAuthzPolicy 授予角色策略
func (h *Handler) GrantAuthzPolicy(c *gin.Context) {
	var req authzPolicyPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErrorWithMsg(c, response.CodeBadRequest, "请求参数错误", nil)
		return
	}

	if err := h.AuthzService.GrantRolePolicy(req.Role, req.Object, req.Action); err != nil {
		respondAuthzError(c, "授予策略失败", err)
		return
	}

	h.recordAuthzAudit(c, service.AuthzAuditRecordInput{
		Action: constants.AuthzAuditActionGrantPolicy,
		Role:   req.Role,
		Object: req.Object,
		Method: req.Action,
	})
	logger.Infow("admin_authz_policy_granted",
		"operator", currentSubject(c),
		"role", req.Role,
		"object", req.Object,
		"action", req.Action,
	)
	response.Success(c, nil)
}

// RevokeAuthzPolicy 撤销角色策略
func (h *Handler) RevokeAuthzPolicy(c *gin.Context) {
	var req authzPolicyPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErrorWithMsg(c, response.CodeBadRequest, "请求参数错误", nil)
		return
	}

	if err := h.AuthzService.RevokeRolePolicy(req.Role, req.Object, req.Action); err != nil {
		respondAuthzError(c, "撤销策略失败", err)
		return
	}

	h.recordAuthzAudit(c, service.AuthzAuditRecordInput{
		Action: constants.AuthzAuditActionRevokePolicy,
		Role:   req.Role,
		Object: req.Object,
		Method: req.Action,
	})
	logger.Infow("admin_authz_policy_revoked",
		"operator", currentSubject(c),
		"role", req.Role,
		"object", req.Object,
		"action", req.Action,
	)
	response.Success(c, nil)
}

// IssueScopeToken 为调用方签发范围令牌
func (h *Handler) IssueScopeToken(c *gin.Context) {
	var req scopeTokenPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErrorWithMsg(c, response.CodeBadRequest, "请求参数错误", nil)
		return
	}
	scope := service.Scope{
		Subject:       strings.TrimSpace(req.Subject),
		Role:          strings.TrimSpace(req.Role),
		CooperativeID: req.CooperativeID,
		Province:      strings.TrimSpace(req.Province),
	}
	token, expiresAt, err := h.ScopeTokenService.Issue(scope)
	if err != nil {
		handlershared.RespondServiceError(c, err)
		return
	}

	h.recordAuthzAudit(c, service.AuthzAuditRecordInput{
		TargetSubject: scope.Subject,
		Action:        constants.AuthzAuditActionIssueToken,
		Role:          scope.Role,
		Detail: map[string]interface{}{
			"cooperative_id": scope.CooperativeID,
			"province":       scope.Province,
			"expires_at":     expiresAt,
		},
	})
	logger.Infow("admin_scope_token_issued",
		"operator", currentSubject(c),
		"subject", scope.Subject,
		"role", scope.Role,
		"cooperative_id", scope.CooperativeID,
		"province", scope.Province,
	)
	response.Success(c, gin.H{
		"token":      token,
		"expires_at": expiresAt,
	})
}

// ListAuthzAuditLogs 查询权限审计日志
func (h *Handler) ListAuthzAuditLogs(c *gin.Context) {
	page, pageSize := handlershared.ParsePagination(c)
	createdFrom, err := handlershared.ParseDateTime(c.Query("created_from"))
	if err != nil {
		respondErrorWithMsg(c, response.CodeBadRequest, "created_from 格式错误", nil)
		return
	}
	createdTo, err := handlershared.ParseDateUntil(c.Query("created_to"))
	if err != nil {
		respondErrorWithMsg(c, response.CodeBadRequest, "created_to 格式错误", nil)
		return
	}
	logs, total, err := h.AuthzAuditService.List(c.Request.Context(), repository.AuthzAuditLogListFilter{
		Page:            page,
		PageSize:        pageSize,
		OperatorSubject: c.Query("operator_subject"),
		TargetSubject:   c.Query("target_subject"),
		Action:          c.Query("action"),
		Role:            c.Query("role"),
		CreatedFrom:     createdFrom,
		CreatedTo:       createdTo,
	})
	if err != nil {
		respondErrorWithMsg(c, response.CodeInternal, "读取审计日志失败", err)
		return
	}
	response.SuccessWithPage(c, logs, response.BuildPagination(page, pageSize, total))
}

// recordAuthzAudit 写入审计日志；失败只记录日志，不影响主流程
func (h *Handler) recordAuthzAudit(c *gin.Context, input service.AuthzAuditRecordInput) {
	input.OperatorSubject = currentSubject(c)
	if requestID, ok := c.Get("request_id"); ok {
		if id, ok := requestID.(string); ok {
			input.RequestID = id
		}
	}
	if err := h.AuthzAuditService.Record(c.Request.Context(), input); err != nil {
		handlershared.RequestLog(c).Warnw("admin_authz_audit_record_failed",
			"action", input.Action,
			"error", err,
		)
	}
}

func currentSubject(c *gin.Context) string {
	value, exists := c.Get(handlershared.ScopeContextKey)
	if !exists {
		return ""
	}
	if scope, ok := value.(service.Scope); ok {
		return scope.Subject
	}
	return ""
}

func decodeRoleParam(raw string) string {
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}
