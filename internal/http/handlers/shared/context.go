package shared

import (
	"github.com/coopledger/internal/http/response"
	"github.com/coopledger/internal/service"

	"github.com/gin-gonic/gin"
)

// ScopeContextKey 调用方范围在 gin 上下文中的键
const ScopeContextKey = "ledger_scope"

// GetScope 读取鉴权中间件写入的调用方范围，缺失时直接返回 401。
func GetScope(c *gin.Context) (service.Scope, bool) {
	value, exists := c.Get(ScopeContextKey)
	if !exists {
		RespondErrorWithMsg(c, response.CodeUnauthorized, "未授权", nil)
		return service.Scope{}, false
	}
	scope, ok := value.(service.Scope)
	if !ok {
		RespondErrorWithMsg(c, response.CodeInternal, "调用方范围类型无效", nil)
		return service.Scope{}, false
	}
	return scope, true
}
