package router

import (
	"fmt"
	"strconv"
	"strings"

	handlershared "github.com/coopledger/internal/http/handlers/shared"
	"github.com/coopledger/internal/http/response"
	"github.com/coopledger/internal/logger"
	"github.com/coopledger/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// RateLimitKeyFunc 生成限流 key 的函数
type RateLimitKeyFunc func(*gin.Context) string

// RateLimitRule 固定窗口限流规则
type RateLimitRule struct {
	Prefix        string
	WindowSeconds int
	MaxRequests   int
}

// 计数与过期在同一脚本内完成，返回 {当前计数, 剩余秒数}
var rateLimitScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
	redis.call("EXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("TTL", KEYS[1])
return {current, ttl}
`)

// RateLimitMiddleware 台账写接口限流；Redis 未启用或故障时放行，不阻断落账
func RateLimitMiddleware(client *redis.Client, rule RateLimitRule, keyFunc RateLimitKeyFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if client == nil || rule.WindowSeconds <= 0 || rule.MaxRequests <= 0 {
			c.Next()
			return
		}

		key := ""
		if keyFunc != nil {
			key = strings.TrimSpace(keyFunc(c))
		}
		if key == "" {
			key = c.ClientIP()
		}
		if rule.Prefix != "" {
			key = rule.Prefix + ":" + key
		}

		values, err := rateLimitScript.Run(c.Request.Context(), client, []string{key}, rule.WindowSeconds).Int64Slice()
		if err != nil || len(values) < 2 {
			logger.Warnw("rate_limit_check_skipped", "key", key, "error", err)
			c.Next()
			return
		}

		allowed, retryAfter := evaluateWindow(values[0], values[1], rule)
		if !allowed {
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			response.Reject(c, response.CodeTooManyRequests, fmt.Sprintf("写入过于频繁，请 %d 秒后重试", retryAfter), gin.H{
				"limit":               rule.MaxRequests,
				"window_seconds":      rule.WindowSeconds,
				"retry_after_seconds": retryAfter,
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// evaluateWindow 判断当前计数是否超限，超限时给出建议等待秒数（至少 1 秒）
func evaluateWindow(count, ttlSeconds int64, rule RateLimitRule) (bool, int) {
	if count <= int64(rule.MaxRequests) {
		return true, 0
	}
	wait := int(ttlSeconds)
	if wait < 1 {
		wait = rule.WindowSeconds
	}
	if wait < 1 {
		wait = 1
	}
	return false, wait
}

// KeyByIP 使用 IP 作为限流 key
func KeyByIP(c *gin.Context) string {
	return c.ClientIP()
}

// KeyByScope 按调用方合作社限流；非合作社角色按主体限流
func KeyByScope(c *gin.Context) string {
	value, exists := c.Get(handlershared.ScopeContextKey)
	if !exists {
		return c.ClientIP()
	}
	scope, ok := value.(service.Scope)
	if !ok {
		return c.ClientIP()
	}
	if scope.CooperativeID != 0 {
		return fmt.Sprintf("coop:%d", scope.CooperativeID)
	}
	if subject := strings.TrimSpace(scope.Subject); subject != "" {
		return "subject:" + subject
	}
	return c.ClientIP()
}
