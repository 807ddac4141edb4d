package router

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/coopledger/internal/authz"
	"github.com/coopledger/internal/cache"
	"github.com/coopledger/internal/config"
	adminhandlers "github.com/coopledger/internal/http/handlers/admin"
	ledgerhandlers "github.com/coopledger/internal/http/handlers/ledger"
	reporthandlers "github.com/coopledger/internal/http/handlers/report"
	"github.com/coopledger/internal/http/response"
	"github.com/coopledger/internal/logger"
	"github.com/coopledger/internal/models"
	"github.com/coopledger/internal/provider"

	"github.com/gin-gonic/gin"
)

const apiV1Prefix = "/api/v1"

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	// 初始化 Handler（台账/报表/管理）
	ledgerHandler := ledgerhandlers.New(c)
	reportHandler := reporthandlers.New(c)
	adminHandler := adminhandlers.New(c)
	redisPrefix := strings.TrimSpace(cfg.Redis.Prefix)
	if redisPrefix == "" {
		redisPrefix = "cl"
	}
	writeLimit := RateLimitMiddleware(cache.Client(), RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:ledger_write", redisPrefix),
		WindowSeconds: cfg.Security.WriteRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.WriteRateLimit.MaxRequests,
	}, KeyByScope)

	// 中间件
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware(cfg.CORS))

	apiV1 := r.Group(apiV1Prefix)
	apiV1.Use(ScopeAuthMiddleware(c.ScopeTokenService), RoleRBACMiddleware(c.AuthzService))
	{
		// 批次
		apiV1.POST("/batches", writeLimit, ledgerHandler.CreateBatch)
		apiV1.GET("/batches", ledgerHandler.ListBatches)
		apiV1.GET("/batches/:code", ledgerHandler.GetBatch)
		apiV1.GET("/batches/:code/stock", ledgerHandler.GetStock)
		apiV1.GET("/batches/:code/transactions", ledgerHandler.ListBatchTransactions)

		// 谱系与溯源
		apiV1.GET("/batches/:code/children", ledgerHandler.ListChildren)
		apiV1.GET("/batches/:code/ancestors", ledgerHandler.ListAncestors)
		apiV1.GET("/batches/:code/descendants", ledgerHandler.ListDescendants)
		apiV1.GET("/batches/:code/path", ledgerHandler.GetPath)
		apiV1.GET("/batches/:code/edges", ledgerHandler.GetEdges)
		apiV1.GET("/batches/:code/trace", ledgerHandler.GetTrace)

		// 台账流水
		apiV1.POST("/transactions", writeLimit, ledgerHandler.RecordTransaction)
		apiV1.POST("/transactions/receipts", writeLimit, ledgerHandler.RecordReceipt)
		apiV1.POST("/transactions/dispatches", writeLimit, ledgerHandler.RecordDispatch)
		apiV1.POST("/transactions/adjustments", writeLimit, ledgerHandler.RecordAdjustment)
		apiV1.GET("/transactions/:id", ledgerHandler.GetTransaction)
		apiV1.POST("/transactions/:id/reverse", writeLimit, ledgerHandler.ReverseTransaction)
		apiV1.POST("/transformations", writeLimit, ledgerHandler.RecordTransformation)

		// 报表
		apiV1.GET("/reports/rollup", reportHandler.GetRollup)
		apiV1.GET("/reports/rollup.xlsx", reportHandler.DownloadRollup)
		apiV1.POST("/reports/exports", reportHandler.EnqueueRollupExport)
		apiV1.GET("/reports/supply-projection", reportHandler.GetSupplyProjection)
		apiV1.GET("/reports/supply-projection/range", reportHandler.GetSupplyProjectionRange)
		apiV1.POST("/audits", reportHandler.RunAudit)

		// 权限管理
		apiV1.GET("/authz/roles", adminHandler.ListAuthzRoles)
		apiV1.GET("/authz/roles/:role/policies", adminHandler.GetAuthzRolePolicies)
		apiV1.POST("/authz/policies", adminHandler.GrantAuthzPolicy)
		apiV1.DELETE("/authz/policies", adminHandler.RevokeAuthzPolicy)
		apiV1.POST("/authz/tokens", adminHandler.IssueScopeToken)
		apiV1.GET("/authz/audit-logs", adminHandler.ListAuthzAuditLogs)
		apiV1.GET("/authz/permissions/catalog", func(ctx *gin.Context) {
			response.Success(ctx, buildPermissionCatalog(r))
		})
	}

	// 运维
	r.GET("/healthz", func(ctx *gin.Context) {
		if err := pingDB(); err != nil {
			ctx.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(c.Metrics.Handler()))

	return r
}

func pingDB() error {
	if models.DB == nil {
		return fmt.Errorf("database not initialized")
	}
	sqlDB, err := models.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

type permissionCatalogItem struct {
	Module     string `json:"module"`
	Method     string `json:"method"`
	Object     string `json:"object"`
	Permission string `json:"permission"`
}

func buildPermissionCatalog(engine *gin.Engine) []permissionCatalogItem {
	if engine == nil {
		return []permissionCatalogItem{}
	}

	routes := engine.Routes()
	seen := make(map[string]struct{}, len(routes))
	items := make([]permissionCatalogItem, 0, len(routes))

	for _, item := range routes {
		method := strings.ToUpper(strings.TrimSpace(item.Method))
		if method == "" || method == "OPTIONS" || method == "HEAD" {
			continue
		}
		if !strings.HasPrefix(item.Path, apiV1Prefix+"/") {
			continue
		}
		object := authz.NormalizeObject(item.Path)
		permission := method + ":" + object
		if _, exists := seen[permission]; exists {
			continue
		}
		seen[permission] = struct{}{}
		items = append(items, permissionCatalogItem{
			Module:     derivePermissionModule(object),
			Method:     method,
			Object:     object,
			Permission: permission,
		})
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Module == items[j].Module {
			if items[i].Object == items[j].Object {
				return items[i].Method < items[j].Method
			}
			return items[i].Object < items[j].Object
		}
		return items[i].Module < items[j].Module
	})

	return items
}

func derivePermissionModule(object string) string {
	normalized := strings.TrimPrefix(strings.TrimSpace(object), "/")
	if normalized == "" {
		return "system"
	}
	segments := strings.Split(normalized, "/")
	switch segments[0] {
	case "batches", "transactions", "transformations":
		return "ledger"
	case "reports", "audits":
		return "report"
	default:
		return segments[0]
	}
}
