package provider

import (
	"github.com/coopledger/internal/authz"
	"github.com/coopledger/internal/cache"
	"github.com/coopledger/internal/config"
	"github.com/coopledger/internal/logger"
	"github.com/coopledger/internal/metrics"
	"github.com/coopledger/internal/models"
	"github.com/coopledger/internal/queue"
	"github.com/coopledger/internal/repository"
	"github.com/coopledger/internal/service"

	"gorm.io/gorm"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	QueueClient *queue.Client
	Metrics     *metrics.Metrics

	// Repositories
	BatchRepo       repository.BatchRepository
	LedgerRepo      repository.LedgerRepository
	RegistryRepo    repository.RegistryRepository
	AggregationRepo repository.AggregationRepository
	AuthzAuditRepo  repository.AuthzAuditLogRepository

	// Services
	AuthzService        *authz.Service
	AuthzAuditService   *service.AuthzAuditService
	ScopeTokenService   *service.ScopeTokenService
	RegistryLookup      *service.RegistryLookup
	WriteRetrier        *service.WriteRetrier
	BatchService        *service.BatchService
	StockService        *service.StockService
	LedgerService       *service.LedgerService
	LineageService      *service.LineageService
	TraceabilityService *service.TraceabilityService
	AggregationService  *service.AggregationService
	IntegrityService    *service.IntegrityService
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) *Container {
	// 初始化缓存
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	// 初始化队列客户端
	var queueClient *queue.Client
	if cfg.Queue.Enabled {
		qc, err := queue.NewClient(&cfg.Queue)
		if err != nil {
			logger.Errorw("provider_init_queue_client_failed", "error", err)
		} else {
			queueClient = qc
		}
	}

	c := &Container{
		Config:      cfg,
		QueueClient: queueClient,
		Metrics:     metrics.New(nil),
	}

	// 1. 初始化 Repositories
	c.initRepositories(models.DB)

	// 2. 初始化 Services
	c.initServices()

	authzService, err := authz.NewService(models.DB)
	if err != nil {
		logger.Errorw("provider_init_authz_failed", "error", err)
		panic(err)
	}
	if err := authzService.BootstrapBuiltinRoles(); err != nil {
		logger.Errorw("provider_bootstrap_builtin_roles_failed", "error", err)
		panic(err)
	}
	c.AuthzService = authzService

	return c
}

// NewLedgerContainer 仅装配台账相关仓储与服务（测试与命令行工具使用）
func NewLedgerContainer(cfg *config.Config, db *gorm.DB, m *metrics.Metrics) *Container {
	if m == nil {
		m = metrics.New(nil)
	}
	c := &Container{Config: cfg, Metrics: m}
	c.initRepositories(db)
	c.initServices()
	return c
}

func (c *Container) initRepositories(db *gorm.DB) {
	c.BatchRepo = repository.NewBatchRepository(db)
	c.LedgerRepo = repository.NewLedgerRepository(db)
	c.RegistryRepo = repository.NewRegistryRepository(db)
	c.AggregationRepo = repository.NewAggregationRepository(db)
	c.AuthzAuditRepo = repository.NewAuthzAuditLogRepository(db)
}

func (c *Container) initServices() {
	c.ScopeTokenService = service.NewScopeTokenService(&c.Config.JWT)
	c.AuthzAuditService = service.NewAuthzAuditService(c.AuthzAuditRepo)
	c.RegistryLookup = service.NewRegistryLookup(c.RegistryRepo, cache.RegistryTTL(c.Config.Redis.RegistryTTLSeconds))
	c.WriteRetrier = service.NewWriteRetrier(c.Config.Ledger.Retry, c.Metrics)

	c.BatchService = service.NewBatchService(c.BatchRepo, c.LedgerRepo, c.RegistryLookup, c.WriteRetrier)
	c.StockService = service.NewStockService(c.BatchRepo, c.LedgerRepo, c.RegistryLookup)
	c.LedgerService = service.NewLedgerService(c.BatchRepo, c.LedgerRepo, c.RegistryLookup, c.WriteRetrier, c.Metrics)
	c.LineageService = service.NewLineageService(c.BatchRepo, c.LedgerRepo, c.RegistryLookup, c.Metrics, c.Config.Ledger.MaxLineageDepth)
	c.TraceabilityService = service.NewTraceabilityService(c.BatchRepo, c.LedgerRepo, c.RegistryLookup, c.LineageService, c.Metrics)
	c.AggregationService = service.NewAggregationService(c.AggregationRepo, c.Metrics)
	c.IntegrityService = service.NewIntegrityService(c.BatchRepo, c.LedgerRepo, c.LineageService, c.Metrics)
}
