package app

import (
	"errors"
	"net"

	"github.com/coopledger/internal/config"
	"github.com/coopledger/internal/logger"
	"github.com/coopledger/internal/provider"
	"github.com/coopledger/internal/router"
	"github.com/coopledger/internal/scheduler"
	"github.com/coopledger/internal/worker"
)

// BuildRunner 构建服务运行器
func BuildRunner(cfg *config.Config, mode string) (*Runner, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	container := provider.NewContainer(cfg)

	var services []Service

	// 初始化 HTTP 服务
	if mode == ModeAll || mode == ModeAPI {
		engine := router.SetupRouter(cfg, container)
		services = append(services, NewHTTPService(cfg.Server, engine))
	}

	// 初始化 Worker 服务
	if mode == ModeAll && !cfg.Queue.Enabled {
		logger.Infow("app_worker_skipped", "reason", "queue_disabled")
	} else if mode == ModeAll || mode == ModeWorker {
		consumer := worker.NewConsumer(container)
		workerService, err := worker.NewService(&cfg.Queue, consumer)
		if err != nil {
			return nil, err
		}
		services = append(services, workerService)
	}

	// 初始化定时巡检（随 worker 运行，避免多副本 API 重复调度）
	if mode == ModeAll || mode == ModeWorker {
		if cfg.Audit.Enabled {
			schedulerService, err := scheduler.NewService(&cfg.Audit, container)
			if err != nil {
				return nil, err
			}
			services = append(services, schedulerService)
		} else {
			logger.Infow("app_audit_scheduler_disabled")
		}
	}

	// 如果没有服务被启动（例如模式错误或配置导致都没起），应该报错或至少打日志
	if len(services) == 0 {
		return nil, errors.New("no services initialized (check mode and config)")
	}

	return NewRunner(services...), nil
}

// Run 应用启动入口
func Run(opts Options) error {
	opts = normalizeOptions(opts)
	if opts.Config == nil {
		return errors.New("config is nil")
	}

	runner, err := BuildRunner(opts.Config, opts.Mode)
	if err != nil {
		return err
	}

	opts.Logger.Infow("app_start",
		"addr", net.JoinHostPort(opts.Config.Server.Host, opts.Config.Server.Port),
		"mode", opts.Mode,
		"services", runner.Names(),
	)
	return RunWithOptions(runner, opts)
}
