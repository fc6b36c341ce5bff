package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"StrategyRadar/pkg/app"
	"StrategyRadar/pkg/config"
	"StrategyRadar/pkg/engine"
	"StrategyRadar/pkg/logger"
	"StrategyRadar/pkg/messaging"
	"StrategyRadar/pkg/metrics"
	"StrategyRadar/pkg/model"
	"StrategyRadar/pkg/repository"
	"StrategyRadar/pkg/scheduler"
)

const consumerName = "strategy-engine"

func main() {
	// 加载配置
	cfg, err := config.LoadConfig(config.GetDefaultConfigPath())
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("启动策略扫描引擎...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Fatal("初始化依赖失败", zap.Error(err))
	}
	defer deps.Close()

	metricsSrv := metrics.Serve(cfg.App.MetricsAddr)
	log.Info("指标服务启动", zap.String("addr", cfg.App.MetricsAddr))

	// 定时任务：自动扫描 + 依赖健康检查
	sched := scheduler.NewScheduler(scheduler.Config{
		RescanSpec:  cfg.Scheduler.RescanSpec,
		HealthSpec:  cfg.Scheduler.HealthSpec,
		ScanTimeout: cfg.API.ScanTimeout,
	}, deps.Repo, deps.Scans, log,
		scheduler.WithNotifier(deps.Notifier),
		scheduler.WithHealthChecks(deps.Monitor, deps.HealthChecks()...),
	)
	if err := sched.Start(); err != nil {
		log.Fatal("启动调度器失败", zap.Error(err))
	}

	// 消息队列中的扫描请求
	if deps.NATS != nil {
		err := deps.NATS.SubscribeScanRequests(consumerName, func(ctx context.Context, cmd model.ScanCommand) error {
			return handleScanCommand(ctx, deps, cfg.API.ScanTimeout, cmd)
		})
		if err != nil {
			log.Fatal("订阅扫描请求失败", zap.Error(err))
		}
	} else {
		log.Warn("未配置NATS，只执行定时扫描")
	}

	<-ctx.Done()
	log.Info("正在关闭策略扫描引擎...")

	sched.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
}

// handleScanCommand 处理一条扫描请求，策略不存在或无权限时不再重试
func handleScanCommand(ctx context.Context, deps *app.Components, timeout time.Duration, cmd model.ScanCommand) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	log := deps.Logger.With(zap.String("strategy_id", cmd.StrategyID), zap.String("user_id", cmd.UserID))
	result, err := deps.Scans.ScanForUser(ctx, cmd.UserID, cmd.ScanRequest, engine.TriggerQueue)
	switch {
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, engine.ErrAccessDenied):
		return errors.Join(messaging.ErrPermanent, err)
	case err != nil:
		return err
	}
	log.Info("队列扫描完成", zap.String("scan_id", result.ScanID), zap.Int("matched", result.MatchingSetupsCount))
	return nil
}
