package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"StrategyRadar/pkg/api"
	"StrategyRadar/pkg/cache"
	"StrategyRadar/pkg/collector"
	"StrategyRadar/pkg/config"
	"StrategyRadar/pkg/database"
	"StrategyRadar/pkg/engine"
	"StrategyRadar/pkg/llm"
	"StrategyRadar/pkg/logger"
	"StrategyRadar/pkg/messaging"
	"StrategyRadar/pkg/monitor"
	"StrategyRadar/pkg/repository"
	"StrategyRadar/pkg/scheduler"
	"StrategyRadar/pkg/strategy"
)

// Components 各服务共用的依赖
type Components struct {
	Config   *config.Config
	Logger   *zap.Logger
	Repo     repository.Repository
	Cache    cache.Store
	LLM      llm.Completer
	Fetcher  collector.CandleFetcher
	NATS     *messaging.NATSClient // 未配置时为nil
	Monitor  *monitor.Monitor
	Notifier *api.NotificationService
	Scans    *engine.ScanService

	checks  []scheduler.HealthCheck
	closers []func() error
}

// Build 按配置创建所有依赖，失败时释放已创建的资源
func Build(ctx context.Context, cfg *config.Config, log *zap.Logger) (_ *Components, err error) {
	log = logger.OrNop(log)
	c := &Components{Config: cfg, Logger: log}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	c.Notifier = api.NewNotificationService(cfg.Notify.WebhookURL, log)
	c.Monitor = monitor.NewMonitor(c.Notifier.SendAlert, log)
	c.Monitor.RegisterComponent(engine.ComponentLLM, engine.ComponentMarketData, engine.ComponentStore)

	if err = c.openRepository(); err != nil {
		return nil, err
	}
	if err = c.openCache(ctx); err != nil {
		return nil, err
	}
	if err = c.connectNATS(); err != nil {
		return nil, err
	}
	c.LLM = newCompleter(cfg, log)
	c.Fetcher = &collector.Router{
		Crypto: collector.NewBinanceClient(cfg.MarketData.BinanceBaseURL, cfg.MarketData.Timeout),
		Other:  collector.NewYahooClient(cfg.MarketData.YahooBaseURL, cfg.MarketData.Timeout),
	}

	evaluator, err := engine.NewEvaluator(cfg.Matcher.Mode, c.LLM, cfg.Scanner.WindowSize, cfg.Rules.MinScore, log)
	if err != nil {
		return nil, err
	}

	var fallback collector.CandleFetcher
	if !cfg.Scanner.Strict {
		fallback = collector.NewSynthetic(uint64(time.Now().UnixNano()))
	}
	scanner := engine.NewScanner(c.Fetcher, fallback, evaluator, engine.ScannerConfig{
		Concurrency: cfg.Scanner.Concurrency,
		CandleLimit: cfg.Scanner.CandleLimit,
		Strict:      cfg.Scanner.Strict,
	}, log)
	parser := strategy.NewParser(c.LLM, c.Cache, cfg.Parser.CacheTTL, log)

	opts := []engine.ServiceOption{engine.WithHealthReporter(c.Monitor)}
	if c.NATS != nil {
		opts = append(opts, engine.WithPublisher(c.NATS))
	}
	c.Scans = engine.NewScanService(c.Repo, parser, scanner, log, opts...)

	log.Info("依赖初始化完成",
		zap.String("db_driver", cfg.Database.Driver),
		zap.Bool("redis", cfg.Redis.Addr != ""),
		zap.Bool("nats", c.NATS != nil),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("matcher_mode", cfg.Matcher.Mode),
		zap.Bool("strict", cfg.Scanner.Strict))
	return c, nil
}

func (c *Components) openRepository() error {
	switch strings.ToLower(c.Config.Database.Driver) {
	case "memory":
		c.Logger.Warn("使用内存存储，重启后数据丢失")
		c.Repo = repository.NewMemoryRepository()
	case "", "postgres":
		store, err := database.Open(c.Config)
		if err != nil {
			return fmt.Errorf("连接数据库失败: %w", err)
		}
		c.closers = append(c.closers, store.Close)
		if c.Config.Database.AutoMigrate {
			if err := store.AutoMigrate(); err != nil {
				return fmt.Errorf("数据库迁移失败: %w", err)
			}
		}
		c.Repo = store
	default:
		return fmt.Errorf("不支持的数据库驱动: %s", c.Config.Database.Driver)
	}
	c.checks = append(c.checks, scheduler.HealthCheck{Component: engine.ComponentStore, Check: c.Repo.Ping})
	return nil
}

func (c *Components) openCache(ctx context.Context) error {
	if c.Config.Redis.Addr == "" {
		c.Cache = cache.NewMemoryStore()
		return nil
	}
	rs := cache.NewRedisStore(&redis.Options{
		Addr:     c.Config.Redis.Addr,
		Password: c.Config.Redis.Password,
		DB:       c.Config.Redis.DB,
	})
	c.closers = append(c.closers, rs.Close)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rs.Ping(pingCtx); err != nil {
		return fmt.Errorf("连接Redis失败: %w", err)
	}
	c.Cache = rs
	c.checks = append(c.checks, scheduler.HealthCheck{Component: "cache", Check: rs.Ping})
	return nil
}

func (c *Components) connectNATS() error {
	if c.Config.NATS.URL == "" {
		return nil
	}
	nc, err := messaging.NewNATSClient(c.Config.NATS.URL, c.Logger)
	if err != nil {
		return err
	}
	c.NATS = nc
	c.closers = append(c.closers, nc.Close)
	c.checks = append(c.checks, scheduler.HealthCheck{Component: "nats", Check: nc.Ping})
	return nil
}

// newCompleter 未配置API Key时返回Disabled，扫描仍可运行但解析和匹配都会降级
func newCompleter(cfg *config.Config, log *zap.Logger) llm.Completer {
	completer, err := llm.NewClient(llm.Config{
		Provider:    cfg.LLM.Provider,
		APIURL:      cfg.LLM.APIURL,
		APIKey:      cfg.LLM.APIKey,
		ModelName:   cfg.LLM.ModelName,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
		MaxRetries:  2,
	})
	if err != nil {
		if errors.Is(err, llm.ErrNotConfigured) {
			log.Warn("大模型未配置，策略解析将使用默认值", zap.Error(err))
		} else {
			log.Error("创建大模型客户端失败", zap.Error(err))
		}
		return llm.Disabled{}
	}
	return completer
}

// HealthChecks 定时检查的依赖
func (c *Components) HealthChecks() []scheduler.HealthCheck {
	return append([]scheduler.HealthCheck(nil), c.checks...)
}

// Close 按创建的相反顺序释放资源
func (c *Components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			c.Logger.Warn("释放资源失败", zap.Error(err))
		}
	}
	c.closers = nil
}
