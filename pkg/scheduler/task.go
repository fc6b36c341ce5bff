package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"StrategyRadar/pkg/engine"
	"StrategyRadar/pkg/logger"
	"StrategyRadar/pkg/model"
)

// StrategySource 需要定时扫描的策略
type StrategySource interface {
	ListAutoScanStrategies(ctx context.Context) ([]model.Strategy, error)
}

// ScanRunner 对单个策略执行扫描
type ScanRunner interface {
	Run(ctx context.Context, st *model.Strategy, req model.ScanRequest, trigger string) (*model.ScanResult, error)
}

// ResultNotifier 推送扫描结果
type ResultNotifier interface {
	SendScanResult(ctx context.Context, st *model.Strategy, result *model.ScanResult) error
}

// HealthReporter 记录组件检查结果
type HealthReporter interface {
	Probe(ctx context.Context, component string, check func(context.Context) error)
}

// HealthCheck 单个依赖的健康检查
type HealthCheck struct {
	Component string
	Check     func(ctx context.Context) error
}

// Config 调度参数
type Config struct {
	RescanSpec  string        // 自动扫描周期，为空时不启用
	HealthSpec  string        // 健康检查周期，为空时不启用
	ScanTimeout time.Duration // 单个策略扫描超时
}

// Scheduler 任务调度器
type Scheduler struct {
	cron     *cron.Cron
	cfg      Config
	source   StrategySource
	scans    ScanRunner
	notifier ResultNotifier
	health   HealthReporter
	checks   []HealthCheck
	logger   *zap.Logger
}

// Option 可选依赖
type Option func(*Scheduler)

// WithNotifier 自动扫描有匹配时推送
func WithNotifier(n ResultNotifier) Option {
	return func(s *Scheduler) { s.notifier = n }
}

// WithHealthChecks 定期执行依赖检查
func WithHealthChecks(h HealthReporter, checks ...HealthCheck) Option {
	return func(s *Scheduler) {
		s.health = h
		s.checks = append(s.checks, checks...)
	}
}

// NewScheduler 创建任务调度器
func NewScheduler(cfg Config, source StrategySource, scans ScanRunner, log *zap.Logger, opts ...Option) *Scheduler {
	log = logger.OrNop(log).With(zap.String("component", "scheduler"))
	cl := cronLogger{log}
	s := &Scheduler{
		// 上一轮未结束时跳过本轮
		cron:   cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		cfg:    cfg,
		source: source,
		scans:  scans,
		logger: log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start 注册任务并启动调度器
func (s *Scheduler) Start() error {
	if s.cfg.RescanSpec != "" {
		if _, err := s.cron.AddFunc(s.cfg.RescanSpec, func() { s.RescanAll(context.Background()) }); err != nil {
			return err
		}
	}
	if s.cfg.HealthSpec != "" && len(s.checks) > 0 {
		if _, err := s.cron.AddFunc(s.cfg.HealthSpec, func() { s.CheckHealth(context.Background()) }); err != nil {
			return err
		}
	}

	s.cron.Start()
	s.logger.Info("调度器已启动", zap.String("rescan", s.cfg.RescanSpec), zap.String("health", s.cfg.HealthSpec))
	return nil
}

// Stop 停止调度器并等待运行中的任务结束
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// RescanAll 重新扫描所有开启自动扫描的策略，返回成功数量
func (s *Scheduler) RescanAll(ctx context.Context) int {
	strategies, err := s.source.ListAutoScanStrategies(ctx)
	if err != nil {
		s.logger.Error("加载自动扫描策略失败", zap.Error(err))
		return 0
	}
	s.logger.Info("开始自动扫描", zap.Int("strategies", len(strategies)))

	done := 0
	for i := range strategies {
		if ctx.Err() != nil {
			break
		}
		if s.rescan(ctx, &strategies[i]) {
			done++
		}
	}
	return done
}

func (s *Scheduler) rescan(ctx context.Context, st *model.Strategy) bool {
	if s.cfg.ScanTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ScanTimeout)
		defer cancel()
	}

	result, err := s.scans.Run(ctx, st, model.ScanRequest{StrategyID: st.ID}, engine.TriggerSchedule)
	if err != nil {
		s.logger.Error("自动扫描失败", zap.String("strategy_id", st.ID), zap.Error(err))
		return false
	}
	if s.notifier != nil {
		if err := s.notifier.SendScanResult(ctx, st, result); err != nil {
			s.logger.Warn("推送扫描结果失败", zap.String("strategy_id", st.ID), zap.Error(err))
		}
	}
	return true
}

// CheckHealth 执行所有依赖检查
func (s *Scheduler) CheckHealth(ctx context.Context) {
	if s.health == nil {
		return
	}
	for _, c := range s.checks {
		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		s.health.Probe(checkCtx, c.Component, c.Check)
		cancel()
	}
}

// cronLogger 将cron日志转到zap
type cronLogger struct {
	l *zap.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Sugar().Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
