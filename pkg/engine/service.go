package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"StrategyRadar/pkg/logger"
	"StrategyRadar/pkg/metrics"
	"StrategyRadar/pkg/model"
	"StrategyRadar/pkg/repository"
	"StrategyRadar/pkg/strategy"
)

// ErrAccessDenied 策略不属于当前用户且未公开
var ErrAccessDenied = errors.New("无权访问该策略")

// 触发来源，用于指标标签
const (
	TriggerAPI      = "api"
	TriggerSchedule = "schedule"
	TriggerQueue    = "queue"
)

// 健康状态组件名
const (
	ComponentLLM        = "llm"
	ComponentMarketData = "market_data"
	ComponentStore      = "store"
)

// HealthReporter 组件健康状态上报
type HealthReporter interface {
	UpdateStatus(component, status, message string)
}

// EventPublisher 扫描完成事件发布
type EventPublisher interface {
	PublishScanCompleted(ctx context.Context, event model.ScanEvent) error
}

// ScanService 解析策略、扫描市场并保存候选交易
type ScanService struct {
	repo      repository.Repository
	parser    *strategy.Parser
	scanner   *Scanner
	locks     *keyedMutex
	publisher EventPublisher
	health    HealthReporter
	logger    *zap.Logger
	now       func() time.Time
}

// ServiceOption 可选依赖
type ServiceOption func(*ScanService)

// WithPublisher 扫描完成后发布事件
func WithPublisher(p EventPublisher) ServiceOption {
	return func(s *ScanService) { s.publisher = p }
}

// WithHealthReporter 根据扫描结果上报组件健康状态
func WithHealthReporter(h HealthReporter) ServiceOption {
	return func(s *ScanService) { s.health = h }
}

func NewScanService(repo repository.Repository, parser *strategy.Parser, scanner *Scanner, log *zap.Logger, opts ...ServiceOption) *ScanService {
	s := &ScanService{
		repo:    repo,
		parser:  parser,
		scanner: scanner,
		locks:   newKeyedMutex(),
		logger:  logger.OrNop(log),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ScanForUser 加载策略并校验可见性后执行扫描。
// 策略不存在返回 repository.ErrNotFound，不可见返回 ErrAccessDenied。
func (s *ScanService) ScanForUser(ctx context.Context, userID string, req model.ScanRequest, trigger string) (*model.ScanResult, error) {
	st, err := s.repo.GetStrategy(ctx, req.StrategyID)
	if err != nil {
		return nil, err
	}
	if !st.VisibleTo(userID) {
		return nil, ErrAccessDenied
	}
	return s.Run(ctx, st, req, trigger)
}

// Run 对已授权的策略执行一次完整扫描
func (s *ScanService) Run(ctx context.Context, st *model.Strategy, req model.ScanRequest, trigger string) (result *model.ScanResult, err error) {
	start := s.now()
	log := s.logger.With(zap.String("strategy_id", st.ID), zap.String("trigger", trigger))
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
		}
		metrics.ScansTotal.WithLabelValues(trigger, status).Inc()
		metrics.ScanDuration.Observe(s.now().Sub(start).Seconds())
	}()

	parsed, changed := s.parser.Resolve(ctx, st)
	if changed {
		if err := s.repo.UpdateStrategyParsed(ctx, st.ID, &parsed, st.AIParsedHash); err != nil {
			log.Warn("保存解析结果失败", zap.Error(err))
		}
	}

	markets := req.ResolvedMarkets()
	timeframes := req.ResolvedTimeframes()

	results, err := s.scanner.Scan(ctx, parsed, markets, timeframes)
	if err != nil {
		log.Error("扫描中断", zap.Int("finished_pairs", len(results)), zap.Error(err))
		return nil, err
	}
	summary := Summarize(results)
	s.reportHealth(summary)

	scanID := uuid.New().String()
	createdAt := s.now().UTC()
	for i := range summary.Setups {
		summary.Setups[i].ID = uuid.New().String()
		summary.Setups[i].StrategyID = st.ID
		summary.Setups[i].ScanID = scanID
		summary.Setups[i].CreatedAt = createdAt
	}

	unlock := s.locks.Lock(st.ID)
	err = s.repo.ReplaceSetups(ctx, st.ID, scanID, summary.Setups)
	unlock()
	if err != nil {
		s.report(ComponentStore, "unhealthy", err.Error())
		log.Error("保存候选交易失败", zap.String("scan_id", scanID), zap.Error(err))
		return nil, fmt.Errorf("保存候选交易失败: %w", err)
	}
	s.report(ComponentStore, "healthy", "")

	result = &model.ScanResult{
		StrategyID:          st.ID,
		ScanID:              scanID,
		TotalMarketsScanned: summary.Total,
		MatchingSetupsCount: len(summary.Setups),
		MatchingSetups:      summary.Setups,
		Outcomes:            summary.Outcomes,
	}

	elapsed := s.now().Sub(start)
	log.Info("扫描完成",
		zap.String("scan_id", scanID),
		zap.Int("markets", len(markets)),
		zap.Int("timeframes", len(timeframes)),
		zap.Int("scanned", summary.Total),
		zap.Int("matched", len(summary.Setups)),
		zap.Int("synthetic", summary.SyntheticPairs),
		zap.Duration("elapsed", elapsed))

	if s.publisher != nil {
		event := model.ScanEvent{
			StrategyID:     st.ID,
			UserID:         st.UserID,
			ScanID:         scanID,
			TotalScanned:   summary.Total,
			MatchingCount:  len(summary.Setups),
			Outcomes:       summary.Outcomes,
			SyntheticPairs: summary.SyntheticPairs,
			DurationMS:     elapsed.Milliseconds(),
			CompletedAt:    s.now().UTC(),
		}
		if err := s.publisher.PublishScanCompleted(ctx, event); err != nil {
			log.Warn("发布扫描事件失败", zap.Error(err))
		}
	}
	return result, nil
}

func (s *ScanService) reportHealth(sum Summary) {
	if n := sum.Outcomes[model.OutcomeMatcherError]; n > 0 {
		s.report(ComponentLLM, "degraded", fmt.Sprintf("%d 个组合条件评估失败", n))
	} else if sum.Total > 0 {
		s.report(ComponentLLM, "healthy", "")
	}

	failed := sum.Outcomes[model.OutcomeFetchError]
	switch {
	case failed > 0:
		s.report(ComponentMarketData, "degraded", fmt.Sprintf("%d 个组合行情获取失败", failed))
	case sum.SyntheticPairs > 0:
		s.report(ComponentMarketData, "degraded", fmt.Sprintf("%d 个组合使用模拟行情", sum.SyntheticPairs))
	case sum.Total > 0:
		s.report(ComponentMarketData, "healthy", "")
	}
}

func (s *ScanService) report(component, status, message string) {
	if s.health != nil {
		s.health.UpdateStatus(component, status, message)
	}
}
