package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"StrategyRadar/pkg/collector"
	"StrategyRadar/pkg/logger"
	"StrategyRadar/pkg/metrics"
	"StrategyRadar/pkg/model"
)

const (
	defaultConcurrency = 4
	defaultCandleLimit = 100
)

// ScannerConfig 扫描参数
type ScannerConfig struct {
	Concurrency int  // 同时处理的组合数，1为严格串行
	CandleLimit int  // 每个组合获取的K线数量
	Strict      bool // 行情获取失败时不使用模拟数据
}

// Scanner 遍历 品种×周期 组合并调用条件评估器
type Scanner struct {
	fetcher   collector.CandleFetcher
	fallback  collector.CandleFetcher
	evaluator ConditionEvaluator
	cfg       ScannerConfig
	logger    *zap.Logger
}

// NewScanner 创建扫描器，fallback为nil等同于Strict
func NewScanner(fetcher, fallback collector.CandleFetcher, evaluator ConditionEvaluator, cfg ScannerConfig, log *zap.Logger) *Scanner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.CandleLimit <= 0 {
		cfg.CandleLimit = defaultCandleLimit
	}
	return &Scanner{
		fetcher:   fetcher,
		fallback:  fallback,
		evaluator: evaluator,
		cfg:       cfg,
		logger:    logger.OrNop(log),
	}
}

// Scan 按 品种优先 的顺序返回每个组合的结果。
// 策略声明了周期时，其他周期的组合直接标记为skipped_timeframe，不获取行情。
// 单个组合的失败只影响该组合；ctx取消后不再调度新组合，返回已完成的部分和ctx错误。
func (s *Scanner) Scan(ctx context.Context, parsed model.ParsedStrategy, markets, timeframes []string) ([]model.PairResult, error) {
	results := make([]model.PairResult, len(markets)*len(timeframes))

	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)

	var cancelled error
schedule:
	for i, symbol := range markets {
		for j, tf := range timeframes {
			idx := i*len(timeframes) + j
			if !parsed.AppliesTo(tf) {
				results[idx] = model.PairResult{Symbol: symbol, Timeframe: tf, Outcome: model.OutcomeSkippedTimeframe}
				continue
			}
			if err := ctx.Err(); err != nil {
				cancelled = err
				break schedule
			}
			g.Go(func() error {
				results[idx] = s.scanPair(ctx, parsed, symbol, tf)
				return nil
			})
		}
	}
	_ = g.Wait()

	if cancelled == nil {
		cancelled = ctx.Err()
	}
	if cancelled != nil {
		done := results[:0:0]
		for _, r := range results {
			if r.Outcome != "" {
				done = append(done, r)
			}
		}
		return done, fmt.Errorf("扫描被取消: %w", cancelled)
	}
	return results, nil
}

func (s *Scanner) scanPair(ctx context.Context, parsed model.ParsedStrategy, symbol, timeframe string) (res model.PairResult) {
	res = model.PairResult{Symbol: symbol, Timeframe: timeframe}
	defer func() {
		metrics.PairsTotal.WithLabelValues(string(res.Outcome)).Inc()
	}()

	candles, err := s.fetch(ctx, symbol, timeframe)
	if err != nil {
		if s.cfg.Strict || s.fallback == nil || ctx.Err() != nil {
			s.logger.Warn("行情获取失败",
				zap.String("symbol", symbol), zap.String("timeframe", timeframe),
				zap.String("outcome", string(model.OutcomeFetchError)), zap.Error(err))
			res.Outcome, res.Err = model.OutcomeFetchError, err
			return res
		}

		s.logger.Warn("行情获取失败，使用模拟数据",
			zap.String("symbol", symbol), zap.String("timeframe", timeframe), zap.Error(err))
		candles, err = s.fallback.FetchCandles(ctx, symbol, timeframe, s.cfg.CandleLimit)
		if err != nil || len(candles) == 0 {
			res.Outcome, res.Err = model.OutcomeFetchError, errors.Join(err, collector.ErrNoData)
			return res
		}
		res.Synthetic = true
		metrics.SyntheticCandlesTotal.WithLabelValues(timeframe).Inc()
	}

	match, err := s.evaluator.Evaluate(ctx, parsed, symbol, timeframe, candles)
	if err != nil {
		s.logger.Warn("条件评估失败",
			zap.String("symbol", symbol), zap.String("timeframe", timeframe),
			zap.String("outcome", string(model.OutcomeMatcherError)), zap.Error(err))
		res.Outcome, res.Err = model.OutcomeMatcherError, err
		return res
	}
	if !match.IsMatch {
		res.Outcome = model.OutcomeNoMatch
		return res
	}

	setup := match.Setup(symbol, timeframe)
	setup.Synthetic = res.Synthetic
	res.Setup = &setup
	res.Outcome = model.OutcomeMatched
	return res
}

func (s *Scanner) fetch(ctx context.Context, symbol, timeframe string) ([]model.Candle, error) {
	if s.fetcher == nil {
		return nil, fmt.Errorf("未配置行情源")
	}
	candles, err := s.fetcher.FetchCandles(ctx, symbol, timeframe, s.cfg.CandleLimit)
	if err != nil {
		return nil, err
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("%w: %s %s", collector.ErrNoData, symbol, timeframe)
	}
	return candles, nil
}

// Summary 扫描结果汇总
type Summary struct {
	Total          int
	Setups         []model.Setup
	Outcomes       map[model.PairOutcome]int
	SyntheticPairs int
}

// Summarize 汇总组合结果；Total为实际尝试的组合数，不含被周期过滤的组合
func Summarize(results []model.PairResult) Summary {
	sum := Summary{
		Setups: make([]model.Setup, 0),
		Outcomes: map[model.PairOutcome]int{
			model.OutcomeMatched:          0,
			model.OutcomeNoMatch:          0,
			model.OutcomeSkippedTimeframe: 0,
			model.OutcomeFetchError:       0,
			model.OutcomeMatcherError:     0,
		},
	}
	for _, r := range results {
		sum.Outcomes[r.Outcome]++
		if r.Outcome != model.OutcomeSkippedTimeframe {
			sum.Total++
		}
		if r.Synthetic {
			sum.SyntheticPairs++
		}
		if r.Outcome == model.OutcomeMatched && r.Setup != nil {
			sum.Setups = append(sum.Setups, *r.Setup)
		}
	}
	return sum
}
