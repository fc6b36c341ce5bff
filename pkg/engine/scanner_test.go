package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"StrategyRadar/pkg/collector"
	"StrategyRadar/pkg/model"
)

type fakeFetcher struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error // symbol -> error
	delay time.Duration
}

func (f *fakeFetcher) FetchCandles(ctx context.Context, symbol, timeframe string, limit int) ([]model.Candle, error) {
	f.mu.Lock()
	f.calls = append(f.calls, symbol+"|"+timeframe)
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := f.fail[symbol]; err != nil {
		return nil, err
	}
	return risingCandles(limit, 100), nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fakeEvaluator 对matchSymbols中的品种返回做多信号
type fakeEvaluator struct {
	matchSymbols map[string]bool
	failSymbols  map[string]bool
	inflight     atomic.Int32
	maxInflight  atomic.Int32
	hold         time.Duration
}

func (e *fakeEvaluator) Evaluate(_ context.Context, _ model.ParsedStrategy, symbol, _ string, candles []model.Candle) (Match, error) {
	n := e.inflight.Add(1)
	defer e.inflight.Add(-1)
	for {
		m := e.maxInflight.Load()
		if n <= m || e.maxInflight.CompareAndSwap(m, n) {
			break
		}
	}
	if e.hold > 0 {
		time.Sleep(e.hold)
	}
	if e.failSymbols[symbol] {
		return noMatch, errors.New("model unavailable")
	}
	if !e.matchSymbols[symbol] {
		return noMatch, nil
	}
	entry := model.LastClose(candles)
	return Match{
		IsMatch:    true,
		Direction:  model.DirectionLong,
		Entry:      entry,
		StopLoss:   entry * 0.98,
		TakeProfit: entry * 1.04,
		Confidence: 70,
		Reasons:    []string{"test"},
	}, nil
}

func risingCandles(n int, start float64) []model.Candle {
	out := make([]model.Candle, n)
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range out {
		p := start + float64(i)
		out[i] = model.Candle{Timestamp: t0.Add(time.Duration(i) * time.Hour), Open: p, High: p + 1, Low: p - 1, Close: p + 0.5, Volume: 1000}
	}
	return out
}

func TestScanner_PrunesTimeframesWithoutFetching(t *testing.T) {
	fetcher := &fakeFetcher{}
	s := NewScanner(fetcher, nil, &fakeEvaluator{}, ScannerConfig{Concurrency: 2}, nil)
	parsed := model.ParsedStrategy{Direction: model.DirectionBoth, Timeframes: []string{"1h", "4h"}}

	results, err := s.Scan(context.Background(), parsed, model.DefaultMarkets, model.DefaultTimeframes)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(results) != 64 {
		t.Fatalf("results=%d want 64", len(results))
	}
	if got := fetcher.callCount(); got != 32 {
		t.Fatalf("fetch calls=%d want 32", got)
	}
	sum := Summarize(results)
	if sum.Total != 32 {
		t.Fatalf("total=%d want 32", sum.Total)
	}
	if sum.Outcomes[model.OutcomeSkippedTimeframe] != 32 || sum.Outcomes[model.OutcomeNoMatch] != 32 {
		t.Fatalf("outcomes=%v", sum.Outcomes)
	}
	// 品种优先顺序
	if results[0].Symbol != "BTC/USDT" || results[0].Timeframe != "15m" || results[1].Timeframe != "1h" || results[4].Symbol != "ETH/USDT" {
		t.Fatalf("order broken: %+v %+v %+v", results[0], results[1], results[4])
	}
}

func TestScanner_SyntheticFallback(t *testing.T) {
	fetcher := &fakeFetcher{fail: map[string]error{"AAPL": errors.New("boom")}}
	eval := &fakeEvaluator{matchSymbols: map[string]bool{"AAPL": true}}
	s := NewScanner(fetcher, collector.NewSynthetic(1), eval, ScannerConfig{Concurrency: 1}, nil)

	results, err := s.Scan(context.Background(), model.ParsedStrategy{}, []string{"AAPL"}, []string{"1h"})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	r := results[0]
	if r.Outcome != model.OutcomeMatched || !r.Synthetic || r.Setup == nil || !r.Setup.Synthetic {
		t.Fatalf("result=%+v", r)
	}
}

func TestScanner_StrictReportsFetchError(t *testing.T) {
	fetcher := &fakeFetcher{fail: map[string]error{"AAPL": errors.New("boom")}}
	s := NewScanner(fetcher, collector.NewSynthetic(1), &fakeEvaluator{}, ScannerConfig{Strict: true}, nil)

	results, err := s.Scan(context.Background(), model.ParsedStrategy{}, []string{"AAPL", "MSFT"}, []string{"1h"})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if results[0].Outcome != model.OutcomeFetchError || results[0].Err == nil {
		t.Fatalf("AAPL=%+v", results[0])
	}
	if results[1].Outcome != model.OutcomeNoMatch {
		t.Fatalf("MSFT=%+v", results[1])
	}
}

func TestScanner_MatcherErrorDoesNotAbort(t *testing.T) {
	eval := &fakeEvaluator{
		failSymbols:  map[string]bool{"BTC/USDT": true},
		matchSymbols: map[string]bool{"ETH/USDT": true},
	}
	s := NewScanner(&fakeFetcher{}, nil, eval, ScannerConfig{Concurrency: 3}, nil)

	results, err := s.Scan(context.Background(), model.ParsedStrategy{}, []string{"BTC/USDT", "ETH/USDT"}, []string{"1h", "4h"})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	sum := Summarize(results)
	if sum.Outcomes[model.OutcomeMatcherError] != 2 || sum.Outcomes[model.OutcomeMatched] != 2 {
		t.Fatalf("outcomes=%v", sum.Outcomes)
	}
	if len(sum.Setups) != 2 || sum.Setups[0].Symbol != "ETH/USDT" || sum.Setups[0].Timeframe != "1h" {
		t.Fatalf("setups=%+v", sum.Setups)
	}
}

func TestScanner_ConcurrencyLimit(t *testing.T) {
	eval := &fakeEvaluator{hold: 5 * time.Millisecond}
	s := NewScanner(&fakeFetcher{}, nil, eval, ScannerConfig{Concurrency: 2}, nil)

	if _, err := s.Scan(context.Background(), model.ParsedStrategy{}, model.DefaultMarkets[:6], []string{"1h", "4h"}); err != nil {
		t.Fatalf("err=%v", err)
	}
	if got := eval.maxInflight.Load(); got > 2 {
		t.Fatalf("max inflight=%d want <= 2", got)
	}
}

func TestScanner_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fetcher := &fakeFetcher{}
	s := NewScanner(fetcher, collector.NewSynthetic(1), &fakeEvaluator{}, ScannerConfig{}, nil)

	results, err := s.Scan(ctx, model.ParsedStrategy{Timeframes: []string{"1h"}}, []string{"AAPL"}, []string{"15m", "1h"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v want context.Canceled", err)
	}
	if fetcher.callCount() != 0 {
		t.Fatalf("fetch should not run after cancel")
	}
	if len(results) != 1 || results[0].Outcome != model.OutcomeSkippedTimeframe {
		t.Fatalf("results=%+v", results)
	}
}

func TestSummarize_EmptyHasAllOutcomes(t *testing.T) {
	sum := Summarize(nil)
	if sum.Total != 0 || len(sum.Outcomes) != 5 || sum.Setups == nil {
		t.Fatalf("sum=%+v", sum)
	}
}
