package model

import (
	"strings"
	"time"
)

// DefaultMarkets 未指定市场时扫描的热门品种
var DefaultMarkets = []string{
	"BTC/USDT", "ETH/USDT", "XRP/USDT", "SOL/USDT",
	"EUR/USD", "GBP/USD", "USD/JPY", "AUD/USD",
	"AAPL", "MSFT", "GOOGL", "AMZN",
	"GOLD", "SILVER", "OIL", "NATGAS",
}

// DefaultTimeframes 未指定周期时扫描的周期
var DefaultTimeframes = []string{"15m", "1h", "4h", "D1"}

// ScanRequest 扫描请求
type ScanRequest struct {
	StrategyID string   `json:"strategy_id"`
	Markets    []string `json:"markets,omitempty"`
	Timeframes []string `json:"timeframes,omitempty"`
}

// ResolvedMarkets 去重后的市场列表，为空时使用默认列表
func (r ScanRequest) ResolvedMarkets() []string {
	return resolveList(r.Markets, DefaultMarkets, strings.ToUpper)
}

// ResolvedTimeframes 去重后的周期列表，为空时使用默认列表
func (r ScanRequest) ResolvedTimeframes() []string {
	return resolveList(r.Timeframes, DefaultTimeframes, NormalizeTimeframe)
}

func resolveList(items, defaults []string, norm func(string) string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		v := norm(strings.TrimSpace(it))
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	if len(out) == 0 {
		return append([]string(nil), defaults...)
	}
	return out
}

// NormalizeTimeframe 将各种写法统一为标准周期标识，无法识别时原样返回
func NormalizeTimeframe(tf string) string {
	s := strings.TrimSpace(tf)
	switch strings.ToLower(s) {
	case "1m", "1min", "m1":
		return "1m"
	case "5m", "5min", "m5":
		return "5m"
	case "15m", "15min", "m15":
		return "15m"
	case "30m", "30min", "m30":
		return "30m"
	case "1h", "60m", "h1", "1hour":
		return "1h"
	case "4h", "h4", "240m":
		return "4h"
	case "d1", "1d", "d", "daily", "1day":
		return "D1"
	case "w1", "1w", "w", "weekly":
		return "W1"
	}
	return s
}

// IsKnownTimeframe 是否为支持的周期
func IsKnownTimeframe(tf string) bool {
	switch tf {
	case "1m", "5m", "15m", "30m", "1h", "4h", "D1", "W1":
		return true
	}
	return false
}

// PairOutcome 单个(品种, 周期)组合的扫描结果
type PairOutcome string

const (
	OutcomeMatched          PairOutcome = "matched"
	OutcomeNoMatch          PairOutcome = "no_match"
	OutcomeSkippedTimeframe PairOutcome = "skipped_timeframe"
	OutcomeFetchError       PairOutcome = "fetch_error"
	OutcomeMatcherError     PairOutcome = "matcher_error"
)

// PairResult 单个组合的扫描明细
type PairResult struct {
	Symbol    string
	Timeframe string
	Outcome   PairOutcome
	Synthetic bool
	Setup     *Setup
	Err       error
}

// ScanResult 扫描接口返回结果
type ScanResult struct {
	StrategyID          string              `json:"strategy_id"`
	ScanID              string              `json:"scan_id"`
	TotalMarketsScanned int                 `json:"total_markets_scanned"`
	MatchingSetupsCount int                 `json:"matching_setups_count"`
	MatchingSetups      []Setup             `json:"matching_setups"`
	Outcomes            map[PairOutcome]int `json:"outcomes"`
}

// ScanEvent 扫描完成事件，发布到消息队列
type ScanEvent struct {
	StrategyID     string              `json:"strategy_id"`
	UserID         string              `json:"user_id"`
	ScanID         string              `json:"scan_id"`
	TotalScanned   int                 `json:"total_markets_scanned"`
	MatchingCount  int                 `json:"matching_setups_count"`
	Outcomes       map[PairOutcome]int `json:"outcomes"`
	SyntheticPairs int                 `json:"synthetic_pairs"`
	DurationMS     int64               `json:"duration_ms"`
	CompletedAt    time.Time           `json:"completed_at"`
}

// ScanCommand 通过消息队列提交的扫描请求
type ScanCommand struct {
	ScanRequest
	UserID string `json:"user_id"`
}
