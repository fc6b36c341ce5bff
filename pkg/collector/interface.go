package collector

import (
	"context"
	"errors"
	"strings"
	"time"

	"StrategyRadar/pkg/model"
)

// CandleFetcher K线数据获取接口，返回按时间升序排列的最近limit根K线
type CandleFetcher interface {
	FetchCandles(ctx context.Context, symbol, timeframe string, limit int) ([]model.Candle, error)
}

var (
	ErrUnsupportedTimeframe = errors.New("不支持的周期")
	ErrNoData               = errors.New("行情数据为空")
)

// IsCrypto 是否为加密货币交易对
func IsCrypto(symbol string) bool {
	s := strings.ToUpper(strings.ReplaceAll(symbol, "/", ""))
	for _, quote := range []string{"USDT", "USDC", "BUSD", "FDUSD"} {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return true
		}
	}
	return false
}

// TimeframeDuration 周期对应的时长
func TimeframeDuration(timeframe string) (time.Duration, bool) {
	switch model.NormalizeTimeframe(timeframe) {
	case "1m":
		return time.Minute, true
	case "5m":
		return 5 * time.Minute, true
	case "15m":
		return 15 * time.Minute, true
	case "30m":
		return 30 * time.Minute, true
	case "1h":
		return time.Hour, true
	case "4h":
		return 4 * time.Hour, true
	case "D1":
		return 24 * time.Hour, true
	case "W1":
		return 7 * 24 * time.Hour, true
	}
	return 0, false
}

// Router 按品种类型路由到对应的数据源
type Router struct {
	Crypto CandleFetcher
	Other  CandleFetcher
}

func (r *Router) FetchCandles(ctx context.Context, symbol, timeframe string, limit int) ([]model.Candle, error) {
	if IsCrypto(symbol) {
		return r.Crypto.FetchCandles(ctx, symbol, timeframe, limit)
	}
	return r.Other.FetchCandles(ctx, symbol, timeframe, limit)
}
