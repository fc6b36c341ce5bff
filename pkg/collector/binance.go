package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"StrategyRadar/pkg/model"
)

const binanceMaxLimit = 1000

// BinanceClient 币安现货K线
type BinanceClient struct {
	rest restClient
}

// NewBinanceClient 创建币安客户端
func NewBinanceClient(baseURL string, timeout time.Duration) *BinanceClient {
	return &BinanceClient{rest: newRESTClient(strings.TrimSuffix(baseURL, "/"), timeout)}
}

func binanceInterval(timeframe string) (string, bool) {
	switch tf := model.NormalizeTimeframe(timeframe); tf {
	case "1m", "5m", "15m", "30m", "1h", "4h":
		return tf, true
	case "D1":
		return "1d", true
	case "W1":
		return "1w", true
	}
	return "", false
}

// binanceSymbol BTC/USDT -> BTCUSDT
func binanceSymbol(symbol string) string {
	return strings.ToUpper(strings.NewReplacer("/", "", "-", "", "_", "").Replace(symbol))
}

// FetchCandles 获取K线 /api/v3/klines
func (c *BinanceClient) FetchCandles(ctx context.Context, symbol, timeframe string, limit int) ([]model.Candle, error) {
	interval, ok := binanceInterval(timeframe)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedTimeframe, timeframe)
	}
	if limit <= 0 || limit > binanceMaxLimit {
		limit = binanceMaxLimit
	}

	params := url.Values{}
	params.Set("symbol", binanceSymbol(symbol))
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(limit))

	var rows [][]json.RawMessage
	if err := c.rest.getJSON(ctx, "/api/v3/klines", params, &rows); err != nil {
		return nil, fmt.Errorf("获取%s K线失败: %w", symbol, err)
	}

	candles := make([]model.Candle, 0, len(rows))
	for _, row := range rows {
		candle, err := parseKline(row)
		if err != nil {
			return nil, fmt.Errorf("解析%s K线失败: %w", symbol, err)
		}
		candles = append(candles, candle)
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("%w: %s %s", ErrNoData, symbol, timeframe)
	}
	return candles, nil
}

// parseKline [openTime, open, high, low, close, volume, closeTime, ...]
func parseKline(row []json.RawMessage) (model.Candle, error) {
	if len(row) < 6 {
		return model.Candle{}, fmt.Errorf("字段数量不足: %d", len(row))
	}

	var openTime int64
	if err := json.Unmarshal(row[0], &openTime); err != nil {
		return model.Candle{}, fmt.Errorf("openTime: %w", err)
	}

	vals := make([]float64, 5)
	for i := range vals {
		var s string
		if err := json.Unmarshal(row[i+1], &s); err != nil {
			return model.Candle{}, fmt.Errorf("字段%d: %w", i+1, err)
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return model.Candle{}, fmt.Errorf("字段%d: %w", i+1, err)
		}
		vals[i] = v
	}

	return model.Candle{
		Timestamp: time.UnixMilli(openTime).UTC(),
		Open:      vals[0],
		High:      vals[1],
		Low:       vals[2],
		Close:     vals[3],
		Volume:    vals[4],
	}, nil
}
