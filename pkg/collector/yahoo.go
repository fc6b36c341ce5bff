package collector

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"StrategyRadar/pkg/model"
)

// YahooClient Yahoo Finance v8 chart接口，覆盖外汇、美股和商品期货
type YahooClient struct {
	rest restClient
}

// NewYahooClient 创建Yahoo客户端
func NewYahooClient(baseURL string, timeout time.Duration) *YahooClient {
	return &YahooClient{rest: newRESTClient(strings.TrimSuffix(baseURL, "/"), timeout)}
}

var yahooAliases = map[string]string{
	"GOLD":   "GC=F",
	"XAUUSD": "GC=F",
	"SILVER": "SI=F",
	"XAGUSD": "SI=F",
	"OIL":    "CL=F",
	"WTI":    "CL=F",
	"BRENT":  "BZ=F",
	"NATGAS": "NG=F",
}

// yahooSymbol EUR/USD -> EURUSD=X, GOLD -> GC=F, AAPL -> AAPL
func yahooSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if alias, ok := yahooAliases[s]; ok {
		return alias
	}
	if base, quote, ok := strings.Cut(s, "/"); ok && len(base) == 3 && len(quote) == 3 {
		return base + quote + "=X"
	}
	return s
}

type yahooQuery struct {
	interval string
	rng      string
	group    int // 多根合并为一根，用于4h
}

func yahooParams(timeframe string) (yahooQuery, bool) {
	switch model.NormalizeTimeframe(timeframe) {
	case "1m":
		return yahooQuery{"1m", "5d", 1}, true
	case "5m":
		return yahooQuery{"5m", "1mo", 1}, true
	case "15m":
		return yahooQuery{"15m", "1mo", 1}, true
	case "30m":
		return yahooQuery{"30m", "1mo", 1}, true
	case "1h":
		return yahooQuery{"60m", "3mo", 1}, true
	case "4h":
		return yahooQuery{"60m", "1y", 4}, true
	case "D1":
		return yahooQuery{"1d", "1y", 1}, true
	case "W1":
		return yahooQuery{"1wk", "5y", 1}, true
	}
	return yahooQuery{}, false
}

// YahooChartResponse v8 chart响应
type YahooChartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol             string  `json:"symbol"`
				Currency           string  `json:"currency"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
				DataGranularity    string  `json:"dataGranularity"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					High   []*float64 `json:"high"` // 停牌等情况为null
					Low    []*float64 `json:"low"`
					Open   []*float64 `json:"open"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// FetchCandles 获取K线
func (c *YahooClient) FetchCandles(ctx context.Context, symbol, timeframe string, limit int) ([]model.Candle, error) {
	q, ok := yahooParams(timeframe)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedTimeframe, timeframe)
	}

	params := url.Values{}
	params.Set("interval", q.interval)
	params.Set("range", q.rng)
	params.Set("includePrePost", "false")

	ticker := yahooSymbol(symbol)
	var resp YahooChartResponse
	if err := c.rest.getJSON(ctx, "/v8/finance/chart/"+url.PathEscape(ticker), params, &resp); err != nil {
		return nil, fmt.Errorf("获取%s K线失败: %w", symbol, err)
	}

	candles, err := parseChart(ticker, &resp)
	if err != nil {
		return nil, err
	}
	if q.group > 1 {
		candles = Resample(candles, time.Duration(q.group)*time.Hour)
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("%w: %s %s", ErrNoData, symbol, timeframe)
	}
	return model.Tail(candles, limit), nil
}

func parseChart(ticker string, resp *YahooChartResponse) ([]model.Candle, error) {
	if resp.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo接口错误: %s - %s", resp.Chart.Error.Code, resp.Chart.Error.Description)
	}
	if len(resp.Chart.Result) == 0 || len(resp.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoData, ticker)
	}

	result := resp.Chart.Result[0]
	quote := result.Indicators.Quote[0]
	candles := make([]model.Candle, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		o, okO := at(quote.Open, i)
		h, okH := at(quote.High, i)
		l, okL := at(quote.Low, i)
		cl, okC := at(quote.Close, i)
		if !okO || !okH || !okL || !okC {
			continue
		}
		v, _ := at(quote.Volume, i)
		candles = append(candles, model.Candle{
			Timestamp: time.Unix(ts, 0).UTC(),
			Open:      o,
			High:      h,
			Low:       l,
			Close:     cl,
			Volume:    v,
		})
	}
	return candles, nil
}

func at(vals []*float64, i int) (float64, bool) {
	if i >= len(vals) || vals[i] == nil {
		return 0, false
	}
	return *vals[i], true
}
