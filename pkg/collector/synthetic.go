package collector

import (
	"context"
	"math"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"StrategyRadar/pkg/model"
)

var nominalPrices = map[string]float64{
	"BTC": 60000, "ETH": 3000, "XRP": 0.55, "SOL": 150, "BNB": 550, "DOGE": 0.15,
	"EUR/USD": 1.08, "GBP/USD": 1.27, "USD/JPY": 150, "AUD/USD": 0.66,
	"AAPL": 190, "MSFT": 410, "GOOGL": 170, "AMZN": 180,
	"GOLD": 2300, "SILVER": 27, "OIL": 80, "NATGAS": 2.5,
}

// Synthetic 随机游走模拟K线，仅在行情源不可用时作为降级数据
type Synthetic struct {
	mu  sync.Mutex
	rnd *rand.Rand
	now func() time.Time
}

// NewSynthetic 创建模拟行情生成器，seed相同则序列相同
func NewSynthetic(seed uint64) *Synthetic {
	return &Synthetic{
		rnd: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		now: time.Now,
	}
}

func basePrice(symbol string) float64 {
	s := strings.ToUpper(symbol)
	if p, ok := nominalPrices[s]; ok {
		return p
	}
	if IsCrypto(s) {
		base := strings.Split(s, "/")[0]
		if p, ok := nominalPrices[base]; ok {
			return p
		}
	}
	return 100
}

// FetchCandles 生成limit根以当前时间结尾的K线
func (s *Synthetic) FetchCandles(_ context.Context, symbol, timeframe string, limit int) ([]model.Candle, error) {
	step, ok := TimeframeDuration(timeframe)
	if !ok {
		step = time.Hour
	}
	if limit <= 0 {
		limit = 100
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// 基准价在名义价格上下10%随机浮动
	price := basePrice(symbol) * (0.9 + 0.2*s.rnd.Float64())
	vol := 0.004 * math.Sqrt(step.Hours())
	end := s.now().UTC().Truncate(step)
	start := end.Add(-time.Duration(limit-1) * step)

	candles := make([]model.Candle, limit)
	for i := range candles {
		open := price
		closePrice := open * (1 + vol*s.rnd.NormFloat64())
		if closePrice <= 0 {
			closePrice = open
		}
		wick := math.Abs(vol * s.rnd.NormFloat64() * open / 2)
		candles[i] = model.Candle{
			Timestamp: start.Add(time.Duration(i) * step),
			Open:      open,
			High:      math.Max(open, closePrice) + wick,
			Low:       math.Max(math.Min(open, closePrice)-wick, math.Min(open, closePrice)*0.5),
			Close:     closePrice,
			Volume:    1000 + 9000*s.rnd.Float64(),
		}
		price = closePrice
	}
	return candles, nil
}
