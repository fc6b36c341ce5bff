package collector

import (
	"time"

	"StrategyRadar/pkg/model"
)

// Resample 将升序K线按UTC对齐的窗口合并，用于由1h生成4h
func Resample(candles []model.Candle, window time.Duration) []model.Candle {
	if len(candles) == 0 || window <= 0 {
		return candles
	}

	out := make([]model.Candle, 0, len(candles)/2+1)
	var cur model.Candle
	var curStart time.Time
	for i, c := range candles {
		start := c.Timestamp.Truncate(window)
		if i == 0 || !start.Equal(curStart) {
			if i > 0 {
				out = append(out, cur)
			}
			curStart = start
			cur = model.Candle{Timestamp: start, Open: c.Open, High: c.High, Low: c.Low, Close: c.Close, Volume: c.Volume}
			continue
		}
		if c.High > cur.High {
			cur.High = c.High
		}
		if c.Low < cur.Low {
			cur.Low = c.Low
		}
		cur.Close = c.Close
		cur.Volume += c.Volume
	}
	return append(out, cur)
}
