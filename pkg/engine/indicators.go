package engine

import (
	"math"

	"StrategyRadar/pkg/model"
)

func closes(candles []model.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// SMA 简单移动平均，数据不足返回NaN
func SMA(values []float64, period int) []float64 {
	out := nanSeries(len(values))
	if period <= 0 || len(values) < period {
		return out
	}
	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// EMA 指数移动平均，以前period个值的SMA作为种子
func EMA(values []float64, period int) []float64 {
	out := nanSeries(len(values))
	if period <= 0 || len(values) < period {
		return out
	}
	k := 2.0 / float64(period+1)
	seed := 0.0
	for _, v := range values[:period] {
		seed += v
	}
	out[period-1] = seed / float64(period)
	for i := period; i < len(values); i++ {
		out[i] = values[i]*k + out[i-1]*(1-k)
	}
	return out
}

// RSI Wilder平滑RSI
func RSI(values []float64, period int) []float64 {
	out := nanSeries(len(values))
	if period <= 0 || len(values) <= period {
		return out
	}
	var gain, loss float64
	for i := 1; i <= period; i++ {
		d := values[i] - values[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgGain, avgLoss := gain/float64(period), loss/float64(period)
	out[period] = rsiValue(avgGain, avgLoss)
	for i := period + 1; i < len(values); i++ {
		d := values[i] - values[i-1]
		g, l := math.Max(d, 0), math.Max(-d, 0)
		avgGain = (avgGain*float64(period-1) + g) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + l) / float64(period)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// ATR Wilder平均真实波幅
func ATR(candles []model.Candle, period int) []float64 {
	out := nanSeries(len(candles))
	if period <= 0 || len(candles) <= period {
		return out
	}
	tr := make([]float64, len(candles))
	for i := 1; i < len(candles); i++ {
		c, prev := candles[i], candles[i-1].Close
		tr[i] = math.Max(c.High-c.Low, math.Max(math.Abs(c.High-prev), math.Abs(c.Low-prev)))
	}
	sum := 0.0
	for i := 1; i <= period; i++ {
		sum += tr[i]
	}
	out[period] = sum / float64(period)
	for i := period + 1; i < len(candles); i++ {
		out[i] = (out[i-1]*float64(period-1) + tr[i]) / float64(period)
	}
	return out
}

// MACD 返回MACD线和信号线
func MACD(values []float64, fast, slow, signal int) (macd, sig []float64) {
	f, s := EMA(values, fast), EMA(values, slow)
	macd = nanSeries(len(values))
	start := -1
	for i := range values {
		if !math.IsNaN(f[i]) && !math.IsNaN(s[i]) {
			macd[i] = f[i] - s[i]
			if start < 0 {
				start = i
			}
		}
	}
	sig = nanSeries(len(values))
	if start < 0 {
		return macd, sig
	}
	tail := EMA(macd[start:], signal)
	copy(sig[start:], tail)
	return macd, sig
}

// VolumeRatio 最新成交量与之前lookback根均量之比
func VolumeRatio(candles []model.Candle, lookback int) float64 {
	n := len(candles)
	if n < 2 {
		return math.NaN()
	}
	if lookback <= 0 || lookback > n-1 {
		lookback = n - 1
	}
	sum := 0.0
	for _, c := range candles[n-1-lookback : n-1] {
		sum += c.Volume
	}
	avg := sum / float64(lookback)
	if avg <= 0 {
		return math.NaN()
	}
	return candles[n-1].Volume / avg
}

// PriorRange 最新K线之前lookback根的最高价与最低价
func PriorRange(candles []model.Candle, lookback int) (high, low float64) {
	n := len(candles)
	if n < 2 {
		return math.NaN(), math.NaN()
	}
	if lookback <= 0 || lookback > n-1 {
		lookback = n - 1
	}
	high, low = math.Inf(-1), math.Inf(1)
	for _, c := range candles[n-1-lookback : n-1] {
		high = math.Max(high, c.High)
		low = math.Min(low, c.Low)
	}
	return high, low
}

func last(series []float64) float64 {
	if len(series) == 0 {
		return math.NaN()
	}
	return series[len(series)-1]
}

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
