package model

import (
	"time"
)

// Candle 单根K线（OHLCV）
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// LastClose 返回最新一根K线的收盘价，序列为空时返回0
func LastClose(candles []Candle) float64 {
	if len(candles) == 0 {
		return 0
	}
	return candles[len(candles)-1].Close
}

// Tail 返回最近n根K线（按时间升序，最新在最后）
func Tail(candles []Candle, n int) []Candle {
	if n <= 0 || len(candles) <= n {
		return candles
	}
	return candles[len(candles)-n:]
}
