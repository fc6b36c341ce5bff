package engine

import (
	"math"
	"testing"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestSMA(t *testing.T) {
	got := SMA([]float64{1, 2, 3, 4, 5}, 3)
	if !math.IsNaN(got[1]) || !approx(got[2], 2) || !approx(got[4], 4) {
		t.Fatalf("sma=%v", got)
	}
	if out := SMA([]float64{1}, 3); !math.IsNaN(out[0]) {
		t.Fatalf("short input should be NaN")
	}
}

func TestEMA_SeededBySMA(t *testing.T) {
	got := EMA([]float64{1, 2, 3, 4}, 3)
	// 种子=2，k=0.5
	if !approx(got[2], 2) || !approx(got[3], 3) {
		t.Fatalf("ema=%v", got)
	}
}

func TestRSI_Extremes(t *testing.T) {
	up := make([]float64, 30)
	flat := make([]float64, 30)
	for i := range up {
		up[i] = float64(i)
		flat[i] = 5
	}
	if r := last(RSI(up, 14)); r != 100 {
		t.Fatalf("rsi(up)=%v want 100", r)
	}
	if r := last(RSI(flat, 14)); r != 50 {
		t.Fatalf("rsi(flat)=%v want 50", r)
	}
}

func TestATR_ConstantRange(t *testing.T) {
	candles := series([]float64{100, 100, 100, 100, 100, 100}, 1000)
	got := last(ATR(candles, 3))
	if !approx(got, 1) {
		t.Fatalf("atr=%v want 1", got)
	}
}

func TestVolumeRatioAndPriorRange(t *testing.T) {
	candles := series([]float64{10, 11, 12, 13}, 3000)
	if r := VolumeRatio(candles, 3); !approx(r, 3) {
		t.Fatalf("ratio=%v want 3", r)
	}
	high, low := PriorRange(candles, 3)
	if !approx(high, 12.5) || !approx(low, 9.5) {
		t.Fatalf("range=%v %v", high, low)
	}
}

func TestMACD_Uptrend(t *testing.T) {
	vals := make([]float64, 60)
	for i := range vals {
		vals[i] = 100 + float64(i)
	}
	m, s := MACD(vals, 12, 26, 9)
	if math.IsNaN(last(m)) || math.IsNaN(last(s)) || last(m) <= 0 {
		t.Fatalf("macd=%v sig=%v", last(m), last(s))
	}
}
