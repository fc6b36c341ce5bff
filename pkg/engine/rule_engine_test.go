package engine

import (
	"context"
	"math"
	"testing"
	"time"

	"StrategyRadar/pkg/model"
)

// series 由收盘价构造K线，最后一根成交量为volLast
func series(closes []float64, volLast float64) []model.Candle {
	out := make([]model.Candle, len(closes))
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		open := c
		if i > 0 {
			open = closes[i-1]
		}
		out[i] = model.Candle{
			Timestamp: t0.Add(time.Duration(i) * time.Hour),
			Open:      open,
			High:      math.Max(open, c) + 0.5,
			Low:       math.Min(open, c) - 0.5,
			Close:     c,
			Volume:    1000,
		}
	}
	out[len(out)-1].Volume = volLast
	return out
}

func flatThenBreakout(n int) []model.Candle {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = 100 + float64(i%2)*0.4
	}
	closes[n-1] = 106
	return series(closes, 3000)
}

func TestRuleEvaluator_BreakoutWithVolume(t *testing.T) {
	parsed := model.ParsedStrategy{
		Direction: model.DirectionLong,
		EntryConditions: []model.EntryCondition{
			{Indicator: "Price", Condition: "Breakout above 20-bar high", Weight: 1},
			{Indicator: "Volume", Condition: "volume at least 2x average", Weight: 0.5},
		},
	}
	e := NewRuleEvaluator(0.6, nil)
	m, err := e.Evaluate(context.Background(), parsed, "AAPL", "1h", flatThenBreakout(60))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if !m.IsMatch || m.Direction != model.DirectionLong {
		t.Fatalf("match=%+v", m)
	}
	if !(m.StopLoss < m.Entry && m.Entry < m.TakeProfit) {
		t.Fatalf("levels=%v %v %v", m.Entry, m.StopLoss, m.TakeProfit)
	}
	if m.Confidence != 100 || len(m.Reasons) != 2 {
		t.Fatalf("confidence=%d reasons=%v", m.Confidence, m.Reasons)
	}
}

func TestRuleEvaluator_ShortOnlyIgnoresLongSignal(t *testing.T) {
	parsed := model.ParsedStrategy{
		Direction:       model.DirectionShort,
		EntryConditions: []model.EntryCondition{{Indicator: "Price", Condition: "Breakdown below support", Weight: 1}},
	}
	m, _ := NewRuleEvaluator(0.6, nil).Evaluate(context.Background(), parsed, "AAPL", "1h", flatThenBreakout(60))
	if m.IsMatch {
		t.Fatalf("unexpected match %+v", m)
	}
}

func TestRuleEvaluator_MirrorsForShortSide(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100 + float64(i%2)*0.4
	}
	closes[59] = 94
	parsed := model.ParsedStrategy{
		Direction:       model.DirectionBoth,
		EntryConditions: []model.EntryCondition{{Indicator: "Price", Condition: "Breakout above 20-bar high", Weight: 1}},
	}
	m, _ := NewRuleEvaluator(0.6, nil).Evaluate(context.Background(), parsed, "AAPL", "1h", series(closes, 1000))
	if !m.IsMatch || m.Direction != model.DirectionShort {
		t.Fatalf("match=%+v", m)
	}
	if !(m.TakeProfit < m.Entry && m.Entry < m.StopLoss) {
		t.Fatalf("levels=%v %v %v", m.Entry, m.StopLoss, m.TakeProfit)
	}
}

func TestRuleEvaluator_NotEnoughData(t *testing.T) {
	parsed := model.ParsedStrategy{EntryConditions: []model.EntryCondition{{Condition: "RSI below 30"}}}
	m, err := NewRuleEvaluator(0.6, nil).Evaluate(context.Background(), parsed, "AAPL", "1h", risingCandles(10, 100))
	if err != nil || m.IsMatch {
		t.Fatalf("match=%+v err=%v", m, err)
	}
}

func TestRuleEvaluator_UninterpretableConditions(t *testing.T) {
	parsed := model.ParsedStrategy{EntryConditions: []model.EntryCondition{{Condition: "when the moon is full"}}}
	m, _ := NewRuleEvaluator(0.6, nil).Evaluate(context.Background(), parsed, "AAPL", "1h", risingCandles(60, 100))
	if m.IsMatch {
		t.Fatalf("unexpected match %+v", m)
	}
}

func TestRuleEvaluator_RSIOverbought(t *testing.T) {
	parsed := model.ParsedStrategy{
		Direction:       model.DirectionLong,
		EntryConditions: []model.EntryCondition{{Indicator: "RSI", Condition: "RSI(14) above 70", Weight: 1}},
	}
	m, _ := NewRuleEvaluator(0.6, nil).Evaluate(context.Background(), parsed, "AAPL", "1h", risingCandles(60, 100))
	if !m.IsMatch {
		t.Fatalf("steady rally should be overbought: %+v", m)
	}
}

func TestEnsembleEvaluator(t *testing.T) {
	long := Match{IsMatch: true, Direction: model.DirectionLong, Entry: 100, StopLoss: 95, TakeProfit: 110, Confidence: 80, Reasons: []string{"a"}}
	short := Match{IsMatch: true, Direction: model.DirectionShort, Entry: 100, StopLoss: 105, TakeProfit: 90, Confidence: 60}

	m, _ := NewEnsembleEvaluator(fixed{long}, fixed{Match{IsMatch: true, Direction: model.DirectionLong, Confidence: 60, Reasons: []string{"b"}}}).
		Evaluate(context.Background(), model.ParsedStrategy{}, "X", "1h", nil)
	if !m.IsMatch || m.Confidence != 70 || len(m.Reasons) != 2 || m.Entry != 100 {
		t.Fatalf("match=%+v", m)
	}

	m, _ = NewEnsembleEvaluator(fixed{long}, fixed{short}).Evaluate(context.Background(), model.ParsedStrategy{}, "X", "1h", nil)
	if m.IsMatch {
		t.Fatalf("direction mismatch must not match")
	}
}

type fixed struct{ m Match }

func (f fixed) Evaluate(context.Context, model.ParsedStrategy, string, string, []model.Candle) (Match, error) {
	return f.m, nil
}

func TestNewEvaluator_Modes(t *testing.T) {
	for mode, ok := range map[string]bool{"ai": true, "": true, "rules": true, "ensemble": true, "magic": false} {
		_, err := NewEvaluator(mode, &stubCompleter{}, 10, 0.6, nil)
		if (err == nil) != ok {
			t.Fatalf("mode %q err=%v", mode, err)
		}
	}
}

func TestLevelsFromATR_SubCentPrices(t *testing.T) {
	for _, side := range []model.Direction{model.DirectionLong, model.DirectionShort} {
		m, err := levelsFromATR(side, snapshot{close: 0.0000123, atr: 0.0000002})
		if err != nil || !m.IsMatch {
			t.Fatalf("side=%s match=%+v err=%v", side, m, err)
		}
		if err := validateLevels(side, m.Entry, m.StopLoss, m.TakeProfit); err != nil {
			t.Fatalf("side=%s levels=%+v err=%v", side, m, err)
		}
		if m.Entry != 0.0000123 {
			t.Fatalf("entry=%v", m.Entry)
		}
	}
}
