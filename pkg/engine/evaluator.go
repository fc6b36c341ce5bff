package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"StrategyRadar/pkg/llm"
	"StrategyRadar/pkg/model"
)

// ConditionEvaluator 判断当前行情是否满足策略入场条件
type ConditionEvaluator interface {
	Evaluate(ctx context.Context, parsed model.ParsedStrategy, symbol, timeframe string, candles []model.Candle) (Match, error)
}

// Match 评估结果，IsMatch为false时其余字段无意义
type Match struct {
	IsMatch    bool
	Direction  model.Direction
	Entry      float64
	StopLoss   float64
	TakeProfit float64
	Confidence int
	Reasons    []string
}

var noMatch = Match{}

var (
	errNonPositiveLevel = errors.New("价格必须为正数")
	errLevelOrder       = errors.New("止损/止盈与方向不一致")
	errDirection        = errors.New("方向无效或不被策略允许")
)

// Setup 将评估结果转换为扫描结果
func (m Match) Setup(symbol, timeframe string) model.Setup {
	return model.Setup{
		Symbol:     symbol,
		Timeframe:  timeframe,
		Direction:  m.Direction,
		Entry:      m.Entry,
		StopLoss:   m.StopLoss,
		TakeProfit: m.TakeProfit,
		Confidence: m.Confidence,
		Reasons:    m.Reasons,
	}
}

// NewEvaluator 按模式创建评估器：ai | rules | ensemble
func NewEvaluator(mode string, completer llm.Completer, windowSize int, minScore float64, log *zap.Logger) (ConditionEvaluator, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "ai":
		return NewAIMatcher(completer, windowSize, log), nil
	case "rules", "rule":
		return NewRuleEvaluator(minScore, log), nil
	case "ensemble":
		return NewEnsembleEvaluator(NewAIMatcher(completer, windowSize, log), NewRuleEvaluator(minScore, log)), nil
	default:
		return nil, fmt.Errorf("不支持的匹配模式: %s", mode)
	}
}

// validateLevels 检查价位有效性：LONG要求 sl < entry < tp，SHORT要求 tp < entry < sl
func validateLevels(dir model.Direction, entry, sl, tp float64) error {
	for _, v := range []float64{entry, sl, tp} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return errNonPositiveLevel
		}
	}
	switch dir {
	case model.DirectionLong:
		if !(sl < entry && entry < tp) {
			return errLevelOrder
		}
	case model.DirectionShort:
		if !(tp < entry && entry < sl) {
			return errLevelOrder
		}
	default:
		return errDirection
	}
	return nil
}

// roundPrice 按价格量级保留小数位；价格低于1时保留6位有效数字
func roundPrice(v float64) float64 {
	abs := math.Abs(v)
	var places int32
	switch {
	case abs == 0 || math.IsNaN(abs) || math.IsInf(abs, 0):
		return v
	case abs >= 1000:
		places = 2
	case abs >= 10:
		places = 3
	case abs >= 1:
		places = 4
	default:
		places = int32(5 - math.Floor(math.Log10(abs)))
	}
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

func clampConfidence(v float64) int {
	if math.IsNaN(v) {
		return 0
	}
	return int(math.Round(math.Max(0, math.Min(100, v))))
}

func cleanReasons(in []string) []string {
	out := make([]string, 0, len(in))
	for _, r := range in {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}
