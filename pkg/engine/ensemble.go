package engine

import (
	"context"
	"fmt"

	"StrategyRadar/pkg/model"
)

// EnsembleEvaluator 主评估器给出信号，确认评估器同方向匹配时才成立
type EnsembleEvaluator struct {
	primary ConditionEvaluator
	confirm ConditionEvaluator
}

func NewEnsembleEvaluator(primary, confirm ConditionEvaluator) *EnsembleEvaluator {
	return &EnsembleEvaluator{primary: primary, confirm: confirm}
}

// Evaluate 价位取主评估器，置信度取两者平均，理由合并
func (e *EnsembleEvaluator) Evaluate(ctx context.Context, parsed model.ParsedStrategy, symbol, timeframe string, candles []model.Candle) (Match, error) {
	first, err := e.primary.Evaluate(ctx, parsed, symbol, timeframe, candles)
	if err != nil || !first.IsMatch {
		return noMatch, err
	}

	second, err := e.confirm.Evaluate(ctx, parsed, symbol, timeframe, candles)
	if err != nil {
		return noMatch, fmt.Errorf("确认评估失败: %w", err)
	}
	if !second.IsMatch || second.Direction != first.Direction {
		return noMatch, nil
	}

	out := first
	out.Confidence = clampConfidence(float64(first.Confidence+second.Confidence) / 2)
	out.Reasons = append(append([]string{}, first.Reasons...), second.Reasons...)
	return out, nil
}
