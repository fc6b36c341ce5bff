package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"StrategyRadar/pkg/llm"
	"StrategyRadar/pkg/logger"
	"StrategyRadar/pkg/model"
)

const (
	matchTemperature  = 0.2
	defaultWindowSize = 10
	defaultConfidence = 50
)

const matcherSystemPrompt = "You are a disciplined technical analyst. You check whether current market data satisfies " +
	"the entry conditions of a trading strategy and answer with a single JSON object."

// AIMatcher 由大模型判断入场条件
type AIMatcher struct {
	llm    llm.Completer
	window int
	logger *zap.Logger
}

// NewAIMatcher 创建大模型匹配器，window为发送给模型的K线数量
func NewAIMatcher(completer llm.Completer, window int, log *zap.Logger) *AIMatcher {
	if window <= 0 {
		window = defaultWindowSize
	}
	return &AIMatcher{llm: completer, window: window, logger: logger.OrNop(log)}
}

type promptCandle struct {
	Time   string  `json:"t"`
	Open   float64 `json:"o"`
	High   float64 `json:"h"`
	Low    float64 `json:"l"`
	Close  float64 `json:"c"`
	Volume float64 `json:"v"`
}

func (m *AIMatcher) buildPrompt(parsed model.ParsedStrategy, symbol, timeframe string, window []model.Candle) (string, error) {
	strategyJSON, err := json.Marshal(parsed)
	if err != nil {
		return "", fmt.Errorf("序列化策略失败: %w", err)
	}
	rows := make([]promptCandle, len(window))
	for i, c := range window {
		rows[i] = promptCandle{c.Timestamp.UTC().Format("2006-01-02T15:04Z"), c.Open, c.High, c.Low, c.Close, c.Volume}
	}
	candlesJSON, err := json.Marshal(rows)
	if err != nil {
		return "", fmt.Errorf("序列化K线失败: %w", err)
	}

	directionRule := "You may evaluate both LONG and SHORT setups."
	switch parsed.Direction {
	case model.DirectionLong:
		directionRule = "Only evaluate LONG setups; never return a SHORT setup."
	case model.DirectionShort:
		directionRule = "Only evaluate SHORT setups; never return a LONG setup."
	}

	return fmt.Sprintf(`Strategy:
%s

Market: %s
Timeframe: %s
Last %d candles (oldest first, t=open time UTC):
%s
Current price: %s

%s
Decide whether the strategy's entry conditions hold on the latest candle.
Respond with JSON:
{"isMatch": true|false, "direction": "LONG"|"SHORT", "entry": number, "sl": number, "tp": number, "confidence": 0-100, "reasons": ["short reason", ...]}
For LONG: sl < entry < tp. For SHORT: tp < entry < sl. When isMatch is false the other fields may be omitted.`,
		strategyJSON, symbol, timeframe, len(window), candlesJSON,
		strconv.FormatFloat(model.LastClose(window), 'f', -1, 64), directionRule), nil
}

// Evaluate 调用模型失败时返回错误；输出无法解析或不合理时视为不匹配
func (m *AIMatcher) Evaluate(ctx context.Context, parsed model.ParsedStrategy, symbol, timeframe string, candles []model.Candle) (Match, error) {
	if len(candles) == 0 {
		return noMatch, nil
	}
	window := model.Tail(candles, m.window)

	prompt, err := m.buildPrompt(parsed, symbol, timeframe, window)
	if err != nil {
		return noMatch, err
	}
	content, err := m.llm.Complete(ctx, llm.Conversation(matcherSystemPrompt, prompt),
		llm.CompletionOptions{JSONMode: true, Temperature: matchTemperature})
	if err != nil {
		return noMatch, fmt.Errorf("条件匹配调用失败: %w", err)
	}

	match, err := decodeMatch(content, parsed.Direction)
	if err != nil {
		m.logger.Info("匹配结果无效，按不匹配处理",
			zap.String("symbol", symbol), zap.String("timeframe", timeframe), zap.Error(err))
		return noMatch, nil
	}
	return match, nil
}

// decodeMatch 解析并校验模型输出
func decodeMatch(content string, allowed model.Direction) (Match, error) {
	body, ok := llm.ExtractJSONObject(content)
	if !ok {
		return noMatch, fmt.Errorf("未找到JSON对象")
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return noMatch, fmt.Errorf("解析JSON失败: %w", err)
	}

	isMatch, ok := raw["isMatch"].(bool)
	if !ok {
		return noMatch, fmt.Errorf("isMatch不是布尔值: %v", raw["isMatch"])
	}
	if !isMatch {
		return noMatch, nil
	}

	entry, okE := number(raw["entry"])
	sl, okS := number(raw["sl"])
	tp, okT := number(raw["tp"])
	if !okE || !okS || !okT {
		return noMatch, fmt.Errorf("entry/sl/tp不是数值")
	}

	dir := model.Direction(strings.ToUpper(strings.TrimSpace(stringValue(raw["direction"]))))
	if dir != model.DirectionLong && dir != model.DirectionShort {
		dir = model.ParseDirection(string(dir))
	}
	if dir == model.DirectionBoth && allowed != model.DirectionBoth && allowed != "" {
		dir = allowed
	}
	if !allowed.Allows(dir) {
		return noMatch, fmt.Errorf("%w: %s", errDirection, dir)
	}

	entry, sl, tp = roundPrice(entry), roundPrice(sl), roundPrice(tp)
	if err := validateLevels(dir, entry, sl, tp); err != nil {
		return noMatch, fmt.Errorf("%w: entry=%v sl=%v tp=%v", err, entry, sl, tp)
	}

	confidence := defaultConfidence
	if c, ok := number(raw["confidence"]); ok {
		confidence = clampConfidence(c)
	}

	return Match{
		IsMatch:    true,
		Direction:  dir,
		Entry:      entry,
		StopLoss:   sl,
		TakeProfit: tp,
		Confidence: confidence,
		Reasons:    reasons(raw["reasons"]),
	}, nil
}

// number 接受JSON数值或数值字符串
func number(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

func reasons(v any) []string {
	switch x := v.(type) {
	case string:
		return cleanReasons([]string{x})
	case []any:
		out := make([]string, 0, len(x))
		for _, it := range x {
			if s, ok := it.(string); ok {
				out = append(out, s)
			}
		}
		return cleanReasons(out)
	}
	return []string{}
}
