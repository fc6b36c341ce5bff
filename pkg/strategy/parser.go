package strategy

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"StrategyRadar/pkg/cache"
	"StrategyRadar/pkg/llm"
	"StrategyRadar/pkg/logger"
	"StrategyRadar/pkg/metrics"
	"StrategyRadar/pkg/model"
)

const (
	parseTemperature = 0.2
	cacheKeyPrefix   = "parsed:"
)

var errSchema = errors.New("解析结果不符合结构要求")

// Parser 策略解析器：策略文本 -> 结构化策略
type Parser struct {
	llm      llm.Completer
	cache    cache.Store
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewParser 创建策略解析器，store为nil时不使用共享缓存
func NewParser(completer llm.Completer, store cache.Store, cacheTTL time.Duration, log *zap.Logger) *Parser {
	return &Parser{
		llm:      completer,
		cache:    store,
		cacheTTL: cacheTTL,
		logger:   logger.OrNop(log),
	}
}

// ContentHash 策略文本的内容哈希，作为解析结果的缓存键
func ContentHash(strategyText string) string {
	sum := sha256.Sum256([]byte(strategyText))
	return hex.EncodeToString(sum[:])
}

// Parse 调用大模型解析策略文本。任何失败都返回安全默认值且ok=false，不返回错误
func (p *Parser) Parse(ctx context.Context, strategyText string) (model.ParsedStrategy, bool) {
	if p.llm == nil {
		return model.DefaultParsedStrategy(), false
	}

	messages := llm.Conversation(parserSystemPrompt, buildParsePrompt(strategyText))
	content, err := p.llm.Complete(ctx, messages, llm.CompletionOptions{JSONMode: true, Temperature: parseTemperature})
	if err != nil {
		p.logger.Warn("策略解析调用失败，使用默认策略", zap.Error(err))
		return model.DefaultParsedStrategy(), false
	}

	parsed, err := decodeParsed(content)
	if err != nil {
		p.logger.Warn("策略解析结果无效，使用默认策略", zap.Error(err))
		return model.DefaultParsedStrategy(), false
	}
	return parsed, true
}

// Resolve 返回策略当前文本对应的解析结果。changed表示strategy上的缓存字段已被更新，需要持久化
func (p *Parser) Resolve(ctx context.Context, s *model.Strategy) (parsed model.ParsedStrategy, changed bool) {
	hash := ContentHash(s.StrategyText)
	if s.AIParsed != nil && s.AIParsedHash == hash {
		metrics.ParseCacheTotal.WithLabelValues("strategy").Inc()
		return *s.AIParsed, false
	}

	key := cacheKeyPrefix + hash
	if p.cache != nil {
		var cached model.ParsedStrategy
		found, err := cache.GetJSON(ctx, p.cache, key, &cached)
		if err != nil {
			p.logger.Warn("读取解析缓存失败", zap.String("strategy_id", s.ID), zap.Error(err))
		}
		if found {
			metrics.ParseCacheTotal.WithLabelValues("shared").Inc()
			s.AIParsed, s.AIParsedHash = &cached, hash
			return cached, true
		}
	}

	metrics.ParseCacheTotal.WithLabelValues("model").Inc()
	parsed, ok := p.Parse(ctx, s.StrategyText)
	s.AIParsed = &parsed
	if !ok {
		// 默认值不写哈希，下次扫描重新解析
		s.AIParsedHash = ""
		return parsed, true
	}

	s.AIParsedHash = hash
	if p.cache != nil {
		if err := cache.SetJSON(ctx, p.cache, key, parsed, p.cacheTTL); err != nil {
			p.logger.Warn("写入解析缓存失败", zap.String("strategy_id", s.ID), zap.Error(err))
		}
	}
	return parsed, true
}

type rawEntryCondition struct {
	Type      string   `json:"type"`
	Indicator string   `json:"indicator"`
	Condition string   `json:"condition"`
	Weight    *float64 `json:"weight"`
}

type rawParsedStrategy struct {
	Name            string                `json:"name"`
	Direction       string                `json:"direction"`
	Timeframes      []string              `json:"timeframes"`
	EntryConditions []rawEntryCondition   `json:"entryConditions"`
	ExitConditions  []model.ExitCondition `json:"exitConditions"`
	Description     string                `json:"description"`
}

// decodeParsed 校验并规范化模型输出
func decodeParsed(content string) (model.ParsedStrategy, error) {
	body, ok := llm.ExtractJSONObject(content)
	if !ok {
		return model.ParsedStrategy{}, fmt.Errorf("%w: 未找到JSON对象", errSchema)
	}

	var raw rawParsedStrategy
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return model.ParsedStrategy{}, fmt.Errorf("解析JSON失败: %w", err)
	}

	out := model.ParsedStrategy{
		Name:            strings.TrimSpace(raw.Name),
		Direction:       model.ParseDirection(raw.Direction),
		Timeframes:      normalizeTimeframes(raw.Timeframes),
		EntryConditions: make([]model.EntryCondition, 0, len(raw.EntryConditions)),
		ExitConditions:  make([]model.ExitCondition, 0, len(raw.ExitConditions)),
		Description:     strings.TrimSpace(raw.Description),
	}

	for _, c := range raw.EntryConditions {
		ec := model.EntryCondition{
			Type:      strings.TrimSpace(c.Type),
			Indicator: strings.TrimSpace(c.Indicator),
			Condition: strings.TrimSpace(c.Condition),
			Weight:    1,
		}
		if ec.Indicator == "" && ec.Condition == "" {
			continue
		}
		if c.Weight != nil && !math.IsNaN(*c.Weight) {
			ec.Weight = math.Max(0, math.Min(1, *c.Weight))
		}
		out.EntryConditions = append(out.EntryConditions, ec)
	}

	for _, c := range raw.ExitConditions {
		typ := normalizeExitType(c.Type)
		if typ == "" {
			continue
		}
		out.ExitConditions = append(out.ExitConditions, model.ExitCondition{Type: typ, Value: strings.TrimSpace(c.Value)})
	}

	if out.Name == "" && len(out.EntryConditions) == 0 {
		return model.ParsedStrategy{}, fmt.Errorf("%w: 缺少名称和入场条件", errSchema)
	}
	if out.Name == "" {
		out.Name = "Custom strategy"
	}
	return out, nil
}

func normalizeTimeframes(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, tf := range in {
		n := model.NormalizeTimeframe(tf)
		if !model.IsKnownTimeframe(n) || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

func normalizeExitType(t string) string {
	switch strings.ToLower(strings.NewReplacer("_", "", "-", "", " ", "").Replace(t)) {
	case "takeprofit", "tp", "target":
		return model.ExitTakeProfit
	case "stoploss", "sl", "stop":
		return model.ExitStopLoss
	}
	return ""
}
