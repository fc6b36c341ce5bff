package engine

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"StrategyRadar/pkg/logger"
	"StrategyRadar/pkg/model"
)

const (
	defaultMinScore = 0.6
	minRuleCandles  = 20
	crossLookback   = 3
	stopATRMultiple = 1.5
	rewardRatio     = 2.0
)

var (
	numberPattern = regexp.MustCompile(`\d+(?:\.\d+)?`)
	maPattern     = regexp.MustCompile(`\b(?:ema|sma|ma)\d*\b|moving average`)
)

// RuleEvaluator 基于技术指标的确定性条件评估器
type RuleEvaluator struct {
	minScore float64
	logger   *zap.Logger
}

// NewRuleEvaluator 创建规则评估器，加权满足率达到minScore即匹配
func NewRuleEvaluator(minScore float64, log *zap.Logger) *RuleEvaluator {
	if minScore <= 0 || minScore > 1 {
		minScore = defaultMinScore
	}
	return &RuleEvaluator{minScore: minScore, logger: logger.OrNop(log)}
}

// bias 条件比较方向
type bias int

const (
	biasNone bias = iota
	biasUp
	biasDown
)

func (b bias) flip() bias {
	switch b {
	case biasUp:
		return biasDown
	case biasDown:
		return biasUp
	}
	return b
}

var (
	upWords   = []string{"above", "over ", "greater", ">", "exceed", "cross up", "crosses up", "bullish", "overbought", "higher"}
	downWords = []string{"below", "under", "less", "<", "cross down", "crosses down", "bearish", "oversold", "lower"}
)

// detectBias 取最先出现的方向关键词
func detectBias(text string) bias {
	first, b := len(text)+1, biasNone
	for _, w := range upWords {
		if i := strings.Index(text, w); i >= 0 && i < first {
			first, b = i, biasUp
		}
	}
	for _, w := range downWords {
		if i := strings.Index(text, w); i >= 0 && i < first {
			first, b = i, biasDown
		}
	}
	return b
}

func numbersIn(text string) []float64 {
	var out []float64
	for _, m := range numberPattern.FindAllString(text, -1) {
		if v, err := strconv.ParseFloat(m, 64); err == nil {
			out = append(out, v)
		}
	}
	return out
}

// snapshot 一次评估共享的指标
type snapshot struct {
	candles []model.Candle
	closes  []float64
	close   float64
	atr     float64
}

func newSnapshot(candles []model.Candle) snapshot {
	cl := closes(candles)
	return snapshot{candles: candles, closes: cl, close: last(cl), atr: last(ATR(candles, 14))}
}

// checkResult 单个条件的评估结果；ok=false表示无法解读
type checkResult struct {
	ok        bool
	satisfied bool
	reason    string
}

// Evaluate 对允许的每个方向计算加权得分，取最高者
func (e *RuleEvaluator) Evaluate(_ context.Context, parsed model.ParsedStrategy, symbol, timeframe string, candles []model.Candle) (Match, error) {
	if len(candles) < minRuleCandles || len(parsed.EntryConditions) == 0 {
		return noMatch, nil
	}
	snap := newSnapshot(candles)
	if snap.close <= 0 {
		return noMatch, nil
	}

	var (
		bestSide    model.Direction
		bestScore   = -1.0
		bestReasons []string
	)
	for _, side := range []model.Direction{model.DirectionLong, model.DirectionShort} {
		if !parsed.Direction.Allows(side) {
			continue
		}
		mirror := side == model.DirectionShort && parsed.Direction != model.DirectionShort
		score, reasons, ok := e.scoreSide(parsed.EntryConditions, side, mirror, snap)
		if ok && score > bestScore {
			bestSide, bestScore, bestReasons = side, score, reasons
		}
	}
	if bestScore < e.minScore {
		return noMatch, nil
	}

	match, err := levelsFromATR(bestSide, snap)
	if err != nil {
		e.logger.Debug("规则匹配价位无效", zap.String("symbol", symbol), zap.String("timeframe", timeframe), zap.Error(err))
		return noMatch, nil
	}
	match.Confidence = clampConfidence(bestScore * 100)
	match.Reasons = bestReasons
	return match, nil
}

// scoreSide 加权满足率 = 满足条件权重 / 可解读条件权重
func (e *RuleEvaluator) scoreSide(conds []model.EntryCondition, side model.Direction, mirror bool, snap snapshot) (float64, []string, bool) {
	var total, hit float64
	var interpretable int
	reasons := make([]string, 0, len(conds))
	results := make([]checkResult, len(conds))
	for i, c := range conds {
		results[i] = evaluateCondition(c, side, mirror, snap)
		if results[i].ok {
			interpretable++
			total += c.Weight
		}
	}
	if interpretable == 0 {
		return 0, nil, false
	}
	// 权重全为0时按等权处理
	equal := total == 0
	if equal {
		total = float64(interpretable)
	}
	for i, r := range results {
		if !r.ok || !r.satisfied {
			continue
		}
		w := conds[i].Weight
		if equal {
			w = 1
		}
		hit += w
		reasons = append(reasons, r.reason)
	}
	return hit / total, reasons, true
}

func evaluateCondition(c model.EntryCondition, side model.Direction, mirror bool, snap snapshot) checkResult {
	text := strings.ToLower(strings.TrimSpace(c.Indicator + " " + c.Condition))
	switch {
	case strings.Contains(text, "rsi"):
		return checkRSI(text, side, mirror, snap)
	case strings.Contains(text, "macd"):
		return checkMACD(text, side, mirror, snap)
	case containsAny(text, "breakout", "break out", "breaks", "breakdown", "break down", "resistance", "support", "new high", "new low", "highest", "lowest"):
		return checkBreakout(text, side, mirror, snap)
	case strings.Contains(text, "volume"):
		return checkVolume(text, snap)
	case maPattern.MatchString(text):
		return checkMovingAverage(text, side, mirror, snap)
	case containsAny(text, "uptrend", "downtrend", "trend"):
		return checkTrend(text, side, mirror, snap)
	}
	return checkResult{}
}

// resolveBias 文本未给出方向时按交易方向取默认；为做空镜像做多条件时翻转
func resolveBias(text string, side model.Direction, mirror bool) bias {
	b := detectBias(text)
	if b == biasNone {
		if side == model.DirectionShort {
			return biasDown
		}
		return biasUp
	}
	if mirror {
		return b.flip()
	}
	return b
}

func checkRSI(text string, side model.Direction, mirror bool, snap snapshot) checkResult {
	rsi := RSI(snap.closes, 14)
	now := last(rsi)
	if math.IsNaN(now) {
		return checkResult{}
	}

	raw := detectBias(text)
	var candidates []float64
	for _, v := range numbersIn(text) {
		if v > 0 && v < 100 {
			candidates = append(candidates, v)
		}
	}
	if len(candidates) > 1 {
		candidates = candidates[1:] // 第一个通常是周期
	}

	var b bias
	var thr float64
	if raw == biasNone {
		// 无方向：做多看超卖，做空看超买
		b, thr = biasDown, 30
		if side == model.DirectionShort {
			b, thr = biasUp, 70
		}
		if len(candidates) > 0 {
			thr = candidates[len(candidates)-1]
		}
	} else {
		b = raw
		thr = 70
		if b == biasDown {
			thr = 30
		}
		if len(candidates) > 0 {
			thr = candidates[len(candidates)-1]
		}
		if mirror {
			b, thr = b.flip(), 100-thr
		}
	}

	if strings.Contains(text, "cross") {
		level := make([]float64, len(rsi))
		for i := range level {
			level[i] = thr
		}
		ok := crossed(rsi, level, b)
		return checkResult{ok: true, satisfied: ok, reason: fmt.Sprintf("RSI(14) %.1f crossed %s %.0f", now, biasWord(b), thr)}
	}

	sat := (b == biasUp && now > thr) || (b == biasDown && now < thr)
	return checkResult{ok: true, satisfied: sat, reason: fmt.Sprintf("RSI(14) %.1f %s %.0f", now, biasWord(b), thr)}
}

func checkMACD(text string, side model.Direction, mirror bool, snap snapshot) checkResult {
	macd, sig := MACD(snap.closes, 12, 26, 9)
	m, s := last(macd), last(sig)
	if math.IsNaN(m) || math.IsNaN(s) {
		return checkResult{}
	}
	b := resolveBias(text, side, mirror)
	if strings.Contains(text, "cross") {
		return checkResult{ok: true, satisfied: crossed(macd, sig, b), reason: fmt.Sprintf("MACD crossed %s signal", biasWord(b))}
	}
	sat := (b == biasUp && m > s) || (b == biasDown && m < s)
	return checkResult{ok: true, satisfied: sat, reason: fmt.Sprintf("MACD %.4f %s signal %.4f", m, biasWord(b), s)}
}

func checkBreakout(text string, side model.Direction, mirror bool, snap snapshot) checkResult {
	lookback := 20
	for _, v := range numbersIn(text) {
		if v >= 5 && v <= 200 && v == math.Trunc(v) {
			lookback = int(v)
			break
		}
	}
	high, low := PriorRange(snap.candles, lookback)
	if math.IsNaN(high) {
		return checkResult{}
	}

	var b bias
	switch {
	case containsAny(text, "breakdown", "break down", "breaks below", "new low", "support", "lowest"):
		b = biasDown
	case containsAny(text, "breakout", "break out", "breaks above", "new high", "resistance", "highest"):
		b = biasUp
	default:
		b = resolveBias(text, side, false)
	}
	if mirror {
		b = b.flip()
	}

	if b == biasDown {
		return checkResult{ok: true, satisfied: snap.close < low, reason: fmt.Sprintf("close %s below %d-bar low %s", fmtPrice(snap.close), lookback, fmtPrice(low))}
	}
	return checkResult{ok: true, satisfied: snap.close > high, reason: fmt.Sprintf("close %s above %d-bar high %s", fmtPrice(snap.close), lookback, fmtPrice(high))}
}

func checkVolume(text string, snap snapshot) checkResult {
	ratio := VolumeRatio(snap.candles, 20)
	if math.IsNaN(ratio) {
		return checkResult{}
	}
	if containsAny(text, "low volume", "declining", "decreasing", "below average") {
		return checkResult{ok: true, satisfied: ratio < 1, reason: fmt.Sprintf("volume %.2fx average", ratio)}
	}
	thr := 1.5
	for _, v := range numbersIn(text) {
		if v > 1 && v <= 20 {
			thr = v
			break
		}
	}
	return checkResult{ok: true, satisfied: ratio >= thr, reason: fmt.Sprintf("volume %.2fx average (>= %.1fx)", ratio, thr)}
}

func checkMovingAverage(text string, side model.Direction, mirror bool, snap snapshot) checkResult {
	ma := SMA
	kind := "SMA"
	if strings.Contains(text, "ema") || strings.Contains(text, "exponential") {
		ma, kind = EMA, "EMA"
	}

	var periods []int
	for _, v := range numbersIn(text) {
		if v >= 2 && v <= 400 && v == math.Trunc(v) {
			periods = append(periods, int(v))
		}
	}
	b := resolveBias(text, side, mirror)

	if len(periods) >= 2 {
		fast, slow := periods[0], periods[1]
		if fast > slow {
			fast, slow = slow, fast
		}
		f, s := ma(snap.closes, fast), ma(snap.closes, slow)
		fNow, sNow := last(f), last(s)
		if math.IsNaN(fNow) || math.IsNaN(sNow) {
			return checkResult{}
		}
		if strings.Contains(text, "cross") {
			return checkResult{ok: true, satisfied: crossed(f, s, b), reason: fmt.Sprintf("%s%d crossed %s %s%d", kind, fast, biasWord(b), kind, slow)}
		}
		sat := (b == biasUp && fNow > sNow) || (b == biasDown && fNow < sNow)
		return checkResult{ok: true, satisfied: sat, reason: fmt.Sprintf("%s%d %s %s%d", kind, fast, biasWord(b), kind, slow)}
	}

	period := 20
	if len(periods) == 1 {
		period = periods[0]
	}
	series := ma(snap.closes, period)
	now := last(series)
	if math.IsNaN(now) {
		return checkResult{}
	}
	if strings.Contains(text, "cross") {
		return checkResult{ok: true, satisfied: crossed(snap.closes, series, b), reason: fmt.Sprintf("price crossed %s %s%d", biasWord(b), kind, period)}
	}
	sat := (b == biasUp && snap.close > now) || (b == biasDown && snap.close < now)
	return checkResult{ok: true, satisfied: sat, reason: fmt.Sprintf("price %s %s %s%d %s", fmtPrice(snap.close), biasWord(b), kind, period, fmtPrice(now))}
}

func checkTrend(text string, side model.Direction, mirror bool, snap snapshot) checkResult {
	s20, s50 := last(SMA(snap.closes, 20)), last(SMA(snap.closes, 50))
	if math.IsNaN(s20) {
		return checkResult{}
	}
	if math.IsNaN(s50) {
		s50 = s20
	}

	var b bias
	switch {
	case containsAny(text, "uptrend", "up trend", "bull"):
		b = biasUp
	case containsAny(text, "downtrend", "down trend", "bear"):
		b = biasDown
	default:
		b = resolveBias(text, side, false)
	}
	if mirror {
		b = b.flip()
	}

	if b == biasDown {
		return checkResult{ok: true, satisfied: snap.close < s20 && s20 <= s50, reason: "downtrend: close < SMA20 <= SMA50"}
	}
	return checkResult{ok: true, satisfied: snap.close > s20 && s20 >= s50, reason: "uptrend: close > SMA20 >= SMA50"}
}

// crossed a在最近crossLookback根内上穿（或下穿）b
func crossed(a, b []float64, dir bias) bool {
	n := len(a)
	if n < 2 || len(b) != n {
		return false
	}
	start := n - crossLookback
	if start < 1 {
		start = 1
	}
	for i := start; i < n; i++ {
		p, c := a[i-1]-b[i-1], a[i]-b[i]
		if math.IsNaN(p) || math.IsNaN(c) {
			continue
		}
		if dir == biasUp && p <= 0 && c > 0 {
			return true
		}
		if dir == biasDown && p >= 0 && c < 0 {
			return true
		}
	}
	return false
}

// levelsFromATR 入场=最新收盘价，止损=1.5倍ATR，止盈=2倍风险
func levelsFromATR(side model.Direction, snap snapshot) (Match, error) {
	entry := snap.close
	atr := snap.atr
	if math.IsNaN(atr) || atr <= 0 {
		atr = entry * 0.01
	}
	risk := stopATRMultiple * atr

	sl, tp := entry-risk, entry+rewardRatio*risk
	if side == model.DirectionShort {
		sl, tp = entry+risk, entry-rewardRatio*risk
	}

	entry, sl, tp = roundPrice(entry), roundPrice(sl), roundPrice(tp)
	if err := validateLevels(side, entry, sl, tp); err != nil {
		return noMatch, err
	}
	return Match{IsMatch: true, Direction: side, Entry: entry, StopLoss: sl, TakeProfit: tp}, nil
}

func biasWord(b bias) string {
	if b == biasDown {
		return "below"
	}
	return "above"
}

func fmtPrice(v float64) string {
	return strconv.FormatFloat(roundPrice(v), 'f', -1, 64)
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
