package strategy

import "fmt"

const parserSystemPrompt = "You are a trading strategy analyst. You convert free-text trading strategies into structured JSON. " +
	"Always answer with a single JSON object that follows the requested schema exactly."

const parserSchema = `{
  "name": "short strategy name",
  "direction": "LONG | SHORT | BOTH",
  "timeframes": ["15m", "1h", "4h", "D1"],
  "entryConditions": [
    {"type": "indicator | price | volume | pattern", "indicator": "e.g. RSI, EMA, MACD", "condition": "e.g. RSI(14) crosses above 30", "weight": 0.0-1.0}
  ],
  "exitConditions": [
    {"type": "takeProfit | stopLoss", "value": "how the level is calculated"}
  ],
  "description": "one paragraph summary"
}`

// buildParsePrompt 构建策略解析的用户提示
func buildParsePrompt(strategyText string) string {
	return fmt.Sprintf(`Analyze the following trading strategy and extract its rules.

Strategy:
"""
%s
"""

Return JSON with exactly this structure:
%s

Rules:
- direction is LONG when the strategy only buys, SHORT when it only sells, otherwise BOTH.
- timeframes lists only the chart timeframes the strategy explicitly applies to; use [] when none are stated.
- weight expresses how important each entry condition is (1 = mandatory).
- exitConditions type must be takeProfit or stopLoss.`, strategyText, parserSchema)
}
