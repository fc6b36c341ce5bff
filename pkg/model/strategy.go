package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Direction 交易方向
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
	DirectionBoth  Direction = "BOTH"
)

// ParseDirection 规范化方向字符串，无法识别时返回BOTH
func ParseDirection(s string) Direction {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LONG", "BUY", "BULLISH":
		return DirectionLong
	case "SHORT", "SELL", "BEARISH":
		return DirectionShort
	default:
		return DirectionBoth
	}
}

// Allows 判断策略方向是否允许某个具体交易方向
func (d Direction) Allows(side Direction) bool {
	if side != DirectionLong && side != DirectionShort {
		return false
	}
	return d == DirectionBoth || d == side || d == ""
}

// Strategy 用户编写的交易策略
type Strategy struct {
	ID           string          `gorm:"type:uuid;primaryKey" json:"id"`
	UserID       string          `gorm:"type:uuid;not null;index" json:"user_id"`
	Name         string          `gorm:"type:varchar(120)" json:"name"`
	StrategyText string          `gorm:"type:text;not null" json:"strategy_text"`
	AIParsed     *ParsedStrategy `gorm:"type:jsonb;serializer:json" json:"ai_parsed,omitempty"`
	AIParsedHash string          `gorm:"type:varchar(64)" json:"-"` // ai_parsed对应的策略文本哈希，为空表示需要重新解析
	IsPublic     bool            `gorm:"default:false;index" json:"is_public"`
	AutoScan     bool            `gorm:"default:false;index" json:"auto_scan"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func (s *Strategy) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return nil
}

func (Strategy) TableName() string {
	return "strategies"
}

// VisibleTo 策略属于该用户或为公开策略时可见
func (s *Strategy) VisibleTo(userID string) bool {
	if s == nil {
		return false
	}
	return s.IsPublic || (userID != "" && s.UserID == userID)
}

// EntryCondition 入场条件
type EntryCondition struct {
	Type      string  `json:"type"`
	Indicator string  `json:"indicator"`
	Condition string  `json:"condition"`
	Weight    float64 `json:"weight"`
}

// ExitCondition 出场条件
type ExitCondition struct {
	Type  string `json:"type"` // takeProfit | stopLoss
	Value string `json:"value"`
}

const (
	ExitTakeProfit = "takeProfit"
	ExitStopLoss   = "stopLoss"
)

// ParsedStrategy 由大模型从策略文本解析出的结构化策略
type ParsedStrategy struct {
	Name            string           `json:"name"`
	Direction       Direction        `json:"direction"`
	Timeframes      []string         `json:"timeframes"`
	EntryConditions []EntryCondition `json:"entryConditions"`
	ExitConditions  []ExitCondition  `json:"exitConditions"`
	Description     string           `json:"description"`
}

// DefaultParsedStrategy 解析失败时使用的安全默认值
func DefaultParsedStrategy() ParsedStrategy {
	return ParsedStrategy{
		Name:            "Error parsing strategy",
		Direction:       DirectionBoth,
		Timeframes:      []string{"1h"},
		EntryConditions: []EntryCondition{},
		ExitConditions:  []ExitCondition{},
		Description:     "Failed to parse strategy text",
	}
}

// AppliesTo 策略未声明周期时适用于所有周期
func (p ParsedStrategy) AppliesTo(timeframe string) bool {
	if len(p.Timeframes) == 0 {
		return true
	}
	for _, tf := range p.Timeframes {
		if tf == timeframe {
			return true
		}
	}
	return false
}
