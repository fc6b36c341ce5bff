package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Setup 扫描得到的候选交易
type Setup struct {
	ID         string    `gorm:"type:uuid;primaryKey" json:"id"`
	StrategyID string    `gorm:"type:uuid;not null;index:idx_setup_strategy_scan" json:"strategy_id"`
	ScanID     string    `gorm:"type:uuid;not null;index:idx_setup_strategy_scan" json:"scan_id"` // 扫描批次，用于整体替换
	Symbol     string    `gorm:"type:varchar(30);not null;index" json:"symbol"`
	Timeframe  string    `gorm:"type:varchar(10);not null" json:"timeframe"`
	Direction  Direction `gorm:"type:varchar(10);not null" json:"direction"`
	Entry      float64   `gorm:"type:decimal(24,10);not null" json:"entry"`
	StopLoss   float64   `gorm:"type:decimal(24,10);not null" json:"sl"`
	TakeProfit float64   `gorm:"type:decimal(24,10);not null" json:"tp"`
	Confidence int       `gorm:"not null;default:0" json:"confidence"` // 0-100
	Reasons    []string  `gorm:"type:jsonb;serializer:json" json:"reasons"`
	Synthetic  bool      `gorm:"default:false" json:"synthetic,omitempty"` // 基于模拟行情得到
	CreatedAt  time.Time `json:"created_at"`
}

func (s *Setup) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return nil
}

func (Setup) TableName() string {
	return "strategy_setups"
}
