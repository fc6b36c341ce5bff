package database

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"StrategyRadar/pkg/model"
)

const setupBatchSize = 100

type SetupDB struct {
	db *gorm.DB
}

// Replace 在同一事务内写入新批次并删除旧批次，任何时刻策略都不会出现零行的中间状态
func (s *SetupDB) Replace(ctx context.Context, strategyID, scanID string, setups []model.Setup) error {
	if scanID == "" {
		return fmt.Errorf("scanID为空")
	}

	rows := make([]model.Setup, len(setups))
	for i, st := range setups {
		st.StrategyID = strategyID
		st.ScanID = scanID
		rows[i] = st
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(rows) > 0 {
			if err := tx.CreateInBatches(&rows, setupBatchSize).Error; err != nil {
				return fmt.Errorf("写入扫描结果失败: %w", err)
			}
		}
		if err := staleSetups(tx, strategyID, scanID).Delete(&model.Setup{}).Error; err != nil {
			return fmt.Errorf("删除旧扫描结果失败: %w", err)
		}
		return nil
	})
}

// staleSetups 策略下非当前批次的扫描结果
func staleSetups(tx *gorm.DB, strategyID, scanID string) *gorm.DB {
	return tx.Where("strategy_id = ? AND scan_id <> ?", strategyID, scanID)
}

func (s *SetupDB) GetByStrategyID(ctx context.Context, strategyID string) ([]model.Setup, error) {
	var setups []model.Setup
	err := s.db.WithContext(ctx).Where("strategy_id = ?", strategyID).
		Order("confidence DESC").
		Order("symbol ASC").
		Find(&setups).Error
	if err != nil {
		return nil, fmt.Errorf("查询扫描结果失败: %w", err)
	}
	return setups, nil
}
