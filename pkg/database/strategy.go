package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"StrategyRadar/pkg/model"
	"StrategyRadar/pkg/repository"
)

type StrategyDB struct {
	db *gorm.DB
}

func (s *StrategyDB) Save(ctx context.Context, strategy *model.Strategy) error {
	return s.db.WithContext(ctx).Save(strategy).Error
}

func (s *StrategyDB) GetByID(ctx context.Context, id string) (*model.Strategy, error) {
	// 非法UUID在postgres中会报类型错误，按不存在处理
	if _, err := uuid.Parse(id); err != nil {
		return nil, repository.ErrNotFound
	}

	var strategy model.Strategy
	err := s.db.WithContext(ctx).First(&strategy, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("获取策略失败: %w", err)
	}
	return &strategy, nil
}

func (s *StrategyDB) GetVisible(ctx context.Context, userID string) ([]model.Strategy, error) {
	var strategies []model.Strategy
	q := s.db.WithContext(ctx).Where("is_public = ?", true)
	if _, err := uuid.Parse(userID); err == nil {
		q = q.Or("user_id = ?", userID)
	}
	if err := q.Order("created_at DESC").Find(&strategies).Error; err != nil {
		return nil, fmt.Errorf("查询可见策略失败: %w", err)
	}
	return strategies, nil
}

func (s *StrategyDB) GetAutoScan(ctx context.Context) ([]model.Strategy, error) {
	var strategies []model.Strategy
	err := s.db.WithContext(ctx).Where("auto_scan = ?", true).
		Order("created_at ASC").
		Find(&strategies).Error
	if err != nil {
		return nil, fmt.Errorf("查询自动扫描策略失败: %w", err)
	}
	return strategies, nil
}

func (s *StrategyDB) UpdateParsed(ctx context.Context, id string, parsed *model.ParsedStrategy, hash string) error {
	if _, err := uuid.Parse(id); err != nil {
		return repository.ErrNotFound
	}
	res := s.db.WithContext(ctx).Model(&model.Strategy{ID: id}).
		Select("ai_parsed", "ai_parsed_hash").
		Updates(&model.Strategy{AIParsed: parsed, AIParsedHash: hash})
	if res.Error != nil {
		return fmt.Errorf("更新策略解析结果失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}
