package database

import (
	"context"

	"github.com/google/uuid"

	"StrategyRadar/pkg/model"
	"StrategyRadar/pkg/repository"
)

var _ repository.Repository = (*Store)(nil)

func (s *Store) GetStrategy(ctx context.Context, id string) (*model.Strategy, error) {
	return s.Strategies().GetByID(ctx, id)
}

func (s *Store) ListVisibleStrategies(ctx context.Context, userID string) ([]model.Strategy, error) {
	return s.Strategies().GetVisible(ctx, userID)
}

func (s *Store) ListAutoScanStrategies(ctx context.Context) ([]model.Strategy, error) {
	return s.Strategies().GetAutoScan(ctx)
}

func (s *Store) UpdateStrategyParsed(ctx context.Context, id string, parsed *model.ParsedStrategy, hash string) error {
	return s.Strategies().UpdateParsed(ctx, id, parsed, hash)
}

func (s *Store) ReplaceSetups(ctx context.Context, strategyID, scanID string, setups []model.Setup) error {
	return s.Setups().Replace(ctx, strategyID, scanID, setups)
}

func (s *Store) ListSetups(ctx context.Context, strategyID string) ([]model.Setup, error) {
	if _, err := uuid.Parse(strategyID); err != nil {
		return nil, repository.ErrNotFound
	}
	return s.Setups().GetByStrategyID(ctx, strategyID)
}
