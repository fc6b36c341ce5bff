package repository

import (
	"context"
	"errors"

	"StrategyRadar/pkg/model"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("记录不存在")

// Repository 策略与扫描结果的存储
type Repository interface {
	GetStrategy(ctx context.Context, id string) (*model.Strategy, error)
	// ListVisibleStrategies 用户自己的策略和公开策略
	ListVisibleStrategies(ctx context.Context, userID string) ([]model.Strategy, error)
	ListAutoScanStrategies(ctx context.Context) ([]model.Strategy, error)
	UpdateStrategyParsed(ctx context.Context, id string, parsed *model.ParsedStrategy, hash string) error

	// ReplaceSetups 以scanID为新批次整体替换策略的扫描结果：先写入新批次，再删除其他批次
	ReplaceSetups(ctx context.Context, strategyID, scanID string, setups []model.Setup) error
	ListSetups(ctx context.Context, strategyID string) ([]model.Setup, error)

	Ping(ctx context.Context) error
}
