package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"StrategyRadar/pkg/config"
	"StrategyRadar/pkg/model"
)

// Store PostgreSQL存储
type Store struct {
	db  *gorm.DB
	sql *sql.DB
}

// Open 连接数据库并设置连接池
func Open(cfg *config.Config) (*Store, error) {
	dbCfg := cfg.Database
	if dbCfg.DSN == "" {
		return nil, fmt.Errorf("数据库DSN未配置")
	}

	gdb, err := gorm.Open(postgres.Open(dbCfg.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	sqldb, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("获取数据库连接失败: %w", err)
	}
	sqldb.SetMaxOpenConns(dbCfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(dbCfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(dbCfg.ConnMaxLifetime)

	return &Store{db: gdb, sql: sqldb}, nil
}

// NewStore 基于已有gorm连接创建存储
func NewStore(db *gorm.DB) *Store {
	sqldb, _ := db.DB()
	return &Store{db: db, sql: sqldb}
}

// AutoMigrate 创建或更新表结构
func (s *Store) AutoMigrate() error {
	if err := s.db.AutoMigrate(&model.Strategy{}, &model.Setup{}); err != nil {
		return fmt.Errorf("数据库迁移失败: %w", err)
	}
	return nil
}

// Ping 测试连接
func (s *Store) Ping(ctx context.Context) error {
	if s.sql == nil {
		return fmt.Errorf("数据库未连接")
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return s.sql.PingContext(ctx)
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	if s.sql == nil {
		return nil
	}
	return s.sql.Close()
}

// Strategies 策略表访问
func (s *Store) Strategies() *StrategyDB {
	return &StrategyDB{db: s.db}
}

// Setups 扫描结果表访问
func (s *Store) Setups() *SetupDB {
	return &SetupDB{db: s.db}
}
