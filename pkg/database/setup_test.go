package database

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"StrategyRadar/pkg/model"
	"StrategyRadar/pkg/repository"
)

// dryRunDB 不连接数据库，只生成SQL
func dryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN: "host=localhost user=test dbname=test sslmode=disable",
	}), &gorm.Config{
		DryRun:                 true,
		SkipDefaultTransaction: true,
		DisableAutomaticPing:   true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open dry-run db: %v", err)
	}
	return db
}

func TestStaleSetupsQuery(t *testing.T) {
	db := dryRunDB(t)
	stmt := staleSetups(db, "s1", "scan-2").Delete(&model.Setup{}).Statement

	sql := stmt.SQL.String()
	if !strings.Contains(sql, `DELETE FROM "strategy_setups"`) {
		t.Fatalf("sql=%s", sql)
	}
	if !strings.Contains(sql, "strategy_id = $1 AND scan_id <> $2") {
		t.Fatalf("sql=%s", sql)
	}
	if len(stmt.Vars) != 2 || stmt.Vars[0] != "s1" || stmt.Vars[1] != "scan-2" {
		t.Fatalf("vars=%v", stmt.Vars)
	}
}

func TestInvalidIDsAreNotFound(t *testing.T) {
	s := NewStore(dryRunDB(t))
	ctx := context.Background()

	if _, err := s.GetStrategy(ctx, "abc"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("GetStrategy err=%v want ErrNotFound", err)
	}
	if err := s.UpdateStrategyParsed(ctx, "abc", nil, ""); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("UpdateStrategyParsed err=%v want ErrNotFound", err)
	}
	if _, err := s.ListSetups(ctx, "abc"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("ListSetups err=%v want ErrNotFound", err)
	}
}

func TestReplaceRequiresScanID(t *testing.T) {
	s := NewStore(dryRunDB(t))
	if err := s.ReplaceSetups(context.Background(), "s1", "", nil); err == nil {
		t.Fatalf("expected error for empty scan id")
	}
}

// mockDB 基于sqlmock的连接，用于校验事务内的SQL顺序
func mockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		DisableAutomaticPing: true,
		Logger:               logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open mock db: %v", err)
	}
	return db, mock
}

const (
	testStrategyID = "6f1c1d8e-4a7b-4c1e-9a52-0c8f0f4b7d11"
	testScanID     = "0b7e5c2a-93d4-4f6e-8e1a-2d9c4b6a8f30"
)

var deleteStale = regexp.QuoteMeta(`DELETE FROM "strategy_setups" WHERE strategy_id = $1 AND scan_id <> $2`)

func TestReplaceSetups_InsertThenDeleteInOneTransaction(t *testing.T) {
	db, mock := mockDB(t)
	s := NewStore(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "strategy_setups"`)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(deleteStale).
		WithArgs(testStrategyID, testScanID).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	setups := []model.Setup{
		{Symbol: "BTC/USDT", Timeframe: "1h", Direction: model.DirectionLong, Entry: 100, StopLoss: 95, TakeProfit: 110},
		{Symbol: "ETH/USDT", Timeframe: "4h", Direction: model.DirectionShort, Entry: 50, StopLoss: 52, TakeProfit: 46},
	}
	if err := s.ReplaceSetups(context.Background(), testStrategyID, testScanID, setups); err != nil {
		t.Fatalf("err=%v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestReplaceSetups_EmptyBatchOnlyDeletes(t *testing.T) {
	db, mock := mockDB(t)
	s := NewStore(db)

	mock.ExpectBegin()
	mock.ExpectExec(deleteStale).
		WithArgs(testStrategyID, testScanID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := s.ReplaceSetups(context.Background(), testStrategyID, testScanID, nil); err != nil {
		t.Fatalf("err=%v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestReplaceSetups_InsertFailureKeepsOldRows(t *testing.T) {
	db, mock := mockDB(t)
	s := NewStore(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "strategy_setups"`)).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	setups := []model.Setup{{Symbol: "BTC/USDT", Timeframe: "1h", Direction: model.DirectionLong, Entry: 100, StopLoss: 95, TakeProfit: 110}}
	if err := s.ReplaceSetups(context.Background(), testStrategyID, testScanID, setups); err == nil {
		t.Fatalf("expected insert error")
	}
	// 写入失败时不能执行删除
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
