package testutil

import (
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/journey-tutor-backend/internal/data/db"
	"github.com/yungbote/journey-tutor-backend/internal/platform/logger"
)

var (
	dbOnce sync.Once
	shared *gorm.DB
	dbErr  error

	logOnce sync.Once
	logg    *logger.Logger
	logErr  error
)

func Logger(tb testing.TB) *logger.Logger {
	tb.Helper()
	logOnce.Do(func() {
		logg, logErr = logger.New("test")
	})
	if logErr != nil {
		tb.Fatalf("failed to init logger: %v", logErr)
	}
	return logg
}

// DB returns a process-wide migrated database. It is Postgres when TEST_POSTGRES_DSN is set
// and an in-memory sqlite database otherwise. Pair it with Tx so tests stay isolated.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()
	dbOnce.Do(func() {
		if dsn := os.Getenv("TEST_POSTGRES_DSN"); dsn != "" {
			shared, dbErr = openPostgres(dsn)
			return
		}
		shared, dbErr = openSQLite("shared-" + uuid.NewString())
	})
	if dbErr != nil {
		tb.Fatalf("failed to init test db: %v", dbErr)
	}
	return shared
}

// NewDB returns a fresh migrated sqlite database owned by the test. Use it when the code
// under test commits on its own or writes from background goroutines.
func NewDB(tb testing.TB) *gorm.DB {
	tb.Helper()
	gdb, err := openSQLite("isolated-" + uuid.NewString())
	if err != nil {
		tb.Fatalf("failed to init isolated test db: %v", err)
	}
	tb.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return gdb
}

func Tx(tb testing.TB, gdb *gorm.DB) *gorm.DB {
	tb.Helper()
	tx := gdb.Begin()
	if tx.Error != nil {
		tb.Fatalf("begin tx: %v", tx.Error)
	}
	tb.Cleanup(func() {
		_ = tx.Rollback().Error
	})
	return tx
}

func openPostgres(dsn string) (*gorm.DB, error) {
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrateAll(gdb); err != nil {
		return nil, err
	}
	return gdb, nil
}

func openSQLite(name string) (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrateAll(gdb); err != nil {
		return nil, err
	}
	return gdb, nil
}
