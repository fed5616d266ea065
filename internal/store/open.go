package store

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/feral-file/nft-trait-viewer/internal/adapter"
	"github.com/feral-file/nft-trait-viewer/internal/config"
	"github.com/feral-file/nft-trait-viewer/internal/logger"
)

// Open creates the cache store selected by the configuration
func Open(ctx context.Context, cfg config.CacheConfig, json adapter.JSON, jcs adapter.JCS, clock adapter.Clock) (Store, error) {
	if err := config.ValidateCache(&cfg); err != nil {
		return nil, err
	}

	codec, err := NewChunkCodec(json, jcs, cfg.EffectiveChunkCeiling())
	if err != nil {
		return nil, err
	}

	if cfg.Driver == config.CacheDriverWorkbook {
		workbook, err := NewWorkbookStore(cfg.WorkbookPath, codec, clock)
		if err != nil {
			return nil, err
		}
		return workbook, nil
	}

	db, err := OpenDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return NewDBStore(db, codec, clock), nil
}

// OpenDB connects to the cache database and migrates the cache tables. The initial
// connection is retried with exponential backoff until cfg.Database.ConnectTimeout elapses.
func OpenDB(ctx context.Context, cfg config.CacheConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case config.CacheDriverPostgres:
		dialector = postgres.Open(cfg.Database.DSN())
	case config.CacheDriverSQLite:
		dialector = sqlite.Open(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	var db *gorm.DB
	operation := func() error {
		conn, err := gorm.Open(dialector, &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		})
		if err != nil {
			closeDB(conn)
			logger.WarnCtx(ctx, "Failed to connect to cache database, retrying", zap.Error(err), zap.String("driver", cfg.Driver))
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		db = conn
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = cfg.Database.ConnectTimeout
	if b.MaxElapsedTime <= 0 {
		b.MaxElapsedTime = 30 * time.Second
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, err
	}

	maxOpenConns, maxIdleConns := cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns
	if cfg.Driver == config.CacheDriverSQLite {
		// SQLite allows a single writer
		maxOpenConns, maxIdleConns = 1, 1
	}
	if err := ConfigureConnectionPool(db, maxOpenConns, maxIdleConns, cfg.Database.ConnMaxLifetime, cfg.Database.ConnMaxIdleTime); err != nil {
		closeDB(db)
		return nil, err
	}

	if err := Migrate(db); err != nil {
		closeDB(db)
		return nil, err
	}

	logger.InfoCtx(ctx, "Connected to cache database", zap.String("driver", cfg.Driver))

	return db, nil
}

// closeDB releases the pool of a connection attempt that failed its ping
func closeDB(db *gorm.DB) {
	if db == nil {
		return
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// ConfigureConnectionPool configures the connection pool settings for a GORM database connection.
// It accesses the underlying *sql.DB and sets the pool configuration.
// If any of the pool settings are 0 or empty, reasonable defaults are used (see NormalizeConnectionPoolSettings).
func ConfigureConnectionPool(db *gorm.DB, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	maxOpenConns, maxIdleConns, connMaxLifetime, connMaxIdleTime =
		NormalizeConnectionPoolSettings(maxOpenConns, maxIdleConns, connMaxLifetime, connMaxIdleTime)

	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	return nil
}

// NormalizeConnectionPoolSettings applies defaults and clamps pool settings into safe values.
//
// Defaults (when zero):
//   - MaxOpenConns: 2
//   - MaxIdleConns: 1
//   - ConnMaxLifetime: 5 minutes
//   - ConnMaxIdleTime: 10 minutes
//
// A run issues its queries one after another, so the pool stays small.
func NormalizeConnectionPoolSettings(maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) (int, int, time.Duration, time.Duration) {
	if maxOpenConns == 0 {
		maxOpenConns = 2
	}
	if maxIdleConns == 0 {
		maxIdleConns = 1
	}
	if connMaxLifetime == 0 {
		connMaxLifetime = 5 * time.Minute
	}
	if connMaxIdleTime == 0 {
		connMaxIdleTime = 10 * time.Minute
	}

	// Ensure MaxIdleConns doesn't exceed MaxOpenConns
	if maxIdleConns > maxOpenConns {
		maxIdleConns = maxOpenConns
	}

	return maxOpenConns, maxIdleConns, connMaxLifetime, connMaxIdleTime
}
