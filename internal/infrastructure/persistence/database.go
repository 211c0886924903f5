package persistence

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/sellerlink/backend/internal/infrastructure/config"
	"github.com/sellerlink/backend/internal/infrastructure/logger"
)

// pingTimeout bounds health checks so a hung connection cannot stall /health
const pingTimeout = 2 * time.Second

// Database wraps the GORM handle shared by the grant, order, listing and webhook stores.
type Database struct {
	DB *gorm.DB
}

// DatabaseOptions tunes SQL logging.
type DatabaseOptions struct {
	// LogLevel is "silent", "error", "warn" or "info"
	LogLevel string
	// SlowThreshold marks statements logged as slow. Zero keeps the logger default.
	SlowThreshold time.Duration
}

// NewDatabase opens the PostgreSQL pool described by cfg and verifies it answers.
func NewDatabase(cfg *config.DatabaseConfig, zapLogger *zap.Logger, opts DatabaseOptions) (*Database, error) {
	var logOpts []logger.GormLoggerOption
	if opts.SlowThreshold > 0 {
		logOpts = append(logOpts, logger.WithSlowThreshold(opts.SlowThreshold))
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger:                 logger.NewGormLogger(zapLogger, logger.MapGormLogLevel(opts.LogLevel), logOpts...),
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Minute)

	d := &Database{DB: db}
	if err := d.Ping(); err != nil {
		return nil, err
	}
	return d, nil
}

// Close releases the pool
func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// Ping reports whether the database answers within pingTimeout
func (d *Database) Ping() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}
