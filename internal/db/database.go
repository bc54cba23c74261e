package db

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"lending-gateway/internal/config"
	"lending-gateway/internal/metrics"
	"lending-gateway/internal/models"
)

// InitDB opens the journal database and migrates its schema.
func InitDB(cfg config.DatabaseConfig, log *logrus.Logger) (*gorm.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN is required")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	entry := log.WithField("component", "db")

	gdb, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		SkipDefaultTransaction:                   true,
		PrepareStmt:                              true,
		Logger:                                   logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		metrics.DBConnectionStatus.Set(0)
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	metrics.DBConnectionStatus.Set(1)
	entry.Info("✅ Database connected successfully")

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	entry.Info("🚀 Starting database schema migration with GORM AutoMigrate...")
	if err := gdb.AutoMigrate(
		&models.LendingOperation{},
		&models.AuthNonce{},
	); err != nil {
		return nil, fmt.Errorf("auto migrate failed: %w", err)
	}

	if err := RunDataMigrations(sqlDB, entry); err != nil {
		return nil, fmt.Errorf("data migrations failed: %w", err)
	}

	if stale, err := FailStalePending(sqlDB); err != nil {
		entry.WithError(err).Warn("⚠️ Failed to close stale pending operations")
	} else if stale > 0 {
		entry.WithField("rows", stale).Warn("⚠️ Marked stale pending operations as failed")
	}

	entry.Info("✅ Database schema migrated successfully")
	return gdb, nil
}

// RecordPoolStats publishes connection pool gauges.
func RecordPoolStats(gdb *gorm.DB) {
	sqlDB, err := gdb.DB()
	if err != nil {
		metrics.DBConnectionStatus.Set(0)
		return
	}
	if err := sqlDB.Ping(); err != nil {
		metrics.DBConnectionStatus.Set(0)
		return
	}
	metrics.DBConnectionStatus.Set(1)
	metrics.DBConnectionOpen.Set(float64(sqlDB.Stats().OpenConnections))
}
