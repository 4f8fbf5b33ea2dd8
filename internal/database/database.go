package database

import (
	"fmt"

	"crypto-exchange-bot/internal/config"
	"crypto-exchange-bot/internal/logger"
	"crypto-exchange-bot/internal/models"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var DB *gorm.DB

// Open opens a connection for the configured driver without touching the
// package-level handle.
func Open(cfg config.DatabaseConfig, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.SQLitePath)
	default:
		dialector = postgres.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Error),
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.Driver == "sqlite" {
		// One writer at a time; also keeps an on-disk file from reporting SQLITE_BUSY.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get sql handle: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

// Connect establishes the package-level connection
func Connect(cfg *config.Config) error {
	db, err := Open(cfg.Database, cfg.GetDSN())
	if err != nil {
		return err
	}
	DB = db

	logger.Log.Info("database connection established", zap.String("driver", cfg.Database.Driver))
	return nil
}

// AutoMigrate runs migrations against the package-level connection
func AutoMigrate() error {
	return Migrate(DB)
}

// Migrate creates missing tables, columns and indexes. It is additive only.
func Migrate(db *gorm.DB) error {
	// Core models first
	coreModels := []interface{}{
		&models.User{},
		&models.Order{},
		&models.Setting{},
	}

	// Promo and referral ledgers
	ledgerModels := []interface{}{
		&models.PromoCode{},
		&models.UsedPromoCode{},
		&models.ReferralEarning{},
		&models.WithdrawalRequest{},
	}

	// Admin and runtime state
	runtimeModels := []interface{}{
		&models.AdminLog{},
		&models.ConversationSession{},
	}

	for _, group := range [][]interface{}{coreModels, ledgerModels, runtimeModels} {
		for _, model := range group {
			if err := db.AutoMigrate(model); err != nil {
				return fmt.Errorf("migration failed for %T: %w", model, err)
			}
		}
	}

	if err := ensureColumns(db); err != nil {
		return err
	}

	logger.Log.Info("database migrations completed")
	return nil
}

// additiveColumns lists columns introduced after the first release. Older
// databases get them added as nullable columns; nothing is ever dropped.
var additiveColumns = []struct {
	model interface{}
	field string
}{
	{&models.User{}, "ActivePromo"},
	{&models.User{}, "LastTicket"},
	{&models.User{}, "LastPlay"},
	{&models.Order{}, "RelayChannelID"},
	{&models.Order{}, "PromoCode"},
	{&models.Order{}, "TxLink"},
	{&models.WithdrawalRequest{}, "RelayChannelID"},
}

func ensureColumns(db *gorm.DB) error {
	m := db.Migrator()
	for _, c := range additiveColumns {
		if m.HasColumn(c.model, c.field) {
			continue
		}
		if err := m.AddColumn(c.model, c.field); err != nil {
			return fmt.Errorf("failed to add column %s to %T: %w", c.field, c.model, err)
		}
		logger.Log.Info("added column", zap.String("column", c.field), zap.String("model", fmt.Sprintf("%T", c.model)))
	}
	return nil
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return DB
}
