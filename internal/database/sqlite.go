package database

import (
	"fmt"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/masetio/KasirPOP/internal/catalog"
	"github.com/masetio/KasirPOP/internal/sales"
	"github.com/masetio/KasirPOP/internal/settings"
	syncstore "github.com/masetio/KasirPOP/internal/sync"
	"github.com/masetio/KasirPOP/internal/users"
)

// OpenSQLite establishes a SQLite connection, performs schema migrations,
// and seeds default rows on a fresh database.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(
		&users.User{},
		&catalog.Product{},
		&catalog.StockMovement{},
		&sales.Transaction{},
		&sales.TransactionItem{},
		&settings.AppSetting{},
		&syncstore.CursorRecord{},
		&migrationRecord{},
	)
	if err != nil {
		return nil, err
	}

	if err := applyMigrations(db, logger); err != nil {
		return nil, err
	}

	if err := seedDefaults(db, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("path", path))
	}

	return db, nil
}
