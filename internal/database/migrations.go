package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/masetio/KasirPOP/internal/catalog"
)

const migrationRebuildStockBalances = "2026-06-14_rebuild_stock_balances"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationRebuildStockBalances, apply: rebuildStockBalances},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// rebuildStockBalances realigns the denormalized product stock column with
// the signed sum of the movement ledger. Databases written before checkout
// and ledger writes shared one transaction could drift apart.
func rebuildStockBalances(db *gorm.DB) error {
	return db.Model(&catalog.Product{}).
		Where("code IN (?)", db.Model(&catalog.StockMovement{}).Distinct("product_code")).
		Update("stock", gorm.Expr(
			"(SELECT COALESCE(SUM(CASE WHEN movement_type = 'OUT' THEN -quantity ELSE quantity END), 0) FROM stock_movements WHERE stock_movements.product_code = products.code)",
		)).Error
}
