package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StoreConfig describes the dependencies required for the catalog store.
type StoreConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Store manages products and the stock movement ledger.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// NewStore constructs the catalog store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("catalog: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Store{db: cfg.Database, now: clock}, nil
}

func (s *Store) nowMillis() int64 {
	return s.now().UnixMilli()
}

// SaveProduct inserts or updates a catalog item and marks it dirty for sync.
func (s *Store) SaveProduct(ctx context.Context, product Product) (Product, error) {
	product.Code = strings.TrimSpace(product.Code)
	if product.Code == "" {
		return Product{}, fmt.Errorf("catalog: product code is required")
	}
	now := s.nowMillis()
	if product.CreatedAtMillis == 0 {
		product.CreatedAtMillis = now
	}
	product.UpdatedAtMillis = now
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&product).Error
	if err != nil {
		return Product{}, err
	}
	return product, nil
}

// ProductByCode returns the catalog item with the given code.
func (s *Store) ProductByCode(ctx context.Context, code string) (Product, error) {
	var product Product
	err := s.db.WithContext(ctx).Where("code = ?", code).Take(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Product{}, ErrProductNotFound
	}
	if err != nil {
		return Product{}, err
	}
	return product, nil
}

// ProductByBarcode returns the catalog item carrying the given barcode.
func (s *Store) ProductByBarcode(ctx context.Context, barcode string) (Product, error) {
	var product Product
	err := s.db.WithContext(ctx).Where("barcode = ?", barcode).Take(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Product{}, ErrProductNotFound
	}
	if err != nil {
		return Product{}, err
	}
	return product, nil
}

// ListProducts returns catalog items, optionally filtered by category, ordered by name.
func (s *Store) ListProducts(ctx context.Context, category string) ([]Product, error) {
	query := s.db.WithContext(ctx).Order("name ASC")
	if category != "" {
		query = query.Where("category = ?", category)
	}
	var all []Product
	if err := query.Find(&all).Error; err != nil {
		return nil, err
	}
	return all, nil
}

// SearchProducts matches the term against product names and codes.
func (s *Store) SearchProducts(ctx context.Context, term string) ([]Product, error) {
	pattern := "%" + strings.TrimSpace(term) + "%"
	var matches []Product
	err := s.db.WithContext(ctx).
		Where("name LIKE ? OR code LIKE ?", pattern, pattern).
		Order("name ASC").
		Find(&matches).Error
	if err != nil {
		return nil, err
	}
	return matches, nil
}

// DeleteProduct removes a catalog item.
func (s *Store) DeleteProduct(ctx context.Context, code string) error {
	result := s.db.WithContext(ctx).Where("code = ?", code).Delete(&Product{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrProductNotFound
	}
	return nil
}

// AppendMovement records a ledger entry and adjusts the product's running
// stock balance in the same database transaction.
func (s *Store) AppendMovement(ctx context.Context, movement StockMovement) (StockMovement, error) {
	if movement.Quantity <= 0 {
		return StockMovement{}, ErrInvalidQuantity
	}
	if movement.Type != MovementIn && movement.Type != MovementOut {
		return StockMovement{}, ErrInvalidMovementType
	}
	if movement.ID == "" {
		movement.ID = uuid.NewString()
	}
	if movement.CreatedAtMillis == 0 {
		movement.CreatedAtMillis = s.nowMillis()
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var product Product
		if err := tx.Where("code = ?", movement.ProductCode).Take(&product).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrProductNotFound
			}
			return err
		}
		if err := tx.Create(&movement).Error; err != nil {
			return err
		}
		return tx.Model(&Product{}).
			Where("code = ?", movement.ProductCode).
			Updates(map[string]interface{}{
				"stock":         gorm.Expr("stock + ?", movement.SignedQuantity()),
				"updated_at_ms": s.nowMillis(),
			}).Error
	})
	if err != nil {
		return StockMovement{}, err
	}
	return movement, nil
}

// MovementsForProduct returns the ledger for one product, newest first.
func (s *Store) MovementsForProduct(ctx context.Context, code string) ([]StockMovement, error) {
	var ledger []StockMovement
	err := s.db.WithContext(ctx).
		Where("product_code = ?", code).
		Order("created_at_ms DESC").
		Find(&ledger).Error
	if err != nil {
		return nil, err
	}
	return ledger, nil
}

// RecalculateStock rebuilds a product's balance from the signed ledger sum.
func (s *Store) RecalculateStock(ctx context.Context, code string) (int, error) {
	var total struct{ Balance int }
	err := s.db.WithContext(ctx).Model(&StockMovement{}).
		Select("COALESCE(SUM(CASE WHEN movement_type = ? THEN -quantity ELSE quantity END), 0) AS balance", MovementOut).
		Where("product_code = ?", code).
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	err = s.db.WithContext(ctx).Model(&Product{}).
		Where("code = ?", code).
		Update("stock", total.Balance).Error
	if err != nil {
		return 0, err
	}
	return total.Balance, nil
}

// PendingSyncProducts returns dirty catalog rows.
func (s *Store) PendingSyncProducts(ctx context.Context) ([]Product, error) {
	var dirty []Product
	err := s.db.WithContext(ctx).
		Where("last_sync_at_ms = 0 OR updated_at_ms > last_sync_at_ms").
		Find(&dirty).Error
	if err != nil {
		return nil, err
	}
	return dirty, nil
}

// PendingSyncMovements returns ledger rows never uploaded. Movements are
// immutable, so the dirty predicate collapses to an unset watermark.
func (s *Store) PendingSyncMovements(ctx context.Context) ([]StockMovement, error) {
	var dirty []StockMovement
	err := s.db.WithContext(ctx).Where("last_sync_at_ms = 0").Find(&dirty).Error
	if err != nil {
		return nil, err
	}
	return dirty, nil
}

// ReplaceProducts writes a downloaded batch, replacing on code conflicts.
func (s *Store) ReplaceProducts(ctx context.Context, batch []Product) error {
	if len(batch) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&batch).Error
}

// ReplaceMovements writes a downloaded batch, replacing on id conflicts.
func (s *Store) ReplaceMovements(ctx context.Context, batch []StockMovement) error {
	if len(batch) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&batch).Error
}

// MarkProductsSynced stamps the sync watermark for the given codes.
func (s *Store) MarkProductsSynced(ctx context.Context, codes []string, syncedAtMillis int64) error {
	if len(codes) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Model(&Product{}).
		Where("code IN ?", codes).
		Update("last_sync_at_ms", syncedAtMillis).Error
}

// MarkMovementsSynced stamps the sync watermark for the given ids.
func (s *Store) MarkMovementsSynced(ctx context.Context, ids []string, syncedAtMillis int64) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Model(&StockMovement{}).
		Where("id IN ?", ids).
		Update("last_sync_at_ms", syncedAtMillis).Error
}
