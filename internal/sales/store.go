package sales

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/masetio/KasirPOP/internal/catalog"
)

// CheckoutLine describes one cart entry at checkout time.
type CheckoutLine struct {
	ProductCode string
	Quantity    int
}

// CheckoutRequest describes a sale to be recorded.
type CheckoutRequest struct {
	CashierID     string
	CashierName   string
	PaymentMethod PaymentMethod
	CashReceived  *float64
	CustomerName  *string
	Note          *string
	Lines         []CheckoutLine
}

// StoreConfig describes the dependencies required for the sales store.
type StoreConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Store manages transactions and their line items.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// NewStore constructs the sales store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("sales: database connection required")
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

// Checkout records a sale: the transaction row, its line item snapshots, one
// OUT ledger entry per line, and the stock decrement, all in one database
// transaction. Prices are snapshotted from the catalog at call time.
func (s *Store) Checkout(ctx context.Context, request CheckoutRequest) (Transaction, error) {
	if len(request.Lines) == 0 {
		return Transaction{}, ErrEmptyCart
	}
	if request.PaymentMethod != PaymentCash && request.PaymentMethod != PaymentQRIS && request.PaymentMethod != PaymentDebt {
		return Transaction{}, ErrInvalidPaymentMethod
	}
	for _, line := range request.Lines {
		if line.Quantity <= 0 {
			return Transaction{}, catalog.ErrInvalidQuantity
		}
	}

	now := s.nowMillis()
	transaction := Transaction{
		ID:              uuid.NewString(),
		CashierID:       request.CashierID,
		CashierName:     request.CashierName,
		PaymentMethod:   request.PaymentMethod,
		PaymentStatus:   StatusPaid,
		CashReceived:    request.CashReceived,
		CustomerName:    request.CustomerName,
		Note:            request.Note,
		CreatedAtMillis: now,
	}
	if request.PaymentMethod == PaymentDebt {
		transaction.PaymentStatus = StatusUnpaid
	} else {
		paidAt := now
		transaction.PaidAtMillis = &paidAt
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		items := make([]TransactionItem, 0, len(request.Lines))
		movements := make([]catalog.StockMovement, 0, len(request.Lines))
		var total float64

		for _, line := range request.Lines {
			var product catalog.Product
			if err := tx.Where("code = ?", line.ProductCode).Take(&product).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return catalog.ErrProductNotFound
				}
				return err
			}
			if line.Quantity > product.Stock {
				return fmt.Errorf("%w: %s has %d on hand", ErrInsufficientStock, product.Code, product.Stock)
			}

			subtotal := product.SellPrice * float64(line.Quantity)
			total += subtotal
			items = append(items, TransactionItem{
				ID:            uuid.NewString(),
				TransactionID: transaction.ID,
				ProductCode:   product.Code,
				ProductName:   product.Name,
				Quantity:      line.Quantity,
				UnitPrice:     product.SellPrice,
				Subtotal:      subtotal,
			})

			reference := transaction.ID
			movements = append(movements, catalog.StockMovement{
				ID:              uuid.NewString(),
				ProductCode:     product.Code,
				Type:            catalog.MovementOut,
				Quantity:        line.Quantity,
				ReferenceID:     &reference,
				CreatedBy:       request.CashierID,
				CreatedAtMillis: now,
			})

			err := tx.Model(&catalog.Product{}).
				Where("code = ?", product.Code).
				Updates(map[string]interface{}{
					"stock":         gorm.Expr("stock - ?", line.Quantity),
					"updated_at_ms": now,
				}).Error
			if err != nil {
				return err
			}
		}

		transaction.TotalAmount = total
		if request.CashReceived != nil {
			change := *request.CashReceived - total
			transaction.CashChange = &change
		}

		if err := tx.Create(&transaction).Error; err != nil {
			return err
		}
		if err := tx.Create(&items).Error; err != nil {
			return err
		}
		return tx.Create(&movements).Error
	})
	if err != nil {
		return Transaction{}, err
	}
	return transaction, nil
}

// MarkPaid settles an outstanding debt transaction exactly once.
func (s *Store) MarkPaid(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var transaction Transaction
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).
			Take(&transaction).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrTransactionNotFound
		}
		if err != nil {
			return err
		}
		if transaction.PaymentStatus == StatusPaid {
			return ErrAlreadyPaid
		}
		return tx.Model(&Transaction{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"payment_status": StatusPaid,
				"paid_at_ms":     s.nowMillis(),
			}).Error
	})
}

// ByID returns the transaction with the given identifier.
func (s *Store) ByID(ctx context.Context, id string) (Transaction, error) {
	var transaction Transaction
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&transaction).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Transaction{}, ErrTransactionNotFound
	}
	if err != nil {
		return Transaction{}, err
	}
	return transaction, nil
}

// Exists reports whether a transaction row is present locally.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Transaction{}).
		Where("id = ?", id).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ItemsOf returns the line items belonging to one transaction.
func (s *Store) ItemsOf(ctx context.Context, transactionID string) ([]TransactionItem, error) {
	var items []TransactionItem
	err := s.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// ByDateRange returns transactions created inside the window, newest first.
func (s *Store) ByDateRange(ctx context.Context, fromMillis, toMillis int64) ([]Transaction, error) {
	var matches []Transaction
	err := s.db.WithContext(ctx).
		Where("created_at_ms BETWEEN ? AND ?", fromMillis, toMillis).
		Order("created_at_ms DESC").
		Find(&matches).Error
	if err != nil {
		return nil, err
	}
	return matches, nil
}

// Unpaid returns outstanding debt transactions, newest first.
func (s *Store) Unpaid(ctx context.Context) ([]Transaction, error) {
	var matches []Transaction
	err := s.db.WithContext(ctx).
		Where("payment_status = ?", StatusUnpaid).
		Order("created_at_ms DESC").
		Find(&matches).Error
	if err != nil {
		return nil, err
	}
	return matches, nil
}

// PendingSync returns transactions never uploaded. Sales are immutable apart
// from the settle flip, so the dirty predicate collapses to an unset watermark.
func (s *Store) PendingSync(ctx context.Context) ([]Transaction, error) {
	var dirty []Transaction
	err := s.db.WithContext(ctx).Where("last_sync_at_ms = 0").Find(&dirty).Error
	if err != nil {
		return nil, err
	}
	return dirty, nil
}

// InsertWithItems writes a downloaded transaction and its line items.
func (s *Store) InsertWithItems(ctx context.Context, transaction Transaction, items []TransactionItem) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&transaction).Error; err != nil {
			return err
		}
		if len(items) == 0 {
			return nil
		}
		return tx.Create(&items).Error
	})
}

// MarkSynced stamps the transaction's sync watermark.
func (s *Store) MarkSynced(ctx context.Context, id string, syncedAtMillis int64) error {
	return s.db.WithContext(ctx).Model(&Transaction{}).
		Where("id = ?", id).
		Update("last_sync_at_ms", syncedAtMillis).Error
}
