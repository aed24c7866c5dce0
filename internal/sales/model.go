package sales

import (
	"errors"
	"strings"
)

// PaymentMethod enumerates how a sale was settled.
type PaymentMethod string

const (
	// PaymentCash settles immediately with cash tendered.
	PaymentCash PaymentMethod = "CASH"
	// PaymentQRIS settles immediately through a QR payment.
	PaymentQRIS PaymentMethod = "QRIS"
	// PaymentDebt defers settlement; the transaction starts UNPAID.
	PaymentDebt PaymentMethod = "DEBT"
)

// PaymentStatus enumerates the settlement state of a sale.
type PaymentStatus string

const (
	// StatusPaid marks a settled sale.
	StatusPaid PaymentStatus = "PAID"
	// StatusUnpaid marks an outstanding debt sale.
	StatusUnpaid PaymentStatus = "UNPAID"
)

var (
	// ErrInvalidPaymentMethod indicates an unrecognized payment method.
	ErrInvalidPaymentMethod = errors.New("sales: invalid payment method")
	// ErrTransactionNotFound indicates no transaction row matches the id.
	ErrTransactionNotFound = errors.New("sales: transaction not found")
	// ErrAlreadyPaid indicates a settle attempt on a PAID transaction.
	ErrAlreadyPaid = errors.New("sales: transaction already paid")
	// ErrEmptyCart indicates a checkout without line items.
	ErrEmptyCart = errors.New("sales: checkout requires at least one item")
	// ErrInsufficientStock indicates a line asking for more units than are on hand.
	ErrInsufficientStock = errors.New("sales: insufficient stock")
)

// ParsePaymentMethod validates raw input and returns a PaymentMethod.
func ParsePaymentMethod(rawInput string) (PaymentMethod, error) {
	switch PaymentMethod(strings.ToUpper(strings.TrimSpace(rawInput))) {
	case PaymentCash:
		return PaymentCash, nil
	case PaymentQRIS:
		return PaymentQRIS, nil
	case PaymentDebt:
		return PaymentDebt, nil
	default:
		return "", ErrInvalidPaymentMethod
	}
}

// Transaction models one completed checkout. Status flips UNPAID to PAID at
// most once; rows are otherwise immutable after creation.
type Transaction struct {
	ID               string        `gorm:"column:id;primaryKey;size:190;not null"`
	CashierID        string        `gorm:"column:cashier_id;size:190;not null;index"`
	CashierName      string        `gorm:"column:cashier_name;size:320;not null"`
	TotalAmount      float64       `gorm:"column:total_amount;not null"`
	PaymentMethod    PaymentMethod `gorm:"column:payment_method;size:16;not null"`
	PaymentStatus    PaymentStatus `gorm:"column:payment_status;size:16;not null;index"`
	CashReceived     *float64      `gorm:"column:cash_received"`
	CashChange       *float64      `gorm:"column:cash_change"`
	CustomerName     *string       `gorm:"column:customer_name;size:320"`
	Note             *string       `gorm:"column:note;type:text"`
	CreatedAtMillis  int64         `gorm:"column:created_at_ms;not null;index"`
	PaidAtMillis     *int64        `gorm:"column:paid_at_ms"`
	LastSyncAtMillis int64         `gorm:"column:last_sync_at_ms;not null;default:0"`
}

// TableName provides the explicit table binding for GORM.
func (Transaction) TableName() string {
	return "transactions"
}

// TransactionItem is a line item snapshot taken at sale time. Items are only
// created together with their parent transaction and never change afterwards.
type TransactionItem struct {
	ID               string  `gorm:"column:id;primaryKey;size:190;not null"`
	TransactionID    string  `gorm:"column:transaction_id;size:190;not null;index"`
	ProductCode      string  `gorm:"column:product_code;size:190;not null"`
	ProductName      string  `gorm:"column:product_name;size:320;not null"`
	Quantity         int     `gorm:"column:quantity;not null"`
	UnitPrice        float64 `gorm:"column:unit_price;not null"`
	Subtotal         float64 `gorm:"column:subtotal;not null"`
	LastSyncAtMillis int64   `gorm:"column:last_sync_at_ms;not null;default:0"`
}

// TableName provides the explicit table binding for GORM.
func (TransactionItem) TableName() string {
	return "transaction_items"
}
