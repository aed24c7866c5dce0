package catalog

import (
	"errors"
	"strings"
)

// MovementType enumerates stock ledger directions.
type MovementType string

const (
	// MovementIn records goods received into stock.
	MovementIn MovementType = "IN"
	// MovementOut records goods leaving stock, usually through a sale.
	MovementOut MovementType = "OUT"
)

var (
	// ErrProductNotFound indicates no product row matches the code.
	ErrProductNotFound = errors.New("catalog: product not found")
	// ErrInvalidMovementType indicates an unrecognized ledger direction.
	ErrInvalidMovementType = errors.New("catalog: invalid movement type")
	// ErrInvalidQuantity indicates a non-positive movement quantity.
	ErrInvalidQuantity = errors.New("catalog: quantity must be positive")
)

// ParseMovementType validates raw input and returns a MovementType.
func ParseMovementType(rawInput string) (MovementType, error) {
	switch MovementType(strings.ToUpper(strings.TrimSpace(rawInput))) {
	case MovementIn:
		return MovementIn, nil
	case MovementOut:
		return MovementOut, nil
	default:
		return "", ErrInvalidMovementType
	}
}

// Product models a catalog item. Stock is a denormalized running balance; it
// must equal the signed sum of the movement ledger for the same code.
type Product struct {
	Code             string  `gorm:"column:code;primaryKey;size:190;not null"`
	Name             string  `gorm:"column:name;size:320;not null;index"`
	Unit             string  `gorm:"column:unit;size:32;not null"`
	SellPrice        float64 `gorm:"column:sell_price;not null"`
	CostPrice        float64 `gorm:"column:cost_price;not null"`
	Barcode          *string `gorm:"column:barcode;size:190;index"`
	Category         string  `gorm:"column:category;size:190;not null;index"`
	Stock            int     `gorm:"column:stock;not null;default:0"`
	CreatedAtMillis  int64   `gorm:"column:created_at_ms;not null"`
	UpdatedAtMillis  int64   `gorm:"column:updated_at_ms;not null;index"`
	LastSyncAtMillis int64   `gorm:"column:last_sync_at_ms;not null;default:0"`
}

// TableName provides the explicit table binding for GORM.
func (Product) TableName() string {
	return "products"
}

// NeedsSync reports whether the row is dirty relative to its sync watermark.
func (p *Product) NeedsSync() bool {
	return p.LastSyncAtMillis == 0 || p.UpdatedAtMillis > p.LastSyncAtMillis
}

// StockMovement is an append-only ledger entry against one product. Rows are
// never updated after creation except for the sync watermark.
type StockMovement struct {
	ID               string       `gorm:"column:id;primaryKey;size:190;not null"`
	ProductCode      string       `gorm:"column:product_code;size:190;not null;index"`
	Type             MovementType `gorm:"column:movement_type;size:8;not null"`
	Quantity         int          `gorm:"column:quantity;not null"`
	CostPrice        *float64     `gorm:"column:cost_price"`
	ReferenceID      *string      `gorm:"column:reference_id;size:190;index"`
	Note             *string      `gorm:"column:note;type:text"`
	CreatedBy        string       `gorm:"column:created_by;size:190;not null"`
	CreatedAtMillis  int64        `gorm:"column:created_at_ms;not null;index"`
	LastSyncAtMillis int64        `gorm:"column:last_sync_at_ms;not null;default:0"`
}

// TableName provides the explicit table binding for GORM.
func (StockMovement) TableName() string {
	return "stock_movements"
}

// SignedQuantity returns the quantity with the ledger direction applied.
func (m *StockMovement) SignedQuantity() int {
	if m.Type == MovementOut {
		return -m.Quantity
	}
	return m.Quantity
}
