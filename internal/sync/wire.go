package sync

import (
	"github.com/masetio/KasirPOP/internal/catalog"
	"github.com/masetio/KasirPOP/internal/sales"
	"github.com/masetio/KasirPOP/internal/settings"
	"github.com/masetio/KasirPOP/internal/users"
)

// Wire payloads mirror the remote tables, which use snake_case column names.
// Conversions stamp timestamps the way the sync algorithm expects: uploads
// carry a fresh updated_at, downloads land locally with a fresh watermark.

// RemoteUser is the wire shape of the users table.
type RemoteUser struct {
	ID              string `json:"id"`
	Username        string `json:"username"`
	Password        string `json:"password"`
	Role            string `json:"role"`
	FullName        string `json:"full_name"`
	IsActive        bool   `json:"is_active"`
	CreatedAtMillis int64  `json:"created_at"`
	UpdatedAtMillis int64  `json:"updated_at"`
}

func toRemoteUser(user users.User, nowMillis int64) RemoteUser {
	return RemoteUser{
		ID:              user.ID,
		Username:        user.Username,
		Password:        user.PasswordHash,
		Role:            string(user.Role),
		FullName:        user.FullName,
		IsActive:        user.IsActive,
		CreatedAtMillis: user.CreatedAtMillis,
		UpdatedAtMillis: nowMillis,
	}
}

func (r RemoteUser) toLocal(nowMillis int64) users.User {
	return users.User{
		ID:               r.ID,
		Username:         r.Username,
		PasswordHash:     r.Password,
		Role:             users.Role(r.Role),
		FullName:         r.FullName,
		IsActive:         r.IsActive,
		CreatedAtMillis:  r.CreatedAtMillis,
		UpdatedAtMillis:  r.UpdatedAtMillis,
		LastSyncAtMillis: nowMillis,
	}
}

// RemoteProduct is the wire shape of the products table.
type RemoteProduct struct {
	Code            string  `json:"code"`
	Name            string  `json:"name"`
	Unit            string  `json:"unit"`
	SellPrice       float64 `json:"sell_price"`
	CostPrice       float64 `json:"cost_price"`
	Barcode         *string `json:"barcode"`
	Category        string  `json:"category"`
	Stock           int     `json:"stock"`
	CreatedAtMillis int64   `json:"created_at"`
	UpdatedAtMillis int64   `json:"updated_at"`
}

func toRemoteProduct(product catalog.Product, nowMillis int64) RemoteProduct {
	return RemoteProduct{
		Code:            product.Code,
		Name:            product.Name,
		Unit:            product.Unit,
		SellPrice:       product.SellPrice,
		CostPrice:       product.CostPrice,
		Barcode:         product.Barcode,
		Category:        product.Category,
		Stock:           product.Stock,
		CreatedAtMillis: product.CreatedAtMillis,
		UpdatedAtMillis: nowMillis,
	}
}

func (r RemoteProduct) toLocal(nowMillis int64) catalog.Product {
	return catalog.Product{
		Code:             r.Code,
		Name:             r.Name,
		Unit:             r.Unit,
		SellPrice:        r.SellPrice,
		CostPrice:        r.CostPrice,
		Barcode:          r.Barcode,
		Category:         r.Category,
		Stock:            r.Stock,
		CreatedAtMillis:  r.CreatedAtMillis,
		UpdatedAtMillis:  r.UpdatedAtMillis,
		LastSyncAtMillis: nowMillis,
	}
}

func convertProducts(batch []RemoteProduct, nowMillis int64) []catalog.Product {
	converted := make([]catalog.Product, 0, len(batch))
	for _, row := range batch {
		converted = append(converted, row.toLocal(nowMillis))
	}
	return converted
}

// RemoteTransaction is the wire shape of the transactions table.
type RemoteTransaction struct {
	ID              string   `json:"id"`
	CashierID       string   `json:"cashier_id"`
	CashierName     string   `json:"cashier_name"`
	TotalAmount     float64  `json:"total_amount"`
	PaymentMethod   string   `json:"payment_method"`
	PaymentStatus   string   `json:"payment_status"`
	CashReceived    *float64 `json:"cash_received"`
	CashChange      *float64 `json:"cash_change"`
	CustomerName    *string  `json:"customer_name"`
	Note            *string  `json:"note"`
	CreatedAtMillis int64    `json:"created_at"`
	PaidAtMillis    *int64   `json:"paid_at"`
}

func toRemoteTransaction(transaction sales.Transaction) RemoteTransaction {
	return RemoteTransaction{
		ID:              transaction.ID,
		CashierID:       transaction.CashierID,
		CashierName:     transaction.CashierName,
		TotalAmount:     transaction.TotalAmount,
		PaymentMethod:   string(transaction.PaymentMethod),
		PaymentStatus:   string(transaction.PaymentStatus),
		CashReceived:    transaction.CashReceived,
		CashChange:      transaction.CashChange,
		CustomerName:    transaction.CustomerName,
		Note:            transaction.Note,
		CreatedAtMillis: transaction.CreatedAtMillis,
		PaidAtMillis:    transaction.PaidAtMillis,
	}
}

func (r RemoteTransaction) toLocal(nowMillis int64) sales.Transaction {
	return sales.Transaction{
		ID:               r.ID,
		CashierID:        r.CashierID,
		CashierName:      r.CashierName,
		TotalAmount:      r.TotalAmount,
		PaymentMethod:    sales.PaymentMethod(r.PaymentMethod),
		PaymentStatus:    sales.PaymentStatus(r.PaymentStatus),
		CashReceived:     r.CashReceived,
		CashChange:       r.CashChange,
		CustomerName:     r.CustomerName,
		Note:             r.Note,
		CreatedAtMillis:  r.CreatedAtMillis,
		PaidAtMillis:     r.PaidAtMillis,
		LastSyncAtMillis: nowMillis,
	}
}

// RemoteTransactionItem is the wire shape of the transaction_items table.
type RemoteTransactionItem struct {
	ID            string  `json:"id"`
	TransactionID string  `json:"transaction_id"`
	ProductCode   string  `json:"product_code"`
	ProductName   string  `json:"product_name"`
	Quantity      int     `json:"quantity"`
	UnitPrice     float64 `json:"unit_price"`
	Subtotal      float64 `json:"subtotal"`
}

func toRemoteTransactionItem(item sales.TransactionItem) RemoteTransactionItem {
	return RemoteTransactionItem{
		ID:            item.ID,
		TransactionID: item.TransactionID,
		ProductCode:   item.ProductCode,
		ProductName:   item.ProductName,
		Quantity:      item.Quantity,
		UnitPrice:     item.UnitPrice,
		Subtotal:      item.Subtotal,
	}
}

func (r RemoteTransactionItem) toLocal(nowMillis int64) sales.TransactionItem {
	return sales.TransactionItem{
		ID:               r.ID,
		TransactionID:    r.TransactionID,
		ProductCode:      r.ProductCode,
		ProductName:      r.ProductName,
		Quantity:         r.Quantity,
		UnitPrice:        r.UnitPrice,
		Subtotal:         r.Subtotal,
		LastSyncAtMillis: nowMillis,
	}
}

func convertItems(batch []RemoteTransactionItem, nowMillis int64) []sales.TransactionItem {
	converted := make([]sales.TransactionItem, 0, len(batch))
	for _, row := range batch {
		converted = append(converted, row.toLocal(nowMillis))
	}
	return converted
}

// RemoteStockMovement is the wire shape of the stock_movements table.
type RemoteStockMovement struct {
	ID              string   `json:"id"`
	ProductCode     string   `json:"product_code"`
	MovementType    string   `json:"movement_type"`
	Quantity        int      `json:"quantity"`
	CostPrice       *float64 `json:"cost_price"`
	ReferenceID     *string  `json:"reference_id"`
	Note            *string  `json:"note"`
	CreatedBy       string   `json:"created_by"`
	CreatedAtMillis int64    `json:"created_at"`
}

func toRemoteMovement(movement catalog.StockMovement) RemoteStockMovement {
	return RemoteStockMovement{
		ID:              movement.ID,
		ProductCode:     movement.ProductCode,
		MovementType:    string(movement.Type),
		Quantity:        movement.Quantity,
		CostPrice:       movement.CostPrice,
		ReferenceID:     movement.ReferenceID,
		Note:            movement.Note,
		CreatedBy:       movement.CreatedBy,
		CreatedAtMillis: movement.CreatedAtMillis,
	}
}

func (r RemoteStockMovement) toLocal(nowMillis int64) catalog.StockMovement {
	return catalog.StockMovement{
		ID:               r.ID,
		ProductCode:      r.ProductCode,
		Type:             catalog.MovementType(r.MovementType),
		Quantity:         r.Quantity,
		CostPrice:        r.CostPrice,
		ReferenceID:      r.ReferenceID,
		Note:             r.Note,
		CreatedBy:        r.CreatedBy,
		CreatedAtMillis:  r.CreatedAtMillis,
		LastSyncAtMillis: nowMillis,
	}
}

func convertMovements(batch []RemoteStockMovement, nowMillis int64) []catalog.StockMovement {
	converted := make([]catalog.StockMovement, 0, len(batch))
	for _, row := range batch {
		converted = append(converted, row.toLocal(nowMillis))
	}
	return converted
}

// RemoteAppSetting is the wire shape of the app_settings table.
type RemoteAppSetting struct {
	Key             string `json:"key"`
	Value           string `json:"value"`
	UpdatedAtMillis int64  `json:"updated_at"`
}

func toRemoteSetting(setting settings.AppSetting) RemoteAppSetting {
	return RemoteAppSetting{
		Key:             setting.Key,
		Value:           setting.Value,
		UpdatedAtMillis: setting.UpdatedAtMillis,
	}
}

func (r RemoteAppSetting) toLocal() settings.AppSetting {
	return settings.AppSetting{
		Key:             r.Key,
		Value:           r.Value,
		UpdatedAtMillis: r.UpdatedAtMillis,
	}
}
