// Package sync implements the bidirectional sync pass between the local
// store and the hosted backend: per-entity upload of dirty rows, cursor-bound
// download of remote changes, last-write-wins merging for mutable entities,
// and replace-by-key application for append-only ones.
package sync

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/masetio/KasirPOP/internal/catalog"
	"github.com/masetio/KasirPOP/internal/sales"
	"github.com/masetio/KasirPOP/internal/settings"
	"github.com/masetio/KasirPOP/internal/users"
)

// Request batching bounds per upload/download call.
const (
	productBatchSize  = 50
	movementBatchSize = 100
)

// UserStore is the local capability surface for user sync.
type UserStore interface {
	PendingSync(ctx context.Context) ([]users.User, error)
	ByID(ctx context.Context, id string) (users.User, error)
	Replace(ctx context.Context, user users.User) error
	MarkSynced(ctx context.Context, id string, syncedAtMillis int64) error
}

// CatalogStore is the local capability surface for product and ledger sync.
type CatalogStore interface {
	PendingSyncProducts(ctx context.Context) ([]catalog.Product, error)
	ReplaceProducts(ctx context.Context, batch []catalog.Product) error
	MarkProductsSynced(ctx context.Context, codes []string, syncedAtMillis int64) error
	PendingSyncMovements(ctx context.Context) ([]catalog.StockMovement, error)
	ReplaceMovements(ctx context.Context, batch []catalog.StockMovement) error
	MarkMovementsSynced(ctx context.Context, ids []string, syncedAtMillis int64) error
}

// SalesStore is the local capability surface for transaction sync.
type SalesStore interface {
	PendingSync(ctx context.Context) ([]sales.Transaction, error)
	ItemsOf(ctx context.Context, transactionID string) ([]sales.TransactionItem, error)
	Exists(ctx context.Context, id string) (bool, error)
	InsertWithItems(ctx context.Context, transaction sales.Transaction, items []sales.TransactionItem) error
	MarkSynced(ctx context.Context, id string, syncedAtMillis int64) error
}

// SettingsStore is the local capability surface for settings sync.
type SettingsStore interface {
	All(ctx context.Context) ([]settings.AppSetting, error)
	ApplyRemote(ctx context.Context, remote settings.AppSetting) (bool, error)
}

// EngineConfig describes the dependencies required for the sync engine.
type EngineConfig struct {
	Remote   RemoteClient
	Cursors  CursorStore
	Users    UserStore
	Catalog  CatalogStore
	Sales    SalesStore
	Settings SettingsStore
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Engine runs the full sync pass. Entities sync strictly in dependency order
// (users, products, transactions, stock movements, settings) so downloaded
// rows find their referents already present.
type Engine struct {
	remote   RemoteClient
	cursors  CursorStore
	users    UserStore
	catalog  CatalogStore
	sales    SalesStore
	settings SettingsStore
	clock    func() time.Time
	logger   *zap.Logger
	inFlight atomic.Bool
}

// NewEngine constructs the sync engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Remote == nil {
		return nil, fmt.Errorf("sync: remote client is required")
	}
	if cfg.Cursors == nil {
		return nil, fmt.Errorf("sync: cursor store is required")
	}
	if cfg.Users == nil || cfg.Catalog == nil || cfg.Sales == nil || cfg.Settings == nil {
		return nil, fmt.Errorf("sync: all entity stores are required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		remote:   cfg.Remote,
		cursors:  cfg.Cursors,
		users:    cfg.Users,
		catalog:  cfg.Catalog,
		sales:    cfg.Sales,
		settings: cfg.Settings,
		clock:    clock,
		logger:   logger,
	}, nil
}

func (e *Engine) nowMillis() int64 {
	return e.clock().UnixMilli()
}

type entityPass struct {
	name      string
	cursorKey string
	run       func(ctx context.Context, sinceMillis int64, result *EntitySyncResult)
}

// SyncAll runs one full pass and never returns an error: every failure
// becomes data in the report. A concurrent invocation is rejected without
// touching any cursor; callers retry after the in-flight pass finishes.
func (e *Engine) SyncAll(ctx context.Context) SyncReport {
	var report SyncReport

	if !e.inFlight.CompareAndSwap(false, true) {
		report.Message = "sync already running"
		return report
	}
	defer e.inFlight.Store(false)

	if err := e.remote.Ping(ctx); err != nil {
		report.Message = fmt.Sprintf("sync failed: %v", err)
		e.logger.Warn("sync aborted, backend unreachable", zap.Error(err))
		return report
	}

	passes := []entityPass{
		{name: "users", cursorKey: cursorUsers, run: e.syncUsers},
		{name: "products", cursorKey: cursorProducts, run: e.syncProducts},
		{name: "transactions", cursorKey: cursorTransactions, run: e.syncTransactions},
		{name: "stock_movements", cursorKey: cursorMovements, run: e.syncMovements},
		{name: "settings", cursorKey: cursorSettings, run: e.syncSettings},
	}
	slots := report.entityResults()

	for i, pass := range passes {
		*slots[i] = e.runEntity(ctx, pass)
		e.logger.Info("entity sync finished",
			zap.String("entity", pass.name),
			zap.Int("uploaded", slots[i].Uploaded),
			zap.Int("downloaded", slots[i].Downloaded),
			zap.Int("errors", len(slots[i].Errors)))
	}

	if err := e.cursors.Put(ctx, cursorLastFullSync, e.nowMillis()); err != nil {
		report.Settings.addError(fmt.Sprintf("store last sync time: %v", err))
	}
	report.Success = true
	report.Message = "sync completed"
	return report
}

// runEntity wraps one entity pass with cursor bookkeeping and failure
// isolation: a panic or cursor error is recorded, never propagated, and the
// cursor always advances so clean rows are not re-downloaded. Rows that
// failed keep their stale watermark and re-qualify next pass.
func (e *Engine) runEntity(ctx context.Context, pass entityPass) (result EntitySyncResult) {
	defer func() {
		if recovered := recover(); recovered != nil {
			result.addError(fmt.Sprintf("%s sync error: %v", pass.name, recovered))
			e.logger.Error("entity sync panicked",
				zap.String("entity", pass.name),
				zap.Any("panic", recovered))
		}
	}()

	since, err := e.cursors.Get(ctx, pass.cursorKey)
	if err != nil {
		result.addError(fmt.Sprintf("%s cursor read: %v", pass.name, err))
		since = 0
	}

	pass.run(ctx, since, &result)

	if err := e.cursors.Put(ctx, pass.cursorKey, e.nowMillis()); err != nil {
		result.addError(fmt.Sprintf("%s cursor advance: %v", pass.name, err))
	}
	return result
}

// LastSyncTime returns the global last-full-sync timestamp, zero when the
// engine has never completed a pass.
func (e *Engine) LastSyncTime(ctx context.Context) (int64, error) {
	return e.cursors.Get(ctx, cursorLastFullSync)
}

// LastSyncTimeFormatted renders the global timestamp for UI surfaces.
func (e *Engine) LastSyncTimeFormatted(ctx context.Context) string {
	millis, err := e.cursors.Get(ctx, cursorLastFullSync)
	if err != nil || millis <= 0 {
		return "never synced"
	}
	return time.UnixMilli(millis).Format("02/01/2006 15:04:05")
}
