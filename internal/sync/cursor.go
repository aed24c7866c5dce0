package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Cursor keys, one per entity plus the global last-full-sync marker. Values
// are unix millisecond timestamps; zero means never synced.
const (
	cursorUsers        = "users_last_sync"
	cursorProducts     = "products_last_sync"
	cursorTransactions = "transactions_last_sync"
	cursorMovements    = "stock_movements_last_sync"
	cursorSettings     = "settings_last_sync"
	cursorLastFullSync = "last_sync_time"
)

// CursorStore persists per-entity sync watermarks. It is passed into the
// engine explicitly so passes can run against fixture cursors in tests.
type CursorStore interface {
	// Get returns the stored timestamp for the key, or zero when absent.
	Get(ctx context.Context, key string) (int64, error)
	// Put stores the timestamp for the key.
	Put(ctx context.Context, key string, millis int64) error
}

// CursorRecord is the persisted form of one watermark. It is exported so the
// database package migrates the same schema the store reads and writes.
type CursorRecord struct {
	Key    string `gorm:"column:key;primaryKey;size:190;not null"`
	Millis int64  `gorm:"column:millis;not null"`
}

// TableName provides the explicit table binding for GORM.
func (CursorRecord) TableName() string {
	return "sync_cursors"
}

// DatabaseCursors is the production CursorStore, backed by a small key-value
// table kept apart from the entity tables.
type DatabaseCursors struct {
	db *gorm.DB
}

// NewDatabaseCursors constructs the GORM-backed cursor store.
func NewDatabaseCursors(db *gorm.DB) (*DatabaseCursors, error) {
	if db == nil {
		return nil, fmt.Errorf("sync: database connection required")
	}
	return &DatabaseCursors{db: db}, nil
}

// Get returns the stored timestamp for the key, or zero when absent.
func (c *DatabaseCursors) Get(ctx context.Context, key string) (int64, error) {
	var row CursorRecord
	err := c.db.WithContext(ctx).Where("key = ?", key).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return row.Millis, nil
}

// Put stores the timestamp for the key.
func (c *DatabaseCursors) Put(ctx context.Context, key string, millis int64) error {
	row := CursorRecord{Key: key, Millis: millis}
	return c.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&row).Error
}

// MemoryCursors is an in-memory CursorStore for tests.
type MemoryCursors struct {
	mu     sync.Mutex
	values map[string]int64
}

// NewMemoryCursors constructs an empty in-memory cursor store.
func NewMemoryCursors() *MemoryCursors {
	return &MemoryCursors{values: map[string]int64{}}
}

// Get returns the stored timestamp for the key, or zero when absent.
func (c *MemoryCursors) Get(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.values[key], nil
}

// Put stores the timestamp for the key.
func (c *MemoryCursors) Put(_ context.Context, key string, millis int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = millis
	return nil
}
