// Package settings stores shop configuration as key-value pairs: shop name,
// receipt footer lines, logo path. Rows carry an updated timestamp but no
// per-row sync watermark; the sync engine compares timestamps directly.
package settings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Well-known setting keys seeded on first run.
const (
	KeyShopName    = "shop_name"
	KeyFooterLine1 = "footer_text_1"
	KeyFooterLine2 = "footer_text_2"
	KeyLogoPath    = "logo_path"
)

// ErrSettingNotFound indicates no row matches the key.
var ErrSettingNotFound = errors.New("settings: not found")

// AppSetting is one shop configuration entry.
type AppSetting struct {
	Key             string `gorm:"column:key;primaryKey;size:190;not null"`
	Value           string `gorm:"column:value;type:text;not null"`
	UpdatedAtMillis int64  `gorm:"column:updated_at_ms;not null"`
}

// TableName provides the explicit table binding for GORM.
func (AppSetting) TableName() string {
	return "app_settings"
}

// StoreConfig describes the dependencies required for the settings store.
type StoreConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Store manages shop settings in the local database.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// NewStore constructs the settings store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("settings: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Store{db: cfg.Database, now: clock}, nil
}

// Get returns the setting for the key.
func (s *Store) Get(ctx context.Context, key string) (AppSetting, error) {
	var setting AppSetting
	err := s.db.WithContext(ctx).Where("key = ?", key).Take(&setting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return AppSetting{}, ErrSettingNotFound
	}
	if err != nil {
		return AppSetting{}, err
	}
	return setting, nil
}

// Put writes a setting and stamps its updated timestamp.
func (s *Store) Put(ctx context.Context, key, value string) error {
	setting := AppSetting{
		Key:             key,
		Value:           value,
		UpdatedAtMillis: s.now().UnixMilli(),
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&setting).Error
}

// All returns every setting ordered by key.
func (s *Store) All(ctx context.Context) ([]AppSetting, error) {
	var all []AppSetting
	if err := s.db.WithContext(ctx).Order("key ASC").Find(&all).Error; err != nil {
		return nil, err
	}
	return all, nil
}

// ApplyRemote writes a downloaded setting only when it is strictly newer than
// the local row, or when no local row exists.
func (s *Store) ApplyRemote(ctx context.Context, remote AppSetting) (bool, error) {
	local, err := s.Get(ctx, remote.Key)
	if err != nil && !errors.Is(err, ErrSettingNotFound) {
		return false, err
	}
	if err == nil && remote.UpdatedAtMillis <= local.UpdatedAtMillis {
		return false, nil
	}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&remote).Error
	if err != nil {
		return false, err
	}
	return true, nil
}
