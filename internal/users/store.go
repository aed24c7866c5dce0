package users

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

// StoreConfig describes the dependencies required for the user store.
type StoreConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Store manages user accounts in the local database.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// NewStore constructs the user store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
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

// Create registers a new account with a hashed password.
func (s *Store) Create(ctx context.Context, username, password string, role Role, fullName string) (User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return User{}, fmt.Errorf("users: username is required")
	}
	if password == "" {
		return User{}, fmt.Errorf("users: password is required")
	}

	now := s.nowMillis()
	user := User{
		ID:              uuid.NewString(),
		Username:        username,
		Role:            role,
		FullName:        strings.TrimSpace(fullName),
		IsActive:        true,
		CreatedAtMillis: now,
		UpdatedAtMillis: now,
	}
	if err := user.SetPassword(password); err != nil {
		return User{}, err
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return User{}, err
	}
	return user, nil
}

// ByID returns the user with the given identifier.
func (s *Store) ByID(ctx context.Context, id string) (User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// ByUsername returns the user with the given login name.
func (s *Store) ByUsername(ctx context.Context, username string) (User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("username = ?", username).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// Authenticate verifies credentials and returns the matching active account.
func (s *Store) Authenticate(ctx context.Context, username, password string) (User, error) {
	user, err := s.ByUsername(ctx, username)
	if errors.Is(err, ErrUserNotFound) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}
	if !user.CheckPassword(password) {
		return User{}, ErrInvalidCredentials
	}
	if !user.IsActive {
		return User{}, ErrUserInactive
	}
	return user, nil
}

// List returns all accounts ordered by username.
func (s *Store) List(ctx context.Context) ([]User, error) {
	var all []User
	if err := s.db.WithContext(ctx).Order("username ASC").Find(&all).Error; err != nil {
		return nil, err
	}
	return all, nil
}

// SetActive toggles the soft-delete flag and marks the row dirty for sync.
func (s *Store) SetActive(ctx context.Context, id string, active bool) error {
	result := s.db.WithContext(ctx).Model(&User{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_active":     active,
			"updated_at_ms": s.nowMillis(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// PendingSync returns rows whose watermark is stale relative to their last modification.
func (s *Store) PendingSync(ctx context.Context) ([]User, error) {
	var dirty []User
	err := s.db.WithContext(ctx).
		Where("last_sync_at_ms = 0 OR updated_at_ms > last_sync_at_ms").
		Find(&dirty).Error
	if err != nil {
		return nil, err
	}
	return dirty, nil
}

// Replace writes a downloaded row, overwriting any local row with the same id.
func (s *Store) Replace(ctx context.Context, user User) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&user).Error
}

// MarkSynced stamps the row's sync watermark.
func (s *Store) MarkSynced(ctx context.Context, id string, syncedAtMillis int64) error {
	return s.db.WithContext(ctx).Model(&User{}).
		Where("id = ?", id).
		Update("last_sync_at_ms", syncedAtMillis).Error
}
