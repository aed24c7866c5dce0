package users

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Role enumerates the access levels a user can hold.
type Role string

const (
	// RoleAdmin grants catalog, user, and settings management.
	RoleAdmin Role = "admin"
	// RoleKasir grants checkout and transaction history access.
	RoleKasir Role = "kasir"
)

var (
	// ErrInvalidRole indicates an unrecognized role value.
	ErrInvalidRole = errors.New("users: invalid role")
	// ErrInvalidCredentials indicates an unknown username or a wrong password.
	ErrInvalidCredentials = errors.New("users: invalid credentials")
	// ErrUserInactive indicates the account has been deactivated.
	ErrUserInactive = errors.New("users: account is inactive")
	// ErrUserNotFound indicates no user row matches the identifier.
	ErrUserNotFound = errors.New("users: not found")
)

// ParseRole validates raw input and returns a Role.
func ParseRole(rawInput string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(rawInput))) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleKasir:
		return RoleKasir, nil
	default:
		return "", ErrInvalidRole
	}
}

// User models a cashier or administrator account.
//
// UpdatedAtMillis and LastSyncAtMillis drive the sync dirty predicate: a row
// needs upload when LastSyncAtMillis is zero or UpdatedAtMillis exceeds it.
type User struct {
	ID               string `gorm:"column:id;primaryKey;size:190;not null"`
	Username         string `gorm:"column:username;size:190;not null;uniqueIndex"`
	PasswordHash     string `gorm:"column:password;size:190;not null"`
	Role             Role   `gorm:"column:role;size:32;not null"`
	FullName         string `gorm:"column:full_name;size:320;not null"`
	IsActive         bool   `gorm:"column:is_active;not null;default:true"`
	CreatedAtMillis  int64  `gorm:"column:created_at_ms;not null"`
	UpdatedAtMillis  int64  `gorm:"column:updated_at_ms;not null;index"`
	LastSyncAtMillis int64  `gorm:"column:last_sync_at_ms;not null;default:0"`
}

// TableName provides the explicit table binding for GORM.
func (User) TableName() string {
	return "users"
}

// SetPassword hashes and stores the plaintext password.
func (u *User) SetPassword(plaintext string) error {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hashed)
	return nil
}

// CheckPassword reports whether the plaintext matches the stored hash.
func (u *User) CheckPassword(plaintext string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(plaintext)) == nil
}

// NeedsSync reports whether the row is dirty relative to its sync watermark.
func (u *User) NeedsSync() bool {
	return u.LastSyncAtMillis == 0 || u.UpdatedAtMillis > u.LastSyncAtMillis
}
