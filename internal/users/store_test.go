package users

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type testClock struct {
	millis int64
}

func (c *testClock) Now() time.Time {
	return time.UnixMilli(c.millis)
}

func newTestStore(testContext *testing.T) (*Store, *testClock) {
	testContext.Helper()

	databasePath := filepath.Join(testContext.TempDir(), "users.db")
	database, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}
	if err := database.AutoMigrate(&User{}); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}

	clock := &testClock{millis: 1700000000000}
	store, err := NewStore(StoreConfig{Database: database, Clock: clock.Now})
	if err != nil {
		testContext.Fatalf("failed to build store: %v", err)
	}
	return store, clock
}

func TestCreateAndAuthenticate(testContext *testing.T) {
	store, _ := newTestStore(testContext)
	ctx := context.Background()

	created, err := store.Create(ctx, "budi", "rahasia123", RoleKasir, "Budi Santoso")
	if err != nil {
		testContext.Fatalf("failed to create user: %v", err)
	}
	if created.ID == "" || !created.IsActive {
		testContext.Fatalf("created user must be active with an id, got %+v", created)
	}
	if created.PasswordHash == "rahasia123" {
		testContext.Fatalf("password must be stored hashed")
	}

	authenticated, err := store.Authenticate(ctx, "budi", "rahasia123")
	if err != nil {
		testContext.Fatalf("expected login to succeed: %v", err)
	}
	if authenticated.ID != created.ID {
		testContext.Fatalf("unexpected account: %+v", authenticated)
	}

	if _, err := store.Authenticate(ctx, "budi", "salah"); !errors.Is(err, ErrInvalidCredentials) {
		testContext.Fatalf("wrong password must fail with ErrInvalidCredentials, got %v", err)
	}
	if _, err := store.Authenticate(ctx, "nonexistent", "apapun"); !errors.Is(err, ErrInvalidCredentials) {
		testContext.Fatalf("unknown username must fail with ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthenticateRejectsInactiveAccounts(testContext *testing.T) {
	store, _ := newTestStore(testContext)
	ctx := context.Background()

	created, err := store.Create(ctx, "sari", "rahasia123", RoleAdmin, "Sari Dewi")
	if err != nil {
		testContext.Fatalf("failed to create user: %v", err)
	}
	if err := store.SetActive(ctx, created.ID, false); err != nil {
		testContext.Fatalf("failed to deactivate: %v", err)
	}
	if _, err := store.Authenticate(ctx, "sari", "rahasia123"); !errors.Is(err, ErrUserInactive) {
		testContext.Fatalf("inactive account must fail with ErrUserInactive, got %v", err)
	}
}

func TestSetActiveUnknownUser(testContext *testing.T) {
	store, _ := newTestStore(testContext)

	err := store.SetActive(context.Background(), "no-such-id", false)
	if !errors.Is(err, ErrUserNotFound) {
		testContext.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestPendingSyncLifecycle(testContext *testing.T) {
	store, clock := newTestStore(testContext)
	ctx := context.Background()

	created, err := store.Create(ctx, "budi", "rahasia123", RoleKasir, "")
	if err != nil {
		testContext.Fatalf("failed to create user: %v", err)
	}

	dirty, err := store.PendingSync(ctx)
	if err != nil {
		testContext.Fatalf("failed to query pending rows: %v", err)
	}
	if len(dirty) != 1 {
		testContext.Fatalf("fresh row must be pending, got %d", len(dirty))
	}

	clock.millis += 1000
	if err := store.MarkSynced(ctx, created.ID, clock.millis); err != nil {
		testContext.Fatalf("failed to stamp watermark: %v", err)
	}
	dirty, err = store.PendingSync(ctx)
	if err != nil {
		testContext.Fatalf("failed to query pending rows: %v", err)
	}
	if len(dirty) != 0 {
		testContext.Fatalf("stamped row must not be pending, got %d", len(dirty))
	}

	// A later edit re-dirties the row.
	clock.millis += 1000
	if err := store.SetActive(ctx, created.ID, false); err != nil {
		testContext.Fatalf("failed to deactivate: %v", err)
	}
	dirty, err = store.PendingSync(ctx)
	if err != nil {
		testContext.Fatalf("failed to query pending rows: %v", err)
	}
	if len(dirty) != 1 {
		testContext.Fatalf("edited row must be pending again, got %d", len(dirty))
	}
}

func TestReplaceOverwritesExistingRow(testContext *testing.T) {
	store, _ := newTestStore(testContext)
	ctx := context.Background()

	created, err := store.Create(ctx, "budi", "rahasia123", RoleKasir, "Budi")
	if err != nil {
		testContext.Fatalf("failed to create user: %v", err)
	}

	downloaded := created
	downloaded.FullName = "Budi Santoso"
	downloaded.UpdatedAtMillis = created.UpdatedAtMillis + 5000
	downloaded.LastSyncAtMillis = created.UpdatedAtMillis + 5000
	if err := store.Replace(ctx, downloaded); err != nil {
		testContext.Fatalf("failed to replace row: %v", err)
	}

	stored, err := store.ByID(ctx, created.ID)
	if err != nil {
		testContext.Fatalf("failed to reload user: %v", err)
	}
	if stored.FullName != "Budi Santoso" {
		testContext.Fatalf("replace must overwrite, got %q", stored.FullName)
	}

	all, err := store.List(ctx)
	if err != nil {
		testContext.Fatalf("failed to list users: %v", err)
	}
	if len(all) != 1 {
		testContext.Fatalf("replace must not duplicate rows, got %d", len(all))
	}
}
