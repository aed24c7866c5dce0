package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/masetio/KasirPOP/internal/catalog"
	"github.com/masetio/KasirPOP/internal/sales"
	"github.com/masetio/KasirPOP/internal/settings"
	"github.com/masetio/KasirPOP/internal/users"
)

type fakeRemote struct {
	pingErr   error
	pingGate  chan struct{}
	pingCalls int

	remoteUsers        []RemoteUser
	remoteProducts     []RemoteProduct
	remoteTransactions []RemoteTransaction
	remoteItems        map[string][]RemoteTransactionItem
	remoteMovements    []RemoteStockMovement
	remoteSettings     []RemoteAppSetting

	insertedUsers        []RemoteUser
	upsertedUsers        []RemoteUser
	productBatches       [][]RemoteProduct
	insertedTransactions []RemoteTransaction
	insertedItems        [][]RemoteTransactionItem
	movementBatches      [][]RemoteStockMovement
	upsertedSettings     []RemoteAppSetting

	insertUserErr    func(user RemoteUser) error
	insertTxErr      func(transaction RemoteTransaction) error
	upsertSettingErr error
}

func (r *fakeRemote) Ping(ctx context.Context) error {
	r.pingCalls++
	if r.pingGate != nil {
		<-r.pingGate
	}
	return r.pingErr
}

func (r *fakeRemote) UsersSince(ctx context.Context, sinceMillis int64) ([]RemoteUser, error) {
	return r.remoteUsers, nil
}

func (r *fakeRemote) InsertUser(ctx context.Context, user RemoteUser) error {
	if r.insertUserErr != nil {
		if err := r.insertUserErr(user); err != nil {
			return err
		}
	}
	r.insertedUsers = append(r.insertedUsers, user)
	return nil
}

func (r *fakeRemote) UpsertUser(ctx context.Context, user RemoteUser) error {
	r.upsertedUsers = append(r.upsertedUsers, user)
	return nil
}

func (r *fakeRemote) ProductsSince(ctx context.Context, sinceMillis int64) ([]RemoteProduct, error) {
	return r.remoteProducts, nil
}

func (r *fakeRemote) UpsertProducts(ctx context.Context, batch []RemoteProduct) error {
	r.productBatches = append(r.productBatches, batch)
	return nil
}

func (r *fakeRemote) TransactionsSince(ctx context.Context, sinceMillis int64) ([]RemoteTransaction, error) {
	return r.remoteTransactions, nil
}

func (r *fakeRemote) InsertTransaction(ctx context.Context, transaction RemoteTransaction) error {
	if r.insertTxErr != nil {
		if err := r.insertTxErr(transaction); err != nil {
			return err
		}
	}
	r.insertedTransactions = append(r.insertedTransactions, transaction)
	return nil
}

func (r *fakeRemote) InsertTransactionItems(ctx context.Context, items []RemoteTransactionItem) error {
	r.insertedItems = append(r.insertedItems, items)
	return nil
}

func (r *fakeRemote) TransactionItems(ctx context.Context, transactionID string) ([]RemoteTransactionItem, error) {
	return r.remoteItems[transactionID], nil
}

func (r *fakeRemote) MovementsSince(ctx context.Context, sinceMillis int64) ([]RemoteStockMovement, error) {
	return r.remoteMovements, nil
}

func (r *fakeRemote) InsertMovements(ctx context.Context, batch []RemoteStockMovement) error {
	r.movementBatches = append(r.movementBatches, batch)
	return nil
}

func (r *fakeRemote) AllSettings(ctx context.Context) ([]RemoteAppSetting, error) {
	return r.remoteSettings, nil
}

func (r *fakeRemote) UpsertSetting(ctx context.Context, setting RemoteAppSetting) error {
	if r.upsertSettingErr != nil {
		return r.upsertSettingErr
	}
	r.upsertedSettings = append(r.upsertedSettings, setting)
	return nil
}

type fakeUserStore struct {
	pending        []users.User
	byID           map[string]users.User
	replaced       []users.User
	markedIDs      []string
	pendingErr     error
	panicOnPending bool
}

func (s *fakeUserStore) PendingSync(ctx context.Context) ([]users.User, error) {
	if s.panicOnPending {
		panic("user store unavailable")
	}
	return s.pending, s.pendingErr
}

func (s *fakeUserStore) ByID(ctx context.Context, id string) (users.User, error) {
	user, ok := s.byID[id]
	if !ok {
		return users.User{}, users.ErrUserNotFound
	}
	return user, nil
}

func (s *fakeUserStore) Replace(ctx context.Context, user users.User) error {
	s.replaced = append(s.replaced, user)
	return nil
}

func (s *fakeUserStore) MarkSynced(ctx context.Context, id string, syncedAtMillis int64) error {
	s.markedIDs = append(s.markedIDs, id)
	return nil
}

type fakeCatalogStore struct {
	pendingProducts  []catalog.Product
	pendingMovements []catalog.StockMovement
	replacedProducts [][]catalog.Product
	replacedMoves    [][]catalog.StockMovement
	markedCodes      [][]string
	markedMoveIDs    [][]string
}

func (s *fakeCatalogStore) PendingSyncProducts(ctx context.Context) ([]catalog.Product, error) {
	return s.pendingProducts, nil
}

func (s *fakeCatalogStore) ReplaceProducts(ctx context.Context, batch []catalog.Product) error {
	s.replacedProducts = append(s.replacedProducts, batch)
	return nil
}

func (s *fakeCatalogStore) MarkProductsSynced(ctx context.Context, codes []string, syncedAtMillis int64) error {
	s.markedCodes = append(s.markedCodes, codes)
	return nil
}

func (s *fakeCatalogStore) PendingSyncMovements(ctx context.Context) ([]catalog.StockMovement, error) {
	return s.pendingMovements, nil
}

func (s *fakeCatalogStore) ReplaceMovements(ctx context.Context, batch []catalog.StockMovement) error {
	s.replacedMoves = append(s.replacedMoves, batch)
	return nil
}

func (s *fakeCatalogStore) MarkMovementsSynced(ctx context.Context, ids []string, syncedAtMillis int64) error {
	s.markedMoveIDs = append(s.markedMoveIDs, ids)
	return nil
}

type fakeSalesStore struct {
	pending       []sales.Transaction
	items         map[string][]sales.TransactionItem
	existing      map[string]bool
	inserted      []sales.Transaction
	insertedItems [][]sales.TransactionItem
	markedIDs     []string
}

func (s *fakeSalesStore) PendingSync(ctx context.Context) ([]sales.Transaction, error) {
	return s.pending, nil
}

func (s *fakeSalesStore) ItemsOf(ctx context.Context, transactionID string) ([]sales.TransactionItem, error) {
	return s.items[transactionID], nil
}

func (s *fakeSalesStore) Exists(ctx context.Context, id string) (bool, error) {
	return s.existing[id], nil
}

func (s *fakeSalesStore) InsertWithItems(ctx context.Context, transaction sales.Transaction, items []sales.TransactionItem) error {
	s.inserted = append(s.inserted, transaction)
	s.insertedItems = append(s.insertedItems, items)
	return nil
}

func (s *fakeSalesStore) MarkSynced(ctx context.Context, id string, syncedAtMillis int64) error {
	s.markedIDs = append(s.markedIDs, id)
	return nil
}

type fakeSettingsStore struct {
	local          []settings.AppSetting
	applied        []settings.AppSetting
	skipped        []settings.AppSetting
	newerThanLocal func(remote settings.AppSetting) bool
}

func (s *fakeSettingsStore) All(ctx context.Context) ([]settings.AppSetting, error) {
	return s.local, nil
}

func (s *fakeSettingsStore) ApplyRemote(ctx context.Context, remote settings.AppSetting) (bool, error) {
	if s.newerThanLocal != nil && !s.newerThanLocal(remote) {
		s.skipped = append(s.skipped, remote)
		return false, nil
	}
	s.applied = append(s.applied, remote)
	return true, nil
}

type engineFixture struct {
	remote   *fakeRemote
	cursors  *MemoryCursors
	users    *fakeUserStore
	catalog  *fakeCatalogStore
	sales    *fakeSalesStore
	settings *fakeSettingsStore
	engine   *Engine
}

func newEngineFixture(testContext *testing.T) *engineFixture {
	testContext.Helper()

	fixture := &engineFixture{
		remote:   &fakeRemote{remoteItems: map[string][]RemoteTransactionItem{}},
		cursors:  NewMemoryCursors(),
		users:    &fakeUserStore{byID: map[string]users.User{}},
		catalog:  &fakeCatalogStore{},
		sales:    &fakeSalesStore{items: map[string][]sales.TransactionItem{}, existing: map[string]bool{}},
		settings: &fakeSettingsStore{},
	}

	engine, err := NewEngine(EngineConfig{
		Remote:   fixture.remote,
		Cursors:  fixture.cursors,
		Users:    fixture.users,
		Catalog:  fixture.catalog,
		Sales:    fixture.sales,
		Settings: fixture.settings,
		Clock:    func() time.Time { return time.UnixMilli(1700000100000) },
	})
	if err != nil {
		testContext.Fatalf("failed to build engine: %v", err)
	}
	fixture.engine = engine
	return fixture
}

func TestSyncAllReportsFailureWhenBackendUnreachable(testContext *testing.T) {
	fixture := newEngineFixture(testContext)
	fixture.remote.pingErr = ErrNoConnection

	report := fixture.engine.SyncAll(context.Background())

	if report.Success {
		testContext.Fatalf("expected failed report when backend is unreachable")
	}
	if !strings.HasPrefix(report.Message, "sync failed:") {
		testContext.Fatalf("unexpected message: %q", report.Message)
	}
	lastSync, err := fixture.engine.LastSyncTime(context.Background())
	if err != nil {
		testContext.Fatalf("failed to read last sync time: %v", err)
	}
	if lastSync != 0 {
		testContext.Fatalf("cursor must not advance on unreachable backend, got %d", lastSync)
	}
}

func TestSyncAllRejectsConcurrentPass(testContext *testing.T) {
	fixture := newEngineFixture(testContext)
	fixture.remote.pingGate = make(chan struct{})

	firstDone := make(chan SyncReport, 1)
	go func() {
		firstDone <- fixture.engine.SyncAll(context.Background())
	}()

	// Wait for the first pass to claim the in-flight slot.
	deadline := time.Now().Add(2 * time.Second)
	for fixture.remote.pingCalls == 0 {
		if time.Now().After(deadline) {
			testContext.Fatalf("first pass never reached the backend probe")
		}
		time.Sleep(time.Millisecond)
	}

	second := fixture.engine.SyncAll(context.Background())
	if second.Success {
		testContext.Fatalf("concurrent pass must be rejected")
	}
	if second.Message != "sync already running" {
		testContext.Fatalf("unexpected rejection message: %q", second.Message)
	}

	close(fixture.remote.pingGate)
	first := <-firstDone
	if !first.Success {
		testContext.Fatalf("first pass should complete: %q", first.Message)
	}
}

func TestSyncAllUploadsDirtyRowsInBatches(testContext *testing.T) {
	fixture := newEngineFixture(testContext)

	fixture.users.pending = []users.User{
		{ID: "u-1", Username: "budi", Role: users.RoleKasir, LastSyncAtMillis: 0},
		{ID: "u-2", Username: "sari", Role: users.RoleAdmin, LastSyncAtMillis: 1690000000000, UpdatedAtMillis: 1699999999000},
	}
	for i := 0; i < 120; i++ {
		fixture.catalog.pendingProducts = append(fixture.catalog.pendingProducts, catalog.Product{
			Code: fmt.Sprintf("BRG%03d", i), Name: "Produk", Unit: "pcs",
		})
	}
	for i := 0; i < 250; i++ {
		fixture.catalog.pendingMovements = append(fixture.catalog.pendingMovements, catalog.StockMovement{
			ID: fmt.Sprintf("mv-%03d", i), ProductCode: "BRG001", Type: catalog.MovementIn, Quantity: 1,
		})
	}
	fixture.sales.pending = []sales.Transaction{
		{ID: "trx-1", CashierID: "u-1", TotalAmount: 15000, PaymentMethod: sales.PaymentCash, PaymentStatus: sales.StatusPaid},
	}
	fixture.sales.items["trx-1"] = []sales.TransactionItem{
		{ID: "item-1", TransactionID: "trx-1", ProductCode: "BRG001", Quantity: 2, UnitPrice: 7500, Subtotal: 15000},
	}
	fixture.settings.local = []settings.AppSetting{
		{Key: "shop_name", Value: "Toko Sari", UpdatedAtMillis: 1700000000000},
	}

	report := fixture.engine.SyncAll(context.Background())

	if !report.Success {
		testContext.Fatalf("expected successful pass: %q", report.Message)
	}
	if len(fixture.remote.insertedUsers) != 1 || fixture.remote.insertedUsers[0].ID != "u-1" {
		testContext.Fatalf("never-synced user must insert, got %+v", fixture.remote.insertedUsers)
	}
	if len(fixture.remote.upsertedUsers) != 1 || fixture.remote.upsertedUsers[0].ID != "u-2" {
		testContext.Fatalf("previously synced user must upsert, got %+v", fixture.remote.upsertedUsers)
	}
	if got := len(fixture.remote.productBatches); got != 3 {
		testContext.Fatalf("expected 3 product batches for 120 rows, got %d", got)
	}
	if len(fixture.remote.productBatches[0]) != 50 || len(fixture.remote.productBatches[2]) != 20 {
		testContext.Fatalf("unexpected product batch sizes: %d/%d/%d",
			len(fixture.remote.productBatches[0]), len(fixture.remote.productBatches[1]), len(fixture.remote.productBatches[2]))
	}
	if got := len(fixture.remote.movementBatches); got != 3 {
		testContext.Fatalf("expected 3 movement batches for 250 rows, got %d", got)
	}
	if len(fixture.remote.movementBatches[0]) != 100 || len(fixture.remote.movementBatches[2]) != 50 {
		testContext.Fatalf("unexpected movement batch sizes")
	}
	if len(fixture.remote.insertedTransactions) != 1 {
		testContext.Fatalf("expected transaction upload, got %d", len(fixture.remote.insertedTransactions))
	}
	if len(fixture.remote.insertedItems) != 1 || len(fixture.remote.insertedItems[0]) != 1 {
		testContext.Fatalf("transaction items must travel with the first upload")
	}
	if len(fixture.remote.upsertedSettings) != 1 {
		testContext.Fatalf("expected settings upsert, got %d", len(fixture.remote.upsertedSettings))
	}

	if report.TotalUploaded() != 2+120+250+1+1 {
		testContext.Fatalf("unexpected uploaded total: %d", report.TotalUploaded())
	}
	if report.TotalErrors() != 0 {
		testContext.Fatalf("unexpected errors: %v", report.AllErrors())
	}
	if len(fixture.users.markedIDs) != 2 || len(fixture.sales.markedIDs) != 1 {
		testContext.Fatalf("uploaded rows must be stamped synced")
	}
}

func TestSyncAllKeepsGoingPastRowErrors(testContext *testing.T) {
	fixture := newEngineFixture(testContext)

	fixture.users.pending = []users.User{
		{ID: "u-1", Username: "budi", LastSyncAtMillis: 0},
		{ID: "u-2", Username: "sari", LastSyncAtMillis: 0},
	}
	fixture.remote.insertUserErr = func(user RemoteUser) error {
		if user.ID == "u-1" {
			return errors.New("duplicate key")
		}
		return nil
	}
	fixture.settings.local = []settings.AppSetting{{Key: "shop_name", Value: "Toko"}}

	report := fixture.engine.SyncAll(context.Background())

	if !report.Success {
		testContext.Fatalf("row failures must not fail the pass: %q", report.Message)
	}
	if report.Users.Uploaded != 1 {
		testContext.Fatalf("expected the clean user uploaded, got %d", report.Users.Uploaded)
	}
	if len(report.Users.Errors) != 1 || !strings.Contains(report.Users.Errors[0], "budi") {
		testContext.Fatalf("expected one recorded user error, got %v", report.Users.Errors)
	}
	if len(fixture.users.markedIDs) != 1 || fixture.users.markedIDs[0] != "u-2" {
		testContext.Fatalf("failed row must keep its stale watermark, marked %v", fixture.users.markedIDs)
	}

	// The users cursor still advances so clean remote rows are not re-pulled.
	usersCursor, err := fixture.cursors.Get(context.Background(), cursorUsers)
	if err != nil || usersCursor == 0 {
		testContext.Fatalf("users cursor must advance despite row errors, got %d (%v)", usersCursor, err)
	}
	if report.Settings.Uploaded != 1 {
		testContext.Fatalf("later entities must still run, settings uploaded %d", report.Settings.Uploaded)
	}
}

func TestSyncAllDownloadMergesLastWriteWins(testContext *testing.T) {
	fixture := newEngineFixture(testContext)

	fixture.users.byID = map[string]users.User{
		"u-old": {ID: "u-old", Username: "budi", UpdatedAtMillis: 1700000000000},
		"u-new": {ID: "u-new", Username: "sari", UpdatedAtMillis: 1700000000000},
	}
	fixture.remote.remoteUsers = []RemoteUser{
		{ID: "u-old", Username: "budi", UpdatedAtMillis: 1600000000000},
		{ID: "u-new", Username: "sari", UpdatedAtMillis: 1700000050000},
		{ID: "u-fresh", Username: "tono", UpdatedAtMillis: 1700000060000},
	}

	report := fixture.engine.SyncAll(context.Background())

	if !report.Success {
		testContext.Fatalf("expected successful pass: %q", report.Message)
	}
	if report.Users.Downloaded != 2 {
		testContext.Fatalf("expected newer and unknown users applied, got %d", report.Users.Downloaded)
	}
	if len(fixture.users.replaced) != 2 {
		testContext.Fatalf("expected 2 replacements, got %d", len(fixture.users.replaced))
	}
	for _, replaced := range fixture.users.replaced {
		if replaced.ID == "u-old" {
			testContext.Fatalf("older remote row must not overwrite a newer local row")
		}
		if replaced.LastSyncAtMillis == 0 {
			testContext.Fatalf("downloaded rows must land with a fresh watermark")
		}
	}
}

func TestSyncAllDownloadSkipsExistingTransactions(testContext *testing.T) {
	fixture := newEngineFixture(testContext)

	fixture.sales.existing["trx-known"] = true
	fixture.remote.remoteTransactions = []RemoteTransaction{
		{ID: "trx-known", TotalAmount: 5000},
		{ID: "trx-new", TotalAmount: 12000, PaymentMethod: "CASH", PaymentStatus: "PAID"},
	}
	fixture.remote.remoteItems["trx-new"] = []RemoteTransactionItem{
		{ID: "item-9", TransactionID: "trx-new", ProductCode: "BRG001", Quantity: 4, UnitPrice: 3000, Subtotal: 12000},
	}

	report := fixture.engine.SyncAll(context.Background())

	if report.Transactions.Downloaded != 1 {
		testContext.Fatalf("expected only the unknown transaction applied, got %d", report.Transactions.Downloaded)
	}
	if len(fixture.sales.inserted) != 1 || fixture.sales.inserted[0].ID != "trx-new" {
		testContext.Fatalf("unexpected inserted transactions: %+v", fixture.sales.inserted)
	}
	if len(fixture.sales.insertedItems[0]) != 1 {
		testContext.Fatalf("downloaded transaction must carry its items")
	}
}

func TestSyncAllReplacesDownloadedProductsAndMovements(testContext *testing.T) {
	fixture := newEngineFixture(testContext)

	fixture.remote.remoteProducts = []RemoteProduct{
		{Code: "BRG001", Name: "Indomie", Unit: "pcs", UpdatedAtMillis: 1700000050000},
	}
	fixture.remote.remoteMovements = []RemoteStockMovement{
		{ID: "mv-9", ProductCode: "BRG001", MovementType: "IN", Quantity: 10},
	}

	report := fixture.engine.SyncAll(context.Background())

	if report.Products.Downloaded != 1 || report.StockMovements.Downloaded != 1 {
		testContext.Fatalf("expected one product and one movement downloaded, got %d/%d",
			report.Products.Downloaded, report.StockMovements.Downloaded)
	}
	if len(fixture.catalog.replacedProducts) != 1 {
		testContext.Fatalf("expected a product replace batch")
	}
	if fixture.catalog.replacedProducts[0][0].LastSyncAtMillis == 0 {
		testContext.Fatalf("downloaded product must land with a fresh watermark")
	}
	if len(fixture.catalog.replacedMoves) != 1 {
		testContext.Fatalf("expected a movement replace batch")
	}
}

func TestSyncAllAppliesOnlyNewerRemoteSettings(testContext *testing.T) {
	fixture := newEngineFixture(testContext)

	fixture.remote.remoteSettings = []RemoteAppSetting{
		{Key: "shop_name", Value: "Toko Pusat", UpdatedAtMillis: 1700000090000},
		{Key: "footer_text_1", Value: "Terima kasih", UpdatedAtMillis: 1600000000000},
	}
	fixture.settings.newerThanLocal = func(remote settings.AppSetting) bool {
		return remote.UpdatedAtMillis > 1650000000000
	}

	report := fixture.engine.SyncAll(context.Background())

	if report.Settings.Downloaded != 1 {
		testContext.Fatalf("only the newer setting counts as downloaded, got %d", report.Settings.Downloaded)
	}
	if len(fixture.settings.applied) != 1 || fixture.settings.applied[0].Key != "shop_name" {
		testContext.Fatalf("unexpected applied settings: %+v", fixture.settings.applied)
	}
}

func TestSyncAllFirstPassAgainstEmptyBackend(testContext *testing.T) {
	fixture := newEngineFixture(testContext)

	report := fixture.engine.SyncAll(context.Background())

	if !report.Success {
		testContext.Fatalf("empty pass must succeed: %q", report.Message)
	}
	if report.TotalUploaded() != 0 || report.TotalDownloaded() != 0 || report.TotalErrors() != 0 {
		testContext.Fatalf("empty pass must be a no-op, got %d/%d/%d",
			report.TotalUploaded(), report.TotalDownloaded(), report.TotalErrors())
	}
	lastSync, err := fixture.engine.LastSyncTime(context.Background())
	if err != nil {
		testContext.Fatalf("failed to read last sync time: %v", err)
	}
	if lastSync != 1700000100000 {
		testContext.Fatalf("full pass must stamp the global cursor, got %d", lastSync)
	}
}

func TestSyncAllIsolatesEntityFailure(testContext *testing.T) {
	fixture := newEngineFixture(testContext)

	fixture.users.panicOnPending = true
	fixture.settings.local = []settings.AppSetting{{Key: "shop_name", Value: "Toko"}}

	report := fixture.engine.SyncAll(context.Background())

	if !report.Success {
		testContext.Fatalf("one broken entity must not fail the pass: %q", report.Message)
	}
	if len(report.Users.Errors) == 0 {
		testContext.Fatalf("expected the users failure recorded")
	}
	if report.Settings.Uploaded != 1 {
		testContext.Fatalf("later entities must still run after a failure")
	}
}

func TestSyncAllIsIdempotentWhenNothingChanges(testContext *testing.T) {
	fixture := newEngineFixture(testContext)

	first := fixture.engine.SyncAll(context.Background())
	second := fixture.engine.SyncAll(context.Background())

	if !first.Success || !second.Success {
		testContext.Fatalf("both passes must succeed: %q / %q", first.Message, second.Message)
	}
	if second.TotalUploaded() != 0 || second.TotalDownloaded() != 0 {
		testContext.Fatalf("second pass over clean state must move nothing, got %d/%d",
			second.TotalUploaded(), second.TotalDownloaded())
	}
}

func TestLastSyncTimeFormatted(testContext *testing.T) {
	fixture := newEngineFixture(testContext)

	if got := fixture.engine.LastSyncTimeFormatted(context.Background()); got != "never synced" {
		testContext.Fatalf("fresh install must read as never synced, got %q", got)
	}

	fixture.engine.SyncAll(context.Background())

	formatted := fixture.engine.LastSyncTimeFormatted(context.Background())
	want := time.UnixMilli(1700000100000).Format("02/01/2006 15:04:05")
	if formatted != want {
		testContext.Fatalf("unexpected formatted time: %q, want %q", formatted, want)
	}
}
