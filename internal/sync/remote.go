package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// RemoteClient is the capability surface the engine needs from the hosted
// backend: filtered select, insert, upsert per entity table, plus a
// connectivity probe.
type RemoteClient interface {
	Ping(ctx context.Context) error

	UsersSince(ctx context.Context, sinceMillis int64) ([]RemoteUser, error)
	InsertUser(ctx context.Context, user RemoteUser) error
	UpsertUser(ctx context.Context, user RemoteUser) error

	ProductsSince(ctx context.Context, sinceMillis int64) ([]RemoteProduct, error)
	UpsertProducts(ctx context.Context, batch []RemoteProduct) error

	TransactionsSince(ctx context.Context, sinceMillis int64) ([]RemoteTransaction, error)
	InsertTransaction(ctx context.Context, transaction RemoteTransaction) error
	InsertTransactionItems(ctx context.Context, items []RemoteTransactionItem) error
	TransactionItems(ctx context.Context, transactionID string) ([]RemoteTransactionItem, error)

	MovementsSince(ctx context.Context, sinceMillis int64) ([]RemoteStockMovement, error)
	InsertMovements(ctx context.Context, batch []RemoteStockMovement) error

	AllSettings(ctx context.Context) ([]RemoteAppSetting, error)
	UpsertSetting(ctx context.Context, setting RemoteAppSetting) error
}

// RemoteError is a rejection from the backend: validation, conflict, auth.
// The engine records it per row or batch and keeps going.
type RemoteError struct {
	Status int
	Body   string
}

func (e *RemoteError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 190 {
		body = body[:190]
	}
	return fmt.Sprintf("remote rejected request (status %d): %s", e.Status, body)
}

// ErrNoConnection indicates the backend is unreachable.
var ErrNoConnection = errors.New("sync: no connection to sync backend")

// RESTClientConfig configures the hosted backend accessor.
type RESTClientConfig struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// RESTClient speaks the hosted backend's PostgREST dialect: one logical table
// per entity, greater-than filters on timestamp columns, insert, and
// merge-duplicates upsert.
type RESTClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewRESTClient constructs the production remote accessor.
func NewRESTClient(cfg RESTClientConfig) (*RESTClient, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("sync: remote base url is required")
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &RESTClient{baseURL: base, apiKey: cfg.APIKey, http: client}, nil
}

func (c *RESTClient) tableURL(table string, query url.Values) string {
	u := c.baseURL + "/rest/v1/" + table
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func (c *RESTClient) authorize(req *http.Request) {
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
}

// Ping probes the backend root. Any transport failure reads as no
// connectivity; an HTTP response of any status means the path is up.
func (c *RESTClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/rest/v1/", nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoConnection, err)
	}
	c.authorize(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoConnection, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck
	return nil
}

func selectRows[T any](ctx context.Context, c *RESTClient, table, filterColumn string, sinceMillis int64) ([]T, error) {
	query := url.Values{}
	query.Set("select", "*")
	if filterColumn != "" {
		query.Set(filterColumn, fmt.Sprintf("gt.%d", sinceMillis))
	}
	return selectWithQuery[T](ctx, c, table, query)
}

func selectWithQuery[T any](ctx context.Context, c *RESTClient, table string, query url.Values) ([]T, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.tableURL(table, query), nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoConnection, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &RemoteError{Status: resp.StatusCode, Body: string(body)}
	}

	var rows []T
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("sync: malformed payload from %s: %w", table, err)
	}
	return rows, nil
}

func (c *RESTClient) writeRows(ctx context.Context, table string, payload interface{}, upsert bool) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tableURL(table, nil), bytes.NewReader(body))
	if err != nil {
		return err
	}
	c.authorize(req)
	req.Header.Set("Content-Type", "application/json")
	if upsert {
		req.Header.Set("Prefer", "resolution=merge-duplicates,return=minimal")
	} else {
		req.Header.Set("Prefer", "return=minimal")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoConnection, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(resp.Body)
		return &RemoteError{Status: resp.StatusCode, Body: string(detail)}
	}
	io.Copy(io.Discard, resp.Body) //nolint:errcheck
	return nil
}

// UsersSince returns users with updated_at strictly greater than the cursor.
func (c *RESTClient) UsersSince(ctx context.Context, sinceMillis int64) ([]RemoteUser, error) {
	return selectRows[RemoteUser](ctx, c, "users", "updated_at", sinceMillis)
}

// InsertUser creates a user row remotely.
func (c *RESTClient) InsertUser(ctx context.Context, user RemoteUser) error {
	return c.writeRows(ctx, "users", user, false)
}

// UpsertUser creates or updates a user row keyed by id.
func (c *RESTClient) UpsertUser(ctx context.Context, user RemoteUser) error {
	return c.writeRows(ctx, "users", user, true)
}

// ProductsSince returns products with updated_at strictly greater than the cursor.
func (c *RESTClient) ProductsSince(ctx context.Context, sinceMillis int64) ([]RemoteProduct, error) {
	return selectRows[RemoteProduct](ctx, c, "products", "updated_at", sinceMillis)
}

// UpsertProducts writes a product batch keyed by code.
func (c *RESTClient) UpsertProducts(ctx context.Context, batch []RemoteProduct) error {
	return c.writeRows(ctx, "products", batch, true)
}

// TransactionsSince returns transactions created strictly after the cursor.
func (c *RESTClient) TransactionsSince(ctx context.Context, sinceMillis int64) ([]RemoteTransaction, error) {
	return selectRows[RemoteTransaction](ctx, c, "transactions", "created_at", sinceMillis)
}

// InsertTransaction creates a transaction row remotely.
func (c *RESTClient) InsertTransaction(ctx context.Context, transaction RemoteTransaction) error {
	return c.writeRows(ctx, "transactions", transaction, false)
}

// InsertTransactionItems creates line item rows remotely.
func (c *RESTClient) InsertTransactionItems(ctx context.Context, items []RemoteTransactionItem) error {
	return c.writeRows(ctx, "transaction_items", items, false)
}

// TransactionItems returns the line items of one remote transaction.
func (c *RESTClient) TransactionItems(ctx context.Context, transactionID string) ([]RemoteTransactionItem, error) {
	query := url.Values{}
	query.Set("select", "*")
	query.Set("transaction_id", "eq."+transactionID)
	return selectWithQuery[RemoteTransactionItem](ctx, c, "transaction_items", query)
}

// MovementsSince returns ledger rows created strictly after the cursor.
func (c *RESTClient) MovementsSince(ctx context.Context, sinceMillis int64) ([]RemoteStockMovement, error) {
	return selectRows[RemoteStockMovement](ctx, c, "stock_movements", "created_at", sinceMillis)
}

// InsertMovements writes a ledger batch remotely.
func (c *RESTClient) InsertMovements(ctx context.Context, batch []RemoteStockMovement) error {
	return c.writeRows(ctx, "stock_movements", batch, false)
}

// AllSettings returns the full remote settings table; settings carry no
// per-row watermark so the pull is never time-bounded.
func (c *RESTClient) AllSettings(ctx context.Context) ([]RemoteAppSetting, error) {
	return selectRows[RemoteAppSetting](ctx, c, "app_settings", "", 0)
}

// UpsertSetting creates or updates one setting keyed by key.
func (c *RESTClient) UpsertSetting(ctx context.Context, setting RemoteAppSetting) error {
	return c.writeRows(ctx, "app_settings", setting, true)
}
