package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/masetio/KasirPOP/internal/users"
)

func chunk[T any](rows []T, size int) [][]T {
	if size <= 0 || len(rows) == 0 {
		if len(rows) == 0 {
			return nil
		}
		return [][]T{rows}
	}
	var batches [][]T
	for start := 0; start < len(rows); start += size {
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}
		batches = append(batches, rows[start:end])
	}
	return batches
}

// syncUsers runs row at a time: user volume is low and each row distinguishes
// first upload (insert) from a later edit (upsert). Downloads merge with
// last-write-wins: the remote row only lands when strictly newer.
func (e *Engine) syncUsers(ctx context.Context, sinceMillis int64, result *EntitySyncResult) {
	dirty, err := e.users.PendingSync(ctx)
	if err != nil {
		result.addError(fmt.Sprintf("users sync error: %v", err))
		return
	}

	for _, user := range dirty {
		nowMillis := e.nowMillis()
		payload := toRemoteUser(user, nowMillis)
		if user.LastSyncAtMillis == 0 {
			err = e.remote.InsertUser(ctx, payload)
		} else {
			err = e.remote.UpsertUser(ctx, payload)
		}
		if err != nil {
			result.addError(fmt.Sprintf("upload user %s: %v", user.Username, err))
			continue
		}
		if err := e.users.MarkSynced(ctx, user.ID, nowMillis); err != nil {
			result.addError(fmt.Sprintf("upload user %s: %v", user.Username, err))
			continue
		}
		result.Uploaded++
	}

	remote, err := e.remote.UsersSince(ctx, sinceMillis)
	if err != nil {
		result.addError(fmt.Sprintf("users sync error: %v", err))
		return
	}
	for _, remoteUser := range remote {
		local, err := e.users.ByID(ctx, remoteUser.ID)
		switch {
		case errors.Is(err, users.ErrUserNotFound):
			// new remote row
		case err != nil:
			result.addError(fmt.Sprintf("download user %s: %v", remoteUser.Username, err))
			continue
		case remoteUser.UpdatedAtMillis <= local.UpdatedAtMillis:
			// local copy wins
			continue
		}
		if err := e.users.Replace(ctx, remoteUser.toLocal(e.nowMillis())); err != nil {
			result.addError(fmt.Sprintf("download user %s: %v", remoteUser.Username, err))
			continue
		}
		result.Downloaded++
	}
}

// syncProducts batches both directions to bound request size. Downloads skip
// timestamp comparison and replace by primary key: the remote filter already
// bounds the set to rows newer than the cursor.
func (e *Engine) syncProducts(ctx context.Context, sinceMillis int64, result *EntitySyncResult) {
	dirty, err := e.catalog.PendingSyncProducts(ctx)
	if err != nil {
		result.addError(fmt.Sprintf("products sync error: %v", err))
		return
	}

	for _, batch := range chunk(dirty, productBatchSize) {
		nowMillis := e.nowMillis()
		payload := make([]RemoteProduct, 0, len(batch))
		codes := make([]string, 0, len(batch))
		for _, product := range batch {
			payload = append(payload, toRemoteProduct(product, nowMillis))
			codes = append(codes, product.Code)
		}
		if err := e.remote.UpsertProducts(ctx, payload); err != nil {
			result.addError(fmt.Sprintf("upload products batch: %v", err))
			continue
		}
		if err := e.catalog.MarkProductsSynced(ctx, codes, nowMillis); err != nil {
			result.addError(fmt.Sprintf("upload products batch: %v", err))
			continue
		}
		result.Uploaded += len(batch)
	}

	remote, err := e.remote.ProductsSince(ctx, sinceMillis)
	if err != nil {
		result.addError(fmt.Sprintf("products sync error: %v", err))
		return
	}
	for _, batch := range chunk(remote, productBatchSize) {
		converted := convertProducts(batch, e.nowMillis())
		if err := e.catalog.ReplaceProducts(ctx, converted); err != nil {
			result.addError(fmt.Sprintf("download products batch: %v", err))
			continue
		}
		result.Downloaded += len(batch)
	}
}

// syncTransactions runs row at a time because each parent may carry a
// secondary items write. Items travel with the parent on first upload only;
// a stamped parent never re-sends them. Downloads insert missing rows only,
// pulling each new transaction's items in a secondary call.
func (e *Engine) syncTransactions(ctx context.Context, sinceMillis int64, result *EntitySyncResult) {
	dirty, err := e.sales.PendingSync(ctx)
	if err != nil {
		result.addError(fmt.Sprintf("transactions sync error: %v", err))
		return
	}

	for _, transaction := range dirty {
		if err := e.remote.InsertTransaction(ctx, toRemoteTransaction(transaction)); err != nil {
			result.addError(fmt.Sprintf("upload transaction %s: %v", transaction.ID, err))
			continue
		}
		items, err := e.sales.ItemsOf(ctx, transaction.ID)
		if err != nil {
			result.addError(fmt.Sprintf("upload transaction %s: %v", transaction.ID, err))
			continue
		}
		if len(items) > 0 {
			payload := make([]RemoteTransactionItem, 0, len(items))
			for _, item := range items {
				payload = append(payload, toRemoteTransactionItem(item))
			}
			if err := e.remote.InsertTransactionItems(ctx, payload); err != nil {
				result.addError(fmt.Sprintf("upload transaction %s: %v", transaction.ID, err))
				continue
			}
		}
		if err := e.sales.MarkSynced(ctx, transaction.ID, e.nowMillis()); err != nil {
			result.addError(fmt.Sprintf("upload transaction %s: %v", transaction.ID, err))
			continue
		}
		result.Uploaded++
	}

	remote, err := e.remote.TransactionsSince(ctx, sinceMillis)
	if err != nil {
		result.addError(fmt.Sprintf("transactions sync error: %v", err))
		return
	}
	for _, remoteTransaction := range remote {
		exists, err := e.sales.Exists(ctx, remoteTransaction.ID)
		if err != nil {
			result.addError(fmt.Sprintf("download transaction %s: %v", remoteTransaction.ID, err))
			continue
		}
		if exists {
			continue
		}
		remoteItems, err := e.remote.TransactionItems(ctx, remoteTransaction.ID)
		if err != nil {
			result.addError(fmt.Sprintf("download transaction %s: %v", remoteTransaction.ID, err))
			continue
		}
		nowMillis := e.nowMillis()
		localItems := convertItems(remoteItems, nowMillis)
		if err := e.sales.InsertWithItems(ctx, remoteTransaction.toLocal(nowMillis), localItems); err != nil {
			result.addError(fmt.Sprintf("download transaction %s: %v", remoteTransaction.ID, err))
			continue
		}
		result.Downloaded++
	}
}

// syncMovements treats the ledger as append-only: uploads are plain inserts
// in batches of 100 and downloads replace by id with no timestamp check.
func (e *Engine) syncMovements(ctx context.Context, sinceMillis int64, result *EntitySyncResult) {
	dirty, err := e.catalog.PendingSyncMovements(ctx)
	if err != nil {
		result.addError(fmt.Sprintf("stock movement sync error: %v", err))
		return
	}

	for _, batch := range chunk(dirty, movementBatchSize) {
		nowMillis := e.nowMillis()
		payload := make([]RemoteStockMovement, 0, len(batch))
		ids := make([]string, 0, len(batch))
		for _, movement := range batch {
			payload = append(payload, toRemoteMovement(movement))
			ids = append(ids, movement.ID)
		}
		if err := e.remote.InsertMovements(ctx, payload); err != nil {
			result.addError(fmt.Sprintf("upload stock movements: %v", err))
			continue
		}
		if err := e.catalog.MarkMovementsSynced(ctx, ids, nowMillis); err != nil {
			result.addError(fmt.Sprintf("upload stock movements: %v", err))
			continue
		}
		result.Uploaded += len(batch)
	}

	remote, err := e.remote.MovementsSince(ctx, sinceMillis)
	if err != nil {
		result.addError(fmt.Sprintf("stock movement sync error: %v", err))
		return
	}
	for _, batch := range chunk(remote, movementBatchSize) {
		converted := convertMovements(batch, e.nowMillis())
		if err := e.catalog.ReplaceMovements(ctx, converted); err != nil {
			result.addError(fmt.Sprintf("download stock movements: %v", err))
			continue
		}
		result.Downloaded += len(batch)
	}
}

// syncSettings has no per-row watermark: every local setting upserts every
// pass, and the remote table is pulled in full, applied only when strictly
// newer than the local copy.
func (e *Engine) syncSettings(ctx context.Context, _ int64, result *EntitySyncResult) {
	local, err := e.settings.All(ctx)
	if err != nil {
		result.addError(fmt.Sprintf("settings sync error: %v", err))
		return
	}
	for _, setting := range local {
		if err := e.remote.UpsertSetting(ctx, toRemoteSetting(setting)); err != nil {
			result.addError(fmt.Sprintf("upload setting %s: %v", setting.Key, err))
			continue
		}
		result.Uploaded++
	}

	remote, err := e.remote.AllSettings(ctx)
	if err != nil {
		result.addError(fmt.Sprintf("settings sync error: %v", err))
		return
	}
	for _, remoteSetting := range remote {
		applied, err := e.settings.ApplyRemote(ctx, remoteSetting.toLocal())
		if err != nil {
			result.addError(fmt.Sprintf("download setting %s: %v", remoteSetting.Key, err))
			continue
		}
		if applied {
			result.Downloaded++
		}
	}
}
