package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/KyPython/offline-media-sync/internal/models"
)

// itemColumns deliberately excludes payload: listings stay cheap, the
// blob is loaded via GetItemPayload right before a transfer.
const itemColumns = `id, record_id, file_name, mime_type, size, title, description, status,
    attempts, max_attempts, last_error, chunked, progress, bytes_uploaded,
    created_at, last_attempt_at, synced_at`

// ItemUpdate is a partial update merged onto the stored queue item.
// Nil fields are left untouched; ClearError resets last_error to NULL.
type ItemUpdate struct {
	Status        *string
	Attempts      *int
	LastError     *string
	ClearError    bool
	Progress      *int
	BytesUploaded *int64
	LastAttemptAt *time.Time
	SyncedAt      *time.Time
}

func (db *DB) GetItem(ctx context.Context, id string) (*models.QueueItem, error) {
	row := db.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM queue_items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get queue item: %w", err)
	}
	return item, nil
}

// GetItemPayload loads the raw payload bytes for one item.
func (db *DB) GetItemPayload(ctx context.Context, id string) ([]byte, error) {
	var payload []byte
	err := db.db.QueryRowContext(ctx, `SELECT payload FROM queue_items WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item payload: %w", err)
	}
	return payload, nil
}

// GetPendingItems returns pending items in enqueue order.
func (db *DB) GetPendingItems(ctx context.Context) ([]*models.QueueItem, error) {
	return db.itemsByStatus(ctx, models.StatusPending)
}

// GetFailedItems returns items that exhausted their attempts.
func (db *DB) GetFailedItems(ctx context.Context) ([]*models.QueueItem, error) {
	return db.itemsByStatus(ctx, models.StatusFailed)
}

// GetItemsByStatus returns items in one status in enqueue order.
func (db *DB) GetItemsByStatus(ctx context.Context, status string) ([]*models.QueueItem, error) {
	return db.itemsByStatus(ctx, status)
}

func (db *DB) itemsByStatus(ctx context.Context, status string) ([]*models.QueueItem, error) {
	rows, err := db.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM queue_items WHERE status = ? ORDER BY created_at ASC, rowid ASC`, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s items: %w", status, err)
	}
	return collectItems(rows)
}

func (db *DB) GetAllItems(ctx context.Context) ([]*models.QueueItem, error) {
	rows, err := db.db.QueryContext(ctx, `SELECT `+itemColumns+` FROM queue_items ORDER BY created_at ASC, rowid ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list queue items: %w", err)
	}
	return collectItems(rows)
}

func (db *DB) GetItemsByRecord(ctx context.Context, recordID string) ([]*models.QueueItem, error) {
	rows, err := db.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM queue_items WHERE record_id = ? ORDER BY created_at ASC, rowid ASC`, recordID)
	if err != nil {
		return nil, fmt.Errorf("failed to list items for record %s: %w", recordID, err)
	}
	return collectItems(rows)
}

// UpdateItem applies a partial update under a transaction: read current
// row, merge fields, write back. Returns the updated item or ErrNotFound.
func (db *DB) UpdateItem(ctx context.Context, id string, update ItemUpdate) (*models.QueueItem, error) {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM queue_items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read queue item: %w", err)
	}

	if update.Status != nil {
		item.Status = *update.Status
	}
	if update.Attempts != nil {
		item.Attempts = *update.Attempts
	}
	if update.ClearError {
		item.LastError = nil
	} else if update.LastError != nil {
		item.LastError = update.LastError
	}
	if update.Progress != nil {
		item.Progress = *update.Progress
	}
	if update.BytesUploaded != nil {
		item.BytesUploaded = *update.BytesUploaded
	}
	if update.LastAttemptAt != nil {
		item.LastAttemptAt = update.LastAttemptAt
	}
	if update.SyncedAt != nil {
		item.SyncedAt = update.SyncedAt
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE queue_items SET status = ?, attempts = ?, last_error = ?, progress = ?,
            bytes_uploaded = ?, last_attempt_at = ?, synced_at = ? WHERE id = ?`,
		item.Status, item.Attempts, item.LastError, item.Progress,
		item.BytesUploaded, item.LastAttemptAt, item.SyncedAt, id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update queue item: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit item update: %w", err)
	}
	return item, nil
}

// RecoverInFlight returns items stranded in uploading by a dead process
// back to pending. Attempts stay untouched; the interrupted attempt was
// already counted when it began.
func (db *DB) RecoverInFlight(ctx context.Context) (int64, error) {
	res, err := db.db.ExecContext(ctx,
		`UPDATE queue_items SET status = ? WHERE status = ?`,
		models.StatusPending, models.StatusUploading)
	if err != nil {
		return 0, fmt.Errorf("failed to recover in-flight items: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check recovery result: %w", err)
	}
	return affected, nil
}

// PruneSyncedBefore deletes synced items older than the cutoff and
// frees their payload blobs. Returns the number of rows removed.
func (db *DB) PruneSyncedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.db.ExecContext(ctx,
		`DELETE FROM queue_items WHERE status = ? AND synced_at IS NOT NULL AND synced_at < ?`,
		models.StatusSynced, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune synced items: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check prune result: %w", err)
	}
	return affected, nil
}

// DeleteItem removes a queue item. Administrative path only.
func (db *DB) DeleteItem(ctx context.Context, id string) error {
	res, err := db.db.ExecContext(ctx, `DELETE FROM queue_items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete queue item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func collectItems(rows *sql.Rows) ([]*models.QueueItem, error) {
	defer rows.Close()
	var items []*models.QueueItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan queue item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

type itemScanner interface {
	Scan(dest ...any) error
}

func scanItem(row itemScanner) (*models.QueueItem, error) {
	var item models.QueueItem
	err := row.Scan(
		&item.ID, &item.RecordID, &item.FileName, &item.MimeType, &item.Size,
		&item.Title, &item.Description, &item.Status,
		&item.Attempts, &item.MaxAttempts, &item.LastError, &item.Chunked,
		&item.Progress, &item.BytesUploaded,
		&item.CreatedAt, &item.LastAttemptAt, &item.SyncedAt,
	)
	if err != nil {
		return nil, err
	}
	return &item, nil
}
