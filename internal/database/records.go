package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/KyPython/offline-media-sync/internal/models"
)

const recordColumns = `id, title, description, media, synced, created_at`

// CreateSubmission writes one record and its queue items as a single
// transaction. Either everything lands or nothing does.
func (db *DB) CreateSubmission(ctx context.Context, record *models.Record, items []*models.QueueItem) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	media, err := json.Marshal(record.Media)
	if err != nil {
		return fmt.Errorf("failed to encode media descriptors: %w", err)
	}

	now := time.Now()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO records (id, title, description, media, synced, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		record.ID, record.Title, record.Description, string(media), record.Synced, record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}

	for _, item := range items {
		if item.CreatedAt.IsZero() {
			item.CreatedAt = now
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO queue_items (id, record_id, file_name, mime_type, size, payload, title, description,
                status, attempts, max_attempts, last_error, chunked, progress, bytes_uploaded, created_at)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			item.ID, item.RecordID, item.FileName, item.MimeType, item.Size, item.Payload,
			item.Title, item.Description, item.Status, item.Attempts, item.MaxAttempts,
			item.LastError, item.Chunked, item.Progress, item.BytesUploaded, item.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert queue item %s: %w", item.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit submission: %w", err)
	}
	return nil
}

func (db *DB) GetRecord(ctx context.Context, id string) (*models.Record, error) {
	row := db.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM records WHERE id = ?`, id)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return record, nil
}

func (db *DB) GetAllRecords(ctx context.Context) ([]*models.Record, error) {
	rows, err := db.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM records ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var records []*models.Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// DeleteRecord removes a record. Administrative path only: queue items
// referencing it stay behind and keep syncing.
func (db *DB) DeleteRecord(ctx context.Context, id string) error {
	res, err := db.db.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
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

// ReconcileRecord recomputes the record's synced flag from its children:
// true iff the record has at least one queue item and all of them are
// synced. Idempotent. A missing record is a no-op, not an error, so the
// engine survives records deleted mid-flight.
func (db *DB) ReconcileRecord(ctx context.Context, recordID string) (bool, error) {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM records WHERE id = ?`, recordID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check record: %w", err)
	}
	if exists == 0 {
		return false, nil
	}

	var total, synced int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) FROM queue_items WHERE record_id = ?`,
		models.StatusSynced, recordID,
	).Scan(&total, &synced)
	if err != nil {
		return false, fmt.Errorf("failed to count queue items: %w", err)
	}

	allSynced := total > 0 && synced == total
	if _, err := tx.ExecContext(ctx, `UPDATE records SET synced = ? WHERE id = ?`, allSynced, recordID); err != nil {
		return false, fmt.Errorf("failed to update record sync flag: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit reconciliation: %w", err)
	}
	return allSynced, nil
}

type recordScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row recordScanner) (*models.Record, error) {
	var record models.Record
	var media string
	if err := row.Scan(&record.ID, &record.Title, &record.Description, &media, &record.Synced, &record.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(media), &record.Media); err != nil {
		return nil, fmt.Errorf("failed to decode media descriptors: %w", err)
	}
	return &record, nil
}
