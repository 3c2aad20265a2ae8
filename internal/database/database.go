package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/KyPython/offline-media-sync/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when a record or queue item id is unknown.
	ErrNotFound = errors.New("not found")
)

// DB is the durable store for records and queue items. It is the only
// component that touches SQLite; everything above goes through it.
type DB struct {
	db *sql.DB
}

func NewDB(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &DB{db: db}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS records (
            id TEXT PRIMARY KEY,
            title TEXT NOT NULL,
            description TEXT,
            media TEXT NOT NULL DEFAULT '[]',
            synced BOOLEAN NOT NULL DEFAULT 0,
            created_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS queue_items (
            id TEXT PRIMARY KEY,
            record_id TEXT NOT NULL,
            file_name TEXT NOT NULL,
            mime_type TEXT NOT NULL,
            size INTEGER NOT NULL,
            payload BLOB,
            title TEXT,
            description TEXT,
            status TEXT NOT NULL DEFAULT 'pending',
            attempts INTEGER NOT NULL DEFAULT 0,
            max_attempts INTEGER NOT NULL DEFAULT 5,
            last_error TEXT,
            chunked BOOLEAN NOT NULL DEFAULT 0,
            progress INTEGER NOT NULL DEFAULT 0,
            bytes_uploaded INTEGER NOT NULL DEFAULT 0,
            created_at DATETIME NOT NULL,
            last_attempt_at DATETIME,
            synced_at DATETIME
        )`,

		`CREATE INDEX IF NOT EXISTS idx_records_synced ON records(synced)`,
		`CREATE INDEX IF NOT EXISTS idx_queue_items_status ON queue_items(status)`,
		`CREATE INDEX IF NOT EXISTS idx_queue_items_record_id ON queue_items(record_id)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

// Stats returns the per-status breakdown of the queue.
func (db *DB) Stats(ctx context.Context) (models.QueueStats, error) {
	var stats models.QueueStats
	rows, err := db.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM queue_items GROUP BY status`)
	if err != nil {
		return stats, fmt.Errorf("failed to query queue stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return stats, fmt.Errorf("failed to scan queue stats: %w", err)
		}
		stats.Total += count
		switch status {
		case models.StatusPending:
			stats.Pending = count
		case models.StatusUploading:
			stats.Uploading = count
		case models.StatusSynced:
			stats.Synced = count
		case models.StatusFailed:
			stats.Failed = count
		}
	}
	return stats, rows.Err()
}

// StorageUsage returns the total payload bytes currently held in the queue.
func (db *DB) StorageUsage(ctx context.Context) (int64, error) {
	var used int64
	err := db.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(size), 0) FROM queue_items`).Scan(&used)
	if err != nil {
		return 0, fmt.Errorf("failed to compute storage usage: %w", err)
	}
	return used, nil
}
