package models

import "time"

// QueueItem is one file's durable transfer state. RecordID is a lookup
// key, not an ownership edge: the parent record may disappear without
// invalidating the item.
type QueueItem struct {
	ID            string     `json:"id"`
	RecordID      string     `json:"record_id"`
	FileName      string     `json:"file_name"`
	MimeType      string     `json:"mime_type"`
	Size          int64      `json:"size"`
	Payload       []byte     `json:"-"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Status        string     `json:"status"` // pending, uploading, synced, failed
	Attempts      int        `json:"attempts"`
	MaxAttempts   int        `json:"max_attempts"`
	LastError     *string    `json:"last_error"`
	Chunked       bool       `json:"chunked"`
	Progress      int        `json:"progress"` // 0..100
	BytesUploaded int64      `json:"bytes_uploaded"`
	CreatedAt     time.Time  `json:"created_at"`
	LastAttemptAt *time.Time `json:"last_attempt_at"`
	SyncedAt      *time.Time `json:"synced_at"`
}

// QueueStats is the per-status breakdown of the queue.
type QueueStats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Uploading int `json:"uploading"`
	Synced    int `json:"synced"`
	Failed    int `json:"failed"`
}

// SyncResult aggregates one sync pass.
type SyncResult struct {
	Synced int `json:"synced"`
	Failed int `json:"failed"`
}

// ProgressUpdate is published after every transferred chunk.
type ProgressUpdate struct {
	ItemID        string `json:"item_id"`
	Percentage    int    `json:"percentage"`
	BytesUploaded int64  `json:"bytes_uploaded"`
	TotalBytes    int64  `json:"total_bytes"`
}
