package models

// Queue item statuses.
const (
	StatusPending   = "pending"
	StatusUploading = "uploading"
	StatusSynced    = "synced"
	StatusFailed    = "failed"
)

// Overall sync status broadcast to subscribers.
const (
	SyncIdle    = "idle"
	SyncRunning = "syncing"
	SyncSuccess = "success"
	SyncError   = "error"
)

const (
	// ChunkSize is the fixed size of one chunk on the chunked path.
	ChunkSize = 5 * 1024 * 1024

	// ChunkThreshold is the payload size above which a file is
	// transferred chunked. Decided once at enqueue time.
	ChunkThreshold = 10 * 1024 * 1024

	// DefaultMaxAttempts is the per-item attempt ceiling.
	DefaultMaxAttempts = 5

	// ChunkMaxRetries is the per-chunk retry ceiling within one attempt.
	ChunkMaxRetries = 3

	// DefaultStorageBudget caps total queued payload bytes (64 MiB).
	DefaultStorageBudget = 64 * 1024 * 1024
)
