package queue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/KyPython/offline-media-sync/internal/database"
	"github.com/KyPython/offline-media-sync/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// FileInput is one file handed to Enqueue: descriptor plus payload.
type FileInput struct {
	Name     string
	MimeType string
	Data     []byte
}

// Manager owns all writes to records and queue items. The coordinator
// and the API go through it, never straight to the store.
type Manager struct {
	db          *database.DB
	budget      int64
	maxAttempts int
	logger      *zerolog.Logger
}

func NewManager(db *database.DB, budgetBytes int64, maxAttempts int, logger *zerolog.Logger) *Manager {
	if budgetBytes <= 0 {
		budgetBytes = models.DefaultStorageBudget
	}
	if maxAttempts <= 0 {
		maxAttempts = models.DefaultMaxAttempts
	}
	return &Manager{
		db:          db,
		budget:      budgetBytes,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// Enqueue validates the submission, checks the storage budget and writes
// one record plus one queue item per file in a single transaction.
// The chunking mode is decided here, once, so retries stay consistent.
func (m *Manager) Enqueue(ctx context.Context, title, description string, files []FileInput) (string, error) {
	if strings.TrimSpace(title) == "" {
		return "", &ValidationError{Field: "title", Reason: "is required"}
	}
	if len(files) == 0 {
		return "", &ValidationError{Field: "files", Reason: "at least one file is required"}
	}

	var needed int64
	for _, f := range files {
		if strings.TrimSpace(f.Name) == "" {
			return "", &ValidationError{Field: "file name", Reason: "is required"}
		}
		if len(f.Data) == 0 {
			return "", &ValidationError{Field: "file " + f.Name, Reason: "has no payload"}
		}
		needed += int64(len(f.Data))
	}

	used, err := m.db.StorageUsage(ctx)
	if err != nil {
		return "", fmt.Errorf("enqueue: %w", err)
	}
	available := m.budget - used
	if available < 0 {
		available = 0
	}
	if needed > available {
		return "", &StorageExhaustedError{Available: available, Needed: needed}
	}

	now := time.Now()
	record := &models.Record{
		ID:          uuid.NewString(),
		Title:       title,
		Description: description,
		Synced:      false,
		CreatedAt:   now,
	}

	items := make([]*models.QueueItem, 0, len(files))
	for _, f := range files {
		size := int64(len(f.Data))
		record.Media = append(record.Media, models.MediaDescriptor{
			Name:     f.Name,
			MimeType: f.MimeType,
			Size:     size,
		})
		items = append(items, &models.QueueItem{
			ID:          uuid.NewString(),
			RecordID:    record.ID,
			FileName:    f.Name,
			MimeType:    f.MimeType,
			Size:        size,
			Payload:     f.Data,
			Title:       title,
			Description: description,
			Status:      models.StatusPending,
			MaxAttempts: m.maxAttempts,
			Chunked:     size > models.ChunkThreshold,
			CreatedAt:   now,
		})
	}

	if err := m.db.CreateSubmission(ctx, record, items); err != nil {
		return "", fmt.Errorf("enqueue: %w", err)
	}

	m.logger.Info().
		Str("record_id", record.ID).
		Int("files", len(items)).
		Int64("bytes", needed).
		Msg("Submission enqueued")

	return record.ID, nil
}

// ListPending returns pending items in enqueue order.
func (m *Manager) ListPending(ctx context.Context) ([]*models.QueueItem, error) {
	return m.db.GetPendingItems(ctx)
}

func (m *Manager) ListAll(ctx context.Context) ([]*models.QueueItem, error) {
	return m.db.GetAllItems(ctx)
}

func (m *Manager) ListByRecord(ctx context.Context, recordID string) ([]*models.QueueItem, error) {
	return m.db.GetItemsByRecord(ctx, recordID)
}

func (m *Manager) ListFailed(ctx context.Context) ([]*models.QueueItem, error) {
	return m.db.GetFailedItems(ctx)
}

func (m *Manager) ListByStatus(ctx context.Context, status string) ([]*models.QueueItem, error) {
	return m.db.GetItemsByStatus(ctx, status)
}

func (m *Manager) GetItem(ctx context.Context, id string) (*models.QueueItem, error) {
	return m.db.GetItem(ctx, id)
}

func (m *Manager) GetItemPayload(ctx context.Context, id string) ([]byte, error) {
	return m.db.GetItemPayload(ctx, id)
}

func (m *Manager) GetRecord(ctx context.Context, id string) (*models.Record, error) {
	return m.db.GetRecord(ctx, id)
}

func (m *Manager) ListRecords(ctx context.Context) ([]*models.Record, error) {
	return m.db.GetAllRecords(ctx)
}

// Update applies a partial update to one item.
func (m *Manager) Update(ctx context.Context, id string, update database.ItemUpdate) (*models.QueueItem, error) {
	return m.db.UpdateItem(ctx, id, update)
}

// Reconcile recomputes the parent record's synced flag from its children.
// Safe to call repeatedly; returns the resulting flag.
func (m *Manager) Reconcile(ctx context.Context, recordID string) (bool, error) {
	return m.db.ReconcileRecord(ctx, recordID)
}

// Stats returns the per-status breakdown of the queue.
func (m *Manager) Stats(ctx context.Context) (models.QueueStats, error) {
	return m.db.Stats(ctx)
}

// BeginAttempt moves an item into uploading: attempt counter up, progress
// back to zero. Called by the coordinator right before the transfer.
func (m *Manager) BeginAttempt(ctx context.Context, item *models.QueueItem) (*models.QueueItem, error) {
	status := models.StatusUploading
	attempts := item.Attempts + 1
	progress := 0
	var bytesUploaded int64
	now := time.Now()
	return m.db.UpdateItem(ctx, item.ID, database.ItemUpdate{
		Status:        &status,
		Attempts:      &attempts,
		Progress:      &progress,
		BytesUploaded: &bytesUploaded,
		LastAttemptAt: &now,
	})
}

// CompleteItem marks a successful transfer: synced, 100%, timestamped.
func (m *Manager) CompleteItem(ctx context.Context, item *models.QueueItem) (*models.QueueItem, error) {
	status := models.StatusSynced
	progress := 100
	bytesUploaded := item.Size
	now := time.Now()
	return m.db.UpdateItem(ctx, item.ID, database.ItemUpdate{
		Status:        &status,
		Progress:      &progress,
		BytesUploaded: &bytesUploaded,
		SyncedAt:      &now,
		ClearError:    true,
	})
}

// FailAttempt records a transfer failure. The item cycles back to
// pending until the attempt ceiling is reached, then parks as failed.
func (m *Manager) FailAttempt(ctx context.Context, item *models.QueueItem, cause error) (*models.QueueItem, error) {
	status := models.StatusPending
	if item.Attempts >= item.MaxAttempts {
		status = models.StatusFailed
	}
	msg := cause.Error()
	now := time.Now()
	return m.db.UpdateItem(ctx, item.ID, database.ItemUpdate{
		Status:        &status,
		LastError:     &msg,
		LastAttemptAt: &now,
	})
}

// RecordProgress persists chunk progress so a restart mid-item still
// shows how far the last attempt got.
func (m *Manager) RecordProgress(ctx context.Context, id string, bytesUploaded int64, percentage int) error {
	_, err := m.db.UpdateItem(ctx, id, database.ItemUpdate{
		Progress:      &percentage,
		BytesUploaded: &bytesUploaded,
	})
	return err
}

// RecoverInFlight returns items left uploading by a previous process to
// pending so the next pass picks them up. A restarted attempt begins
// again from chunk zero; the interrupted one keeps its attempt count.
func (m *Manager) RecoverInFlight(ctx context.Context) (int64, error) {
	recovered, err := m.db.RecoverInFlight(ctx)
	if err != nil {
		return 0, err
	}
	if recovered > 0 {
		m.logger.Info().Int64("items", recovered).Msg("Recovered interrupted uploads")
	}
	return recovered, nil
}

// ResetForRetry returns a failed item to pending with its error cleared
// and a fresh attempt budget, so an exhausted item can be retried.
func (m *Manager) ResetForRetry(ctx context.Context, id string) (*models.QueueItem, error) {
	status := models.StatusPending
	attempts := 0
	return m.db.UpdateItem(ctx, id, database.ItemUpdate{
		Status:     &status,
		Attempts:   &attempts,
		ClearError: true,
	})
}
