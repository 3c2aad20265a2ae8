package transfer

import (
	"context"
	"fmt"
	"time"

	"github.com/KyPython/offline-media-sync/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ProgressFunc receives cumulative uploaded bytes and the rounded
// percentage after every transferred chunk.
type ProgressFunc func(bytesUploaded int64, percentage int)

// Uploader drives one queue item through the transfer protocol. The
// mode (whole vs chunked) was fixed at enqueue time and is read off the
// item, never recomputed.
type Uploader struct {
	client Client
	retry  RetryPolicy
	logger *zerolog.Logger
}

func NewUploader(client Client, retry RetryPolicy, logger *zerolog.Logger) *Uploader {
	if retry.MaxRetries == 0 {
		retry.MaxRetries = models.ChunkMaxRetries
	}
	if retry.BaseDelay == 0 {
		retry.BaseDelay = time.Second
	}
	return &Uploader{client: client, retry: retry, logger: logger}
}

// Upload transfers the payload. Any returned error is a TransferError
// and counts as one failed attempt for the item.
func (u *Uploader) Upload(ctx context.Context, item *models.QueueItem, payload []byte, onProgress ProgressFunc) error {
	if item.Chunked {
		return u.uploadChunked(ctx, item, payload, onProgress)
	}
	return u.uploadWhole(ctx, item, payload, onProgress)
}

func (u *Uploader) uploadWhole(ctx context.Context, item *models.QueueItem, payload []byte, onProgress ProgressFunc) error {
	meta := Metadata{
		FileName:    item.FileName,
		MimeType:    item.MimeType,
		Title:       item.Title,
		Description: item.Description,
	}
	if err := u.client.UploadWhole(ctx, item.RecordID, meta, payload); err != nil {
		return err
	}
	if onProgress != nil {
		onProgress(item.Size, 100)
	}
	return nil
}

func (u *Uploader) uploadChunked(ctx context.Context, item *models.QueueItem, payload []byte, onProgress ProgressFunc) error {
	size := int64(len(payload))
	totalChunks := ChunkCount(size, models.ChunkSize)

	desc := FileDescriptor{
		Name:        item.FileName,
		MimeType:    item.MimeType,
		Size:        size,
		TotalChunks: totalChunks,
		Token:       uuid.NewString(),
	}

	init, err := u.client.InitChunked(ctx, item.RecordID, desc)
	if err != nil {
		return err
	}

	u.logger.Debug().
		Str("item_id", item.ID).
		Str("upload_id", init.UploadID).
		Int("chunks", totalChunks).
		Msg("Chunked upload initialized")

	for index := 0; index < totalChunks; index++ {
		start, end := ChunkRange(index, size, models.ChunkSize)
		if err := u.sendChunkWithRetry(ctx, init, item, index, totalChunks, payload[start:end]); err != nil {
			return err
		}

		uploaded := CumulativeBytes(index, size, models.ChunkSize)
		if onProgress != nil {
			onProgress(uploaded, Percentage(uploaded, size))
		}
	}

	return u.client.FinalizeChunked(ctx, init.UploadID, item.RecordID)
}

// sendChunkWithRetry retries one chunk with exponential backoff. Earlier
// chunks are never re-sent; exhausting retries fails the whole transfer.
func (u *Uploader) sendChunkWithRetry(ctx context.Context, init InitResult, item *models.QueueItem, index, totalChunks int, data []byte) error {
	var lastErr error
	for attempt := 1; attempt <= u.retry.MaxRetries; attempt++ {
		lastErr = u.client.UploadChunk(ctx, init.ChunkEndpoint, init.UploadID, index, totalChunks, data)
		if lastErr == nil {
			return nil
		}

		u.logger.Warn().
			Err(lastErr).
			Str("item_id", item.ID).
			Int("chunk", index).
			Int("attempt", attempt).
			Msg("Chunk upload failed")

		if attempt == u.retry.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return &TransferError{Phase: "chunk", Err: ctx.Err()}
		case <-time.After(u.retry.NextDelay(attempt)):
		}
	}
	return &TransferError{Phase: "chunk", Err: fmt.Errorf("chunk %d/%d exhausted %d retries: %w", index, totalChunks, u.retry.MaxRetries, lastErr)}
}
