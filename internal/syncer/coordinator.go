package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/KyPython/offline-media-sync/internal/events"
	"github.com/KyPython/offline-media-sync/internal/metrics"
	"github.com/KyPython/offline-media-sync/internal/models"
	"github.com/KyPython/offline-media-sync/internal/queue"
	"github.com/KyPython/offline-media-sync/internal/transfer"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ConnectivitySource answers whether the remote service is reachable.
type ConnectivitySource interface {
	IsOnline() bool
}

// Coordinator runs sync passes over pending queue items. At most one
// pass is in flight at a time; overlapping invocations return zero
// counts without touching any item.
type Coordinator struct {
	manager  *queue.Manager
	uploader *transfer.Uploader
	monitor  ConnectivitySource
	bus      *events.EventBus
	redis    *redis.Client
	logger   *zerolog.Logger

	stagger       time.Duration
	wakeKey       string
	deadLetterKey string

	running  atomic.Bool
	statusMu sync.RWMutex
	status   string
}

func NewCoordinator(manager *queue.Manager, uploader *transfer.Uploader, monitor ConnectivitySource, bus *events.EventBus, redisClient *redis.Client, stagger time.Duration, logger *zerolog.Logger) *Coordinator {
	if stagger <= 0 {
		stagger = 200 * time.Millisecond
	}
	return &Coordinator{
		manager:       manager,
		uploader:      uploader,
		monitor:       monitor,
		bus:           bus,
		redis:         redisClient,
		logger:        logger,
		stagger:       stagger,
		wakeKey:       "sync:wake",
		deadLetterKey: "sync:deadletter",
		status:        models.SyncIdle,
	}
}

// Status reports the coordinator's overall state: idle, syncing,
// success or error.
func (c *Coordinator) Status() string {
	c.statusMu.RLock()
	defer c.statusMu.RUnlock()
	return c.status
}

func (c *Coordinator) setStatus(status string, result models.SyncResult) {
	c.statusMu.Lock()
	c.status = status
	c.statusMu.Unlock()

	_ = c.bus.PublishJSON(events.EventSyncStatusChanged, events.SyncStatusPayload{
		Status: status,
		Synced: result.Synced,
		Failed: result.Failed,
	})
}

// Start wires the coordinator to its triggers: a pass when connectivity
// comes back, and a Redis wake list for background triggers. Manual
// passes go straight through SyncQueue.
func (c *Coordinator) Start(ctx context.Context) {
	c.bus.Subscribe(events.EventOnline, func(_ *events.Event) error {
		go func() {
			if _, err := c.SyncQueue(ctx); err != nil {
				c.logger.Error().Err(err).Msg("Online-triggered sync pass failed")
			}
		}()
		return nil
	})

	go c.wakeLoop(ctx)
}

// SyncQueue executes one pass: every pending item is dispatched, each
// outcome is collected, and the parent record is reconciled after every
// success. Transfer failures never escape; only store malfunctions do.
func (c *Coordinator) SyncQueue(ctx context.Context) (models.SyncResult, error) {
	if !c.running.CompareAndSwap(false, true) {
		return models.SyncResult{}, nil
	}
	defer c.running.Store(false)

	if !c.monitor.IsOnline() {
		c.logger.Debug().Msg("Offline, skipping sync pass")
		return models.SyncResult{}, nil
	}

	items, err := c.manager.ListPending(ctx)
	if err != nil {
		return models.SyncResult{}, err
	}
	if len(items) == 0 {
		c.setStatus(models.SyncSuccess, models.SyncResult{})
		return models.SyncResult{}, nil
	}

	c.setStatus(models.SyncRunning, models.SyncResult{})
	c.logger.Info().Int("pending", len(items)).Msg("Sync pass started")

	type itemOutcome struct {
		synced   bool
		storeErr error
	}

	outcomes := make([]itemOutcome, len(items))
	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		go func(index int, item *models.QueueItem) {
			defer wg.Done()
			// Stagger starts so a long queue does not burst the remote.
			select {
			case <-ctx.Done():
				outcomes[index] = itemOutcome{storeErr: ctx.Err()}
				return
			case <-time.After(time.Duration(index) * c.stagger):
			}
			synced, storeErr := c.syncItem(ctx, item)
			outcomes[index] = itemOutcome{synced: synced, storeErr: storeErr}
		}(i, item)
	}
	wg.Wait()

	var result models.SyncResult
	var storeErrs []error
	for _, outcome := range outcomes {
		if outcome.storeErr != nil {
			storeErrs = append(storeErrs, outcome.storeErr)
		}
		if outcome.synced {
			result.Synced++
		} else {
			result.Failed++
		}
	}

	status := models.SyncSuccess
	if result.Failed > 0 {
		status = models.SyncError
	}
	c.setStatus(status, result)
	metrics.IncSyncPass(status)
	c.publishQueueDepth(ctx)

	c.logger.Info().
		Int("synced", result.Synced).
		Int("failed", result.Failed).
		Msg("Sync pass finished")

	return result, errors.Join(storeErrs...)
}

// syncItem runs one item's attempt. The returned error is a store
// malfunction only; transfer failures land in the item's state.
func (c *Coordinator) syncItem(ctx context.Context, item *models.QueueItem) (bool, error) {
	item, err := c.manager.BeginAttempt(ctx, item)
	if err != nil {
		return false, err
	}

	payload, err := c.manager.GetItemPayload(ctx, item.ID)
	if err != nil {
		return false, err
	}

	transferErr := c.uploader.Upload(ctx, item, payload, func(bytesUploaded int64, percentage int) {
		c.reportProgress(ctx, item, bytesUploaded, percentage)
	})

	if transferErr != nil {
		updated, err := c.manager.FailAttempt(ctx, item, transferErr)
		if err != nil {
			return false, err
		}
		metrics.IncItem(updated.Status)
		_ = c.bus.PublishJSON(events.EventItemFailed, events.ItemResultPayload{
			ItemID:   updated.ID,
			RecordID: updated.RecordID,
			Attempts: updated.Attempts,
			Error:    transferErr.Error(),
		})
		if updated.Status == models.StatusFailed {
			c.pushDeadLetter(ctx, updated)
		}
		return false, nil
	}

	updated, err := c.manager.CompleteItem(ctx, item)
	if err != nil {
		return false, err
	}
	metrics.IncItem(models.StatusSynced)
	metrics.AddBytes(updated.Size)
	_ = c.bus.PublishJSON(events.EventItemSynced, events.ItemResultPayload{
		ItemID:   updated.ID,
		RecordID: updated.RecordID,
		Attempts: updated.Attempts,
	})

	recordSynced, err := c.manager.Reconcile(ctx, updated.RecordID)
	if err != nil {
		return true, err
	}
	if recordSynced {
		_ = c.bus.PublishJSON(events.EventRecordSynced, map[string]string{"record_id": updated.RecordID})
	}
	return true, nil
}

func (c *Coordinator) reportProgress(ctx context.Context, item *models.QueueItem, bytesUploaded int64, percentage int) {
	if item.Chunked {
		metrics.IncChunk()
	}
	if err := c.manager.RecordProgress(ctx, item.ID, bytesUploaded, percentage); err != nil {
		c.logger.Warn().Err(err).Str("item_id", item.ID).Msg("Failed to persist progress")
	}
	_ = c.bus.PublishJSON(events.EventItemProgress, models.ProgressUpdate{
		ItemID:        item.ID,
		Percentage:    percentage,
		BytesUploaded: bytesUploaded,
		TotalBytes:    item.Size,
	})
}

// RetryFailed returns exhausted items to pending with a fresh attempt
// budget and, when online, immediately runs a pass over them.
func (c *Coordinator) RetryFailed(ctx context.Context) (models.SyncResult, error) {
	failed, err := c.manager.ListFailed(ctx)
	if err != nil {
		return models.SyncResult{}, err
	}

	for _, item := range failed {
		if _, err := c.manager.ResetForRetry(ctx, item.ID); err != nil {
			return models.SyncResult{}, err
		}
	}

	if len(failed) == 0 || !c.monitor.IsOnline() {
		return models.SyncResult{}, nil
	}
	return c.SyncQueue(ctx)
}

// wakeLoop blocks on the Redis wake list so an external process can
// nudge the coordinator while the agent idles in the background.
func (c *Coordinator) wakeLoop(ctx context.Context) {
	if c.redis == nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := c.redis.BRPop(ctx, time.Second, c.wakeKey).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			c.logger.Warn().Err(err).Msg("Wake list poll error")
			continue
		}
		if len(res) != 2 {
			continue
		}

		c.logger.Info().Str("signal", res[1]).Msg("Background wake received")
		if _, err := c.SyncQueue(ctx); err != nil {
			c.logger.Error().Err(err).Msg("Background sync pass failed")
		}
	}
}

// pushDeadLetter mirrors an exhausted item onto a Redis list for
// external inspection. Best effort, nil-safe.
func (c *Coordinator) pushDeadLetter(ctx context.Context, item *models.QueueItem) {
	if c.redis == nil {
		return
	}
	data, err := json.Marshal(item)
	if err != nil {
		c.logger.Warn().Err(err).Str("item_id", item.ID).Msg("Failed to encode dead letter")
		return
	}
	if err := c.redis.LPush(ctx, c.deadLetterKey, data).Err(); err != nil {
		c.logger.Warn().Err(err).Str("item_id", item.ID).Msg("Failed to push dead letter")
	}
}

func (c *Coordinator) publishQueueDepth(ctx context.Context) {
	stats, err := c.manager.Stats(ctx)
	if err != nil {
		return
	}
	metrics.SetQueueDepth(models.StatusPending, stats.Pending)
	metrics.SetQueueDepth(models.StatusUploading, stats.Uploading)
	metrics.SetQueueDepth(models.StatusSynced, stats.Synced)
	metrics.SetQueueDepth(models.StatusFailed, stats.Failed)
}
