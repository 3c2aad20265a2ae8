package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	syncPasses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "offline_media_sync",
			Name:      "sync_passes_total",
			Help:      "Sync passes by outcome.",
		},
		[]string{"outcome"},
	)

	itemsTransferred = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "offline_media_sync",
			Name:      "items_transferred_total",
			Help:      "Queue items by terminal transfer outcome.",
		},
		[]string{"outcome"},
	)

	chunksUploaded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "offline_media_sync",
			Name:      "chunks_uploaded_total",
			Help:      "Successfully uploaded chunks.",
		},
	)

	bytesUploaded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "offline_media_sync",
			Name:      "bytes_uploaded_total",
			Help:      "Payload bytes confirmed uploaded.",
		},
	)

	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "offline_media_sync",
			Name:      "queue_depth",
			Help:      "Queue items by status.",
		},
		[]string{"status"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(syncPasses, itemsTransferred, chunksUploaded, bytesUploaded, queueDepth)
	})
}

// IncSyncPass counts one finished pass with its outcome label.
func IncSyncPass(outcome string) {
	syncPasses.WithLabelValues(outcome).Inc()
}

// IncItem counts one item reaching a terminal outcome in a pass.
func IncItem(outcome string) {
	itemsTransferred.WithLabelValues(outcome).Inc()
}

// IncChunk counts one uploaded chunk.
func IncChunk() {
	chunksUploaded.Inc()
}

// AddBytes counts confirmed uploaded payload bytes.
func AddBytes(n int64) {
	if n > 0 {
		bytesUploaded.Add(float64(n))
	}
}

// SetQueueDepth records the current number of items in a status.
func SetQueueDepth(status string, n int) {
	queueDepth.WithLabelValues(status).Set(float64(n))
}
