package connectivity

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/KyPython/offline-media-sync/internal/config"
	"github.com/KyPython/offline-media-sync/internal/events"

	"github.com/rs/zerolog"
)

// Monitor tracks whether the remote service is reachable. It probes a
// health endpoint on an interval and publishes online/offline events on
// transitions. With no probe URL configured it reports always-online.
type Monitor struct {
	probeURL string
	interval time.Duration
	online   atomic.Bool
	bus      *events.EventBus
	http     *http.Client
	logger   *zerolog.Logger
}

func NewMonitor(cfg config.ConnectivityConfig, bus *events.EventBus, logger *zerolog.Logger) *Monitor {
	m := &Monitor{
		probeURL: cfg.ProbeURL,
		interval: cfg.ProbeInterval,
		bus:      bus,
		http:     &http.Client{Timeout: cfg.ProbeTimeout},
		logger:   logger,
	}
	if m.interval <= 0 {
		m.interval = 15 * time.Second
	}
	// Start optimistic so a freshly booted agent tries a pass right away.
	m.online.Store(true)
	return m
}

// IsOnline reports the last observed connectivity state.
func (m *Monitor) IsOnline() bool {
	return m.online.Load()
}

// SetOnline forces the state, publishing a transition event if it
// changed. Used by external signals and tests.
func (m *Monitor) SetOnline(online bool) {
	if m.online.Swap(online) == online {
		return
	}
	eventType := events.EventOffline
	if online {
		eventType = events.EventOnline
	}
	_ = m.bus.PublishJSON(eventType, map[string]bool{"online": online})
	m.logger.Info().Bool("online", online).Msg("Connectivity changed")
}

// Start probes until ctx is done. No-op without a probe URL.
func (m *Monitor) Start(ctx context.Context) {
	if m.probeURL == "" {
		m.logger.Info().Msg("Connectivity probe disabled, assuming online")
		return
	}

	m.SetOnline(m.probe(ctx))

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.SetOnline(m.probe(ctx))
		}
	}
}

func (m *Monitor) probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, m.probeURL, nil)
	if err != nil {
		return false
	}
	resp, err := m.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 500
}
