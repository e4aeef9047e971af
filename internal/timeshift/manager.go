package timeshift

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/true85/radio/internal/platform/metrics"
)

// Manager owns the named harvester instances. Each station is an independent
// actor; the manager only routes start/stop calls and tracks liveness.
type Manager struct {
	segments SegmentStore
	ckpt     CheckpointStore
	client   *http.Client
	log      *slog.Logger
	metrics  *metrics.Metrics
	ctx      context.Context

	mu       sync.Mutex
	stations map[StationID]*Harvester
}

// NewManager returns a Manager creating harvesters against the given stores.
// ctx bounds all harvester work; cancelling it ends in-flight ticks.
func NewManager(ctx context.Context, segments SegmentStore, ckpt CheckpointStore, client *http.Client, log *slog.Logger, m *metrics.Metrics) *Manager {
	return &Manager{
		segments: segments,
		ckpt:     ckpt,
		client:   client,
		log:      log,
		metrics:  m,
		ctx:      ctx,
		stations: make(map[StationID]*Harvester),
	}
}

// Start creates or reconfigures the named station and (re)starts its
// polling chain.
func (m *Manager) Start(ctx context.Context, station StationID, cfg StationConfig) error {
	m.mu.Lock()
	h, ok := m.stations[station]
	if !ok {
		h = NewHarvester(m.ctx, station, m.segments, m.ckpt, m.client, m.log, m.metrics)
		m.stations[station] = h
	}
	m.mu.Unlock()

	return h.Start(ctx, cfg)
}

// Stop marks the named station inactive and cancels its pending tick. A
// station this process never started still gets its persisted active flag
// cleared, so a tick chain elsewhere terminates too.
func (m *Manager) Stop(ctx context.Context, station StationID) error {
	m.mu.Lock()
	h, ok := m.stations[station]
	m.mu.Unlock()

	if !ok {
		return m.ckpt.SetActive(ctx, station, false)
	}
	return h.Stop(ctx)
}

// ActiveCount returns how many stations have a running polling chain.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, h := range m.stations {
		if h.Running() {
			n++
		}
	}
	return n
}

// Shutdown cancels every pending tick without clearing the persisted active
// flags, so stations resume when the process comes back.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, h := range m.stations {
		h.cancel()
	}
}
