package engine

import (
	"context"
	"fmt"
	"sync"

	tethersync "github.com/hyperengineering/tether/internal/sync"
)

// metrics holds the engine's aggregate counters. The durable store remains
// the source of truth for per-device state; these counters are process
// lifetime only, matching their reporting role.
type metrics struct {
	mu                sync.Mutex
	totalSyncs        int64
	successfulSyncs   int64
	conflictsResolved int64
	rollbacks         int64
	totalSyncTimeMS   int64
}

func (m *metrics) recordSync(durationMS, resolved int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalSyncs++
	m.successfulSyncs++
	m.conflictsResolved += resolved
	m.totalSyncTimeMS += durationMS
}

func (m *metrics) recordFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalSyncs++
}

func (m *metrics) recordRollback() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollbacks++
}

func (m *metrics) snapshot() tethersync.Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	var average float64
	if m.successfulSyncs > 0 {
		average = float64(m.totalSyncTimeMS) / float64(m.successfulSyncs)
	}

	return tethersync.Metrics{
		TotalSyncs:        m.totalSyncs,
		SuccessfulSyncs:   m.successfulSyncs,
		ConflictsResolved: m.conflictsResolved,
		Rollbacks:         m.rollbacks,
		AverageSyncTimeMS: average,
	}
}

// GetMetrics returns the engine-wide aggregate view. Device count comes
// from the durable store rather than any in-process structure.
func (e *Engine) GetMetrics(ctx context.Context) (*tethersync.Metrics, error) {
	snapshot := e.metrics.snapshot()

	devices, err := e.store.CountDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("count devices: %w", err)
	}
	snapshot.TotalDevices = devices

	return &snapshot, nil
}
