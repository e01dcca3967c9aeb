package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	tethersync "github.com/hyperengineering/tether/internal/sync"
)

// DefaultHistoryLimit caps history queries that do not name a limit.
const DefaultHistoryLimit = 50

// GetStatus returns the current sync state for a device.
// Returns store.ErrDeviceNotFound for devices that have never synced.
func (e *Engine) GetStatus(ctx context.Context, deviceID string) (*tethersync.State, error) {
	state, err := e.store.GetState(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("status device %s: %w", deviceID, err)
	}
	return state, nil
}

// GetHistory returns the most recent operations for a device, newest first.
func (e *Engine) GetHistory(ctx context.Context, deviceID string, limit int) ([]tethersync.Operation, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	history, err := e.store.GetHistory(ctx, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("history device %s: %w", deviceID, err)
	}
	return history, nil
}

// PruneHistory deletes operation records older than the retention window.
// Sync states are never pruned.
func (e *Engine) PruneHistory(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)

	pruned, err := e.store.PruneOperations(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}

	if pruned > 0 {
		slog.Info("history pruned",
			"component", "engine",
			"action", "prune",
			"retention_days", retentionDays,
			"pruned", pruned,
		)
	}

	return pruned, nil
}
