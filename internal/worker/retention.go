package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hyperengineering/tether/internal/archive"
	tethersync "github.com/hyperengineering/tether/internal/sync"
)

// RetentionStore defines the store operations needed by the retention worker.
type RetentionStore interface {
	OperationsOlderThan(ctx context.Context, cutoff time.Time) ([]tethersync.Operation, error)
	PruneOperations(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetentionWorker periodically archives and prunes expired operation records.
// When an archive target is configured, records are exported before deletion;
// an archive failure skips the prune so no audit record is lost.
type RetentionWorker struct {
	store         RetentionStore
	archiver      archive.Archiver
	interval      time.Duration
	retentionDays int
}

// NewRetentionWorker creates a worker with the given store, archiver,
// interval, and retention window in days.
func NewRetentionWorker(store RetentionStore, archiver archive.Archiver, interval time.Duration, retentionDays int) *RetentionWorker {
	return &RetentionWorker{
		store:         store,
		archiver:      archiver,
		interval:      interval,
		retentionDays: retentionDays,
	}
}

// Run starts the worker loop. Blocks until ctx is cancelled.
// Does NOT run immediately on start; retention is a slow operation best
// run on schedule.
func (w *RetentionWorker) Run(ctx context.Context) {
	slog.Info("worker started",
		"component", "worker",
		"worker", "retention",
		"interval", w.interval.String(),
		"retention_days", w.retentionDays,
	)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped",
				"component", "worker",
				"worker", "retention",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			if err := w.RunOnce(ctx); err != nil {
				// Check for graceful shutdown
				if ctx.Err() != nil {
					return
				}
				slog.Error("retention cycle failed",
					"component", "worker",
					"action", "retention_failed",
					"error", err,
				)
			}
		}
	}
}

// RunOnce executes a single archive-then-prune cycle.
func (w *RetentionWorker) RunOnce(ctx context.Context) error {
	start := time.Now()
	cutoff := start.UTC().AddDate(0, 0, -w.retentionDays)

	expired, err := w.store.OperationsOlderThan(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("list expired operations: %w", err)
	}
	if len(expired) == 0 {
		slog.Debug("retention cycle idle",
			"component", "worker",
			"action", "retention_idle",
			"cutoff", cutoff.Format(time.RFC3339),
		)
		return nil
	}

	var archiveKey string
	if w.archiver.Configured() {
		archiveKey, err = w.archiver.ArchiveOperations(ctx, cutoff, expired)
		if err != nil {
			return fmt.Errorf("archive expired operations: %w", err)
		}
	}

	pruned, err := w.store.PruneOperations(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("prune expired operations: %w", err)
	}

	slog.Info("retention cycle completed",
		"component", "worker",
		"action", "retention_complete",
		"expired", len(expired),
		"pruned", pruned,
		"archive_key", archiveKey,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}
