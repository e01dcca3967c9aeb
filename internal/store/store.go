package store

import (
	"context"
	"time"

	tethersync "github.com/hyperengineering/tether/internal/sync"
)

// Store is the durable persistence contract for the sync engine: upsert-by-key
// for device sync states, append for operations and resolutions, range queries
// by device and time for history retrieval, and delete-older-than for
// retention pruning.
type Store interface {
	// GetState loads the sync state for a device.
	// Returns ErrDeviceNotFound if the device has never synced.
	GetState(ctx context.Context, deviceID string) (*tethersync.State, error)

	// UpsertState creates or replaces the sync state for a device.
	UpsertState(ctx context.Context, state *tethersync.State) error

	// SaveOperation inserts or replaces an operation log entry. Called
	// once when the operation enters in_progress and again with the
	// terminal status.
	SaveOperation(ctx context.Context, op *tethersync.Operation) error

	// GetOperation retrieves an operation for a device.
	// Returns ErrOperationNotFound if it does not exist.
	GetOperation(ctx context.Context, deviceID, operationID string) (*tethersync.Operation, error)

	// GetHistory returns the most recent operations for a device,
	// newest first, up to limit.
	GetHistory(ctx context.Context, deviceID string, limit int) ([]tethersync.Operation, error)

	// LatestCompletedSyncBefore returns the most recent completed
	// sync-type operation for a device strictly before the given time.
	// Returns ErrOperationNotFound if none exists.
	LatestCompletedSyncBefore(ctx context.Context, deviceID string, before time.Time) (*tethersync.Operation, error)

	// AppendResolution appends a conflict resolution record.
	AppendResolution(ctx context.Context, res *tethersync.Resolution) error

	// CountResolutions returns the total number of resolution records.
	CountResolutions(ctx context.Context) (int64, error)

	// OperationsOlderThan returns operations with timestamps before the
	// cutoff, oldest first. Used to export audit records ahead of pruning.
	OperationsOlderThan(ctx context.Context, cutoff time.Time) ([]tethersync.Operation, error)

	// PruneOperations deletes operations older than the cutoff and
	// returns the number removed. Sync states are never pruned.
	PruneOperations(ctx context.Context, cutoff time.Time) (int64, error)

	// CountDevices returns the number of devices with a sync state.
	CountDevices(ctx context.Context) (int64, error)

	// Close releases the underlying database handle.
	Close() error
}
