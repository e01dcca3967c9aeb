package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hyperengineering/tether/internal/store"
	tethersync "github.com/hyperengineering/tether/internal/sync"
	"github.com/oklog/ulid/v2"
)

// Rollback reverts a device's recorded sync status to its last known-good
// operation. The target operation is looked up first: an unknown id returns
// store.ErrOperationNotFound before any write, so callers can distinguish
// "already rolled back" from "never existed". The rollback itself is audited
// as its own operation.
//
// Rollback restores status only; it does not replay historical state field
// values. It is a safety valve, not a state reconstruction.
func (e *Engine) Rollback(ctx context.Context, deviceID, operationID string) (*tethersync.RollbackResult, error) {
	lock := e.deviceLock(deviceID)
	lock.Lock()
	defer lock.Unlock()

	target, err := e.store.GetOperation(ctx, deviceID, operationID)
	if err != nil {
		return nil, fmt.Errorf("rollback device %s: %w", deviceID, err)
	}

	start := time.Now()
	rollbackOp := &tethersync.Operation{
		OperationID:   ulid.Make().String(),
		DeviceID:      deviceID,
		Timestamp:     start.UTC(),
		Status:        tethersync.StatusInProgress,
		OperationType: tethersync.OperationRollback,
		// ObjectID references the operation being rolled back.
		ObjectID: operationID,
	}
	if err := e.store.SaveOperation(ctx, rollbackOp); err != nil {
		return nil, fmt.Errorf("persist rollback operation: %w", err)
	}

	if err := e.restoreLastKnownGood(ctx, deviceID, target); err != nil {
		rollbackOp.Status = tethersync.StatusFailed
		rollbackOp.ErrorMessage = err.Error()
		rollbackOp.DurationMS = time.Since(start).Milliseconds()
		if saveErr := e.store.SaveOperation(ctx, rollbackOp); saveErr != nil {
			slog.Error("failed to persist failed rollback",
				"component", "engine",
				"device_id", deviceID,
				"operation_id", rollbackOp.OperationID,
				"error", saveErr,
			)
		}
		return nil, fmt.Errorf("rollback device %s: %w", deviceID, err)
	}

	rollbackOp.Status = tethersync.StatusCompleted
	rollbackOp.DurationMS = time.Since(start).Milliseconds()
	if err := e.store.SaveOperation(ctx, rollbackOp); err != nil {
		return nil, fmt.Errorf("persist rollback operation: %w", err)
	}

	e.metrics.recordRollback()

	slog.Info("rollback completed",
		"component", "engine",
		"action", "rollback",
		"device_id", deviceID,
		"operation_id", rollbackOp.OperationID,
		"rolled_back", operationID,
	)

	return &tethersync.RollbackResult{
		OperationID:         rollbackOp.OperationID,
		RolledBackOperation: operationID,
	}, nil
}

// restoreLastKnownGood flips the device status back to completed when a
// completed sync exists prior to the rolled-back operation. A device with
// no prior completed sync keeps its current state; the rollback still
// completes and is audited.
func (e *Engine) restoreLastKnownGood(ctx context.Context, deviceID string, target *tethersync.Operation) error {
	state, err := e.store.GetState(ctx, deviceID)
	if errors.Is(err, store.ErrDeviceNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load sync state: %w", err)
	}

	_, err = e.store.LatestCompletedSyncBefore(ctx, deviceID, target.Timestamp)
	if errors.Is(err, store.ErrOperationNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("find last completed sync: %w", err)
	}

	state.Status = tethersync.StatusCompleted
	if err := e.store.UpsertState(ctx, state); err != nil {
		return fmt.Errorf("restore sync state: %w", err)
	}
	return nil
}
