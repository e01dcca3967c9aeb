// Package engine implements the offline sync coordinator: it reconciles
// change sets from disconnected devices against an authoritative remote
// snapshot, resolving conflicts inline and recording every operation and
// resolution in the durable store.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hyperengineering/tether/internal/store"
	tethersync "github.com/hyperengineering/tether/internal/sync"
	"github.com/oklog/ulid/v2"
)

// ErrMissingID is returned when a submitted change record has no stable id.
var ErrMissingID = errors.New("change record missing id")

// Engine orchestrates sync rounds and rollbacks. All durable state lives in
// the store; nothing is cached across calls.
type Engine struct {
	store           store.Store
	defaultStrategy tethersync.Strategy

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	metrics metrics
}

// New creates an Engine backed by the given store. defaultStrategy applies
// when a sync call does not name one; empty means auto.
func New(s store.Store, defaultStrategy tethersync.Strategy) *Engine {
	if defaultStrategy == "" {
		defaultStrategy = tethersync.StrategyAuto
	}
	return &Engine{
		store:           s,
		defaultStrategy: defaultStrategy,
		locks:           make(map[string]*sync.Mutex),
	}
}

// deviceLock returns the mutex serializing all sync/rollback activity for
// one device. Different devices proceed fully in parallel.
func (e *Engine) deviceLock(deviceID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.locks[deviceID]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[deviceID] = lock
	}
	return lock
}

// Sync performs one reconciliation round for a device. Each local change is
// looked up in the remote snapshot: absent objects pass through as safe,
// present ones are classified and, when conflicting, resolved with the
// given strategy (engine default when empty). Exactly one operation record
// and one resolution record per conflict are durably appended.
func (e *Engine) Sync(ctx context.Context, deviceID string, changes []tethersync.ChangeRecord, snapshot tethersync.RemoteState, strategy tethersync.Strategy) (*tethersync.Result, error) {
	if strategy == "" {
		strategy = e.defaultStrategy
	}

	// Validate before any durable write so a malformed batch leaves no trace.
	for i, change := range changes {
		if change.ID() == "" {
			return nil, fmt.Errorf("change %d: %w", i, ErrMissingID)
		}
	}

	lock := e.deviceLock(deviceID)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	now := start.UTC()

	op := &tethersync.Operation{
		OperationID:   ulid.Make().String(),
		DeviceID:      deviceID,
		Timestamp:     now,
		Status:        tethersync.StatusPending,
		OperationType: tethersync.OperationSync,
	}

	op.Status = tethersync.StatusInProgress
	if err := e.store.SaveOperation(ctx, op); err != nil {
		return nil, fmt.Errorf("persist operation: %w", err)
	}

	state, err := e.loadOrCreateState(ctx, deviceID, snapshot, now)
	if err != nil {
		return nil, e.failOperation(ctx, op, nil, start, err)
	}

	state.Status = tethersync.StatusInProgress
	state.TotalOperations++
	if err := e.store.UpsertState(ctx, state); err != nil {
		return nil, e.failOperation(ctx, op, nil, start, err)
	}

	result, err := e.processChanges(ctx, op, changes, snapshot, strategy)
	if err != nil {
		return nil, e.failOperation(ctx, op, state, start, err)
	}

	// Commit the round: state reflects the new remote snapshot.
	state.LastSyncTimestamp = now
	state.LastRemoteFingerprint = snapshot.EffectiveFingerprint()
	state.UnsyncedChanges = []string{}
	state.Status = tethersync.StatusCompleted
	state.SuccessCount++
	state.ConflictCount += int64(result.Conflicts)
	if err := e.store.UpsertState(ctx, state); err != nil {
		return nil, e.failOperation(ctx, op, state, start, err)
	}

	op.Status = tethersync.StatusCompleted
	op.RemoteFingerprint = state.LastRemoteFingerprint
	op.DurationMS = time.Since(start).Milliseconds()
	if err := e.store.SaveOperation(ctx, op); err != nil {
		return nil, e.failOperation(ctx, op, state, start, err)
	}

	e.metrics.recordSync(op.DurationMS, int64(result.Resolved))

	result.OperationID = op.OperationID
	result.DurationMS = op.DurationMS
	result.State = *state

	slog.Info("sync completed",
		"component", "engine",
		"action", "sync",
		"device_id", deviceID,
		"operation_id", op.OperationID,
		"synced", result.SyncedCount,
		"conflicts", result.Conflicts,
		"resolved", result.Resolved,
		"manual", result.Manual,
		"duration_ms", op.DurationMS,
	)

	return result, nil
}

// loadOrCreateState loads the device's sync state, lazily creating a fresh
// one on first contact.
func (e *Engine) loadOrCreateState(ctx context.Context, deviceID string, snapshot tethersync.RemoteState, now time.Time) (*tethersync.State, error) {
	state, err := e.store.GetState(ctx, deviceID)
	if errors.Is(err, store.ErrDeviceNotFound) {
		return &tethersync.State{
			DeviceID:              deviceID,
			LastSyncTimestamp:     now,
			LastRemoteFingerprint: snapshot.EffectiveFingerprint(),
			UnsyncedChanges:       []string{},
			Status:                tethersync.StatusPending,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load sync state: %w", err)
	}
	return state, nil
}

// processChanges partitions local changes into safe and conflicting in the
// submitted order, resolving conflicts inline. Resolution records are
// appended as conflicts resolve so the decision trail survives a later
// failure in the round.
func (e *Engine) processChanges(ctx context.Context, op *tethersync.Operation, changes []tethersync.ChangeRecord, snapshot tethersync.RemoteState, strategy tethersync.Strategy) (*tethersync.Result, error) {
	result := &tethersync.Result{Changes: make([]tethersync.ChangeRecord, 0)}

	for _, change := range changes {
		remote, present := snapshot.Objects[change.ID()]
		if !present {
			// New object, safe to sync.
			result.SyncedCount++
			continue
		}

		conflictType, conflicting := tethersync.Detect(change, remote)
		if !conflicting {
			result.SyncedCount++
			continue
		}

		op.Status = tethersync.StatusConflict
		if result.Conflicts == 0 {
			op.ConflictType = conflictType
			op.ResolutionStrategy = strategy
		}
		result.Conflicts++

		resolved, record := tethersync.Resolve(conflictType, change, remote, strategy)
		if err := e.store.AppendResolution(ctx, &record); err != nil {
			return nil, fmt.Errorf("persist resolution: %w", err)
		}

		if strategy == tethersync.StrategyManual {
			result.Manual++
		} else {
			result.Resolved++
		}
		result.Changes = append(result.Changes, resolved)

		slog.Debug("conflict resolved",
			"component", "engine",
			"action", "resolve",
			"device_id", op.DeviceID,
			"object_id", change.ID(),
			"conflict_type", string(conflictType),
			"strategy", string(strategy),
			"resolved_by", record.ResolvedBy,
		)
	}

	return result, nil
}

// failOperation marks the operation and state failed, persists both on a
// best-effort basis, and returns the wrapped cause. Local changes are never
// silently dropped; the caller sees the failure.
func (e *Engine) failOperation(ctx context.Context, op *tethersync.Operation, state *tethersync.State, start time.Time, cause error) error {
	op.Status = tethersync.StatusFailed
	op.ErrorMessage = cause.Error()
	op.DurationMS = time.Since(start).Milliseconds()
	if err := e.store.SaveOperation(ctx, op); err != nil {
		slog.Error("failed to persist failed operation",
			"component", "engine",
			"device_id", op.DeviceID,
			"operation_id", op.OperationID,
			"error", err,
		)
	}

	if state != nil {
		state.Status = tethersync.StatusFailed
		if err := e.store.UpsertState(ctx, state); err != nil {
			slog.Error("failed to persist failed state",
				"component", "engine",
				"device_id", op.DeviceID,
				"error", err,
			)
		}
	}

	e.metrics.recordFailure()

	slog.Error("sync failed",
		"component", "engine",
		"action", "sync_failed",
		"device_id", op.DeviceID,
		"operation_id", op.OperationID,
		"error", cause,
	)

	return fmt.Errorf("sync device %s: %w", op.DeviceID, cause)
}
