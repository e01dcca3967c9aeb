package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	tethersync "github.com/hyperengineering/tether/internal/sync"
	_ "modernc.org/sqlite"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestStore_NewSQLiteStore(t *testing.T) {
	db, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
}

func TestStore_GetState_NotFound(t *testing.T) {
	db := newTestStore(t)

	_, err := db.GetState(context.Background(), "unknown-device")
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("expected ErrDeviceNotFound, got %v", err)
	}
}

func TestStore_UpsertAndGetState(t *testing.T) {
	db := newTestStore(t)
	ctx := context.Background()

	state := &tethersync.State{
		DeviceID:              "device-1",
		LastSyncTimestamp:     time.Now().UTC().Truncate(time.Millisecond),
		LastRemoteFingerprint: "abc123",
		UnsyncedChanges:       []string{"obj-1", "obj-2"},
		Status:                tethersync.StatusCompleted,
		ConflictCount:         2,
		SuccessCount:          5,
		TotalOperations:       7,
	}

	if err := db.UpsertState(ctx, state); err != nil {
		t.Fatal(err)
	}

	loaded, err := db.GetState(ctx, "device-1")
	if err != nil {
		t.Fatal(err)
	}

	if loaded.LastRemoteFingerprint != "abc123" {
		t.Errorf("fingerprint mismatch: %s", loaded.LastRemoteFingerprint)
	}
	if len(loaded.UnsyncedChanges) != 2 {
		t.Errorf("expected 2 unsynced changes, got %d", len(loaded.UnsyncedChanges))
	}
	if !loaded.LastSyncTimestamp.Equal(state.LastSyncTimestamp) {
		t.Errorf("timestamp mismatch: %v != %v", loaded.LastSyncTimestamp, state.LastSyncTimestamp)
	}
	if loaded.TotalOperations != 7 || loaded.SuccessCount != 5 {
		t.Errorf("counter mismatch: %+v", loaded)
	}

	// Upsert replaces the existing row.
	state.Status = tethersync.StatusFailed
	state.TotalOperations = 8
	if err := db.UpsertState(ctx, state); err != nil {
		t.Fatal(err)
	}

	loaded, err = db.GetState(ctx, "device-1")
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Status != tethersync.StatusFailed || loaded.TotalOperations != 8 {
		t.Errorf("upsert did not replace: %+v", loaded)
	}
}

func TestStore_UpsertState_NilUnsyncedChanges(t *testing.T) {
	db := newTestStore(t)
	ctx := context.Background()

	state := &tethersync.State{
		DeviceID:          "device-nil",
		LastSyncTimestamp: time.Now().UTC(),
		Status:            tethersync.StatusPending,
	}
	if err := db.UpsertState(ctx, state); err != nil {
		t.Fatal(err)
	}

	loaded, err := db.GetState(ctx, "device-nil")
	if err != nil {
		t.Fatal(err)
	}
	if loaded.UnsyncedChanges == nil || len(loaded.UnsyncedChanges) != 0 {
		t.Errorf("expected empty slice, got %v", loaded.UnsyncedChanges)
	}
}

func TestStore_SaveAndGetOperation(t *testing.T) {
	db := newTestStore(t)
	ctx := context.Background()

	op := &tethersync.Operation{
		OperationID:   "op-1",
		DeviceID:      "device-1",
		Timestamp:     time.Now().UTC().Truncate(time.Millisecond),
		Status:        tethersync.StatusInProgress,
		OperationType: tethersync.OperationSync,
	}
	if err := db.SaveOperation(ctx, op); err != nil {
		t.Fatal(err)
	}

	// Terminal update replaces the in-progress row.
	op.Status = tethersync.StatusCompleted
	op.DurationMS = 42
	op.RemoteFingerprint = "fp-remote"
	if err := db.SaveOperation(ctx, op); err != nil {
		t.Fatal(err)
	}

	loaded, err := db.GetOperation(ctx, "device-1", "op-1")
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Status != tethersync.StatusCompleted {
		t.Errorf("expected completed, got %s", loaded.Status)
	}
	if loaded.DurationMS != 42 {
		t.Errorf("expected duration 42, got %d", loaded.DurationMS)
	}
	if loaded.RemoteFingerprint != "fp-remote" {
		t.Errorf("fingerprint mismatch: %s", loaded.RemoteFingerprint)
	}
}

func TestStore_GetOperation_NotFound(t *testing.T) {
	db := newTestStore(t)

	_, err := db.GetOperation(context.Background(), "device-1", "zzz")
	if !errors.Is(err, ErrOperationNotFound) {
		t.Errorf("expected ErrOperationNotFound, got %v", err)
	}
}

func TestStore_GetOperation_WrongDevice(t *testing.T) {
	db := newTestStore(t)
	ctx := context.Background()

	op := &tethersync.Operation{
		OperationID:   "op-1",
		DeviceID:      "device-1",
		Timestamp:     time.Now().UTC(),
		Status:        tethersync.StatusCompleted,
		OperationType: tethersync.OperationSync,
	}
	if err := db.SaveOperation(ctx, op); err != nil {
		t.Fatal(err)
	}

	_, err := db.GetOperation(ctx, "device-2", "op-1")
	if !errors.Is(err, ErrOperationNotFound) {
		t.Errorf("expected ErrOperationNotFound for wrong device, got %v", err)
	}
}

func saveOperationAt(t *testing.T, db *SQLiteStore, id, deviceID string, ts time.Time, status tethersync.Status, opType tethersync.OperationType) {
	t.Helper()
	err := db.SaveOperation(context.Background(), &tethersync.Operation{
		OperationID:   id,
		DeviceID:      deviceID,
		Timestamp:     ts,
		Status:        status,
		OperationType: opType,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestStore_GetHistory_NewestFirstWithLimit(t *testing.T) {
	db := newTestStore(t)
	base := time.Now().UTC().Add(-time.Hour)

	for i := 0; i < 5; i++ {
		saveOperationAt(t, db, fmt.Sprintf("op-%d", i), "device-1",
			base.Add(time.Duration(i)*time.Minute),
			tethersync.StatusCompleted, tethersync.OperationSync)
	}
	saveOperationAt(t, db, "other", "device-2", base, tethersync.StatusCompleted, tethersync.OperationSync)

	history, err := db.GetHistory(context.Background(), "device-1", 3)
	if err != nil {
		t.Fatal(err)
	}

	if len(history) != 3 {
		t.Fatalf("expected 3 operations, got %d", len(history))
	}
	if history[0].OperationID != "op-4" {
		t.Errorf("expected newest first, got %s", history[0].OperationID)
	}
}

func TestStore_LatestCompletedSyncBefore(t *testing.T) {
	db := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	saveOperationAt(t, db, "completed-early", "device-1", base, tethersync.StatusCompleted, tethersync.OperationSync)
	saveOperationAt(t, db, "completed-late", "device-1", base.Add(10*time.Minute), tethersync.StatusCompleted, tethersync.OperationSync)
	saveOperationAt(t, db, "failed", "device-1", base.Add(20*time.Minute), tethersync.StatusFailed, tethersync.OperationSync)
	saveOperationAt(t, db, "rollback-op", "device-1", base.Add(15*time.Minute), tethersync.StatusCompleted, tethersync.OperationRollback)

	op, err := db.LatestCompletedSyncBefore(ctx, "device-1", base.Add(20*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if op.OperationID != "completed-late" {
		t.Errorf("expected completed-late, got %s", op.OperationID)
	}

	// Nothing completed before the earliest operation.
	_, err = db.LatestCompletedSyncBefore(ctx, "device-1", base)
	if !errors.Is(err, ErrOperationNotFound) {
		t.Errorf("expected ErrOperationNotFound, got %v", err)
	}
}

func TestStore_PruneOperations(t *testing.T) {
	db := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	saveOperationAt(t, db, "old-1", "device-1", now.Add(-40*24*time.Hour), tethersync.StatusCompleted, tethersync.OperationSync)
	saveOperationAt(t, db, "old-2", "device-1", now.Add(-31*24*time.Hour), tethersync.StatusFailed, tethersync.OperationSync)
	saveOperationAt(t, db, "recent", "device-1", now.Add(-time.Hour), tethersync.StatusCompleted, tethersync.OperationSync)

	cutoff := now.Add(-30 * 24 * time.Hour)

	old, err := db.OperationsOlderThan(ctx, cutoff)
	if err != nil {
		t.Fatal(err)
	}
	if len(old) != 2 {
		t.Fatalf("expected 2 old operations, got %d", len(old))
	}
	if old[0].OperationID != "old-1" {
		t.Errorf("expected oldest first, got %s", old[0].OperationID)
	}

	pruned, err := db.PruneOperations(ctx, cutoff)
	if err != nil {
		t.Fatal(err)
	}
	if pruned != 2 {
		t.Errorf("expected 2 pruned, got %d", pruned)
	}

	history, err := db.GetHistory(ctx, "device-1", 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 || history[0].OperationID != "recent" {
		t.Errorf("unexpected surviving history: %+v", history)
	}
}

func TestStore_AppendAndCountResolutions(t *testing.T) {
	db := newTestStore(t)
	ctx := context.Background()

	count, err := db.CountResolutions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("expected 0 resolutions, got %d", count)
	}

	res := &tethersync.Resolution{
		ConflictID:   "conflict-1",
		ConflictType: tethersync.ConflictModification,
		LocalData:    tethersync.ChangeRecord{"id": "a", "content": "x"},
		RemoteData:   tethersync.ChangeRecord{"id": "a", "content": "y"},
		Strategy:     tethersync.StrategyAuto,
		ResolvedData: tethersync.ChangeRecord{"id": "a", "content": "y"},
		Timestamp:    time.Now().UTC(),
		ResolvedBy:   "system",
	}
	if err := db.AppendResolution(ctx, res); err != nil {
		t.Fatal(err)
	}

	count, err = db.CountResolutions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("expected 1 resolution, got %d", count)
	}
}

func TestStore_CountDevices(t *testing.T) {
	db := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"device-1", "device-2"} {
		err := db.UpsertState(ctx, &tethersync.State{
			DeviceID:          id,
			LastSyncTimestamp: time.Now().UTC(),
			Status:            tethersync.StatusCompleted,
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	count, err := db.CountDevices(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("expected 2 devices, got %d", count)
	}
}
