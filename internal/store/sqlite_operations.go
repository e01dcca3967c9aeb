package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	tethersync "github.com/hyperengineering/tether/internal/sync"
)

const operationColumns = `operation_id, device_id, timestamp, status, operation_type,
	object_id, data_fingerprint, remote_fingerprint, conflict_type,
	resolution_strategy, error_message, duration_ms`

// SaveOperation inserts or replaces an operation log entry.
func (s *SQLiteStore) SaveOperation(ctx context.Context, op *tethersync.Operation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO sync_operations (`+operationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		op.OperationID,
		op.DeviceID,
		op.Timestamp.UTC().Format(timeLayout),
		op.Status,
		op.OperationType,
		nullableString(op.ObjectID),
		nullableString(op.DataFingerprint),
		nullableString(op.RemoteFingerprint),
		nullableString(string(op.ConflictType)),
		nullableString(string(op.ResolutionStrategy)),
		nullableString(op.ErrorMessage),
		op.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("save operation: %w", err)
	}
	return nil
}

// GetOperation retrieves an operation for a device.
func (s *SQLiteStore) GetOperation(ctx context.Context, deviceID, operationID string) (*tethersync.Operation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+operationColumns+`
		FROM sync_operations
		WHERE operation_id = ? AND device_id = ?
	`, operationID, deviceID)

	op, err := scanOperation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOperationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan operation: %w", err)
	}
	return op, nil
}

// GetHistory returns the most recent operations for a device, newest first.
func (s *SQLiteStore) GetHistory(ctx context.Context, deviceID string, limit int) ([]tethersync.Operation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+operationColumns+`
		FROM sync_operations
		WHERE device_id = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	return collectOperations(rows)
}

// LatestCompletedSyncBefore returns the most recent completed sync-type
// operation for a device strictly before the given time.
func (s *SQLiteStore) LatestCompletedSyncBefore(ctx context.Context, deviceID string, before time.Time) (*tethersync.Operation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+operationColumns+`
		FROM sync_operations
		WHERE device_id = ? AND status = ? AND operation_type = ? AND timestamp < ?
		ORDER BY timestamp DESC
		LIMIT 1
	`, deviceID, tethersync.StatusCompleted, tethersync.OperationSync,
		before.UTC().Format(timeLayout))

	op, err := scanOperation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOperationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan operation: %w", err)
	}
	return op, nil
}

// OperationsOlderThan returns operations with timestamps before the cutoff,
// oldest first.
func (s *SQLiteStore) OperationsOlderThan(ctx context.Context, cutoff time.Time) ([]tethersync.Operation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+operationColumns+`
		FROM sync_operations
		WHERE timestamp < ?
		ORDER BY timestamp ASC
	`, cutoff.UTC().Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("query old operations: %w", err)
	}
	defer rows.Close()

	return collectOperations(rows)
}

// PruneOperations deletes operations older than the cutoff.
func (s *SQLiteStore) PruneOperations(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM sync_operations WHERE timestamp < ?
	`, cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("prune operations: %w", err)
	}
	return result.RowsAffected()
}

// scanOperation scans a row into an Operation, handling nullable columns.
func scanOperation(scanner interface{ Scan(...any) error }) (*tethersync.Operation, error) {
	var op tethersync.Operation
	var timestamp string
	var objectID, dataFP, remoteFP, conflictType, strategy, errMsg sql.NullString
	var durationMS sql.NullInt64

	err := scanner.Scan(
		&op.OperationID,
		&op.DeviceID,
		&timestamp,
		&op.Status,
		&op.OperationType,
		&objectID,
		&dataFP,
		&remoteFP,
		&conflictType,
		&strategy,
		&errMsg,
		&durationMS,
	)
	if err != nil {
		return nil, err
	}

	op.Timestamp, err = time.Parse(time.RFC3339Nano, timestamp)
	if err != nil {
		return nil, fmt.Errorf("parse timestamp: %w", err)
	}

	op.ObjectID = objectID.String
	op.DataFingerprint = dataFP.String
	op.RemoteFingerprint = remoteFP.String
	op.ConflictType = tethersync.ConflictType(conflictType.String)
	op.ResolutionStrategy = tethersync.Strategy(strategy.String)
	op.ErrorMessage = errMsg.String
	op.DurationMS = durationMS.Int64

	return &op, nil
}

func collectOperations(rows *sql.Rows) ([]tethersync.Operation, error) {
	ops := make([]tethersync.Operation, 0)
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan operation: %w", err)
		}
		ops = append(ops, *op)
	}
	return ops, rows.Err()
}

// nullableString converts an empty string to a sql-friendly NULL.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
