package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	tethersync "github.com/hyperengineering/tether/internal/sync"
	_ "modernc.org/sqlite"
)

// timeLayout is RFC 3339 with fixed-width nanoseconds. Unlike
// time.RFC3339Nano it never trims trailing zeros, so stored timestamps
// sort lexicographically and ORDER BY / range comparisons stay correct.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore is the SQLite-backed durable store for sync states, the
// operation log, and conflict resolutions.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLiteStore instance.
// It initializes the database with WAL mode, applies pragmas, and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite is single-writer; a single pooled connection avoids lock
	// contention and keeps :memory: databases shared across callers.
	db.SetMaxOpenConns(1)

	if err := enablePragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable pragmas: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// enablePragmas sets SQLite pragmas for optimal performance and safety.
func enablePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetState loads the sync state for a device.
func (s *SQLiteStore) GetState(ctx context.Context, deviceID string) (*tethersync.State, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT device_id, last_sync_timestamp, last_remote_fingerprint,
		       unsynced_changes, status, conflict_count, success_count, total_operations
		FROM sync_states
		WHERE device_id = ?
	`, deviceID)

	var state tethersync.State
	var lastSync, unsyncedJSON string
	err := row.Scan(
		&state.DeviceID,
		&lastSync,
		&state.LastRemoteFingerprint,
		&unsyncedJSON,
		&state.Status,
		&state.ConflictCount,
		&state.SuccessCount,
		&state.TotalOperations,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDeviceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan sync state: %w", err)
	}

	state.LastSyncTimestamp, err = time.Parse(time.RFC3339Nano, lastSync)
	if err != nil {
		return nil, fmt.Errorf("parse last_sync_timestamp: %w", err)
	}
	if err := json.Unmarshal([]byte(unsyncedJSON), &state.UnsyncedChanges); err != nil {
		return nil, fmt.Errorf("parse unsynced_changes: %w", err)
	}

	return &state, nil
}

// UpsertState creates or replaces the sync state for a device.
func (s *SQLiteStore) UpsertState(ctx context.Context, state *tethersync.State) error {
	unsynced := state.UnsyncedChanges
	if unsynced == nil {
		unsynced = []string{}
	}
	unsyncedJSON, err := json.Marshal(unsynced)
	if err != nil {
		return fmt.Errorf("marshal unsynced_changes: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO sync_states
			(device_id, last_sync_timestamp, last_remote_fingerprint,
			 unsynced_changes, status, conflict_count, success_count, total_operations)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		state.DeviceID,
		state.LastSyncTimestamp.UTC().Format(timeLayout),
		state.LastRemoteFingerprint,
		string(unsyncedJSON),
		state.Status,
		state.ConflictCount,
		state.SuccessCount,
		state.TotalOperations,
	)
	if err != nil {
		return fmt.Errorf("upsert sync state: %w", err)
	}
	return nil
}

// CountDevices returns the number of devices with a sync state.
func (s *SQLiteStore) CountDevices(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sync_states").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count devices: %w", err)
	}
	return count, nil
}
