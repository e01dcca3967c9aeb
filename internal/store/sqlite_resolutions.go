package store

import (
	"context"
	"encoding/json"
	"fmt"

	tethersync "github.com/hyperengineering/tether/internal/sync"
)

// AppendResolution appends a conflict resolution record. Resolutions are
// append-only; nothing updates or deletes them.
func (s *SQLiteStore) AppendResolution(ctx context.Context, res *tethersync.Resolution) error {
	localJSON, err := json.Marshal(res.LocalData)
	if err != nil {
		return fmt.Errorf("marshal local data: %w", err)
	}
	remoteJSON, err := json.Marshal(res.RemoteData)
	if err != nil {
		return fmt.Errorf("marshal remote data: %w", err)
	}
	resolvedJSON, err := json.Marshal(res.ResolvedData)
	if err != nil {
		return fmt.Errorf("marshal resolved data: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conflict_resolutions
			(conflict_id, conflict_type, local_data, remote_data,
			 resolution_strategy, resolved_data, timestamp, resolved_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		res.ConflictID,
		res.ConflictType,
		string(localJSON),
		string(remoteJSON),
		res.Strategy,
		string(resolvedJSON),
		res.Timestamp.UTC().Format(timeLayout),
		res.ResolvedBy,
	)
	if err != nil {
		return fmt.Errorf("append resolution: %w", err)
	}
	return nil
}

// CountResolutions returns the total number of resolution records.
func (s *SQLiteStore) CountResolutions(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM conflict_resolutions").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count resolutions: %w", err)
	}
	return count, nil
}
