package sync

import (
	"encoding/json"
	"time"
)

// Status represents the lifecycle state of a sync operation.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusConflict   Status = "conflict"
)

// OperationType distinguishes sync rounds from rollbacks in the operation log.
type OperationType string

const (
	OperationSync     OperationType = "sync"
	OperationRollback OperationType = "rollback"
)

// ConflictType classifies the relationship between a local change and its
// remote counterpart when their contents diverge.
type ConflictType string

const (
	ConflictModification ConflictType = "modification"
	ConflictDeletion     ConflictType = "deletion"
	ConflictCreation     ConflictType = "creation"
	// ConflictMerge and ConflictVersion are reserved classifications.
	// Detect never produces them but they must round-trip through storage.
	ConflictMerge   ConflictType = "merge"
	ConflictVersion ConflictType = "version"
)

// Strategy selects how a detected conflict is resolved.
type Strategy string

const (
	StrategyAuto   Strategy = "auto"
	StrategyLocal  Strategy = "local"
	StrategyRemote Strategy = "remote"
	StrategyManual Strategy = "manual"
)

// Well-known envelope keys on a change record. Everything else in the
// payload is opaque business data.
const (
	KeyID             = "id"
	KeyDeleted        = "deleted"
	KeyCreatedAt      = "created_at"
	KeyLastModified   = "last_modified"
	KeyLastSync       = "last_sync_timestamp"
	KeyMergeTimestamp = "merge_timestamp"

	// ModifiedSuffix marks per-field modification timestamps, e.g.
	// "content_modified" for the "content" field.
	ModifiedSuffix = "_modified"

	// KeyRequiresManual flags a manual-strategy envelope returned in
	// place of resolved data.
	KeyRequiresManual = "requires_manual_resolution"
)

// ChangeRecord is an arbitrary object payload. The engine reads only the
// envelope keys above and never interprets business fields.
type ChangeRecord map[string]any

// ID returns the record's stable object id, or "" if absent.
func (c ChangeRecord) ID() string {
	s, _ := c[KeyID].(string)
	return s
}

// Deleted reports the record's tombstone flag.
func (c ChangeRecord) Deleted() bool {
	b, _ := c[KeyDeleted].(bool)
	return b
}

// CreatedAt returns the record's creation timestamp, 0 if absent.
func (c ChangeRecord) CreatedAt() int64 {
	return asInt64(c[KeyCreatedAt])
}

// LastModified returns the record's modification timestamp, 0 if absent.
func (c ChangeRecord) LastModified() int64 {
	return asInt64(c[KeyLastModified])
}

// LastSyncTimestamp returns the record's last known sync point, 0 if absent.
func (c ChangeRecord) LastSyncTimestamp() int64 {
	return asInt64(c[KeyLastSync])
}

// FieldModified returns the per-field modification timestamp for key,
// 0 if absent.
func (c ChangeRecord) FieldModified(key string) int64 {
	return asInt64(c[key+ModifiedSuffix])
}

// Clone returns a shallow copy of the record.
func (c ChangeRecord) Clone() ChangeRecord {
	out := make(ChangeRecord, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// asInt64 coerces the numeric representations JSON decoding and callers
// produce. Anything unrecognized is treated as absent.
func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			f, ferr := n.Float64()
			if ferr != nil {
				return 0
			}
			return int64(f)
		}
		return i
	default:
		return 0
	}
}

// RemoteState is the authoritative snapshot a sync round reconciles against.
// The caller owns transport; this engine never fetches it.
type RemoteState struct {
	Objects     map[string]ChangeRecord `json:"objects"`
	Fingerprint string                  `json:"fingerprint,omitempty"`
}

// EffectiveFingerprint returns the snapshot's declared fingerprint, or a
// computed one when the provider did not supply it.
func (r RemoteState) EffectiveFingerprint() string {
	if r.Fingerprint != "" {
		return r.Fingerprint
	}
	return FingerprintObjects(r.Objects)
}

// State is the durable per-device sync record. The coordinator is its sole
// writer; total_operations >= success_count always holds.
type State struct {
	DeviceID              string    `json:"device_id"`
	LastSyncTimestamp     time.Time `json:"last_sync_timestamp"`
	LastRemoteFingerprint string    `json:"last_remote_fingerprint"`
	UnsyncedChanges       []string  `json:"unsynced_changes"`
	Status                Status    `json:"status"`
	ConflictCount         int64     `json:"conflict_count"`
	SuccessCount          int64     `json:"success_count"`
	TotalOperations       int64     `json:"total_operations"`
}

// Operation is one audited entry in the device's operation log. Terminal
// records are immutable; only retention pruning removes them.
type Operation struct {
	OperationID        string        `json:"operation_id"`
	DeviceID           string        `json:"device_id"`
	Timestamp          time.Time     `json:"timestamp"`
	Status             Status        `json:"status"`
	OperationType      OperationType `json:"operation_type"`
	ObjectID           string        `json:"object_id,omitempty"`
	DataFingerprint    string        `json:"data_fingerprint,omitempty"`
	RemoteFingerprint  string        `json:"remote_fingerprint,omitempty"`
	ConflictType       ConflictType  `json:"conflict_type,omitempty"`
	ResolutionStrategy Strategy      `json:"resolution_strategy,omitempty"`
	ErrorMessage       string        `json:"error_message,omitempty"`
	DurationMS         int64         `json:"duration_ms"`
}

// Resolution is the immutable decision trail entry for one conflict.
type Resolution struct {
	ConflictID   string       `json:"conflict_id"`
	ConflictType ConflictType `json:"conflict_type"`
	LocalData    ChangeRecord `json:"local_data"`
	RemoteData   ChangeRecord `json:"remote_data"`
	Strategy     Strategy     `json:"resolution_strategy"`
	ResolvedData ChangeRecord `json:"resolved_data"`
	Timestamp    time.Time    `json:"timestamp"`
	ResolvedBy   string       `json:"resolved_by"`
}

// Result summarizes one completed sync round.
type Result struct {
	OperationID string         `json:"operation_id"`
	SyncedCount int            `json:"synced_changes"`
	Conflicts   int            `json:"conflicts_detected"`
	Resolved    int            `json:"conflicts_resolved"`
	Manual      int            `json:"manual_pending"`
	Changes     []ChangeRecord `json:"resolved_changes"`
	DurationMS  int64          `json:"duration_ms"`
	State       State          `json:"sync_state"`
}

// RollbackResult summarizes a completed rollback.
type RollbackResult struct {
	OperationID         string `json:"operation_id"`
	RolledBackOperation string `json:"rolled_back_operation"`
}

// Metrics is the engine-wide aggregate view.
type Metrics struct {
	TotalSyncs        int64   `json:"total_syncs"`
	SuccessfulSyncs   int64   `json:"successful_syncs"`
	ConflictsResolved int64   `json:"conflicts_resolved"`
	Rollbacks         int64   `json:"rollbacks"`
	AverageSyncTimeMS float64 `json:"average_sync_time_ms"`
	TotalDevices      int64   `json:"total_devices"`
}
