package sync

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Resolve produces resolved data for a classified conflict and the
// immutable Resolution documenting the decision. The caller is responsible
// for persisting the Resolution; exactly one is produced per invocation
// regardless of strategy.
//
// With StrategyManual the returned payload is not resolved data but a
// structured envelope carrying both versions and the requires_manual_
// resolution flag; the caller surfaces it out of band and re-submits a
// decision with StrategyLocal or StrategyRemote.
func Resolve(conflictType ConflictType, local, remote ChangeRecord, strategy Strategy) (ChangeRecord, Resolution) {
	now := time.Now().UTC()

	var resolved ChangeRecord
	switch strategy {
	case StrategyAuto:
		resolved = autoResolve(conflictType, local, remote, now)
	case StrategyLocal:
		resolved = local.Clone()
	case StrategyRemote:
		resolved = remote.Clone()
	case StrategyManual:
		resolved = ChangeRecord{
			"conflict_type":   string(conflictType),
			"local_data":      local.Clone(),
			"remote_data":     remote.Clone(),
			KeyRequiresManual: true,
		}
	default:
		// Unknown strategies fall back to the remote authority.
		resolved = remote.Clone()
	}

	resolvedBy := "user"
	if strategy == StrategyAuto {
		resolvedBy = "system"
	}

	record := Resolution{
		ConflictID:   ulid.Make().String(),
		ConflictType: conflictType,
		LocalData:    local.Clone(),
		RemoteData:   remote.Clone(),
		Strategy:     strategy,
		ResolvedData: resolved,
		Timestamp:    now,
		ResolvedBy:   resolvedBy,
	}

	return resolved, record
}

// autoResolve dispatches on conflict type.
func autoResolve(conflictType ConflictType, local, remote ChangeRecord, now time.Time) ChangeRecord {
	switch conflictType {
	case ConflictModification:
		return mergeFields(local, remote, now)
	case ConflictDeletion:
		// Non-deleted version wins; resurrect over destroy.
		if !remote.Deleted() {
			return remote.Clone()
		}
		return local.Clone()
	case ConflictCreation:
		// The record with the later created_at is the real object.
		if local.CreatedAt() > remote.CreatedAt() {
			return local.Clone()
		}
		return remote.Clone()
	default:
		return remote.Clone()
	}
}

// mergeFields performs a last-writer-wins merge at field granularity,
// starting from the local object. A remote value replaces the local one
// only when its "<field>_modified" timestamp is strictly greater; fields
// present only remotely are adopted. This is intentionally not a set or
// CRDT merge: concurrent edits to the same field keep exactly one side.
func mergeFields(local, remote ChangeRecord, now time.Time) ChangeRecord {
	merged := local.Clone()

	for key, remoteValue := range remote {
		if _, exists := merged[key]; exists {
			if remote.FieldModified(key) > local.FieldModified(key) {
				merged[key] = remoteValue
			}
		} else {
			merged[key] = remoteValue
		}
	}

	merged[KeyLastModified] = maxInt64(local.LastModified(), remote.LastModified())
	merged[KeyMergeTimestamp] = now.Unix()

	return merged
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
