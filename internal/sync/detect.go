package sync

// Detect classifies the relationship between a local change and its remote
// counterpart. It returns (conflictType, true) when the pair is a genuine
// conflict, and (_, false) when the divergence is benign.
//
// Rules are evaluated in a fixed order so classification is reproducible
// for identical inputs:
//
//  1. Identical fingerprints are never a conflict, regardless of
//     timestamps.
//  2. Both sides modified since the local device's last sync point →
//     modification conflict.
//  3. Tombstone flags disagree → deletion conflict. Checked after rule 2
//     so a delete racing a delete-then-recreate still classifies as a
//     modification.
//  4. Same id but different created_at → creation conflict (duplicate-id
//     collision).
//
// Anything else is benign divergence, e.g. the remote catching up with a
// previously synced local edit.
func Detect(local, remote ChangeRecord) (ConflictType, bool) {
	if Fingerprint(local) == Fingerprint(remote) {
		return "", false
	}

	lastSync := local.LastSyncTimestamp()
	if local.LastModified() > lastSync && remote.LastModified() > lastSync {
		return ConflictModification, true
	}

	if local.Deleted() != remote.Deleted() {
		return ConflictDeletion, true
	}

	if local.ID() == remote.ID() && local.CreatedAt() != remote.CreatedAt() {
		return ConflictCreation, true
	}

	return "", false
}
