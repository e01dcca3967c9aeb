package sync

import "testing"

func TestDetect_IdenticalContentNeverConflicts(t *testing.T) {
	// Timestamps suggest a modification conflict, but identical content
	// short-circuits before any timestamp rule runs.
	local := ChangeRecord{
		"id": "a", "content": "x",
		"last_modified": int64(10), "last_sync_timestamp": int64(5),
	}
	remote := ChangeRecord{
		"id": "a", "content": "x",
		"last_modified": int64(10), "last_sync_timestamp": int64(5),
	}

	if ct, ok := Detect(local, remote); ok {
		t.Errorf("expected no conflict, got %s", ct)
	}
}

func TestDetect_ModificationConflict(t *testing.T) {
	local := ChangeRecord{
		"id": "a", "content": "x",
		"last_modified": int64(10), "last_sync_timestamp": int64(5),
	}
	remote := ChangeRecord{
		"id": "a", "content": "y",
		"last_modified": int64(12),
	}

	ct, ok := Detect(local, remote)
	if !ok {
		t.Fatal("expected conflict")
	}
	if ct != ConflictModification {
		t.Errorf("expected modification, got %s", ct)
	}
}

func TestDetect_DeletionConflict(t *testing.T) {
	// Only the tombstone flags disagree; neither side modified since the
	// last sync point, so rule order reaches the deletion check.
	local := ChangeRecord{
		"id": "b", "deleted": true,
		"last_modified": int64(3), "last_sync_timestamp": int64(5),
	}
	remote := ChangeRecord{
		"id": "b", "deleted": false,
		"last_modified": int64(4),
	}

	ct, ok := Detect(local, remote)
	if !ok {
		t.Fatal("expected conflict")
	}
	if ct != ConflictDeletion {
		t.Errorf("expected deletion, got %s", ct)
	}
}

func TestDetect_ModificationWinsOverDeletion(t *testing.T) {
	// A delete racing a delete-then-recreate: both sides modified since
	// the sync point, so rule order classifies it as a modification even
	// though the tombstone flags differ.
	local := ChangeRecord{
		"id": "b", "deleted": true,
		"last_modified": int64(10), "last_sync_timestamp": int64(5),
	}
	remote := ChangeRecord{
		"id": "b", "deleted": false,
		"last_modified": int64(12),
	}

	ct, ok := Detect(local, remote)
	if !ok {
		t.Fatal("expected conflict")
	}
	if ct != ConflictModification {
		t.Errorf("expected modification, got %s", ct)
	}
}

func TestDetect_CreationConflict(t *testing.T) {
	local := ChangeRecord{
		"id": "c", "content": "x", "created_at": int64(100),
		"last_sync_timestamp": int64(5),
	}
	remote := ChangeRecord{
		"id": "c", "content": "y", "created_at": int64(200),
	}

	ct, ok := Detect(local, remote)
	if !ok {
		t.Fatal("expected conflict")
	}
	if ct != ConflictCreation {
		t.Errorf("expected creation, got %s", ct)
	}
}

func TestDetect_BenignDivergence(t *testing.T) {
	// Content differs but only the remote moved since the sync point:
	// the remote is catching up with a previously synced local edit.
	local := ChangeRecord{
		"id": "d", "content": "x", "created_at": int64(100),
		"last_modified": int64(4), "last_sync_timestamp": int64(5),
	}
	remote := ChangeRecord{
		"id": "d", "content": "y", "created_at": int64(100),
		"last_modified": int64(12),
	}

	if ct, ok := Detect(local, remote); ok {
		t.Errorf("expected no conflict, got %s", ct)
	}
}

func TestDetect_Deterministic(t *testing.T) {
	local := ChangeRecord{
		"id": "a", "content": "x",
		"last_modified": int64(10), "last_sync_timestamp": int64(5),
	}
	remote := ChangeRecord{
		"id": "a", "content": "y",
		"last_modified": int64(12),
	}

	first, _ := Detect(local, remote)
	for i := 0; i < 50; i++ {
		ct, _ := Detect(local, remote)
		if ct != first {
			t.Fatalf("classification changed on iteration %d: %s != %s", i, ct, first)
		}
	}
}

func TestDetect_MissingEnvelopeFields(t *testing.T) {
	// Shape anomalies fall through to no-conflict rather than failing.
	local := ChangeRecord{"id": "e", "content": "x"}
	remote := ChangeRecord{"id": "e", "content": "y"}

	if ct, ok := Detect(local, remote); ok {
		t.Errorf("expected no conflict for bare records, got %s", ct)
	}
}
