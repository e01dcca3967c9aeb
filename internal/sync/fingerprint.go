package sync

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
)

// Fingerprint computes a deterministic content hash for a change payload.
// It is SHA-256 over the canonical JSON encoding; encoding/json emits map
// keys in sorted order, so equal content always hashes identically.
func Fingerprint(record ChangeRecord) string {
	return hashJSON(record)
}

// FingerprintObjects computes the fingerprint of a full remote snapshot.
func FingerprintObjects(objects map[string]ChangeRecord) string {
	return hashJSON(objects)
}

func hashJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		// Non-encodable values are a data-shape anomaly, not a fatal
		// condition. fmt prints maps in sorted key order, so the
		// fallback stays deterministic.
		slog.Warn("fingerprint: payload not JSON-encodable, using fallback encoding", "error", err)
		data = []byte(fmt.Sprintf("%v", v))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
