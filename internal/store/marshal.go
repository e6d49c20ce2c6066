package store

import (
	"fmt"

	"github.com/roach88/rill"
	"github.com/roach88/rill/internal/ir"
)

// marshalValues converts snapshot values to canonical JSON TEXT for
// storage and returns the body with its hash.
// Uses RFC 8785 canonical JSON for deterministic serialization.
func marshalValues(values rill.Snapshot) (body, hash string, err error) {
	if values == nil {
		values = rill.Snapshot{}
	}
	data, err := ir.MarshalCanonical(map[string]any(values))
	if err != nil {
		return "", "", fmt.Errorf("marshal values: %w", err)
	}
	return string(data), ir.SnapshotHash(data), nil
}

// unmarshalValues parses a stored body and checks it against hash.
func unmarshalValues(body, hash string) (rill.Snapshot, error) {
	if got := ir.SnapshotHash([]byte(body)); got != hash {
		return nil, fmt.Errorf("unmarshal values: %w: stored hash %s, body hashes to %s", ErrCorrupt, hash, got)
	}
	snap, err := rill.ParseSnapshot([]byte(body))
	if err != nil {
		return nil, fmt.Errorf("unmarshal values: %w", err)
	}
	return snap, nil
}

// boolToInt stores a flag as INTEGER.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
