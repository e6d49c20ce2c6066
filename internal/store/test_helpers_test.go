package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/rill"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestSnapshot creates a snapshot record with minimal required fields.
func createTestSnapshot(id, program, scopeID string, values rill.Snapshot) SnapshotRecord {
	return SnapshotRecord{
		ID:          id,
		Program:     program,
		ProgramHash: "test-hash",
		ScopeID:     scopeID,
		Values:      values,
	}
}
