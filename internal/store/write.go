package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/rill"
	"github.com/roach88/rill/internal/ir"
)

var (
	// ErrNotFound is returned when no snapshot matches.
	ErrNotFound = errors.New("snapshot not found")

	// ErrCorrupt is returned when a stored body no longer matches its hash.
	ErrCorrupt = errors.New("snapshot corrupt")
)

// SnapshotRecord is one archived snapshot.
type SnapshotRecord struct {
	ID            string        `json:"id"`
	Program       string        `json:"program"`
	ProgramHash   string        `json:"program_hash"`
	ScopeID       string        `json:"scope_id"`
	Seq           int64         `json:"seq"`
	Values        rill.Snapshot `json:"values"`
	Hash          string        `json:"hash"`
	EngineVersion string        `json:"engine_version"`
	IRVersion     string        `json:"ir_version"`
}

// TickRecord is one journal row.
type TickRecord struct {
	ScopeID  string `json:"scope_id"`
	Seq      int64  `json:"seq"`
	Root     string `json:"root"`
	RootKind string `json:"root_kind"`
	Steps    int    `json:"steps"`
	Effects  int    `json:"effects"`
	Failed   int    `json:"failed"`
	Aborted  bool   `json:"aborted"`
}

// WriteSnapshot archives rec and returns it as stored.
//
// An empty ID gets a UUIDv7; empty versions default to the running
// kernel's. Seq is assigned by the store and Hash is computed from the
// canonical body. Uses ON CONFLICT(id) DO NOTHING for idempotency -
// writing an existing ID returns the stored record unchanged.
func (s *Store) WriteSnapshot(ctx context.Context, rec SnapshotRecord) (SnapshotRecord, error) {
	if rec.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return SnapshotRecord{}, fmt.Errorf("write snapshot: generate id: %w", err)
		}
		rec.ID = id.String()
	}
	if rec.EngineVersion == "" {
		rec.EngineVersion = ir.EngineVersion
	}
	if rec.IRVersion == "" {
		rec.IRVersion = ir.IRVersion
	}

	body, hash, err := marshalValues(rec.Values)
	if err != nil {
		return SnapshotRecord{}, fmt.Errorf("write snapshot: %w", err)
	}

	// Use a transaction so seq assignment and insert are atomic
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return SnapshotRecord{}, fmt.Errorf("write snapshot: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	_, err = tx.ExecContext(ctx, `
		INSERT INTO snapshots
		(id, program, program_hash, scope_id, seq, body, hash, engine_version, ir_version)
		SELECT ?, ?, ?, ?, COALESCE(MAX(seq), 0) + 1, ?, ?, ?, ?
		FROM snapshots
		WHERE true
		ON CONFLICT(id) DO NOTHING
	`,
		rec.ID,
		rec.Program,
		rec.ProgramHash,
		rec.ScopeID,
		body,
		hash,
		rec.EngineVersion,
		rec.IRVersion,
	)
	if err != nil {
		return SnapshotRecord{}, fmt.Errorf("write snapshot: %w", err)
	}

	stored, err := readSnapshot(ctx, tx, rec.ID)
	if err != nil {
		return SnapshotRecord{}, fmt.Errorf("write snapshot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return SnapshotRecord{}, fmt.Errorf("write snapshot: commit: %w", err)
	}
	return stored, nil
}

// WriteTick appends a journal row.
// Uses ON CONFLICT DO NOTHING for idempotency - a tick is identified by
// its scope and sequence.
func (s *Store) WriteTick(ctx context.Context, rec TickRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ticks
		(scope_id, seq, root, root_kind, steps, effects, failed, aborted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(scope_id, seq) DO NOTHING
	`,
		rec.ScopeID,
		rec.Seq,
		rec.Root,
		rec.RootKind,
		rec.Steps,
		rec.Effects,
		rec.Failed,
		boolToInt(rec.Aborted),
	)
	if err != nil {
		return fmt.Errorf("write tick: %w", err)
	}
	return nil
}
