package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const snapshotColumns = `id, program, program_hash, scope_id, seq, body, hash, engine_version, ir_version`

// ReadSnapshot retrieves a single snapshot by ID.
// Returns ErrNotFound if no snapshot has that ID and ErrCorrupt if its
// body no longer matches its hash.
func (s *Store) ReadSnapshot(ctx context.Context, id string) (SnapshotRecord, error) {
	return readSnapshot(ctx, s.db, id)
}

func readSnapshot(ctx context.Context, q queryer, id string) (SnapshotRecord, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+snapshotColumns+`
		FROM snapshots
		WHERE id = ?
	`, id)

	rec, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return SnapshotRecord{}, fmt.Errorf("read snapshot %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return SnapshotRecord{}, fmt.Errorf("read snapshot %s: %w", id, err)
	}
	return rec, nil
}

// LatestSnapshot returns the most recently archived snapshot of program.
// Returns ErrNotFound if the program has none.
func (s *Store) LatestSnapshot(ctx context.Context, program string) (SnapshotRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+snapshotColumns+`
		FROM snapshots
		WHERE program = ?
		ORDER BY seq DESC
		LIMIT 1
	`, program)

	rec, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return SnapshotRecord{}, fmt.Errorf("latest snapshot of %s: %w", program, ErrNotFound)
	}
	if err != nil {
		return SnapshotRecord{}, fmt.Errorf("latest snapshot of %s: %w", program, err)
	}
	return rec, nil
}

// ListSnapshots returns the snapshots of program, or of every program
// when program is empty, ordered by seq ASC, id ASC.
//
// Returns an empty slice (not nil) if there are none.
func (s *Store) ListSnapshots(ctx context.Context, program string) ([]SnapshotRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+snapshotColumns+`
		FROM snapshots
		WHERE ? = '' OR program = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, program, program)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	records := []SnapshotRecord{}
	for rows.Next() {
		rec, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return records, nil
}

// ReadTicks returns the journal of a scope ordered by seq ASC.
//
// Returns an empty slice (not nil) if the scope has no ticks.
func (s *Store) ReadTicks(ctx context.Context, scopeID string) ([]TickRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT scope_id, seq, root, root_kind, steps, effects, failed, aborted
		FROM ticks
		WHERE scope_id = ?
		ORDER BY seq ASC
	`, scopeID)
	if err != nil {
		return nil, fmt.Errorf("query ticks: %w", err)
	}
	defer rows.Close()

	ticks := []TickRecord{}
	for rows.Next() {
		var (
			rec     TickRecord
			aborted int
		)
		if err := rows.Scan(
			&rec.ScopeID,
			&rec.Seq,
			&rec.Root,
			&rec.RootKind,
			&rec.Steps,
			&rec.Effects,
			&rec.Failed,
			&aborted,
		); err != nil {
			return nil, fmt.Errorf("scan tick: %w", err)
		}
		rec.Aborted = aborted != 0
		ticks = append(ticks, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ticks: %w", err)
	}
	return ticks, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanSnapshot scans one snapshot row and verifies its body.
func scanSnapshot(row scanner) (SnapshotRecord, error) {
	var (
		rec  SnapshotRecord
		body string
	)
	err := row.Scan(
		&rec.ID,
		&rec.Program,
		&rec.ProgramHash,
		&rec.ScopeID,
		&rec.Seq,
		&body,
		&rec.Hash,
		&rec.EngineVersion,
		&rec.IRVersion,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SnapshotRecord{}, err
		}
		return SnapshotRecord{}, fmt.Errorf("scan snapshot: %w", err)
	}

	rec.Values, err = unmarshalValues(body, rec.Hash)
	if err != nil {
		return SnapshotRecord{}, fmt.Errorf("snapshot %s: %w", rec.ID, err)
	}
	return rec, nil
}
