package store

import (
	"context"
	"fmt"
)

// ScopeHistory is everything the store knows about one scope.
type ScopeHistory struct {
	ScopeID   string           `json:"scope_id"`
	Ticks     []TickRecord     `json:"ticks"`
	Snapshots []SnapshotRecord `json:"snapshots"`
	LastSeq   int64            `json:"last_seq"`
	Steps     int              `json:"steps"`
	Effects   int              `json:"effects"`
	Failed    int              `json:"failed"`  // Steps that panicked, across all ticks
	Aborted   int              `json:"aborted"` // Ticks stopped by the step quota
}

// GetScopeHistory returns the journal and snapshots of a scope with
// totals over its ticks.
func (s *Store) GetScopeHistory(ctx context.Context, scopeID string) (ScopeHistory, error) {
	history := ScopeHistory{ScopeID: scopeID}

	ticks, err := s.ReadTicks(ctx, scopeID)
	if err != nil {
		return history, fmt.Errorf("get scope history: %w", err)
	}
	history.Ticks = ticks

	for _, t := range ticks {
		history.Steps += t.Steps
		history.Effects += t.Effects
		history.Failed += t.Failed
		if t.Aborted {
			history.Aborted++
		}
		if t.Seq > history.LastSeq {
			history.LastSeq = t.Seq
		}
	}

	snapshots, err := s.snapshotsOfScope(ctx, scopeID)
	if err != nil {
		return history, fmt.Errorf("get scope history: %w", err)
	}
	history.Snapshots = snapshots

	return history, nil
}

func (s *Store) snapshotsOfScope(ctx context.Context, scopeID string) ([]SnapshotRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+snapshotColumns+`
		FROM snapshots
		WHERE scope_id = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, scopeID)
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

// ListScopeIDs returns all distinct scope ids in the journal or the
// archive. Results ordered alphabetically.
func (s *Store) ListScopeIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT scope_id FROM ticks
		UNION
		SELECT scope_id FROM snapshots
		ORDER BY scope_id COLLATE BINARY
	`)
	if err != nil {
		return nil, fmt.Errorf("list scope ids: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan scope id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scope ids: %w", err)
	}
	return ids, nil
}

// LastTickSeq returns the highest tick seq journaled for a scope, or 0
// when the scope has no ticks.
func (s *Store) LastTickSeq(ctx context.Context, scopeID string) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM ticks WHERE scope_id = ?
	`, scopeID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("get last tick seq of %s: %w", scopeID, err)
	}
	return seq, nil
}

// GetLastSeq returns the highest snapshot seq used in the store.
func (s *Store) GetLastSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM snapshots
	`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("get last seq from snapshots: %w", err)
	}
	return seq, nil
}
