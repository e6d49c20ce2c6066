// Package store provides SQLite-backed durable storage for scope
// snapshots and the tick journal.
//
// The store is append-only:
//   - Snapshots: serialized scope values, addressed by id and verified by
//     their content hash
//   - Ticks: one row per finished tick, written by Journal
//
// # Ordering
//
//   - Snapshots are ordered by seq, a store-assigned logical clock, never
//     by wall time
//   - Ticks are ordered by the scope's own tick sequence
//   - All list queries end with id ASC COLLATE BINARY so results are
//     identical across runs
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Snapshot bodies are RFC 8785 canonical JSON; hashes come from
// internal/ir with domain separation.
package store
