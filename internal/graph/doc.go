// Package graph holds the shared, scope-independent topology of a rill
// program.
//
// A Graph is an arena of immutable Node records indexed by NodeID plus a
// small table of active edges. Units build nodes once; structural edits
// (unbinding a reducer, removing a watcher) only rewrite the edge table.
// Per-scope values never live here: a State is a descriptor that tells a
// scope how to seed and compare a value, not the value itself.
//
// The graph is safe for concurrent use. Edge slices are copy-on-write, so a
// tick that already read the outbound edges of a node keeps a consistent
// view while another goroutine edits the table.
package graph
