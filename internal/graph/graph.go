package graph

import (
	"fmt"
	"slices"
	"sync"
)

// CollisionError reports that two states registered the same sid. The
// later registration replaced the earlier one.
type CollisionError struct {
	SID      string
	Previous string
	Current  string
}

// Error implements the error interface.
func (e *CollisionError) Error() string {
	return fmt.Sprintf("sid %q registered by %s replaces %s", e.SID, e.Current, e.Previous)
}

// Graph is the shared node arena and active edge table.
type Graph struct {
	mu         sync.RWMutex
	next       NodeID
	nodes      map[NodeID]*Node
	edges      map[NodeID][]NodeID
	dependents map[*State][]*State
	sids       map[string]*State
	collisions []*CollisionError
}

// Default is the process-wide graph used by units created outside an
// isolated domain.
var Default = New()

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes:      make(map[NodeID]*Node),
		edges:      make(map[NodeID][]NodeID),
		dependents: make(map[*State][]*State),
		sids:       make(map[string]*State),
	}
}

// Add assigns n an id and stores it. The node must not be modified
// afterwards.
func (g *Graph) Add(n *Node) NodeID {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.next++
	n.ID = g.next
	g.nodes[n.ID] = n
	return n.ID
}

// Node looks up a node by id.
func (g *Graph) Node(id NodeID) (*Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	return n, ok
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Link appends an edge from -> to. Edge order is execution order within a
// priority band.
func (g *Graph) Link(from, to NodeID) {
	g.mu.Lock()
	defer g.mu.Unlock()

	old := g.edges[from]
	next := make([]NodeID, len(old), len(old)+1)
	copy(next, old)
	g.edges[from] = append(next, to)
}

// Unlink removes the edge from -> to. Returns false if it was not active.
func (g *Graph) Unlink(from, to NodeID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	old := g.edges[from]
	i := slices.Index(old, to)
	if i < 0 {
		return false
	}
	next := make([]NodeID, 0, len(old)-1)
	next = append(next, old[:i]...)
	next = append(next, old[i+1:]...)
	if len(next) == 0 {
		delete(g.edges, from)
	} else {
		g.edges[from] = next
	}
	return true
}

// Edges returns the active outbound edges of id. The returned slice must
// not be modified.
func (g *Graph) Edges(id NodeID) []NodeID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.edges[id]
}

// Linked reports whether the edge from -> to is active.
func (g *Graph) Linked(from, to NodeID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Contains(g.edges[from], to)
}

// Depend records that child is derived from parent.
func (g *Graph) Depend(parent, child *State) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dependents[parent] = append(g.dependents[parent], child)
}

// Dependents returns the states directly derived from st.
func (g *Graph) Dependents(st *State) []*State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.dependents[st]
}

// RegisterSID makes st the serialization slot for st.SID. If another state
// already holds the sid, st replaces it and a *CollisionError is returned
// and recorded.
func (g *Graph) RegisterSID(st *State) error {
	if st.SID == "" {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	prev, exists := g.sids[st.SID]
	g.sids[st.SID] = st
	if !exists || prev == st {
		return nil
	}

	err := &CollisionError{SID: st.SID, Previous: prev.Name, Current: st.Name}
	g.collisions = append(g.collisions, err)
	return err
}

// LookupSID returns the state registered for sid.
func (g *Graph) LookupSID(sid string) (*State, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	st, ok := g.sids[sid]
	return st, ok
}

// SIDs returns all registered sids in sorted order.
func (g *Graph) SIDs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]string, 0, len(g.sids))
	for sid := range g.sids {
		out = append(out, sid)
	}
	slices.Sort(out)
	return out
}

// Collisions returns every sid collision recorded so far.
func (g *Graph) Collisions() []*CollisionError {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.collisions)
}
