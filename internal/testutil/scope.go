package testutil

// DefaultScopeID is the scope id used when a scenario does not set one.
const DefaultScopeID = "test-scope"

// FixedScopeIDs gives every forked scope the same id, so traces and
// journal rows compare byte for byte across runs.
//
// It satisfies rill.IDGenerator.
type FixedScopeIDs struct {
	id string
}

// NewFixedScopeIDs creates a generator returning id, or DefaultScopeID
// when id is empty.
func NewFixedScopeIDs(id string) *FixedScopeIDs {
	if id == "" {
		id = DefaultScopeID
	}
	return &FixedScopeIDs{id: id}
}

// Generate returns the fixed id.
func (g *FixedScopeIDs) Generate() string {
	return g.id
}
