package graph

// State describes one store slot. Scopes keep the actual values.
type State struct {
	Name string

	// SID is the stable serialization identifier. Empty means the state is
	// not serializable.
	SID string

	// Default seeds the state in every scope that has no other source.
	Default any

	// Derive recomputes a derived state from its parents. Nil for base
	// stores.
	Derive func(read func(*State) any) any

	// Equal compares two values. Nil uses DefaultEqual.
	Equal func(a, b any) bool

	// Coerce converts a restored snapshot value to the state's type.
	Coerce func(v any) (any, error)

	// Hidden marks bookkeeping states (effect in-flight counters) that are
	// never reported as unserializable.
	Hidden bool
}

// Derived reports whether the state is computed from other states.
func (s *State) Derived() bool {
	return s.Derive != nil
}

// Same reports whether a and b are equal under the state's comparison.
func (s *State) Same(a, b any) bool {
	if s.Equal != nil {
		return s.Equal(a, b)
	}
	return DefaultEqual(a, b)
}

// DefaultEqual compares with ==. Values of uncomparable dynamic types
// (slices, maps, funcs) are never equal, so writing them always counts as
// a change.
func DefaultEqual(a, b any) (eq bool) {
	defer func() {
		if recover() != nil {
			eq = false
		}
	}()
	return a == b
}
