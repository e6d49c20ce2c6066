package rill

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/roach88/rill/internal/ir"
)

// Snapshot maps sids to store values.
type Snapshot map[string]any

// Canonical returns the snapshot as RFC 8785 canonical JSON.
func (s Snapshot) Canonical() ([]byte, error) {
	return ir.MarshalCanonical(map[string]any(s))
}

// Hash returns the content hash of the canonical snapshot.
func (s Snapshot) Hash() (string, error) {
	data, err := s.Canonical()
	if err != nil {
		return "", err
	}
	return ir.SnapshotHash(data), nil
}

// ParseSnapshot decodes a JSON snapshot. Numbers decode as float64 and are
// converted to each store's type on restore.
func ParseSnapshot(data []byte) (Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	if snap == nil {
		snap = Snapshot{}
	}
	return snap, nil
}

// SerializeOption configures Serialize.
type SerializeOption func(*serializeConfig)

type serializeConfig struct {
	onlyChanges bool
	ignore      map[string]bool
}

// OnlyChanges keeps only stores written in the scope, by a reducer or a
// fork value.
func OnlyChanges() SerializeOption {
	return func(c *serializeConfig) {
		c.onlyChanges = true
	}
}

// Ignore leaves the given stores out of the snapshot.
func Ignore(stores ...Unit) SerializeOption {
	return func(c *serializeConfig) {
		for _, u := range stores {
			if slot, ok := u.(valueSlot); ok && slot.stateOf().SID != "" {
				c.ignore[slot.stateOf().SID] = true
			}
		}
	}
}

// Serialize returns the values of every store with a sid. Values seeded
// from a snapshot under sids no store knows are kept. Written stores
// without a sid are left out and logged; see Unserializable.
func Serialize(s *Scope, opts ...SerializeOption) Snapshot {
	cfg := &serializeConfig{ignore: make(map[string]bool)}
	for _, opt := range opts {
		opt(cfg)
	}

	out := make(Snapshot)
	for sid, v := range s.core.SIDSeeds() {
		if _, known := s.graph.LookupSID(sid); !known && !cfg.ignore[sid] {
			out[sid] = v
		}
	}
	for _, sid := range s.graph.SIDs() {
		if cfg.ignore[sid] {
			continue
		}
		st, _ := s.graph.LookupSID(sid)
		if cfg.onlyChanges && !s.core.Written(st) {
			continue
		}
		out[sid] = s.core.Get(st)
	}

	for _, name := range s.Unserializable() {
		s.Logger().Warn("store without sid left out of snapshot",
			"scope", s.ID(),
			"store", name,
		)
	}
	return out
}

// Unserializable returns the names of stores written in the scope that
// have no sid, sorted.
func (s *Scope) Unserializable() []string {
	var out []string
	for _, st := range s.core.WrittenStates() {
		if st.SID == "" && !st.Hidden {
			out = append(out, st.Name)
		}
	}
	slices.Sort(out)
	return out
}
