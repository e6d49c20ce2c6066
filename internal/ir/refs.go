package ir

import "strings"

// Ref is a parsed unit reference: "name" or "name.event".
type Ref struct {
	Unit  string
	Event string
}

// Events of an effect that can be referenced as "<effect>.<event>".
var EffectEvents = map[string]bool{
	"done":     true,
	"fail":     true,
	"finally":  true,
	"doneData": true,
	"failData": true,
}

// Events of a store that can be referenced as "<store>.<event>".
var StoreEvents = map[string]bool{
	"updates": true,
}

// ParseRef splits a reference at its first dot.
func ParseRef(s string) Ref {
	unit, event, _ := strings.Cut(s, ".")
	return Ref{Unit: unit, Event: event}
}

func (r Ref) String() string {
	if r.Event == "" {
		return r.Unit
	}
	return r.Unit + "." + r.Event
}
