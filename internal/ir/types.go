package ir

// ProgramSpec is a compiled program: a named set of units and the links
// between them. Unit slices are sorted by name; link slices (reducers,
// samples) keep declaration order, which is their wiring order.
type ProgramSpec struct {
	Name     string        `json:"name"`
	Config   ConfigSpec    `json:"config"`
	Events   []EventSpec   `json:"events"`
	Stores   []StoreSpec   `json:"stores"`
	Effects  []EffectSpec  `json:"effects"`
	Reducers []ReducerSpec `json:"reducers"`
	Samples  []SampleSpec  `json:"samples"`
	Combines []CombineSpec `json:"combines"`
	Attaches []AttachSpec  `json:"attaches"`
}

// ConfigSpec holds warn modes as written: "off", "warn" or "throw".
// Empty means inherit.
type ConfigSpec struct {
	Unused         string `json:"unused,omitempty"`
	WatchFailCheck string `json:"watch_fail_check,omitempty"`
}

// EventSpec declares an event.
type EventSpec struct {
	Name   string      `json:"name"`
	Config *ConfigSpec `json:"config,omitempty"`
}

// StoreSpec declares a store. Init is a JSON value.
type StoreSpec struct {
	Name string `json:"name"`
	SID  string `json:"sid,omitempty"`
	Init any    `json:"init"`
}

// EffectSpec declares an effect with a built-in handler.
type EffectSpec struct {
	Name    string         `json:"name"`
	Handler string         `json:"handler"`
	DelayMS int64          `json:"delay_ms,omitempty"`
	Message string         `json:"message,omitempty"` // failure message for "fail"
	Table   map[string]any `json:"table,omitempty"`   // lookup table for "lookup"
}

// ReducerSpec binds a reducer to a store. On is a unit reference.
type ReducerSpec struct {
	Store string `json:"store"`
	On    string `json:"on"`
	Op    string `json:"op"`
	Value any    `json:"value,omitempty"`
}

// SampleSpec declares a sample. Fn selects what is forwarded: "source",
// "clock" or "pair". Empty forwards the source when there is one.
type SampleSpec struct {
	Name   string `json:"name,omitempty"`
	Source string `json:"source,omitempty"`
	Clock  string `json:"clock,omitempty"`
	Target string `json:"target,omitempty"`
	Fn     string `json:"fn,omitempty"`
}

// CombineSpec declares a derived store over Stores.
type CombineSpec struct {
	Name   string   `json:"name"`
	Stores []string `json:"stores"`
	Op     string   `json:"op"`
}

// AttachSpec declares an attached effect. Params selects the inner
// effect's params: "source", "params" or "pair".
type AttachSpec struct {
	Name   string `json:"name"`
	Source string `json:"source,omitempty"`
	Effect string `json:"effect"`
	Params string `json:"params,omitempty"`
}

// ValidWarnModes defines allowed warn modes.
var ValidWarnModes = map[string]bool{
	"off":   true,
	"warn":  true,
	"throw": true,
}

// ValidReducerOps defines allowed reducer operations.
var ValidReducerOps = map[string]bool{
	"set":    true,
	"add":    true,
	"append": true,
	"reset":  true,
}

// ValidHandlers defines the built-in effect handlers.
var ValidHandlers = map[string]bool{
	"echo":   true,
	"fail":   true,
	"lookup": true,
}

// ValidCombineOps defines allowed combine operations.
var ValidCombineOps = map[string]bool{
	"sum":    true,
	"list":   true,
	"object": true,
}

// ValidSampleFns defines allowed sample functions.
var ValidSampleFns = map[string]bool{
	"":       true,
	"source": true,
	"clock":  true,
	"pair":   true,
}

// ValidAttachParams defines allowed attach param modes.
var ValidAttachParams = map[string]bool{
	"":       true,
	"source": true,
	"params": true,
	"pair":   true,
}

