package compiler

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/rill/internal/ir"
)

// Validation error codes (E100-E199)
const (
	// General validation errors (E100)
	ErrUnsupportedIRType = "E100" // unsupported IR type for validation

	// Program errors (E101-E109)
	ErrProgramNameEmpty   = "E101" // program name is required
	ErrDuplicateName      = "E102" // two units share a name
	ErrInvalidName        = "E103" // unit name is not an identifier
	ErrInvalidWarnMode    = "E104" // warn mode is not off, warn or throw
	ErrDuplicateSID       = "E105" // two stores share a sid
	ErrUnsupportedOp      = "E106" // unknown reducer or combine operation
	ErrUnsupportedHandler = "E107" // unknown effect handler
	ErrInvalidDelay       = "E108" // negative delay_ms

	// Reference errors (E110-E119)
	ErrUnknownRef       = "E110" // reference to an undeclared unit or event
	ErrNotATarget       = "E111" // reference cannot be called
	ErrNotAStore        = "E112" // reference must be a store
	ErrNotAnEffect      = "E113" // reference must be an effect
	ErrDerivedStore     = "E114" // reducer bound to a combined store
	ErrDuplicateReducer = "E115" // second reducer for the same store and source
	ErrInvalidSample    = "E116" // sample without clock and source, or bad fn
	ErrInvalidAttach    = "E117" // bad attach params mode
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate validates a compiled program.
// Returns all errors found (does not fail-fast).
func Validate(v any) []ValidationError {
	switch spec := v.(type) {
	case *ir.ProgramSpec:
		return validateProgram(spec)
	case ir.ProgramSpec:
		return validateProgram(&spec)
	default:
		return []ValidationError{{
			Field:   "type",
			Message: fmt.Sprintf("unsupported IR type: %T", v),
			Code:    ErrUnsupportedIRType,
		}}
	}
}

// unitKind is what a declared name refers to.
type unitKind int

const (
	kindEvent unitKind = iota + 1
	kindStore
	kindCombine
	kindEffect
	kindAttach
)

func (k unitKind) String() string {
	switch k {
	case kindEvent:
		return "event"
	case kindStore:
		return "store"
	case kindCombine:
		return "combine"
	case kindEffect:
		return "effect"
	case kindAttach:
		return "attach"
	default:
		return "unknown"
	}
}

func (k unitKind) isStore() bool { return k == kindStore || k == kindCombine }
func (k unitKind) isEffect() bool { return k == kindEffect || k == kindAttach }

// validator accumulates errors over one program.
type validator struct {
	spec  *ir.ProgramSpec
	units map[string]unitKind
	errs  []ValidationError
}

func (v *validator) add(field, code, format string, args ...any) {
	v.errs = append(v.errs, ValidationError{
		Field:   field,
		Message: fmt.Sprintf(format, args...),
		Code:    code,
	})
}

func validateProgram(spec *ir.ProgramSpec) []ValidationError {
	v := &validator{spec: spec, units: make(map[string]unitKind)}

	// E101: name is required
	if strings.TrimSpace(spec.Name) == "" {
		v.add("program", ErrProgramNameEmpty, "program name is required and must be non-empty")
	}

	v.checkConfig("config", spec.Config)
	v.declare()
	v.checkEffects()
	v.checkCombines()
	v.checkAttaches()
	v.checkReducers()
	v.checkSamples()

	return v.errs
}

// identPattern matches unit names. Dots are reserved for event references.
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// declare registers every unit name, reporting duplicates and bad names.
func (v *validator) declare() {
	register := func(field, name string, kind unitKind) {
		if !identPattern.MatchString(name) {
			v.add(field, ErrInvalidName, "invalid unit name %q: must be an identifier", name)
		}
		if prev, ok := v.units[name]; ok {
			v.add(field, ErrDuplicateName, "duplicate unit name %q (already declared as %s)", name, prev)
			return
		}
		v.units[name] = kind
	}

	for i, e := range v.spec.Events {
		register(fmt.Sprintf("events[%d].name", i), e.Name, kindEvent)
		if e.Config != nil {
			v.checkConfig(fmt.Sprintf("events[%d].config", i), *e.Config)
		}
	}

	sids := make(map[string]string)
	for i, s := range v.spec.Stores {
		register(fmt.Sprintf("stores[%d].name", i), s.Name, kindStore)
		if s.SID == "" {
			continue
		}
		if prev, ok := sids[s.SID]; ok {
			v.add(fmt.Sprintf("stores[%d].sid", i), ErrDuplicateSID, "sid %q is used by %q and %q", s.SID, prev, s.Name)
			continue
		}
		sids[s.SID] = s.Name
	}

	for i, e := range v.spec.Effects {
		register(fmt.Sprintf("effects[%d].name", i), e.Name, kindEffect)
	}
	for i, c := range v.spec.Combines {
		register(fmt.Sprintf("combines[%d].name", i), c.Name, kindCombine)
	}
	for i, a := range v.spec.Attaches {
		register(fmt.Sprintf("attaches[%d].name", i), a.Name, kindAttach)
	}
}

func (v *validator) checkConfig(field string, cfg ir.ConfigSpec) {
	modes := []struct{ name, mode string }{
		{"unused", cfg.Unused},
		{"watch_fail_check", cfg.WatchFailCheck},
	}
	for _, m := range modes {
		if m.mode != "" && !ir.ValidWarnModes[m.mode] {
			v.add(field+"."+m.name, ErrInvalidWarnMode, "invalid warn mode %q, must be \"off\", \"warn\", or \"throw\"", m.mode)
		}
	}
}

func (v *validator) checkEffects() {
	for i, e := range v.spec.Effects {
		if !ir.ValidHandlers[e.Handler] {
			v.add(fmt.Sprintf("effects[%d].handler", i), ErrUnsupportedHandler,
				"unsupported handler %q, must be \"echo\", \"fail\", or \"lookup\"", e.Handler)
		}
		if e.DelayMS < 0 {
			v.add(fmt.Sprintf("effects[%d].delay_ms", i), ErrInvalidDelay, "delay_ms must not be negative")
		}
	}
}

func (v *validator) checkCombines() {
	for i, c := range v.spec.Combines {
		if !ir.ValidCombineOps[c.Op] {
			v.add(fmt.Sprintf("combines[%d].op", i), ErrUnsupportedOp,
				"unsupported combine op %q, must be \"sum\", \"list\", or \"object\"", c.Op)
		}
		if len(c.Stores) == 0 {
			v.add(fmt.Sprintf("combines[%d].stores", i), ErrNotAStore, "combine %q needs at least one store", c.Name)
		}
		for j, s := range c.Stores {
			v.store(fmt.Sprintf("combines[%d].stores[%d]", i, j), s)
		}
	}
}

func (v *validator) checkAttaches() {
	for i, a := range v.spec.Attaches {
		field := fmt.Sprintf("attaches[%d]", i)
		if kind, ok := v.resolve(field+".effect", a.Effect); ok && (ir.ParseRef(a.Effect).Event != "" || !kind.isEffect()) {
			v.add(field+".effect", ErrNotAnEffect, "%q is not an effect", a.Effect)
		}
		if a.Source != "" {
			v.store(field+".source", a.Source)
		}
		if !ir.ValidAttachParams[a.Params] {
			v.add(field+".params", ErrInvalidAttach,
				"invalid params mode %q, must be \"source\", \"params\", or \"pair\"", a.Params)
		}
		if a.Source == "" && (a.Params == "source" || a.Params == "pair") {
			v.add(field+".params", ErrInvalidAttach, "params mode %q requires a source", a.Params)
		}
	}
}

func (v *validator) checkReducers() {
	bound := make(map[[2]string]bool)
	for i, r := range v.spec.Reducers {
		field := fmt.Sprintf("reducers[%d]", i)
		if kind, ok := v.resolve(field+".store", r.Store); ok {
			switch {
			case ir.ParseRef(r.Store).Event != "" || !kind.isStore():
				v.add(field+".store", ErrNotAStore, "%q is not a store", r.Store)
			case kind == kindCombine:
				v.add(field+".store", ErrDerivedStore, "reducers cannot be bound to combined store %q", r.Store)
			}
		}
		v.source(field+".on", r.On)
		if !ir.ValidReducerOps[r.Op] {
			v.add(field+".op", ErrUnsupportedOp,
				"unsupported reducer op %q, must be \"set\", \"add\", \"append\", or \"reset\"", r.Op)
		}

		key := [2]string{r.Store, r.On}
		if bound[key] {
			v.add(field, ErrDuplicateReducer, "store %q already has a reducer for %q", r.Store, r.On)
		}
		bound[key] = true
	}
}

func (v *validator) checkSamples() {
	for i, s := range v.spec.Samples {
		field := fmt.Sprintf("samples[%d]", i)
		if s.Clock == "" && s.Source == "" {
			v.add(field, ErrInvalidSample, "sample needs a clock or a source")
		}
		if s.Clock != "" {
			v.source(field+".clock", s.Clock)
		}
		if s.Source != "" {
			v.store(field+".source", s.Source)
		}
		if s.Target != "" {
			v.target(field+".target", s.Target)
		}
		if !ir.ValidSampleFns[s.Fn] {
			v.add(field+".fn", ErrInvalidSample,
				"invalid fn %q, must be \"source\", \"clock\", or \"pair\"", s.Fn)
		}
		if s.Source == "" && (s.Fn == "source" || s.Fn == "pair") {
			v.add(field+".fn", ErrInvalidSample, "fn %q requires a source", s.Fn)
		}
		if s.Clock == "" && s.Fn == "clock" {
			v.add(field+".fn", ErrInvalidSample, "fn \"clock\" requires a clock")
		}
	}
}

// resolve looks up the unit of ref and checks its event suffix.
func (v *validator) resolve(field, ref string) (unitKind, bool) {
	r := ir.ParseRef(ref)
	kind, ok := v.units[r.Unit]
	if !ok {
		v.add(field, ErrUnknownRef, "unknown unit %q", r.Unit)
		return 0, false
	}
	if r.Event == "" {
		return kind, true
	}
	switch {
	case kind.isEffect() && ir.EffectEvents[r.Event]:
	case kind.isStore() && ir.StoreEvents[r.Event]:
	default:
		v.add(field, ErrUnknownRef, "%s %q has no event %q", kind, r.Unit, r.Event)
		return 0, false
	}
	return kind, true
}

// source checks that ref can trigger other units. Every declared unit and
// every valid event reference can.
func (v *validator) source(field, ref string) {
	v.resolve(field, ref)
}

func (v *validator) store(field, ref string) {
	kind, ok := v.resolve(field, ref)
	if ok && (ir.ParseRef(ref).Event != "" || !kind.isStore()) {
		v.add(field, ErrNotAStore, "%q is not a store", ref)
	}
}

func (v *validator) target(field, ref string) {
	kind, ok := v.resolve(field, ref)
	if !ok {
		return
	}
	if ir.ParseRef(ref).Event != "" || kind == kindCombine {
		v.add(field, ErrNotATarget, "%q cannot be called", ref)
	}
}
