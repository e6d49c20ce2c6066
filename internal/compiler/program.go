package compiler

import (
	"cmp"
	"fmt"
	"slices"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/rill/internal/ir"
)

// CompileProgram parses a CUE value into a ProgramSpec.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value is the program root, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`program: "counter", store: count: {init: 0}`)
//	spec, err := CompileProgram(v)
//
// CompileProgram only checks shapes. Use Validate for references and
// operations.
func CompileProgram(v cue.Value) (*ir.ProgramSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &ir.ProgramSpec{}

	nameVal := v.LookupPath(cue.ParsePath("program"))
	if !nameVal.Exists() {
		return nil, &CompileError{
			Field:   "program",
			Message: "program name is required",
			Pos:     v.Pos(),
		}
	}
	name, err := nameVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	spec.Name = name

	if cfg := v.LookupPath(cue.ParsePath("config")); cfg.Exists() {
		if spec.Config, err = parseConfig(cfg); err != nil {
			return nil, err
		}
	}

	if spec.Events, err = parseEvents(v); err != nil {
		return nil, err
	}
	if spec.Stores, err = parseStores(v); err != nil {
		return nil, err
	}
	if spec.Effects, err = parseEffects(v); err != nil {
		return nil, err
	}
	if spec.Combines, err = parseCombines(v); err != nil {
		return nil, err
	}
	if spec.Attaches, err = parseAttaches(v); err != nil {
		return nil, err
	}
	if spec.Reducers, err = parseReducers(v); err != nil {
		return nil, err
	}
	if spec.Samples, err = parseSamples(v); err != nil {
		return nil, err
	}

	return spec, nil
}

// eachField calls fn for every field of the struct at path, if present.
func eachField(v cue.Value, path string, fn func(label string, val cue.Value) error) error {
	sv := v.LookupPath(cue.ParsePath(path))
	if !sv.Exists() {
		return nil
	}
	iter, err := sv.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		if err := fn(iter.Label(), iter.Value()); err != nil {
			return err
		}
	}
	return nil
}

// eachElem calls fn for every element of the list at path, if present.
func eachElem(v cue.Value, path string, fn func(i int, val cue.Value) error) error {
	lv := v.LookupPath(cue.ParsePath(path))
	if !lv.Exists() {
		return nil
	}
	iter, err := lv.List()
	if err != nil {
		return formatCUEError(err)
	}
	for i := 0; iter.Next(); i++ {
		if err := fn(i, iter.Value()); err != nil {
			return err
		}
	}
	return nil
}

// optString returns the string at path, or "" if absent.
func optString(v cue.Value, path string) (string, error) {
	f := v.LookupPath(cue.ParsePath(path))
	if !f.Exists() {
		return "", nil
	}
	s, err := f.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

// reqString returns the string at path, or a CompileError naming field.
func reqString(v cue.Value, path, field string) (string, error) {
	f := v.LookupPath(cue.ParsePath(path))
	if !f.Exists() {
		return "", &CompileError{
			Field:   field,
			Message: path + " is required",
			Pos:     v.Pos(),
		}
	}
	s, err := f.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

// optValue decodes the concrete value at path into a JSON-like Go value.
func optValue(v cue.Value, path string) (any, error) {
	f := v.LookupPath(cue.ParsePath(path))
	if !f.Exists() {
		return nil, nil
	}
	var out any
	if err := f.Decode(&out); err != nil {
		return nil, formatCUEError(err)
	}
	return out, nil
}

func parseConfig(v cue.Value) (ir.ConfigSpec, error) {
	var cfg ir.ConfigSpec
	var err error
	if cfg.Unused, err = optString(v, "unused"); err != nil {
		return cfg, err
	}
	if cfg.WatchFailCheck, err = optString(v, "watch_fail_check"); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func parseEvents(v cue.Value) ([]ir.EventSpec, error) {
	var events []ir.EventSpec
	err := eachField(v, "event", func(name string, ev cue.Value) error {
		spec := ir.EventSpec{Name: name}
		if cfgVal := ev.LookupPath(cue.ParsePath("config")); cfgVal.Exists() {
			cfg, err := parseConfig(cfgVal)
			if err != nil {
				return err
			}
			spec.Config = &cfg
		}
		events = append(events, spec)
		return nil
	})
	return sortByName(events, func(e ir.EventSpec) string { return e.Name }), err
}

func parseStores(v cue.Value) ([]ir.StoreSpec, error) {
	var stores []ir.StoreSpec
	err := eachField(v, "store", func(name string, sv cue.Value) error {
		if !sv.LookupPath(cue.ParsePath("init")).Exists() {
			return &CompileError{
				Field:   fmt.Sprintf("store.%s.init", name),
				Message: "initial value is required",
				Pos:     sv.Pos(),
			}
		}
		initial, err := optValue(sv, "init")
		if err != nil {
			return err
		}
		sid, err := optString(sv, "sid")
		if err != nil {
			return err
		}
		stores = append(stores, ir.StoreSpec{Name: name, SID: sid, Init: initial})
		return nil
	})
	return sortByName(stores, func(s ir.StoreSpec) string { return s.Name }), err
}

func parseEffects(v cue.Value) ([]ir.EffectSpec, error) {
	var effects []ir.EffectSpec
	err := eachField(v, "effect", func(name string, ev cue.Value) error {
		handler, err := reqString(ev, "handler", fmt.Sprintf("effect.%s.handler", name))
		if err != nil {
			return err
		}
		spec := ir.EffectSpec{Name: name, Handler: handler}

		if delay := ev.LookupPath(cue.ParsePath("delay_ms")); delay.Exists() {
			if spec.DelayMS, err = delay.Int64(); err != nil {
				return formatCUEError(err)
			}
		}
		if spec.Message, err = optString(ev, "message"); err != nil {
			return err
		}
		if tv := ev.LookupPath(cue.ParsePath("table")); tv.Exists() {
			if err := tv.Decode(&spec.Table); err != nil {
				return formatCUEError(err)
			}
		}
		effects = append(effects, spec)
		return nil
	})
	return sortByName(effects, func(e ir.EffectSpec) string { return e.Name }), err
}

func parseCombines(v cue.Value) ([]ir.CombineSpec, error) {
	var combines []ir.CombineSpec
	err := eachField(v, "combine", func(name string, cv cue.Value) error {
		op, err := reqString(cv, "op", fmt.Sprintf("combine.%s.op", name))
		if err != nil {
			return err
		}
		spec := ir.CombineSpec{Name: name, Op: op}
		err = eachElem(cv, "stores", func(_ int, sv cue.Value) error {
			s, err := sv.String()
			if err != nil {
				return formatCUEError(err)
			}
			spec.Stores = append(spec.Stores, s)
			return nil
		})
		if err != nil {
			return err
		}
		combines = append(combines, spec)
		return nil
	})
	return sortByName(combines, func(c ir.CombineSpec) string { return c.Name }), err
}

func parseAttaches(v cue.Value) ([]ir.AttachSpec, error) {
	var attaches []ir.AttachSpec
	err := eachField(v, "attach", func(name string, av cue.Value) error {
		effect, err := reqString(av, "effect", fmt.Sprintf("attach.%s.effect", name))
		if err != nil {
			return err
		}
		spec := ir.AttachSpec{Name: name, Effect: effect}
		if spec.Source, err = optString(av, "source"); err != nil {
			return err
		}
		if spec.Params, err = optString(av, "params"); err != nil {
			return err
		}
		attaches = append(attaches, spec)
		return nil
	})
	return sortByName(attaches, func(a ir.AttachSpec) string { return a.Name }), err
}

func parseReducers(v cue.Value) ([]ir.ReducerSpec, error) {
	var reducers []ir.ReducerSpec
	err := eachElem(v, "reducer", func(i int, rv cue.Value) error {
		field := fmt.Sprintf("reducer[%d]", i)
		store, err := reqString(rv, "store", field+".store")
		if err != nil {
			return err
		}
		on, err := reqString(rv, "on", field+".on")
		if err != nil {
			return err
		}
		op, err := reqString(rv, "op", field+".op")
		if err != nil {
			return err
		}
		value, err := optValue(rv, "value")
		if err != nil {
			return err
		}
		reducers = append(reducers, ir.ReducerSpec{Store: store, On: on, Op: op, Value: value})
		return nil
	})
	return reducers, err
}

func parseSamples(v cue.Value) ([]ir.SampleSpec, error) {
	var samples []ir.SampleSpec
	err := eachElem(v, "sample", func(_ int, sv cue.Value) error {
		var spec ir.SampleSpec
		var err error
		for _, f := range []struct {
			path string
			dst  *string
		}{
			{"name", &spec.Name},
			{"source", &spec.Source},
			{"clock", &spec.Clock},
			{"target", &spec.Target},
			{"fn", &spec.Fn},
		} {
			if *f.dst, err = optString(sv, f.path); err != nil {
				return err
			}
		}
		samples = append(samples, spec)
		return nil
	})
	return samples, err
}

func sortByName[T any](items []T, name func(T) string) []T {
	slices.SortFunc(items, func(a, b T) int {
		return cmp.Compare(name(a), name(b))
	})
	return items
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
