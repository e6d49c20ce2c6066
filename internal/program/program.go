package program

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/rill"
	"github.com/roach88/rill/internal/compiler"
	"github.com/roach88/rill/internal/ir"
)

// ErrUnknownUnit is returned for names the program does not declare.
var ErrUnknownUnit = errors.New("unknown unit")

// InvalidError is returned by Build for a program that fails validation.
type InvalidError struct {
	Program string
	Errors  []compiler.ValidationError
}

func (e *InvalidError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, ve := range e.Errors {
		msgs[i] = ve.Error()
	}
	return fmt.Sprintf("program %q is invalid: %s", e.Program, strings.Join(msgs, "; "))
}

// UnitInfo describes one declared unit.
type UnitInfo struct {
	Name    string    `json:"name"`
	Kind    rill.Kind `json:"kind"`
	Type    string    `json:"type"`
	Decl    string    `json:"decl"`
	SID     string    `json:"sid,omitempty"`
	Derived bool      `json:"derived,omitempty"`
}

// Program is a built program. It is safe for concurrent use; all state
// lives in the scopes it forks.
type Program struct {
	spec   *ir.ProgramSpec
	hash   string
	domain *rill.Domain
	log    *slog.Logger

	events  map[string]*rill.Event[any]
	stores  map[string]*rill.Store[any]
	effects map[string]*rill.Effect[any, any]
	refs    map[string]rill.Source[any]
	units   map[string]UnitInfo
}

// Build validates spec and instantiates its units in a new isolated
// domain named after the program.
func Build(spec *ir.ProgramSpec, logger *slog.Logger) (p *Program, err error) {
	if spec == nil {
		return nil, errors.New("program spec is nil")
	}
	if errs := compiler.Validate(spec); len(errs) > 0 {
		return nil, &InvalidError{Program: spec.Name, Errors: errs}
	}
	hash, err := ir.ProgramHash(spec)
	if err != nil {
		return nil, fmt.Errorf("hash program %q: %w", spec.Name, err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := eventConfig(rill.DefaultConfig, spec.Config)
	if err != nil {
		return nil, fmt.Errorf("program %q: %w", spec.Name, err)
	}

	p = &Program{
		spec:    spec,
		hash:    hash,
		domain:  rill.NewDomain(spec.Name, rill.Isolated(), rill.WithDomainConfig(cfg)),
		log:     logger.With("program", spec.Name),
		events:  make(map[string]*rill.Event[any]),
		stores:  make(map[string]*rill.Store[any]),
		effects: make(map[string]*rill.Effect[any, any]),
		refs:    make(map[string]rill.Source[any]),
		units:   make(map[string]UnitInfo),
	}

	// Unit constructors report misuse by panicking with a *ConfigError.
	defer func() {
		if r := recover(); r != nil {
			ce, ok := r.(*rill.ConfigError)
			if !ok {
				panic(r)
			}
			p, err = nil, fmt.Errorf("build program %q: %w", spec.Name, ce)
		}
	}()

	b := newBuilder(p)
	if err := b.build(); err != nil {
		return nil, fmt.Errorf("build program %q: %w", spec.Name, err)
	}

	p.log.Debug("program built",
		"hash", hash,
		"units", len(p.units),
		"reducers", len(spec.Reducers),
		"samples", len(spec.Samples),
	)
	return p, nil
}

// Name returns the program name.
func (p *Program) Name() string {
	return p.spec.Name
}

// Hash returns the program hash.
func (p *Program) Hash() string {
	return p.hash
}

// Spec returns the spec the program was built from.
func (p *Program) Spec() *ir.ProgramSpec {
	return p.spec
}

// Domain returns the domain holding the program's units.
func (p *Program) Domain() *rill.Domain {
	return p.domain
}

// Units returns the declared units sorted by name.
func (p *Program) Units() []UnitInfo {
	out := make([]UnitInfo, 0, len(p.units))
	for _, name := range slices.Sorted(maps.Keys(p.units)) {
		out = append(out, p.units[name])
	}
	return out
}

// Unit returns the declared unit called name.
func (p *Program) Unit(name string) (rill.Unit, bool) {
	if e, ok := p.events[name]; ok {
		return e, true
	}
	if s, ok := p.stores[name]; ok {
		return s, true
	}
	if fx, ok := p.effects[name]; ok {
		return fx, true
	}
	return nil, false
}

// Store returns the store called name, base or combined.
func (p *Program) Store(name string) (*rill.Store[any], bool) {
	s, ok := p.stores[name]
	return s, ok
}

// Fork creates a scope of the program. values seeds base stores by name
// and is applied after any snapshot given in opts.
func (p *Program) Fork(values map[string]any, opts ...rill.ForkOption) (*rill.Scope, error) {
	seeds := make(map[rill.Unit]any, len(values))
	for _, name := range slices.Sorted(maps.Keys(values)) {
		s, ok := p.stores[name]
		if !ok {
			return nil, fmt.Errorf("fork %s: store %q: %w", p.spec.Name, name, ErrUnknownUnit)
		}
		v, err := plain(values[name])
		if err != nil {
			return nil, fmt.Errorf("fork %s: store %q: %w", p.spec.Name, name, err)
		}
		seeds[s] = v
	}

	all := []rill.ForkOption{rill.ForDomain(p.domain), rill.WithLogger(p.log)}
	all = append(all, opts...)
	if len(seeds) > 0 {
		all = append(all, rill.WithValues(seeds))
	}
	return rill.Fork(all...)
}

// Dispatch fires the unit called name with payload in scope and waits
// until everything it caused has settled.
func (p *Program) Dispatch(ctx context.Context, scope *rill.Scope, name string, payload any) (rill.Settled, error) {
	u, ok := p.Unit(name)
	if !ok {
		return rill.Settled{}, fmt.Errorf("dispatch %q: %w", name, ErrUnknownUnit)
	}
	v, err := plain(payload)
	if err != nil {
		return rill.Settled{}, fmt.Errorf("dispatch %q: %w", name, err)
	}
	return rill.AllSettled(ctx, u, rill.InScope(scope), rill.WithParams(v))
}

// State returns the value of every store in scope by name.
func (p *Program) State(scope *rill.Scope) map[string]any {
	out := make(map[string]any, len(p.stores))
	for name, s := range p.stores {
		out[name] = s.StateIn(scope)
	}
	return out
}

// Snapshot serializes scope.
func (p *Program) Snapshot(scope *rill.Scope, opts ...rill.SerializeOption) rill.Snapshot {
	return rill.Serialize(scope, opts...)
}

// eventConfig overlays the modes set in spec on base.
func eventConfig(base rill.EventConfig, spec ir.ConfigSpec) (rill.EventConfig, error) {
	cfg := base
	if spec.Unused != "" {
		m, err := rill.ParseWarnMode(spec.Unused)
		if err != nil {
			return cfg, fmt.Errorf("unused: %w", err)
		}
		cfg.Unused = m
	}
	if spec.WatchFailCheck != "" {
		m, err := rill.ParseWarnMode(spec.WatchFailCheck)
		if err != nil {
			return cfg, fmt.Errorf("watch_fail_check: %w", err)
		}
		cfg.WatchFailCheck = m
	}
	return cfg, nil
}
