package program

import (
	"fmt"
	"reflect"

	"github.com/roach88/rill"
	"github.com/roach88/rill/internal/ir"
)

// deepEqual compares plain values. Writing an equal list or object is a
// no-op update.
var deepEqual = rill.WithEquality(reflect.DeepEqual)

// builder resolves names to units. Combines and attaches are built on
// first reference so they may refer to each other in any order.
type builder struct {
	p        *Program
	combines map[string]ir.CombineSpec
	attaches map[string]ir.AttachSpec
	building map[string]bool
}

func newBuilder(p *Program) *builder {
	b := &builder{
		p:        p,
		combines: make(map[string]ir.CombineSpec),
		attaches: make(map[string]ir.AttachSpec),
		building: make(map[string]bool),
	}
	for _, c := range p.spec.Combines {
		b.combines[c.Name] = c
	}
	for _, a := range p.spec.Attaches {
		b.attaches[a.Name] = a
	}
	return b
}

func (b *builder) build() error {
	p, d := b.p, b.p.domain

	for _, e := range p.spec.Events {
		opts := []rill.Option{rill.InDomain(d)}
		if e.Config != nil {
			cfg, err := eventConfig(d.Config(), *e.Config)
			if err != nil {
				return fmt.Errorf("event %s: %w", e.Name, err)
			}
			opts = append(opts, rill.WithConfig(cfg))
		}
		ev := rill.NewEvent[any](e.Name, opts...)
		p.events[e.Name] = ev
		b.declare(e.Name, "event", ev, "", false)
	}

	for _, s := range p.spec.Stores {
		initial, err := plain(s.Init)
		if err != nil {
			return fmt.Errorf("store %s: init: %w", s.Name, err)
		}
		opts := []rill.Option{rill.WithName(s.Name), rill.InDomain(d), deepEqual}
		if s.SID != "" {
			opts = append(opts, rill.WithSID(s.SID))
		}
		st := rill.NewStore[any](initial, opts...)
		p.stores[s.Name] = st
		b.declare(s.Name, "store", st, s.SID, false)
	}

	for _, e := range p.spec.Effects {
		h, err := handlerFor(e)
		if err != nil {
			return err
		}
		fx := rill.NewEffect[any, any](e.Name, h, rill.InDomain(d))
		p.effects[e.Name] = fx
		b.declare(e.Name, "effect", fx, "", false)
	}

	for _, c := range p.spec.Combines {
		if _, err := b.store(c.Name); err != nil {
			return err
		}
	}
	for _, a := range p.spec.Attaches {
		if _, err := b.effect(a.Name); err != nil {
			return err
		}
	}

	for i, r := range p.spec.Reducers {
		if err := b.reducer(r); err != nil {
			return fmt.Errorf("reducer[%d]: %w", i, err)
		}
	}
	for i, s := range p.spec.Samples {
		if err := b.sample(s); err != nil {
			return fmt.Errorf("sample[%d]: %w", i, err)
		}
	}
	return nil
}

func (b *builder) declare(name, decl string, u rill.Unit, sid string, derived bool) {
	b.p.units[name] = UnitInfo{
		Name:    name,
		Kind:    u.Kind(),
		Type:    u.GetType(),
		Decl:    decl,
		SID:     sid,
		Derived: derived,
	}
}

// enter marks name as under construction, failing on a loop.
func (b *builder) enter(kind, name string) (func(), error) {
	if b.building[name] {
		return nil, fmt.Errorf("%s %q depends on itself", kind, name)
	}
	b.building[name] = true
	return func() { delete(b.building, name) }, nil
}

// store resolves a base or combined store.
func (b *builder) store(name string) (*rill.Store[any], error) {
	if s, ok := b.p.stores[name]; ok {
		return s, nil
	}
	c, ok := b.combines[name]
	if !ok {
		return nil, fmt.Errorf("store %q: %w", name, ErrUnknownUnit)
	}
	leave, err := b.enter("combine", name)
	if err != nil {
		return nil, err
	}
	defer leave()

	inputs := make([]*rill.Store[any], len(c.Stores))
	for i, in := range c.Stores {
		if inputs[i], err = b.store(in); err != nil {
			return nil, fmt.Errorf("combine %s: %w", name, err)
		}
	}
	s, err := combine(c, inputs)
	if err != nil {
		return nil, err
	}
	b.p.stores[name] = s
	b.declare(name, "combine", s, "", true)
	return s, nil
}

// effect resolves a declared or attached effect.
func (b *builder) effect(name string) (*rill.Effect[any, any], error) {
	if fx, ok := b.p.effects[name]; ok {
		return fx, nil
	}
	a, ok := b.attaches[name]
	if !ok {
		return nil, fmt.Errorf("effect %q: %w", name, ErrUnknownUnit)
	}
	leave, err := b.enter("attach", name)
	if err != nil {
		return nil, err
	}
	defer leave()

	inner, err := b.effect(a.Effect)
	if err != nil {
		return nil, fmt.Errorf("attach %s: %w", name, err)
	}
	cfg := rill.AttachConfig[any, any, any, any]{
		Effect:    inner,
		MapParams: attachParams(a.Params),
		Name:      name,
	}
	if a.Source != "" {
		if cfg.Source, err = b.store(a.Source); err != nil {
			return nil, fmt.Errorf("attach %s: %w", name, err)
		}
	}
	fx := rill.Attach(cfg)
	b.p.effects[name] = fx
	b.declare(name, "attach", fx, "", true)
	return fx, nil
}

// source resolves a reference that can trigger other units.
func (b *builder) source(ref string) (rill.Source[any], error) {
	if src, ok := b.p.refs[ref]; ok {
		return src, nil
	}

	r := ir.ParseRef(ref)
	var src rill.Source[any]
	switch {
	case r.Event == "":
		if e, ok := b.p.events[r.Unit]; ok {
			src = e
			break
		}
		if s, err := b.store(r.Unit); err == nil {
			src = s
			break
		}
		fx, err := b.effect(r.Unit)
		if err != nil {
			return nil, fmt.Errorf("unit %q: %w", r.Unit, ErrUnknownUnit)
		}
		src = fx
	case ir.StoreEvents[r.Event]:
		s, err := b.store(r.Unit)
		if err != nil {
			return nil, err
		}
		src = s.Updates()
	case ir.EffectEvents[r.Event]:
		fx, err := b.effect(r.Unit)
		if err != nil {
			return nil, err
		}
		src = effectEvent(fx, r.Event)
	default:
		return nil, fmt.Errorf("reference %q: %w", ref, ErrUnknownUnit)
	}

	b.p.refs[ref] = src
	return src, nil
}

// target resolves a unit that can be fired.
func (b *builder) target(name string) (rill.Target[any], error) {
	if e, ok := b.p.events[name]; ok {
		return e, nil
	}
	if fx, err := b.effect(name); err == nil {
		return fx, nil
	}
	s, err := b.store(name)
	if err != nil {
		return nil, fmt.Errorf("target %q: %w", name, ErrUnknownUnit)
	}
	if s.Derived() {
		return nil, fmt.Errorf("target %q: combined stores cannot be fired", name)
	}
	return s, nil
}

func (b *builder) reducer(r ir.ReducerSpec) error {
	s, err := b.store(r.Store)
	if err != nil {
		return err
	}
	src, err := b.source(r.On)
	if err != nil {
		return err
	}
	if r.Op == "reset" {
		s.Reset(src)
		return nil
	}

	value, err := plain(r.Value)
	if err != nil {
		return fmt.Errorf("value: %w", err)
	}
	fn, err := reduceFn(r.Op, r.Value != nil, value)
	if err != nil {
		return err
	}
	rill.On(s, src, fn)
	return nil
}

func (b *builder) sample(spec ir.SampleSpec) error {
	cfg := rill.SampleConfig[any, any, any]{
		Fn:   sampleFn(spec.Fn),
		Name: spec.Name,
	}
	if spec.Source != "" {
		s, err := b.store(spec.Source)
		if err != nil {
			return err
		}
		cfg.Source = s
	}
	if spec.Clock != "" {
		clock, err := b.source(spec.Clock)
		if err != nil {
			return err
		}
		cfg.Clock = clock
	}
	if spec.Target != "" {
		t, err := b.target(spec.Target)
		if err != nil {
			return err
		}
		cfg.Target = t
	}

	rill.Sample(cfg)
	return nil
}
