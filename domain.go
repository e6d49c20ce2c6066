package rill

import (
	"sync"

	"github.com/roach88/rill/internal/graph"
)

// Domain is a construction-time namespace. Units created with InDomain
// carry the domain path in their type tag and inherit its configuration.
// A domain is not part of propagation.
type Domain struct {
	unitMeta
	parent *Domain

	mu       sync.Mutex
	units    []Unit
	children []*Domain
	hooks    []func(Unit)
}

// DomainOption configures a Domain.
type DomainOption func(*Domain)

// Isolated gives the domain its own graph and sid registry. Units of an
// isolated domain can only be used with scopes forked by ForDomain.
func Isolated() DomainOption {
	return func(d *Domain) {
		d.graph = graph.New()
	}
}

// WithDomainConfig sets the default configuration of the domain's units.
func WithDomainConfig(cfg EventConfig) DomainOption {
	return func(d *Domain) {
		d.config = cfg
	}
}

// NewDomain creates a root domain.
func NewDomain(name string, opts ...DomainOption) *Domain {
	d := &Domain{
		unitMeta: unitMeta{
			kind:   KindDomain,
			name:   name,
			typ:    name,
			graph:  graph.Default,
			config: DefaultConfig,
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Domain creates a child domain sharing this domain's graph.
func (d *Domain) Domain(name string, opts ...DomainOption) *Domain {
	child := &Domain{
		unitMeta: unitMeta{
			kind:   KindDomain,
			name:   name,
			typ:    d.typ + "/" + name,
			graph:  d.graph,
			domain: d,
			config: d.config,
		},
		parent: d,
	}
	for _, opt := range opts {
		opt(child)
	}

	d.mu.Lock()
	d.children = append(d.children, child)
	d.mu.Unlock()

	d.notify(child)
	return child
}

// Config returns the default configuration of the domain's units.
func (d *Domain) Config() EventConfig {
	return d.config
}

// Parent returns the enclosing domain, or nil for a root domain.
func (d *Domain) Parent() *Domain {
	return d.parent
}

// Units returns the units created directly in the domain, in creation
// order.
func (d *Domain) Units() []Unit {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Unit(nil), d.units...)
}

// Domains returns the child domains.
func (d *Domain) Domains() []*Domain {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Domain(nil), d.children...)
}

// OnCreate registers fn for every unit created later in the domain or in
// any of its descendants.
func (d *Domain) OnCreate(fn func(Unit)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hooks = append(d.hooks, fn)
}

// Collisions returns the sid collisions of the domain's graph.
func (d *Domain) Collisions() []*CollisionError {
	return d.graph.Collisions()
}

// DomainEvent creates an event in the domain.
func DomainEvent[T any](d *Domain, name string, opts ...Option) *Event[T] {
	return NewEvent[T](name, append([]Option{InDomain(d)}, opts...)...)
}

// DomainStore creates a store in the domain.
func DomainStore[T any](d *Domain, initial T, opts ...Option) *Store[T] {
	return NewStore(initial, append([]Option{InDomain(d)}, opts...)...)
}

// DomainEffect creates an effect in the domain.
func DomainEffect[P, R any](d *Domain, name string, h Handler[P, R], opts ...Option) *Effect[P, R] {
	return NewEffect(name, h, append([]Option{InDomain(d)}, opts...)...)
}

// register adds u to the domain and runs the creation hooks of the domain
// and its ancestors.
func (d *Domain) register(u Unit) {
	d.mu.Lock()
	d.units = append(d.units, u)
	d.mu.Unlock()
	d.notify(u)
}

func (d *Domain) notify(u Unit) {
	for cur := d; cur != nil; cur = cur.parent {
		cur.mu.Lock()
		hooks := append([]func(Unit){}, cur.hooks...)
		cur.mu.Unlock()
		for _, h := range hooks {
			h(u)
		}
	}
}
