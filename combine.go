package rill

import (
	"maps"
	"slices"

	"github.com/roach88/rill/internal/graph"
)

// Combine2 derives a store from two stores. Recombination runs in the
// barrier band, once per tick however many inputs changed.
func Combine2[A, B, R any](a *Store[A], b *Store[B], fn func(A, B) R, opts ...Option) *Store[R] {
	o := combineOptions(opts, a, b)
	return deriveStore("combine", graph.Barrier, []storeRef{a, b}, func(read func(*graph.State) any) R {
		return fn(as[A](read(a.state)), as[B](read(b.state)))
	}, o, deepEqual)
}

// Combine3 derives a store from three stores.
func Combine3[A, B, C, R any](a *Store[A], b *Store[B], c *Store[C], fn func(A, B, C) R, opts ...Option) *Store[R] {
	o := combineOptions(opts, a, b, c)
	return deriveStore("combine", graph.Barrier, []storeRef{a, b, c}, func(read func(*graph.State) any) R {
		return fn(as[A](read(a.state)), as[B](read(b.state)), as[C](read(c.state)))
	}, o, deepEqual)
}

// Combine4 derives a store from four stores.
func Combine4[A, B, C, D, R any](a *Store[A], b *Store[B], c *Store[C], d *Store[D], fn func(A, B, C, D) R, opts ...Option) *Store[R] {
	o := combineOptions(opts, a, b, c, d)
	return deriveStore("combine", graph.Barrier, []storeRef{a, b, c, d}, func(read func(*graph.State) any) R {
		return fn(as[A](read(a.state)), as[B](read(b.state)), as[C](read(c.state)), as[D](read(d.state)))
	}, o, deepEqual)
}

// CombineAll derives a store holding the values of stores in order.
func CombineAll[T any](stores []*Store[T], opts ...Option) *Store[[]T] {
	refs := make([]storeRef, len(stores))
	units := make([]Unit, len(stores))
	for i, s := range stores {
		refs[i], units[i] = s, s
	}
	o := combineOptions(opts, units...)
	return deriveStore("combine", graph.Barrier, refs, func(read func(*graph.State) any) []T {
		out := make([]T, len(stores))
		for i, s := range stores {
			out[i] = as[T](read(s.state))
		}
		return out
	}, o, deepEqual)
}

// CombineMap derives a store holding the values of stores by key.
func CombineMap[T any](stores map[string]*Store[T], opts ...Option) *Store[map[string]T] {
	keys := slices.Sorted(maps.Keys(stores))
	refs := make([]storeRef, len(keys))
	units := make([]Unit, len(keys))
	for i, k := range keys {
		refs[i], units[i] = stores[k], stores[k]
	}
	o := combineOptions(opts, units...)
	return deriveStore("combine", graph.Barrier, refs, func(read func(*graph.State) any) map[string]T {
		out := make(map[string]T, len(keys))
		for _, k := range keys {
			out[k] = as[T](read(stores[k].state))
		}
		return out
	}, o, deepEqual)
}

func combineOptions(opts []Option, units ...Unit) *options {
	o := buildOptions(opts)
	if o.name != "" {
		return o
	}
	name := "combine("
	for i, u := range units {
		if i > 0 {
			name += ","
		}
		name += u.GetType()
	}
	o.name = name + ")"
	return o
}
