package rill

import (
	"log/slog"
	"reflect"

	"github.com/roach88/rill/internal/graph"
)

// WarnMode controls diagnostic strictness.
type WarnMode = graph.WarnMode

const (
	// Off suppresses the diagnostic.
	Off = graph.Off
	// Warn logs the diagnostic through slog.
	Warn = graph.Warn
	// Throw returns the diagnostic from the Send or Dispatch that started
	// the tick.
	Throw = graph.Throw
)

// ParseWarnMode parses "off", "warn" or "throw".
func ParseWarnMode(s string) (WarnMode, error) {
	return graph.ParseWarnMode(s)
}

// EventConfig controls diagnostics for a unit. It never changes
// propagation.
type EventConfig struct {
	// Unused applies when the unit is dispatched with nothing linked to it.
	Unused WarnMode

	// WatchFailCheck applies when a watcher of the unit panics.
	WatchFailCheck WarnMode
}

// DefaultConfig is used by units created outside any domain.
var DefaultConfig = EventConfig{
	Unused:         Off,
	WatchFailCheck: Warn,
}

// Option configures a unit at construction.
type Option func(*options)

type options struct {
	name          string
	sid           string
	domain        *Domain
	config        *EventConfig
	equal         func(a, b any) bool
	allowOverride bool
}

func buildOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithName names a store. Stores default to their sid, or "store".
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithSID marks a store as serializable under sid.
func WithSID(sid string) Option {
	return func(o *options) {
		o.sid = sid
	}
}

// InDomain creates the unit in d. The unit uses d's graph and default
// configuration, and d's OnCreate hooks see it.
func InDomain(d *Domain) Option {
	return func(o *options) {
		o.domain = d
	}
}

// WithConfig overrides the diagnostic configuration of the unit.
func WithConfig(cfg EventConfig) Option {
	return func(o *options) {
		o.config = &cfg
	}
}

// WithEquality sets the comparison a store uses to skip no-op updates.
func WithEquality[T any](eq func(a, b T) bool) Option {
	return func(o *options) {
		o.equal = func(a, b any) bool {
			return eq(as[T](a), as[T](b))
		}
	}
}

// AllowOverride lets On replace an existing reducer for the same source.
func AllowOverride() Option {
	return func(o *options) {
		o.allowOverride = true
	}
}

// deepEqual is the default comparison of combined stores, whose values
// are often slices or maps.
func deepEqual(a, b any) bool {
	return reflect.DeepEqual(a, b)
}

// logger returns the package logger used outside any scope.
func logger() *slog.Logger {
	return slog.Default()
}
