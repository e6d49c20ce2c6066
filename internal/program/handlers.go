package program

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/rill"
	"github.com/roach88/rill/internal/ir"
)

// ErrNotFound is returned by lookup handlers for keys missing from their
// table.
var ErrNotFound = errors.New("not found")

// HandlerError is the failure of a "fail" handler.
type HandlerError struct {
	Effect  string
	Message string
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("%s: %s", e.Effect, e.Message)
}

// handlerFor builds the handler declared by spec.
func handlerFor(spec ir.EffectSpec) (rill.Handler[any, any], error) {
	var h rill.Handler[any, any]
	switch spec.Handler {
	case "echo":
		h = func(_ context.Context, params any) (any, error) {
			return params, nil
		}
	case "fail":
		msg := spec.Message
		h = func(_ context.Context, params any) (any, error) {
			if msg == "" {
				return nil, &HandlerError{Effect: spec.Name, Message: fmt.Sprintf("failed with %s", key(params))}
			}
			return nil, &HandlerError{Effect: spec.Name, Message: msg}
		}
	case "lookup":
		table := make(map[string]any, len(spec.Table))
		for k, v := range spec.Table {
			pv, err := plain(v)
			if err != nil {
				return nil, fmt.Errorf("effect %s: table entry %q: %w", spec.Name, k, err)
			}
			table[k] = pv
		}
		h = func(_ context.Context, params any) (any, error) {
			k := key(params)
			v, ok := table[k]
			if !ok {
				return nil, fmt.Errorf("%s: lookup %q: %w", spec.Name, k, ErrNotFound)
			}
			return v, nil
		}
	default:
		return nil, fmt.Errorf("effect %s: unsupported handler %q", spec.Name, spec.Handler)
	}

	if spec.DelayMS > 0 {
		h = delayed(time.Duration(spec.DelayMS)*time.Millisecond, h)
	}
	return h, nil
}

// delayed runs h after d, or fails with the context error if ctx ends
// first.
func delayed(d time.Duration, h rill.Handler[any, any]) rill.Handler[any, any] {
	return func(ctx context.Context, params any) (any, error) {
		timer := time.NewTimer(d)
		defer timer.Stop()

		select {
		case <-timer.C:
			return h(ctx, params)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
