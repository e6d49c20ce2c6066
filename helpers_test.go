package rill

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// isolated returns a domain with its own graph so sids never collide
// across tests.
func isolated(t *testing.T, opts ...DomainOption) *Domain {
	t.Helper()
	return NewDomain(t.Name(), append([]DomainOption{Isolated()}, opts...)...)
}

func forkIn(t *testing.T, d *Domain, opts ...ForkOption) *Scope {
	t.Helper()
	base := []ForkOption{
		ForDomain(d),
		WithLogger(discardLogger()),
		WithScopeIDs(SequenceIDs("scope")),
	}
	s, err := Fork(append(base, opts...)...)
	require.NoError(t, err)
	return s
}

func settle(t *testing.T, s *Scope, u Unit, params any) Settled {
	t.Helper()
	res, err := AllSettled(testContext(t), u, InScope(s), WithParams(params))
	require.NoError(t, err)
	return res
}

// collector records values from watchers running on any goroutine.
type collector[T any] struct {
	mu   sync.Mutex
	vals []T
}

func (c *collector[T]) add(v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals = append(c.vals, v)
}

func (c *collector[T]) list() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]T(nil), c.vals...)
}

type tick struct{}
