package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rill/internal/graph"
)

func TestScope_IDFromGenerator(t *testing.T) {
	gen := NewSequenceGenerator("fork")
	a := NewScope(graph.New(), WithIDGenerator(gen))
	b := NewScope(graph.New(), WithIDGenerator(gen))

	assert.Equal(t, "fork-1", a.ID())
	assert.Equal(t, "fork-2", b.ID())
}

func TestScope_GetSeedsDefault(t *testing.T) {
	s := newTestScope(t, graph.New())
	st := &graph.State{Name: "count", Default: 5}

	assert.Equal(t, 5, s.Get(st))
	assert.False(t, s.Written(st))
}

func TestScope_SeedMarksWritten(t *testing.T) {
	s := newTestScope(t, graph.New())
	st := &graph.State{Name: "count", Default: 0}

	s.Seed(st, 3)

	assert.Equal(t, 3, s.Get(st))
	assert.True(t, s.Written(st))
	assert.Equal(t, []*graph.State{st}, s.WrittenStates())
}

func TestScope_StatesAreIsolated(t *testing.T) {
	g := graph.New()
	st := &graph.State{Name: "count", Default: 0}

	a := newTestScope(t, g)
	b := newTestScope(t, g)
	a.Seed(st, 10)

	assert.Equal(t, 10, a.Get(st))
	assert.Equal(t, 0, b.Get(st))
}

func TestScope_WriteReportsChange(t *testing.T) {
	s := newTestScope(t, graph.New())
	st := &graph.State{Name: "count", Default: 0}

	assert.False(t, s.write(st, 0), "same value is not a change")
	assert.True(t, s.write(st, 1))
	assert.False(t, s.write(st, 1))
	assert.True(t, s.Written(st))
}

func TestScope_WriteUsesCustomEquality(t *testing.T) {
	s := newTestScope(t, graph.New())
	st := &graph.State{
		Name:    "list",
		Default: []int{},
		Equal: func(a, b any) bool {
			return len(a.([]int)) == len(b.([]int))
		},
	}

	assert.False(t, s.write(st, []int{}))
	assert.True(t, s.write(st, []int{1}))
	assert.False(t, s.write(st, []int{2}))
}

func TestScope_DerivedStateBaselineIsOldValue(t *testing.T) {
	g := graph.New()
	base := &graph.State{Name: "base", Default: 1}
	derived := &graph.State{
		Name:    "derived",
		Default: 10,
		Derive:  func(read func(*graph.State) any) any { return read(base).(int) * 10 },
	}
	g.Depend(base, derived)

	s := newTestScope(t, g)
	require.True(t, s.write(base, 2))

	// The derived value was materialized from base=1 before the write.
	assert.False(t, s.write(derived, 10), "derived baseline should be 10")
	assert.True(t, s.write(derived, 20))
	assert.False(t, s.Written(derived), "derived states are never marked written")
}

func TestScope_DerivedStateComputesFromSeed(t *testing.T) {
	g := graph.New()
	base := &graph.State{Name: "base", Default: 1}
	derived := &graph.State{
		Name:    "derived",
		Default: 10,
		Derive:  func(read func(*graph.State) any) any { return read(base).(int) * 10 },
	}
	g.Depend(base, derived)

	s := newTestScope(t, g)
	assert.Equal(t, 10, s.Get(derived))

	s.Seed(base, 7)
	assert.Equal(t, 70, s.Get(derived), "seed drops the cached derived value")
}

func TestScope_DerivePanicFallsBackToDefault(t *testing.T) {
	s := newTestScope(t, graph.New())
	derived := &graph.State{
		Name:    "derived",
		Default: "fallback",
		Derive:  func(func(*graph.State) any) any { panic("nope") },
	}

	assert.Equal(t, "fallback", s.Get(derived))
}

func TestScope_SeedSID(t *testing.T) {
	g := graph.New()
	st := &graph.State{Name: "count", SID: "count", Default: 0}
	g.RegisterSID(st)

	s := newTestScope(t, g)
	s.SeedSID("count", 9)
	s.SeedSID("unknown", "kept")

	assert.Equal(t, 9, s.Get(st))
	assert.True(t, s.Written(st))
	assert.Equal(t, map[string]any{"count": 9, "unknown": "kept"}, s.SIDSeeds())
}

func TestScope_SeedSIDCoerce(t *testing.T) {
	g := graph.New()
	st := &graph.State{
		Name:    "count",
		SID:     "count",
		Default: 0,
		Coerce: func(v any) (any, error) {
			f, ok := v.(float64)
			if !ok {
				return nil, errors.New("not a number")
			}
			return int(f), nil
		},
	}
	g.RegisterSID(st)

	good := newTestScope(t, g)
	good.SeedSID("count", float64(4))
	assert.Equal(t, 4, good.Get(st))

	bad := newTestScope(t, g)
	bad.SeedSID("count", "four")
	assert.Equal(t, 0, bad.Get(st), "rejected snapshot value falls back to default")
}

func TestScope_Overrides(t *testing.T) {
	s := newTestScope(t, graph.New())
	key := new(int)

	_, ok := s.Override(key)
	assert.False(t, ok)

	s.SetOverride(key, "handler")
	v, ok := s.Override(key)
	require.True(t, ok)
	assert.Equal(t, "handler", v)
}

func TestScope_WaitWhenIdle(t *testing.T) {
	s := newTestScope(t, graph.New())
	assert.NoError(t, s.Wait(testContext(t)))
}

func TestScope_WaitHonorsContext(t *testing.T) {
	g := graph.New()
	settle := g.Add(&graph.Node{Name: "settle", Step: func(_ graph.Runtime, p any) (any, bool) { return p, true }})
	release := make(chan struct{})
	runner := g.Add(&graph.Node{
		Name: "runner",
		Step: func(rt graph.Runtime, p any) (any, bool) {
			rt.Launch("slow", settle, func(context.Context) (any, error) {
				<-release
				return nil, nil
			}, nil)
			return p, true
		},
	})

	s := newTestScope(t, g)
	require.NoError(t, s.Dispatch(context.Background(), runner, nil))
	assert.Equal(t, 1, s.Inflight())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Wait(ctx), context.DeadlineExceeded)

	close(release)
	require.NoError(t, s.Wait(testContext(t)))
	assert.Equal(t, 0, s.Inflight())
}

func TestScopeFrom(t *testing.T) {
	_, ok := ScopeFrom(context.Background())
	assert.False(t, ok)

	s := newTestScope(t, graph.New())
	got, ok := ScopeFrom(WithScope(context.Background(), s))
	require.True(t, ok)
	assert.Same(t, s, got)
}
