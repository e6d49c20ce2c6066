package rill

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFork_Seeds(t *testing.T) {
	d := isolated(t)
	count := DomainStore(d, 0, WithSID("count"))
	label := DomainStore(d, "none", WithName("label"))
	doubled := Map(count, func(n int) int { return n * 2 })

	scope := forkIn(t, d,
		WithSnapshot(Snapshot{"count": 3.0}),
		WithValues(map[Unit]any{label: "set"}),
	)

	assert.Equal(t, 3, count.StateIn(scope))
	assert.Equal(t, 6, doubled.StateIn(scope), "derived stores recompute from seeds")
	assert.Equal(t, "set", Get(scope, label))
	assert.Equal(t, 0, count.GetState())
}

func TestFork_ValueBeatsSnapshot(t *testing.T) {
	d := isolated(t)
	count := DomainStore(d, 0, WithSID("count"))

	scope := forkIn(t, d,
		WithValue(count, 9),
		WithSnapshot(Snapshot{"count": 1}),
	)

	assert.Equal(t, 9, count.StateIn(scope))
}

func TestFork_Errors(t *testing.T) {
	d := isolated(t)
	count := DomainStore(d, 0)
	doubled := Map(count, func(n int) int { return n * 2 })
	ping := DomainEvent[tick](d, "ping")
	fx := DomainEffect(d, "fx", func(context.Context, int) (int, error) { return 0, nil })

	other := isolated(t)
	foreign := DomainStore(other, 0)
	foreignFx := DomainEffect(other, "fx", func(context.Context, int) (int, error) { return 0, nil })

	tests := []struct {
		name    string
		opt     ForkOption
		message string
		foreign bool
	}{
		{name: "derived store", opt: WithValue(doubled, 2), message: "derived stores cannot be seeded"},
		{name: "wrong type", opt: WithValues(map[Unit]any{count: "x"}), message: "expects int, got string"},
		{name: "not a store", opt: WithValues(map[Unit]any{ping: 1}), message: "only stores can be seeded"},
		{name: "nil store", opt: WithValue[int](nil, 1), message: "nil store"},
		{name: "foreign store", opt: WithValue(foreign, 1), foreign: true},
		{name: "foreign handler", opt: WithHandler(foreignFx, nil), foreign: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Fork(ForDomain(d), tt.opt)
			require.Error(t, err)
			if tt.foreign {
				assert.ErrorIs(t, err, ErrForeignUnit)
				return
			}
			var ce *ConfigError
			require.ErrorAs(t, err, &ce)
			assert.Contains(t, ce.Error(), tt.message)
		})
	}

	_, err := Fork(ForDomain(d), WithHandler(fx, nil))
	assert.NoError(t, err)
}

func TestMustFork(t *testing.T) {
	d := isolated(t)
	count := DomainStore(d, 0)
	doubled := Map(count, func(n int) int { return n * 2 })

	assert.Panics(t, func() {
		MustFork(ForDomain(d), WithValue(doubled, 1))
	})
	assert.NotPanics(t, func() {
		MustFork(ForDomain(d), WithValue(count, 1))
	})
}

func TestScope_GetState(t *testing.T) {
	d := isolated(t)
	count := DomainStore(d, 4)
	ping := DomainEvent[tick](d, "ping")
	scope := forkIn(t, d)

	assert.Equal(t, 4, scope.GetState(count))
	assert.Nil(t, scope.GetState(ping))
	assert.Equal(t, "scope-1", scope.ID())
	assert.Zero(t, scope.Inflight())
}

func TestScope_ContextHelpers(t *testing.T) {
	_, ok := ScopeFrom(context.Background())
	assert.False(t, ok)
	_, err := RequireScope(context.Background())
	assert.ErrorIs(t, err, ErrNoScope)

	d := isolated(t)
	ping := DomainEvent[tick](d, "ping")
	scope := forkIn(t, d)

	var seen *Scope
	ping.WatchContext(func(ctx context.Context, _ tick) {
		seen, _ = ScopeFrom(ctx)
	})
	settle(t, scope, ping, nil)

	assert.Same(t, scope, seen, "watchers see the scope they run in")
	got, err := RequireScope(WithScope(context.Background(), scope))
	require.NoError(t, err)
	assert.Same(t, scope, got)
}

func TestScope_DefaultIsShared(t *testing.T) {
	assert.Same(t, Default(), Default())

	d := isolated(t)
	count := DomainStore(d, 0)
	set := DomainEvent[int](d, "set")
	On(count, set, func(_ int, v int) int { return v })

	require.NoError(t, set.Dispatch(context.Background(), 5))
	assert.Equal(t, 5, count.GetState())
	assert.NotSame(t, Default(), defaultScope(d.graph), "isolated domains have their own default scope")
}

func TestAllSettled_Errors(t *testing.T) {
	d := isolated(t)
	ping := DomainEvent[tick](d, "ping")
	doubled := Map(DomainStore(d, 1), func(n int) int { return n * 2 })

	_, err := AllSettled(context.Background(), ping)
	assert.ErrorIs(t, err, ErrNoScope)

	other := forkIn(t, isolated(t))
	_, err = AllSettled(context.Background(), ping, InScope(other))
	assert.ErrorIs(t, err, ErrForeignUnit)

	scope := forkIn(t, d)
	_, err = AllSettled(testContext(t), ping, InScope(scope), WithParams("wrong"))
	assert.Error(t, err)

	_, err = AllSettled(testContext(t), doubled, InScope(scope), WithParams(3))
	var ce *ConfigError
	assert.ErrorAs(t, err, &ce)

	_, err = AllSettled(testContext(t), d, InScope(scope))
	assert.ErrorAs(t, err, &ce)
}

func TestAllSettled_UsesScopeFromContext(t *testing.T) {
	d := isolated(t)
	count := DomainStore(d, 0)
	scope := forkIn(t, d)

	res, err := AllSettled(WithScope(testContext(t), scope), count, WithParams(8))

	require.NoError(t, err)
	assert.Equal(t, Settled{Status: StatusDone, Value: 8}, res)
	assert.Equal(t, 8, count.StateIn(scope))
}

func TestAllSettled_ReturnsThrowDiagnostics(t *testing.T) {
	d := isolated(t, WithDomainConfig(EventConfig{Unused: Throw}))
	lonely := DomainEvent[tick](d, "lonely")
	scope := forkIn(t, d)

	res, err := AllSettled(testContext(t), lonely, InScope(scope))

	assert.Equal(t, StatusDone, res.Status)
	assert.True(t, IsUnusedError(err))
}

func TestFork_ResumeKeepsIDAndNumbering(t *testing.T) {
	d := isolated(t)
	inc := DomainEvent[tick](d, "inc")
	inc.Watch(func(tick) {})

	scope := forkIn(t, d, Resume("earlier", 7))
	assert.Equal(t, "earlier", scope.ID())
	assert.Equal(t, int64(7), scope.TickSeq())

	settle(t, scope, inc, nil)
	assert.Equal(t, int64(8), scope.TickSeq())
}
