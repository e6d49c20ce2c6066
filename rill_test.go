package rill

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounterScenario(t *testing.T) {
	d := isolated(t)
	count := DomainStore(d, 0, WithSID("count"))
	inc := DomainEvent[tick](d, "inc")
	On(count, inc, func(n int, _ tick) int { return n + 1 })

	logged := &collector[int]{}
	logFx := DomainEffect(d, "logFx", func(_ context.Context, n int) (struct{}, error) {
		logged.add(n)
		return struct{}{}, nil
	})
	Sample(SampleConfig[int, tick, int]{Source: count, Clock: inc, Target: logFx})

	scope := forkIn(t, d)
	for i := 0; i < 3; i++ {
		settle(t, scope, inc, nil)
	}

	assert.Equal(t, 3, count.StateIn(scope))
	// Samplers read the value left by the reducers of the same tick.
	assert.Equal(t, []int{1, 2, 3}, logged.list())
	assert.Equal(t, 0, count.GetState(), "default scope untouched")
}

func TestGlitchFreedom(t *testing.T) {
	d := isolated(t)
	a := DomainStore(d, 1)
	inc := DomainEvent[tick](d, "inc")
	On(a, inc, func(n int, _ tick) int { return n + 1 })

	doubled := Map(a, func(n int) int { return n * 2 })
	sum := Combine2(a, doubled, func(x, y int) int { return x + y })

	sums := &collector[int]{}
	sum.Watch(sums.add)

	observed := &collector[int]{}
	inc.WatchContext(func(ctx context.Context, _ tick) {
		v, err := sum.Read(ctx)
		if err == nil {
			observed.add(v)
		}
	})

	scope := forkIn(t, d)
	settle(t, scope, inc, nil)

	assert.Equal(t, []int{3, 6}, sums.list(), "one recombination with both inputs updated")
	assert.Equal(t, []int{6}, observed.list(), "effects see the fully updated graph")
	assert.Equal(t, 6, sum.StateIn(scope))
}

func TestScopeIsolation(t *testing.T) {
	d := isolated(t)
	count := DomainStore(d, 0)
	add := DomainEvent[int](d, "add")
	On(count, add, func(n, by int) int { return n + by })
	total := Map(count, func(n int) int { return n * 10 })

	a := forkIn(t, d)
	b := forkIn(t, d)

	settle(t, a, add, 5)

	assert.Equal(t, 5, count.StateIn(a))
	assert.Equal(t, 50, total.StateIn(a))
	assert.Equal(t, 0, count.StateIn(b))
	assert.Equal(t, 0, total.StateIn(b))
	assert.Equal(t, 0, count.GetState())
}

func TestConcurrentForksAreIndependent(t *testing.T) {
	d := isolated(t)
	count := DomainStore(d, 0)
	add := DomainEvent[int](d, "add")
	On(count, add, func(n, by int) int { return n + by })

	release := make(chan struct{})
	slowFx := DomainEffect(d, "slow", func(ctx context.Context, _ int) (int, error) {
		<-release
		return 0, nil
	})

	a := forkIn(t, d)
	b := forkIn(t, d)

	require.NoError(t, slowFx.Call(1).Send(WithScope(context.Background(), a)))
	settle(t, b, add, 2)

	assert.Equal(t, 2, count.StateIn(b))
	assert.Equal(t, 1, a.Inflight())

	close(release)
	require.NoError(t, a.Wait(testContext(t)))
}

func TestIdempotentNoOpUpdate(t *testing.T) {
	d := isolated(t)
	flag := DomainStore(d, false)
	set := DomainEvent[bool](d, "set")
	On(flag, set, func(_ bool, v bool) bool { return v })

	var mapped, sampled, watched atomic.Int32
	label := Map(flag, func(v bool) string {
		mapped.Add(1)
		if v {
			return "on"
		}
		return "off"
	})
	Sample(SampleConfig[bool, bool, bool]{
		Source: flag,
		Fn: func(s bool, _ bool) bool {
			sampled.Add(1)
			return s
		},
	})
	label.Updates().Watch(func(string) { watched.Add(1) })
	mappedAtBuild := mapped.Load()

	scope := forkIn(t, d)
	settle(t, scope, set, false)

	assert.Equal(t, mappedAtBuild, mapped.Load(), "map must not run")
	assert.Equal(t, int32(0), sampled.Load())
	assert.Equal(t, int32(0), watched.Load())

	settle(t, scope, set, true)
	assert.Equal(t, int32(1), sampled.Load())
	assert.Equal(t, int32(1), watched.Load())
	assert.Equal(t, "on", label.StateIn(scope))
}

func TestSettlementTransitivity(t *testing.T) {
	d := isolated(t)
	start := DomainEvent[int](d, "start")

	var ySettled atomic.Bool
	fxX := DomainEffect(d, "x", func(_ context.Context, n int) (int, error) {
		time.Sleep(20 * time.Millisecond)
		return n + 1, nil
	})
	fxY := DomainEffect(d, "y", func(_ context.Context, n int) (int, error) {
		time.Sleep(30 * time.Millisecond)
		ySettled.Store(true)
		return n * 2, nil
	})
	Sample(SampleConfig[struct{}, int, int]{Clock: start, Target: fxX})
	Sample(SampleConfig[struct{}, int, int]{Clock: fxX.DoneData(), Target: fxY})

	results := &collector[int]{}
	fxY.DoneData().Watch(results.add)

	scope := forkIn(t, d)
	settle(t, scope, start, 1)

	assert.True(t, ySettled.Load(), "barrier resolved before the chained effect settled")
	assert.Equal(t, []int{4}, results.list())
	assert.Equal(t, 0, fxX.InFlight().StateIn(scope))
	assert.Equal(t, 0, fxY.InFlight().StateIn(scope))
}

func TestAllSettled_IgnoresUnrelatedEffects(t *testing.T) {
	d := isolated(t)
	release := make(chan struct{})
	slowFx := DomainEffect(d, "slow", func(ctx context.Context, _ tick) (tick, error) {
		<-release
		return tick{}, nil
	})
	quick := DomainEvent[tick](d, "quick")

	scope := forkIn(t, d)
	require.NoError(t, slowFx.Call(tick{}).Send(WithScope(context.Background(), scope)))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := AllSettled(context.Background(), quick, InScope(scope))
		assert.NoError(t, err)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("AllSettled waited for an unrelated effect")
	}
	assert.True(t, slowFx.Pending().StateIn(scope))

	close(release)
	require.NoError(t, scope.Wait(testContext(t)))
	assert.False(t, slowFx.Pending().StateIn(scope))
}

func TestReentrantDispatchFromWatcher(t *testing.T) {
	d := isolated(t)
	first := DomainEvent[int](d, "first")
	second := DomainEvent[int](d, "second")
	log := DomainStore(d, []string(nil))
	On(log, first, func(l []string, _ int) []string { return append(append([]string(nil), l...), "first") })
	On(log, second, func(l []string, _ int) []string { return append(append([]string(nil), l...), "second") })

	first.WatchContext(func(ctx context.Context, n int) {
		_ = second.Dispatch(ctx, n+1)
	})
	seen := &collector[int]{}
	second.Watch(seen.add)

	scope := forkIn(t, d)
	settle(t, scope, first, 1)

	assert.Equal(t, []string{"first", "second"}, log.StateIn(scope))
	assert.Equal(t, []int{2}, seen.list())
}

func TestRunawayTickIsAborted(t *testing.T) {
	d := isolated(t)
	ping := DomainEvent[int](d, "ping")
	Sample(SampleConfig[struct{}, int, int]{
		Clock:  ping,
		Fn:     func(_ struct{}, n int) int { return n + 1 },
		Target: ping,
	})

	scope := forkIn(t, d, WithMaxSteps(50))
	_, err := AllSettled(testContext(t), ping, InScope(scope), WithParams(0))

	require.Error(t, err)
	assert.True(t, IsQuotaError(err))
}

func TestDispatchWaitsBehindSettlingEffect(t *testing.T) {
	d := isolated(t)
	count := DomainStore(d, 0)
	inc := DomainEvent[tick](d, "inc")
	On(count, inc, func(n int, _ tick) int { return n + 1 })
	strict := DomainEvent[int](d, "strict", WithConfig(EventConfig{WatchFailCheck: Throw}))
	strict.Watch(func(int) { panic("watcher failed") })

	fx := DomainEffect(d, "fx", func(_ context.Context, n int) (int, error) { return n, nil })
	blocked := make(chan struct{})
	release := make(chan struct{})
	fx.Done().Watch(func(DoneResult[int, int]) {
		close(blocked)
		<-release
	})

	scope := forkIn(t, d)
	ctx := WithScope(testContext(t), scope)

	// The settle tick of fx parks its drainer in the watcher.
	sent := make(chan error, 1)
	go func() { sent <- fx.Call(1).Send(ctx) }()
	<-blocked

	type outcome struct {
		count int
		err   error
	}
	incDone := make(chan outcome, 1)
	go func() {
		err := inc.Dispatch(ctx, tick{})
		incDone <- outcome{count: count.StateIn(scope), err: err}
	}()
	strictDone := make(chan error, 1)
	go func() { strictDone <- strict.Dispatch(ctx, 1) }()

	select {
	case <-incDone:
		t.Fatal("Dispatch returned before its tick ran")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-sent)
	got := <-incDone
	assert.NoError(t, got.err)
	assert.Equal(t, 1, got.count)

	err := <-strictDone
	require.Error(t, err, "throw-mode diagnostics reach a caller that waited for the drainer")
	assert.True(t, IsStepError(err))

	require.NoError(t, scope.Wait(testContext(t)))
}

func TestSequentialDispatchSeesOwnTick(t *testing.T) {
	d := isolated(t)
	count := DomainStore(d, 0)
	inc := DomainEvent[tick](d, "inc")
	On(count, inc, func(n int, _ tick) int { return n + 1 })

	logFx := DomainEffect(d, "logFx", func(_ context.Context, n int) (int, error) {
		time.Sleep(20 * time.Microsecond)
		return n, nil
	})
	Sample(SampleConfig[int, int, int]{Source: count, Target: logFx})
	logFx.Done().Watch(func(DoneResult[int, int]) {
		time.Sleep(200 * time.Microsecond)
	})

	scope := forkIn(t, d)
	ctx := WithScope(testContext(t), scope)

	const n = 300
	for i := 1; i <= n; i++ {
		time.Sleep(60 * time.Microsecond)
		require.NoError(t, inc.Dispatch(ctx, tick{}))
		require.Equal(t, i, count.StateIn(scope), "after dispatch #%d", i)
	}
	require.NoError(t, scope.Wait(testContext(t)))
}
