package metrics

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rill"
)

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func fork(t *testing.T, d *rill.Domain, m *Metrics, opts ...rill.ForkOption) *rill.Scope {
	t.Helper()
	base := []rill.ForkOption{
		rill.ForDomain(d),
		rill.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		rill.WithHooks(m),
	}
	s, err := rill.Fork(append(base, opts...)...)
	require.NoError(t, err)
	return s
}

func TestMetrics_Effects(t *testing.T) {
	m := New(WithRegistry(prometheus.NewRegistry()))
	d := rill.NewDomain("fx", rill.Isolated())
	fx := rill.DomainEffect(d, "div", func(_ context.Context, n int) (int, error) {
		if n == 0 {
			return 0, errors.New("division by zero")
		}
		return 10 / n, nil
	})
	s := fork(t, d, m)

	for _, n := range []int{2, 0} {
		_, err := rill.AllSettled(testContext(t), fx, rill.InScope(s), rill.WithParams(n))
		require.NoError(t, err)
	}

	assert.Equal(t, 0.0, testutil.ToFloat64(m.effectsRunning))
	assert.Equal(t, 2, testutil.CollectAndCount(m.effectDuration))
	assert.Equal(t, 1, testutil.CollectAndCount(m.effectDuration.WithLabelValues("fx/div", "done").(prometheus.Collector)))
	// Each call runs the dispatch tick and the settle tick.
	assert.GreaterOrEqual(t, testutil.ToFloat64(m.ticks), 4.0)
	assert.Positive(t, testutil.ToFloat64(m.steps.WithLabelValues("child")))
	assert.Zero(t, testutil.ToFloat64(m.quotaExceeded))
}

func TestMetrics_StepErrors(t *testing.T) {
	m := New(WithRegistry(prometheus.NewRegistry()))
	d := rill.NewDomain("errs", rill.Isolated())
	inc := rill.DomainEvent[int](d, "inc")
	count := rill.DomainStore(d, 0, rill.WithName("count"))
	rill.On(count, inc, func(int, int) int { panic("bad reducer") })
	s := fork(t, d, m)

	_, err := rill.AllSettled(testContext(t), inc, rill.InScope(s), rill.WithParams(1))
	require.NoError(t, err)

	assert.Equal(t, 1, testutil.CollectAndCount(m.stepErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ticks))
	assert.Equal(t, 0, rill.Get(s, count))
}

func TestMetrics_QuotaExceeded(t *testing.T) {
	m := New(WithRegistry(prometheus.NewRegistry()))
	d := rill.NewDomain("quota", rill.Isolated())
	inc := rill.DomainEvent[int](d, "inc")
	a := rill.DomainStore(d, 0, rill.WithName("a"))
	b := rill.DomainStore(d, 0, rill.WithName("b"))
	rill.On(a, inc, func(s, n int) int { return s + n })
	rill.On(b, inc, func(s, n int) int { return s + n })
	s := fork(t, d, m, rill.WithMaxSteps(1))

	_, err := rill.AllSettled(testContext(t), inc, rill.InScope(s), rill.WithParams(1))
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.quotaExceeded))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ticks))
}

func TestNew_Namespace(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(WithRegistry(reg), WithNamespace("app"), WithConstLabels(prometheus.Labels{"program": "shop"}))
	m.ticks.Inc()

	families, err := reg.Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "app_ticks_total")

	assert.Panics(t, func() { New(WithRegistry(reg), WithNamespace("app")) })
}
