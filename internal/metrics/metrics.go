// Package metrics exports kernel activity as Prometheus metrics.
//
// A Metrics value implements engine.Hooks; install it on a scope with
// rill.WithHooks (or engine.WithHooks) and expose the registry over HTTP
// with promhttp.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roach88/rill/internal/engine"
	"github.com/roach88/rill/internal/graph"
)

// Config configures the metric set.
type Config struct {
	// Namespace is the metrics namespace (default: "rill").
	Namespace string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for effect duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Option configures the metric set.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the effect duration buckets.
func WithBuckets(buckets []float64) Option {
	return func(c *Config) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

func defaultConfig() Config {
	return Config{
		Namespace: "rill",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics records ticks, steps and effects.
//
// Metrics:
//   - rill_ticks_total: ticks run
//   - rill_steps_total{priority}: steps run, by priority band
//   - rill_step_errors_total{node}: failed steps, by node name
//   - rill_effects_inflight: effect bodies currently running
//   - rill_effect_duration_seconds{effect,status}: effect body duration
//   - rill_quota_exceeded_total: ticks aborted by the step quota
type Metrics struct {
	engine.BaseHooks

	ticks          prometheus.Counter
	steps          *prometheus.CounterVec
	stepErrors     *prometheus.CounterVec
	effectsRunning prometheus.Gauge
	effectDuration *prometheus.HistogramVec
	quotaExceeded  prometheus.Counter
}

var _ engine.Hooks = (*Metrics)(nil)

// New registers the metric set. It panics if the metrics are already
// registered with the same registry, like promauto.
func New(opts ...Option) *Metrics {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	factory := promauto.With(cfg.Registry)

	return &Metrics{
		ticks: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "ticks_total",
			Help:        "Total number of ticks run",
			ConstLabels: cfg.ConstLabels,
		}),

		steps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "steps_total",
			Help:        "Total number of steps run by priority band",
			ConstLabels: cfg.ConstLabels,
		}, []string{"priority"}),

		stepErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "step_errors_total",
			Help:        "Total number of failed steps by node",
			ConstLabels: cfg.ConstLabels,
		}, []string{"node"}),

		effectsRunning: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   cfg.Namespace,
			Name:        "effects_inflight",
			Help:        "Number of effect bodies currently running",
			ConstLabels: cfg.ConstLabels,
		}),

		effectDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   cfg.Namespace,
			Name:        "effect_duration_seconds",
			Help:        "Effect body duration in seconds",
			ConstLabels: cfg.ConstLabels,
			Buckets:     cfg.Buckets,
		}, []string{"effect", "status"}),

		quotaExceeded: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "quota_exceeded_total",
			Help:        "Total number of ticks aborted by the step quota",
			ConstLabels: cfg.ConstLabels,
		}),
	}
}

// OnStep implements engine.Hooks.
func (m *Metrics) OnStep(_ engine.TickInfo, node *graph.Node, _ any) {
	m.steps.WithLabelValues(node.Priority.String()).Inc()
}

// OnStepError implements engine.Hooks.
func (m *Metrics) OnStepError(_ engine.TickInfo, node *graph.Node, _ error) {
	m.stepErrors.WithLabelValues(node.Name).Inc()
}

// OnEffectStart implements engine.Hooks.
func (m *Metrics) OnEffectStart(engine.TickInfo, string) {
	m.effectsRunning.Inc()
}

// OnEffectSettle implements engine.Hooks.
func (m *Metrics) OnEffectSettle(_ string, effect string, err error, elapsed time.Duration) {
	m.effectsRunning.Dec()
	status := "done"
	if err != nil {
		status = "fail"
	}
	m.effectDuration.WithLabelValues(effect, status).Observe(elapsed.Seconds())
}

// OnTickEnd implements engine.Hooks.
func (m *Metrics) OnTickEnd(_ engine.TickInfo, stats engine.TickStats) {
	m.ticks.Inc()
	if stats.Aborted {
		m.quotaExceeded.Inc()
	}
}
