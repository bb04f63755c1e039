// Package observability exposes simulation activity as Prometheus
// metrics, fed by the engine's lifecycle hooks.
package observability

import (
	"context"
	"net/http"

	"github.com/aretw0/espalier/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the simulation collectors.
type Metrics struct {
	registry *prometheus.Registry

	turns           *prometheus.CounterVec
	forks           prometheus.Counter
	decisionSeconds prometheus.Histogram
}

// NewMetrics creates and registers the collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "espalier",
			Name:      "turns_total",
			Help:      "Turns appended to any run, by decision tag and moment kind.",
		}, []string{"decision", "kind"}),
		forks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "espalier",
			Name:      "forks_total",
			Help:      "Branches forked across all runs.",
		}),
		decisionSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "espalier",
			Name:      "decision_duration_seconds",
			Help:      "Decision provider round-trip latency.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	m.registry.MustRegister(m.turns, m.forks, m.decisionSeconds)
	return m
}

// Hooks returns lifecycle hooks that feed the collectors. Pass them to
// the engine via WithLifecycleHooks.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTurnAppended: func(_ context.Context, e *domain.TurnEvent) {
			m.turns.WithLabelValues(string(e.Decision), string(e.Kind)).Inc()
		},
		OnBranchForked: func(_ context.Context, _ *domain.ForkEvent) {
			m.forks.Inc()
		},
		OnDecision: func(_ context.Context, e *domain.DecisionEvent) {
			m.decisionSeconds.Observe(e.Duration.Seconds())
		},
	}
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for callers that register
// additional collectors alongside the simulation ones.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
