// Package observability exposes Prometheus metrics for plan execution and
// consolidation.
package observability

import (
	"strconv"
	"time"

	"github.com/animus-labs/animus-migrate/internal/consolidate"
	"github.com/animus-labs/animus-migrate/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "migrator"

type Metrics struct {
	// ActionsTotal counts executed actions. Labels: kind, outcome.
	ActionsTotal *prometheus.CounterVec
	// GenerationSeconds measures content generation calls. Labels: status.
	GenerationSeconds *prometheus.HistogramVec
	// ConsolidationsTotal counts successful consolidation passes.
	ConsolidationsTotal prometheus.Counter
	// ConsolidatedUnitsTotal counts folded units. Labels: result.
	ConsolidatedUnitsTotal *prometheus.CounterVec
	// HTTPRequestsTotal counts served requests. Labels: method, route, code.
	HTTPRequestsTotal *prometheus.CounterVec
	// HTTPRequestSeconds measures request latency. Labels: route.
	HTTPRequestSeconds *prometheus.HistogramVec
}

// NewMetrics registers the metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ActionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "executor",
				Name:      "actions_total",
				Help:      "Plan actions executed by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		GenerationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "executor",
				Name:      "generation_seconds",
				Help:      "Content generation latency in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"status"},
		),
		ConsolidationsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "consolidator",
				Name:      "runs_total",
				Help:      "Successful consolidation passes",
			},
		),
		ConsolidatedUnitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "consolidator",
				Name:      "units_total",
				Help:      "Patch units folded by result",
			},
			[]string{"result"},
		),
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "HTTP requests by method, route and status code",
			},
			[]string{"method", "route", "code"},
		),
		HTTPRequestSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "http",
				Name:      "request_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
	}
}

func (m *Metrics) ObserveAction(kind domain.ActionKind, outcome string) {
	m.ActionsTotal.WithLabelValues(string(kind), outcome).Inc()
}

func (m *Metrics) ObserveGeneration(d time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.GenerationSeconds.WithLabelValues(status).Observe(d.Seconds())
}

// ObserveRequest matches httpserver.Observer.
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestSeconds.WithLabelValues(route).Observe(d.Seconds())
}

func (m *Metrics) ObserveConsolidation(stats consolidate.Stats) {
	m.ConsolidationsTotal.Inc()
	for result, n := range map[string]int{
		"edited":    stats.Edited,
		"added":     stats.Added,
		"replaced":  stats.Replaced,
		"deleted":   stats.Deleted,
		"skipped":   stats.Skipped,
		"not_found": stats.NotFound,
	} {
		m.ConsolidatedUnitsTotal.WithLabelValues(result).Add(float64(n))
	}
}
