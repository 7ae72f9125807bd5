// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "stockledger"

// Metrics is a private registry plus the collectors the services update.
type Metrics struct {
	Registry *prometheus.Registry

	DeltasApplied   prometheus.Counter
	DeltasRejected  prometheus.Counter
	PendingWindows  prometheus.Gauge
	Flushes         *prometheus.CounterVec
	FlushDuration   prometheus.Histogram
	AuditWrites     *prometheus.CounterVec
	AuditRetries    prometheus.Counter
	Undos           *prometheus.CounterVec
	Moves           *prometheus.CounterVec
	ListTransitions *prometheus.CounterVec
	HTTPRequests    *prometheus.CounterVec
}

// New creates a registry with process and Go runtime collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		DeltasApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ledger", Name: "deltas_applied_total",
			Help: "Quantity deltas accepted into a pending window.",
		}),
		DeltasRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ledger", Name: "deltas_rejected_total",
			Help: "Quantity deltas rejected because stock would go negative.",
		}),
		PendingWindows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "ledger", Name: "pending_windows",
			Help: "Slots with uncommitted deltas.",
		}),
		Flushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ledger", Name: "flushes_total",
			Help: "Committed pending windows by result.",
		}, []string{"result"}),
		FlushDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "ledger", Name: "flush_duration_seconds",
			Help:    "Time spent committing one pending window.",
			Buckets: prometheus.DefBuckets,
		}),
		AuditWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "audit", Name: "writes_total",
			Help: "Audit log writes by outcome (insert, merge, cancel, skip).",
		}, []string{"op"}),
		AuditRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "audit", Name: "retries_total",
			Help: "Audit write attempts repeated after a failure.",
		}),
		Undos: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "audit", Name: "undos_total",
			Help: "Undo requests by result.",
		}, []string{"result"}),
		Moves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "movement", Name: "moves_total",
			Help: "Stock moves by result.",
		}, []string{"result"}),
		ListTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "picking", Name: "transitions_total",
			Help: "Picking list status changes by target status.",
		}, []string{"to"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_total",
			Help: "HTTP requests by method and status code.",
		}, []string{"method", "code"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.DeltasApplied, m.DeltasRejected, m.PendingWindows,
		m.Flushes, m.FlushDuration,
		m.AuditWrites, m.AuditRetries, m.Undos,
		m.Moves, m.ListTransitions, m.HTTPRequests,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// Result returns "ok" for a nil error and "error" otherwise.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
