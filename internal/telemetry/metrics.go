// Package telemetry wires the runner's observable state (coverage,
// property decisions, dispatched actions, CDP latency) to Prometheus,
// an optional zstd-compressed JSONL trace writer, an optional
// Redis-backed cross-run progress sink, and an optional ClickHouse
// run-analytics sink — grounded on the teacher's
// internal/render/metrics Prometheus collector, internal/edge/cache's
// compression layer, and internal/common/redis.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"
)

// Metrics collects the Prometheus series the runner emits, following
// the teacher's PrometheusMetrics shape in internal/render/metrics:
// a struct of pre-registered series, setter methods, and a fasthttp
// handler adapted from promhttp.
type Metrics struct {
	coverageEdges       prometheus.Gauge
	propertiesDecided   *prometheus.CounterVec
	actionsDispatched   *prometheus.CounterVec
	cdpCommandLatency   *prometheus.HistogramVec
	actionFailuresTotal prometheus.Counter

	logger      *zap.Logger
	httpHandler func(*fasthttp.RequestCtx)
}

// New builds a Metrics collector registered against the default
// Prometheus registerer, namespaced per config.
func New(namespace string, logger *zap.Logger) *Metrics {
	return NewWithRegistry(namespace, prometheus.DefaultRegisterer, logger)
}

// NewWithRegistry builds a Metrics collector against a caller-supplied
// registry, so tests can use a fresh prometheus.NewRegistry().
func NewWithRegistry(namespace string, registerer prometheus.Registerer, logger *zap.Logger) *Metrics {
	m := &Metrics{logger: logger}

	m.coverageEdges = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "runner",
		Name:      "coverage_edges",
		Help:      "Number of distinct edge-map indices ever observed with a non-zero bucket",
	})

	m.propertiesDecided = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "runner",
		Name:      "properties_decided_total",
		Help:      "Total properties that reached a definite outcome, by outcome",
	}, []string{"outcome"}) // outcome: true, false

	m.actionsDispatched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "runner",
		Name:      "actions_dispatched_total",
		Help:      "Total actions dispatched, by kind",
	}, []string{"kind"})

	m.cdpCommandLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "runner",
		Name:      "cdp_command_duration_seconds",
		Help:      "CDP command round-trip latency by command name",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	}, []string{"command"})

	m.actionFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "runner",
		Name:      "action_failures_total",
		Help:      "Total action-dispatch failures folded back into the loop",
	})

	registerer.MustRegister(
		m.coverageEdges,
		m.propertiesDecided,
		m.actionsDispatched,
		m.cdpCommandLatency,
		m.actionFailuresTotal,
	)

	gatherer, ok := registerer.(prometheus.Gatherer)
	if !ok {
		gatherer = prometheus.DefaultGatherer
	}
	m.httpHandler = fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return m
}

// SetCoverageEdges updates the coverage gauge.
func (m *Metrics) SetCoverageEdges(n int) { m.coverageEdges.Set(float64(n)) }

// RecordPropertyDecided records a property reaching True or False.
func (m *Metrics) RecordPropertyDecided(outcome string) {
	m.propertiesDecided.WithLabelValues(outcome).Inc()
}

// RecordActionDispatched records one dispatched action by kind.
func (m *Metrics) RecordActionDispatched(kind string) {
	m.actionsDispatched.WithLabelValues(kind).Inc()
}

// ObserveCDPCommandLatency records one CDP command's round-trip time.
func (m *Metrics) ObserveCDPCommandLatency(command string, seconds float64) {
	m.cdpCommandLatency.WithLabelValues(command).Observe(seconds)
}

// RecordActionFailure records an action-dispatch failure folded back
// into the loop (spec.md §7 "Action failure").
func (m *Metrics) RecordActionFailure() { m.actionFailuresTotal.Inc() }

// ServeHTTP serves the Prometheus exposition format.
func (m *Metrics) ServeHTTP(ctx *fasthttp.RequestCtx) { m.httpHandler(ctx) }
