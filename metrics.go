package keel

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics wraps the Prometheus collectors for the composition engine.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	servicesConstructed *prometheus.CounterVec
	serviceFailures     *prometheus.CounterVec
	eventDispatches     *prometheus.CounterVec
	eventLatency        *prometheus.HistogramVec
	jobRuns             *prometheus.CounterVec
	jobLatency          *prometheus.HistogramVec
	commandExits        *prometheus.CounterVec
}

// NewMetrics creates collectors registered on a private registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "keel"
	}

	m := &Metrics{registry: prometheus.NewRegistry()}

	m.servicesConstructed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "services",
			Name:      "constructed_total",
			Help:      "Total number of service instances constructed by the locator.",
		},
		[]string{"service"},
	)

	m.serviceFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "services",
			Name:      "failures_total",
			Help:      "Total number of failed service constructions.",
		},
		[]string{"service"},
	)

	m.eventDispatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "dispatches_total",
			Help:      "Total number of event dispatches.",
		},
		[]string{"event", "result"},
	)

	m.eventLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "dispatch_duration_seconds",
			Help:      "Time taken to run every handler of an event.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
		},
		[]string{"event"},
	)

	m.jobRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "runs_total",
			Help:      "Total number of job runs.",
		},
		[]string{"job", "result"},
	)

	m.jobLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "run_duration_seconds",
			Help:      "Time taken by a single job run.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"job"},
	)

	m.commandExits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cli",
			Name:      "exits_total",
			Help:      "Total number of dispatched commands by exit code.",
		},
		[]string{"command", "code"},
	)

	m.registry.MustRegister(
		m.servicesConstructed,
		m.serviceFailures,
		m.eventDispatches,
		m.eventLatency,
		m.jobRuns,
		m.jobLatency,
		m.commandExits,
	)

	return m
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler returns an HTTP handler exposing the collected metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) recordService(name string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.serviceFailures.WithLabelValues(name).Inc()
		return
	}
	m.servicesConstructed.WithLabelValues(name).Inc()
}

func (m *Metrics) recordDispatch(event string, started time.Time, err error) {
	if m == nil {
		return
	}
	m.eventDispatches.WithLabelValues(event, result(err)).Inc()
	m.eventLatency.WithLabelValues(event).Observe(time.Since(started).Seconds())
}

func (m *Metrics) recordJob(job string, started time.Time, err error) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job, result(err)).Inc()
	m.jobLatency.WithLabelValues(job).Observe(time.Since(started).Seconds())
}

func (m *Metrics) recordExit(command string, code int) {
	if m == nil {
		return
	}
	m.commandExits.WithLabelValues(command, strconv.Itoa(code)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
