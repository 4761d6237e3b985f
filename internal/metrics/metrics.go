// Package metrics exposes the agent's own counters on a private Prometheus
// registry. Metrics implements the probe and cache observer interfaces.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Probe attempt results
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Metrics holds the agent counters
type Metrics struct {
	registry       *prometheus.Registry
	probeAttempts  *prometheus.CounterVec
	cacheReads     *prometheus.CounterVec
	heartbeatPosts *prometheus.CounterVec
}

// New registers the counters plus Go and process collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		probeAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "factagent_probe_attempts_total",
			Help: "Probe invocations by fact family, source and result.",
		}, []string{"family", "source", "result"}),
		cacheReads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "factagent_cache_reads_total",
			Help: "Cache reads by family and outcome (fresh, stale, missing, corrupt).",
		}, []string{"family", "result"}),
		heartbeatPosts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "factagent_heartbeat_posts_total",
			Help: "Snapshot uploads by result.",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		m.probeAttempts,
		m.cacheReads,
		m.heartbeatPosts,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ProbeAttempt records one probe run
func (m *Metrics) ProbeAttempt(family, source string, err error) {
	result := ResultSuccess
	if err != nil {
		result = ResultFailure
	}
	m.probeAttempts.WithLabelValues(family, source, result).Inc()
}

// CacheRead records one cache lookup
func (m *Metrics) CacheRead(family, result string) {
	m.cacheReads.WithLabelValues(family, result).Inc()
}

// HeartbeatPost records one upload outcome
func (m *Metrics) HeartbeatPost(err error) {
	result := ResultSuccess
	if err != nil {
		result = ResultFailure
	}
	m.heartbeatPosts.WithLabelValues(result).Inc()
}

// Registry returns the private registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
