package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Gateway request outcomes.
const (
	OutcomeHit      = "hit"
	OutcomeMiss     = "miss"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Metrics groups the service counters. A nil *Metrics is a valid no-op recorder.
type Metrics struct {
	registry       *prometheus.Registry
	gatewayCalls   *prometheus.CounterVec
	skippedHeights prometheus.Counter
	cycles         *prometheus.CounterVec
	lastSuccess    prometheus.Gauge
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		gatewayCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zecwatcher",
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "RPC gateway invocations by method and outcome.",
		}, []string{"method", "outcome"}),
		skippedHeights: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "zecwatcher",
			Subsystem: "sampler",
			Name:      "skipped_heights_total",
			Help:      "Block heights dropped from a series after a failed fetch.",
		}),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zecwatcher",
			Subsystem: "timeline",
			Name:      "cycles_total",
			Help:      "Refresh cycles by result.",
		}, []string{"result"}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "zecwatcher",
			Subsystem: "timeline",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful refresh cycle.",
		}),
	}
	reg.MustRegister(
		m.gatewayCalls,
		m.skippedHeights,
		m.cycles,
		m.lastSuccess,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler exposes the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// GatewayCall counts one gateway invocation.
func (m *Metrics) GatewayCall(method, outcome string) {
	if m == nil {
		return
	}
	m.gatewayCalls.WithLabelValues(method, outcome).Inc()
}

// SkippedHeight counts one dropped sample.
func (m *Metrics) SkippedHeight() {
	if m == nil {
		return
	}
	m.skippedHeights.Inc()
}

// Cycle counts a refresh cycle; unixSeconds is recorded on success.
func (m *Metrics) Cycle(ok bool, unixSeconds float64) {
	if m == nil {
		return
	}
	if ok {
		m.cycles.WithLabelValues("success").Inc()
		m.lastSuccess.Set(unixSeconds)
		return
	}
	m.cycles.WithLabelValues("failure").Inc()
}

// Registry returns the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
