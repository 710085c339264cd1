package radius

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics mirrors the event-log counters as Prometheus collectors.
// The event log stays the source for the admin summary; these exist
// for scraping.
type Metrics struct {
	Requests       *prometheus.CounterVec
	Latency        prometheus.Histogram
	ActiveSessions prometheus.Gauge
	CacheHits      prometheus.Counter
	CacheMisses    prometheus.Counter
	CoAResults     *prometheus.CounterVec
	BytesIn        prometheus.Counter
	BytesOut       prometheus.Counter
}

// NewMetrics builds the collector set. Pass nil to Register to use the
// default registry.
func NewMetrics() *Metrics {
	return &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "radius_requests_total",
			Help: "RADIUS datagrams seen, by kind and outcome",
		}, []string{"kind", "result"}),
		Latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "radius_request_duration_seconds",
			Help:    "Datagram processing time",
			Buckets: prometheus.DefBuckets,
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "radius_active_sessions",
			Help: "Sessions with no stop time",
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "radius_nas_cache_hits_total",
			Help: "NAS secret cache hits",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "radius_nas_cache_misses_total",
			Help: "NAS secret cache misses",
		}),
		CoAResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "radius_coa_results_total",
			Help: "CoA/Disconnect operations, by operation and outcome",
		}, []string{"op", "result"}),
		BytesIn: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "radius_accounted_bytes_in_total",
			Help: "Subscriber download bytes reported by accounting",
		}),
		BytesOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "radius_accounted_bytes_out_total",
			Help: "Subscriber upload bytes reported by accounting",
		}),
	}
}

// Register attaches every collector to reg
func (m *Metrics) Register(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.Requests,
		m.Latency,
		m.ActiveSessions,
		m.CacheHits,
		m.CacheMisses,
		m.CoAResults,
		m.BytesIn,
		m.BytesOut,
	)
}

// observe feeds one event into the collectors. Nil receivers are
// allowed so the server can run without metrics wired.
func (m *Metrics) observe(ev Event) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(string(ev.Kind), string(ev.Result)).Inc()
	if ev.Latency > 0 {
		m.Latency.Observe(ev.Latency.Seconds())
	}
	if ev.BytesIn > 0 {
		m.BytesIn.Add(float64(ev.BytesIn))
	}
	if ev.BytesOut > 0 {
		m.BytesOut.Add(float64(ev.BytesOut))
	}
	switch ev.Kind {
	case EventCoADisconnect:
		m.CoAResults.WithLabelValues("disconnect", string(ev.Result)).Inc()
	case EventCoAChange:
		m.CoAResults.WithLabelValues("change", string(ev.Result)).Inc()
	}
}
