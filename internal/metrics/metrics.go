package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds the service collectors. Each instance owns its registry so
// tests can build as many as they like.
type Metrics struct {
	Registry *prometheus.Registry

	WSAuthorizations   *prometheus.CounterVec
	HTTPAuthorizations *prometheus.CounterVec
	WSSessionsActive   prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		WSAuthorizations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ws_authorizations_total",
			Help: "WebSocket authorization attempts by result.",
		}, []string{"result"}),
		HTTPAuthorizations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_authorizations_total",
			Help: "HTTP authorization attempts by result.",
		}, []string{"result"}),
		WSSessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ws_sessions_active",
			Help: "Authorized WebSocket sessions currently open.",
		}),
	}
	reg.MustRegister(
		m.WSAuthorizations,
		m.HTTPAuthorizations,
		m.WSSessionsActive,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Result labels an authorization outcome: "ok", a failure kind, or "error".
func Result(kind string, ok bool) string {
	if ok {
		return "ok"
	}
	if kind == "" {
		return "error"
	}
	return kind
}
