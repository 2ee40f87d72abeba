package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/imovelprime/primegate/policy"
)

// Metrics holds the serving layer's Prometheus collectors. A nil *Metrics
// records nothing.
type Metrics struct {
	decisions *prometheus.CounterVec
	requests  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

// NewMetrics registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		decisions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "primegate",
				Subsystem: "policy",
				Name:      "decisions_total",
				Help:      "Routing policy decisions by action and matched prefix",
			},
			[]string{"action", "prefix"},
		),
		requests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "primegate",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "HTTP requests by method, status code and transport",
			},
			[]string{"method", "code", "scheme"},
		),
		duration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "primegate",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request latency by transport",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"scheme"},
		),
	}
}

func (m *Metrics) recordDecision(d policy.Decision) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(d.Action.String(), d.Prefix).Inc()
}

func (m *Metrics) recordRequest(method string, status int, secure bool, d time.Duration) {
	if m == nil {
		return
	}
	scheme := "http"
	if secure {
		scheme = "https"
	}
	m.requests.WithLabelValues(method, strconv.Itoa(status), scheme).Inc()
	m.duration.WithLabelValues(scheme).Observe(d.Seconds())
}

// MetricsHandler exposes g in the Prometheus text format.
func MetricsHandler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
