// Package metrics holds the Prometheus collectors for ticket and probe activity.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result labels
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Metrics manages the Prometheus metrics.
type Metrics struct {
	TicketRequests  *prometheus.CounterVec
	TicketLatency   *prometheus.HistogramVec
	CacheLookups    *prometheus.CounterVec
	RemoteFaults    *prometheus.CounterVec
	ServiceCalls    *prometheus.CounterVec
	ProbeLatency    *prometheus.HistogramVec
	ExpiryFallbacks prometheus.Counter
}

// New creates the metrics and registers them with reg. A nil reg uses a
// private registry, which keeps tests from colliding on the default one.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		TicketRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arca_ticket_requests_total",
				Help: "Total number of WSAA ticket requests.",
			},
			[]string{"service", "result"},
		),
		TicketLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "arca_ticket_request_latency_seconds",
				Help:    "Latency of WSAA ticket requests.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"service"},
		),
		CacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arca_ticket_cache_lookups_total",
				Help: "Ticket cache lookups by outcome (hit, renew).",
			},
			[]string{"service", "outcome"},
		),
		RemoteFaults: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arca_remote_faults_total",
				Help: "Faults and rejections reported by ARCA services.",
			},
			[]string{"service", "code"},
		),
		ServiceCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arca_service_calls_total",
				Help: "Authenticated service calls by result.",
			},
			[]string{"service", "operation", "result"},
		),
		ProbeLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "arca_probe_latency_seconds",
				Help:    "Latency of dummy health probes.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"probe", "status"},
		),
		ExpiryFallbacks: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "arca_expiration_fallbacks_total",
				Help: "Authorization codes whose expiration date could not be parsed.",
			},
		),
	}
}

// RecordTicketRequest records a WSAA exchange.
func (m *Metrics) RecordTicketRequest(service, result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.TicketRequests.WithLabelValues(service, result).Inc()
	m.TicketLatency.WithLabelValues(service).Observe(duration.Seconds())
}

// RecordCacheLookup records a ticket cache lookup outcome.
func (m *Metrics) RecordCacheLookup(service, outcome string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(service, outcome).Inc()
}

// RecordRemoteFault records a fault code returned by a service.
func (m *Metrics) RecordRemoteFault(service, code string) {
	if m == nil {
		return
	}
	m.RemoteFaults.WithLabelValues(service, code).Inc()
}

// RecordServiceCall records an authenticated call.
func (m *Metrics) RecordServiceCall(service, operation, result string) {
	if m == nil {
		return
	}
	m.ServiceCalls.WithLabelValues(service, operation, result).Inc()
}

// RecordProbe records a health probe.
func (m *Metrics) RecordProbe(probe string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.ProbeLatency.WithLabelValues(probe, statusLabel(status)).Observe(duration.Seconds())
}

// RecordExpiryFallback records an assumed authorization code expiration.
func (m *Metrics) RecordExpiryFallback() {
	if m == nil {
		return
	}
	m.ExpiryFallbacks.Inc()
}

func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 200 && status < 300:
		return "2xx"
	default:
		return "other"
	}
}
