package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors exported by the service. A nil *Metrics is valid and
// records nothing, which keeps tests free of registry plumbing.
type Metrics struct {
	RequestCount     *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	WalletOperations *prometheus.CounterVec
	OrderTransitions *prometheus.CounterVec
	WebhookEvents    *prometheus.CounterVec
	Conversions      *prometheus.CounterVec
}

// New builds the collectors and registers them on registry.
func New(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		RequestCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		WalletOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wallet_operations_total",
				Help: "Wallet ledger operations by type and result.",
			},
			[]string{"op", "result"},
		),
		OrderTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "order_transitions_total",
				Help: "Order state transitions by kind and target status.",
			},
			[]string{"kind", "to"},
		),
		WebhookEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webhook_events_total",
				Help: "Inbound provider webhooks by outcome.",
			},
			[]string{"outcome"},
		),
		Conversions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fx_conversions_total",
				Help: "Currency conversions by result (identity, converted, fallback).",
			},
			[]string{"result"},
		),
	}

	registry.MustRegister(
		m.RequestCount,
		m.RequestDuration,
		m.WalletOperations,
		m.OrderTransitions,
		m.WebhookEvents,
		m.Conversions,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestCount.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func (m *Metrics) IncWalletOp(op, result string) {
	if m == nil {
		return
	}
	m.WalletOperations.WithLabelValues(op, result).Inc()
}

func (m *Metrics) IncTransition(kind, to string) {
	if m == nil {
		return
	}
	m.OrderTransitions.WithLabelValues(kind, to).Inc()
}

func (m *Metrics) IncWebhook(outcome string) {
	if m == nil {
		return
	}
	m.WebhookEvents.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncConversion(result string) {
	if m == nil {
		return
	}
	m.Conversions.WithLabelValues(result).Inc()
}
