// Package metrics exposes Prometheus instrumentation for the scheduler,
// ingestion, and redirect paths.
//
// All methods are safe on a nil *Metrics so components can run without
// instrumentation in tests and one-shot CLI commands.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every dealflow metric.
const Namespace = "dealflow"

// Metrics holds the registered collectors.
type Metrics struct {
	registry *prometheus.Registry

	DeliveriesTotal  *prometheus.CounterVec
	DeliveryDuration *prometheus.HistogramVec
	TicksTotal       *prometheus.CounterVec
	QueueDepth       *prometheus.GaugeVec
	ProductsIngested *prometheus.CounterVec
	ClicksTotal      *prometheus.CounterVec
	ConversionsTotal prometheus.Counter
}

// New creates the metrics on a dedicated registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		DeliveriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "deliveries_total",
			Help:      "Delivery attempts by platform and recorded outcome",
		}, []string{"platform", "outcome"}),
		DeliveryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "delivery_duration_seconds",
			Help:      "Duration of adapter delivery calls",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}, []string{"platform"}),
		TicksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "ticks_total",
			Help:      "Scheduler ticks by result",
		}, []string{"result"}),
		QueueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "queue_depth",
			Help:      "Delivery records by status",
		}, []string{"status"}),
		ProductsIngested: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "products_ingested_total",
			Help:      "Catalog ingestion attempts by result",
		}, []string{"result"}),
		ClicksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "clicks_total",
			Help:      "Short-link redirects, split by bot classification",
		}, []string{"bot"}),
		ConversionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "conversions_total",
			Help:      "Recorded affiliate conversions",
		}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveDelivery records one adapter call.
func (m *Metrics) ObserveDelivery(platform, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.DeliveriesTotal.WithLabelValues(platform, outcome).Inc()
	m.DeliveryDuration.WithLabelValues(platform).Observe(elapsed.Seconds())
}

// ObserveTick records a finished tick; result is "ok" or "error".
func (m *Metrics) ObserveTick(result string) {
	if m == nil {
		return
	}
	m.TicksTotal.WithLabelValues(result).Inc()
}

// SetQueueDepth replaces the per-status gauge values.
func (m *Metrics) SetQueueDepth(counts map[string]int) {
	if m == nil {
		return
	}
	for status, count := range counts {
		m.QueueDepth.WithLabelValues(status).Set(float64(count))
	}
}

// ObserveIngest records a catalog ingestion result.
func (m *Metrics) ObserveIngest(result string) {
	if m == nil {
		return
	}
	m.ProductsIngested.WithLabelValues(result).Inc()
}

// ObserveClick records one redirect.
func (m *Metrics) ObserveClick(bot bool) {
	if m == nil {
		return
	}
	label := "false"
	if bot {
		label = "true"
	}
	m.ClicksTotal.WithLabelValues(label).Inc()
}

// ObserveConversion records one conversion.
func (m *Metrics) ObserveConversion() {
	if m == nil {
		return
	}
	m.ConversionsTotal.Inc()
}
