// Package metrics provides Prometheus metrics for the billing settings service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "billing_settings"

// Collector holds the service metrics and the registry they are exposed from.
type Collector struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RateLimited     *prometheus.CounterVec

	PlansConfigured      *prometheus.GaugeVec
	CurrenciesConfigured prometheus.Gauge
	ResolvedAt           prometheus.Gauge
}

// New creates a collector on a fresh registry, including the Go runtime and
// process collectors.
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg)
}

// NewWithRegistry creates a collector registered on reg.
func NewWithRegistry(reg *prometheus.Registry) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"method", "route"},
		),
		RateLimited: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_rate_limited_total",
				Help:      "Total number of HTTP requests rejected by the rate limiter",
			},
			[]string{"method"},
		),
		PlansConfigured: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "plans_configured",
				Help:      "Number of configured plans by kind (all, stripe)",
			},
			[]string{"kind"},
		),
		CurrenciesConfigured: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "currencies_configured",
				Help:      "Number of configured currency choices",
			},
		),
		ResolvedAt: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "resolved_timestamp_seconds",
				Help:      "Unix timestamp at which the settings were resolved",
			},
		),
	}
}

// ObserveRequest records one completed HTTP request. route is the matched
// mux pattern, or empty when no route matched.
func (c *Collector) ObserveRequest(method, route string, status int, duration time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	c.RequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.RequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimited records one request rejected by the rate limiter.
func (c *Collector) ObserveRateLimited(method string) {
	c.RateLimited.WithLabelValues(method).Inc()
}

// RecordSettings publishes the size of the resolved settings.
func (c *Collector) RecordSettings(plans, stripePlans, currencies int, at time.Time) {
	c.PlansConfigured.WithLabelValues("all").Set(float64(plans))
	c.PlansConfigured.WithLabelValues("stripe").Set(float64(stripePlans))
	c.CurrenciesConfigured.Set(float64(currencies))
	c.ResolvedAt.Set(float64(at.Unix()))
}

// Registry returns the registry the metrics are registered on.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
