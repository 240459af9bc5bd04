// Package metrics provides Prometheus metrics collection for the meter.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/westsidetechsolutions/meter/domain/usage"
	"github.com/westsidetechsolutions/meter/ports"
)

const namespace = "meter"

// Collector holds all Prometheus metrics for the meter.
type Collector struct {
	// Request metrics
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	// Admission metrics
	AdmissionsTotal *prometheus.CounterVec
	DenialsTotal    *prometheus.CounterVec
	StoreErrors     *prometheus.CounterVec

	// Config metrics
	ConfigReloads      prometheus.Counter
	ConfigReloadErrors prometheus.Counter
	ConfigLastReload   prometheus.Gauge
}

// New creates a collector registered with the default registry.
func New() *Collector {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a collector with a custom registry.
// Useful for testing to avoid global state.
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
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
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"method", "route"},
		),
		RequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Number of HTTP requests currently being processed",
			},
		),
		AdmissionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "admissions_total",
				Help:      "Requests admitted and metered, by field and plan",
			},
			[]string{"field", "plan_id"},
		),
		DenialsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "denials_total",
				Help:      "Requests denied, by field and reason",
			},
			[]string{"field", "reason"},
		),
		StoreErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_errors_total",
				Help:      "Storage failures during admission, by operation",
			},
			[]string{"op"},
		),
		ConfigReloads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reloads_total",
				Help:      "Total number of successful config reloads",
			},
		),
		ConfigReloadErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reload_errors_total",
				Help:      "Total number of config reload errors",
			},
		),
		ConfigLastReload: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "config_last_reload_timestamp",
				Help:      "Unix timestamp of last successful config reload",
			},
		),
	}
}

// Admitted records an admitted request.
func (c *Collector) Admitted(field usage.Field, planID string) {
	c.AdmissionsTotal.WithLabelValues(string(field), planLabel(planID)).Inc()
}

// Denied records a denied request.
func (c *Collector) Denied(field usage.Field, reason string) {
	c.DenialsTotal.WithLabelValues(fieldLabel(field), reason).Inc()
}

// StoreError records a storage failure.
func (c *Collector) StoreError(op string) {
	c.StoreErrors.WithLabelValues(op).Inc()
}

// planLabel bounds label cardinality; plan ids come from billing data.
func planLabel(planID string) string {
	if planID == "" {
		return "none"
	}
	if len(planID) > 40 {
		return planID[:40]
	}
	return planID
}

func fieldLabel(f usage.Field) string {
	if f.Valid() {
		return string(f)
	}
	if strings.TrimSpace(string(f)) == "" {
		return "none"
	}
	return "unknown"
}

// Nop discards admission outcomes.
type Nop struct{}

func (Nop) Admitted(usage.Field, string) {}
func (Nop) Denied(usage.Field, string)   {}
func (Nop) StoreError(string)            {}

// Ensure interface compliance.
var (
	_ ports.AdmissionObserver = (*Collector)(nil)
	_ ports.AdmissionObserver = Nop{}
)
