// Package metrics provides Prometheus metrics for the Subkey server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for licensing operations.
type Metrics struct {
	registry *prometheus.Registry

	validations   *prometheus.CounterVec
	activations   *prometheus.CounterVec
	webhookEvents *prometheus.CounterVec
}

// New creates a Metrics instance with its own registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "subkey_license_validations_total",
			Help: "License validation requests by result.",
		}, []string{"result"}),
		activations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "subkey_device_activations_total",
			Help: "Device activation requests by result.",
		}, []string{"result"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "subkey_webhook_events_total",
			Help: "Webhook events received by type and processing status.",
		}, []string{"event_type", "status"}),
	}

	registry.MustRegister(m.validations, m.activations, m.webhookEvents)
	return m
}

// Handler returns an HTTP handler serving the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveValidation records a validation outcome. Safe to call on a nil receiver.
func (m *Metrics) ObserveValidation(result string) {
	if m == nil {
		return
	}
	m.validations.WithLabelValues(result).Inc()
}

// ObserveActivation records an activation outcome. Safe to call on a nil receiver.
func (m *Metrics) ObserveActivation(result string) {
	if m == nil {
		return
	}
	m.activations.WithLabelValues(result).Inc()
}

// ObserveWebhookEvent records a received webhook event. Safe to call on a nil receiver.
func (m *Metrics) ObserveWebhookEvent(eventType, status string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(eventType, status).Inc()
}
