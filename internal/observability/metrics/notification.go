// Package metrics provides custom Prometheus metrics for notification operations.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// NotificationMetrics contains the metrics for alert delivery through notification services.
type NotificationMetrics struct {
	DeliveriesTotal  *prometheus.CounterVec   // service, status
	DeliveryDuration *prometheus.HistogramVec // service
	SuppressedTotal  *prometheus.CounterVec   // label
	registry         *prometheus.Registry
}

// NewNotificationMetrics creates and registers the notification metrics.
func NewNotificationMetrics(registry *prometheus.Registry) (*NotificationMetrics, error) {
	m := &NotificationMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register notification metrics: %w", err)
	}
	return m, nil
}

func (m *NotificationMetrics) initMetrics() {
	m.DeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "notification_deliveries_total",
			Help:      "Total number of notification delivery attempts by service and status",
		},
		[]string{"service", "status"},
	)

	m.DeliveryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "notification_delivery_duration_seconds",
			Help:      "Time taken to deliver a notification",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
		},
		[]string{"service"},
	)

	m.SuppressedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "notification_suppressed_total",
			Help:      "Total number of alerts suppressed by the per-label cooldown",
		},
		[]string{"label"},
	)
}

// RecordDelivery records one delivery attempt
func (m *NotificationMetrics) RecordDelivery(service string, seconds float64, err error) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.DeliveriesTotal.WithLabelValues(service, status).Inc()
	m.DeliveryDuration.WithLabelValues(service).Observe(seconds)
}

// RecordSuppressed counts an alert held back by the cooldown
func (m *NotificationMetrics) RecordSuppressed(label string) {
	if m == nil {
		return
	}
	m.SuppressedTotal.WithLabelValues(label).Inc()
}

// Describe implements the prometheus.Collector interface.
func (m *NotificationMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.DeliveriesTotal.Describe(ch)
	m.DeliveryDuration.Describe(ch)
	m.SuppressedTotal.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *NotificationMetrics) Collect(ch chan<- prometheus.Metric) {
	m.DeliveriesTotal.Collect(ch)
	m.DeliveryDuration.Collect(ch)
	m.SuppressedTotal.Collect(ch)
}
