// Package metrics exposes fieldbus runtime counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fieldbus/fieldbus-go/pkg/wire"
)

const namespace = "fieldbus"

// Metrics holds the collectors of one application. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	notificationsSent     *prometheus.CounterVec
	notificationsReceived *prometheus.CounterVec
	notificationsDropped  prometheus.Counter
	subscriptions         prometheus.Gauge
	availabilityChanges   *prometheus.CounterVec
	connections           prometheus.Gauge
}

// New creates a Metrics instance with its own registry. app is attached to
// every series as the "app" label.
func New(app string) *Metrics {
	reg := prometheus.NewRegistry()
	labels := prometheus.Labels{"app": app}

	m := &Metrics{
		registry: reg,
		notificationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "notifications_sent_total",
			Help:        "Notifications written to subscriber connections.",
			ConstLabels: labels,
		}, []string{"service"}),
		notificationsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "notifications_received_total",
			Help:        "Notifications delivered to message handlers.",
			ConstLabels: labels,
		}, []string{"service"}),
		notificationsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "notifications_dropped_total",
			Help:        "Notifications discarded because no matching event was requested.",
			ConstLabels: labels,
		}),
		subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "subscriptions_active",
			Help:        "Active eventgroup subscriptions.",
			ConstLabels: labels,
		}),
		availabilityChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "availability_changes_total",
			Help:        "Service availability transitions observed.",
			ConstLabels: labels,
		}, []string{"service", "available"}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "connections_active",
			Help:        "Open transport connections.",
			ConstLabels: labels,
		}),
	}

	reg.MustRegister(
		m.notificationsSent,
		m.notificationsReceived,
		m.notificationsDropped,
		m.subscriptions,
		m.availabilityChanges,
		m.connections,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
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
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// NotificationSent counts n notifications written for svc.
func (m *Metrics) NotificationSent(svc wire.ServiceKey, n int) {
	if m == nil {
		return
	}
	m.notificationsSent.WithLabelValues(svc.String()).Add(float64(n))
}

// NotificationReceived counts a notification delivered for svc.
func (m *Metrics) NotificationReceived(svc wire.ServiceKey) {
	if m == nil {
		return
	}
	m.notificationsReceived.WithLabelValues(svc.String()).Inc()
}

// NotificationDropped counts a discarded notification.
func (m *Metrics) NotificationDropped() {
	if m == nil {
		return
	}
	m.notificationsDropped.Inc()
}

// SetSubscriptions sets the active subscription gauge.
func (m *Metrics) SetSubscriptions(n int) {
	if m == nil {
		return
	}
	m.subscriptions.Set(float64(n))
}

// AvailabilityChanged counts an availability transition for svc.
func (m *Metrics) AvailabilityChanged(svc wire.ServiceKey, available bool) {
	if m == nil {
		return
	}
	state := "false"
	if available {
		state = "true"
	}
	m.availabilityChanges.WithLabelValues(svc.String(), state).Inc()
}

// ConnectionOpened increments the connection gauge.
func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.connections.Inc()
}

// ConnectionClosed decrements the connection gauge.
func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.connections.Dec()
}
