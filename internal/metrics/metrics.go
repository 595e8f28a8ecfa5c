// Package metrics holds the Prometheus instruments of the order desk.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "vendor_order_desk"

// Metrics groups every collector the service exports
type Metrics struct {
	BreachesDetected     prometheus.Counter
	BreachScans          prometheus.Counter
	BreachScanDuration   prometheus.Histogram
	AlertedOrders        prometheus.Gauge
	AlertsDispatched     *prometheus.CounterVec
	AlertChannelFailures *prometheus.CounterVec
	Transitions          *prometheus.CounterVec
	InvalidTransitions   *prometheus.CounterVec
	OrdersByStatus       *prometheus.GaugeVec
	IngestedOrders       *prometheus.CounterVec
	EventsRelayed        *prometheus.CounterVec
	ActiveWatchers       prometheus.Gauge
}

// New creates the collectors and registers them with registerer. A nil
// registerer leaves them unregistered.
func New(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		BreachesDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sla_breaches_detected_total",
			Help:      "Orders detected past their SLA for the first time.",
		}),
		BreachScans: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "breach_scans_total",
			Help:      "Breach monitor scans performed.",
		}),
		BreachScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "breach_scan_duration_seconds",
			Help:      "Duration of breach monitor scans.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		AlertedOrders: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "alerted_orders",
			Help:      "Orders currently holding a breach alert flag.",
		}),
		AlertsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_dispatched_total",
			Help:      "Alerts handed to the dispatcher by kind.",
		}, []string{"kind"}),
		AlertChannelFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_channel_failures_total",
			Help:      "Alert channel deliveries that failed.",
		}, []string{"channel"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_transitions_total",
			Help:      "Successful order status transitions.",
		}, []string{"from", "to"}),
		InvalidTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_invalid_transitions_total",
			Help:      "Rejected order actions by operation.",
		}, []string{"operation"}),
		OrdersByStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "orders",
			Help:      "Orders held in the collection by status.",
		}, []string{"status"}),
		IngestedOrders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingested_orders_total",
			Help:      "Orders that entered the collection by source.",
		}, []string{"source"}),
		EventsRelayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_relayed_total",
			Help:      "Events forwarded to handlers by outcome.",
		}, []string{"handler", "outcome"}),
		ActiveWatchers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_timer_watchers",
			Help:      "Live per-order timer watchers.",
		}),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.BreachesDetected,
			m.BreachScans,
			m.BreachScanDuration,
			m.AlertedOrders,
			m.AlertsDispatched,
			m.AlertChannelFailures,
			m.Transitions,
			m.InvalidTransitions,
			m.OrdersByStatus,
			m.IngestedOrders,
			m.EventsRelayed,
			m.ActiveWatchers,
		)
	}

	return m
}

// NewNop returns unregistered collectors for tests and tools
func NewNop() *Metrics {
	return New(nil)
}
