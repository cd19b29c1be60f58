// Package metrics provides Prometheus metrics definitions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "relitrack"

var (
	// HTTPRequestDuration tracks HTTP request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "route", "status_code"},
	)

	// DBPoolConnections tracks database connection pool state.
	DBPoolConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "pool_connections",
			Help:      "Number of database connections by state",
		},
		[]string{"state"},
	)

	// IncidentsByStatus tracks open incidents per derived lifecycle status.
	// Updated by the nightly sweep.
	IncidentsByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "incidents",
			Name:      "by_status",
			Help:      "Number of incidents by lifecycle status",
		},
		[]string{"status"},
	)

	// PendingActionsByUrgency tracks outstanding worklist actions per urgency
	// tier across all incidents. Updated by the nightly sweep.
	PendingActionsByUrgency = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "incidents",
			Name:      "pending_actions",
			Help:      "Number of pending lifecycle actions by urgency",
		},
		[]string{"urgency"},
	)

	// SweepDuration tracks how long the nightly status sweep takes.
	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "duration_seconds",
			Help:      "Nightly sweep duration in seconds",
			Buckets:   []float64{.1, .5, 1, 5, 15, 60, 300},
		},
	)

	// ReminderEmailsSent counts digest emails sent by the reminder sweep.
	ReminderEmailsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reminders",
			Name:      "emails_sent_total",
			Help:      "Total reminder digest emails sent, by result",
		},
		[]string{"result"},
	)
)
