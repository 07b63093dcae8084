package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts counts login attempts by method (password|otp) and result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sustainabilityhub_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"method", "result"},
	)

	// OTPIssued counts issued one-time passcodes by purpose (login|reset).
	OTPIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sustainabilityhub_otp_issued_total",
			Help: "Total number of one-time passcodes issued",
		},
		[]string{"purpose"},
	)

	// OTPVerifications counts verification outcomes.
	OTPVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sustainabilityhub_otp_verifications_total",
			Help: "Total number of one-time passcode verification attempts",
		},
		[]string{"result"},
	)

	// OTPDeliveries counts delivery attempts per channel and outcome.
	OTPDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sustainabilityhub_otp_deliveries_total",
			Help: "Total number of one-time passcode delivery attempts",
		},
		[]string{"channel", "result"},
	)

	// NotificationsDispatched counts stored notifications by kind.
	NotificationsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sustainabilityhub_notifications_dispatched_total",
			Help: "Total number of notifications dispatched",
		},
		[]string{"kind"},
	)

	// ActiveSessions tracks refresh sessions that are neither expired nor revoked.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sustainabilityhub_active_sessions",
			Help: "Number of active sessions",
		},
	)

	// RealtimeConnections tracks open websocket connections.
	RealtimeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sustainabilityhub_realtime_connections",
			Help: "Number of open realtime websocket connections",
		},
	)

	// MaintenanceRuns counts background cleanup runs by job and result.
	MaintenanceRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sustainabilityhub_maintenance_runs_total",
			Help: "Total number of maintenance job runs",
		},
		[]string{"job", "result"},
	)

	// MaintenanceRemoved counts rows removed by maintenance jobs.
	MaintenanceRemoved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sustainabilityhub_maintenance_removed_total",
			Help: "Total number of rows removed by maintenance jobs",
		},
		[]string{"job"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sustainabilityhub_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
