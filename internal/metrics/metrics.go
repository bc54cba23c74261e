package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ============================================
	// Database
	// ============================================
	DBConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lending_db_connection_status",
		Help: "Database connection status (1=healthy, 0=unhealthy)",
	})

	DBConnectionOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lending_db_connection_open",
		Help: "Number of open database connections",
	})

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lending_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"query_type"},
	)

	// ============================================
	// NATS
	// ============================================
	NATSConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lending_nats_connection_status",
		Help: "NATS connection status (1=connected, 0=disconnected)",
	})

	NATSMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lending_nats_messages_published_total",
			Help: "Total number of NATS messages published",
		},
		[]string{"status"},
	)

	NATSMessagesFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lending_nats_messages_failed_total",
			Help: "Total number of NATS messages that failed to publish",
		},
		[]string{"status"},
	)

	// ============================================
	// Lending operations
	// ============================================
	OperationsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lending_operations_submitted_total",
			Help: "Total number of lending operations accepted by the sequencer",
		},
		[]string{"operation"},
	)

	OperationsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lending_operations_failed_total",
			Help: "Total number of lending operations that failed before or during submission",
		},
		[]string{"operation"},
	)

	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lending_operation_duration_seconds",
			Help:    "Time from request to sequencer acknowledgement",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"operation"},
	)

	// ============================================
	// WebSocket
	// ============================================
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lending_websocket_clients",
		Help: "Number of connected websocket clients",
	})
)
