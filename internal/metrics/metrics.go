package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hlmonitor"

// Connection
var (
	ConnectionState = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "connection_state",
		Help:      "Venue connection state (0 disconnected, 1 connecting, 2 subscribing, 3 active, 4 shutting down)",
	})
	ReconnectAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconnect_attempts_total",
		Help:      "Reconnect attempts started after the backoff elapsed",
	})
	ReconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconnects_total",
		Help:      "Successful reconnects",
	})
	SubscribeFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "subscribe_failures_total",
		Help:      "Subscribe requests that were rejected or timed out",
	})
	FramesReceivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "frames_received_total",
		Help:      "Frames received from the venue, by channel",
	}, []string{"channel"})
	VenueErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "venue_errors_total",
		Help:      "Error frames received from the venue",
	})
	MessagesDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_dropped_total",
		Help:      "Data messages dropped because the router buffer was full",
	})
)

// Events
var (
	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_total",
		Help:      "Raw events by kind and outcome (admitted, duplicate, malformed, unattributed)",
	}, []string{"kind", "outcome"})
	LedgerSize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "dedup_ledger_size",
		Help:      "Identities retained by the dedup ledger",
	})
)

// Dispatch
var (
	StoreErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "store_errors_total",
		Help:      "Persistence failures, by event kind",
	}, []string{"kind"})
	ConsumerErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "consumer_errors_total",
		Help:      "Consumer failures, by consumer and reason (error, panic, timeout, cancelled)",
	}, []string{"consumer", "reason"})
	ConsumerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "consumer_duration_seconds",
		Help:      "Time spent delivering one event to a consumer",
		Buckets:   prometheus.DefBuckets,
	}, []string{"consumer"})
)

// Health
var (
	HeartbeatAgeSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "heartbeat_age_seconds",
		Help:      "Seconds since the pipeline heartbeat last advanced",
	})
	LifecycleState = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "lifecycle_state",
		Help:      "Monitor lifecycle state (0 stopped, 1 starting, 2 running, 3 stopping)",
	})
	RestartsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "restarts_total",
		Help:      "Full restarts requested by the health monitor",
	})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
