package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collectors are declared in the shape call sites use; the service label is
// attached at registration time, so instrumented code behaves the same
// whether or not MustRegister ever ran.
var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	WSConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ws_connections",
			Help: "Currently open websocket connections.",
		},
		[]string{},
	)

	WSEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ws_events_total",
			Help: "Inbound websocket events by type and outcome.",
		},
		[]string{"event", "outcome"},
	)

	MessagesStoredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_stored_total",
			Help: "Total number of persisted chat messages.",
		},
		[]string{},
	)

	MessagesDeletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_deleted_total",
			Help: "Total number of soft-deleted chat messages.",
		},
		[]string{},
	)

	PushNotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "push_notifications_total",
			Help: "Push notification attempts by result.",
		},
		[]string{"result"},
	)

	PushTokensDeactivatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "push_tokens_deactivated_total",
			Help: "Tokens retired after the provider reported them gone.",
		},
		[]string{},
	)
)

// MustRegister installs the collectors on the default registry with the
// service name as a constant label on every series.
func MustRegister(serviceName string) {
	register(prometheus.DefaultRegisterer, serviceName)
}

func register(reg prometheus.Registerer, serviceName string) {
	prometheus.WrapRegistererWith(prometheus.Labels{"service": serviceName}, reg).MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDurationSeconds,
		WSConnections,
		WSEventsTotal,
		MessagesStoredTotal,
		MessagesDeletedTotal,
		PushNotificationsTotal,
		PushTokensDeactivatedTotal,
	)
}
