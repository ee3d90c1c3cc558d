package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	ResultOK    = "ok"
	ResultError = "error"
)

var (
	// Requests counts every Matrix API call by endpoint label and result
	// ("ok", "error", or the HTTP status code).
	Requests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mxload_requests_total",
		Help: "Matrix API calls issued by the load generator",
	}, []string{"endpoint", "result"})

	// ActiveSessions tracks virtual clients that hold an access token and
	// are generating load.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mxload_active_sessions",
		Help: "Virtual client sessions currently authenticated",
	})

	// MessagesSent counts room message events successfully sent.
	MessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mxload_messages_sent_total",
		Help: "Room message events sent",
	})

	// SyncFailures counts background sync iterations that did not advance
	// the cursor.
	SyncFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mxload_sync_failures_total",
		Help: "Background sync calls that failed or returned no cursor",
	})

	// TokenUpdates counts credential updates aggregated by the master.
	TokenUpdates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mxload_token_updates_total",
		Help: "Token updates received from workers",
	})
)

// ObserveRequest records one API call outcome.
func ObserveRequest(endpoint, result string) {
	Requests.WithLabelValues(endpoint, result).Inc()
}
