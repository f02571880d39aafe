package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Session pool metrics.
	PoolAcquiredSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "igniteclient_pool_acquired_sessions",
			Help: "Number of HTTP sessions currently checked out of the pool",
		},
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "igniteclient_http_requests_total",
			Help: "Total HTTP requests issued through the session pool, by method and taxonomy code",
		},
		[]string{"method", "code"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "igniteclient_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds, by method",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Activation backoff metrics.
	BackoffState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "igniteclient_backoff_state",
			Help: "Whether the activation backoff controller currently holds this state (1) or not (0)",
		},
		[]string{"state"},
	)

	BackoffAttempts = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "igniteclient_backoff_attempts",
			Help: "Attempt count within the activation backoff controller's current state",
		},
	)

	BackoffRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "igniteclient_backoff_retries_total",
			Help: "Total activation/auth retries scheduled by the backoff controller",
		},
	)

	// Event router / transport pipeline metrics.
	EventsRoutedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "igniteclient_events_routed_total",
			Help: "Total events that reached at least one domain handler",
		},
		[]string{"domain"},
	)

	EventsDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "igniteclient_events_dropped_total",
			Help: "Total events dropped by a transport pipeline stage, labeled by stage",
		},
		[]string{"stage"},
	)

	// IPC channel metrics.
	IPCCommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "igniteclient_ipc_commands_total",
			Help: "Total commands received on the IPC ingress channel, by kind",
		},
		[]string{"kind"},
	)

	IPCMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "igniteclient_ipc_messages_total",
			Help: "Total messages sent on the IPC egress channel, by kind",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(PoolAcquiredSessions)
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(BackoffState)
	prometheus.MustRegister(BackoffAttempts)
	prometheus.MustRegister(BackoffRetriesTotal)
	prometheus.MustRegister(EventsRoutedTotal)
	prometheus.MustRegister(EventsDroppedTotal)
	prometheus.MustRegister(IPCCommandsTotal)
	prometheus.MustRegister(IPCMessagesTotal)
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations and observing the elapsed
// duration to a histogram.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// SetBackoffState marks state as the controller's sole active state,
// zeroing every other known state so a PromQL consumer sees exactly one
// gauge at 1 per controller.
func SetBackoffState(active string, known []string) {
	for _, s := range known {
		if s == active {
			BackoffState.WithLabelValues(s).Set(1)
		} else {
			BackoffState.WithLabelValues(s).Set(0)
		}
	}
}
