/*
Package metrics provides Prometheus metrics collection and exposition for
the ignite client.

The metrics package defines and registers every ignite-client metric using
the Prometheus client library, providing observability into the session
pool, the activation/auth backoff controller, the event transport pipeline,
and the local IPC channel. Metrics are exposed via an HTTP endpoint for
scraping by a Prometheus server.

# Architecture

	┌──────────────────── METRICS SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │          Prometheus Registry                 │          │
	│  │  - Global DefaultRegistry                    │          │
	│  │  - MustRegister at package init              │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Metric Categories                  │          │
	│  │                                              │          │
	│  │  Pool: acquired sessions                     │          │
	│  │  HTTP: request count, duration               │          │
	│  │  Backoff: state, attempts, retries           │          │
	│  │  Router: events routed, events dropped       │          │
	│  │  IPC: commands in, messages out              │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          HTTP Metrics Endpoint               │          │
	│  │  - Path: /metrics                            │          │
	│  │  - Handler: promhttp.Handler()               │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Metrics Catalog

igniteclient_pool_acquired_sessions:
  - Type: Gauge
  - Description: HTTP sessions currently checked out of the session pool

igniteclient_http_requests_total{method, code}:
  - Type: Counter
  - Description: Requests issued through the session pool, by method and
    taxonomy code

igniteclient_http_request_duration_seconds{method}:
  - Type: Histogram
  - Description: Request duration, by method
  - Buckets: prometheus.DefBuckets

igniteclient_backoff_state{state}:
  - Type: Gauge
  - Description: 1 for the backoff controller's current state, 0 for every
    other known state

igniteclient_backoff_attempts:
  - Type: Gauge
  - Description: Attempt count within the controller's current state

igniteclient_backoff_retries_total:
  - Type: Counter
  - Description: Total activation/auth retries scheduled

igniteclient_events_routed_total{domain}:
  - Type: Counter
  - Description: Events that reached at least one domain handler

igniteclient_events_dropped_total{stage}:
  - Type: Counter
  - Description: Events dropped by a transport pipeline stage

igniteclient_ipc_commands_total{kind}:
  - Type: Counter
  - Description: Commands received on the IPC ingress channel

igniteclient_ipc_messages_total{kind}:
  - Type: Counter
  - Description: Messages sent on the IPC egress channel

# Usage

	timer := metrics.NewTimer()
	resp := req.Execute()
	metrics.HTTPRequestDuration.WithLabelValues("POST").Observe(timer.Duration().Seconds())
	metrics.HTTPRequestsTotal.WithLabelValues("POST", taxonomyCode(resp)).Inc()

	metrics.SetBackoffState(controller.Kind().String(), knownStateNames)

# Integration Points

This package integrates with:

  - pkg/httpclient: pool occupancy and request latency/count
  - pkg/backoff: controller state and retry counts
  - pkg/event: routed and dropped event counts
  - pkg/ipc: IPC command/message counts
  - Prometheus: scrapes /metrics

# Design Patterns

Package Init Registration:
  - All metrics registered in init()
  - MustRegister panics on duplicate registration

Label Discipline:
  - WithLabelValues for cardinality-bounded labels only (method, state,
    domain, kind) — never device IDs or timestamps

Timer Pattern:
  - NewTimer at operation start, ObserveDuration/ObserveDurationVec at
    completion; Duration() for callers that need the raw elapsed time
    instead of a histogram observation

# See Also

  - Prometheus documentation: https://prometheus.io/docs/
  - Prometheus client library: https://github.com/prometheus/client_golang
*/
package metrics
