// Package metrics provides the Prometheus registry, the /metrics handler and
// HTTP server instrumentation for postfeed.
// Component metrics are defined in their respective packages (client, session,
// feed, cache, ratelimit) to maintain modularity and avoid circular dependencies.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by postfeed.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Prometheus metrics for the HTTP API server.
var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "postfeed_http_requests_total",
		Help: "Total HTTP requests served by route and status",
	}, []string{"route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "postfeed_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds by route",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"route"})
)

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request count and duration per route pattern. Requests
// that match no route are reported under "unmatched".
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := routePattern(r)
		httpRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// routePattern keeps label cardinality bounded: /post/{id} instead of the raw path.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - postfeed_requests_total{endpoint, status} (Counter): Total requests by endpoint and HTTP status
//   - postfeed_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - postfeed_errors_total{class} (Counter): Errors by kind (validation, auth, not_found, client, server, network)
//
// Retry Metrics (pkg/client):
//   - postfeed_retries_total{error_class} (Counter): Retry attempts by error kind
//   - postfeed_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error kind
//   - postfeed_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//
// Session Metrics (pkg/session):
//   - postfeed_session_refreshes_total{result} (Counter): Token refreshes started, by outcome
//   - postfeed_session_refresh_waiters_total (Counter): Requests that joined a refresh already in flight
//   - postfeed_session_ended_total (Counter): Sessions destroyed by logout or failed renewal
//   - postfeed_session_auth_retries_total{outcome} (Counter): Requests resent after a 401
//
// Feed Metrics (pkg/feed):
//   - postfeed_feed_fetches_total{result} (Counter): Page fetches by result
//   - postfeed_feed_stale_responses_total (Counter): Page responses discarded after Reset/Close
//   - postfeed_feed_items (Gauge): Items held by the most recently updated feed
//
// Page Cache Metrics (pkg/cache):
//   - postfeed_page_cache_hits_total (Counter): Cache hits
//   - postfeed_page_cache_misses_total (Counter): Cache misses
//   - postfeed_page_cache_size_bytes (Gauge): Bytes written to the page cache since start
//   - postfeed_page_cache_invalidations_total (Counter): Generation bumps after post writes
//   - postfeed_page_cache_errors_total{operation} (Counter): Cache operation errors
//
// Rate Limit Metrics (pkg/ratelimit):
//   - postfeed_auth_rate_limited_total{scope} (Counter): Auth requests rejected with 429
//   - postfeed_auth_rate_limit_errors_total (Counter): Limiter errors (requests allowed)
//
// Server Metrics (pkg/metrics):
//   - postfeed_http_requests_total{route, status} (Counter): Requests served by route pattern
//   - postfeed_http_request_duration_seconds{route} (Histogram): Server-side latency by route
//
// Example Prometheus Queries:
//
//   # Page Cache Hit Rate
//   sum(rate(postfeed_page_cache_hits_total[5m])) /
//   (sum(rate(postfeed_page_cache_hits_total[5m])) + sum(rate(postfeed_page_cache_misses_total[5m])))
//
//   # Refreshes per Ended Session
//   rate(postfeed_session_ended_total[1h]) / rate(postfeed_session_refreshes_total[1h])
//
//   # Client Error Rate
//   rate(postfeed_errors_total[5m])
//
//   # P95 Feed Page Latency (server)
//   histogram_quantile(0.95, rate(postfeed_http_request_duration_seconds_bucket{route="/home"}[5m]))
//
//   # Stale Page Responses
//   rate(postfeed_feed_stale_responses_total[5m])
