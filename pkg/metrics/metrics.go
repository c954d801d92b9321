// Package metrics provides the centralized Prometheus metrics registry for
// the Bubble data client. All metrics are defined in their respective packages
// (bubble, cache, ratelimit) to maintain modularity and avoid circular
// dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the Bubble data client.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Request Metrics (pkg/bubble):
//   - bubble_requests_total{endpoint, status} (Counter): Total requests by endpoint and HTTP status
//   - bubble_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - bubble_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//
// Retry Metrics (pkg/bubble):
//   - bubble_retries_total{error_class} (Counter): Retry attempts by error class
//   - bubble_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - bubble_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//
// Rate Limit Metrics (pkg/ratelimit):
//   - bubble_rate_limit_throttles_total (Counter): Requests delayed by local pacing
//   - bubble_rate_limit_cooldowns_total (Counter): Cooldowns triggered by 429 responses
//   - bubble_rate_limit_cooldown_seconds (Histogram): Cooldown duration from Retry-After
//
// Full-Fetch Metrics (pkg/pagination):
//   - bubble_fetch_pages_total (Counter): Pages fetched by full-fetch runs
//   - bubble_fetch_records_total (Counter): Records delivered by full-fetch runs
//
// Cache Metrics (pkg/cache):
//   - bubble_cache_hits_total{layer="redis"} (Counter): Cache hits by layer
//   - bubble_cache_misses_total (Counter): Cache misses
//   - bubble_cache_size_bytes{layer="redis"} (Gauge): Current cache size in bytes
//   - bubble_cache_errors_total{operation} (Counter): Cache operation errors
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(bubble_cache_hits_total[5m])) /
//   (sum(rate(bubble_cache_hits_total[5m])) + sum(rate(bubble_cache_misses_total[5m])))
//
//   # Request Error Rate
//   rate(bubble_errors_total[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(bubble_request_duration_seconds_bucket[5m]))
//
//   # Time Spent in Rate-Limit Cooldown
//   rate(bubble_rate_limit_cooldown_seconds_sum[5m])
