// Package metrics provides the Prometheus registry and /metrics handler for
// shop-insights. All metrics are defined in their respective packages
// (shopify, ratelimit, pagination, report) with promauto, so importing a
// package registers its metrics.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by all packages.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer matching Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler returns the HTTP handler exposing every registered metric.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Request Metrics (pkg/shopify):
//   - shopify_requests_total{endpoint, status} (Counter): Admin API requests by endpoint and HTTP status
//   - shopify_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - shopify_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//
// Retry Metrics (pkg/shopify):
//   - shopify_retries_total{error_class} (Counter): Retry attempts by error class
//   - shopify_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - shopify_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//
// Rate Limit Metrics (pkg/ratelimit):
//   - shopify_call_limit_used (Gauge): Calls in the leaky bucket after the last response
//   - shopify_call_limit_max (Gauge): Bucket size reported by the shop
//   - shopify_rate_limit_waits_total (Counter): Requests held back until the bucket drained
//   - shopify_rate_limit_throttles_total (Counter): Requests delayed because the bucket was nearly full
//
// Pagination Metrics (pkg/pagination):
//   - shopify_pagination_pages_total (Counter): Pages fetched while walking cursors
//
// Report Metrics (pkg/report):
//   - shop_report_duration_seconds{report} (Histogram): Time to build a report including remote calls
//   - shop_report_lookup_failures_total{kind} (Counter): Enrichment lookups that failed (product, inventory)
//
// Example Prometheus Queries:
//
//   # Bucket fill level
//   shopify_call_limit_used / shopify_call_limit_max
//
//   # Throttled request rate
//   rate(shopify_errors_total{class="rate_limit"}[5m])
//
//   # P95 report latency
//   histogram_quantile(0.95, rate(shop_report_duration_seconds_bucket[5m]))
//
//   # Products missing from collection reports
//   increase(shop_report_lookup_failures_total{kind="product"}[1h])
