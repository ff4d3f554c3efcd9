// Package shopify provides the Admin REST API client used by the reports:
// authentication header, client-side pacing, call-limit tracking, retries
// with backoff and the endpoints the aggregations read from.
package shopify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/Sternrassler/shop-insights/pkg/logging"
	"github.com/Sternrassler/shop-insights/pkg/pagination"
	"github.com/Sternrassler/shop-insights/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Prometheus metrics for Admin API client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shopify_requests_total",
		Help: "Total Admin API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "shopify_request_duration_seconds",
		Help:    "Admin API request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shopify_errors_total",
		Help: "Total Admin API errors by class",
	}, []string{"class"})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shopify_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "shopify_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shopify_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// HeaderAccessToken carries the Admin API access token.
const HeaderAccessToken = "X-Shopify-Access-Token"

// maxErrorBody bounds how much of an error response is kept for logging.
const maxErrorBody = 4 << 10

// Client is the Admin API client.
type Client struct {
	httpClient  *http.Client
	baseURL     *url.URL
	limiter     *rate.Limiter
	rateLimiter *ratelimit.Tracker
	config      Config
	logger      zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// StoreURL is the store domain ("my-shop.myshopify.com") or a full base URL
	// including scheme.
	StoreURL string

	// APIVersion is the Admin API version, e.g. "2024-01".
	APIVersion string

	// AccessToken is sent as X-Shopify-Access-Token.
	AccessToken string

	// UserAgent header
	UserAgent string

	// Redis shares call-limit state between processes (optional)
	Redis *redis.Client

	// Pacing
	RateLimit float64 // Requests per second
	Burst     int

	// Concurrency for independent lookups
	MaxConcurrency int

	// Retry
	MaxAttempts int         // overrides the per-class attempt count when > 0
	RetryPolicy RetryPolicy // defaults to RetryConfigForErrorClass

	// RequestTimeout bounds every single HTTP attempt
	RequestTimeout time.Duration

	// PageSize is the limit used for paginated collections (max 250)
	PageSize int
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(storeURL, apiVersion, accessToken string) Config {
	return Config{
		StoreURL:       storeURL,
		APIVersion:     apiVersion,
		AccessToken:    accessToken,
		UserAgent:      "shop-insights/1.0",
		RateLimit:      2,
		Burst:          4,
		MaxConcurrency: 4,
		RequestTimeout: 30 * time.Second,
		PageSize:       250,
	}
}

// New creates a new Admin API client.
func New(cfg Config) (*Client, error) {
	if cfg.StoreURL == "" {
		return nil, fmt.Errorf("store url is required")
	}

	if cfg.APIVersion == "" {
		return nil, fmt.Errorf("api version is required")
	}

	if cfg.AccessToken == "" {
		return nil, fmt.Errorf("access token is required")
	}

	if cfg.PageSize < 1 || cfg.PageSize > 250 {
		return nil, fmt.Errorf("page_size must be between 1 and 250 (got %d)", cfg.PageSize)
	}

	base, err := baseURL(cfg.StoreURL, cfg.APIVersion)
	if err != nil {
		return nil, err
	}

	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 2
	}
	if cfg.Burst <= 0 {
		cfg.Burst = max(1, int(cfg.RateLimit))
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 4
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.RetryPolicy == nil {
		cfg.RetryPolicy = RetryConfigForErrorClass
	}
	if cfg.MaxAttempts > 0 {
		inner := cfg.RetryPolicy
		attempts := cfg.MaxAttempts
		cfg.RetryPolicy = func(class ErrorClass) RetryConfig {
			rc := inner(class)
			rc.MaxAttempts = attempts
			return rc
		}
	}

	logger := logging.NewLogger(logging.ComponentShopify).With().Str("store", base.Host).Logger()
	trackerLogger := logging.NewLogger(logging.ComponentRateLimit).With().Str("store", base.Host).Logger()

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		baseURL:     base,
		limiter:     rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		rateLimiter: ratelimit.NewTracker(cfg.Redis, base.Host, trackerLogger),
		config:      cfg,
		logger:      logger,
	}, nil
}

func baseURL(store, version string) (*url.URL, error) {
	raw := strings.TrimRight(store, "/")
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse store url: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("store url %q has no host", store)
	}

	u.Path = "/admin/api/" + version
	return u, nil
}

// URL returns the absolute URL of an Admin API resource path such as "/orders.json".
func (c *Client) URL(path string) string {
	u := *c.baseURL
	u.Path = u.Path + "/" + strings.TrimLeft(path, "/")
	return u.String()
}

// Do performs an HTTP request with pacing, call-limit tracking and retries.
// Any non-2xx response after retries is returned as an *APIError.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	endpoint := endpointLabel(req.URL.Path)

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	req.Header.Set(HeaderAccessToken, c.config.AccessToken)
	req.Header.Set("Accept", "application/json")
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("method", req.Method).
		Msg("Executing Admin API request")

	var resp *http.Response

	retryErr := retryWithBackoff(ctx, c.config.RetryPolicy, func() error {
		resp = nil

		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: %w", errNotSent, err)
		}
		if err := c.rateLimiter.Acquire(ctx); err != nil {
			return fmt.Errorf("%w: %w", errNotSent, err)
		}

		r, err := c.httpClient.Do(req)
		if err != nil {
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("HTTP request failed")
			errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
			return err
		}

		if err := c.rateLimiter.UpdateFromHeaders(ctx, r.Header); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to update call limit from headers")
		}

		requestsTotal.WithLabelValues(endpoint, fmt.Sprintf("%d", r.StatusCode)).Inc()

		if r.StatusCode >= 400 {
			apiErr := c.responseError(r)
			errorsTotal.WithLabelValues(string(apiErr.ErrorClass)).Inc()

			c.logger.Warn().
				Str("endpoint", endpoint).
				Int("status_code", r.StatusCode).
				Str("error_class", string(apiErr.ErrorClass)).
				Str("body", apiErr.Body).
				Msg("Admin API request error")
			return apiErr
		}

		resp = r
		return nil
	}, func(err error) ErrorClass {
		if ctx.Err() != nil {
			// the caller gave up; retrying cannot help
			return ""
		}
		return c.classifyError(err)
	})

	if retryErr != nil {
		return nil, retryErr
	}

	return resp, nil
}

// responseError drains and closes an error response.
func (c *Client) responseError(resp *http.Response) *APIError {
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		ErrorClass: ClassifyStatus(resp.StatusCode),
		Message:    resp.Status,
		Body:       string(body),
	}
	if v := resp.Header.Get(ratelimit.HeaderRetryAfter); v != "" {
		if wait, err := ratelimit.ParseRetryAfter(v); err == nil {
			apiErr.RetryAfter = wait
		}
	}

	return apiErr
}

// classifyError categorizes an error for observability and retry handling.
func (c *Client) classifyError(err error) ErrorClass {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorClass
	}
	if errors.Is(err, errNotSent) {
		return ""
	}
	return ErrorClassNetwork
}

// FetchPage implements pagination.PageFetcher.
// params are encoded into the query only when non-nil; cursor URLs are sent verbatim.
func (c *Client) FetchPage(ctx context.Context, rawURL string, params url.Values) ([]byte, http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}
	if params != nil {
		req.URL.RawQuery = params.Encode()
	}

	resp, err := c.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read response body: %w", err)
	}

	return body, resp.Header, nil
}

// Get performs a GET request to an Admin API resource path.
func (c *Client) Get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	body, _, err := c.FetchPage(ctx, c.URL(path), params)
	return body, err
}

// CursorConfig returns the cursor walk configuration derived from the client config.
func (c *Client) CursorConfig() pagination.CursorConfig {
	cfg := pagination.DefaultCursorConfig()
	cfg.Timeout = 0 // each attempt is bounded by RequestTimeout; retries need room
	return cfg
}

// MaxConcurrency returns the configured lookup concurrency.
func (c *Client) MaxConcurrency() int {
	return c.config.MaxConcurrency
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// RateLimiter returns the call-limit tracker (for testing).
func (c *Client) RateLimiter() *ratelimit.Tracker {
	return c.rateLimiter
}

var numericSegment = regexp.MustCompile(`/\d+(\.json)?`)

// endpointLabel collapses numeric ids so metric labels stay bounded.
func endpointLabel(path string) string {
	if i := strings.Index(path, "/admin/api/"); i >= 0 {
		rest := path[i+len("/admin/api/"):]
		if j := strings.Index(rest, "/"); j >= 0 {
			path = rest[j:]
		}
	}
	return numericSegment.ReplaceAllString(path, "/{id}$1")
}
