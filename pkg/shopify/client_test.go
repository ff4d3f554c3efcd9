package shopify

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/shop-insights/internal/testutil"
)

// fastRetry keeps retry tests quick.
func fastRetry(ErrorClass) RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func newTestClient(t *testing.T, mock *testutil.MockShop) *Client {
	t.Helper()

	cfg := DefaultConfig(mock.URL(), testutil.APIVersion, "shpat_test")
	cfg.RateLimit = 1000
	cfg.Burst = 100
	cfg.RetryPolicy = fastRetry

	client, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })

	return client
}

func TestNew_Validation(t *testing.T) {
	valid := DefaultConfig("test-shop.myshopify.com", "2024-01", "shpat_x")

	tests := []struct {
		name     string
		mutate   func(*Config)
		errorMsg string
	}{
		{
			name:   "valid config",
			mutate: func(*Config) {},
		},
		{
			name:     "missing store url",
			mutate:   func(c *Config) { c.StoreURL = "" },
			errorMsg: "store url is required",
		},
		{
			name:     "missing api version",
			mutate:   func(c *Config) { c.APIVersion = "" },
			errorMsg: "api version is required",
		},
		{
			name:     "missing token",
			mutate:   func(c *Config) { c.AccessToken = "" },
			errorMsg: "access token is required",
		},
		{
			name:     "page size too large",
			mutate:   func(c *Config) { c.PageSize = 251 },
			errorMsg: "page_size must be between 1 and 250 (got 251)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)

			client, err := New(cfg)
			if tt.errorMsg != "" {
				if err == nil {
					t.Fatal("Expected error but got nil")
				}
				if err.Error() != tt.errorMsg {
					t.Errorf("Error message = %q, want %q", err.Error(), tt.errorMsg)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if client == nil {
				t.Error("Client is nil")
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("shop.myshopify.com", "2024-01", "token")

	if cfg.PageSize != 250 {
		t.Errorf("PageSize = %d, want 250", cfg.PageSize)
	}
	if cfg.RateLimit <= 0 {
		t.Errorf("RateLimit = %v, should be > 0", cfg.RateLimit)
	}
	if cfg.MaxConcurrency <= 0 {
		t.Errorf("MaxConcurrency = %d, should be > 0", cfg.MaxConcurrency)
	}
	if cfg.RequestTimeout <= 0 {
		t.Errorf("RequestTimeout = %v, should be > 0", cfg.RequestTimeout)
	}
}

func TestClient_URL(t *testing.T) {
	tests := []struct {
		store    string
		path     string
		expected string
	}{
		{"test-shop.myshopify.com", "/orders.json", "https://test-shop.myshopify.com/admin/api/2024-01/orders.json"},
		{"https://test-shop.myshopify.com/", "products/1.json", "https://test-shop.myshopify.com/admin/api/2024-01/products/1.json"},
		{"http://127.0.0.1:8080", "/inventory_items.json", "http://127.0.0.1:8080/admin/api/2024-01/inventory_items.json"},
	}

	for _, tt := range tests {
		t.Run(tt.store, func(t *testing.T) {
			client, err := New(DefaultConfig(tt.store, "2024-01", "token"))
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if got := client.URL(tt.path); got != tt.expected {
				t.Errorf("URL(%q) = %q, want %q", tt.path, got, tt.expected)
			}
		})
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		statusCode int
		expected   ErrorClass
	}{
		{200, ""},
		{304, ""},
		{400, ErrorClassClient},
		{401, ErrorClassClient},
		{404, ErrorClassClient},
		{422, ErrorClassClient},
		{429, ErrorClassRateLimit},
		{500, ErrorClassServer},
		{503, ErrorClassServer},
	}

	for _, tt := range tests {
		if got := ClassifyStatus(tt.statusCode); got != tt.expected {
			t.Errorf("ClassifyStatus(%d) = %q, want %q", tt.statusCode, got, tt.expected)
		}
	}
}

func TestDo_SetsHeaders(t *testing.T) {
	mock := testutil.NewMockShop()
	defer mock.Close()
	mock.SetProduct(1, "New")

	client := newTestClient(t, mock)

	if _, err := client.Product(context.Background(), 1); err != nil {
		t.Fatalf("Product() error = %v", err)
	}

	reqs := mock.Requests()
	if len(reqs) != 1 {
		t.Fatalf("requests = %d, want 1", len(reqs))
	}
	if got := reqs[0].Header.Get(HeaderAccessToken); got != "shpat_test" {
		t.Errorf("%s = %q, want shpat_test", HeaderAccessToken, got)
	}
	if got := reqs[0].Header.Get("Accept"); got != "application/json" {
		t.Errorf("Accept = %q, want application/json", got)
	}
	if got := reqs[0].Header.Get("User-Agent"); got == "" {
		t.Error("User-Agent should be set")
	}
}

func TestDo_RetriesServerErrors(t *testing.T) {
	mock := testutil.NewMockShop()
	defer mock.Close()

	mock.SetHandler(mock.Path("products/7.json"), testutil.Sequence(
		testutil.NewServerErrorResponse(),
		testutil.NewHealthyResponse(`{"product":{"id":7,"tags":"Sale"}}`),
	))

	client := newTestClient(t, mock)

	product, err := client.Product(context.Background(), 7)
	if err != nil {
		t.Fatalf("Product() error = %v", err)
	}
	if product.Tags != "Sale" {
		t.Errorf("Tags = %q, want Sale", product.Tags)
	}
	if n := mock.GetRequestCount(); n != 2 {
		t.Errorf("requests = %d, want 2", n)
	}
}

func TestDo_DoesNotRetryClientErrors(t *testing.T) {
	mock := testutil.NewMockShop()
	defer mock.Close()
	mock.FailProduct(3, http.StatusNotFound)

	client := newTestClient(t, mock)

	_, err := client.Product(context.Background(), 3)
	if err == nil {
		t.Fatal("Expected error for 404")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error %v is not an *APIError", err)
	}
	if apiErr.StatusCode != http.StatusNotFound || apiErr.ErrorClass != ErrorClassClient {
		t.Errorf("APIError = %d/%s, want 404/client", apiErr.StatusCode, apiErr.ErrorClass)
	}
	if !strings.Contains(apiErr.Body, "Not Found") {
		t.Errorf("Body = %q, want the response body", apiErr.Body)
	}
	if n := mock.GetRequestCount(); n != 1 {
		t.Errorf("requests = %d, want 1 (no retry)", n)
	}
}

func TestDo_RetriesThrottlingWithRetryAfter(t *testing.T) {
	mock := testutil.NewMockShop()
	defer mock.Close()

	mock.SetHandler(mock.Path("products/9.json"), testutil.Sequence(
		testutil.NewRateLimitResponse("0.05"),
		testutil.NewHealthyResponse(`{"product":{"id":9,"tags":"Summer"}}`),
	))

	client := newTestClient(t, mock)

	start := time.Now()
	if _, err := client.Product(context.Background(), 9); err != nil {
		t.Fatalf("Product() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("retry after %v, want at least Retry-After (50ms)", elapsed)
	}
	if n := mock.GetRequestCount(); n != 2 {
		t.Errorf("requests = %d, want 2", n)
	}
}

func TestDo_RetryExhausted(t *testing.T) {
	mock := testutil.NewMockShop()
	defer mock.Close()
	mock.SetResponse(mock.Path("products/5.json"), testutil.NewServerErrorResponse())

	client := newTestClient(t, mock)

	_, err := client.Product(context.Background(), 5)
	if !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("error = %v, want ErrRetryExhausted", err)
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("exhausted error should still wrap the last *APIError, got %v", err)
	}
	if n := mock.GetRequestCount(); n != 3 {
		t.Errorf("requests = %d, want 3", n)
	}
}

func TestDo_UpdatesCallLimit(t *testing.T) {
	mock := testutil.NewMockShop()
	defer mock.Close()

	mock.SetResponse(mock.Path("products/2.json"), testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"product":{"id":2,"tags":""}}`,
		Headers:    map[string]string{"X-Shopify-Shop-Api-Call-Limit": "33/40"},
	})

	client := newTestClient(t, mock)

	if _, err := client.Product(context.Background(), 2); err != nil {
		t.Fatalf("Product() error = %v", err)
	}

	state, err := client.RateLimiter().GetState(context.Background())
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if state.CallsUsed != 33 || state.CallsMax != 40 {
		t.Errorf("call limit = %d/%d, want 33/40", state.CallsUsed, state.CallsMax)
	}
}

func TestDo_LogsWithComponentNames(t *testing.T) {
	var buf bytes.Buffer
	previous := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = previous })

	mock := testutil.NewMockShop()
	defer mock.Close()
	mock.SetResponse(mock.Path("products/3.json"), testutil.MockResponse{
		StatusCode: http.StatusNotFound,
		Body:       `{"errors":"Not Found"}`,
		Headers:    map[string]string{"X-Shopify-Shop-Api-Call-Limit": "40/40"},
	})

	client := newTestClient(t, mock)

	if _, err := client.Product(context.Background(), 3); err == nil {
		t.Fatal("Expected error for 404")
	}

	output := buf.String()
	for _, want := range []string{`"component":"shopify-client"`, `"component":"ratelimit"`} {
		if !strings.Contains(output, want) {
			t.Errorf("log output missing %s:\n%s", want, output)
		}
	}
}

func TestDo_ContextCancelled(t *testing.T) {
	mock := testutil.NewMockShop()
	defer mock.Close()
	mock.SetResponse(mock.Path("products/4.json"), testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"product":{"id":4}}`,
		Delay:      200 * time.Millisecond,
	})

	client := newTestClient(t, mock)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := client.Product(ctx, 4); err == nil {
		t.Fatal("Expected error for cancelled context")
	}
	if n := mock.GetRequestCount(); n != 1 {
		t.Errorf("requests = %d, want 1 (cancelled requests are not retried)", n)
	}
}

func TestEndpointLabel(t *testing.T) {
	tests := []struct {
		path     string
		expected string
	}{
		{"/admin/api/2024-01/orders.json", "/orders.json"},
		{"/admin/api/2024-01/products/123456.json", "/products/{id}.json"},
		{"/admin/api/2024-01/inventory_items.json", "/inventory_items.json"},
		{"/other/42", "/other/{id}"},
	}

	for _, tt := range tests {
		if got := endpointLabel(tt.path); got != tt.expected {
			t.Errorf("endpointLabel(%q) = %q, want %q", tt.path, got, tt.expected)
		}
	}
}
