// Package testutil provides testing utilities for the Admin API client and
// the reports built on it.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// APIVersion is the version segment the mock serves under.
const APIVersion = "2024-01"

// MockResponse defines the behavior for a mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// RecordedRequest is a request seen by the mock.
type RecordedRequest struct {
	Path   string
	Query  url.Values
	Header http.Header
}

// MockShop is a configurable mock Admin API server for testing.
type MockShop struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	orderPages     [][]map[string]any
	products       map[int64]string
	productErrors  map[int64]int
	inventoryCosts map[int64]string

	requests []RecordedRequest
}

// NewMockShop creates a new mock Admin API server.
func NewMockShop() *MockShop {
	mock := &MockShop{
		handlers:       make(map[string]func(w http.ResponseWriter, r *http.Request)),
		products:       make(map[int64]string),
		productErrors:  make(map[int64]int),
		inventoryCosts: make(map[int64]string),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.requests = append(mock.requests, RecordedRequest{
			Path:   r.URL.Path,
			Query:  r.URL.Query(),
			Header: r.Header.Clone(),
		})
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}

		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL (usable as store URL).
func (m *MockShop) URL() string {
	return m.server.URL
}

// Path returns the full request path of an Admin API resource.
func (m *MockShop) Path(resource string) string {
	return "/admin/api/" + APIVersion + "/" + strings.TrimLeft(resource, "/")
}

// Close shuts down the mock server.
func (m *MockShop) Close() {
	m.server.Close()
}

// SetHandler sets a custom handler for a specific path, overriding the
// built-in orders/products/inventory behavior.
func (m *MockShop) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockShop) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// SetOrderPages configures the orders collection. Each element is one page;
// pages are linked with page_info cursors.
func (m *MockShop) SetOrderPages(pages ...[]map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orderPages = pages
}

// SetProduct registers a product and its comma-joined tags.
func (m *MockShop) SetProduct(id int64, tags string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[id] = tags
}

// FailProduct makes lookups of product id answer with status.
func (m *MockShop) FailProduct(id int64, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.productErrors[id] = status
}

// SetInventoryCost registers the unit cost of an inventory item.
func (m *MockShop) SetInventoryCost(id int64, cost string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inventoryCosts[id] = cost
}

// Requests returns a copy of all recorded requests.
func (m *MockShop) Requests() []RecordedRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RecordedRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// RequestsTo returns the recorded requests for one resource, e.g. "orders.json".
func (m *MockShop) RequestsTo(resource string) []RecordedRequest {
	path := m.Path(resource)
	var out []RecordedRequest
	for _, r := range m.Requests() {
		if r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockShop) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.requests)
}

// defaultHandler serves orders, products and inventory items.
func (m *MockShop) defaultHandler(w http.ResponseWriter, r *http.Request) {
	setDefaultHeaders(w)

	switch {
	case r.URL.Path == m.Path("orders.json"):
		m.serveOrders(w, r)
	case r.URL.Path == m.Path("inventory_items.json"):
		m.serveInventory(w, r)
	case strings.HasPrefix(r.URL.Path, m.Path("products/")):
		m.serveProduct(w, r)
	default:
		writeJSON(w, http.StatusNotFound, map[string]any{"errors": "Not Found"})
	}
}

func (m *MockShop) serveOrders(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	pages := m.orderPages
	m.mu.RUnlock()

	page := 0
	if info := r.URL.Query().Get("page_info"); info != "" {
		n, err := strconv.Atoi(info)
		if err != nil || n < 0 || n >= len(pages) {
			writeJSON(w, http.StatusBadRequest, map[string]any{"errors": "invalid page_info"})
			return
		}
		page = n
	}

	records := []map[string]any{}
	if page < len(pages) && pages[page] != nil {
		records = pages[page]
	}

	if page+1 < len(pages) {
		next := fmt.Sprintf("%s%s?limit=250&page_info=%d", m.server.URL, m.Path("orders.json"), page+1)
		w.Header().Set("Link", fmt.Sprintf(`<%s>; rel="next"`, next))
	}

	writeJSON(w, http.StatusOK, map[string]any{"orders": records})
}

func (m *MockShop) serveProduct(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, m.Path("products/")), ".json")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"errors": "Not Found"})
		return
	}

	m.mu.RLock()
	status, failing := m.productErrors[id]
	tags, known := m.products[id]
	m.mu.RUnlock()

	if failing {
		writeJSON(w, status, map[string]any{"errors": http.StatusText(status)})
		return
	}
	if !known {
		writeJSON(w, http.StatusNotFound, map[string]any{"errors": "Not Found"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"product": map[string]any{"id": id, "title": fmt.Sprintf("Product %d", id), "tags": tags},
	})
}

func (m *MockShop) serveInventory(w http.ResponseWriter, r *http.Request) {
	var ids []int64
	for _, raw := range strings.Split(r.URL.Query().Get("ids"), ",") {
		if id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	if len(ids) > 100 {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"errors": "too many ids"})
		return
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	m.mu.RLock()
	items := []map[string]any{}
	for _, id := range ids {
		if cost, ok := m.inventoryCosts[id]; ok {
			items = append(items, map[string]any{"id": id, "cost": cost})
		}
	}
	m.mu.RUnlock()

	writeJSON(w, http.StatusOK, map[string]any{"inventory_items": items})
}

func setDefaultHeaders(w http.ResponseWriter) {
	w.Header().Set("X-Shopify-Shop-Api-Call-Limit", "1/40")
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// LineItem builds a line item fixture. A zero productID or inventoryItemID
// is sent as null.
func LineItem(productID, variantID, inventoryItemID int64, title string, quantity int, price string) map[string]any {
	item := map[string]any{
		"product_id":        nullableID(productID),
		"variant_id":        nullableID(variantID),
		"inventory_item_id": nullableID(inventoryItemID),
		"title":             title,
		"variant_title":     "",
		"quantity":          quantity,
		"price":             price,
	}
	return item
}

// Order builds an order fixture with the given subtotal and line items.
func Order(id int64, subtotal string, items ...map[string]any) map[string]any {
	if items == nil {
		items = []map[string]any{}
	}
	return map[string]any{
		"id":             id,
		"name":           fmt.Sprintf("#%d", 1000+id),
		"created_at":     "2024-01-15T10:00:00Z",
		"subtotal_price": subtotal,
		"line_items":     items,
		"refunds":        []any{},
	}
}

func nullableID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

// NewHealthyResponse creates a standard 200 OK response with call-limit headers.
func NewHealthyResponse(data string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       data,
		Headers: map[string]string{
			"X-Shopify-Shop-Api-Call-Limit": "1/40",
			"Content-Type":                  "application/json; charset=utf-8",
		},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse(retryAfter string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"errors":"Exceeded 2 calls per second for api client. Reduce request rates to resume uninterrupted service."}`,
		Headers: map[string]string{
			"X-Shopify-Shop-Api-Call-Limit": "40/40",
			"Retry-After":                   retryAfter,
			"Content-Type":                  "application/json; charset=utf-8",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"errors":"Internal Server Error"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// Sequence returns a handler that answers with the given responses in turn,
// repeating the last one.
func Sequence(responses ...MockResponse) func(w http.ResponseWriter, r *http.Request) {
	var mu sync.Mutex
	n := 0
	return func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		resp := responses[min(n, len(responses)-1)]
		n++
		mu.Unlock()

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	}
}
