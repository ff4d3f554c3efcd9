package shopify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/Sternrassler/shop-insights/pkg/pagination"
)

// ListOrders returns every order created within [createdMin, createdMax],
// any status, walking all pages.
func (c *Client) ListOrders(ctx context.Context, createdMin, createdMax time.Time) ([]Order, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(c.config.PageSize))
	params.Set("created_at_min", createdMin.UTC().Format(time.RFC3339))
	params.Set("created_at_max", createdMax.UTC().Format(time.RFC3339))
	params.Set("status", "any")

	orders, err := pagination.FetchAll(ctx, c, c.URL("/orders.json"), params, decodeOrders, c.CursorConfig())
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	return orders, nil
}

func decodeOrders(body []byte) ([]Order, error) {
	var payload struct {
		Orders []Order `json:"orders"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	return payload.Orders, nil
}
