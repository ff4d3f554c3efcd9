package shopify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
)

// Product fetches a single product with its tags.
func (c *Client) Product(ctx context.Context, id int64) (*Product, error) {
	params := url.Values{}
	params.Set("fields", "id,title,tags")

	body, err := c.Get(ctx, fmt.Sprintf("/products/%d.json", id), params)
	if err != nil {
		return nil, fmt.Errorf("get product %d: %w", id, err)
	}

	var payload struct {
		Product *Product `json:"product"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode product %d: %w", id, err)
	}
	if payload.Product == nil {
		return nil, fmt.Errorf("product %d: empty response", id)
	}

	return payload.Product, nil
}
