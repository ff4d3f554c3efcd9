package shopify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// MaxInventoryItemIDs is the largest id list the inventory_items endpoint accepts.
const MaxInventoryItemIDs = 100

// InventoryItems fetches the inventory items with the given ids.
// At most MaxInventoryItemIDs ids may be passed; callers batch larger sets.
func (c *Client) InventoryItems(ctx context.Context, ids []int64) ([]InventoryItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if len(ids) > MaxInventoryItemIDs {
		return nil, fmt.Errorf("%w: %d inventory item ids (max %d)", ErrTooManyIDs, len(ids), MaxInventoryItemIDs)
	}

	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}

	params := url.Values{}
	params.Set("ids", strings.Join(parts, ","))
	// the endpoint pages at 50 by default
	params.Set("limit", strconv.Itoa(len(ids)))

	body, err := c.Get(ctx, "/inventory_items.json", params)
	if err != nil {
		return nil, fmt.Errorf("get inventory items: %w", err)
	}

	var payload struct {
		InventoryItems []InventoryItem `json:"inventory_items"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode inventory items: %w", err)
	}

	return payload.InventoryItems, nil
}
