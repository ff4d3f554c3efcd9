package report

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/shop-insights/pkg/shopify"
)

// fakeStore serves orders, costs and tags from memory and records lookups.
type fakeStore struct {
	mu sync.Mutex

	orders    []shopify.Order
	ordersErr error

	costs        map[int64]string
	inventoryErr error
	batches      [][]int64

	tags         map[int64]string
	productErrs  map[int64]error
	productCalls []int64
}

func newFakeStore(orders ...shopify.Order) *fakeStore {
	return &fakeStore{
		orders:      orders,
		costs:       make(map[int64]string),
		tags:        make(map[int64]string),
		productErrs: make(map[int64]error),
	}
}

func (f *fakeStore) ListOrders(ctx context.Context, createdMin, createdMax time.Time) ([]shopify.Order, error) {
	if f.ordersErr != nil {
		return nil, f.ordersErr
	}
	return f.orders, nil
}

func (f *fakeStore) InventoryItems(ctx context.Context, ids []int64) ([]shopify.InventoryItem, error) {
	f.mu.Lock()
	f.batches = append(f.batches, append([]int64(nil), ids...))
	f.mu.Unlock()

	if len(ids) > shopify.MaxInventoryItemIDs {
		return nil, shopify.ErrTooManyIDs
	}
	if f.inventoryErr != nil {
		return nil, f.inventoryErr
	}

	var items []shopify.InventoryItem
	for _, id := range ids {
		if cost, ok := f.costs[id]; ok {
			items = append(items, shopify.InventoryItem{ID: id, Cost: shopify.NewAmount(cost)})
		}
	}
	return items, nil
}

func (f *fakeStore) Product(ctx context.Context, id int64) (*shopify.Product, error) {
	f.mu.Lock()
	f.productCalls = append(f.productCalls, id)
	f.mu.Unlock()

	if err, ok := f.productErrs[id]; ok {
		return nil, err
	}
	tags, ok := f.tags[id]
	if !ok {
		return nil, &shopify.APIError{StatusCode: 404, ErrorClass: shopify.ErrorClassClient, Message: "404 Not Found"}
	}
	return &shopify.Product{ID: id, Title: fmt.Sprintf("Product %d", id), Tags: tags}, nil
}

func (f *fakeStore) inventoryBatches() [][]int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.batches
}

var errUpstream = errors.New("upstream unavailable")

func ptr(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}

func lineItem(productID, variantID, inventoryItemID int64, quantity int, price string) shopify.LineItem {
	return shopify.LineItem{
		ProductID:       ptr(productID),
		VariantID:       ptr(variantID),
		InventoryItemID: ptr(inventoryItemID),
		Title:           fmt.Sprintf("Product %d", productID),
		VariantTitle:    fmt.Sprintf("Variant %d", variantID),
		Quantity:        quantity,
		Price:           shopify.NewAmount(price),
	}
}

func order(id int64, subtotal string, items ...shopify.LineItem) shopify.Order {
	return shopify.Order{
		ID:            id,
		SubtotalPrice: shopify.NewAmount(subtotal),
		LineItems:     items,
	}
}
