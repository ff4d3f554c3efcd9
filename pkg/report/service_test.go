package report

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/shop-insights/pkg/shopify"
)

func newTestService(store Store) *Service {
	return NewService(store, ServiceConfig{MaxConcurrency: 3}, zerolog.Nop())
}

func testRange(t *testing.T) DateRange {
	t.Helper()
	r, err := ParseDateRange("2024-01-01", "2024-01-31")
	require.NoError(t, err)
	return r
}

func TestService_SingleOrderScenario(t *testing.T) {
	store := newFakeStore(order(1, "100.00", lineItem(1, 10, 100, 2, "50.00")))
	store.tags[1] = "New"
	store.costs[100] = "30.00"

	svc := newTestService(store)
	ctx := context.Background()

	collections, err := svc.Collections(ctx, testRange(t))
	require.NoError(t, err)
	require.Len(t, collections, 1)
	assert.Equal(t, "New", collections[0].Title)
	assert.Equal(t, 2, collections[0].TotalSold)
	assertDecimal(t, "100.00", collections[0].TotalRevenue)

	products, err := svc.Products(ctx, testRange(t))
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, int64(10), products[0].VariantID)
	assert.Equal(t, 2, products[0].TotalSold)
	assertDecimal(t, "30", products[0].CostPerUnit)
	assertDecimal(t, "40", products[0].Margin)

	summary, err := svc.Financials(ctx, testRange(t))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TotalOrders)
	assertDecimal(t, "100", summary.TotalSales)
}

func TestService_Products_BatchesInventoryLookups(t *testing.T) {
	var items []shopify.LineItem
	for i := int64(1); i <= 250; i++ {
		items = append(items, lineItem(i, i, 1000+i, 1, "10.00"))
	}
	store := newFakeStore(order(1, "2500.00", items...))
	for i := int64(1); i <= 250; i++ {
		store.costs[1000+i] = fmt.Sprintf("%d.00", i%7)
	}

	products, err := newTestService(store).Products(context.Background(), testRange(t))
	require.NoError(t, err)

	batches := store.inventoryBatches()
	require.Len(t, batches, 3)

	sizes := []int{len(batches[0]), len(batches[1]), len(batches[2])}
	sort.Ints(sizes)
	assert.Equal(t, []int{50, 100, 100}, sizes)

	seen := make(map[int64]bool)
	for _, batch := range batches {
		for _, id := range batch {
			assert.False(t, seen[id], "inventory item %d requested twice", id)
			seen[id] = true
		}
	}
	assert.Len(t, seen, 250)

	require.Len(t, products, 250)
	for i, p := range products {
		variant := int64(i + 1)
		assert.Equal(t, variant, p.VariantID, "output keeps first-seen variant order")
		assertDecimal(t, fmt.Sprintf("%d", variant%7), p.CostPerUnit, "variant %d", variant)
	}
}

func TestService_Products_FailedBatchIsFatal(t *testing.T) {
	store := newFakeStore(order(1, "10.00", lineItem(1, 10, 100, 1, "10.00")))
	store.inventoryErr = errUpstream

	products, err := newTestService(store).Products(context.Background(), testRange(t))

	require.Error(t, err)
	assert.ErrorIs(t, err, errUpstream)
	assert.Contains(t, err.Error(), "inventory cost batch")
	assert.Nil(t, products)
}

func TestService_Products_NoInventoryItems(t *testing.T) {
	custom := shopify.LineItem{Title: "Custom", Quantity: 2, Price: shopify.NewAmount("4.50")}
	store := newFakeStore(order(1, "9.00", custom))

	products, err := newTestService(store).Products(context.Background(), testRange(t))
	require.NoError(t, err)

	assert.Empty(t, store.inventoryBatches())
	require.Len(t, products, 1)
	assert.Equal(t, int64(0), products[0].VariantID)
	assertDecimal(t, "9", products[0].Margin)
}

func TestService_Collections_TagsCreditFully(t *testing.T) {
	store := newFakeStore(order(1, "80.00", lineItem(7, 70, 0, 2, "40.00")))
	store.tags[7] = "Summer, Sale"

	collections, err := newTestService(store).Collections(context.Background(), testRange(t))
	require.NoError(t, err)

	require.Len(t, collections, 2)
	for _, c := range collections {
		assert.Equal(t, 2, c.TotalSold, c.Title)
		assertDecimal(t, "80", c.TotalRevenue, c.Title)
	}
	assert.Equal(t, "Summer", collections[0].Title)
	assert.Equal(t, "Sale", collections[1].Title)
}

func TestService_Collections_FailedProductIsAbsorbed(t *testing.T) {
	store := newFakeStore(
		order(1, "0", lineItem(1, 10, 0, 1, "20.00")),
		order(2, "0", lineItem(2, 20, 0, 4, "15.00")),
	)
	store.tags[1] = "New"
	store.tags[2] = "New, Clearance"
	store.productErrs[2] = &shopify.APIError{StatusCode: 500, ErrorClass: shopify.ErrorClassServer, Message: "500"}

	collections, err := newTestService(store).Collections(context.Background(), testRange(t))
	require.NoError(t, err)

	require.Len(t, collections, 1)
	assert.Equal(t, "New", collections[0].Title)
	assert.Equal(t, 1, collections[0].TotalSold)
	assertDecimal(t, "20", collections[0].TotalRevenue)
}

func TestService_Collections_EveryProductLookedUpOnce(t *testing.T) {
	store := newFakeStore(
		order(1, "0", lineItem(1, 10, 0, 1, "1"), lineItem(2, 20, 0, 1, "1")),
		order(2, "0", lineItem(1, 11, 0, 1, "1"), lineItem(3, 30, 0, 1, "1")),
	)
	store.tags[1] = "A"
	store.tags[2] = "B"
	store.tags[3] = "C"

	_, err := newTestService(store).Collections(context.Background(), testRange(t))
	require.NoError(t, err)

	calls := append([]int64(nil), store.productCalls...)
	sort.Slice(calls, func(i, j int) bool { return calls[i] < calls[j] })
	assert.Equal(t, []int64{1, 2, 3}, calls)
}

func TestService_FetchFailureIsFatal(t *testing.T) {
	store := newFakeStore()
	store.ordersErr = errUpstream
	svc := newTestService(store)
	ctx := context.Background()

	summary, err := svc.Financials(ctx, testRange(t))
	assert.ErrorIs(t, err, errUpstream)
	assert.Contains(t, err.Error(), "fetch orders")
	assert.Nil(t, summary)

	products, err := svc.Products(ctx, testRange(t))
	assert.ErrorIs(t, err, errUpstream)
	assert.Nil(t, products)

	collections, err := svc.Collections(ctx, testRange(t))
	assert.ErrorIs(t, err, errUpstream)
	assert.Nil(t, collections)

	dashboard, err := svc.Dashboard(ctx, testRange(t))
	assert.ErrorIs(t, err, errUpstream)
	assert.Nil(t, dashboard)
}

func TestService_Dashboard(t *testing.T) {
	store := newFakeStore(
		order(1, "100.00", lineItem(1, 10, 100, 2, "50.00")),
		order(2, "30.00", lineItem(2, 20, 200, 1, "30.00")),
	)
	store.tags[1] = "New"
	store.tags[2] = "Sale"
	store.costs[100] = "20.00"
	store.costs[200] = "10.00"

	d, err := newTestService(store).Dashboard(context.Background(), testRange(t))
	require.NoError(t, err)

	assert.Equal(t, "2024-01-01", d.From)
	assert.Equal(t, "2024-01-31", d.To)
	assert.Equal(t, 2, d.Summary.TotalOrders)
	assertDecimal(t, "130", d.Summary.TotalSales)

	require.Len(t, d.Products, 2)
	assertDecimal(t, "60", d.Products[0].Margin)
	assertDecimal(t, "20", d.Products[1].Margin)

	require.Len(t, d.Collections, 2)
	assert.Equal(t, "New", d.Collections[0].Title)
	assert.Equal(t, "Sale", d.Collections[1].Title)
}

func TestService_Dashboard_FailedBatchFailsAll(t *testing.T) {
	store := newFakeStore(order(1, "10.00", lineItem(1, 10, 100, 1, "10.00")))
	store.tags[1] = "New"
	store.inventoryErr = errors.New("boom")

	d, err := newTestService(store).Dashboard(context.Background(), testRange(t))
	require.Error(t, err)
	assert.Nil(t, d)
}

func TestService_CancelledContext(t *testing.T) {
	store := newFakeStore(order(1, "10.00", lineItem(1, 10, 0, 1, "10.00")))
	store.tags[1] = "New"

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestService(store).Collections(ctx, testRange(t))
	assert.ErrorIs(t, err, context.Canceled)
}
