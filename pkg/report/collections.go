package report

import (
	"github.com/shopspring/decimal"

	"github.com/Sternrassler/shop-insights/pkg/shopify"
)

// TagIndex maps a product id to its tags.
// Products whose lookup failed are simply absent.
type TagIndex map[int64][]string

// ReferencedProducts returns the distinct non-null product ids of all line
// items in first-seen order.
func ReferencedProducts(orders []shopify.Order) []int64 {
	var ids []int64
	seen := make(map[int64]struct{})

	for _, order := range orders {
		for _, item := range order.LineItems {
			if item.ProductID == nil {
				continue
			}
			id := *item.ProductID
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}

	return ids
}

// AggregateCollections credits every line item to each tag of its product.
//
// A line item counts in full towards every tag; nothing is split. Collections
// are returned in the order their tag is first credited.
func AggregateCollections(orders []shopify.Order, index TagIndex) []CollectionStat {
	var stats []CollectionStat
	position := make(map[string]int)

	for _, order := range orders {
		for _, item := range order.LineItems {
			if item.ProductID == nil {
				continue
			}
			tags := index[*item.ProductID]
			if len(tags) == 0 {
				continue
			}

			revenue := item.Revenue()
			for _, tag := range tags {
				i, ok := position[tag]
				if !ok {
					i = len(stats)
					position[tag] = i
					stats = append(stats, CollectionStat{Title: tag, TotalRevenue: decimal.Zero})
				}
				stats[i].TotalSold += item.Quantity
				stats[i].TotalRevenue = stats[i].TotalRevenue.Add(revenue)
			}
		}
	}

	if stats == nil {
		stats = []CollectionStat{}
	}
	return stats
}
