package report

import (
	"github.com/shopspring/decimal"

	"github.com/Sternrassler/shop-insights/pkg/shopify"
)

// VariantTally accumulates the line items of one variant.
// Title, VariantTitle and InventoryItemID come from the first line item seen.
type VariantTally struct {
	VariantID       int64
	Title           string
	VariantTitle    string
	InventoryItemID int64
	TotalSold       int
	TotalRevenue    decimal.Decimal
}

// TallyVariants groups all line items by variant id.
//
// Tallies are returned in first-seen order, together with the distinct
// inventory item ids of all line items, also in first-seen order.
func TallyVariants(orders []shopify.Order) ([]VariantTally, []int64) {
	var tallies []VariantTally
	index := make(map[int64]int)

	var inventoryIDs []int64
	seenInventory := make(map[int64]struct{})

	for _, order := range orders {
		for _, item := range order.LineItems {
			variantID := idOrZero(item.VariantID)
			inventoryID := idOrZero(item.InventoryItemID)

			i, ok := index[variantID]
			if !ok {
				i = len(tallies)
				index[variantID] = i
				tallies = append(tallies, VariantTally{
					VariantID:       variantID,
					Title:           item.Title,
					VariantTitle:    item.VariantTitle,
					InventoryItemID: inventoryID,
					TotalRevenue:    decimal.Zero,
				})
			}

			tallies[i].TotalSold += item.Quantity
			tallies[i].TotalRevenue = tallies[i].TotalRevenue.Add(item.Revenue())

			if inventoryID != 0 {
				if _, dup := seenInventory[inventoryID]; !dup {
					seenInventory[inventoryID] = struct{}{}
					inventoryIDs = append(inventoryIDs, inventoryID)
				}
			}
		}
	}

	return tallies, inventoryIDs
}

// ComposeProductStats derives the margin of every tally from the unit costs.
// Variants without a known cost are costed at zero.
func ComposeProductStats(tallies []VariantTally, costs map[int64]decimal.Decimal) []ProductStat {
	stats := make([]ProductStat, 0, len(tallies))

	for _, t := range tallies {
		cost, ok := costs[t.InventoryItemID]
		if !ok || t.InventoryItemID == 0 {
			cost = decimal.Zero
		}

		stats = append(stats, ProductStat{
			VariantID:    t.VariantID,
			Title:        t.Title,
			VariantTitle: t.VariantTitle,
			TotalSold:    t.TotalSold,
			CostPerUnit:  cost,
			Margin:       t.TotalRevenue.Sub(cost.Mul(decimal.NewFromInt(int64(t.TotalSold)))),
		})
	}

	return stats
}

// chunkIDs splits ids into consecutive chunks of at most size ids.
func chunkIDs(ids []int64, size int) [][]int64 {
	var chunks [][]int64
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}

func idOrZero(id *int64) int64 {
	if id == nil {
		return 0
	}
	return *id
}
