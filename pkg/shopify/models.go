package shopify

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Order is the subset of an Admin API order the reports read.
type Order struct {
	ID                    int64      `json:"id"`
	Name                  string     `json:"name"`
	CreatedAt             time.Time  `json:"created_at"`
	SubtotalPrice         Amount     `json:"subtotal_price"`
	TotalShippingPriceSet *PriceSet  `json:"total_shipping_price_set"`
	TotalTax              Amount     `json:"total_tax"`
	TotalDuties           Amount     `json:"total_duties"`
	TotalTipReceived      Amount     `json:"total_tip_received"`
	LineItems             []LineItem `json:"line_items"`
	Refunds               []Refund   `json:"refunds"`
}

// ShippingAmount returns the shipping charged in presentment currency, or zero.
func (o Order) ShippingAmount() decimal.Decimal {
	if o.TotalShippingPriceSet == nil {
		return decimal.Zero
	}
	return o.TotalShippingPriceSet.PresentmentMoney.Amount.Decimal
}

// RefundTotal sums the amounts of all refund transactions of the order.
// Reversals carry negative amounts and are summed as-is.
func (o Order) RefundTotal() decimal.Decimal {
	total := decimal.Zero
	for _, refund := range o.Refunds {
		for _, tx := range refund.Transactions {
			total = total.Add(tx.Amount.Decimal)
		}
	}
	return total
}

// PriceSet holds an amount in shop and presentment currency.
type PriceSet struct {
	ShopMoney        Money `json:"shop_money"`
	PresentmentMoney Money `json:"presentment_money"`
}

// Money is an amount with its currency.
type Money struct {
	Amount       Amount `json:"amount"`
	CurrencyCode string `json:"currency_code"`
}

// LineItem is one purchased variant within an order.
// ProductID and VariantID are nil for custom items.
type LineItem struct {
	ID              int64  `json:"id"`
	ProductID       *int64 `json:"product_id"`
	VariantID       *int64 `json:"variant_id"`
	InventoryItemID *int64 `json:"inventory_item_id"`
	Title           string `json:"title"`
	VariantTitle    string `json:"variant_title"`
	Quantity        int    `json:"quantity"`
	Price           Amount `json:"price"`
}

// Revenue returns price × quantity.
func (li LineItem) Revenue() decimal.Decimal {
	return li.Price.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// Refund groups the transactions of one refund.
type Refund struct {
	ID           int64         `json:"id"`
	Transactions []Transaction `json:"transactions"`
}

// Transaction is a single money movement; negative amounts are reversals.
type Transaction struct {
	ID     int64  `json:"id"`
	Kind   string `json:"kind"`
	Amount Amount `json:"amount"`
}

// InventoryItem carries the unit cost of a variant.
type InventoryItem struct {
	ID   int64  `json:"id"`
	SKU  string `json:"sku"`
	Cost Amount `json:"cost"`
}

// Product is the subset of a product the collection report reads.
type Product struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	Tags  string `json:"tags"`
}

// TagSet splits the comma-joined tag string into trimmed, non-empty,
// distinct tags in their original order.
func (p Product) TagSet() []string {
	return SplitTags(p.Tags)
}

// SplitTags splits a comma-joined tag string into trimmed, non-empty,
// distinct tags in their original order.
func SplitTags(tags string) []string {
	var out []string
	seen := make(map[string]struct{})

	for _, tag := range strings.Split(tags, ",") {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}

	return out
}
