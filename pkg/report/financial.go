package report

import (
	"github.com/shopspring/decimal"

	"github.com/Sternrassler/shop-insights/pkg/shopify"
)

// SummarizeFinancials reduces orders to their financial totals.
//
// Absent amounts count as zero. TotalOrders is never below 1, so an empty
// range reports one order and an average of zero.
func SummarizeFinancials(orders []shopify.Order) FinancialSummary {
	s := FinancialSummary{
		TotalNetSales: decimal.Zero,
		TotalReturns:  decimal.Zero,
		TotalShipping: decimal.Zero,
		TotalTaxes:    decimal.Zero,
		TotalDuties:   decimal.Zero,
		TotalTips:     decimal.Zero,
	}

	for _, order := range orders {
		s.TotalNetSales = s.TotalNetSales.Add(order.SubtotalPrice.Decimal)
		s.TotalReturns = s.TotalReturns.Add(order.RefundTotal())
		s.TotalShipping = s.TotalShipping.Add(order.ShippingAmount())
		s.TotalTaxes = s.TotalTaxes.Add(order.TotalTax.Decimal)
		s.TotalDuties = s.TotalDuties.Add(order.TotalDuties.Decimal)
		s.TotalTips = s.TotalTips.Add(order.TotalTipReceived.Decimal)
	}

	s.TotalSales = s.TotalNetSales.
		Add(s.TotalReturns).
		Add(s.TotalTaxes).
		Add(s.TotalDuties).
		Add(s.TotalTips)

	s.TotalOrders = max(1, len(orders))
	s.AvgOrderValue = s.TotalSales.Sub(s.TotalShipping).Div(decimal.NewFromInt(int64(s.TotalOrders)))

	return s
}
