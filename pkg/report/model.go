package report

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar date format accepted for report ranges.
const DateLayout = "2006-01-02"

// ErrInvalidRange is returned for missing, malformed or reversed date ranges.
var ErrInvalidRange = errors.New("invalid date range")

// DateRange is an inclusive range of whole UTC days.
// From is the first second of the first day, To the last second of the last day.
type DateRange struct {
	From time.Time
	To   time.Time
}

// ParseDateRange parses two YYYY-MM-DD dates into a DateRange.
func ParseDateRange(from, to string) (DateRange, error) {
	from, to = strings.TrimSpace(from), strings.TrimSpace(to)
	if from == "" || to == "" {
		return DateRange{}, fmt.Errorf("%w: from and to are required", ErrInvalidRange)
	}

	start, err := time.ParseInLocation(DateLayout, from, time.UTC)
	if err != nil {
		return DateRange{}, fmt.Errorf("%w: from %q is not a YYYY-MM-DD date", ErrInvalidRange, from)
	}
	end, err := time.ParseInLocation(DateLayout, to, time.UTC)
	if err != nil {
		return DateRange{}, fmt.Errorf("%w: to %q is not a YYYY-MM-DD date", ErrInvalidRange, to)
	}
	if end.Before(start) {
		return DateRange{}, fmt.Errorf("%w: from %s is after to %s", ErrInvalidRange, from, to)
	}

	return DateRange{
		From: start,
		To:   end.Add(24*time.Hour - time.Second),
	}, nil
}

// String renders the range as "from..to" in calendar dates.
func (r DateRange) String() string {
	return r.From.Format(DateLayout) + ".." + r.To.Format(DateLayout)
}

// FinancialSummary holds the order totals of a range.
// TotalSales counts refunds as positive amounts.
type FinancialSummary struct {
	TotalOrders   int             `json:"totalOrders"`
	TotalSales    decimal.Decimal `json:"totalSales"`
	AvgOrderValue decimal.Decimal `json:"avgOrderValue"`
	TotalNetSales decimal.Decimal `json:"totalNetSales"`
	TotalReturns  decimal.Decimal `json:"totalReturns"`
	TotalShipping decimal.Decimal `json:"totalShipping"`
	TotalTaxes    decimal.Decimal `json:"totalTaxes"`
	TotalDuties   decimal.Decimal `json:"totalDuties"`
	TotalTips     decimal.Decimal `json:"totalTips"`
}

// ProductStat is the sales and margin of one variant.
// Custom line items without a variant are reported under VariantID 0.
type ProductStat struct {
	VariantID    int64           `json:"variantId"`
	Title        string          `json:"title"`
	VariantTitle string          `json:"variantTitle"`
	TotalSold    int             `json:"totalSold"`
	CostPerUnit  decimal.Decimal `json:"costPerUnit"`
	Margin       decimal.Decimal `json:"margin"`
}

// CollectionStat is the sales of every product carrying one tag.
type CollectionStat struct {
	Title        string          `json:"title"`
	TotalSold    int             `json:"totalSold"`
	TotalRevenue decimal.Decimal `json:"totalRevenue"`
}

// Dashboard combines all three reports for one range.
type Dashboard struct {
	From        string           `json:"from"`
	To          string           `json:"to"`
	Summary     FinancialSummary `json:"summary"`
	Products    []ProductStat    `json:"products"`
	Collections []CollectionStat `json:"collections"`
}
