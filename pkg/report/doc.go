// Package report turns the orders of a date range into sales, margin and
// collection figures.
//
// Every report is built in two steps. The aggregators (SummarizeFinancials,
// TallyVariants, ComposeProductStats, AggregateCollections) are pure
// reductions over an immutable order slice. Service composes them with the
// remote lookups they need: inventory costs in batches of 100 ids, where any
// failed batch fails the report, and per-product tags, where a failed lookup
// only removes that product from every collection.
//
// Output order is deterministic and independent of lookup completion order:
// products appear in the order their variant is first seen, collections in
// the order their tag is first credited.
package report
