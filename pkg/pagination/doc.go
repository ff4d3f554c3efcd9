// Package pagination walks cursor-paginated Admin API collections and fans
// independent lookups out over a bounded worker pool.
//
// Shopify REST endpoints return a Link header with comma separated
// `<url>; rel="relation"` entries. The "next" URL already encodes the cursor,
// so every request after the first is issued with that URL as-is and none of
// the original query parameters:
//
//	orders, err := pagination.FetchAll(ctx, fetcher, baseURL, params, decodeOrders, pagination.DefaultCursorConfig())
//
// Pages are strictly sequential because each URL comes from the previous
// response. Lookups that do not depend on each other (inventory cost batches,
// per-product tag lookups) go through a BatchFetcher instead:
//
//	bf := pagination.NewBatchFetcher[int64, *shopify.Product](pagination.DefaultConfig())
//	products, errs, err := bf.FetchAll(ctx, ids, lookup)
//
// The batch fetcher:
//   - Runs a fixed number of workers
//   - Applies a timeout per task
//   - Collects results into a key-indexed map, so completion order never leaks
//     into the output
//   - Either cancels everything on the first error (FailFast) or records the
//     error per key and carries on
package pagination
