package report

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/Sternrassler/shop-insights/pkg/pagination"
	"github.com/Sternrassler/shop-insights/pkg/shopify"
)

// Prometheus metrics
var (
	reportDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shop_report_duration_seconds",
			Help:    "Time to build a report, including all remote calls",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"report"},
	)

	lookupFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shop_report_lookup_failures_total",
			Help: "Enrichment lookups that failed and were left out of a report",
		},
		[]string{"kind"},
	)
)

// Store is the read access the reports need from the shop.
// *shopify.Client implements it.
type Store interface {
	ListOrders(ctx context.Context, createdMin, createdMax time.Time) ([]shopify.Order, error)
	InventoryItems(ctx context.Context, ids []int64) ([]shopify.InventoryItem, error)
	Product(ctx context.Context, id int64) (*shopify.Product, error)
}

// ServiceConfig bounds the enrichment lookups.
type ServiceConfig struct {
	// MaxConcurrency is the number of lookups in flight at once.
	MaxConcurrency int
	// LookupTimeout bounds a single lookup, retries included.
	LookupTimeout time.Duration
}

// DefaultServiceConfig returns the default lookup bounds.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		MaxConcurrency: 4,
		LookupTimeout:  2 * time.Minute,
	}
}

// Service builds reports from a Store.
type Service struct {
	store  Store
	config ServiceConfig
	logger zerolog.Logger
}

// NewService creates a report service.
func NewService(store Store, cfg ServiceConfig, logger zerolog.Logger) *Service {
	defaults := DefaultServiceConfig()
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = defaults.MaxConcurrency
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = defaults.LookupTimeout
	}

	return &Service{
		store:  store,
		config: cfg,
		logger: logger,
	}
}

// Financials returns the financial summary of the range.
func (s *Service) Financials(ctx context.Context, r DateRange) (summary *FinancialSummary, err error) {
	defer s.observe("orders", r, time.Now(), &err)

	orders, err := s.fetchOrders(ctx, r)
	if err != nil {
		return nil, err
	}

	result := SummarizeFinancials(orders)
	return &result, nil
}

// Products returns the per-variant sales and margin of the range.
func (s *Service) Products(ctx context.Context, r DateRange) (stats []ProductStat, err error) {
	defer s.observe("products", r, time.Now(), &err)

	orders, err := s.fetchOrders(ctx, r)
	if err != nil {
		return nil, err
	}

	return s.productStats(ctx, orders)
}

// Collections returns the per-tag sales of the range.
func (s *Service) Collections(ctx context.Context, r DateRange) (stats []CollectionStat, err error) {
	defer s.observe("collections", r, time.Now(), &err)

	orders, err := s.fetchOrders(ctx, r)
	if err != nil {
		return nil, err
	}

	return s.collectionStats(ctx, orders)
}

// Dashboard builds all three reports from a single walk over the orders.
// The reports are built concurrently; any fatal failure fails the dashboard.
func (s *Service) Dashboard(ctx context.Context, r DateRange) (d *Dashboard, err error) {
	defer s.observe("dashboard", r, time.Now(), &err)

	orders, err := s.fetchOrders(ctx, r)
	if err != nil {
		return nil, err
	}

	d = &Dashboard{
		From: r.From.Format(DateLayout),
		To:   r.To.Format(DateLayout),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d.Summary = SummarizeFinancials(orders)
		return nil
	})
	g.Go(func() error {
		products, err := s.productStats(gctx, orders)
		d.Products = products
		return err
	})
	g.Go(func() error {
		collections, err := s.collectionStats(gctx, orders)
		d.Collections = collections
		return err
	})

	if err = g.Wait(); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) fetchOrders(ctx context.Context, r DateRange) ([]shopify.Order, error) {
	start := time.Now()

	orders, err := s.store.ListOrders(ctx, r.From, r.To)
	if err != nil {
		return nil, fmt.Errorf("fetch orders: %w", err)
	}

	s.logger.Debug().
		Str("from", r.From.Format(time.RFC3339)).
		Str("to", r.To.Format(time.RFC3339)).
		Int("records", len(orders)).
		Dur("duration", time.Since(start)).
		Msg("Orders fetched")

	return orders, nil
}

func (s *Service) productStats(ctx context.Context, orders []shopify.Order) ([]ProductStat, error) {
	tallies, inventoryIDs := TallyVariants(orders)

	costs, err := s.inventoryCosts(ctx, inventoryIDs)
	if err != nil {
		return nil, err
	}

	return ComposeProductStats(tallies, costs), nil
}

// inventoryCosts looks up unit costs in batches of shopify.MaxInventoryItemIDs.
// A failed batch fails the whole lookup.
func (s *Service) inventoryCosts(ctx context.Context, ids []int64) (map[int64]decimal.Decimal, error) {
	chunks := chunkIDs(ids, shopify.MaxInventoryItemIDs)
	batches := make([]int, len(chunks))
	for i := range batches {
		batches[i] = i
	}

	fetcher := pagination.NewBatchFetcher[int, []shopify.InventoryItem](pagination.Config{
		MaxConcurrency: s.config.MaxConcurrency,
		Timeout:        s.config.LookupTimeout,
		FailFast:       true,
	})

	results, _, err := fetcher.FetchAll(ctx, batches, func(ctx context.Context, batch int) ([]shopify.InventoryItem, error) {
		return s.store.InventoryItems(ctx, chunks[batch])
	})
	if err != nil {
		lookupFailures.WithLabelValues("inventory").Inc()
		return nil, fmt.Errorf("inventory cost batch %w", err)
	}

	costs := make(map[int64]decimal.Decimal, len(ids))
	for _, batch := range batches {
		for _, item := range results[batch] {
			costs[item.ID] = item.Cost.Decimal
		}
	}

	s.logger.Debug().
		Int("batch", len(chunks)).
		Int("records", len(costs)).
		Msg("Inventory costs fetched")

	return costs, nil
}

func (s *Service) collectionStats(ctx context.Context, orders []shopify.Order) ([]CollectionStat, error) {
	index, err := s.tagIndex(ctx, ReferencedProducts(orders))
	if err != nil {
		return nil, err
	}

	return AggregateCollections(orders, index), nil
}

// tagIndex looks up the tags of every product. Failed lookups are logged and
// left out of the index.
func (s *Service) tagIndex(ctx context.Context, productIDs []int64) (TagIndex, error) {
	fetcher := pagination.NewBatchFetcher[int64, []string](pagination.Config{
		MaxConcurrency: s.config.MaxConcurrency,
		Timeout:        s.config.LookupTimeout,
	})

	tags, failures, err := fetcher.FetchAll(ctx, productIDs, func(ctx context.Context, id int64) ([]string, error) {
		product, err := s.store.Product(ctx, id)
		if err != nil {
			return nil, err
		}
		return product.TagSet(), nil
	})
	if err != nil {
		return nil, fmt.Errorf("product tags: %w", err)
	}

	for id, lookupErr := range failures {
		lookupFailures.WithLabelValues("product").Inc()
		s.logger.Warn().
			Err(lookupErr).
			Int64("product_id", id).
			Msg("Product lookup failed, excluded from collections")
	}

	return TagIndex(tags), nil
}

func (s *Service) observe(report string, r DateRange, start time.Time, errp *error) {
	elapsed := time.Since(start)
	reportDuration.WithLabelValues(report).Observe(elapsed.Seconds())

	if *errp != nil {
		s.logger.Error().
			Err(*errp).
			Str("report", report).
			Str("from", r.From.Format(DateLayout)).
			Str("to", r.To.Format(DateLayout)).
			Dur("duration", elapsed).
			Msg("Report failed")
		return
	}

	s.logger.Info().
		Str("report", report).
		Str("from", r.From.Format(DateLayout)).
		Str("to", r.To.Format(DateLayout)).
		Dur("duration", elapsed).
		Msg("Report built")
}
