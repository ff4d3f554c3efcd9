package pagination

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Sternrassler/shop-insights/pkg/logging"
)

var (
	paginationPagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shopify_pagination_pages_total",
		Help: "Total number of cursor pages fetched",
	})
)

var (
	// ErrPageLimit is returned when a collection has more pages than CursorConfig.MaxPages.
	ErrPageLimit = errors.New("page limit exceeded")

	// ErrCursorLoop is returned when a next link points back at the page just fetched.
	ErrCursorLoop = errors.New("next link repeats current page")
)

// PageFetcher fetches one page of a collection.
// params is nil for every page after the first.
type PageFetcher interface {
	FetchPage(ctx context.Context, rawURL string, params url.Values) (body []byte, header http.Header, err error)
}

// Decoder extracts the records of one page body.
type Decoder[T any] func(body []byte) ([]T, error)

// CursorConfig holds cursor walk configuration.
type CursorConfig struct {
	// Timeout per page fetch
	Timeout time.Duration
	// MaxPages aborts the walk once exceeded (0 = unbounded)
	MaxPages int
}

// DefaultCursorConfig returns the default cursor walk configuration.
func DefaultCursorConfig() CursorConfig {
	return CursorConfig{
		Timeout:  30 * time.Second,
		MaxPages: 0,
	}
}

// FetchAll walks a cursor-linked collection starting at rawURL and returns
// every record in page order.
//
// The first request carries params. Every following request uses the "next"
// URL from the previous response verbatim. The walk stops when a response has
// no usable "next" relation. Any failure aborts the walk; partial results are
// never returned.
func FetchAll[T any](ctx context.Context, fetcher PageFetcher, rawURL string, params url.Values, decode Decoder[T], cfg CursorConfig) ([]T, error) {
	start := time.Now()
	logger := logging.NewLogger(logging.ComponentPagination)

	var all []T
	current := rawURL
	query := params

	for page := 1; ; page++ {
		if cfg.MaxPages > 0 && page > cfg.MaxPages {
			return nil, fmt.Errorf("%w: more than %d pages at %s", ErrPageLimit, cfg.MaxPages, rawURL)
		}

		records, header, err := fetchOne(ctx, fetcher, current, query, decode, cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}
		paginationPagesTotal.Inc()

		all = append(all, records...)

		logger.Debug().
			Str("endpoint", rawURL).
			Int("page", page).
			Int("records", len(records)).
			Msg("Fetched page")

		// previous and next may arrive as separate Link fields
		next, ok := ParseLinkHeader(strings.Join(header.Values("Link"), ","))[RelNext]
		if !ok {
			logger.Info().
				Str("endpoint", rawURL).
				Int("pages", page).
				Int("records", len(all)).
				Dur("duration", time.Since(start)).
				Msg("Fetch complete")
			return all, nil
		}
		if next == current {
			return nil, fmt.Errorf("page %d: %w", page, ErrCursorLoop)
		}

		current = next
		query = nil
	}
}

func fetchOne[T any](ctx context.Context, fetcher PageFetcher, rawURL string, params url.Values, decode Decoder[T], timeout time.Duration) ([]T, http.Header, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	body, header, err := fetcher.FetchPage(ctx, rawURL, params)
	if err != nil {
		return nil, nil, err
	}

	records, err := decode(body)
	if err != nil {
		return nil, nil, fmt.Errorf("decode page: %w", err)
	}
	if header == nil {
		header = http.Header{}
	}

	return records, header, nil
}
