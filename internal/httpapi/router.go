// Package httpapi exposes the reports over HTTP.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Sternrassler/shop-insights/pkg/logging"
	"github.com/Sternrassler/shop-insights/pkg/metrics"
	"github.com/Sternrassler/shop-insights/pkg/report"
)

func init() {
	// amounts are served as JSON numbers
	decimal.MarshalJSONWithoutQuotes = true
}

// Reports builds the reports served by the API. *report.Service implements it.
type Reports interface {
	Financials(ctx context.Context, r report.DateRange) (*report.FinancialSummary, error)
	Products(ctx context.Context, r report.DateRange) ([]report.ProductStat, error)
	Collections(ctx context.Context, r report.DateRange) ([]report.CollectionStat, error)
	Dashboard(ctx context.Context, r report.DateRange) (*report.Dashboard, error)
}

// Options tunes the router.
type Options struct {
	// ReportTimeout bounds the time spent building one report.
	ReportTimeout time.Duration
	// Ready reports whether dependencies are reachable; nil means always ready.
	Ready func(ctx context.Context) error
}

// DefaultOptions returns the default router options.
func DefaultOptions() Options {
	return Options{
		ReportTimeout: 5 * time.Minute,
	}
}

// NewRouter returns the HTTP handler serving reports, health and metrics.
func NewRouter(reports Reports, logger zerolog.Logger, opts Options) http.Handler {
	if opts.ReportTimeout <= 0 {
		opts.ReportTimeout = DefaultOptions().ReportTimeout
	}

	h := &reportHandlers{
		reports: reports,
		logger:  logger,
		timeout: opts.ReportTimeout,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", healthHandler)
	r.Get("/ready", readyHandler(opts.Ready))
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Route("/api", h.Routes)

	return r
}

// requestLogger logs one line per request and attaches a request-scoped
// logger to the request context.
func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			ctx := logging.WithRequestID(r.Context(), logger, middleware.GetReqID(r.Context()))
			next.ServeHTTP(ww, r.WithContext(ctx))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			reqLogger := logging.FromContext(ctx, logger)
			event := reqLogger.Debug()
			if status >= http.StatusInternalServerError {
				event = reqLogger.Warn()
			}
			event.
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status_code", status).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("Request handled")
		})
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func readyHandler(ready func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()

			if err := ready(ctx); err != nil {
				logging.FromContext(r.Context(), zerolog.Nop()).Warn().Err(err).Msg("Readiness check failed")
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte("NOT READY"))
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}
}
