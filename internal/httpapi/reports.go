package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/shop-insights/pkg/logging"
	"github.com/Sternrassler/shop-insights/pkg/report"
)

type reportHandlers struct {
	reports Reports
	logger  zerolog.Logger
	timeout time.Duration
}

// Routes registers the report endpoints. All take ?from=YYYY-MM-DD&to=YYYY-MM-DD.
func (h *reportHandlers) Routes(r chi.Router) {
	r.Get("/orders", h.financials)
	r.Get("/products", h.products)
	r.Get("/collections", h.collections)
	r.Get("/dashboard", h.dashboard)
}

func (h *reportHandlers) financials(w http.ResponseWriter, r *http.Request) {
	dr, ctx, cancel, ok := h.begin(w, r)
	if !ok {
		return
	}
	defer cancel()

	summary, err := h.reports.Financials(ctx, dr)
	if err != nil {
		h.fail(ctx, w, r, err, "could not fetch orders")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *reportHandlers) products(w http.ResponseWriter, r *http.Request) {
	dr, ctx, cancel, ok := h.begin(w, r)
	if !ok {
		return
	}
	defer cancel()

	products, err := h.reports.Products(ctx, dr)
	if err != nil {
		h.fail(ctx, w, r, err, "could not fetch product data")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (h *reportHandlers) collections(w http.ResponseWriter, r *http.Request) {
	dr, ctx, cancel, ok := h.begin(w, r)
	if !ok {
		return
	}
	defer cancel()

	collections, err := h.reports.Collections(ctx, dr)
	if err != nil {
		h.fail(ctx, w, r, err, "could not fetch collections")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"collections": collections})
}

func (h *reportHandlers) dashboard(w http.ResponseWriter, r *http.Request) {
	dr, ctx, cancel, ok := h.begin(w, r)
	if !ok {
		return
	}
	defer cancel()

	d, err := h.reports.Dashboard(ctx, dr)
	if err != nil {
		h.fail(ctx, w, r, err, "could not build dashboard")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// begin parses the date range and derives the report context.
// It writes a 400 and returns ok=false for an invalid range.
func (h *reportHandlers) begin(w http.ResponseWriter, r *http.Request) (report.DateRange, context.Context, context.CancelFunc, bool) {
	query := r.URL.Query()
	dr, err := report.ParseDateRange(query.Get("from"), query.Get("to"))
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, err.Error())
		return report.DateRange{}, nil, nil, false
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	return dr, ctx, cancel, true
}

// fail logs err with full detail and answers with a generic message.
// ctx is the report context derived in begin.
func (h *reportHandlers) fail(ctx context.Context, w http.ResponseWriter, r *http.Request, err error, message string) {
	logger := logging.FromContext(r.Context(), h.logger)

	status := http.StatusInternalServerError
	switch {
	case r.Context().Err() != nil:
		// client went away; nobody reads the response
		logger.Info().Err(err).Str("path", r.URL.Path).Msg("Request abandoned")
		return
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
		message = "report timed out"
	}

	logger.Error().
		Err(err).
		Str("path", r.URL.Path).
		Int("status_code", status).
		Msg("Report failed")

	writeError(r.Context(), w, status, message)
}
