package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the {"error": message} envelope, with the request id when known.
func writeError(ctx context.Context, w http.ResponseWriter, status int, message string) {
	payload := map[string]any{"error": message}
	if id := middleware.GetReqID(ctx); id != "" {
		payload["request_id"] = id
	}
	writeJSON(w, status, payload)
}
