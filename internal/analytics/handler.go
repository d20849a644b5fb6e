package analytics

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
)

// Handler serves the aggregated verdict statistics.
type Handler struct {
	agg *Aggregator
	log *slog.Logger
}

func NewHandler(agg *Aggregator) *Handler {
	return &Handler{agg: agg, log: slog.Default().With("component", "analytics-api")}
}

// Stats handles GET /api/v1/analytics. The optional top parameter trims
// the unmatched and ambiguous query lists.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats := h.agg.Stats()
	if raw := r.URL.Query().Get("top"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.respond(w, http.StatusBadRequest, map[string]string{"error": "top must be a non-negative integer"})
			return
		}
		stats.TopUnmatched = stats.TopUnmatched[:min(n, len(stats.TopUnmatched))]
		stats.TopAmbiguous = stats.TopAmbiguous[:min(n, len(stats.TopAmbiguous))]
	}
	h.respond(w, http.StatusOK, stats)
}

func (h *Handler) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Warn("writing analytics response", "error", err)
	}
}
