package reporting

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/casavoz/call-platform/pkg/logging"
)

// Handler serves the sales reporting endpoints.
type Handler struct {
	store  Store
	logger *logging.Logger
}

// NewHandler creates a reporting handler.
func NewHandler(store Store, logger *logging.Logger) *Handler {
	if store == nil {
		panic("reporting: store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, logger: logger}
}

// HotLeadsResponse is the response for the hot-leads report.
type HotLeadsResponse struct {
	Leads []*HotLead `json:"leads"`
	Count int        `json:"count"`
}

// HotLeads handles GET /reports/hot-leads requests. The limit query
// parameter bounds the number of rows, defaulting to 10.
func (h *Handler) HotLeads(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit", defaultHotLeadLimit)
	if !ok {
		return
	}

	leads, err := h.store.HotLeads(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to load hot leads", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, HotLeadsResponse{Leads: leads, Count: len(leads)})
}

// StatisticsResponse is the response for the daily statistics report.
type StatisticsResponse struct {
	Stats []*DailyStats `json:"stats"`
	Count int           `json:"count"`
}

// Statistics handles GET /reports/statistics requests. The days query
// parameter selects the reporting window, defaulting to 7.
func (h *Handler) Statistics(w http.ResponseWriter, r *http.Request) {
	days, ok := queryInt(w, r, "days", defaultStatsDays)
	if !ok {
		return
	}

	stats, err := h.store.DailyStats(r.Context(), days)
	if err != nil {
		h.logger.Error("failed to load daily statistics", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, StatisticsResponse{Stats: stats, Count: len(stats)})
}

// queryInt parses an optional positive integer query parameter.
func queryInt(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return v, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
