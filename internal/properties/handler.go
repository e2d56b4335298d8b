package properties

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/casavoz/call-platform/pkg/logging"
)

// Handler serves the property catalog.
type Handler struct {
	logger *logging.Logger
}

// NewHandler creates a catalog handler.
func NewHandler(logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{logger: logger}
}

// ListResponse is the catalog listing response.
type ListResponse struct {
	Properties []Property `json:"properties"`
	Count      int        `json:"count"`
}

// SearchResponse is the catalog search response.
type SearchResponse struct {
	Query      string     `json:"query"`
	Properties []Property `json:"properties"`
	Count      int        `json:"count"`
}

// List handles GET /properties requests.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	props := All()
	writeJSON(w, http.StatusOK, ListResponse{Properties: props, Count: len(props)})
}

// Search handles GET /properties/search requests. The q parameter carries
// the caller's free-form wish ("algo cerca de la playa").
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "q parameter is required")
		return
	}

	props := Search(query)
	if props == nil {
		props = []Property{}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Query: query, Properties: props, Count: len(props)})
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
