package recordings

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/go-chi/chi/v5"

	"github.com/casavoz/call-platform/internal/conversations"
	"github.com/casavoz/call-platform/pkg/logging"
)

// Handler streams stored call recordings back to admin users.
type Handler struct {
	store  *Store
	convs  conversations.Store
	logger *logging.Logger
}

// NewHandler creates a recordings handler.
func NewHandler(store *Store, convs conversations.Store, logger *logging.Logger) *Handler {
	if convs == nil {
		panic("recordings: conversation store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, convs: convs, logger: logger}
}

// Get handles GET /admin/recordings/{callSID} requests. The recording key is
// derived from the conversation's start date, so only calls known to the
// platform can be fetched.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	callSID := chi.URLParam(r, "callSID")
	if callSID == "" {
		http.Error(w, "missing call SID", http.StatusBadRequest)
		return
	}

	if !h.store.Enabled() {
		http.Error(w, "recording storage not configured", http.StatusServiceUnavailable)
		return
	}

	conv, err := h.convs.GetByCallSID(r.Context(), callSID)
	if err != nil {
		if errors.Is(err, conversations.ErrConversationNotFound) {
			http.Error(w, "conversation not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to resolve recording call", "error", err, "call_sid", callSID)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	key := KeyFor(callSID, conv.StartTime)
	body, size, err := h.store.Open(r.Context(), key)
	if err != nil {
		var noSuchKey *s3types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			http.Error(w, "recording not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to open recording", "error", err, "s3_key", key)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "audio/wav")
	if size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}
	if _, err := io.Copy(w, body); err != nil {
		h.logger.Warn("recording stream interrupted", "error", err, "call_sid", callSID)
	}
}
