package conversations

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/casavoz/call-platform/pkg/logging"
)

// Handler handles HTTP requests for conversations and their messages.
type Handler struct {
	store  Store
	logger *logging.Logger
}

// NewHandler creates a new conversations handler.
func NewHandler(store Store, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		store:  store,
		logger: logger,
	}
}

// Create handles POST /conversations requests.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode create request", "error", err)
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	conv, err := h.store.Create(r.Context(), &req)
	if err != nil {
		h.respondStoreError(w, err, "failed to create conversation", "call_sid", req.CallSID)
		return
	}

	h.logger.Info("conversation created", "id", conv.ID, "call_sid", conv.CallSID)
	writeJSON(w, http.StatusCreated, conv)
}

// Get handles GET /conversations/{conversationID} requests.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.conversationID(w, r)
	if !ok {
		return
	}

	conv, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		h.respondStoreError(w, err, "failed to get conversation", "conversation_id", id)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// GetByCallSID handles GET /conversations/by-sid/{callSID} requests.
func (h *Handler) GetByCallSID(w http.ResponseWriter, r *http.Request) {
	callSID := chi.URLParam(r, "callSID")
	if callSID == "" {
		writeError(w, http.StatusBadRequest, "call_sid required")
		return
	}

	conv, err := h.store.GetByCallSID(r.Context(), callSID)
	if err != nil {
		h.respondStoreError(w, err, "failed to get conversation", "call_sid", callSID)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// Finalize handles POST /conversations/{conversationID}/finalize requests.
func (h *Handler) Finalize(w http.ResponseWriter, r *http.Request) {
	id, ok := h.conversationID(w, r)
	if !ok {
		return
	}

	var req FinalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode finalize request", "error", err)
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	conv, err := h.store.Finalize(r.Context(), id, &req)
	if err != nil {
		h.respondStoreError(w, err, "failed to finalize conversation", "conversation_id", id)
		return
	}

	h.logger.Info("conversation finalized", "id", conv.ID, "call_sid", conv.CallSID, "duration_seconds", req.DurationSeconds)
	writeJSON(w, http.StatusOK, conv)
}

// Delete handles DELETE /conversations/{conversationID} requests.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.conversationID(w, r)
	if !ok {
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		h.respondStoreError(w, err, "failed to delete conversation", "conversation_id", id)
		return
	}

	h.logger.Info("conversation deleted", "conversation_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// AppendMessage handles POST /conversations/{conversationID}/messages requests.
func (h *Handler) AppendMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := h.conversationID(w, r)
	if !ok {
		return
	}

	var req AppendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode message request", "error", err)
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	msg, err := h.store.AppendMessage(r.Context(), id, &req)
	if err != nil {
		h.respondStoreError(w, err, "failed to append message", "conversation_id", id)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// ListMessagesResponse is the response for listing a conversation's messages.
type ListMessagesResponse struct {
	Messages []*Message `json:"messages"`
	Count    int        `json:"count"`
}

// ListMessages handles GET /conversations/{conversationID}/messages requests.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	id, ok := h.conversationID(w, r)
	if !ok {
		return
	}

	messages, err := h.store.ListMessages(r.Context(), id)
	if err != nil {
		h.respondStoreError(w, err, "failed to list messages", "conversation_id", id)
		return
	}

	writeJSON(w, http.StatusOK, ListMessagesResponse{
		Messages: messages,
		Count:    len(messages),
	})
}

func (h *Handler) conversationID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "conversationID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid conversation id")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondStoreError(w http.ResponseWriter, err error, msg string, logArgs ...any) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(msg, append(logArgs, "error", err)...)
		writeError(w, status, "internal server error")
		return
	}
	writeError(w, status, err.Error())
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, ErrConversationNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicateCallSID):
		return http.StatusConflict
	case errors.Is(err, ErrMissingCallSID),
		errors.Is(err, ErrMissingStartTime),
		errors.Is(err, ErrMissingEndTime),
		errors.Is(err, ErrEndBeforeStart),
		errors.Is(err, ErrNegativeDuration),
		errors.Is(err, ErrNegativeCount),
		errors.Is(err, ErrInvalidRole),
		errors.Is(err, ErrMissingContent),
		errors.Is(err, ErrMissingTimestamp),
		errors.Is(err, ErrInvalidConfidence):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
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
