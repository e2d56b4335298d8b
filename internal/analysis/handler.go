package analysis

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/casavoz/call-platform/internal/conversations"
	"github.com/casavoz/call-platform/pkg/logging"
)

// Handler handles HTTP requests for analysis records and analysis jobs.
type Handler struct {
	store     Store
	convs     conversations.Store
	jobs      JobRecorder
	publisher *Publisher
	logger    *logging.Logger
}

// NewHandler creates a new analysis handler. jobs and publisher may be nil
// when the async analyze endpoint is not exposed.
func NewHandler(store Store, convs conversations.Store, jobs JobRecorder, publisher *Publisher, logger *logging.Logger) *Handler {
	if store == nil {
		panic("analysis: store cannot be nil")
	}
	if convs == nil {
		panic("analysis: conversation store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		store:     store,
		convs:     convs,
		jobs:      jobs,
		publisher: publisher,
		logger:    logger,
	}
}

// Upsert handles PUT /conversations/{conversationID}/analysis requests.
// The caller supplies a complete record; an existing one is replaced.
func (h *Handler) Upsert(w http.ResponseWriter, r *http.Request) {
	id, ok := h.conversationID(w, r)
	if !ok {
		return
	}

	var req UpsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode analysis request", "error", err)
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	record, err := h.store.Upsert(r.Context(), id, &req)
	if err != nil {
		h.respondStoreError(w, err, "failed to upsert analysis", "conversation_id", id)
		return
	}

	h.logger.Info("analysis upserted", "conversation_id", id, "grade", record.CalificacionLead)
	writeJSON(w, http.StatusOK, record)
}

// Get handles GET /conversations/{conversationID}/analysis requests.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.conversationID(w, r)
	if !ok {
		return
	}

	record, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.respondStoreError(w, err, "failed to get analysis", "conversation_id", id)
		return
	}

	writeJSON(w, http.StatusOK, record)
}

// Enqueue handles POST /conversations/{conversationID}/analyze requests. It
// registers a pending job and hands the conversation to the worker queue.
func (h *Handler) Enqueue(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil || h.publisher == nil {
		writeError(w, http.StatusServiceUnavailable, "analysis queue not configured")
		return
	}

	id, ok := h.conversationID(w, r)
	if !ok {
		return
	}

	conv, err := h.convs.GetByID(r.Context(), id)
	if err != nil {
		h.respondStoreError(w, err, "failed to load conversation for analysis", "conversation_id", id)
		return
	}

	jobID := uuid.NewString()
	job := &JobRecord{
		JobID:          jobID,
		Status:         JobStatusPending,
		ConversationID: conv.ID,
		CallSID:        conv.CallSID,
	}
	if err := h.jobs.PutPending(r.Context(), job); err != nil {
		h.logger.Error("failed to record pending analysis job", "error", err, "conversation_id", id)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if _, err := h.publisher.Enqueue(r.Context(), jobID, conv.ID, conv.CallSID); err != nil {
		h.logger.Error("failed to enqueue analysis job", "error", err, "job_id", jobID, "conversation_id", id)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("analysis job accepted", "job_id", jobID, "conversation_id", conv.ID, "call_sid", conv.CallSID)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id": jobID,
		"status": string(JobStatusPending),
	})
}

// JobStatus handles GET /analysis-jobs/{jobID} requests.
func (h *Handler) JobStatus(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		writeError(w, http.StatusServiceUnavailable, "analysis queue not configured")
		return
	}

	jobID := chi.URLParam(r, "jobID")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "missing job id")
		return
	}

	job, err := h.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			writeError(w, http.StatusNotFound, ErrJobNotFound.Error())
			return
		}
		h.logger.Error("failed to load analysis job", "error", err, "job_id", jobID)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, job)
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
	case errors.Is(err, ErrAnalysisNotFound), errors.Is(err, conversations.ErrConversationNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidGrade), errors.Is(err, ErrInvalidInterestLevel):
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
