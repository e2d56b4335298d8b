package stream

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/casavoz/call-platform/internal/conversations"
)

// Terminal call statuses reported by Twilio.
var terminalCallStatuses = map[string]bool{
	"completed": true,
	"failed":    true,
	"busy":      true,
	"no-answer": true,
}

// Status handles POST /voice/status callbacks from Twilio. It is the
// fallback finalizer: when the media stream drops without a stop frame the
// conversation is still open here, so close it from the callback data. Calls
// already finalized by the stream are acknowledged without changes.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form body", http.StatusBadRequest)
		return
	}

	callSID := strings.TrimSpace(r.PostFormValue("CallSid"))
	if callSID == "" {
		http.Error(w, "CallSid is required", http.StatusBadRequest)
		return
	}

	status := r.PostFormValue("CallStatus")
	if !terminalCallStatuses[status] {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	conv, err := h.convs.GetByCallSID(r.Context(), callSID)
	if err != nil {
		if errors.Is(err, conversations.ErrConversationNotFound) {
			h.logger.Debug("stream: status callback for unknown call", "call_sid", callSID, "call_status", status)
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.logger.Error("stream: failed to load conversation for status callback", "error", err, "call_sid", callSID)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	if conv.EndTime != nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	end := time.Now().UTC()
	duration := end.Sub(conv.StartTime).Seconds()
	if secs, err := strconv.Atoi(r.PostFormValue("CallDuration")); err == nil && secs >= 0 {
		duration = float64(secs)
	}

	counters, err := h.live.Counters(r.Context(), callSID)
	if err != nil {
		h.logger.Debug("stream: no live counters for call", "error", err, "call_sid", callSID)
	}

	result, err := h.finalizeCall(r.Context(), conv.ID, callSID, &conversations.FinalizeRequest{
		EndTime:                end,
		DurationSeconds:        duration,
		TotalUserMessages:      counters.User,
		TotalAssistantMessages: counters.Assistant,
	}, nil)
	if err != nil {
		h.logger.Error("stream: failed to finalize call from status callback", "error", err, "call_sid", callSID)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.metrics.ObserveCallFinalized("status_callback", duration)
	h.logger.Info("stream: call finalized from status callback",
		"call_sid", callSID, "conversation_id", conv.ID, "call_status", status, "job_id", result.jobID)
	w.WriteHeader(http.StatusNoContent)
}
