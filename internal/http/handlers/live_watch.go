package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/net/websocket"

	"github.com/casavoz/call-platform/internal/livecall"
	"github.com/casavoz/call-platform/pkg/logging"
)

// LiveWatchHandler lets dashboard staff follow a call while it is still on
// the line. State comes straight from the live Redis snapshots the voice
// pipeline maintains, so a watcher never touches the call itself.
type LiveWatchHandler struct {
	live   *livecall.Store
	logger *logging.Logger

	// pollInterval controls how often the watch socket re-reads the live
	// state.
	pollInterval time.Duration
}

// NewLiveWatchHandler creates a live watch handler. live may be nil when
// Redis is not configured; the endpoints then report 503.
func NewLiveWatchHandler(live *livecall.Store, logger *logging.Logger) *LiveWatchHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &LiveWatchHandler{
		live:         live,
		logger:       logger,
		pollInterval: time.Second,
	}
}

// WatchFrame is what the watch socket sends to the dashboard.
type WatchFrame struct {
	Type     string             `json:"type"` // "snapshot", "messages", "ended", "error"
	Snapshot *livecall.Snapshot `json:"snapshot,omitempty"`
	Messages []livecall.Message `json:"messages,omitempty"`
	Counters *livecall.Counters `json:"counters,omitempty"`
	Error    string             `json:"error,omitempty"`
}

// GetSnapshot returns the current live state of a call.
// GET /admin/live/{callSID}
func (h *LiveWatchHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	if h.live == nil {
		http.Error(w, "live call state not configured", http.StatusServiceUnavailable)
		return
	}

	callSID := chi.URLParam(r, "callSID")
	snap, err := h.live.Snapshot(r.Context(), callSID)
	if err != nil {
		if errors.Is(err, livecall.ErrCallNotLive) {
			http.Error(w, "call not live", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to read live snapshot", "error", err, "call_sid", callSID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snap)
}

// WatchLive upgrades to WebSocket and streams transcript updates until the
// call ends or the watcher disconnects.
// GET /admin/live/{callSID}/watch
func (h *LiveWatchHandler) WatchLive(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveWatch(conn, r)
	}).ServeHTTP(w, r)
}

func (h *LiveWatchHandler) serveWatch(conn *websocket.Conn, r *http.Request) {
	if h.live == nil {
		_ = websocket.JSON.Send(conn, WatchFrame{Type: "error", Error: "live call state not configured"})
		return
	}

	callSID := chi.URLParam(r, "callSID")
	snap, err := h.live.Snapshot(r.Context(), callSID)
	if err != nil {
		if errors.Is(err, livecall.ErrCallNotLive) {
			_ = websocket.JSON.Send(conn, WatchFrame{Type: "ended"})
		} else {
			h.logger.Error("failed to read live snapshot", "error", err, "call_sid", callSID)
			_ = websocket.JSON.Send(conn, WatchFrame{Type: "error", Error: "internal error"})
		}
		return
	}

	if err := websocket.JSON.Send(conn, WatchFrame{Type: "snapshot", Snapshot: snap}); err != nil {
		return
	}

	h.logger.Info("live watch opened", "call_sid", callSID)
	lastSent := len(snap.Messages)

	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}

		snap, err := h.live.Snapshot(r.Context(), callSID)
		if err != nil {
			// The voice pipeline cleans up live state when the call
			// finalizes, so not-live here means the call ended.
			if errors.Is(err, livecall.ErrCallNotLive) {
				_ = websocket.JSON.Send(conn, WatchFrame{Type: "ended"})
			}
			return
		}

		if len(snap.Messages) <= lastSent {
			continue
		}

		frame := WatchFrame{
			Type:     "messages",
			Messages: snap.Messages[lastSent:],
			Counters: &snap.Counters,
		}
		if err := websocket.JSON.Send(conn, frame); err != nil {
			h.logger.Debug("live watch closed", "call_sid", callSID, "error", err)
			return
		}
		lastSent = len(snap.Messages)
	}
}
