package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/net/websocket"

	"github.com/casavoz/call-platform/internal/livecall"
	"github.com/casavoz/call-platform/pkg/logging"
)

func newLiveStore(t *testing.T) *livecall.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return livecall.NewStore(client)
}

func withCallSID(req *http.Request, callSID string) *http.Request {
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add("callSID", callSID)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	return req.WithContext(ctx)
}

func TestGetSnapshotLiveCall(t *testing.T) {
	live := newLiveStore(t)
	start := time.Date(2026, 4, 2, 18, 0, 0, 0, time.UTC)

	ctx := context.Background()
	if err := live.Start(ctx, livecall.Meta{CallSID: "CA500", ConversationID: 9, PhoneNumber: "+525511112222", StartTime: start}); err != nil {
		t.Fatalf("start live call: %v", err)
	}
	if err := live.Append(ctx, "CA500", livecall.Message{Role: "user", Content: "hola", Timestamp: start.Add(time.Second)}); err != nil {
		t.Fatalf("append: %v", err)
	}

	handler := NewLiveWatchHandler(live, logging.Default())

	req := withCallSID(httptest.NewRequest(http.MethodGet, "/admin/live/CA500", nil), "CA500")
	rec := httptest.NewRecorder()

	handler.GetSnapshot(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var snap livecall.Snapshot
	if err := json.NewDecoder(rec.Body).Decode(&snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.Meta.CallSID != "CA500" || snap.Meta.ConversationID != 9 {
		t.Fatalf("unexpected meta %+v", snap.Meta)
	}
	if len(snap.Messages) != 1 || snap.Messages[0].Content != "hola" {
		t.Fatalf("unexpected messages %+v", snap.Messages)
	}
	if snap.Counters.User != 1 {
		t.Fatalf("unexpected counters %+v", snap.Counters)
	}
}

func TestGetSnapshotNotLive(t *testing.T) {
	handler := NewLiveWatchHandler(newLiveStore(t), logging.Default())

	req := withCallSID(httptest.NewRequest(http.MethodGet, "/admin/live/CA404", nil), "CA404")
	rec := httptest.NewRecorder()

	handler.GetSnapshot(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestGetSnapshotNotConfigured(t *testing.T) {
	handler := NewLiveWatchHandler(nil, logging.Default())

	req := withCallSID(httptest.NewRequest(http.MethodGet, "/admin/live/CA500", nil), "CA500")
	rec := httptest.NewRecorder()

	handler.GetSnapshot(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status %d, got %d", http.StatusServiceUnavailable, rec.Code)
	}
}

func TestWatchLiveStreamsUpdates(t *testing.T) {
	live := newLiveStore(t)
	start := time.Date(2026, 4, 2, 18, 0, 0, 0, time.UTC)

	ctx := context.Background()
	if err := live.Start(ctx, livecall.Meta{CallSID: "CA500", ConversationID: 9, StartTime: start}); err != nil {
		t.Fatalf("start live call: %v", err)
	}
	if err := live.Append(ctx, "CA500", livecall.Message{Role: "user", Content: "hola", Timestamp: start.Add(time.Second)}); err != nil {
		t.Fatalf("append: %v", err)
	}

	handler := NewLiveWatchHandler(live, logging.Default())
	handler.pollInterval = 10 * time.Millisecond

	r := chi.NewRouter()
	r.Get("/admin/live/{callSID}/watch", handler.WatchLive)
	srv := httptest.NewServer(r)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/admin/live/CA500/watch"
	conn, err := websocket.Dial(wsURL, "", srv.URL)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var frame WatchFrame
	if err := websocket.JSON.Receive(conn, &frame); err != nil {
		t.Fatalf("receive snapshot: %v", err)
	}
	if frame.Type != "snapshot" {
		t.Fatalf("expected snapshot frame, got %q", frame.Type)
	}
	if frame.Snapshot == nil || len(frame.Snapshot.Messages) != 1 {
		t.Fatalf("unexpected snapshot %+v", frame.Snapshot)
	}

	// A new utterance lands while the dashboard is watching.
	if err := live.Append(ctx, "CA500", livecall.Message{Role: "assistant", Content: "buenas tardes", Timestamp: start.Add(3 * time.Second)}); err != nil {
		t.Fatalf("append: %v", err)
	}

	if err := websocket.JSON.Receive(conn, &frame); err != nil {
		t.Fatalf("receive messages: %v", err)
	}
	if frame.Type != "messages" {
		t.Fatalf("expected messages frame, got %q", frame.Type)
	}
	if len(frame.Messages) != 1 || frame.Messages[0].Content != "buenas tardes" {
		t.Fatalf("unexpected messages %+v", frame.Messages)
	}
	if frame.Counters == nil || frame.Counters.Assistant != 1 {
		t.Fatalf("unexpected counters %+v", frame.Counters)
	}

	// The pipeline cleans up when the call finalizes.
	if err := live.Cleanup(ctx, "CA500"); err != nil {
		t.Fatalf("cleanup: %v", err)
	}

	if err := websocket.JSON.Receive(conn, &frame); err != nil {
		t.Fatalf("receive ended: %v", err)
	}
	if frame.Type != "ended" {
		t.Fatalf("expected ended frame, got %q", frame.Type)
	}
}

func TestWatchLiveCallNotLive(t *testing.T) {
	handler := NewLiveWatchHandler(newLiveStore(t), logging.Default())

	r := chi.NewRouter()
	r.Get("/admin/live/{callSID}/watch", handler.WatchLive)
	srv := httptest.NewServer(r)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/admin/live/CA404/watch"
	conn, err := websocket.Dial(wsURL, "", srv.URL)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var frame WatchFrame
	if err := websocket.JSON.Receive(conn, &frame); err != nil {
		t.Fatalf("receive: %v", err)
	}
	if frame.Type != "ended" {
		t.Fatalf("expected ended frame, got %q", frame.Type)
	}
}
