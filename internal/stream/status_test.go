package stream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/casavoz/call-platform/internal/analysis"
	"github.com/casavoz/call-platform/internal/conversations"
	"github.com/casavoz/call-platform/internal/livecall"
	"github.com/casavoz/call-platform/pkg/logging"
)

func postStatus(t *testing.T, handler *Handler, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/voice/status", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	handler.Status(w, req)
	return w
}

func TestStatusFinalizesAbandonedCall(t *testing.T) {
	mr := miniredis.RunT(t)
	live := livecall.NewStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	convs := conversations.NewInMemoryStore()
	conv, err := convs.Create(context.Background(), &conversations.CreateRequest{
		CallSID:     "CA123",
		PhoneNumber: "+525512345678",
		StartTime:   callStart,
	})
	if err != nil {
		t.Fatalf("failed to seed conversation: %v", err)
	}

	ctx := context.Background()
	if err := live.Start(ctx, livecall.Meta{CallSID: "CA123", ConversationID: conv.ID, StartTime: callStart}); err != nil {
		t.Fatalf("failed to start live state: %v", err)
	}
	for _, m := range []livecall.Message{
		{Role: "user", Content: "Busco un departamento"},
		{Role: "assistant", Content: "Con gusto le ayudo"},
		{Role: "user", Content: "En la zona centro"},
	} {
		if err := live.Append(ctx, "CA123", m); err != nil {
			t.Fatalf("failed to append live message: %v", err)
		}
	}

	queue := analysis.NewMemoryQueue(4)
	jobs := &stubJobRecorder{}
	handler := NewHandler(convs, live, jobs, analysis.NewPublisher(queue, logging.Default()), nil, logging.Default())

	w := postStatus(t, handler, url.Values{
		"CallSid":      {"CA123"},
		"CallStatus":   {"completed"},
		"CallDuration": {"42"},
	})
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d: %s", http.StatusNoContent, w.Code, w.Body.String())
	}

	got, err := convs.GetByCallSID(ctx, "CA123")
	if err != nil {
		t.Fatalf("failed to load conversation: %v", err)
	}
	if got.EndTime == nil {
		t.Fatal("conversation not finalized")
	}
	if got.DurationSeconds == nil || *got.DurationSeconds != 42 {
		t.Errorf("duration = %v", got.DurationSeconds)
	}
	if got.TotalUserMessages != 2 || got.TotalAssistantMessages != 1 {
		t.Errorf("counters = %d/%d", got.TotalUserMessages, got.TotalAssistantMessages)
	}

	if jobs.recorded() == nil {
		t.Error("no analysis job recorded")
	}
	if _, err := live.Snapshot(ctx, "CA123"); !errors.Is(err, livecall.ErrCallNotLive) {
		t.Errorf("live state not cleaned up: %v", err)
	}
}

func TestStatusAlreadyFinalized(t *testing.T) {
	convs := conversations.NewInMemoryStore()
	conv, err := convs.Create(context.Background(), &conversations.CreateRequest{CallSID: "CA123", StartTime: callStart})
	if err != nil {
		t.Fatalf("failed to seed conversation: %v", err)
	}
	if _, err := convs.Finalize(context.Background(), conv.ID, &conversations.FinalizeRequest{
		EndTime:         callStart.Add(time.Minute),
		DurationSeconds: 60,
	}); err != nil {
		t.Fatalf("failed to finalize conversation: %v", err)
	}

	handler := NewHandler(convs, nil, nil, nil, nil, logging.Default())

	w := postStatus(t, handler, url.Values{
		"CallSid":      {"CA123"},
		"CallStatus":   {"completed"},
		"CallDuration": {"999"},
	})
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, w.Code)
	}

	got, err := convs.GetByCallSID(context.Background(), "CA123")
	if err != nil {
		t.Fatalf("failed to load conversation: %v", err)
	}
	if got.DurationSeconds == nil || *got.DurationSeconds != 60 {
		t.Errorf("duration changed to %v", got.DurationSeconds)
	}
}

func TestStatusUnknownCall(t *testing.T) {
	handler := NewHandler(conversations.NewInMemoryStore(), nil, nil, nil, nil, logging.Default())

	w := postStatus(t, handler, url.Values{
		"CallSid":    {"CA999"},
		"CallStatus": {"completed"},
	})
	if w.Code != http.StatusNoContent {
		t.Errorf("expected status %d, got %d", http.StatusNoContent, w.Code)
	}
}

func TestStatusNonTerminalIgnored(t *testing.T) {
	convs := conversations.NewInMemoryStore()
	if _, err := convs.Create(context.Background(), &conversations.CreateRequest{CallSID: "CA123", StartTime: callStart}); err != nil {
		t.Fatalf("failed to seed conversation: %v", err)
	}

	handler := NewHandler(convs, nil, nil, nil, nil, logging.Default())

	w := postStatus(t, handler, url.Values{
		"CallSid":    {"CA123"},
		"CallStatus": {"in-progress"},
	})
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, w.Code)
	}

	got, err := convs.GetByCallSID(context.Background(), "CA123")
	if err != nil {
		t.Fatalf("failed to load conversation: %v", err)
	}
	if got.EndTime != nil {
		t.Error("non-terminal status finalized the conversation")
	}
}

func TestStatusMissingCallSid(t *testing.T) {
	handler := NewHandler(conversations.NewInMemoryStore(), nil, nil, nil, nil, logging.Default())

	w := postStatus(t, handler, url.Values{"CallStatus": {"completed"}})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}
