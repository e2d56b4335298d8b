package recordings

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/go-chi/chi/v5"

	"github.com/casavoz/call-platform/internal/conversations"
	"github.com/casavoz/call-platform/pkg/logging"
)

func seedRecordedCall(t *testing.T, convs conversations.Store) {
	t.Helper()
	_, err := convs.Create(context.Background(), &conversations.CreateRequest{
		CallSID:   "CA123",
		StartTime: time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("failed to seed conversation: %v", err)
	}
}

func routeWithCallSID(req *http.Request, callSID string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("callSID", callSID)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestHandlerGetRecording(t *testing.T) {
	convs := conversations.NewInMemoryStore()
	seedRecordedCall(t, convs)

	mock := &mockS3{getBody: []byte("wav bytes")}
	handler := NewHandler(NewStore(mock, "bucket", logging.Default()), convs, logging.Default())

	req := httptest.NewRequest(http.MethodGet, "/admin/recordings/CA123", nil)
	req = routeWithCallSID(req, "CA123")
	w := httptest.NewRecorder()

	handler.Get(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "audio/wav" {
		t.Errorf("content type = %q", ct)
	}
	if w.Body.String() != "wav bytes" {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestHandlerGetRecordingUnknownCall(t *testing.T) {
	convs := conversations.NewInMemoryStore()
	handler := NewHandler(NewStore(&mockS3{}, "bucket", logging.Default()), convs, logging.Default())

	req := httptest.NewRequest(http.MethodGet, "/admin/recordings/CA999", nil)
	req = routeWithCallSID(req, "CA999")
	w := httptest.NewRecorder()

	handler.Get(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, w.Code)
	}
}

func TestHandlerGetRecordingMissingObject(t *testing.T) {
	convs := conversations.NewInMemoryStore()
	seedRecordedCall(t, convs)

	mock := &mockS3{getErr: &s3types.NoSuchKey{}}
	handler := NewHandler(NewStore(mock, "bucket", logging.Default()), convs, logging.Default())

	req := httptest.NewRequest(http.MethodGet, "/admin/recordings/CA123", nil)
	req = routeWithCallSID(req, "CA123")
	w := httptest.NewRecorder()

	handler.Get(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, w.Code)
	}
}

func TestHandlerGetRecordingStorageDisabled(t *testing.T) {
	convs := conversations.NewInMemoryStore()
	seedRecordedCall(t, convs)

	handler := NewHandler(NewStore(nil, "", logging.Default()), convs, logging.Default())

	req := httptest.NewRequest(http.MethodGet, "/admin/recordings/CA123", nil)
	req = routeWithCallSID(req, "CA123")
	w := httptest.NewRecorder()

	handler.Get(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status %d, got %d", http.StatusServiceUnavailable, w.Code)
	}
}
