package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/casavoz/call-platform/internal/conversations"
	"github.com/casavoz/call-platform/pkg/logging"
)

func newTestHandler(t *testing.T) (*Handler, conversations.Store, Store) {
	t.Helper()
	convs := conversations.NewInMemoryStore()
	store := NewInMemoryStore(convs)
	handler := NewHandler(store, convs, nil, nil, logging.Default())
	return handler, convs, store
}

func upsertBody(t *testing.T) []byte {
	t.Helper()
	body, err := json.Marshal(UpsertRequest{
		Resumen:          "Cliente interesado en un depto",
		Sentimiento:      "positivo - muy decidido",
		InteresCliente:   "Depto de 2 recámaras",
		NivelInteres:     8,
		CalificacionLead: GradeCaliente,
		ProximosPasos:    []string{"Agendar visita"},
	})
	if err != nil {
		t.Fatalf("failed to marshal request: %v", err)
	}
	return body
}

func TestHandlerUpsertAnalysis(t *testing.T) {
	handler, convs, _ := newTestHandler(t)
	conv := seedConversation(t, convs, "CA200")

	req := httptest.NewRequest(http.MethodPut, "/conversations/1/analysis", bytes.NewReader(upsertBody(t)))
	req = routeWithConversationID(req, fmt.Sprint(conv.ID))
	w := httptest.NewRecorder()

	handler.Upsert(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	var rec Record
	if err := json.NewDecoder(w.Body).Decode(&rec); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if rec.ConversationID != conv.ID || rec.CalificacionLead != GradeCaliente {
		t.Errorf("record = %+v", rec)
	}
	if rec.Sentimiento != "positivo" || !strings.Contains(rec.SentimientoDetalle, "decidido") {
		t.Errorf("expected sentiment split, got %q / %q", rec.Sentimiento, rec.SentimientoDetalle)
	}
}

func TestHandlerUpsertInvalidBody(t *testing.T) {
	handler, convs, _ := newTestHandler(t)
	conv := seedConversation(t, convs, "CA201")

	req := httptest.NewRequest(http.MethodPut, "/conversations/1/analysis", strings.NewReader("{"))
	req = routeWithConversationID(req, fmt.Sprint(conv.ID))
	w := httptest.NewRecorder()

	handler.Upsert(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestHandlerUpsertInvalidGrade(t *testing.T) {
	handler, convs, _ := newTestHandler(t)
	conv := seedConversation(t, convs, "CA202")

	body, _ := json.Marshal(UpsertRequest{CalificacionLead: "urgente"})
	req := httptest.NewRequest(http.MethodPut, "/conversations/1/analysis", bytes.NewReader(body))
	req = routeWithConversationID(req, fmt.Sprint(conv.ID))
	w := httptest.NewRecorder()

	handler.Upsert(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d: %s", http.StatusBadRequest, w.Code, w.Body.String())
	}
}

func TestHandlerUpsertMissingConversation(t *testing.T) {
	handler, _, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPut, "/conversations/9999/analysis", bytes.NewReader(upsertBody(t)))
	req = routeWithConversationID(req, "9999")
	w := httptest.NewRecorder()

	handler.Upsert(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, w.Code)
	}
}

func TestHandlerUpsertInvalidID(t *testing.T) {
	handler, _, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPut, "/conversations/abc/analysis", bytes.NewReader(upsertBody(t)))
	req = routeWithConversationID(req, "abc")
	w := httptest.NewRecorder()

	handler.Upsert(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestHandlerGetAnalysis(t *testing.T) {
	handler, convs, store := newTestHandler(t)
	conv := seedConversation(t, convs, "CA203")

	if _, err := store.Upsert(context.Background(), conv.ID, &UpsertRequest{
		Resumen:          "Cliente tibio",
		CalificacionLead: GradeTibio,
		NivelInteres:     5,
	}); err != nil {
		t.Fatalf("failed to seed analysis: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/conversations/1/analysis", nil)
	req = routeWithConversationID(req, fmt.Sprint(conv.ID))
	w := httptest.NewRecorder()

	handler.Get(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	var rec Record
	if err := json.NewDecoder(w.Body).Decode(&rec); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if rec.CalificacionLead != GradeTibio {
		t.Errorf("record = %+v", rec)
	}
}

func TestHandlerGetAnalysisNotFound(t *testing.T) {
	handler, convs, _ := newTestHandler(t)
	conv := seedConversation(t, convs, "CA204")

	req := httptest.NewRequest(http.MethodGet, "/conversations/1/analysis", nil)
	req = routeWithConversationID(req, fmt.Sprint(conv.ID))
	w := httptest.NewRecorder()

	handler.Get(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, w.Code)
	}
}

func TestHandlerEnqueueAcceptsJob(t *testing.T) {
	convs := conversations.NewInMemoryStore()
	store := NewInMemoryStore(convs)
	queue := NewMemoryQueue(8)
	jobs := &stubJobRecorder{}
	handler := NewHandler(store, convs, jobs, NewPublisher(queue, logging.Default()), logging.Default())

	conv := seedConversation(t, convs, "CA300")

	req := httptest.NewRequest(http.MethodPost, "/conversations/1/analyze", nil)
	req = routeWithConversationID(req, fmt.Sprint(conv.ID))
	w := httptest.NewRecorder()

	handler.Enqueue(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected status %d, got %d: %s", http.StatusAccepted, w.Code, w.Body.String())
	}
	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["job_id"] == "" || resp["status"] != string(JobStatusPending) {
		t.Fatalf("unexpected response: %v", resp)
	}

	if jobs.put == nil {
		t.Fatal("expected pending job to be recorded")
	}
	if jobs.put.ConversationID != conv.ID || jobs.put.CallSID != conv.CallSID {
		t.Errorf("pending job = %+v", jobs.put)
	}
	if jobs.put.JobID != resp["job_id"] {
		t.Errorf("job id mismatch: stored %s, returned %s", jobs.put.JobID, resp["job_id"])
	}

	msgs, err := queue.Receive(context.Background(), 1, 0)
	if err != nil {
		t.Fatalf("failed to receive queued job: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 queued message, got %d", len(msgs))
	}
	var payload jobPayload
	if err := json.Unmarshal([]byte(msgs[0].Body), &payload); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if payload.ID != resp["job_id"] || payload.ConversationID != conv.ID || !payload.TrackStatus {
		t.Errorf("payload = %+v", payload)
	}
}

func TestHandlerEnqueueUnknownConversation(t *testing.T) {
	convs := conversations.NewInMemoryStore()
	store := NewInMemoryStore(convs)
	jobs := &stubJobRecorder{}
	handler := NewHandler(store, convs, jobs, NewPublisher(NewMemoryQueue(8), logging.Default()), logging.Default())

	req := httptest.NewRequest(http.MethodPost, "/conversations/42/analyze", nil)
	req = routeWithConversationID(req, "42")
	w := httptest.NewRecorder()

	handler.Enqueue(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, w.Code)
	}
	if jobs.put != nil {
		t.Errorf("expected no pending job, got %+v", jobs.put)
	}
}

func TestHandlerEnqueueQueueNotConfigured(t *testing.T) {
	handler, convs, _ := newTestHandler(t)
	conv := seedConversation(t, convs, "CA301")

	req := httptest.NewRequest(http.MethodPost, "/conversations/1/analyze", nil)
	req = routeWithConversationID(req, fmt.Sprint(conv.ID))
	w := httptest.NewRecorder()

	handler.Enqueue(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status %d, got %d", http.StatusServiceUnavailable, w.Code)
	}
}

func TestHandlerJobStatus(t *testing.T) {
	convs := conversations.NewInMemoryStore()
	store := NewInMemoryStore(convs)
	jobs := &stubJobRecorder{
		job: &JobRecord{JobID: "job-9", Status: JobStatusCompleted, ConversationID: 4, Grade: GradeCaliente},
	}
	handler := NewHandler(store, convs, jobs, nil, logging.Default())

	req := httptest.NewRequest(http.MethodGet, "/analysis-jobs/job-9", nil)
	req = routeWithJobID(req, "job-9")
	w := httptest.NewRecorder()

	handler.JobStatus(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	var job JobRecord
	if err := json.NewDecoder(w.Body).Decode(&job); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if job.JobID != "job-9" || job.Status != JobStatusCompleted || job.Grade != GradeCaliente {
		t.Errorf("job = %+v", job)
	}
}

func TestHandlerJobStatusNotFound(t *testing.T) {
	convs := conversations.NewInMemoryStore()
	handler := NewHandler(NewInMemoryStore(convs), convs, &stubJobRecorder{}, nil, logging.Default())

	req := httptest.NewRequest(http.MethodGet, "/analysis-jobs/missing", nil)
	req = routeWithJobID(req, "missing")
	w := httptest.NewRecorder()

	handler.JobStatus(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, w.Code)
	}
}

func TestHandlerJobStatusMissingID(t *testing.T) {
	convs := conversations.NewInMemoryStore()
	handler := NewHandler(NewInMemoryStore(convs), convs, &stubJobRecorder{}, nil, logging.Default())

	req := httptest.NewRequest(http.MethodGet, "/analysis-jobs/", nil)
	w := httptest.NewRecorder()

	handler.JobStatus(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

type stubJobRecorder struct {
	put    *JobRecord
	putErr error
	job    *JobRecord
	getErr error
}

func (s *stubJobRecorder) PutPending(ctx context.Context, job *JobRecord) error {
	s.put = job
	return s.putErr
}

func (s *stubJobRecorder) GetJob(ctx context.Context, jobID string) (*JobRecord, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	if s.job != nil && s.job.JobID == jobID {
		return s.job, nil
	}
	return nil, ErrJobNotFound
}

var errStub = errors.New("stub failure")

func TestHandlerEnqueueJobStoreFailure(t *testing.T) {
	convs := conversations.NewInMemoryStore()
	store := NewInMemoryStore(convs)
	jobs := &stubJobRecorder{putErr: errStub}
	handler := NewHandler(store, convs, jobs, NewPublisher(NewMemoryQueue(8), logging.Default()), logging.Default())

	conv := seedConversation(t, convs, "CA302")

	req := httptest.NewRequest(http.MethodPost, "/conversations/1/analyze", nil)
	req = routeWithConversationID(req, fmt.Sprint(conv.ID))
	w := httptest.NewRecorder()

	handler.Enqueue(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
	}
}

func routeWithConversationID(req *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("conversationID", id)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func routeWithJobID(req *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("jobID", id)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}
