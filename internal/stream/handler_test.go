package stream

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gorilla/websocket"

	"github.com/casavoz/call-platform/internal/analysis"
	"github.com/casavoz/call-platform/internal/conversations"
	"github.com/casavoz/call-platform/internal/recordings"
	"github.com/casavoz/call-platform/pkg/logging"
)

var callStart = time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

type stubJobRecorder struct {
	mu  sync.Mutex
	put *analysis.JobRecord
}

func (s *stubJobRecorder) PutPending(ctx context.Context, job *analysis.JobRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put = job
	return nil
}

func (s *stubJobRecorder) GetJob(ctx context.Context, jobID string) (*analysis.JobRecord, error) {
	return nil, analysis.ErrJobNotFound
}

func (s *stubJobRecorder) recorded() *analysis.JobRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.put
}

type stubS3 struct {
	mu       sync.Mutex
	putInput *s3.PutObjectInput
}

func (s *stubS3) PutObject(ctx context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putInput = input
	return &s3.PutObjectOutput{}, nil
}

func (s *stubS3) GetObject(ctx context.Context, input *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	return &s3.GetObjectOutput{}, nil
}

func (s *stubS3) lastPut() *s3.PutObjectInput {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putInput
}

func dialStream(t *testing.T, h *Handler) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(h.HandleStream))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendFrame(t *testing.T, conn *websocket.Conn, frame map[string]any) {
	t.Helper()
	if err := conn.WriteJSON(frame); err != nil {
		t.Fatalf("failed to send frame: %v", err)
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) outboundFrame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame outboundFrame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("failed to read frame: %v", err)
	}
	return frame
}

func startCall(t *testing.T, conn *websocket.Conn, callSID string) outboundFrame {
	t.Helper()
	sendFrame(t, conn, map[string]any{
		"event":        "start",
		"call_sid":     callSID,
		"phone_number": "+525512345678",
		"start_time":   callStart.Format(time.RFC3339),
	})
	frame := readFrame(t, conn)
	if frame.Event != "started" {
		t.Fatalf("expected started frame, got %+v", frame)
	}
	return frame
}

func TestStreamCallLifecycle(t *testing.T) {
	convs := conversations.NewInMemoryStore()
	handler := NewHandler(convs, nil, nil, nil, nil, logging.Default())
	conn := dialStream(t, handler)

	started := startCall(t, conn, "CA123")
	if started.ConversationID == 0 {
		t.Fatal("started frame missing conversation_id")
	}

	sendFrame(t, conn, map[string]any{
		"event":    "message",
		"call_sid": "CA123",
		"role":     "user",
		"content":  "Busco una casa en Polanco",
	})
	sendFrame(t, conn, map[string]any{
		"event":   "message",
		"role":    "assistant",
		"content": "Claro, tenemos varias opciones disponibles.",
	})
	sendFrame(t, conn, map[string]any{
		"event":    "stop",
		"end_time": callStart.Add(90 * time.Second).Format(time.RFC3339),
	})

	frame := readFrame(t, conn)
	if frame.Event != "finalized" {
		t.Fatalf("expected finalized frame, got %+v", frame)
	}
	if frame.CallSID != "CA123" || frame.ConversationID != started.ConversationID {
		t.Errorf("finalized frame = %+v", frame)
	}

	conv, err := convs.GetByCallSID(context.Background(), "CA123")
	if err != nil {
		t.Fatalf("failed to load conversation: %v", err)
	}
	if conv.EndTime == nil {
		t.Fatal("conversation not finalized")
	}
	if conv.DurationSeconds == nil || *conv.DurationSeconds != 90 {
		t.Errorf("duration = %v", conv.DurationSeconds)
	}
	if conv.TotalUserMessages != 1 || conv.TotalAssistantMessages != 1 {
		t.Errorf("counters = %d/%d", conv.TotalUserMessages, conv.TotalAssistantMessages)
	}
	if conv.PhoneNumber != "+525512345678" {
		t.Errorf("phone number = %q", conv.PhoneNumber)
	}

	msgs, err := convs.ListMessages(context.Background(), conv.ID)
	if err != nil {
		t.Fatalf("failed to list messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != "user" || msgs[1].Role != "assistant" {
		t.Errorf("message roles = %q, %q", msgs[0].Role, msgs[1].Role)
	}
}

func TestStreamStartRequiresCallSID(t *testing.T) {
	handler := NewHandler(conversations.NewInMemoryStore(), nil, nil, nil, nil, logging.Default())
	conn := dialStream(t, handler)

	sendFrame(t, conn, map[string]any{"event": "start"})

	frame := readFrame(t, conn)
	if frame.Event != "error" || !strings.Contains(frame.Error, "call_sid") {
		t.Errorf("frame = %+v", frame)
	}
}

func TestStreamDuplicateCallSID(t *testing.T) {
	convs := conversations.NewInMemoryStore()
	if _, err := convs.Create(context.Background(), &conversations.CreateRequest{CallSID: "CA123", StartTime: callStart}); err != nil {
		t.Fatalf("failed to seed conversation: %v", err)
	}

	handler := NewHandler(convs, nil, nil, nil, nil, logging.Default())
	conn := dialStream(t, handler)

	sendFrame(t, conn, map[string]any{
		"event":      "start",
		"call_sid":   "CA123",
		"start_time": callStart.Format(time.RFC3339),
	})

	frame := readFrame(t, conn)
	if frame.Event != "error" || !strings.Contains(frame.Error, "already exists") {
		t.Errorf("frame = %+v", frame)
	}
}

func TestStreamMessageWithoutStart(t *testing.T) {
	handler := NewHandler(conversations.NewInMemoryStore(), nil, nil, nil, nil, logging.Default())
	conn := dialStream(t, handler)

	sendFrame(t, conn, map[string]any{
		"event":   "message",
		"role":    "user",
		"content": "hola",
	})

	frame := readFrame(t, conn)
	if frame.Event != "error" || !strings.Contains(frame.Error, "no active call") {
		t.Errorf("frame = %+v", frame)
	}
}

func TestStreamMismatchedCallSID(t *testing.T) {
	handler := NewHandler(conversations.NewInMemoryStore(), nil, nil, nil, nil, logging.Default())
	conn := dialStream(t, handler)

	startCall(t, conn, "CA123")
	sendFrame(t, conn, map[string]any{
		"event":    "message",
		"call_sid": "CA999",
		"role":     "user",
		"content":  "hola",
	})

	frame := readFrame(t, conn)
	if frame.Event != "error" || !strings.Contains(frame.Error, "does not match") {
		t.Errorf("frame = %+v", frame)
	}
}

func TestStreamInvalidRoleReportsError(t *testing.T) {
	handler := NewHandler(conversations.NewInMemoryStore(), nil, nil, nil, nil, logging.Default())
	conn := dialStream(t, handler)

	startCall(t, conn, "CA123")
	sendFrame(t, conn, map[string]any{
		"event":   "message",
		"role":    "system",
		"content": "hola",
	})

	frame := readFrame(t, conn)
	if frame.Event != "error" || !strings.Contains(frame.Error, "role") {
		t.Errorf("frame = %+v", frame)
	}
}

func TestStreamMalformedFrame(t *testing.T) {
	handler := NewHandler(conversations.NewInMemoryStore(), nil, nil, nil, nil, logging.Default())
	conn := dialStream(t, handler)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{")); err != nil {
		t.Fatalf("failed to send frame: %v", err)
	}

	frame := readFrame(t, conn)
	if frame.Event != "error" || frame.Error != "malformed frame" {
		t.Errorf("frame = %+v", frame)
	}
}

func TestStreamPing(t *testing.T) {
	handler := NewHandler(conversations.NewInMemoryStore(), nil, nil, nil, nil, logging.Default())
	conn := dialStream(t, handler)

	sendFrame(t, conn, map[string]any{"event": "ping"})

	frame := readFrame(t, conn)
	if frame.Event != "pong" {
		t.Errorf("frame = %+v", frame)
	}
}

func TestStreamStopEnqueuesAnalysis(t *testing.T) {
	convs := conversations.NewInMemoryStore()
	queue := analysis.NewMemoryQueue(4)
	jobs := &stubJobRecorder{}
	publisher := analysis.NewPublisher(queue, logging.Default())

	handler := NewHandler(convs, nil, jobs, publisher, nil, logging.Default())
	conn := dialStream(t, handler)

	started := startCall(t, conn, "CA123")
	sendFrame(t, conn, map[string]any{
		"event":   "message",
		"role":    "user",
		"content": "Quiero agendar una visita",
	})
	sendFrame(t, conn, map[string]any{"event": "stop"})

	frame := readFrame(t, conn)
	if frame.Event != "finalized" {
		t.Fatalf("expected finalized frame, got %+v", frame)
	}
	if frame.JobID == "" {
		t.Fatal("finalized frame missing job_id")
	}

	job := jobs.recorded()
	if job == nil {
		t.Fatal("no pending job recorded")
	}
	if job.JobID != frame.JobID || job.ConversationID != started.ConversationID || job.CallSID != "CA123" {
		t.Errorf("job = %+v", job)
	}

	msgs, err := queue.Receive(context.Background(), 1, 0)
	if err != nil || len(msgs) != 1 {
		t.Fatalf("queue receive = %v, %v", msgs, err)
	}
	var payload struct {
		ID             string `json:"id"`
		ConversationID int64  `json:"conversation_id"`
		CallSID        string `json:"call_sid"`
	}
	if err := json.Unmarshal([]byte(msgs[0].Body), &payload); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if payload.ID != frame.JobID || payload.ConversationID != started.ConversationID || payload.CallSID != "CA123" {
		t.Errorf("payload = %+v", payload)
	}
}

func TestStreamMediaBuildsRecording(t *testing.T) {
	convs := conversations.NewInMemoryStore()
	s3Stub := &stubS3{}
	rec := recordings.NewStore(s3Stub, "casavoz-recordings", logging.Default())

	handler := NewHandler(convs, nil, nil, nil, rec, logging.Default())
	conn := dialStream(t, handler)

	startCall(t, conn, "CA123")
	sendFrame(t, conn, map[string]any{
		"event":   "media",
		"payload": base64.StdEncoding.EncodeToString([]byte{0xFF, 0xFF, 0x7F, 0x7F}),
	})
	sendFrame(t, conn, map[string]any{"event": "stop"})

	frame := readFrame(t, conn)
	if frame.Event != "finalized" {
		t.Fatalf("expected finalized frame, got %+v", frame)
	}

	put := s3Stub.lastPut()
	if put == nil {
		t.Fatal("no recording uploaded")
	}
	if got := *put.Key; got != "recordings/2026/03/10/CA123.wav" {
		t.Errorf("key = %q", got)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(put.Body); err != nil {
		t.Fatalf("failed to read uploaded body: %v", err)
	}
	wav := buf.Bytes()
	if len(wav) != 44+8 {
		t.Fatalf("wav length = %d", len(wav))
	}
	if !bytes.HasPrefix(wav, []byte("RIFF")) {
		t.Error("uploaded object is not a WAV file")
	}
}

func TestStreamSecondStartRejected(t *testing.T) {
	handler := NewHandler(conversations.NewInMemoryStore(), nil, nil, nil, nil, logging.Default())
	conn := dialStream(t, handler)

	startCall(t, conn, "CA123")
	sendFrame(t, conn, map[string]any{
		"event":      "start",
		"call_sid":   "CA456",
		"start_time": callStart.Format(time.RFC3339),
	})

	frame := readFrame(t, conn)
	if frame.Event != "error" || !strings.Contains(frame.Error, "already active") {
		t.Errorf("frame = %+v", frame)
	}
}

func TestStreamStopWithoutStart(t *testing.T) {
	handler := NewHandler(conversations.NewInMemoryStore(), nil, nil, nil, nil, logging.Default())
	conn := dialStream(t, handler)

	sendFrame(t, conn, map[string]any{"event": "stop"})

	frame := readFrame(t, conn)
	if frame.Event != "error" || !strings.Contains(frame.Error, "no active call") {
		t.Errorf("frame = %+v", frame)
	}
}
