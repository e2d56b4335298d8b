// Package stream ingests live call events from the voice pipeline over a
// WebSocket and turns them into persisted conversations. One connection
// carries one call: a start frame opens the conversation, message frames
// append utterances, media frames carry raw caller audio for the recording,
// and a stop frame finalizes the call and queues its lead analysis.
package stream

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/casavoz/call-platform/internal/analysis"
	"github.com/casavoz/call-platform/internal/conversations"
	"github.com/casavoz/call-platform/internal/livecall"
	"github.com/casavoz/call-platform/internal/observability/metrics"
	"github.com/casavoz/call-platform/internal/recordings"
	"github.com/casavoz/call-platform/pkg/logging"
)

// Publisher enqueues analysis jobs for finished calls.
type Publisher interface {
	Enqueue(ctx context.Context, jobID string, conversationID int64, callSID string, opts ...analysis.PublishOption) (string, error)
}

// Handler terminates the voice pipeline's event stream.
type Handler struct {
	convs      conversations.Store
	live       *livecall.Store
	jobs       analysis.JobRecorder
	publisher  Publisher
	recordings *recordings.Store
	metrics    *metrics.CallMetrics
	logger     *logging.Logger

	upgrader websocket.Upgrader
	tracer   trace.Tracer
}

// NewHandler creates a stream handler. The conversation store is required;
// live state, job tracking, and recording storage are optional and skipped
// when nil.
func NewHandler(convs conversations.Store, live *livecall.Store, jobs analysis.JobRecorder, publisher Publisher, rec *recordings.Store, logger *logging.Logger) *Handler {
	if convs == nil {
		panic("stream: conversation store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		convs:      convs,
		live:       live,
		jobs:       jobs,
		publisher:  publisher,
		recordings: rec,
		logger:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The pipeline connects server to server, not from a browser.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		tracer: otel.Tracer("casavoz.internal.stream"),
	}
}

// WithMetrics wires call pipeline metrics. Chainable.
func (h *Handler) WithMetrics(m *metrics.CallMetrics) *Handler {
	h.metrics = m
	return h
}

// inboundFrame is one event from the voice pipeline.
type inboundFrame struct {
	Event       string    `json:"event"` // "start", "message", "media", "stop", "ping"
	CallSID     string    `json:"call_sid,omitempty"`
	PhoneNumber string    `json:"phone_number,omitempty"`
	StartTime   time.Time `json:"start_time,omitempty"`
	Role        string    `json:"role,omitempty"`
	Content     string    `json:"content,omitempty"`
	Confidence  *float64  `json:"confidence,omitempty"`
	Timestamp   time.Time `json:"timestamp,omitempty"`
	EndTime     time.Time `json:"end_time,omitempty"`
	Payload     string    `json:"payload,omitempty"` // base64 mu-law audio
}

// outboundFrame acknowledges lifecycle transitions back to the pipeline.
type outboundFrame struct {
	Event          string `json:"event"` // "started", "finalized", "pong", "error"
	CallSID        string `json:"call_sid,omitempty"`
	ConversationID int64  `json:"conversation_id,omitempty"`
	JobID          string `json:"job_id,omitempty"`
	Error          string `json:"error,omitempty"`
}

// callSession is the per-connection state of the active call. The session
// counters are authoritative for finalization: they count exactly the
// messages this connection persisted.
type callSession struct {
	conversationID    int64
	callSID           string
	startTime         time.Time
	userMessages      int
	assistantMessages int
	encoder           *recordings.Encoder
}

// HandleStream upgrades to WebSocket and serves one call's event stream.
func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("stream: websocket upgrade failed", "error", err, "remote_addr", r.RemoteAddr)
		return
	}
	defer conn.Close()

	h.logger.Info("stream: connection opened", "remote_addr", r.RemoteAddr)
	h.serve(r.Context(), conn)
}

func (h *Handler) serve(ctx context.Context, conn *websocket.Conn) {
	var sess *callSession
	defer func() {
		if sess != nil {
			// Dropped mid-call. Leave the conversation open so the Twilio
			// status callback can finalize it; the live state stays for the
			// counters it needs.
			h.logger.Warn("stream: connection closed mid-call", "call_sid", sess.callSID, "conversation_id", sess.conversationID)
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			h.logger.Debug("stream: connection closed", "error", err)
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			h.sendError(conn, "", "malformed frame")
			continue
		}

		switch frame.Event {
		case "start":
			if sess != nil {
				h.sendError(conn, sess.callSID, "call already active on this connection")
				continue
			}
			sess = h.handleStart(ctx, conn, frame)
		case "message":
			h.handleMessage(ctx, conn, sess, frame)
		case "media":
			h.handleMedia(sess, frame)
		case "stop":
			if h.handleStop(ctx, conn, sess, frame) {
				sess = nil
			}
		case "ping":
			h.writeFrame(conn, outboundFrame{Event: "pong"})
		default:
			h.sendError(conn, frame.CallSID, "unknown event "+frame.Event)
		}
	}
}

func (h *Handler) handleStart(ctx context.Context, conn *websocket.Conn, frame inboundFrame) *callSession {
	if strings.TrimSpace(frame.CallSID) == "" {
		h.sendError(conn, "", "start requires call_sid")
		return nil
	}

	start := frame.StartTime
	if start.IsZero() {
		start = time.Now().UTC()
	}

	conv, err := h.convs.Create(ctx, &conversations.CreateRequest{
		CallSID:     frame.CallSID,
		PhoneNumber: frame.PhoneNumber,
		StartTime:   start,
	})
	if err != nil {
		h.logger.Warn("stream: failed to start conversation", "error", err, "call_sid", frame.CallSID)
		h.sendError(conn, frame.CallSID, err.Error())
		return nil
	}

	if err := h.live.Start(ctx, livecall.Meta{
		CallSID:        conv.CallSID,
		ConversationID: conv.ID,
		PhoneNumber:    conv.PhoneNumber,
		StartTime:      conv.StartTime,
	}); err != nil {
		h.logger.Warn("stream: failed to initialize live state", "error", err, "call_sid", conv.CallSID)
	}

	sess := &callSession{
		conversationID: conv.ID,
		callSID:        conv.CallSID,
		startTime:      conv.StartTime,
	}
	if h.recordings.Enabled() {
		sess.encoder = recordings.NewEncoder()
	}

	h.metrics.ObserveCallStarted()
	h.logger.Info("stream: call started", "call_sid", conv.CallSID, "conversation_id", conv.ID, "phone_number", conv.PhoneNumber)
	h.writeFrame(conn, outboundFrame{
		Event:          "started",
		CallSID:        conv.CallSID,
		ConversationID: conv.ID,
	})
	return sess
}

func (h *Handler) handleMessage(ctx context.Context, conn *websocket.Conn, sess *callSession, frame inboundFrame) {
	if sess == nil {
		h.sendError(conn, frame.CallSID, "no active call")
		return
	}
	if frame.CallSID != "" && frame.CallSID != sess.callSID {
		h.sendError(conn, frame.CallSID, "call_sid does not match active call")
		return
	}

	ts := frame.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	_, err := h.convs.AppendMessage(ctx, sess.conversationID, &conversations.AppendMessageRequest{
		Role:       frame.Role,
		Content:    frame.Content,
		Confidence: frame.Confidence,
		Timestamp:  ts,
	})
	if err != nil {
		h.logger.Warn("stream: failed to append message", "error", err, "call_sid", sess.callSID)
		h.sendError(conn, sess.callSID, err.Error())
		return
	}

	switch frame.Role {
	case conversations.RoleUser:
		sess.userMessages++
	case conversations.RoleAssistant:
		sess.assistantMessages++
	}
	h.metrics.ObserveMessage(frame.Role)

	if err := h.live.Append(ctx, sess.callSID, livecall.Message{
		Role:       frame.Role,
		Content:    frame.Content,
		Confidence: frame.Confidence,
		Timestamp:  ts,
	}); err != nil {
		h.logger.Debug("stream: failed to mirror message to live state", "error", err, "call_sid", sess.callSID)
	}
}

func (h *Handler) handleMedia(sess *callSession, frame inboundFrame) {
	if sess == nil || sess.encoder == nil {
		return
	}
	raw, err := base64.StdEncoding.DecodeString(frame.Payload)
	if err != nil {
		h.logger.Debug("stream: dropping undecodable media frame", "error", err, "call_sid", sess.callSID)
		return
	}
	sess.encoder.AppendULaw(raw)
}

func (h *Handler) handleStop(ctx context.Context, conn *websocket.Conn, sess *callSession, frame inboundFrame) bool {
	if sess == nil {
		h.sendError(conn, frame.CallSID, "no active call")
		return false
	}

	end := frame.EndTime
	if end.IsZero() {
		end = time.Now().UTC()
	}

	var wav []byte
	if sess.encoder != nil && sess.encoder.Len() > 0 {
		wav = sess.encoder.WAV()
	}

	req := &conversations.FinalizeRequest{
		EndTime:                end,
		DurationSeconds:        end.Sub(sess.startTime).Seconds(),
		TotalUserMessages:      sess.userMessages,
		TotalAssistantMessages: sess.assistantMessages,
	}
	result, err := h.finalizeCall(ctx, sess.conversationID, sess.callSID, req, wav)
	if err != nil {
		h.logger.Error("stream: failed to finalize call", "error", err, "call_sid", sess.callSID)
		h.sendError(conn, sess.callSID, err.Error())
		return false
	}

	h.metrics.ObserveCallFinalized("stream", req.DurationSeconds)
	h.logger.Info("stream: call finalized", "call_sid", sess.callSID, "conversation_id", sess.conversationID,
		"duration_seconds", req.DurationSeconds, "job_id", result.jobID)
	h.writeFrame(conn, outboundFrame{
		Event:          "finalized",
		CallSID:        sess.callSID,
		ConversationID: sess.conversationID,
		JobID:          result.jobID,
	})
	return true
}

type finalizeResult struct {
	conversation *conversations.Conversation
	jobID        string
}

// finalizeCall closes the conversation, archives the recording, queues the
// lead analysis, and clears the live state. Recording and analysis failures
// are logged but do not undo the finalization.
func (h *Handler) finalizeCall(ctx context.Context, conversationID int64, callSID string, req *conversations.FinalizeRequest, wav []byte) (*finalizeResult, error) {
	ctx, span := h.tracer.Start(ctx, "stream.finalize_call")
	defer span.End()

	conv, err := h.convs.Finalize(ctx, conversationID, req)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if len(wav) > 0 && h.recordings.Enabled() {
		if _, err := h.recordings.Save(ctx, callSID, conv.StartTime, wav); err != nil {
			h.logger.Warn("stream: failed to archive recording", "error", err, "call_sid", callSID)
		}
	}

	jobID := h.enqueueAnalysis(ctx, conv)

	if err := h.live.Cleanup(ctx, callSID); err != nil {
		h.logger.Debug("stream: failed to clear live state", "error", err, "call_sid", callSID)
	}

	return &finalizeResult{conversation: conv, jobID: jobID}, nil
}

// enqueueAnalysis queues the post-call lead analysis. Returns the job ID,
// or empty when the queue is not configured or the enqueue failed.
func (h *Handler) enqueueAnalysis(ctx context.Context, conv *conversations.Conversation) string {
	if h.jobs == nil || h.publisher == nil {
		return ""
	}

	jobID := uuid.NewString()
	job := &analysis.JobRecord{
		JobID:          jobID,
		Status:         analysis.JobStatusPending,
		ConversationID: conv.ID,
		CallSID:        conv.CallSID,
	}
	if err := h.jobs.PutPending(ctx, job); err != nil {
		h.logger.Error("stream: failed to record pending analysis job", "error", err, "call_sid", conv.CallSID)
		return ""
	}
	if _, err := h.publisher.Enqueue(ctx, jobID, conv.ID, conv.CallSID); err != nil {
		h.logger.Error("stream: failed to enqueue analysis job", "error", err, "job_id", jobID, "call_sid", conv.CallSID)
		return ""
	}
	return jobID
}

func (h *Handler) sendError(conn *websocket.Conn, callSID, msg string) {
	h.writeFrame(conn, outboundFrame{Event: "error", CallSID: callSID, Error: msg})
}

func (h *Handler) writeFrame(conn *websocket.Conn, frame outboundFrame) {
	if err := conn.WriteJSON(frame); err != nil {
		h.logger.Debug("stream: failed to write frame", "error", err)
	}
}
