package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/casavoz/call-platform/pkg/logging"
)

// AdminConversationsHandler handles the admin call browser endpoints.
type AdminConversationsHandler struct {
	db     *sql.DB
	logger *logging.Logger
}

// NewAdminConversationsHandler creates a new admin conversations handler.
func NewAdminConversationsHandler(db *sql.DB, logger *logging.Logger) *AdminConversationsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminConversationsHandler{
		db:     db,
		logger: logger,
	}
}

// ConversationListItem represents a call in list responses. Analysis columns
// come from a LEFT JOIN and stay null until the worker has graded the call.
type ConversationListItem struct {
	ID                     int64    `json:"id"`
	CallSID                string   `json:"call_sid"`
	PhoneNumber            string   `json:"phone_number,omitempty"`
	StartTime              string   `json:"start_time"`
	EndTime                *string  `json:"end_time,omitempty"`
	DurationSeconds        *float64 `json:"duration_seconds,omitempty"`
	TotalUserMessages      int      `json:"total_user_messages"`
	TotalAssistantMessages int      `json:"total_assistant_messages"`
	CalificacionLead       *string  `json:"calificacion_lead,omitempty"`
	NivelInteres           *int     `json:"nivel_interes,omitempty"`
}

// ConversationsListResponse represents a paginated list of calls.
type ConversationsListResponse struct {
	Conversations []ConversationListItem `json:"conversations"`
	Total         int                    `json:"total"`
	Page          int                    `json:"page"`
	PageSize      int                    `json:"page_size"`
	TotalPages    int                    `json:"total_pages"`
}

// TranscriptMessage represents one utterance in a call transcript.
type TranscriptMessage struct {
	ID         int64    `json:"id"`
	Role       string   `json:"role"`
	Content    string   `json:"content"`
	Confidence *float64 `json:"confidence,omitempty"`
	Timestamp  string   `json:"timestamp"`
}

// AnalysisDetail represents the stored lead analysis of a call.
type AnalysisDetail struct {
	Resumen                string   `json:"resumen"`
	Sentimiento            string   `json:"sentimiento"`
	SentimientoDetalle     string   `json:"sentimiento_detalle,omitempty"`
	InteresCliente         string   `json:"interes_cliente"`
	NivelInteres           int      `json:"nivel_interes"`
	CalificacionLead       string   `json:"calificacion_lead"`
	ProximosPasos          []string `json:"proximos_pasos"`
	PropiedadesMencionadas []string `json:"propiedades_mencionadas"`
	PuntosClave            []string `json:"puntos_clave"`
	CreatedAt              string   `json:"created_at"`
}

// FollowupScriptItem represents a follow-up script generated for a call.
type FollowupScriptItem struct {
	ID            int64   `json:"id"`
	ScriptContent string  `json:"script_content"`
	Enviado       bool    `json:"enviado"`
	FechaEnvio    *string `json:"fecha_envio,omitempty"`
	CreatedAt     string  `json:"created_at"`
}

// ConversationDetailResponse represents a call with its transcript, analysis
// and follow-up scripts.
type ConversationDetailResponse struct {
	ID                     int64                `json:"id"`
	CallSID                string               `json:"call_sid"`
	PhoneNumber            string               `json:"phone_number,omitempty"`
	StartTime              string               `json:"start_time"`
	EndTime                *string              `json:"end_time,omitempty"`
	DurationSeconds        *float64             `json:"duration_seconds,omitempty"`
	TotalUserMessages      int                  `json:"total_user_messages"`
	TotalAssistantMessages int                  `json:"total_assistant_messages"`
	Messages               []TranscriptMessage  `json:"messages"`
	Analysis               *AnalysisDetail      `json:"analysis,omitempty"`
	Followups              []FollowupScriptItem `json:"followups"`
}

// ListConversations returns a paginated list of calls, newest first.
// GET /admin/conversations
func (h *AdminConversationsHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	phone := r.URL.Query().Get("phone")
	grade := r.URL.Query().Get("grade")
	dateFrom := r.URL.Query().Get("date_from")
	dateTo := r.URL.Query().Get("date_to")

	offset := (page - 1) * pageSize

	var clauses []string
	var args []any
	argNum := 1

	if phone != "" {
		clauses = append(clauses, "c.phone_number LIKE $"+strconv.Itoa(argNum))
		args = append(args, "%"+phone+"%")
		argNum++
	}
	if grade != "" {
		clauses = append(clauses, "a.calificacion_lead = $"+strconv.Itoa(argNum))
		args = append(args, grade)
		argNum++
	}
	if dateFrom != "" {
		if t, err := time.Parse("2006-01-02", dateFrom); err == nil {
			clauses = append(clauses, "c.start_time >= $"+strconv.Itoa(argNum))
			args = append(args, t)
			argNum++
		}
	}
	if dateTo != "" {
		if t, err := time.Parse("2006-01-02", dateTo); err == nil {
			clauses = append(clauses, "c.start_time < $"+strconv.Itoa(argNum))
			args = append(args, t.AddDate(0, 0, 1))
			argNum++
		}
	}

	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	base := `
		FROM conversaciones c
		LEFT JOIN analisis_conversaciones a ON a.conversation_id = c.id
	`

	var total int
	h.db.QueryRowContext(r.Context(), "SELECT COUNT(*)"+base+where, args...).Scan(&total)

	query := `
		SELECT c.id, c.call_sid, c.phone_number, c.start_time, c.end_time,
			   c.duration_seconds, c.total_user_messages, c.total_assistant_messages,
			   a.calificacion_lead, a.nivel_interes
	` + base + where +
		" ORDER BY c.start_time DESC" +
		" LIMIT $" + strconv.Itoa(argNum) + " OFFSET $" + strconv.Itoa(argNum+1)
	args = append(args, pageSize, offset)

	rows, err := h.db.QueryContext(r.Context(), query, args...)
	if err != nil {
		h.logger.Error("failed to query conversations", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	var conversations []ConversationListItem
	for rows.Next() {
		var conv ConversationListItem
		var phoneNumber, leadGrade sql.NullString
		var startTime time.Time
		var endTime sql.NullTime
		var duration sql.NullFloat64
		var interest sql.NullInt64

		err := rows.Scan(
			&conv.ID, &conv.CallSID, &phoneNumber, &startTime, &endTime,
			&duration, &conv.TotalUserMessages, &conv.TotalAssistantMessages,
			&leadGrade, &interest,
		)
		if err != nil {
			h.logger.Error("failed to scan conversation", "error", err)
			continue
		}

		conv.PhoneNumber = phoneNumber.String
		conv.StartTime = startTime.Format(time.RFC3339)
		if endTime.Valid {
			formatted := endTime.Time.Format(time.RFC3339)
			conv.EndTime = &formatted
		}
		if duration.Valid {
			d := duration.Float64
			conv.DurationSeconds = &d
		}
		if leadGrade.Valid {
			g := leadGrade.String
			conv.CalificacionLead = &g
		}
		if interest.Valid {
			n := int(interest.Int64)
			conv.NivelInteres = &n
		}

		conversations = append(conversations, conv)
	}

	if conversations == nil {
		conversations = []ConversationListItem{}
	}

	totalPages := (total + pageSize - 1) / pageSize
	response := ConversationsListResponse{
		Conversations: conversations,
		Total:         total,
		Page:          page,
		PageSize:      pageSize,
		TotalPages:    totalPages,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// GetConversation returns one call with its transcript, analysis and
// follow-up scripts.
// GET /admin/conversations/{conversationID}
func (h *AdminConversationsHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	conversationID, err := strconv.ParseInt(chi.URLParam(r, "conversationID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid conversation id", http.StatusBadRequest)
		return
	}

	conv, err := h.getConversationRow(r, conversationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "conversation not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to query conversation", "error", err, "conversation_id", conversationID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	conv.Messages = h.getTranscript(r, conversationID)
	conv.Analysis = h.getAnalysis(r, conversationID)
	conv.Followups = h.getFollowups(r, conversationID)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(conv)
}

func (h *AdminConversationsHandler) getConversationRow(r *http.Request, conversationID int64) (*ConversationDetailResponse, error) {
	var conv ConversationDetailResponse
	var phoneNumber sql.NullString
	var startTime time.Time
	var endTime sql.NullTime
	var duration sql.NullFloat64

	err := h.db.QueryRowContext(r.Context(), `
		SELECT id, call_sid, phone_number, start_time, end_time,
			   duration_seconds, total_user_messages, total_assistant_messages
		FROM conversaciones WHERE id = $1
	`, conversationID).Scan(
		&conv.ID, &conv.CallSID, &phoneNumber, &startTime, &endTime,
		&duration, &conv.TotalUserMessages, &conv.TotalAssistantMessages,
	)
	if err != nil {
		return nil, err
	}

	conv.PhoneNumber = phoneNumber.String
	conv.StartTime = startTime.Format(time.RFC3339)
	if endTime.Valid {
		formatted := endTime.Time.Format(time.RFC3339)
		conv.EndTime = &formatted
	}
	if duration.Valid {
		d := duration.Float64
		conv.DurationSeconds = &d
	}
	conv.Messages = []TranscriptMessage{}
	conv.Followups = []FollowupScriptItem{}
	return &conv, nil
}

func (h *AdminConversationsHandler) getTranscript(r *http.Request, conversationID int64) []TranscriptMessage {
	messages := []TranscriptMessage{}

	rows, err := h.db.QueryContext(r.Context(), `
		SELECT id, role, content, confidence, timestamp
		FROM mensajes
		WHERE conversation_id = $1
		ORDER BY timestamp ASC, id ASC
	`, conversationID)
	if err != nil {
		h.logger.Error("failed to query transcript", "error", err, "conversation_id", conversationID)
		return messages
	}
	defer rows.Close()

	for rows.Next() {
		var msg TranscriptMessage
		var confidence sql.NullFloat64
		var ts time.Time

		if err := rows.Scan(&msg.ID, &msg.Role, &msg.Content, &confidence, &ts); err != nil {
			continue
		}

		if confidence.Valid {
			c := confidence.Float64
			msg.Confidence = &c
		}
		msg.Timestamp = ts.Format(time.RFC3339)
		messages = append(messages, msg)
	}

	return messages
}

func (h *AdminConversationsHandler) getAnalysis(r *http.Request, conversationID int64) *AnalysisDetail {
	var detail AnalysisDetail
	var resumen, sentimiento, sentimientoDetalle, interes, grade sql.NullString
	var pasos, propiedades, puntos sql.NullString
	var nivel sql.NullInt64
	var createdAt time.Time

	err := h.db.QueryRowContext(r.Context(), `
		SELECT resumen, sentimiento, sentimiento_detalle, interes_cliente,
			   nivel_interes, calificacion_lead, proximos_pasos,
			   propiedades_mencionadas, puntos_clave, created_at
		FROM analisis_conversaciones WHERE conversation_id = $1
	`, conversationID).Scan(
		&resumen, &sentimiento, &sentimientoDetalle, &interes,
		&nivel, &grade, &pasos, &propiedades, &puntos, &createdAt,
	)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			h.logger.Error("failed to query analysis", "error", err, "conversation_id", conversationID)
		}
		return nil
	}

	detail.Resumen = resumen.String
	detail.Sentimiento = sentimiento.String
	detail.SentimientoDetalle = sentimientoDetalle.String
	detail.InteresCliente = interes.String
	detail.NivelInteres = int(nivel.Int64)
	detail.CalificacionLead = grade.String
	detail.ProximosPasos = decodeList(pasos.String)
	detail.PropiedadesMencionadas = decodeList(propiedades.String)
	detail.PuntosClave = decodeList(puntos.String)
	detail.CreatedAt = createdAt.Format(time.RFC3339)
	return &detail
}

func (h *AdminConversationsHandler) getFollowups(r *http.Request, conversationID int64) []FollowupScriptItem {
	followups := []FollowupScriptItem{}

	rows, err := h.db.QueryContext(r.Context(), `
		SELECT id, script_content, enviado, fecha_envio, created_at
		FROM scripts_seguimiento
		WHERE conversation_id = $1
		ORDER BY created_at ASC
	`, conversationID)
	if err != nil {
		h.logger.Error("failed to query followups", "error", err, "conversation_id", conversationID)
		return followups
	}
	defer rows.Close()

	for rows.Next() {
		var item FollowupScriptItem
		var enviado int
		var fechaEnvio sql.NullTime
		var createdAt time.Time

		if err := rows.Scan(&item.ID, &item.ScriptContent, &enviado, &fechaEnvio, &createdAt); err != nil {
			continue
		}

		item.Enviado = enviado == 1
		if fechaEnvio.Valid {
			formatted := fechaEnvio.Time.Format(time.RFC3339)
			item.FechaEnvio = &formatted
		}
		item.CreatedAt = createdAt.Format(time.RFC3339)
		followups = append(followups, item)
	}

	return followups
}

// ExportTranscript exports a call transcript as plain text.
// GET /admin/conversations/{conversationID}/export
func (h *AdminConversationsHandler) ExportTranscript(w http.ResponseWriter, r *http.Request) {
	conversationID, err := strconv.ParseInt(chi.URLParam(r, "conversationID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid conversation id", http.StatusBadRequest)
		return
	}

	conv, err := h.getConversationRow(r, conversationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "conversation not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to query conversation", "error", err, "conversation_id", conversationID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	transcript := "Transcripción de llamada\n"
	transcript += "========================\n\n"
	transcript += "Call SID: " + conv.CallSID + "\n"
	if conv.PhoneNumber != "" {
		transcript += "Teléfono: " + conv.PhoneNumber + "\n"
	}
	transcript += "Inicio: " + conv.StartTime + "\n\n"
	transcript += "--- Mensajes ---\n\n"

	messages := h.getTranscript(r, conversationID)
	for _, msg := range messages {
		roleLabel := msg.Role
		if roleLabel == "assistant" {
			roleLabel = "Asistente"
		} else if roleLabel == "user" {
			roleLabel = "Usuario"
		}
		timestamp, _ := time.Parse(time.RFC3339, msg.Timestamp)
		transcript += "[" + timestamp.Format("2006-01-02 15:04:05") + "] " + roleLabel + ":\n"
		transcript += msg.Content + "\n\n"
	}

	if len(messages) == 0 {
		transcript += "(Sin mensajes)\n"
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=transcript-"+conv.CallSID+".txt")
	w.Write([]byte(transcript))
}

// decodeList tolerates both storage formats for the analysis list columns:
// JSON arrays from the current writers and bare strings left behind by the
// early single-shot analyzer.
func decodeList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return []string{}
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return []string{raw}
	}
	return out
}
