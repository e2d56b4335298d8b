// Package handlers holds the admin dashboard endpoints. They read the
// database directly over database/sql: the dashboard aggregates across every
// table and view, and its queries change with the frontend rather than with
// the domain stores.
package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/casavoz/call-platform/internal/livecall"
	"github.com/casavoz/call-platform/pkg/logging"
)

// AdminDashboardHandler handles the dashboard overview endpoint.
type AdminDashboardHandler struct {
	db     *sql.DB
	logger *logging.Logger
}

// NewAdminDashboardHandler creates a dashboard handler.
func NewAdminDashboardHandler(db *sql.DB, logger *logging.Logger) *AdminDashboardHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminDashboardHandler{
		db:     db,
		logger: logger,
	}
}

// DashboardOverviewResponse contains the main dashboard metrics.
type DashboardOverviewResponse struct {
	GeneratedAt    string           `json:"generated_at"`
	Calls          CallMetrics      `json:"calls"`
	Leads          LeadMetrics      `json:"leads"`
	Followups      FollowupMetrics  `json:"followups"`
	HotLeads       []HotLeadSummary `json:"hot_leads"`
	PendingActions []PendingAction  `json:"pending_actions"`
}

// CallMetrics contains call volume metrics.
type CallMetrics struct {
	Total              int     `json:"total"`
	Today              int     `json:"today"`
	ThisWeek           int     `json:"this_week"`
	TotalMessages      int     `json:"total_messages"`
	AvgDurationSeconds float64 `json:"avg_duration_seconds"`
}

// LeadMetrics contains lead grading metrics.
type LeadMetrics struct {
	Analyzed    int     `json:"analyzed"`
	Calientes   int     `json:"calientes"`
	Tibios      int     `json:"tibios"`
	Frios       int     `json:"frios"`
	AvgInterest float64 `json:"avg_interest"`
}

// FollowupMetrics contains follow-up script delivery metrics.
type FollowupMetrics struct {
	PendingScripts int `json:"pending_scripts"`
	SentScripts    int `json:"sent_scripts"`
}

// HotLeadSummary is one hot lead on the dashboard.
type HotLeadSummary struct {
	CallSID      string `json:"call_sid"`
	PhoneNumber  string `json:"phone_number"`
	StartTime    string `json:"start_time"`
	NivelInteres int    `json:"nivel_interes"`
	Resumen      string `json:"resumen"`
}

// PendingAction represents work requiring staff attention.
type PendingAction struct {
	Type        string `json:"type"`
	Priority    string `json:"priority"`
	Description string `json:"description"`
	Count       int    `json:"count"`
	Link        string `json:"link,omitempty"`
}

// GetDashboardOverview returns the main dashboard overview.
// GET /admin/dashboard
func (h *AdminDashboardHandler) GetDashboardOverview(w http.ResponseWriter, r *http.Request) {
	dashboard := DashboardOverviewResponse{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		HotLeads:    []HotLeadSummary{},
	}

	now := time.Now()
	today := now.Truncate(24 * time.Hour)
	weekAgo := now.AddDate(0, 0, -7)

	// Call metrics
	h.db.QueryRowContext(r.Context(),
		`SELECT COUNT(*) FROM conversaciones`,
	).Scan(&dashboard.Calls.Total)

	h.db.QueryRowContext(r.Context(),
		`SELECT COUNT(*) FROM conversaciones WHERE start_time >= $1`, today,
	).Scan(&dashboard.Calls.Today)

	h.db.QueryRowContext(r.Context(),
		`SELECT COUNT(*) FROM conversaciones WHERE start_time >= $1`, weekAgo,
	).Scan(&dashboard.Calls.ThisWeek)

	h.db.QueryRowContext(r.Context(),
		`SELECT COALESCE(SUM(total_user_messages + total_assistant_messages), 0) FROM conversaciones`,
	).Scan(&dashboard.Calls.TotalMessages)

	h.db.QueryRowContext(r.Context(),
		`SELECT COALESCE(AVG(duration_seconds), 0) FROM conversaciones WHERE duration_seconds IS NOT NULL`,
	).Scan(&dashboard.Calls.AvgDurationSeconds)

	// Lead metrics
	h.db.QueryRowContext(r.Context(),
		`SELECT COUNT(*) FROM analisis_conversaciones`,
	).Scan(&dashboard.Leads.Analyzed)

	rows, _ := h.db.QueryContext(r.Context(),
		`SELECT calificacion_lead, COUNT(*) FROM analisis_conversaciones GROUP BY calificacion_lead`,
	)
	if rows != nil {
		defer rows.Close()
		for rows.Next() {
			var grade string
			var count int
			if rows.Scan(&grade, &count) != nil {
				continue
			}
			switch grade {
			case "caliente":
				dashboard.Leads.Calientes = count
			case "tibio":
				dashboard.Leads.Tibios = count
			case "frio":
				dashboard.Leads.Frios = count
			}
		}
	}

	h.db.QueryRowContext(r.Context(),
		`SELECT COALESCE(AVG(nivel_interes), 0) FROM analisis_conversaciones`,
	).Scan(&dashboard.Leads.AvgInterest)

	// Follow-up metrics
	h.db.QueryRowContext(r.Context(),
		`SELECT COUNT(*) FROM scripts_seguimiento WHERE enviado = 0`,
	).Scan(&dashboard.Followups.PendingScripts)

	h.db.QueryRowContext(r.Context(),
		`SELECT COUNT(*) FROM scripts_seguimiento WHERE enviado = 1`,
	).Scan(&dashboard.Followups.SentScripts)

	// Most recent hot leads
	dashboard.HotLeads = h.getRecentHotLeads(r)

	// Pending actions
	dashboard.PendingActions = h.getPendingActions(r)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(dashboard)
}

func (h *AdminDashboardHandler) getRecentHotLeads(r *http.Request) []HotLeadSummary {
	leads := []HotLeadSummary{}

	rows, err := h.db.QueryContext(r.Context(), `
		SELECT call_sid, phone_number, start_time, nivel_interes, resumen
		FROM leads_calientes
		ORDER BY start_time DESC
		LIMIT 5
	`)
	if err != nil {
		h.logger.Error("failed to query recent hot leads", "error", err)
		return leads
	}
	defer rows.Close()

	for rows.Next() {
		var lead HotLeadSummary
		var phone, resumen sql.NullString
		var startTime time.Time

		if err := rows.Scan(&lead.CallSID, &phone, &startTime, &lead.NivelInteres, &resumen); err != nil {
			h.logger.Error("failed to scan hot lead row", "error", err)
			continue
		}

		lead.PhoneNumber = phone.String
		lead.Resumen = resumen.String
		lead.StartTime = startTime.Format(time.RFC3339)
		leads = append(leads, lead)
	}

	return leads
}

func (h *AdminDashboardHandler) getPendingActions(r *http.Request) []PendingAction {
	var actions []PendingAction

	// Follow-up scripts awaiting delivery
	var pendingScripts int
	h.db.QueryRowContext(r.Context(),
		`SELECT COUNT(*) FROM scripts_seguimiento WHERE enviado = 0`,
	).Scan(&pendingScripts)
	if pendingScripts > 0 {
		actions = append(actions, PendingAction{
			Type:        "followup_scripts",
			Priority:    "high",
			Description: "Follow-up scripts awaiting delivery",
			Count:       pendingScripts,
			Link:        "/admin/conversations",
		})
	}

	// Finished calls with no lead analysis yet
	var unanalyzed int
	h.db.QueryRowContext(r.Context(), `
		SELECT COUNT(*) FROM conversaciones c
		WHERE c.end_time IS NOT NULL
		  AND NOT EXISTS (SELECT 1 FROM analisis_conversaciones a WHERE a.conversation_id = c.id)
	`).Scan(&unanalyzed)
	if unanalyzed > 0 {
		actions = append(actions, PendingAction{
			Type:        "analysis_backlog",
			Priority:    "medium",
			Description: "Finished calls without lead analysis",
			Count:       unanalyzed,
			Link:        "/admin/conversations",
		})
	}

	return actions
}

// RegisterAdminRoutes registers all admin dashboard routes.
func RegisterAdminRoutes(r chi.Router, db *sql.DB, live *livecall.Store, logger *logging.Logger) {
	dashboardHandler := NewAdminDashboardHandler(db, logger)
	conversationsHandler := NewAdminConversationsHandler(db, logger)
	liveHandler := NewLiveWatchHandler(live, logger)

	// Dashboard
	r.Get("/dashboard", dashboardHandler.GetDashboardOverview)

	// Call browser
	r.Get("/conversations", conversationsHandler.ListConversations)
	r.Get("/conversations/{conversationID}", conversationsHandler.GetConversation)
	r.Get("/conversations/{conversationID}/export", conversationsHandler.ExportTranscript)

	// Live call watch
	r.Get("/live/{callSID}", liveHandler.GetSnapshot)
	r.Get("/live/{callSID}/watch", liveHandler.WatchLive)
}
