package reporting

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/casavoz/call-platform/internal/conversations"
)

const (
	defaultHotLeadLimit = 10
	maxHotLeadLimit     = 100
	defaultStatsDays    = 7
	maxStatsDays        = 365
)

// Store reads the sales reporting views.
type Store interface {
	// HotLeads returns conversations graded caliente, newest first.
	// limit <= 0 falls back to the default of 10.
	HotLeads(ctx context.Context, limit int) ([]*HotLead, error)

	// DailyStats returns per-day aggregates covering the last days days,
	// newest first. days <= 0 falls back to the default of 7.
	DailyStats(ctx context.Context, days int) ([]*DailyStats, error)
}

// PostgresStore reads reporting data straight from the SQL views, so rows
// reflect whatever the writers have committed by query time.
type PostgresStore struct {
	pool conversations.PgxPool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a view-backed reporting store.
func NewPostgresStore(pool conversations.PgxPool) *PostgresStore {
	if pool == nil {
		panic("reporting: pool cannot be nil")
	}
	return &PostgresStore{pool: pool}
}

// HotLeads implements Store.
func (s *PostgresStore) HotLeads(ctx context.Context, limit int) ([]*HotLead, error) {
	if limit <= 0 {
		limit = defaultHotLeadLimit
	}
	if limit > maxHotLeadLimit {
		limit = maxHotLeadLimit
	}

	query := `
		SELECT call_sid, phone_number, start_time, duration_seconds,
		       resumen, sentimiento, nivel_interes, calificacion_lead,
		       interes_cliente, proximos_pasos
		FROM leads_calientes
		ORDER BY start_time DESC
		LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("reporting: query hot leads: %w", err)
	}
	defer rows.Close()

	leads := make([]*HotLead, 0, limit)
	for rows.Next() {
		var (
			lead  HotLead
			pasos string
		)
		err := rows.Scan(
			&lead.CallSID,
			&lead.PhoneNumber,
			&lead.StartTime,
			&lead.DurationSeconds,
			&lead.Resumen,
			&lead.Sentimiento,
			&lead.NivelInteres,
			&lead.CalificacionLead,
			&lead.InteresCliente,
			&pasos,
		)
		if err != nil {
			return nil, fmt.Errorf("reporting: scan hot lead: %w", err)
		}
		lead.ProximosPasos = decodeSteps(pasos)
		leads = append(leads, &lead)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reporting: iterate hot leads: %w", err)
	}
	return leads, nil
}

// DailyStats implements Store.
func (s *PostgresStore) DailyStats(ctx context.Context, days int) ([]*DailyStats, error) {
	if days <= 0 {
		days = defaultStatsDays
	}
	if days > maxStatsDays {
		days = maxStatsDays
	}

	query := `
		SELECT fecha, total_conversaciones, duracion_promedio, total_mensajes,
		       leads_calientes, leads_tibios, leads_frios, interes_promedio::float8
		FROM estadisticas_conversaciones
		WHERE fecha >= CURRENT_DATE - $1::int
		ORDER BY fecha DESC`

	rows, err := s.pool.Query(ctx, query, days)
	if err != nil {
		return nil, fmt.Errorf("reporting: query daily stats: %w", err)
	}
	defer rows.Close()

	stats := []*DailyStats{}
	for rows.Next() {
		var day DailyStats
		err := rows.Scan(
			&day.Fecha,
			&day.TotalConversaciones,
			&day.DuracionPromedio,
			&day.TotalMensajes,
			&day.LeadsCalientes,
			&day.LeadsTibios,
			&day.LeadsFrios,
			&day.InteresPromedio,
		)
		if err != nil {
			return nil, fmt.Errorf("reporting: scan daily stats: %w", err)
		}
		stats = append(stats, &day)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reporting: iterate daily stats: %w", err)
	}
	return stats, nil
}

// decodeSteps tolerates both storage formats for proximos_pasos: JSON
// arrays from the current writers and bare strings left behind by the
// early single-shot analyzer.
func decodeSteps(raw string) []string {
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
