package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/casavoz/call-platform/internal/conversations"
)

const codeForeignKeyViolation = "23503"

// PostgresStore persists analyses in the analisis_conversaciones table.
type PostgresStore struct {
	pool conversations.PgxPool
}

// NewPostgresStore creates a Postgres-backed analysis store.
func NewPostgresStore(pool conversations.PgxPool) *PostgresStore {
	if pool == nil {
		panic("analysis: pgx pool required")
	}
	return &PostgresStore{pool: pool}
}

// Upsert writes the analysis for a conversation. The unique index on
// conversation_id turns a re-analysis into an in-place replace; created_at
// keeps the first analysis time.
func (s *PostgresStore) Upsert(ctx context.Context, conversationID int64, req *UpsertRequest) (*Record, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	label, detail := splitSentiment(req.Sentimiento)
	pasos, err := encodeList(req.ProximosPasos)
	if err != nil {
		return nil, err
	}
	propiedades, err := encodeList(req.PropiedadesMencionadas)
	if err != nil {
		return nil, err
	}
	puntos, err := encodeList(req.PuntosClave)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO analisis_conversaciones
			(conversation_id, resumen, sentimiento, sentimiento_detalle,
			 interes_cliente, nivel_interes, calificacion_lead,
			 proximos_pasos, propiedades_mencionadas, puntos_clave)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (conversation_id) DO UPDATE SET
			resumen = EXCLUDED.resumen,
			sentimiento = EXCLUDED.sentimiento,
			sentimiento_detalle = EXCLUDED.sentimiento_detalle,
			interes_cliente = EXCLUDED.interes_cliente,
			nivel_interes = EXCLUDED.nivel_interes,
			calificacion_lead = EXCLUDED.calificacion_lead,
			proximos_pasos = EXCLUDED.proximos_pasos,
			propiedades_mencionadas = EXCLUDED.propiedades_mencionadas,
			puntos_clave = EXCLUDED.puntos_clave
		RETURNING id, created_at
	`
	rec := &Record{
		ConversationID:         conversationID,
		Resumen:                req.Resumen,
		Sentimiento:            label,
		SentimientoDetalle:     detail,
		InteresCliente:         req.InteresCliente,
		NivelInteres:           req.NivelInteres,
		CalificacionLead:       req.grade(),
		ProximosPasos:          cloneList(req.ProximosPasos),
		PropiedadesMencionadas: cloneList(req.PropiedadesMencionadas),
		PuntosClave:            cloneList(req.PuntosClave),
	}
	if err := s.pool.QueryRow(ctx, query,
		conversationID, req.Resumen, label, detail,
		req.InteresCliente, req.NivelInteres, rec.CalificacionLead,
		pasos, propiedades, puntos,
	).Scan(&rec.ID, &rec.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == codeForeignKeyViolation {
			return nil, conversations.ErrConversationNotFound
		}
		return nil, fmt.Errorf("analysis: upsert failed: %w", err)
	}
	return rec, nil
}

// Get fetches the stored analysis for a conversation.
func (s *PostgresStore) Get(ctx context.Context, conversationID int64) (*Record, error) {
	query := `
		SELECT id, conversation_id, COALESCE(resumen, ''), COALESCE(sentimiento, ''),
			COALESCE(sentimiento_detalle, ''), COALESCE(interes_cliente, ''),
			COALESCE(nivel_interes, 0), COALESCE(calificacion_lead, ''),
			COALESCE(proximos_pasos, ''), COALESCE(propiedades_mencionadas, ''),
			COALESCE(puntos_clave, ''), created_at
		FROM analisis_conversaciones
		WHERE conversation_id = $1
	`
	var (
		rec                        Record
		pasos, propiedades, puntos string
	)
	if err := s.pool.QueryRow(ctx, query, conversationID).Scan(
		&rec.ID,
		&rec.ConversationID,
		&rec.Resumen,
		&rec.Sentimiento,
		&rec.SentimientoDetalle,
		&rec.InteresCliente,
		&rec.NivelInteres,
		&rec.CalificacionLead,
		&pasos,
		&propiedades,
		&puntos,
		&rec.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAnalysisNotFound
		}
		return nil, fmt.Errorf("analysis: select failed: %w", err)
	}

	rec.ProximosPasos = decodeList(pasos)
	rec.PropiedadesMencionadas = decodeList(propiedades)
	rec.PuntosClave = decodeList(puntos)
	return &rec, nil
}

func encodeList(in []string) (string, error) {
	if in == nil {
		in = []string{}
	}
	raw, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("analysis: encode list: %w", err)
	}
	return string(raw), nil
}

// decodeList tolerates both storage formats: JSON arrays from this writer
// and bare strings left behind by the early single-shot analyzer.
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
