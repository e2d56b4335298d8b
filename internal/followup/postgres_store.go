package followup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/casavoz/call-platform/internal/conversations"
)

const codeForeignKeyViolation = "23503"

// PostgresStore persists scripts in the scripts_seguimiento table.
// enviado is a smallint flag (0/1), fecha_envio the delivery time.
type PostgresStore struct {
	pool conversations.PgxPool
}

// NewPostgresStore creates a Postgres-backed script store.
func NewPostgresStore(pool conversations.PgxPool) *PostgresStore {
	if pool == nil {
		panic("followup: pgx pool required")
	}
	return &PostgresStore{pool: pool}
}

// Create stores a new unsent script.
func (s *PostgresStore) Create(ctx context.Context, conversationID int64, content string) (*Script, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrMissingContent
	}

	query := `
		INSERT INTO scripts_seguimiento (conversation_id, script_content)
		VALUES ($1, $2)
		RETURNING id, created_at
	`
	script := &Script{
		ConversationID: conversationID,
		ScriptContent:  content,
	}
	if err := s.pool.QueryRow(ctx, query, conversationID, content).
		Scan(&script.ID, &script.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == codeForeignKeyViolation {
			return nil, conversations.ErrConversationNotFound
		}
		return nil, fmt.Errorf("followup: insert failed: %w", err)
	}
	return script, nil
}

// Get returns a script by ID.
func (s *PostgresStore) Get(ctx context.Context, id int64) (*Script, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, conversation_id, script_content, enviado, fecha_envio, created_at
		FROM scripts_seguimiento
		WHERE id = $1
	`, id)
	return scanScript(row)
}

// MarkSent flips a script to sent. The enviado guard in the WHERE clause
// makes the transition atomic: of two racing sweepers only one sees a row
// update, the other gets ErrAlreadySent.
func (s *PostgresStore) MarkSent(ctx context.Context, id int64, sentAt time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE scripts_seguimiento
		SET enviado = 1, fecha_envio = $2
		WHERE id = $1 AND enviado = 0
	`, id, sentAt.UTC())
	if err != nil {
		return fmt.Errorf("followup: mark sent failed: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// No row updated: either the script is gone or it was already sent.
	var enviado int16
	if err := s.pool.QueryRow(ctx, `SELECT enviado FROM scripts_seguimiento WHERE id = $1`, id).
		Scan(&enviado); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrScriptNotFound
		}
		return fmt.Errorf("followup: mark sent lookup failed: %w", err)
	}
	return ErrAlreadySent
}

// ListPending returns unsent scripts oldest first.
func (s *PostgresStore) ListPending(ctx context.Context, limit int) ([]*Script, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, conversation_id, script_content, enviado, fecha_envio, created_at
		FROM scripts_seguimiento
		WHERE enviado = 0
		ORDER BY created_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("followup: list pending failed: %w", err)
	}
	defer rows.Close()

	scripts := make([]*Script, 0)
	for rows.Next() {
		script, err := scanScript(rows)
		if err != nil {
			return nil, err
		}
		scripts = append(scripts, script)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("followup: iterate pending failed: %w", err)
	}
	return scripts, nil
}

func scanScript(row pgx.Row) (*Script, error) {
	var (
		script  Script
		enviado int16
	)
	if err := row.Scan(
		&script.ID,
		&script.ConversationID,
		&script.ScriptContent,
		&enviado,
		&script.FechaEnvio,
		&script.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrScriptNotFound
		}
		return nil, fmt.Errorf("followup: select failed: %w", err)
	}
	script.Enviado = enviado != 0
	return &script, nil
}
