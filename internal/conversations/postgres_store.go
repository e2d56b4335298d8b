package conversations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// PgxPool is the subset of pgxpool.Pool the store needs.
type PgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists conversations in the relational database.
type PostgresStore struct {
	pool PgxPool
}

// NewPostgresStore initializes a store backed by pgxpool.
func NewPostgresStore(pool PgxPool) *PostgresStore {
	if pool == nil {
		panic("conversations: pgx pool required")
	}
	return &PostgresStore{pool: pool}
}

// Create inserts a new conversation row.
func (s *PostgresStore) Create(ctx context.Context, req *CreateRequest) (*Conversation, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	query := `
		INSERT INTO conversaciones (call_sid, phone_number, start_time)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`
	conv := &Conversation{
		CallSID:     req.CallSID,
		PhoneNumber: req.phone(),
		StartTime:   req.StartTime,
	}
	if err := s.pool.QueryRow(ctx, query, conv.CallSID, conv.PhoneNumber, conv.StartTime).
		Scan(&conv.ID, &conv.CreatedAt); err != nil {
		if pgErrCode(err) == codeUniqueViolation {
			return nil, ErrDuplicateCallSID
		}
		return nil, fmt.Errorf("conversations: insert failed: %w", err)
	}
	return conv, nil
}

// Finalize closes a conversation with the pipeline's totals. The row is
// locked so concurrent finalizes serialize and the end >= start check reads
// a stable start_time.
func (s *PostgresStore) Finalize(ctx context.Context, id int64, req *FinalizeRequest) (*Conversation, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("conversations: begin finalize: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var startTime time.Time
	if err := tx.QueryRow(ctx, `SELECT start_time FROM conversaciones WHERE id = $1 FOR UPDATE`, id).
		Scan(&startTime); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("conversations: load for finalize: %w", err)
	}
	if req.EndTime.Before(startTime) {
		return nil, ErrEndBeforeStart
	}

	query := `
		UPDATE conversaciones
		SET end_time = $2,
		    duration_seconds = $3,
		    total_user_messages = $4,
		    total_assistant_messages = $5
		WHERE id = $1
		RETURNING call_sid, COALESCE(phone_number, ''), created_at
	`
	end := req.EndTime
	duration := req.DurationSeconds
	conv := &Conversation{
		ID:                     id,
		StartTime:              startTime,
		EndTime:                &end,
		DurationSeconds:        &duration,
		TotalUserMessages:      req.TotalUserMessages,
		TotalAssistantMessages: req.TotalAssistantMessages,
	}
	if err := tx.QueryRow(ctx, query, id, req.EndTime, req.DurationSeconds, req.TotalUserMessages, req.TotalAssistantMessages).
		Scan(&conv.CallSID, &conv.PhoneNumber, &conv.CreatedAt); err != nil {
		return nil, fmt.Errorf("conversations: finalize failed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("conversations: commit finalize: %w", err)
	}
	return conv, nil
}

const conversationColumns = `id, call_sid, COALESCE(phone_number, ''), start_time, end_time, duration_seconds,
		total_user_messages, total_assistant_messages, created_at`

// GetByID fetches a conversation by surrogate key.
func (s *PostgresStore) GetByID(ctx context.Context, id int64) (*Conversation, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+conversationColumns+` FROM conversaciones WHERE id = $1`, id)
	return scanConversation(row)
}

// GetByCallSID fetches a conversation by natural key.
func (s *PostgresStore) GetByCallSID(ctx context.Context, callSID string) (*Conversation, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+conversationColumns+` FROM conversaciones WHERE call_sid = $1`, callSID)
	return scanConversation(row)
}

// Delete removes a conversation. Child rows (messages, analysis, scripts)
// go with it via the ON DELETE CASCADE constraints, inside the same
// statement-level transaction.
func (s *PostgresStore) Delete(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM conversaciones WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("conversations: delete failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// AppendMessage inserts an utterance and bumps the parent's role counter in
// one transaction, so the denormalized totals can never drift from the log.
func (s *PostgresStore) AppendMessage(ctx context.Context, conversationID int64, req *AppendMessageRequest) (*Message, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("conversations: begin append: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	insert := `
		INSERT INTO mensajes (conversation_id, role, content, confidence, timestamp)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	msg := &Message{
		ConversationID: conversationID,
		Role:           req.Role,
		Content:        req.Content,
		Confidence:     req.Confidence,
		Timestamp:      req.Timestamp,
	}
	if err := tx.QueryRow(ctx, insert, conversationID, req.Role, req.Content, req.Confidence, req.Timestamp).
		Scan(&msg.ID, &msg.CreatedAt); err != nil {
		if pgErrCode(err) == codeForeignKeyViolation {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("conversations: insert message failed: %w", err)
	}

	counter := "total_user_messages"
	if req.Role == RoleAssistant {
		counter = "total_assistant_messages"
	}
	tag, err := tx.Exec(ctx, fmt.Sprintf(`UPDATE conversaciones SET %s = %s + 1 WHERE id = $1`, counter, counter), conversationID)
	if err != nil {
		return nil, fmt.Errorf("conversations: bump counter failed: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return nil, ErrConversationNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("conversations: commit append: %w", err)
	}
	return msg, nil
}

// ListMessages returns a conversation's messages ordered for replay:
// utterance time ascending, insertion order breaking ties.
func (s *PostgresStore) ListMessages(ctx context.Context, conversationID int64) ([]*Message, error) {
	query := `
		SELECT id, conversation_id, role, content, confidence, timestamp, created_at
		FROM mensajes
		WHERE conversation_id = $1
		ORDER BY timestamp ASC, id ASC
	`
	rows, err := s.pool.Query(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("conversations: list messages failed: %w", err)
	}
	defer rows.Close()

	messages := make([]*Message, 0)
	for rows.Next() {
		var msg Message
		if err := rows.Scan(
			&msg.ID,
			&msg.ConversationID,
			&msg.Role,
			&msg.Content,
			&msg.Confidence,
			&msg.Timestamp,
			&msg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("conversations: scan message failed: %w", err)
		}
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conversations: iterate messages failed: %w", err)
	}
	return messages, nil
}

func scanConversation(row pgx.Row) (*Conversation, error) {
	var conv Conversation
	if err := row.Scan(
		&conv.ID,
		&conv.CallSID,
		&conv.PhoneNumber,
		&conv.StartTime,
		&conv.EndTime,
		&conv.DurationSeconds,
		&conv.TotalUserMessages,
		&conv.TotalAssistantMessages,
		&conv.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("conversations: select failed: %w", err)
	}
	return &conv, nil
}

func pgErrCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
