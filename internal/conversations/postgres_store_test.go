package conversations

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func TestPostgresCreate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewPostgresStore(mock)
	start := time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)
	created := start.Add(time.Second)

	mock.ExpectQuery("INSERT INTO conversaciones").
		WithArgs("CA123", "+5215512345678", start).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(int64(1), created))

	conv, err := store.Create(context.Background(), &CreateRequest{CallSID: "CA123", PhoneNumber: "+5215512345678", StartTime: start})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if conv.ID != 1 || !conv.CreatedAt.Equal(created) {
		t.Errorf("conv = %+v", conv)
	}
}

func TestPostgresCreateDefaultsPhone(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewPostgresStore(mock)
	start := time.Now()

	mock.ExpectQuery("INSERT INTO conversaciones").
		WithArgs("CA200", "unknown", start).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(int64(2), start))

	conv, err := store.Create(context.Background(), &CreateRequest{CallSID: "CA200", StartTime: start})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if conv.PhoneNumber != "unknown" {
		t.Errorf("phone = %q, want unknown", conv.PhoneNumber)
	}
}

func TestPostgresCreateDuplicate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewPostgresStore(mock)

	mock.ExpectQuery("INSERT INTO conversaciones").
		WithArgs("CA123", "unknown", pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	if _, err := store.Create(context.Background(), &CreateRequest{CallSID: "CA123", StartTime: time.Now()}); !errors.Is(err, ErrDuplicateCallSID) {
		t.Fatalf("create = %v, want ErrDuplicateCallSID", err)
	}
}

func TestPostgresCreateValidates(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewPostgresStore(mock)
	if _, err := store.Create(context.Background(), &CreateRequest{StartTime: time.Now()}); !errors.Is(err, ErrMissingCallSID) {
		t.Fatalf("create = %v, want ErrMissingCallSID", err)
	}
}

func TestPostgresFinalize(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewPostgresStore(mock)
	start := time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Minute)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT start_time FROM conversaciones").
		WithArgs(int64(1)).
		WillReturnRows(pgxmock.NewRows([]string{"start_time"}).AddRow(start))
	mock.ExpectQuery("UPDATE conversaciones").
		WithArgs(int64(1), end, 120.5, 1, 1).
		WillReturnRows(pgxmock.NewRows([]string{"call_sid", "phone_number", "created_at"}).
			AddRow("CA123", "+5215512345678", start))
	mock.ExpectCommit()

	conv, err := store.Finalize(context.Background(), 1, &FinalizeRequest{
		EndTime:                end,
		DurationSeconds:        120.5,
		TotalUserMessages:      1,
		TotalAssistantMessages: 1,
	})
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if conv.CallSID != "CA123" || conv.EndTime == nil || !conv.EndTime.Equal(end) {
		t.Errorf("conv = %+v", conv)
	}
	if conv.DurationSeconds == nil || *conv.DurationSeconds != 120.5 {
		t.Errorf("duration = %v", conv.DurationSeconds)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestPostgresFinalizeNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewPostgresStore(mock)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT start_time FROM conversaciones").
		WithArgs(int64(99)).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	if _, err := store.Finalize(context.Background(), 99, &FinalizeRequest{EndTime: time.Now()}); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("finalize = %v, want ErrConversationNotFound", err)
	}
}

func TestPostgresFinalizeEndBeforeStart(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewPostgresStore(mock)
	start := time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT start_time FROM conversaciones").
		WithArgs(int64(1)).
		WillReturnRows(pgxmock.NewRows([]string{"start_time"}).AddRow(start))
	mock.ExpectRollback()

	if _, err := store.Finalize(context.Background(), 1, &FinalizeRequest{EndTime: start.Add(-time.Second)}); !errors.Is(err, ErrEndBeforeStart) {
		t.Fatalf("finalize = %v, want ErrEndBeforeStart", err)
	}
}

func TestPostgresGetByCallSID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewPostgresStore(mock)
	start := time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Minute)
	dur := 120.5

	mock.ExpectQuery("SELECT id, call_sid").
		WithArgs("CA123").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "call_sid", "phone_number", "start_time", "end_time", "duration_seconds",
			"total_user_messages", "total_assistant_messages", "created_at",
		}).AddRow(int64(1), "CA123", "+5215512345678", start, &end, &dur, 1, 1, start))

	conv, err := store.GetByCallSID(context.Background(), "CA123")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if conv.ID != 1 || conv.PhoneNumber != "+5215512345678" {
		t.Errorf("conv = %+v", conv)
	}
	if conv.DurationSeconds == nil || *conv.DurationSeconds != 120.5 {
		t.Errorf("duration = %v", conv.DurationSeconds)
	}
}

func TestPostgresGetByIDNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewPostgresStore(mock)

	mock.ExpectQuery("SELECT id, call_sid").
		WithArgs(int64(99)).
		WillReturnError(pgx.ErrNoRows)

	if _, err := store.GetByID(context.Background(), 99); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("get = %v, want ErrConversationNotFound", err)
	}
}

func TestPostgresGetByIDOpenCall(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewPostgresStore(mock)
	start := time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)

	// end_time and duration_seconds stay NULL while the call is live.
	mock.ExpectQuery("SELECT id, call_sid").
		WithArgs(int64(3)).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "call_sid", "phone_number", "start_time", "end_time", "duration_seconds",
			"total_user_messages", "total_assistant_messages", "created_at",
		}).AddRow(int64(3), "CA300", "unknown", start, nil, nil, 0, 0, start))

	conv, err := store.GetByID(context.Background(), 3)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if conv.EndTime != nil || conv.DurationSeconds != nil {
		t.Errorf("open call should have nil end/duration: %+v", conv)
	}
}

func TestPostgresDelete(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewPostgresStore(mock)

	mock.ExpectExec("DELETE FROM conversaciones").
		WithArgs(int64(1)).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	if err := store.Delete(context.Background(), 1); err != nil {
		t.Fatalf("delete: %v", err)
	}

	mock.ExpectExec("DELETE FROM conversaciones").
		WithArgs(int64(1)).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	if err := store.Delete(context.Background(), 1); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("delete = %v, want ErrConversationNotFound", err)
	}
}

func TestPostgresAppendMessage(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewPostgresStore(mock)
	ts := time.Date(2025, 3, 10, 15, 0, 10, 0, time.UTC)
	conf := 0.92

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO mensajes").
		WithArgs(int64(1), "user", "Busco casa en Polanco", &conf, ts).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(int64(10), ts))
	mock.ExpectExec("UPDATE conversaciones SET total_user_messages").
		WithArgs(int64(1)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	msg, err := store.AppendMessage(context.Background(), 1, &AppendMessageRequest{
		Role:       RoleUser,
		Content:    "Busco casa en Polanco",
		Confidence: &conf,
		Timestamp:  ts,
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if msg.ID != 10 || msg.ConversationID != 1 {
		t.Errorf("msg = %+v", msg)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestPostgresAppendAssistantBumpsAssistantCounter(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewPostgresStore(mock)
	ts := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO mensajes").
		WithArgs(int64(1), "assistant", "Claro, con gusto", (*float64)(nil), ts).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(int64(11), ts))
	mock.ExpectExec("UPDATE conversaciones SET total_assistant_messages").
		WithArgs(int64(1)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	if _, err := store.AppendMessage(context.Background(), 1, &AppendMessageRequest{
		Role:      RoleAssistant,
		Content:   "Claro, con gusto",
		Timestamp: ts,
	}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestPostgresAppendMessageMissingConversation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewPostgresStore(mock)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO mensajes").
		WithArgs(int64(99), "user", "hola", (*float64)(nil), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23503"})
	mock.ExpectRollback()

	if _, err := store.AppendMessage(context.Background(), 99, &AppendMessageRequest{
		Role:      RoleUser,
		Content:   "hola",
		Timestamp: time.Now(),
	}); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("append = %v, want ErrConversationNotFound", err)
	}
}

func TestPostgresListMessages(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewPostgresStore(mock)
	ts := time.Date(2025, 3, 10, 15, 0, 10, 0, time.UTC)
	conf := 0.92

	mock.ExpectQuery("SELECT id, conversation_id, role").
		WithArgs(int64(1)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "conversation_id", "role", "content", "confidence", "timestamp", "created_at"}).
			AddRow(int64(10), int64(1), "user", "Busco casa en Polanco", &conf, ts, ts).
			AddRow(int64(11), int64(1), "assistant", "Claro, con gusto", nil, ts.Add(5*time.Second), ts))

	msgs, err := store.ListMessages(context.Background(), 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("len = %d, want 2", len(msgs))
	}
	if msgs[0].Confidence == nil || *msgs[0].Confidence != 0.92 {
		t.Errorf("confidence = %v", msgs[0].Confidence)
	}
	if msgs[1].Confidence != nil {
		t.Errorf("assistant confidence = %v, want nil", msgs[1].Confidence)
	}
}

func TestPostgresListMessagesEmpty(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewPostgresStore(mock)

	mock.ExpectQuery("SELECT id, conversation_id, role").
		WithArgs(int64(42)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "conversation_id", "role", "content", "confidence", "timestamp", "created_at"}))

	msgs, err := store.ListMessages(context.Background(), 42)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if msgs == nil || len(msgs) != 0 {
		t.Errorf("msgs = %v, want empty non-nil slice", msgs)
	}
}
