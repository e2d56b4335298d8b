package livecall

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	keyPrefix = "livecall:"
	stateTTL  = 24 * time.Hour
)

// ErrCallNotLive is returned when no live state exists for a call SID.
var ErrCallNotLive = errors.New("call not live")

// Meta describes an in-flight call.
type Meta struct {
	CallSID        string    `json:"call_sid"`
	ConversationID int64     `json:"conversation_id"`
	PhoneNumber    string    `json:"phone_number,omitempty"`
	StartTime      time.Time `json:"start_time"`
}

// Message is one live transcript entry.
type Message struct {
	Role       string    `json:"role"` // "user" or "assistant"
	Content    string    `json:"content"`
	Confidence *float64  `json:"confidence,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Counters track per-role message totals while the call is running. They
// feed the finalize totals, so they must match what was appended.
type Counters struct {
	User      int `json:"user"`
	Assistant int `json:"assistant"`
}

// Total returns the combined message count.
func (c Counters) Total() int {
	return c.User + c.Assistant
}

// Snapshot is the full live state of one call.
type Snapshot struct {
	Meta     Meta      `json:"meta"`
	Messages []Message `json:"messages"`
	Counters Counters  `json:"counters"`
}

// Store keeps in-flight call state in Redis under
// livecall:{call_sid}:{meta|messages|counters}, all expiring together.
// A nil Store is a no-op so callers can run without Redis configured.
type Store struct {
	redis       *redis.Client
	tracer      trace.Tracer
	maxMessages int64
	ttl         time.Duration
}

// NewStore wraps a Redis client. Returns nil when the client is nil.
func NewStore(redisClient *redis.Client) *Store {
	if redisClient == nil {
		return nil
	}
	return &Store{
		redis:       redisClient,
		tracer:      otel.Tracer("casavoz.internal.livecall"),
		maxMessages: 500,
		ttl:         stateTTL,
	}
}

// WithTTL overrides how long live state survives without a finalize. The
// default covers a day of abandoned calls. Chainable.
func (s *Store) WithTTL(d time.Duration) *Store {
	if s != nil && d > 0 {
		s.ttl = d
	}
	return s
}

// Start initializes live state for a call, replacing any stale state left
// under the same SID.
func (s *Store) Start(ctx context.Context, meta Meta) error {
	if s == nil || s.redis == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if meta.CallSID == "" {
		return errors.New("livecall: call SID required")
	}
	if meta.StartTime.IsZero() {
		meta.StartTime = time.Now().UTC()
	}

	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("livecall: marshal meta: %w", err)
	}

	ctx, span := s.tracer.Start(ctx, "livecall.start")
	defer span.End()

	pipe := s.redis.TxPipeline()
	pipe.Del(ctx, messagesKey(meta.CallSID), countersKey(meta.CallSID))
	pipe.Set(ctx, metaKey(meta.CallSID), data, s.ttl)
	pipe.HSet(ctx, countersKey(meta.CallSID), "user", 0, "assistant", 0)
	pipe.Expire(ctx, countersKey(meta.CallSID), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("livecall: start call state: %w", err)
	}
	return nil
}

// Append records one utterance and bumps the matching role counter.
func (s *Store) Append(ctx context.Context, callSID string, msg Message) error {
	if s == nil || s.redis == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if callSID == "" {
		return errors.New("livecall: call SID required")
	}
	switch msg.Role {
	case "user", "assistant":
	default:
		return fmt.Errorf("livecall: invalid role %q", msg.Role)
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("livecall: marshal message: %w", err)
	}

	ctx, span := s.tracer.Start(ctx, "livecall.append")
	defer span.End()

	pipe := s.redis.TxPipeline()
	pipe.RPush(ctx, messagesKey(callSID), data)
	pipe.Expire(ctx, messagesKey(callSID), s.ttl)
	if s.maxMessages > 0 {
		pipe.LTrim(ctx, messagesKey(callSID), -s.maxMessages, -1)
	}
	pipe.HIncrBy(ctx, countersKey(callSID), msg.Role, 1)
	pipe.Expire(ctx, countersKey(callSID), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("livecall: append message: %w", err)
	}
	return nil
}

// Messages returns the live transcript, oldest first. limit > 0 returns only
// the newest limit entries.
func (s *Store) Messages(ctx context.Context, callSID string, limit int64) ([]Message, error) {
	if s == nil || s.redis == nil {
		return nil, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if callSID == "" {
		return nil, errors.New("livecall: call SID required")
	}

	ctx, span := s.tracer.Start(ctx, "livecall.messages")
	defer span.End()

	start := int64(0)
	if limit > 0 {
		start = -limit
	}

	raw, err := s.redis.LRange(ctx, messagesKey(callSID), start, -1).Result()
	if err != nil {
		span.RecordError(err)
		if err == redis.Nil {
			return []Message{}, nil
		}
		return nil, fmt.Errorf("livecall: list messages: %w", err)
	}

	out := make([]Message, 0, len(raw))
	for _, item := range raw {
		var msg Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			span.RecordError(err)
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

// Counters returns the per-role totals for a live call. A call with no
// state reports zeros.
func (s *Store) Counters(ctx context.Context, callSID string) (Counters, error) {
	if s == nil || s.redis == nil {
		return Counters{}, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if callSID == "" {
		return Counters{}, errors.New("livecall: call SID required")
	}

	ctx, span := s.tracer.Start(ctx, "livecall.counters")
	defer span.End()

	fields, err := s.redis.HGetAll(ctx, countersKey(callSID)).Result()
	if err != nil {
		span.RecordError(err)
		return Counters{}, fmt.Errorf("livecall: read counters: %w", err)
	}

	var counters Counters
	if v, err := strconv.Atoi(fields["user"]); err == nil {
		counters.User = v
	}
	if v, err := strconv.Atoi(fields["assistant"]); err == nil {
		counters.Assistant = v
	}
	return counters, nil
}

// Snapshot returns the full live state of a call. ErrCallNotLive when no
// call with that SID has started (or its state already expired).
func (s *Store) Snapshot(ctx context.Context, callSID string) (*Snapshot, error) {
	if s == nil || s.redis == nil {
		return nil, ErrCallNotLive
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if callSID == "" {
		return nil, errors.New("livecall: call SID required")
	}

	ctx, span := s.tracer.Start(ctx, "livecall.snapshot")
	defer span.End()

	raw, err := s.redis.Get(ctx, metaKey(callSID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrCallNotLive
		}
		span.RecordError(err)
		return nil, fmt.Errorf("livecall: read meta: %w", err)
	}

	var meta Meta
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("livecall: decode meta: %w", err)
	}

	messages, err := s.Messages(ctx, callSID, 0)
	if err != nil {
		return nil, err
	}
	counters, err := s.Counters(ctx, callSID)
	if err != nil {
		return nil, err
	}

	return &Snapshot{Meta: meta, Messages: messages, Counters: counters}, nil
}

// Cleanup removes all live state for a call. Safe to call twice.
func (s *Store) Cleanup(ctx context.Context, callSID string) error {
	if s == nil || s.redis == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if callSID == "" {
		return errors.New("livecall: call SID required")
	}

	ctx, span := s.tracer.Start(ctx, "livecall.cleanup")
	defer span.End()

	err := s.redis.Del(ctx, metaKey(callSID), messagesKey(callSID), countersKey(callSID)).Err()
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("livecall: cleanup call state: %w", err)
	}
	return nil
}

func metaKey(callSID string) string     { return keyPrefix + callSID + ":meta" }
func messagesKey(callSID string) string { return keyPrefix + callSID + ":messages" }
func countersKey(callSID string) string { return keyPrefix + callSID + ":counters" }
