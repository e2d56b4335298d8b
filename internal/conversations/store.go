package conversations

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Store defines conversation and message persistence. Every write is atomic:
// AppendMessage bumps the matching role counter in the same transaction as
// the insert, and Delete cascades to all child rows.
type Store interface {
	Create(ctx context.Context, req *CreateRequest) (*Conversation, error)
	Finalize(ctx context.Context, id int64, req *FinalizeRequest) (*Conversation, error)
	GetByID(ctx context.Context, id int64) (*Conversation, error)
	GetByCallSID(ctx context.Context, callSID string) (*Conversation, error)
	Delete(ctx context.Context, id int64) error

	AppendMessage(ctx context.Context, conversationID int64, req *AppendMessageRequest) (*Message, error)
	ListMessages(ctx context.Context, conversationID int64) ([]*Message, error)
}

// InMemoryStore keeps conversations in process memory. Used in tests and
// when running without a database.
type InMemoryStore struct {
	mu            sync.RWMutex
	nextConvID    int64
	nextMsgID     int64
	conversations map[int64]*Conversation
	bySID         map[string]int64
	messages      map[int64][]*Message
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		conversations: make(map[int64]*Conversation),
		bySID:         make(map[string]int64),
		messages:      make(map[int64][]*Message),
	}
}

// Create starts a new conversation.
func (s *InMemoryStore) Create(ctx context.Context, req *CreateRequest) (*Conversation, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.bySID[req.CallSID]; exists {
		return nil, ErrDuplicateCallSID
	}

	s.nextConvID++
	conv := &Conversation{
		ID:          s.nextConvID,
		CallSID:     req.CallSID,
		PhoneNumber: req.phone(),
		StartTime:   req.StartTime,
		CreatedAt:   time.Now().UTC(),
	}
	s.conversations[conv.ID] = conv
	s.bySID[conv.CallSID] = conv.ID

	return cloneConversation(conv), nil
}

// Finalize records the end of a call.
func (s *InMemoryStore) Finalize(ctx context.Context, id int64, req *FinalizeRequest) (*Conversation, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, ErrConversationNotFound
	}
	if req.EndTime.Before(conv.StartTime) {
		return nil, ErrEndBeforeStart
	}

	end := req.EndTime
	duration := req.DurationSeconds
	conv.EndTime = &end
	conv.DurationSeconds = &duration
	conv.TotalUserMessages = req.TotalUserMessages
	conv.TotalAssistantMessages = req.TotalAssistantMessages

	return cloneConversation(conv), nil
}

// GetByID fetches a conversation by its surrogate key.
func (s *InMemoryStore) GetByID(ctx context.Context, id int64) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, ErrConversationNotFound
	}
	return cloneConversation(conv), nil
}

// GetByCallSID fetches a conversation by its natural key.
func (s *InMemoryStore) GetByCallSID(ctx context.Context, callSID string) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.bySID[callSID]
	if !ok {
		return nil, ErrConversationNotFound
	}
	return cloneConversation(s.conversations[id]), nil
}

// Delete removes a conversation and everything attached to it.
func (s *InMemoryStore) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return ErrConversationNotFound
	}
	delete(s.bySID, conv.CallSID)
	delete(s.conversations, id)
	delete(s.messages, id)
	return nil
}

// AppendMessage logs one utterance and bumps the matching counter.
func (s *InMemoryStore) AppendMessage(ctx context.Context, conversationID int64, req *AppendMessageRequest) (*Message, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil, ErrConversationNotFound
	}

	s.nextMsgID++
	msg := &Message{
		ID:             s.nextMsgID,
		ConversationID: conversationID,
		Role:           req.Role,
		Content:        req.Content,
		Timestamp:      req.Timestamp,
		CreatedAt:      time.Now().UTC(),
	}
	if req.Confidence != nil {
		c := *req.Confidence
		msg.Confidence = &c
	}
	s.messages[conversationID] = append(s.messages[conversationID], msg)

	if req.Role == RoleUser {
		conv.TotalUserMessages++
	} else {
		conv.TotalAssistantMessages++
	}

	return cloneMessage(msg), nil
}

// ListMessages returns a conversation's messages in replay order.
func (s *InMemoryStore) ListMessages(ctx context.Context, conversationID int64) ([]*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.messages[conversationID]
	out := make([]*Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, cloneMessage(m))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID < out[j].ID
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

func cloneConversation(c *Conversation) *Conversation {
	out := *c
	if c.EndTime != nil {
		end := *c.EndTime
		out.EndTime = &end
	}
	if c.DurationSeconds != nil {
		d := *c.DurationSeconds
		out.DurationSeconds = &d
	}
	return &out
}

func cloneMessage(m *Message) *Message {
	out := *m
	if m.Confidence != nil {
		c := *m.Confidence
		out.Confidence = &c
	}
	return &out
}
