package followup

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/casavoz/call-platform/internal/conversations"
)

// Store persists follow-up scripts and their delivery state.
type Store interface {
	// Create stores a new unsent script for a conversation. Returns
	// conversations.ErrConversationNotFound when the parent does not exist.
	Create(ctx context.Context, conversationID int64, content string) (*Script, error)
	// Get returns a script by ID or ErrScriptNotFound.
	Get(ctx context.Context, id int64) (*Script, error)
	// MarkSent flips a script to sent. Returns ErrAlreadySent when the
	// script was delivered before, so two sweepers never double-send.
	MarkSent(ctx context.Context, id int64, sentAt time.Time) error
	// ListPending returns unsent scripts oldest first, at most limit.
	ListPending(ctx context.Context, limit int) ([]*Script, error)
}

// InMemoryStore keeps scripts in process memory.
type InMemoryStore struct {
	mu      sync.RWMutex
	nextID  int64
	scripts map[int64]*Script
	parents conversations.Store
}

// NewInMemoryStore creates an empty in-memory script store. parents may be
// nil to skip the parent conversation check.
func NewInMemoryStore(parents conversations.Store) *InMemoryStore {
	return &InMemoryStore{
		scripts: make(map[int64]*Script),
		parents: parents,
	}
}

// Create stores a new unsent script.
func (s *InMemoryStore) Create(ctx context.Context, conversationID int64, content string) (*Script, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrMissingContent
	}
	if s.parents != nil {
		if _, err := s.parents.GetByID(ctx, conversationID); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	script := &Script{
		ID:             s.nextID,
		ConversationID: conversationID,
		ScriptContent:  content,
		CreatedAt:      time.Now().UTC(),
	}
	s.scripts[script.ID] = script
	return cloneScript(script), nil
}

// Get returns a script by ID.
func (s *InMemoryStore) Get(ctx context.Context, id int64) (*Script, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	script, ok := s.scripts[id]
	if !ok {
		return nil, ErrScriptNotFound
	}
	return cloneScript(script), nil
}

// MarkSent flips a script to sent exactly once.
func (s *InMemoryStore) MarkSent(ctx context.Context, id int64, sentAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	script, ok := s.scripts[id]
	if !ok {
		return ErrScriptNotFound
	}
	if script.Enviado {
		return ErrAlreadySent
	}
	sent := sentAt.UTC()
	script.Enviado = true
	script.FechaEnvio = &sent
	return nil
}

// ListPending returns unsent scripts oldest first.
func (s *InMemoryStore) ListPending(ctx context.Context, limit int) ([]*Script, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}

	pending := make([]*Script, 0, limit)
	// IDs are assigned in creation order, so a linear scan in ID order
	// yields oldest first.
	for id := int64(1); id <= s.nextID && len(pending) < limit; id++ {
		script, ok := s.scripts[id]
		if !ok || script.Enviado {
			continue
		}
		pending = append(pending, cloneScript(script))
	}
	return pending, nil
}

func cloneScript(s *Script) *Script {
	out := *s
	if s.FechaEnvio != nil {
		t := *s.FechaEnvio
		out.FechaEnvio = &t
	}
	return &out
}
