package analysis

import (
	"context"
	"sync"
	"time"

	"github.com/casavoz/call-platform/internal/conversations"
)

// Store persists one analysis record per conversation.
type Store interface {
	// Upsert writes the analysis for a conversation, replacing any previous
	// record. Returns conversations.ErrConversationNotFound when the parent
	// does not exist.
	Upsert(ctx context.Context, conversationID int64, req *UpsertRequest) (*Record, error)
	// Get returns the stored analysis or ErrAnalysisNotFound.
	Get(ctx context.Context, conversationID int64) (*Record, error)
}

// InMemoryStore keeps analyses in process memory, keyed by conversation.
// The parent conversation check requires a conversations store.
type InMemoryStore struct {
	mu      sync.RWMutex
	nextID  int64
	byConv  map[int64]*Record
	parents conversations.Store
}

// NewInMemoryStore creates an empty in-memory analysis store. parents is
// consulted on Upsert so a missing conversation fails the same way the
// Postgres store does; pass nil to skip the check.
func NewInMemoryStore(parents conversations.Store) *InMemoryStore {
	return &InMemoryStore{
		byConv:  make(map[int64]*Record),
		parents: parents,
	}
}

// Upsert writes or replaces the analysis for a conversation.
func (s *InMemoryStore) Upsert(ctx context.Context, conversationID int64, req *UpsertRequest) (*Record, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if s.parents != nil {
		if _, err := s.parents.GetByID(ctx, conversationID); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	label, detail := splitSentiment(req.Sentimiento)
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

	if prev, ok := s.byConv[conversationID]; ok {
		rec.ID = prev.ID
		rec.CreatedAt = prev.CreatedAt
	} else {
		s.nextID++
		rec.ID = s.nextID
		rec.CreatedAt = time.Now().UTC()
	}
	s.byConv[conversationID] = rec

	return cloneRecord(rec), nil
}

// Get returns the analysis for a conversation.
func (s *InMemoryStore) Get(ctx context.Context, conversationID int64) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byConv[conversationID]
	if !ok {
		return nil, ErrAnalysisNotFound
	}
	return cloneRecord(rec), nil
}

func cloneRecord(r *Record) *Record {
	out := *r
	out.ProximosPasos = cloneList(r.ProximosPasos)
	out.PropiedadesMencionadas = cloneList(r.PropiedadesMencionadas)
	out.PuntosClave = cloneList(r.PuntosClave)
	return &out
}

func cloneList(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}
