package followup

import (
	"context"
	"errors"
	"time"

	"github.com/casavoz/call-platform/internal/conversations"
	"github.com/casavoz/call-platform/pkg/logging"
)

// Delivery is everything a deliverer needs to hand a script to sales.
type Delivery struct {
	ConversationID int64
	CallSID        string
	PhoneNumber    string
	Script         string
}

// Deliverer sends a pending script to its destination (email, CRM, ...).
type Deliverer interface {
	DeliverScript(ctx context.Context, delivery Delivery) error
}

// Sweeper periodically drains unsent scripts and delivers them. Delivery
// and MarkSent are not atomic; the enviado guard means a crash between the
// two re-delivers rather than drops.
type Sweeper struct {
	store     Store
	convs     conversations.Store
	deliverer Deliverer
	logger    *logging.Logger
	interval  time.Duration
	batchSize int
}

// NewSweeper builds a sweeper over the script store.
func NewSweeper(store Store, convs conversations.Store, deliverer Deliverer, logger *logging.Logger) *Sweeper {
	if store == nil {
		panic("followup: store cannot be nil")
	}
	if deliverer == nil {
		panic("followup: deliverer cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Sweeper{
		store:     store,
		convs:     convs,
		deliverer: deliverer,
		logger:    logger,
		interval:  time.Minute,
		batchSize: 20,
	}
}

func (s *Sweeper) WithInterval(d time.Duration) *Sweeper {
	if d > 0 {
		s.interval = d
	}
	return s
}

func (s *Sweeper) WithBatchSize(n int) *Sweeper {
	if n > 0 {
		s.batchSize = n
	}
	return s
}

// Run drains pending scripts until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.drain(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.drain(ctx)
		}
	}
}

func (s *Sweeper) drain(ctx context.Context) {
	scripts, err := s.store.ListPending(ctx, s.batchSize)
	if err != nil {
		s.logger.Error("failed to list pending scripts", "error", err)
		return
	}

	for _, script := range scripts {
		delivery := Delivery{
			ConversationID: script.ConversationID,
			Script:         script.ScriptContent,
		}
		if s.convs != nil {
			conv, err := s.convs.GetByID(ctx, script.ConversationID)
			if err != nil {
				s.logger.Warn("failed to load conversation for script", "error", err, "script_id", script.ID)
			} else {
				delivery.CallSID = conv.CallSID
				delivery.PhoneNumber = conv.PhoneNumber
			}
		}

		if err := s.deliverer.DeliverScript(ctx, delivery); err != nil {
			s.logger.Error("failed to deliver follow-up script", "error", err, "script_id", script.ID)
			continue
		}

		if err := s.store.MarkSent(ctx, script.ID, time.Now().UTC()); err != nil {
			if errors.Is(err, ErrAlreadySent) {
				s.logger.Debug("script already marked sent", "script_id", script.ID)
				continue
			}
			s.logger.Error("failed to mark script sent", "error", err, "script_id", script.ID)
			continue
		}
		s.logger.Info("follow-up script delivered", "script_id", script.ID, "conversation_id", script.ConversationID)
	}
}
