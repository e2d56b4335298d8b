package analysis

import (
	"context"
	"fmt"

	"github.com/casavoz/call-platform/internal/observability/metrics"
	"github.com/casavoz/call-platform/pkg/logging"
)

// jobSender is the producing side of the job queue. Both MemoryQueue and
// SQSQueue satisfy it.
type jobSender interface {
	Send(ctx context.Context, body string) error
}

// Publisher enqueues analysis jobs for asynchronous processing.
type Publisher struct {
	queue   jobSender
	logger  *logging.Logger
	metrics *metrics.AnalysisMetrics
}

// NewPublisher creates a queue-backed publisher.
func NewPublisher(queue jobSender, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("analysis: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{
		queue:  queue,
		logger: logger,
	}
}

// WithMetrics wires analysis pipeline metrics. Chainable.
func (p *Publisher) WithMetrics(m *metrics.AnalysisMetrics) *Publisher {
	p.metrics = m
	return p
}

// Enqueue publishes an analysis job for one conversation. The returned job
// ID identifies the run in the job store.
func (p *Publisher) Enqueue(ctx context.Context, jobID string, conversationID int64, callSID string, opts ...PublishOption) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	payload := jobPayload{
		ID:             jobID,
		ConversationID: conversationID,
		CallSID:        callSID,
		TrackStatus:    true,
	}
	for _, opt := range opts {
		opt(&payload)
	}

	payload, body, err := encodePayload(payload)
	if err != nil {
		return "", err
	}

	if err := p.queue.Send(ctx, body); err != nil {
		return "", fmt.Errorf("analysis: failed to enqueue job: %w", err)
	}

	p.metrics.ObserveJobPublished()
	p.logger.Debug("analysis job enqueued", "job_id", payload.ID, "conversation_id", conversationID, "call_sid", callSID)
	return payload.ID, nil
}
