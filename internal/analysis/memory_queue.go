package analysis

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// MemoryQueue carries analysis jobs through a buffered channel. It serves
// local development and tests when no SQS queue is configured. Delete is
// a no-op because the channel receive already consumed the message.
type MemoryQueue struct {
	ch chan queueMessage
}

// NewMemoryQueue creates a MemoryQueue with the provided buffer capacity.
func NewMemoryQueue(buffer int) *MemoryQueue {
	if buffer <= 0 {
		buffer = 128
	}
	return &MemoryQueue{ch: make(chan queueMessage, buffer)}
}

// Send enqueues a payload or blocks until ctx is done.
func (q *MemoryQueue) Send(ctx context.Context, body string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case q.ch <- queueMessage{ID: uuid.NewString(), Body: body, ReceiptHandle: uuid.NewString()}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive returns up to maxMessages queued jobs. With waitSeconds > 0 it
// gives up after the wait and returns an empty batch; with zero it blocks
// until a message arrives or ctx is done.
func (q *MemoryQueue) Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if maxMessages <= 0 {
		maxMessages = 1
	}

	// A nil timer channel blocks forever, which covers the waitSeconds=0 case.
	var expired <-chan time.Time
	if waitSeconds > 0 {
		timer := time.NewTimer(time.Duration(waitSeconds) * time.Second)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-expired:
		return nil, nil
	case first := <-q.ch:
		return q.drain(ctx, first, maxMessages), nil
	}
}

// Delete is a no-op for the in-memory queue.
func (q *MemoryQueue) Delete(_ context.Context, _ string) error {
	return nil
}

// drain grabs whatever else is already buffered, up to max, without waiting.
func (q *MemoryQueue) drain(ctx context.Context, first queueMessage, max int) []queueMessage {
	batch := []queueMessage{first}
	for len(batch) < max {
		select {
		case <-ctx.Done():
			return batch
		case msg := <-q.ch:
			batch = append(batch, msg)
		default:
			return batch
		}
	}
	return batch
}
