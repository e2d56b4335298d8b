package analysis

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// queueMessage is one raw message pulled off the job queue. ReceiptHandle
// is what Delete needs to acknowledge it; the in-memory queue fabricates
// one, SQS supplies its own.
type queueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
}

// jobPayload is the queued unit of work: one conversation to analyze.
type jobPayload struct {
	ID             string `json:"id"`
	ConversationID int64  `json:"conversation_id"`
	CallSID        string `json:"call_sid,omitempty"`
	TrackStatus    bool   `json:"track_status"`
}

// PublishOption customizes an enqueued analysis job.
type PublishOption func(*jobPayload)

// WithoutJobTracking disables job status persistence for fire-and-forget work.
func WithoutJobTracking() PublishOption {
	return func(p *jobPayload) {
		p.TrackStatus = false
	}
}

// encodePayload assigns a job ID when the caller left it blank and
// serializes the payload for the wire.
func encodePayload(payload jobPayload) (jobPayload, string, error) {
	if payload.ID == "" {
		payload.ID = uuid.NewString()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return jobPayload{}, "", fmt.Errorf("analysis: failed to encode payload: %w", err)
	}

	return payload, string(body), nil
}

// decodePayload parses a queued job body.
func decodePayload(body string) (jobPayload, error) {
	var payload jobPayload
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return jobPayload{}, fmt.Errorf("analysis: failed to decode payload: %w", err)
	}
	return payload, nil
}
